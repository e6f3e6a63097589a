// Package vpn supervises the external openconnect process for Campus VPN.
package vpn

import "os/exec"

// interfaceUp scans ifconfig output for a utun interface with an IPv4
// address. macOS offers no sysfs equivalent, and the utun number is only
// known once openconnect has created the device.
func interfaceUp(name string) bool {
	out, err := exec.Command("ifconfig").Output()
	if err != nil {
		return false
	}
	return parseIfconfig(string(out), name)
}
