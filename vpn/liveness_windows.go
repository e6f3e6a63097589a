// Package vpn supervises the external openconnect process for Campus VPN.
package vpn

import "os/exec"

// interfaceUp asks netsh whether the TAP adapter is connected.
func interfaceUp(name string) bool {
	out, err := exec.Command("netsh", "interface", "show", "interface").Output()
	if err != nil {
		return false
	}
	return parseNetsh(string(out), name)
}
