// Package vpn supervises the external openconnect process for Campus VPN.
package vpn

import (
	"os"
	"path/filepath"
)

// sysClassNet is overridden in tests.
var sysClassNet = "/sys/class/net"

// interfaceUp checks sysfs for the tunnel interface. A present interface
// without an operstate file is treated as up: the directory alone proves
// the tunnel device exists.
func interfaceUp(name string) bool {
	dir := filepath.Join(sysClassNet, name)
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	data, err := os.ReadFile(filepath.Join(dir, "operstate"))
	if err != nil {
		return true
	}
	return operstateUp(string(data))
}
