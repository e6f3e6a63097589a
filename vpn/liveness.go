// Package vpn supervises the external openconnect process for Campus VPN.
package vpn

import (
	"bufio"
	"runtime"
	"strings"
)

// InterfaceUp reports whether the tunnel interface is present and usable.
// This is the single source of truth for tunnel liveness: openconnect runs
// under an escalation wrapper whose PID says nothing about the elevated
// child, but the interface cannot exist without a working tunnel.
func InterfaceUp(name string) bool {
	return interfaceUp(name)
}

// DefaultInterfaceName returns the tunnel interface watched on this
// platform. On Linux the name is also requested from openconnect; macOS
// assigns utunN itself, so only the prefix is known up front, and Windows
// keeps the TAP adapter's friendly name.
func DefaultInterfaceName() string {
	switch runtime.GOOS {
	case "darwin":
		return "utun"
	case "windows":
		return "OpenConnect VPN"
	default:
		return "campus0"
	}
}

// operstateUp interprets a Linux sysfs operstate value. Anything but an
// explicit "down" counts as usable: point-to-point tunnels commonly report
// "unknown" while passing traffic.
func operstateUp(state string) bool {
	return strings.TrimSpace(state) != "down"
}

// parseIfconfig reports whether ifconfig output shows an interface matching
// the given name (prefix match, so "utun" covers utun0..utunN) with an IPv4
// address assigned.
func parseIfconfig(output, iface string) bool {
	inMatch := false
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			name, _, ok := strings.Cut(line, ":")
			if !ok {
				continue
			}
			inMatch = strings.HasPrefix(name, iface)
			continue
		}
		if inMatch && strings.HasPrefix(strings.TrimSpace(line), "inet ") {
			return true
		}
	}
	return false
}

// parseNetsh reports whether `netsh interface show interface` output lists
// the named interface as Connected.
func parseNetsh(output, iface string) bool {
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasSuffix(line, iface) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == "Connected" {
			return true
		}
	}
	return false
}
