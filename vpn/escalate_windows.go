// Package vpn supervises the external openconnect process for Campus VPN.
package vpn

import (
	"os/exec"
	"strings"

	"github.com/yllada/campus-vpn/common"
)

// escalationCandidates returns nil on Windows: openconnect is run directly
// and the application itself is expected to hold administrator rights.
func escalationCandidates() []string {
	return nil
}

// isRoot always reports true on Windows so no escalation wrapper is used.
// Starting the tunnel without administrator rights fails with an
// openconnect error, which surfaces through the normal exit path.
func isRoot() bool {
	return true
}

// terminate ends the tunnel. Windows has no SIGTERM, so the direct child is
// killed and taskkill cleans up the openconnect it spawned.
func terminate(t *Tunnel) {
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	signalStrays(t.esc, false)
}

// forceKill ends the tunnel after a graceful stop timed out.
func forceKill(t *Tunnel) {
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	signalStrays(t.esc, true)
}

// signalStrays removes every openconnect.exe via taskkill.
func signalStrays(esc *escalation, force bool) {
	args := []string{"/IM", "openconnect.exe"}
	if force {
		args = append([]string{"/F"}, args...)
	}
	if out, err := exec.Command("taskkill", args...).CombinedOutput(); err != nil {
		common.LogDebug("taskkill failed: %v (%s)", err, strings.TrimSpace(string(out)))
	}
}

// openconnectRunning reports whether an openconnect.exe process exists.
func openconnectRunning() bool {
	out, err := exec.Command("tasklist", "/FI", "IMAGENAME eq openconnect.exe").Output()
	if err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(string(out)), "openconnect.exe")
}
