//go:build !windows

// Package vpn supervises the external openconnect process for Campus VPN.
package vpn

import (
	"os"
	"os/exec"
	"runtime"
	"strings"
	"syscall"

	"github.com/yllada/campus-vpn/common"
)

// escalationCandidates lists the escalation tools tried in order. pkexec is
// skipped on macOS, where polkit is not a given.
func escalationCandidates() []string {
	if runtime.GOOS == "darwin" {
		return []string{"sudo", "sudo-rs"}
	}
	return []string{"sudo", "sudo-rs", "pkexec"}
}

// isRoot reports whether openconnect can be run without escalation.
func isRoot() bool {
	return os.Geteuid() == 0
}

// terminate asks the tunnel to shut down cleanly: SIGTERM to the direct
// child plus an elevated TERM to the openconnect it spawned. openconnect
// restores routes and DNS on SIGTERM, so this is the polite path.
func terminate(t *Tunnel) {
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Signal(syscall.SIGTERM)
	}
	signalStrays(t.esc, false)
}

// forceKill ends the tunnel without ceremony after a graceful stop timed
// out.
func forceKill(t *Tunnel) {
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	signalStrays(t.esc, true)
}

// signalStrays sends TERM (or KILL) to every openconnect process. The
// escalation wrapper's child runs as root, so a plain signal from this
// process would be refused; the signal goes through the same escalation
// that started the tunnel.
func signalStrays(esc *escalation, force bool) {
	pids := openconnectPIDs()
	if len(pids) == 0 {
		return
	}
	sig := "-TERM"
	if force {
		sig = "-KILL"
	}
	argv := append([]string{"kill", sig}, pids...)
	cmd := nonInteractiveElevated(esc, argv)
	if out, err := cmd.CombinedOutput(); err != nil {
		common.LogDebug("Signaling openconnect failed: %v (%s)", err, strings.TrimSpace(string(out)))
	}
}

// openconnectPIDs returns the PIDs of running openconnect processes.
func openconnectPIDs() []string {
	out, err := exec.Command("pgrep", "-x", "openconnect").Output()
	if err != nil {
		// Exit status 1 means no processes matched.
		return nil
	}
	return strings.Fields(string(out))
}

// openconnectRunning reports whether any openconnect process exists. Only
// used to confirm teardown; liveness goes through the interface instead.
func openconnectRunning() bool {
	return len(openconnectPIDs()) > 0
}
