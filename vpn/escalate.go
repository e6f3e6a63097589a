// Package vpn supervises the external openconnect process for Campus VPN.
package vpn

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/yllada/campus-vpn/common"
)

// escalation describes the resolved privilege escalation for openconnect.
// A nil *escalation means the process can run openconnect directly, either
// because it is already root or because it runs in an elevated Windows
// session.
type escalation struct {
	// path is the resolved escalation binary.
	path string
	// name is the bare tool name: sudo, sudo-rs, pkexec, or a custom tool.
	name string
	// askpass is a graphical askpass helper used with -A, when one exists.
	askpass string
	// password is the sudo password fed over stdin with -S, when collected.
	password string
}

// sudoFamily reports whether the tool understands sudo's -n/-A/-S flags.
func (e *escalation) sudoFamily() bool {
	return e != nil && (e.name == "sudo" || e.name == "sudo-rs")
}

// askpassCandidates are graphical askpass helpers tried in order when sudo
// needs a password, so the prompt can appear even without a terminal.
var askpassCandidates = []string{
	"ssh-askpass",
	"ksshaskpass",
	"lxqt-openssh-askpass",
	"x11-ssh-askpass",
	"gnome-ssh-askpass",
}

// resolveEscalation picks the privilege escalation tool for openconnect
// and, when sudo would prompt, collects a working password up front so the
// tunnel cannot stall on a hidden prompt later. Returns nil when the
// current process can run openconnect directly.
func resolveEscalation(ctx context.Context, override string, prompter common.Prompter) (*escalation, error) {
	if isRoot() {
		return nil, nil
	}
	esc, err := findEscalationTool(override)
	if err != nil {
		return nil, err
	}
	if !esc.sudoFamily() {
		// pkexec and custom tools do their own prompting.
		return esc, nil
	}
	if !sudoNeedsPassword(esc.path) {
		return esc, nil
	}
	if helper := findAskpass(); helper != "" {
		common.LogDebug("Using askpass helper %s", helper)
		esc.askpass = helper
		return esc, nil
	}
	if prompter == nil {
		return nil, common.WrapError(common.ErrSpawn, "sudo needs a password and no prompter is available")
	}
	password, err := prompter.AskSecret(ctx, "Enter your sudo password to start the VPN tunnel")
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return nil, common.ErrTunnelCancelled
		}
		return nil, common.WrapError(common.ErrSpawn, fmt.Sprintf("reading sudo password: %v", err))
	}
	if err := verifyPassword(ctx, esc.path, password); err != nil {
		return nil, err
	}
	esc.password = password
	return esc, nil
}

// findEscalationTool resolves the first available escalation tool. An
// override replaces the platform candidate list entirely.
func findEscalationTool(override string) (*escalation, error) {
	candidates := escalationCandidates()
	if override != "" {
		candidates = []string{override}
	}
	for _, cand := range candidates {
		path := cand
		if strings.ContainsRune(cand, os.PathSeparator) {
			if !common.FileExists(path) {
				continue
			}
		} else {
			found, err := exec.LookPath(cand)
			if err != nil {
				continue
			}
			path = found
		}
		return &escalation{path: path, name: filepath.Base(cand)}, nil
	}
	return nil, common.WrapError(common.ErrSpawn, "no privilege escalation tool found (need sudo, sudo-rs, or pkexec)")
}

// sudoNeedsPassword reports whether sudo would prompt right now. A cached
// credential timestamp or a NOPASSWD rule makes -n succeed.
func sudoNeedsPassword(tool string) bool {
	return exec.Command(tool, "-n", "true").Run() != nil
}

// findAskpass returns an askpass helper, honoring SUDO_ASKPASS if set.
func findAskpass() string {
	if helper := os.Getenv("SUDO_ASKPASS"); helper != "" && common.FileExists(helper) {
		return helper
	}
	for _, name := range askpassCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// verifyPassword checks the collected password against sudo itself before
// openconnect ever sees it. One attempt only: a wrong password fails the
// connect instead of looping on prompts.
func verifyPassword(ctx context.Context, tool, password string) error {
	cmd := exec.CommandContext(ctx, tool, "-k", "-S", "true")
	cmd.Stdin = strings.NewReader(password + "\n")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return common.ErrTunnelCancelled
		}
		return common.WrapError(common.ErrSpawn, "sudo rejected the password")
	}
	return nil
}

// nonInteractiveElevated wraps argv in the escalation tool without ever
// allowing a terminal prompt. Used for teardown, where a prompt would hang
// the shutdown path.
func nonInteractiveElevated(esc *escalation, argv []string) *exec.Cmd {
	if esc == nil {
		return exec.Command(argv[0], argv[1:]...)
	}
	args := make([]string, 0, len(argv)+1)
	switch {
	case esc.askpass != "":
		args = append(args, "-A")
	case esc.password != "":
		args = append(args, "-S")
	case esc.sudoFamily():
		args = append(args, "-n")
	}
	args = append(args, argv...)
	cmd := exec.Command(esc.path, args...)
	if esc.askpass != "" {
		cmd.Env = append(os.Environ(), "SUDO_ASKPASS="+esc.askpass)
	}
	if esc.password != "" {
		cmd.Stdin = strings.NewReader(esc.password + "\n")
	}
	return cmd
}
