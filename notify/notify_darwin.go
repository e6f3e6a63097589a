//go:build darwin

package notify

import (
	"fmt"
	"os/exec"
	"strings"
)

// sendDesktop posts a notification through the macOS notification center.
// The icon and urgency have no osascript equivalent and are dropped.
func sendDesktop(summary, body, _ string, _ Urgency) error {
	script := fmt.Sprintf("display notification %q with title %q",
		sanitize(body), sanitize(summary))
	return exec.Command("osascript", "-e", script).Run()
}

// sanitize strips characters that would escape the AppleScript string.
func sanitize(s string) string {
	s = strings.ReplaceAll(s, `"`, "'")
	s = strings.ReplaceAll(s, "\\", "")
	return s
}
