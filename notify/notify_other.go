//go:build !linux && !darwin

package notify

// sendDesktop is a no-op where no notification backend is wired up.
func sendDesktop(string, string, string, Urgency) error {
	return nil
}
