// Package common provides shared constants, types, and utilities
// used across the Campus VPN application.
package common

import "context"

// LoginDriver obtains a fresh session cookie by driving a browser login.
// This abstraction allows the coordinator to be tested without a browser.
type LoginDriver interface {
	// Run performs one complete login attempt. It blocks until a cookie is
	// captured, the attempt fails, or ctx is cancelled. The browser is
	// confirmed terminated before Run returns, whatever the outcome.
	Run(ctx context.Context, mode LoginMode) (*SessionCookie, error)
}

// TunnelSupervisor owns the external openconnect process.
type TunnelSupervisor interface {
	// Start spawns openconnect with the given session cookie and returns a
	// handle streaming its lifecycle events. At most one tunnel may exist
	// at a time; Start fails until the previous handle is stopped.
	Start(ctx context.Context, cookie *SessionCookie) (TunnelHandle, error)
	// Stop tears the tunnel down and reaps the process. It must be called
	// exactly once for every handle returned by Start, even after the
	// process has already exited, so the supervisor can accept a new Start.
	Stop(ctx context.Context, handle TunnelHandle) error
	// Alive reports whether the tunnel interface is currently up. It is
	// meaningful even without a handle, so a connection established by an
	// earlier run of the application can be recognized.
	Alive() bool
	// KillStrays terminates openconnect processes this supervisor does not
	// own. It is how a connection without a handle is torn down.
	KillStrays(ctx context.Context) error
}

// TunnelHandle represents one running openconnect process.
type TunnelHandle interface {
	// Events streams lifecycle observations. The channel is closed after
	// the final TunnelExited event.
	Events() <-chan TunnelEvent
	// InterfaceName returns the network interface the tunnel uses.
	InterfaceName() string
}

// TunnelEventKind discriminates tunnel events.
type TunnelEventKind int

const (
	// TunnelLog carries one line of openconnect output.
	TunnelLog TunnelEventKind = iota
	// TunnelUp fires once the tunnel interface is present and up.
	TunnelUp
	// TunnelDown fires when a previously up interface disappears.
	TunnelDown
	// TunnelExited fires once, after the process has been reaped.
	TunnelExited
)

// String returns a short name for the event kind.
func (k TunnelEventKind) String() string {
	switch k {
	case TunnelLog:
		return "log"
	case TunnelUp:
		return "up"
	case TunnelDown:
		return "down"
	case TunnelExited:
		return "exited"
	default:
		return "unknown"
	}
}

// TunnelEvent is one observation from the tunnel supervisor.
type TunnelEvent struct {
	// Kind discriminates the event.
	Kind TunnelEventKind
	// Line is the output line for TunnelLog events.
	Line string
	// ExitCode is the process exit code for TunnelExited events.
	ExitCode int
	// Err classifies a TunnelExited event. It is ErrCredentialRejected when
	// the gateway refused the session cookie, nil otherwise.
	Err error
}

// CredentialStore persists session cookies between runs.
// Implementations may use the system keyring, encrypted files, etc.
type CredentialStore interface {
	// LoadCookie returns the stored session cookie for a gateway, or
	// ErrCookieNotFound when none is stored.
	LoadCookie(gateway string) (*SessionCookie, error)
	// SaveCookie stores the session cookie for a gateway.
	SaveCookie(gateway string, cookie *SessionCookie) error
	// PurgeCookie removes any stored cookie for a gateway. Purging a
	// gateway with no stored cookie is not an error.
	PurgeCookie(gateway string) error
}

// Prompter collects credentials and surfaces MFA challenges to the user.
type Prompter interface {
	// AskText prompts for a visible value such as a username.
	AskText(ctx context.Context, prompt string) (string, error)
	// AskSecret prompts for a hidden value such as a password.
	AskSecret(ctx context.Context, prompt string) (string, error)
	// ShowMFACode surfaces the number-matching code the user must confirm
	// in their authenticator app. An empty code means a plain approval.
	ShowMFACode(code string)
	// ClearMFA reports that the MFA challenge is no longer pending.
	ClearMFA()
}
