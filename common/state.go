// Package common provides shared constants, types, and utilities
// used across the Campus VPN application.
package common

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// SessionState represents the lifecycle phase of the VPN session.
type SessionState int

const (
	StateIdle SessionState = iota
	StateLoggingIn
	StateStartingTunnel
	StateConnected
	StateDisconnecting
	StateFailed
)

// String returns a human-readable state string.
func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateLoggingIn:
		return "Logging in..."
	case StateStartingTunnel:
		return "Starting tunnel..."
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting..."
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Resting reports whether the state accepts a new connection attempt.
func (s SessionState) Resting() bool {
	return s == StateIdle || s == StateFailed
}

// FailureCode classifies why a session ended up in StateFailed.
// Codes are stable strings so they can be persisted in history records.
type FailureCode string

const (
	FailLoginTimeout       FailureCode = "login-timeout"
	FailPageUnrecognized   FailureCode = "page-unrecognized"
	FailBrowserLaunch      FailureCode = "browser-launch"
	FailBrowserClosed      FailureCode = "browser-closed"
	FailLoginRejected      FailureCode = "login-rejected"
	FailSpawn              FailureCode = "spawn"
	FailCredentialRejected FailureCode = "credential-rejected"
	FailUnexpectedExit     FailureCode = "unexpected-exit"
	FailEstablishTimeout   FailureCode = "establish-timeout"
	FailTeardown           FailureCode = "teardown"
	FailInternal           FailureCode = "internal"
)

// Failure describes why a session attempt ended in operator terms.
type Failure struct {
	// Code is the stable classification of the failure.
	Code FailureCode
	// Detail carries the underlying error text, if any.
	Detail string
}

// String returns the failure as "code: detail" or just the code.
func (f Failure) String() string {
	if f.Detail == "" {
		return string(f.Code)
	}
	return string(f.Code) + ": " + f.Detail
}

// ClassifyFailure maps an error to its failure record. Unrecognized errors
// are classified as internal so they still surface with their message.
func ClassifyFailure(err error) Failure {
	if err == nil {
		return Failure{Code: FailInternal}
	}

	code := FailInternal
	switch {
	case errors.Is(err, ErrLoginTimeout):
		code = FailLoginTimeout
	case errors.Is(err, ErrPageUnrecognized):
		code = FailPageUnrecognized
	case errors.Is(err, ErrBrowserLaunchFailed):
		code = FailBrowserLaunch
	case errors.Is(err, ErrBrowserClosed):
		code = FailBrowserClosed
	case errors.Is(err, ErrLoginRejected):
		code = FailLoginRejected
	case errors.Is(err, ErrSpawn):
		code = FailSpawn
	case errors.Is(err, ErrCredentialRejected):
		code = FailCredentialRejected
	case errors.Is(err, ErrUnexpectedExit):
		code = FailUnexpectedExit
	case errors.Is(err, ErrEstablishTimeout):
		code = FailEstablishTimeout
	case errors.Is(err, ErrTeardown):
		code = FailTeardown
	}

	return Failure{Code: code, Detail: err.Error()}
}

// SessionCookie is the authenticated web session token the gateway issues
// after a successful browser login. openconnect presents it in place of a
// password, so its value is treated as a secret.
type SessionCookie struct {
	Name       string    `json:"name" yaml:"name"`
	Value      string    `json:"value" yaml:"value"`
	Domain     string    `json:"domain" yaml:"domain"`
	ObtainedAt time.Time `json:"obtained_at" yaml:"obtained_at"`
}

// Fresh reports whether the cookie is recent enough to try against the
// gateway without a new login. A zero or negative maxAge disables reuse.
func (c *SessionCookie) Fresh(maxAge time.Duration) bool {
	if c == nil || c.Value == "" {
		return false
	}
	if maxAge <= 0 {
		return false
	}
	return time.Since(c.ObtainedAt) < maxAge
}

// Redacted returns a loggable description of the cookie without its value.
func (c *SessionCookie) Redacted() string {
	if c == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s (domain %s, obtained %s)", c.Name, c.Domain, c.ObtainedAt.Format(time.RFC3339))
}

// LoginMode selects how the browser-driven login runs.
type LoginMode int

const (
	// ModeFullAuto runs a headless browser and fills every form from stored
	// or prompted credentials. No window is shown.
	ModeFullAuto LoginMode = iota
	// ModeVisualAuto shows the browser window while form handlers still run,
	// so the user can watch or take over.
	ModeVisualAuto
	// ModeManual shows the browser and leaves every step to the user. Only
	// cookie polling runs.
	ModeManual
)

// String returns the configuration name of the mode.
func (m LoginMode) String() string {
	switch m {
	case ModeFullAuto:
		return "auto"
	case ModeVisualAuto:
		return "visual"
	case ModeManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Headless reports whether the browser should run without a window.
func (m LoginMode) Headless() bool {
	return m == ModeFullAuto
}

// Automated reports whether page handlers should drive the login forms.
func (m LoginMode) Automated() bool {
	return m != ModeManual
}

// ParseLoginMode maps a configuration or flag value to a LoginMode.
func ParseLoginMode(s string) (LoginMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "auto", "headless":
		return ModeFullAuto, nil
	case "visual":
		return ModeVisualAuto, nil
	case "manual":
		return ModeManual, nil
	default:
		return ModeFullAuto, fmt.Errorf("unknown login mode %q (expected auto, visual, or manual)", s)
	}
}

// CredentialPrompt asks the user interface for one credential during login.
// The login driver blocks on Await while the interface answers with Respond
// or abandons the prompt with Dismiss. Both are safe to call more than once;
// only the first call has any effect.
type CredentialPrompt struct {
	// ID uniquely identifies this prompt.
	ID string
	// Text is the question shown to the user.
	Text string
	// Secret indicates the input must not be echoed.
	Secret bool

	response chan string
	cancel   chan struct{}
	once     sync.Once
}

// NewCredentialPrompt creates a prompt ready to be answered.
func NewCredentialPrompt(text string, secret bool) *CredentialPrompt {
	return &CredentialPrompt{
		ID:       GenerateID(),
		Text:     text,
		Secret:   secret,
		response: make(chan string, 1),
		cancel:   make(chan struct{}),
	}
}

// Respond delivers the user's answer to the waiting login driver.
func (p *CredentialPrompt) Respond(value string) {
	p.once.Do(func() {
		p.response <- value
	})
}

// Dismiss abandons the prompt without an answer. Await returns
// ErrLoginCancelled.
func (p *CredentialPrompt) Dismiss() {
	p.once.Do(func() {
		close(p.cancel)
	})
}

// Await blocks until the prompt is answered, dismissed, or ctx ends.
func (p *CredentialPrompt) Await(ctx context.Context) (string, error) {
	select {
	case v := <-p.response:
		return v, nil
	case <-p.cancel:
		return "", ErrLoginCancelled
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
