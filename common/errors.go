// Package common provides shared constants, types, and utilities
// used across the Campus VPN application.
package common

import "errors"

// Sentinel errors for session operations.
// These can be checked with errors.Is() for proper error handling.
var (
	// Login errors.
	ErrLoginTimeout        = errors.New("login timed out")
	ErrPageUnrecognized    = errors.New("login page not recognized")
	ErrBrowserLaunchFailed = errors.New("failed to launch browser")
	ErrBrowserClosed       = errors.New("browser closed before login finished")
	ErrLoginRejected       = errors.New("login rejected by identity provider")
	ErrLoginCancelled      = errors.New("login cancelled")

	// Tunnel errors.
	ErrTunnelActive       = errors.New("a tunnel is already active")
	ErrSpawn              = errors.New("failed to start openconnect")
	ErrCredentialRejected = errors.New("gateway rejected the session cookie")
	ErrUnexpectedExit     = errors.New("openconnect exited unexpectedly")
	ErrEstablishTimeout   = errors.New("tunnel did not come up in time")
	ErrTeardown           = errors.New("failed to stop openconnect")
	ErrTunnelCancelled    = errors.New("tunnel start cancelled")

	// Coordinator errors.
	ErrAlreadyConnecting = errors.New("connection attempt already in progress")
	ErrAlreadyConnected  = errors.New("connection already active")
	ErrNotConnected      = errors.New("no active connection")
	ErrNoPrompt          = errors.New("no prompt is waiting for a response")

	// Storage errors.
	ErrCookieNotFound  = errors.New("no stored session cookie")
	ErrGatewayNotFound = errors.New("gateway not found")
	ErrGatewayExists   = errors.New("gateway name already exists")
	ErrInvalidGateway  = errors.New("invalid gateway data")
	ErrInvalidConfig   = errors.New("invalid configuration file")

	// Instance errors.
	ErrAlreadyRunning = errors.New("another instance is already running")
)

// WrapError wraps an error with additional context.
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return &wrappedError{
		msg: message,
		err: err,
	}
}

type wrappedError struct {
	msg string
	err error
}

func (e *wrappedError) Error() string {
	return e.msg + ": " + e.err.Error()
}

func (e *wrappedError) Unwrap() error {
	return e.err
}
