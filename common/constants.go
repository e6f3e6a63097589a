// Package common provides shared constants, types, and utilities
// used across the Campus VPN application.
package common

import "time"

// Application metadata.
const (
	// AppID is the unique identifier for the application.
	AppID = "com.campusvpn.app"
	// AppName is the display name of the application.
	AppName = "Campus VPN"
	// ConfigDirName is the name of the configuration directory.
	ConfigDirName = "campus-vpn"
)

// File and directory names used by the application.
const (
	ConfigFileName        = "config.yaml"
	GatewaysFileName      = "gateways.yaml"
	HistoryFileName       = "history.db"
	LockFileName          = "campus-vpn.lock"
	LogFileName           = "campus-vpn.log"
	BrowserProfileDirName = "browser-profile"
)

// Session cookie defaults. The gateway issues a web session cookie after a
// successful login; openconnect presents it instead of a password.
const (
	// DefaultCookieName is the cookie the gateway sets on login success.
	DefaultCookieName = "DSID"
	// DefaultCookieMaxAge bounds how old a stored cookie may be before a
	// fresh login is forced instead of trying to reuse it.
	DefaultCookieMaxAge = 8 * time.Hour
)

// Default timeouts and intervals.
const (
	// LoginPollInterval is how often the login driver inspects the page.
	LoginPollInterval = 400 * time.Millisecond
	// LoginTimeout is the maximum time an automated login attempt may take.
	LoginTimeout = 3 * time.Minute
	// ManualLoginTimeout is the maximum time a manual login may take.
	ManualLoginTimeout = 10 * time.Minute
	// EstablishTimeout is the maximum time to wait for the tunnel interface
	// to come up after openconnect starts.
	EstablishTimeout = 30 * time.Second
	// MonitorInterval is how often tunnel interface liveness is checked.
	MonitorInterval = 1 * time.Second
	// TeardownGracePeriod is how long to wait for openconnect to exit after
	// a termination signal before escalating.
	TeardownGracePeriod = 5 * time.Second
	// BrowserShutdownTimeout bounds how long browser termination may take
	// before the process is killed outright.
	BrowserShutdownTimeout = 5 * time.Second
)

// Login handler loop bounds.
const (
	// MaxHandlerRetries is how many consecutive polls may pass without any
	// page handler firing before the attempt is declared stuck.
	MaxHandlerRetries = 20
	// StuckThreshold is the number of idle polls after which the handled
	// page set is cleared so handlers may fire again.
	StuckThreshold = 8
	// MaxPageResets caps how many times the handled set may be cleared
	// within a single attempt.
	MaxPageResets = 2
	// MaxReloginAttempts is how many automatic re-logins are performed when
	// the gateway rejects a session cookie. Exactly one retry keeps a stale
	// cookie from looping forever.
	MaxReloginAttempts = 1
)
