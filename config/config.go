// Package config provides configuration management for Campus VPN.
// It handles loading, saving, and managing application settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yllada/campus-vpn/common"
)

// Config represents the application configuration.
// All settings are persisted to a YAML file in the user's config directory.
type Config struct {
	// DefaultGateway names the gateway profile used when none is given on
	// the command line.
	DefaultGateway string `yaml:"default_gateway,omitempty"`
	// GatewayURL connects straight to this URL when no gateway profile is
	// selected. Mostly useful for single-gateway setups.
	GatewayURL string `yaml:"gateway_url,omitempty"`
	// LoginMode selects how the browser login runs: "auto" (headless),
	// "visual" (window shown, forms still filled), or "manual".
	LoginMode string `yaml:"login_mode"`
	// Browser is the path or name of the Chromium-based browser binary.
	// Empty means autodetect.
	Browser string `yaml:"browser,omitempty"`
	// UserAgent overrides the browser user agent. Some identity providers
	// refuse logins from agents they classify as automation.
	UserAgent string `yaml:"user_agent,omitempty"`
	// Openconnect is the path of the openconnect binary. Empty means
	// autodetect from PATH and the usual sbin directories.
	Openconnect string `yaml:"openconnect,omitempty"`
	// EscalationTool runs openconnect with elevated privileges: "sudo",
	// "sudo-rs", "pkexec", or an absolute path. Empty means autodetect.
	EscalationTool string `yaml:"escalation_tool,omitempty"`
	// LogLevel sets the minimum log level: "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
	// ShowNotifications enables desktop notifications for session events.
	ShowNotifications bool `yaml:"show_notifications"`
	// RecordHistory enables the local session history database.
	RecordHistory bool `yaml:"record_history"`
	// CookieMaxAge bounds how old a stored session cookie may be before a
	// fresh login is forced. Zero means the built-in default; a negative
	// value disables cookie reuse entirely.
	CookieMaxAge Duration `yaml:"cookie_max_age"`
	// LoginTimeout bounds one automated login attempt.
	LoginTimeout Duration `yaml:"login_timeout"`
	// ManualLoginTimeout bounds a manual login attempt.
	ManualLoginTimeout Duration `yaml:"manual_login_timeout"`
	// LoginPollInterval is how often the login driver inspects the page.
	LoginPollInterval Duration `yaml:"login_poll_interval"`
	// EstablishTimeout bounds how long the tunnel may take to come up after
	// openconnect starts.
	EstablishTimeout Duration `yaml:"establish_timeout"`
	// MonitorInterval is how often tunnel interface liveness is checked.
	MonitorInterval Duration `yaml:"monitor_interval"`
	// MaxRelogin caps automatic re-logins after the gateway rejects a
	// stored session cookie.
	MaxRelogin int `yaml:"max_relogin"`
}

// DefaultConfig returns the default configuration.
// These are sensible defaults for most users.
func DefaultConfig() *Config {
	return &Config{
		LoginMode:          "auto",
		LogLevel:           "info",
		ShowNotifications:  true,
		RecordHistory:      true,
		CookieMaxAge:       Duration(common.DefaultCookieMaxAge),
		LoginTimeout:       Duration(common.LoginTimeout),
		ManualLoginTimeout: Duration(common.ManualLoginTimeout),
		LoginPollInterval:  Duration(common.LoginPollInterval),
		EstablishTimeout:   Duration(common.EstablishTimeout),
		MonitorInterval:    Duration(common.MonitorInterval),
		MaxRelogin:         common.MaxReloginAttempts,
	}
}

// Load loads the configuration from the config file.
// If the file doesn't exist, it creates one with default values.
// Environment variables prefixed CAMPUSVPN_ override file values.
func Load() (*Config, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	// If it doesn't exist, persist and return default configuration
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		if err := cfg.Save(); err != nil {
			return cfg, err
		}
		cfg.applyEnvOverrides()
		cfg.validate()
		return cfg, nil
	}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("error opening configuration: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true) // Strict validation: reject unknown fields

	config := *DefaultConfig()
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}

	config.applyEnvOverrides()

	// Validate values
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// applyEnvOverrides lets environment variables win over file values, so the
// tool can be pointed at another gateway or browser without editing YAML.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CAMPUSVPN_URL"); v != "" {
		c.GatewayURL = v
	}
	if v := os.Getenv("CAMPUSVPN_BROWSER"); v != "" {
		c.Browser = v
	}
	if v := os.Getenv("CAMPUSVPN_LOGIN_MODE"); v != "" {
		c.LoginMode = v
	}
	if v := os.Getenv("CAMPUSVPN_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// validate verifies that configuration values are valid
func (c *Config) validate() error {
	if _, err := common.ParseLoginMode(c.LoginMode); err != nil {
		c.LoginMode = "auto" // Fallback to default
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !common.StringInSlice(strings.ToLower(c.LogLevel), validLevels) {
		c.LogLevel = "info" // Fallback to default
	}

	defaults := DefaultConfig()
	if c.LoginTimeout <= 0 {
		c.LoginTimeout = defaults.LoginTimeout
	}
	if c.ManualLoginTimeout <= 0 {
		c.ManualLoginTimeout = defaults.ManualLoginTimeout
	}
	if c.LoginPollInterval <= 0 {
		c.LoginPollInterval = defaults.LoginPollInterval
	}
	if c.EstablishTimeout <= 0 {
		c.EstablishTimeout = defaults.EstablishTimeout
	}
	if c.MonitorInterval <= 0 {
		c.MonitorInterval = defaults.MonitorInterval
	}
	// CookieMaxAge is passed through as-is: negative values mean the user
	// turned cookie reuse off.
	if c.MaxRelogin < 0 {
		c.MaxRelogin = defaults.MaxRelogin
	}

	return nil
}

// Mode returns the parsed login mode. validate guarantees it parses.
func (c *Config) Mode() common.LoginMode {
	mode, _ := common.ParseLoginMode(c.LoginMode)
	return mode
}

// Level returns the parsed log level. validate guarantees it parses.
func (c *Config) Level() common.LogLevel {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return common.LevelDebug
	case "warn":
		return common.LevelWarn
	case "error":
		return common.LevelError
	default:
		return common.LevelInfo
	}
}

// Save saves the configuration to the file
func (c *Config) Save() error {
	configPath, err := getConfigPath()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(configPath), 0700); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("error serializing configuration: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("error saving configuration: %w", err)
	}

	return nil
}

func getConfigPath() (string, error) {
	if path := os.Getenv("CAMPUSVPN_CONFIG"); path != "" {
		return path, nil
	}

	configDir, err := common.GetConfigDir()
	if err != nil {
		return "", err
	}

	return filepath.Join(configDir, common.ConfigFileName), nil
}
