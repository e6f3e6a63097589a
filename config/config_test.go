package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yllada/campus-vpn/common"
)

// useTempConfig points the loader at a throwaway config file.
func useTempConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv("CAMPUSVPN_CONFIG", path)
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.LoginMode != "auto" {
		t.Errorf("LoginMode = %q, want auto", cfg.LoginMode)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if !cfg.ShowNotifications {
		t.Error("ShowNotifications should be enabled by default")
	}
	if !cfg.RecordHistory {
		t.Error("RecordHistory should be enabled by default")
	}
	if cfg.LoginPollInterval.Std() != 400*time.Millisecond {
		t.Errorf("LoginPollInterval = %v, want 400ms", cfg.LoginPollInterval.Std())
	}
	if cfg.EstablishTimeout.Std() != 30*time.Second {
		t.Errorf("EstablishTimeout = %v, want 30s", cfg.EstablishTimeout.Std())
	}
	if cfg.MonitorInterval.Std() != 1*time.Second {
		t.Errorf("MonitorInterval = %v, want 1s", cfg.MonitorInterval.Std())
	}
	if cfg.CookieMaxAge.Std() != 8*time.Hour {
		t.Errorf("CookieMaxAge = %v, want 8h", cfg.CookieMaxAge.Std())
	}
	if cfg.MaxRelogin != 1 {
		t.Errorf("MaxRelogin = %v, want 1", cfg.MaxRelogin)
	}
}

func TestLoad_CreatesDefaultFile(t *testing.T) {
	path := useTempConfig(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !common.FileExists(path) {
		t.Error("Load() should create a default config file")
	}
	if cfg.LoginMode != "auto" {
		t.Errorf("fresh config LoginMode = %q, want auto", cfg.LoginMode)
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	useTempConfig(t)

	cfg := DefaultConfig()
	cfg.DefaultGateway = "campus"
	cfg.LoginMode = "visual"
	cfg.EstablishTimeout = Duration(45 * time.Second)
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.DefaultGateway != "campus" {
		t.Errorf("DefaultGateway = %q, want campus", loaded.DefaultGateway)
	}
	if loaded.LoginMode != "visual" {
		t.Errorf("LoginMode = %q, want visual", loaded.LoginMode)
	}
	if loaded.EstablishTimeout.Std() != 45*time.Second {
		t.Errorf("EstablishTimeout = %v, want 45s", loaded.EstablishTimeout.Std())
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	path := useTempConfig(t)

	content := "login_mode: auto\nnot_a_real_setting: true\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(); err == nil {
		t.Error("Load() should reject unknown configuration fields")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := useTempConfig(t)

	// A file that only sets one value must inherit defaults for the rest.
	if err := os.WriteFile(path, []byte("login_mode: manual\n"), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LoginMode != "manual" {
		t.Errorf("LoginMode = %q, want manual", cfg.LoginMode)
	}
	if cfg.LoginPollInterval.Std() != 400*time.Millisecond {
		t.Errorf("LoginPollInterval = %v, want default 400ms", cfg.LoginPollInterval.Std())
	}
	if cfg.MaxRelogin != 1 {
		t.Errorf("MaxRelogin = %v, want default 1", cfg.MaxRelogin)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	useTempConfig(t)
	t.Setenv("CAMPUSVPN_URL", "https://vpn.other.edu")
	t.Setenv("CAMPUSVPN_BROWSER", "/usr/bin/chromium")
	t.Setenv("CAMPUSVPN_LOGIN_MODE", "manual")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.GatewayURL != "https://vpn.other.edu" {
		t.Errorf("GatewayURL = %q, want env override", cfg.GatewayURL)
	}
	if cfg.Browser != "/usr/bin/chromium" {
		t.Errorf("Browser = %q, want env override", cfg.Browser)
	}
	if cfg.Mode() != common.ModeManual {
		t.Errorf("Mode() = %v, want manual from env", cfg.Mode())
	}
}

func TestValidate_FallsBackOnBadValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoginMode = "teleport"
	cfg.LogLevel = "shout"
	cfg.LoginPollInterval = Duration(-1 * time.Second)
	cfg.MaxRelogin = -3

	if err := cfg.validate(); err != nil {
		t.Fatalf("validate() error = %v", err)
	}

	if cfg.LoginMode != "auto" {
		t.Errorf("bad login mode should fall back to auto, got %q", cfg.LoginMode)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("bad log level should fall back to info, got %q", cfg.LogLevel)
	}
	if cfg.LoginPollInterval.Std() != 400*time.Millisecond {
		t.Errorf("negative poll interval should fall back, got %v", cfg.LoginPollInterval.Std())
	}
	if cfg.MaxRelogin != 1 {
		t.Errorf("negative relogin bound should fall back, got %v", cfg.MaxRelogin)
	}
}

func TestValidate_NegativeCookieMaxAgeAllowed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CookieMaxAge = Duration(-1)

	if err := cfg.validate(); err != nil {
		t.Fatalf("validate() error = %v", err)
	}

	// Negative means "never reuse a stored cookie" and must survive
	// validation instead of being reset to the default.
	if cfg.CookieMaxAge >= 0 {
		t.Errorf("negative CookieMaxAge should be preserved, got %v", cfg.CookieMaxAge.Std())
	}
}

func TestConfig_Level(t *testing.T) {
	tests := []struct {
		level    string
		expected common.LogLevel
	}{
		{"debug", common.LevelDebug},
		{"info", common.LevelInfo},
		{"warn", common.LevelWarn},
		{"error", common.LevelError},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			cfg := &Config{LogLevel: tt.level}
			if got := cfg.Level(); got != tt.expected {
				t.Errorf("Level() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestDuration_Unmarshal(t *testing.T) {
	var out struct {
		D Duration `yaml:"d"`
	}

	if err := yaml.Unmarshal([]byte("d: 750ms\n"), &out); err != nil {
		t.Fatalf("yaml.Unmarshal error = %v", err)
	}
	if out.D.Std() != 750*time.Millisecond {
		t.Errorf("unmarshalled duration = %v, want 750ms", out.D.Std())
	}

	if err := yaml.Unmarshal([]byte("d: soon\n"), &out); err == nil {
		t.Error("unmarshalling a non-duration string should fail")
	}
}

func TestDuration_Marshal(t *testing.T) {
	in := struct {
		D Duration `yaml:"d"`
	}{D: Duration(90 * time.Second)}

	data, err := yaml.Marshal(in)
	if err != nil {
		t.Fatalf("yaml.Marshal error = %v", err)
	}
	if !strings.Contains(string(data), "1m30s") {
		t.Errorf("marshalled duration = %q, want 1m30s form", string(data))
	}
}

func TestLoad_BadDurationIsError(t *testing.T) {
	path := useTempConfig(t)

	if err := os.WriteFile(path, []byte("login_timeout: whenever\n"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load()
	if err == nil {
		t.Fatal("Load() should reject an unparseable duration")
	}
	var target *yaml.TypeError
	// Either a yaml type error or our wrapped parse error is acceptable;
	// what matters is that the bad value does not load silently.
	if !errors.As(err, &target) && !strings.Contains(err.Error(), "invalid duration") {
		t.Errorf("unexpected error shape: %v", err)
	}
}
