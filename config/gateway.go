// Package config provides configuration management for Campus VPN.
// This file contains the Gateway and GatewayManager types for managing
// VPN gateway profiles.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yllada/campus-vpn/common"
)

// Gateway represents one VPN gateway profile.
// It contains everything needed to log in against the gateway's identity
// provider and hand the resulting session cookie to openconnect.
type Gateway struct {
	// Name is the unique, human-readable name of the gateway.
	Name string `json:"name" yaml:"name"`
	// URL is the gateway address, e.g. "https://vpn.example.edu".
	URL string `json:"url" yaml:"url"`
	// CookieName is the session cookie the gateway sets on login success.
	// Defaults to DSID.
	CookieName string `json:"cookie_name,omitempty" yaml:"cookie_name,omitempty"`
	// CookieDomain is the domain the session cookie must belong to.
	// Defaults to the URL host.
	CookieDomain string `json:"cookie_domain,omitempty" yaml:"cookie_domain,omitempty"`
	// Interface is the tunnel interface name passed to openconnect.
	// Empty picks a platform default.
	Interface string `json:"interface,omitempty" yaml:"interface,omitempty"`
	// Protocol is the openconnect protocol for this gateway. Defaults to
	// "nc" (Pulse/Ivanti); other gateways may need "anyconnect" or "gp".
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	// Username is prefilled into the login form when set.
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	// UserAgent overrides the browser user agent for this gateway's
	// identity provider. Empty uses the global setting.
	UserAgent string `json:"user_agent,omitempty" yaml:"user_agent,omitempty"`
	// Created is the timestamp when the gateway was added.
	Created time.Time `json:"created" yaml:"created"`
	// LastUsed is the timestamp of the last connection attempt.
	LastUsed time.Time `json:"last_used,omitempty" yaml:"last_used,omitempty"`
}

// Validate checks that the gateway has all required fields and
// normalizes the derived ones.
func (g *Gateway) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return errors.New("gateway name is required")
	}

	parsed, err := url.Parse(g.URL)
	if err != nil || parsed.Host == "" {
		return fmt.Errorf("%w: bad URL %q", common.ErrInvalidGateway, g.URL)
	}
	if parsed.Scheme != "https" && parsed.Scheme != "http" {
		return fmt.Errorf("%w: URL scheme must be http or https", common.ErrInvalidGateway)
	}

	if g.CookieName == "" {
		g.CookieName = common.DefaultCookieName
	}
	if g.CookieDomain == "" {
		g.CookieDomain = parsed.Hostname()
	}

	return nil
}

// Host returns the gateway's host name.
func (g *Gateway) Host() string {
	parsed, err := url.Parse(g.URL)
	if err != nil {
		return ""
	}
	return parsed.Hostname()
}

// AdHocGateway synthesizes a gateway profile from a bare URL, for users who
// pass an address on the command line instead of configuring a profile.
func AdHocGateway(rawURL string) (*Gateway, error) {
	g := &Gateway{
		Name:    "ad-hoc",
		URL:     rawURL,
		Created: time.Now(),
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	// Key stored cookies by host so two ad-hoc gateways don't collide.
	g.Name = g.Host()
	return g, nil
}

// GatewayManager manages gateway profiles.
// It handles loading, saving, and manipulating profiles stored on disk.
type GatewayManager struct {
	gateways   []*Gateway
	configDir  string
	configFile string
}

// NewGatewayManager creates a new GatewayManager instance.
// It initializes the configuration directory and loads existing gateways.
func NewGatewayManager() (*GatewayManager, error) {
	configDir, err := common.GetConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	gm := &GatewayManager{
		gateways:   make([]*Gateway, 0),
		configDir:  configDir,
		configFile: filepath.Join(configDir, common.GatewaysFileName),
	}

	// Load existing gateways
	if err := gm.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load gateways: %w", err)
	}

	return gm, nil
}

// Load loads gateways from the configuration file.
// Returns nil if the file doesn't exist (no gateways yet).
func (gm *GatewayManager) Load() error {
	data, err := os.ReadFile(gm.configFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read gateways file: %w", err)
	}

	if err := yaml.Unmarshal(data, &gm.gateways); err != nil {
		return fmt.Errorf("failed to parse gateways file: %w", err)
	}

	return nil
}

// Save persists gateways to the configuration file.
func (gm *GatewayManager) Save() error {
	data, err := yaml.Marshal(&gm.gateways)
	if err != nil {
		return fmt.Errorf("failed to serialize gateways: %w", err)
	}

	if err := os.WriteFile(gm.configFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write gateways file: %w", err)
	}

	return nil
}

// Add adds a new gateway to the manager.
func (gm *GatewayManager) Add(gateway *Gateway) error {
	if err := gateway.Validate(); err != nil {
		return err
	}

	for _, g := range gm.gateways {
		if strings.EqualFold(g.Name, gateway.Name) {
			return common.ErrGatewayExists
		}
	}

	gateway.Created = time.Now()
	gm.gateways = append(gm.gateways, gateway)

	return gm.Save()
}

// Remove removes a gateway by name.
func (gm *GatewayManager) Remove(name string) error {
	for i, g := range gm.gateways {
		if strings.EqualFold(g.Name, name) {
			gm.gateways = append(gm.gateways[:i], gm.gateways[i+1:]...)
			return gm.Save()
		}
	}
	return common.ErrGatewayNotFound
}

// Get retrieves a gateway by name (case-insensitive).
func (gm *GatewayManager) Get(name string) (*Gateway, error) {
	for _, g := range gm.gateways {
		if strings.EqualFold(g.Name, name) {
			return g, nil
		}
	}
	return nil, common.ErrGatewayNotFound
}

// List returns all gateways.
func (gm *GatewayManager) List() []*Gateway {
	return gm.gateways
}

// Update updates an existing gateway.
func (gm *GatewayManager) Update(gateway *Gateway) error {
	if err := gateway.Validate(); err != nil {
		return err
	}

	for i, g := range gm.gateways {
		if strings.EqualFold(g.Name, gateway.Name) {
			gm.gateways[i] = gateway
			return gm.Save()
		}
	}
	return common.ErrGatewayNotFound
}

// MarkUsed updates the LastUsed timestamp for a gateway.
func (gm *GatewayManager) MarkUsed(name string) error {
	gateway, err := gm.Get(name)
	if err != nil {
		return err
	}
	gateway.LastUsed = time.Now()
	return gm.Save()
}
