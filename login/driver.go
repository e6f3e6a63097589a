// Package login obtains VPN session cookies by driving a browser through
// the gateway's MFA login flow.
package login

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yllada/campus-vpn/common"
)

// DriverConfig configures login attempts against one gateway.
type DriverConfig struct {
	// GatewayURL is where the login flow starts.
	GatewayURL string
	// CookieName is the session cookie to capture. Defaults to
	// common.DefaultCookieName.
	CookieName string
	// CookieDomain restricts the capture to cookies scoped to this host.
	// Empty accepts any domain.
	CookieDomain string
	// Username pre-fills the account name form when set.
	Username string
	// Browser configures the launched browser.
	Browser BrowserConfig
	// PollInterval is how often the page is inspected. Defaults to
	// common.LoginPollInterval.
	PollInterval time.Duration
	// Timeout bounds automated attempts. Defaults to common.LoginTimeout.
	Timeout time.Duration
	// ManualTimeout bounds manual attempts, which wait on a human working
	// through the flow. Defaults to common.ManualLoginTimeout.
	ManualTimeout time.Duration
}

// Driver runs browser login attempts. It implements common.LoginDriver.
type Driver struct {
	cfg      DriverConfig
	prompter common.Prompter

	// launch is swapped out in tests.
	launch func(ctx context.Context, cfg BrowserConfig, mode common.LoginMode) (pageDriver, error)
}

// NewDriver creates a login driver. The prompter must not be nil: even
// fully automated logins may need a password or a verification code.
func NewDriver(cfg DriverConfig, prompter common.Prompter) *Driver {
	if cfg.CookieName == "" {
		cfg.CookieName = common.DefaultCookieName
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = common.LoginPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = common.LoginTimeout
	}
	if cfg.ManualTimeout <= 0 {
		cfg.ManualTimeout = common.ManualLoginTimeout
	}
	return &Driver{
		cfg:      cfg,
		prompter: prompter,
		launch: func(ctx context.Context, bc BrowserConfig, mode common.LoginMode) (pageDriver, error) {
			return LaunchBrowser(ctx, bc, mode)
		},
	}
}

// Run performs one complete login attempt. It blocks until the session
// cookie is captured, the attempt fails, or ctx is cancelled. The browser
// is confirmed terminated before Run returns, whatever the outcome.
func (d *Driver) Run(ctx context.Context, mode common.LoginMode) (cookie *common.SessionCookie, err error) {
	common.LogInfo("Starting %s login against %s", mode, d.cfg.GatewayURL)

	page, launchErr := d.launch(ctx, d.cfg.Browser, mode)
	if launchErr != nil {
		return nil, launchErr
	}
	defer func() {
		d.prompter.ClearMFA()
		if closeErr := page.Close(); closeErr != nil {
			common.LogWarn("Browser shutdown: %v", closeErr)
			if err == nil {
				// A lingering browser must not be followed by a tunnel.
				cookie = nil
				err = closeErr
			}
		}
	}()

	if navErr := page.Navigate(d.cfg.GatewayURL); navErr != nil {
		return nil, common.WrapError(common.ErrBrowserLaunchFailed, fmt.Sprintf("opening %s: %v", d.cfg.GatewayURL, navErr))
	}

	limit := d.cfg.Timeout
	if mode == common.ModeManual {
		limit = d.cfg.ManualTimeout
	}

	a := &attempt{
		page:     page,
		prompter: d.prompter,
		username: d.cfg.Username,
	}

	start := time.Now()
	lastURL := ""
	retries := 0
	resets := 0
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, common.ErrLoginCancelled
		case <-ticker.C:
		}

		// The cookie poll doubles as the browser heartbeat: a dead or
		// user-closed browser fails here first.
		c, pollErr := page.Cookie(d.cfg.CookieName, d.cfg.CookieDomain)
		if pollErr != nil {
			if ctx.Err() != nil {
				return nil, common.ErrLoginCancelled
			}
			return nil, common.WrapError(common.ErrBrowserClosed, pollErr.Error())
		}
		if c != nil {
			common.LogInfo("Captured %s session cookie", c.Name)
			return c, nil
		}

		if time.Since(start) > limit {
			return nil, common.ErrLoginTimeout
		}
		if !mode.Automated() {
			continue
		}

		loc, locErr := page.Location()
		if locErr != nil {
			if ctx.Err() != nil {
				return nil, common.ErrLoginCancelled
			}
			return nil, common.WrapError(common.ErrBrowserClosed, locErr.Error())
		}
		if loc != lastURL {
			common.LogDebug("Page changed: %s", loc)
			lastURL = loc
			a.handled = nil
			retries = 0
			if a.mfaWait {
				a.mfaWait = false
				d.prompter.ClearMFA()
			}
		}

		outcome, handlerErr := runHandlerChain(ctx, a)
		if handlerErr != nil {
			if errors.Is(handlerErr, common.ErrLoginRejected) || errors.Is(handlerErr, common.ErrLoginCancelled) {
				return nil, handlerErr
			}
			// Navigation races make evals fail transiently; the next
			// tick sees the settled page.
			common.LogDebug("Handler error: %v", handlerErr)
			continue
		}
		if outcome != outcomeSkipped {
			retries = 0
			continue
		}
		if a.mfaWait {
			// Parked on an MFA approval; nothing is expected to match.
			continue
		}
		retries++
		if retries >= common.MaxHandlerRetries {
			return nil, common.ErrPageUnrecognized
		}
		if retries%common.StuckThreshold == 0 && resets < common.MaxPageResets {
			// A dead-ended flow gets sent back to the portal to start
			// over; clicks swallowed by late-rendering pages get a
			// second chance the same way.
			common.LogDebug("Page looks stuck, returning to the portal")
			if navErr := page.Navigate(d.cfg.GatewayURL); navErr != nil {
				if ctx.Err() != nil {
					return nil, common.ErrLoginCancelled
				}
				return nil, common.WrapError(common.ErrBrowserClosed, navErr.Error())
			}
			a.handled = nil
			resets++
		}
	}
}
