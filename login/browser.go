// Package login obtains VPN session cookies by driving a browser through
// the gateway's MFA login flow.
package login

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/yllada/campus-vpn/common"
)

// BrowserConfig holds the settings for launching the login browser.
type BrowserConfig struct {
	// Binary optionally overrides the browser executable. When empty, an
	// installed Chromium-based browser is located automatically.
	Binary string
	// UserAgent optionally overrides the browser's user agent.
	UserAgent string
	// ProfileDir is the persistent browser profile. Reusing it lets the
	// identity provider remember the device and skip MFA on later logins.
	ProfileDir string
}

// Browser is one launched Chromium instance and the page that runs the
// login flow. It implements pageDriver.
type Browser struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	pid      int
}

// LaunchBrowser starts a browser for one login attempt. Headless or
// visible follows the login mode.
func LaunchBrowser(ctx context.Context, cfg BrowserConfig, mode common.LoginMode) (*Browser, error) {
	bin := cfg.Binary
	if bin == "" {
		found, has := launcher.LookPath()
		if !has {
			return nil, common.WrapError(common.ErrBrowserLaunchFailed, "no chromium-based browser found (install chromium, google chrome, or edge)")
		}
		bin = found
	}

	l := launcher.New().
		Bin(bin).
		Headless(mode.Headless()).
		Leakless(true).
		Set("window-size", "800,800").
		Set("disable-blink-features", "AutomationControlled")
	if cfg.ProfileDir != "" {
		l = l.UserDataDir(cfg.ProfileDir)
	}
	if cfg.UserAgent != "" {
		l = l.Set("user-agent", cfg.UserAgent)
	}
	if os.Geteuid() == 0 {
		// Chromium refuses to sandbox as root.
		l = l.Set("no-sandbox")
	}

	common.LogDebug("Launching browser %s (headless=%v)", bin, mode.Headless())
	controlURL, err := l.Launch()
	if err != nil {
		return nil, common.WrapError(common.ErrBrowserLaunchFailed, fmt.Sprintf("launching %s: %v", bin, err))
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx).NoDefaultDevice()
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, common.WrapError(common.ErrBrowserLaunchFailed, fmt.Sprintf("connecting to browser: %v", err))
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, common.WrapError(common.ErrBrowserLaunchFailed, fmt.Sprintf("opening page: %v", err))
	}

	return &Browser{launcher: l, browser: browser, page: page, pid: l.PID()}, nil
}

// Navigate opens url in the login page.
func (b *Browser) Navigate(url string) error {
	return b.page.Navigate(url)
}

// Location returns the current page URL.
func (b *Browser) Location() (string, error) {
	info, err := b.page.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

// EvalBool runs a JS function on the page and returns its boolean result.
func (b *Browser) EvalBool(js string) (bool, error) {
	obj, err := b.page.Eval(js)
	if err != nil {
		return false, err
	}
	return obj.Value.Bool(), nil
}

// EvalString runs a JS function on the page and returns its string result.
func (b *Browser) EvalString(js string) (string, error) {
	obj, err := b.page.Eval(js)
	if err != nil {
		return "", err
	}
	return obj.Value.Str(), nil
}

// Cookie returns the named session cookie once the login flow has produced
// it. A nil cookie with a nil error means not yet; an error means the
// browser itself is gone.
func (b *Browser) Cookie(name, domain string) (*common.SessionCookie, error) {
	cookies, err := b.browser.GetCookies()
	if err != nil {
		return nil, err
	}
	for _, c := range cookies {
		if c.Name != name || c.Value == "" {
			continue
		}
		if !cookieDomainMatches(c.Domain, domain) {
			continue
		}
		return &common.SessionCookie{
			Name:       c.Name,
			Value:      c.Value,
			Domain:     c.Domain,
			ObtainedAt: time.Now(),
		}, nil
	}
	return nil, nil
}

// cookieDomainMatches reports whether a cookie scoped to cookieDomain
// belongs to host. An empty host accepts any domain.
func cookieDomainMatches(cookieDomain, host string) bool {
	if host == "" || cookieDomain == "" {
		return true
	}
	domain := strings.TrimPrefix(cookieDomain, ".")
	return strings.EqualFold(domain, host) || strings.HasSuffix(strings.ToLower(host), "."+strings.ToLower(domain))
}

// Close shuts the browser down and waits until the process is gone. The
// tunnel must never start while a browser still holds the session, so this
// only returns cleanly once the process has actually exited.
func (b *Browser) Close() error {
	if err := b.browser.Close(); err != nil {
		common.LogDebug("Browser close: %v", err)
	}
	b.launcher.Kill()

	deadline := time.Now().Add(common.BrowserShutdownTimeout)
	for processAlive(b.pid) {
		if time.Now().After(deadline) {
			return fmt.Errorf("browser process %d still running after %s", b.pid, common.BrowserShutdownTimeout)
		}
		time.Sleep(50 * time.Millisecond)
	}
	common.LogDebug("Browser terminated")
	return nil
}

// processAlive reports whether pid is still running. On Unix the zero
// signal probes without touching the process; on Windows FindProcess alone
// fails once the process is gone.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return proc.Signal(syscall.Signal(0)) == nil
}
