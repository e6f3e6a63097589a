// Package login obtains VPN session cookies by driving a browser through
// the gateway's MFA login flow.
//
// The gateway delegates authentication to Microsoft Entra ID, which means
// passwords, pushes, number matching, and one-time codes - none of which a
// plain HTTP client can answer. Instead, a real Chromium-based browser is
// launched and watched: a chain of page handlers recognizes each step of
// the flow and advances it, while the session cookie is polled for on every
// tick.
//
// # Login Modes
//
// Three modes cover the spectrum from convenience to control:
//
//   - Automatic: headless browser, handlers fill and click everything
//   - Visual: visible browser, handlers still act; the user watches and can
//     intervene
//   - Manual: visible browser, handlers disabled; the user does the whole
//     flow and only the cookie poll runs
//
// # Cookie Polling
//
// The poll does double duty. Finding the cookie ends the attempt
// successfully, and a failing poll is the earliest reliable sign that the
// user closed the browser window.
//
// # Browser Lifetime
//
// The browser profile persists between runs so the identity provider can
// remember the device and skip MFA. The browser process itself never
// outlives an attempt: Run confirms it is gone before returning, whatever
// the outcome, so a tunnel start can never race a lingering browser.
package login
