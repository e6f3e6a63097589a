// Package login obtains VPN session cookies by driving a browser through
// the gateway's MFA login flow.
package login

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yllada/campus-vpn/common"
)

// pageDriver is the slice of Browser the login loop needs. Tests
// substitute a scripted fake.
type pageDriver interface {
	Navigate(url string) error
	Location() (string, error)
	EvalBool(js string) (bool, error)
	EvalString(js string) (string, error)
	Cookie(name, domain string) (*common.SessionCookie, error)
	Close() error
}

// attempt carries the mutable state of one login attempt through the
// handler chain.
type attempt struct {
	page     pageDriver
	prompter common.Prompter

	// username is configured up front or prompted once per attempt.
	username string
	// password is collected for this attempt only and never stored.
	password string
	// handled lists the once-only handlers that already ran on this page.
	handled []string
	// mfaWait is set while the flow is parked on the user approving an
	// MFA challenge.
	mfaWait bool
}

// handlerOutcome describes what a page handler did on one tick.
type handlerOutcome int

const (
	// outcomeSkipped means the page did not match this handler.
	outcomeSkipped handlerOutcome = iota
	// outcomeActed means the handler advanced the flow.
	outcomeActed
	// outcomeWaiting means the handler matched and is waiting on the user.
	outcomeWaiting
)

// pageHandler recognizes one step of the login flow and advances it.
type pageHandler struct {
	// name identifies the handler in logs and in the handled set.
	name string
	// once keeps the handler from re-running until the page changes or
	// another handler re-arms it.
	once bool
	run  func(ctx context.Context, a *attempt) (handlerOutcome, error)
}

const (
	handlerNumberMatch = "mfa-number-match"
	handlerApprove     = "mfa-approve"
)

// loginHandlers is the handler chain, probed in order on every tick. Error
// detectors come before the forms they guard, and MFA fallbacks before the
// prompts they replace, so a tick always lands on the most specific match.
var loginHandlers = []pageHandler{
	{name: "pick-account", once: true, run: runPickAccount},
	{name: "session-conflict", once: true, run: runSessionConflict},
	{name: "invalid-username", run: runInvalidUsername},
	{name: "incorrect-password", run: runIncorrectPassword},
	{name: "mfa-denied", once: true, run: runMFADenied},
	{name: "username", once: true, run: runUsername},
	{name: "use-password-instead", once: true, run: runUsePasswordInstead},
	{name: "use-app-instead", once: true, run: runUseAppInstead},
	{name: handlerNumberMatch, once: true, run: runNumberMatch},
	{name: "password", once: true, run: runPassword},
	{name: "stay-signed-in", once: true, run: runStaySignedIn},
	{name: handlerApprove, once: true, run: runApprove},
	{name: "mfa-method-chooser", once: true, run: runMethodChooser},
	{name: "mfa-code-entry", once: true, run: runCodeEntry},
	{name: "provider-error", run: runProviderError},
}

// runHandlerChain gives each handler one look at the page, stopping at the
// first that matches.
func runHandlerChain(ctx context.Context, a *attempt) (handlerOutcome, error) {
	for _, h := range loginHandlers {
		if h.once && common.StringInSlice(h.name, a.handled) {
			continue
		}
		outcome, err := h.run(ctx, a)
		if err != nil {
			return outcomeSkipped, err
		}
		if outcome == outcomeSkipped {
			continue
		}
		if h.once {
			a.handled = append(a.handled, h.name)
		}
		return outcome, nil
	}
	return outcomeSkipped, nil
}

// runPickAccount advances the "Pick an account" tile list, preferring the
// configured username's tile.
func runPickAccount(ctx context.Context, a *attempt) (handlerOutcome, error) {
	js := fmt.Sprintf(`() => {
		const tiles = document.querySelectorAll('#tilesHolder div.table');
		if (tiles.length === 0) return false;
		const want = '%s';
		if (want) {
			for (const tile of tiles) {
				if (tile.textContent.includes(want)) { tile.click(); return true; }
			}
		}
		tiles[0].click();
		return true;
	}`, jsEscape(a.username))
	acted, err := a.page.EvalBool(js)
	if err != nil || !acted {
		return outcomeSkipped, err
	}
	common.LogDebug("Picked an account tile")
	return outcomeActed, nil
}

// runSessionConflict answers the gateway's maximum-sessions page, which
// offers to close the older session and continue.
func runSessionConflict(ctx context.Context, a *attempt) (handlerOutcome, error) {
	present, err := a.page.EvalBool(existsScript("#DSIDConfirmForm"))
	if err != nil || !present {
		return outcomeSkipped, err
	}
	if _, err := a.page.EvalBool(clickScript("#btnContinue")); err != nil {
		return outcomeSkipped, err
	}
	common.LogInfo("Closed a conflicting VPN session")
	return outcomeActed, nil
}

// runInvalidUsername fails the attempt when the identity provider cannot
// find the account.
func runInvalidUsername(ctx context.Context, a *attempt) (handlerOutcome, error) {
	text, err := a.page.EvalString(textScript("#usernameError"))
	if err != nil || text == "" {
		return outcomeSkipped, err
	}
	return outcomeSkipped, common.WrapError(common.ErrLoginRejected, text)
}

// runIncorrectPassword fails the attempt on a wrong password.
func runIncorrectPassword(ctx context.Context, a *attempt) (handlerOutcome, error) {
	text, err := a.page.EvalString(textScript("#passwordError"))
	if err != nil || text == "" {
		return outcomeSkipped, err
	}
	return outcomeSkipped, common.WrapError(common.ErrLoginRejected, text)
}

// runMFADenied notices a declined or expired push and re-arms the push
// handlers so a fresh request can go out.
func runMFADenied(ctx context.Context, a *attempt) (handlerOutcome, error) {
	present, err := a.page.EvalBool(existsScript("#idDiv_SAASDS_Title, #idDiv_SAASTO_Title"))
	if err != nil || !present {
		return outcomeSkipped, err
	}
	a.prompter.ClearMFA()
	a.mfaWait = false
	a.handled = common.RemoveFromSlice(a.handled, handlerNumberMatch)
	a.handled = common.RemoveFromSlice(a.handled, handlerApprove)
	if _, err := a.page.EvalBool(clickScript("#idA_SAASDS_Resend, #idA_SAASTO_Resend")); err != nil {
		return outcomeSkipped, err
	}
	common.LogWarn("Sign-in request was denied, sending a new one")
	return outcomeActed, nil
}

// runUsername fills the account name form. The username comes from the
// gateway config when set, otherwise the user is asked once per attempt.
func runUsername(ctx context.Context, a *attempt) (handlerOutcome, error) {
	present, err := a.page.EvalBool(existsScript("input[name='loginfmt']"))
	if err != nil || !present {
		return outcomeSkipped, err
	}
	if a.username == "" {
		username, err := a.prompter.AskText(ctx, "University username (email)")
		if err != nil {
			return outcomeSkipped, promptError(ctx, err)
		}
		a.username = strings.TrimSpace(username)
	}
	acted, err := a.page.EvalBool(fillScript("input[name='loginfmt']", a.username, "#idSIButton9"))
	if err != nil || !acted {
		return outcomeSkipped, err
	}
	common.LogInfo("Submitted username")
	return outcomeActed, nil
}

// runUsePasswordInstead leaves a failed passwordless flow through the "use
// your password" link. The link also sits under healthy push prompts, so
// it only counts when an error is showing.
func runUsePasswordInstead(ctx context.Context, a *attempt) (handlerOutcome, error) {
	js := `() => {
		const link = document.querySelector('#idA_PWD_SwitchToPassword');
		const err = document.querySelector('#idDiv_RemoteNGC_PollingDescription_Error');
		if (!link || link.offsetParent === null) return false;
		if (!err || err.textContent.trim() === '') return false;
		link.click();
		return true;
	}`
	acted, err := a.page.EvalBool(js)
	if err != nil || !acted {
		return outcomeSkipped, err
	}
	common.LogInfo("Push sign-in unavailable, falling back to password")
	return outcomeActed, nil
}

// runUseAppInstead prefers an authenticator push over typing the password
// when the account has one configured.
func runUseAppInstead(ctx context.Context, a *attempt) (handlerOutcome, error) {
	present, err := a.page.EvalBool(existsScript("#idA_PWD_SwitchToRemoteNGC"))
	if err != nil || !present {
		return outcomeSkipped, err
	}
	if _, err := a.page.EvalBool(clickScript("#idA_PWD_SwitchToRemoteNGC")); err != nil {
		return outcomeSkipped, err
	}
	common.LogInfo("Switching to authenticator app sign-in")
	return outcomeActed, nil
}

// runNumberMatch surfaces the number-matching code the user must pick in
// their authenticator app, then parks the flow until the page moves on.
func runNumberMatch(ctx context.Context, a *attempt) (handlerOutcome, error) {
	code, err := a.page.EvalString(textScript("#idRichContext_DisplaySign"))
	if err != nil || code == "" {
		return outcomeSkipped, err
	}
	common.LogInfo("Waiting for sign-in approval (code %s)", code)
	a.prompter.ShowMFACode(code)
	a.mfaWait = true
	return outcomeWaiting, nil
}

// runPassword fills the password form. The password is prompted for every
// attempt and never persisted.
func runPassword(ctx context.Context, a *attempt) (handlerOutcome, error) {
	present, err := a.page.EvalBool(existsScript("input[name='passwd']"))
	if err != nil || !present {
		return outcomeSkipped, err
	}
	if a.password == "" {
		password, err := a.prompter.AskSecret(ctx, "Password")
		if err != nil {
			return outcomeSkipped, promptError(ctx, err)
		}
		a.password = password
	}
	acted, err := a.page.EvalBool(fillScript("input[name='passwd']", a.password, "#idSIButton9"))
	if err != nil || !acted {
		return outcomeSkipped, err
	}
	common.LogInfo("Submitted password")
	return outcomeActed, nil
}

// runStaySignedIn answers "Stay signed in?" with yes and ticks the
// don't-ask-again box, so the persisted profile can skip MFA next time.
func runStaySignedIn(ctx context.Context, a *attempt) (handlerOutcome, error) {
	present, err := a.page.EvalBool(existsScript("#KmsiCheckboxField"))
	if err != nil || !present {
		return outcomeSkipped, err
	}
	js := `() => {
		const box = document.querySelector('#KmsiCheckboxField');
		if (box && !box.checked) box.click();
		const btn = document.querySelector('#idSIButton9');
		if (!btn) return false;
		btn.click();
		return true;
	}`
	acted, err := a.page.EvalBool(js)
	if err != nil || !acted {
		return outcomeSkipped, err
	}
	common.LogInfo("Confirmed stay signed in")
	return outcomeActed, nil
}

// runApprove covers the plain approve-the-push screen with no number to
// match.
func runApprove(ctx context.Context, a *attempt) (handlerOutcome, error) {
	if a.mfaWait {
		return outcomeSkipped, nil
	}
	text, err := a.page.EvalString(textScript("#idDiv_SAOTCAS_Title"))
	if err != nil {
		return outcomeSkipped, err
	}
	if !strings.Contains(strings.ToLower(text), "approve") {
		return outcomeSkipped, nil
	}
	common.LogInfo("Waiting for sign-in approval in the authenticator app")
	a.prompter.ShowMFACode("")
	a.mfaWait = true
	return outcomeWaiting, nil
}

// runMethodChooser picks the authenticator app notification from the
// verify-your-identity list.
func runMethodChooser(ctx context.Context, a *attempt) (handlerOutcome, error) {
	present, err := a.page.EvalBool(existsScript("#idDiv_SAOTCS_Title"))
	if err != nil || !present {
		return outcomeSkipped, err
	}
	js := `() => {
		const push = document.querySelector('div[data-value="PhoneAppNotification"]');
		if (push) { push.click(); return true; }
		const first = document.querySelector('#idDiv_SAOTCS_Proofs .table');
		if (first) { first.click(); return true; }
		return false;
	}`
	acted, err := a.page.EvalBool(js)
	if err != nil || !acted {
		return outcomeSkipped, err
	}
	common.LogInfo("Chose authenticator app verification")
	return outcomeActed, nil
}

// runCodeEntry fills a one-time verification code from the authenticator
// app.
func runCodeEntry(ctx context.Context, a *attempt) (handlerOutcome, error) {
	present, err := a.page.EvalBool(existsScript("input[name='otc']"))
	if err != nil || !present {
		return outcomeSkipped, err
	}
	code, err := a.prompter.AskText(ctx, "Verification code")
	if err != nil {
		return outcomeSkipped, promptError(ctx, err)
	}
	acted, err := a.page.EvalBool(fillScript("input[name='otc']", strings.TrimSpace(code), "#idSubmit_SAOTCC_Continue, #idSIButton9"))
	if err != nil || !acted {
		return outcomeSkipped, err
	}
	common.LogInfo("Submitted verification code")
	return outcomeActed, nil
}

// runProviderError turns a terminal identity provider error page into a
// failed attempt instead of waiting out the clock.
func runProviderError(ctx context.Context, a *attempt) (handlerOutcome, error) {
	text, err := a.page.EvalString(textScript("#service_exception_message, #errorDetails"))
	if err != nil || text == "" {
		return outcomeSkipped, err
	}
	return outcomeSkipped, common.WrapError(common.ErrLoginRejected, text)
}

// promptError normalizes a failed credential prompt. A cancelled context
// means the user aborted the login; anything else still ends the attempt,
// since the flow cannot continue without the answer.
func promptError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, common.ErrLoginCancelled) {
		return common.ErrLoginCancelled
	}
	return common.WrapError(common.ErrLoginCancelled, err.Error())
}

// jsEscape makes s safe inside a single-quoted JS string literal.
func jsEscape(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`'`, `\'`,
		"\n", `\n`,
		"\r", `\r`,
	)
	return replacer.Replace(s)
}

// existsScript returns JS reporting whether selector matches a visible
// element. Visibility matters: the identity provider keeps inactive form
// fields in the DOM with display none.
func existsScript(selector string) string {
	return fmt.Sprintf(`() => {
		const el = document.querySelector('%s');
		return !!(el && el.offsetParent !== null);
	}`, jsEscape(selector))
}

// textScript returns JS yielding the trimmed text of selector, or an empty
// string when it does not match.
func textScript(selector string) string {
	return fmt.Sprintf(`() => {
		const el = document.querySelector('%s');
		return el ? el.textContent.trim() : '';
	}`, jsEscape(selector))
}

// clickScript returns JS clicking the first match of selector.
func clickScript(selector string) string {
	return fmt.Sprintf(`() => {
		const el = document.querySelector('%s');
		if (!el) return false;
		el.click();
		return true;
	}`, jsEscape(selector))
}

// fillScript returns JS typing value into selector and clicking the submit
// button a moment later. The delay lets the page's validation see the
// input events before the click lands.
func fillScript(selector, value, submit string) string {
	return fmt.Sprintf(`() => {
		const el = document.querySelector('%s');
		if (!el || el.offsetParent === null) return false;
		el.focus();
		el.value = '%s';
		el.dispatchEvent(new Event('input', { bubbles: true }));
		el.dispatchEvent(new Event('change', { bubbles: true }));
		setTimeout(() => {
			const btn = document.querySelector('%s');
			if (btn) btn.click();
		}, 250);
		return true;
	}`, jsEscape(selector), jsEscape(value), jsEscape(submit))
}
