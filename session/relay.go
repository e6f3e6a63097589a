// Package session contains the coordinator that turns browser login and
// tunnel supervision into one race-free connection lifecycle.
package session

import (
	"context"
	"sync"

	"github.com/yllada/campus-vpn/common"
)

// promptBuffer bounds how many prompts and MFA codes may queue up before
// the producing side blocks or drops.
const promptBuffer = 4

// PromptRelay is a Prompter that forwards interactive requests to an
// attached user interface instead of answering them itself. The UI
// receives each CredentialPrompt from Prompts and answers it through
// Respond (or the prompt object directly); the component blocked on the
// answer resumes as soon as it lands.
type PromptRelay struct {
	prompts chan *common.CredentialPrompt
	mfa     chan string

	mu      sync.Mutex
	pending *common.CredentialPrompt
}

// NewPromptRelay creates a relay with no interface attached yet.
// Prompts asked before a consumer appears wait until one does or their
// context ends.
func NewPromptRelay() *PromptRelay {
	return &PromptRelay{
		prompts: make(chan *common.CredentialPrompt, promptBuffer),
		mfa:     make(chan string, promptBuffer),
	}
}

// Prompts delivers each credential request exactly once.
func (r *PromptRelay) Prompts() <-chan *common.CredentialPrompt {
	return r.prompts
}

// MFA delivers number-matching codes to display. An empty string means
// the challenge is over and the display should clear.
func (r *PromptRelay) MFA() <-chan string {
	return r.mfa
}

// AskText prompts for a visible value such as a username.
func (r *PromptRelay) AskText(ctx context.Context, prompt string) (string, error) {
	return r.ask(ctx, prompt, false)
}

// AskSecret prompts for a hidden value such as a password.
func (r *PromptRelay) AskSecret(ctx context.Context, prompt string) (string, error) {
	return r.ask(ctx, prompt, true)
}

func (r *PromptRelay) ask(ctx context.Context, text string, secret bool) (string, error) {
	p := common.NewCredentialPrompt(text, secret)
	r.mu.Lock()
	r.pending = p
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		if r.pending == p {
			r.pending = nil
		}
		r.mu.Unlock()
	}()

	select {
	case r.prompts <- p:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return p.Await(ctx)
}

// Respond answers the outstanding prompt with the given value. A
// non-empty id must match the outstanding prompt, so an answer typed for
// an already abandoned prompt cannot leak into the next one.
func (r *PromptRelay) Respond(id, value string) error {
	r.mu.Lock()
	p := r.pending
	if p == nil || (id != "" && p.ID != id) {
		r.mu.Unlock()
		return common.ErrNoPrompt
	}
	r.pending = nil
	r.mu.Unlock()
	p.Respond(value)
	return nil
}

// Dismiss abandons the outstanding prompt, if any. The component waiting
// on it receives a cancellation.
func (r *PromptRelay) Dismiss() {
	r.mu.Lock()
	p := r.pending
	r.pending = nil
	r.mu.Unlock()
	if p != nil {
		p.Dismiss()
	}
}

// ShowMFACode surfaces the number-matching code the user must confirm in
// their authenticator app.
func (r *PromptRelay) ShowMFACode(code string) {
	select {
	case r.mfa <- code:
	default:
	}
}

// ClearMFA reports that the MFA challenge is no longer pending.
func (r *PromptRelay) ClearMFA() {
	select {
	case r.mfa <- "":
	default:
	}
}
