// Package notify pushes desktop notifications for connection events so the
// user learns about drops and failures without watching the terminal.
package notify

import (
	"context"

	"github.com/yllada/campus-vpn/common"
	"github.com/yllada/campus-vpn/session"
)

// Urgency mirrors the freedesktop notification urgency levels.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Notifier turns coordinator state changes into desktop notifications.
// Delivery failures are logged and swallowed; a missing notification daemon
// must never affect the session.
type Notifier struct {
	gateway string

	// send is swapped out in tests.
	send func(summary, body, icon string, urgency Urgency) error

	sawUp bool
}

// NewNotifier creates a notifier for sessions against the given gateway.
func NewNotifier(gateway string) *Notifier {
	return &Notifier{gateway: gateway, send: sendDesktop}
}

// Run consumes coordinator events until the channel closes or ctx is
// cancelled.
func (n *Notifier) Run(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			n.Observe(ev)
		}
	}
}

// Observe reacts to a single state change. Connecting states are deliberately
// quiet; only outcomes the user may have walked away from get a popup.
func (n *Notifier) Observe(ev session.Event) {
	if ev.From == ev.To {
		return
	}
	switch ev.To {
	case common.StateConnected:
		n.sawUp = true
		n.push("VPN Connected", "Connected to "+n.gateway, "network-vpn", UrgencyLow)
	case common.StateIdle:
		if !n.sawUp {
			// A cancelled attempt is not worth a popup.
			return
		}
		n.sawUp = false
		n.push("VPN Disconnected", "Disconnected from "+n.gateway, "network-vpn-disconnected", UrgencyNormal)
	case common.StateFailed:
		n.sawUp = false
		body := "Connection failed"
		if ev.Failure != nil {
			body = ev.Failure.String()
		}
		n.push("VPN Connection Failed", body, "network-vpn-error", UrgencyCritical)
	}
}

func (n *Notifier) push(summary, body, icon string, urgency Urgency) {
	if err := n.send(summary, body, icon, urgency); err != nil {
		common.LogDebug("Desktop notification: %v", err)
	}
}
