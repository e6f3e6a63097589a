package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yllada/campus-vpn/common"
	"github.com/yllada/campus-vpn/session"
)

// Recorder turns coordinator state changes into session rows. Recording
// failures are logged and swallowed: history must never get in the way of
// the session itself.
type Recorder struct {
	store   *Store
	gateway string

	mu      sync.Mutex
	current string
	sawUp   bool
}

// NewRecorder creates a recorder writing sessions against the given gateway.
func NewRecorder(store *Store, gateway string) *Recorder {
	return &Recorder{store: store, gateway: gateway}
}

// Run consumes coordinator events until the channel closes or ctx is
// cancelled, closing any open row on the way out.
func (r *Recorder) Run(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			r.finish(ctx, "interrupted", "")
			return
		case ev, ok := <-events:
			if !ok {
				r.finish(context.Background(), "interrupted", "")
				return
			}
			r.Observe(ev)
		}
	}
}

// Observe records a single state change.
func (r *Recorder) Observe(ev session.Event) {
	if ev.From == ev.To {
		// Subscription snapshot, not a transition.
		return
	}
	ctx := context.Background()
	now := time.Now()

	switch ev.To {
	case common.StateLoggingIn, common.StateStartingTunnel:
		r.begin(ctx, now)
	case common.StateConnected:
		r.begin(ctx, now)
		r.markConnected(ctx, now)
	case common.StateIdle:
		r.mu.Lock()
		sawUp := r.sawUp
		r.mu.Unlock()
		outcome := "cancelled"
		if sawUp {
			outcome = "disconnected"
		}
		r.finish(ctx, outcome, "")
	case common.StateFailed:
		outcome, detail := "failed", ""
		if ev.Failure != nil {
			outcome = string(ev.Failure.Code)
			detail = ev.Failure.Detail
		}
		r.finish(ctx, outcome, detail)
	}
}

func (r *Recorder) begin(ctx context.Context, at time.Time) {
	r.mu.Lock()
	if r.current != "" {
		r.mu.Unlock()
		return
	}
	id := uuid.NewString()
	r.current = id
	r.sawUp = false
	r.mu.Unlock()

	if err := r.store.Begin(ctx, id, r.gateway, at); err != nil {
		common.LogWarn("Recording session start: %v", err)
	}
}

func (r *Recorder) markConnected(ctx context.Context, at time.Time) {
	r.mu.Lock()
	id := r.current
	already := r.sawUp
	r.sawUp = true
	r.mu.Unlock()
	if id == "" || already {
		return
	}
	if err := r.store.MarkConnected(ctx, id, at); err != nil {
		common.LogWarn("Recording tunnel up: %v", err)
	}
}

func (r *Recorder) finish(ctx context.Context, outcome, detail string) {
	r.mu.Lock()
	id := r.current
	r.current = ""
	r.sawUp = false
	r.mu.Unlock()
	if id == "" {
		return
	}
	if err := r.store.Finish(ctx, id, outcome, detail, time.Now()); err != nil {
		common.LogWarn("Recording session end: %v", err)
	}
}
