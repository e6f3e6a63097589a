// Package session contains the coordinator that turns browser login and
// tunnel supervision into one race-free connection lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yllada/campus-vpn/common"
)

const (
	// subscriberBuffer is the event backlog each subscriber may accumulate
	// before transitions are dropped for it.
	subscriberBuffer = 32
	// lineBuffer is the openconnect output backlog kept for display.
	lineBuffer = 128
)

// Config carries the policy knobs of the coordinator.
type Config struct {
	// Gateway is the storage key for cookies, normally the gateway name.
	Gateway string
	// Mode selects how the browser login runs.
	Mode common.LoginMode
	// CookieMaxAge bounds how old a stored cookie may be before it is
	// ignored and a fresh login runs instead. Zero means the default;
	// a negative value disables reuse entirely.
	CookieMaxAge time.Duration
	// EstablishTimeout bounds the wait for the tunnel interface to appear
	// after openconnect starts.
	EstablishTimeout time.Duration
	// MaxRelogins caps automatic re-logins after the gateway rejects a
	// session cookie.
	MaxRelogins int
}

// Event is one state change published to subscribers.
type Event struct {
	// From is the phase the session left. On the snapshot event a new
	// subscriber receives, From equals To.
	From common.SessionState
	// To is the phase the session just entered.
	To common.SessionState
	// Failure explains a StateFailed transition and is nil otherwise.
	Failure *common.Failure
}

// operation is one in-flight request, alive from the moment it is
// accepted until the session rests again.
type operation struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Coordinator sequences login and tunnel supervision. All public methods
// are safe for concurrent use and none of them blocks on I/O; progress
// is observed through Subscribe.
type Coordinator struct {
	cfg    Config
	driver common.LoginDriver
	tunnel common.TunnelSupervisor
	store  common.CredentialStore

	lines chan string

	mu      sync.Mutex
	state   common.SessionState
	failure *common.Failure
	adopted bool
	op      *operation
	subs    map[int]chan Event
	nextSub int
}

// NewCoordinator creates a coordinator over the given collaborators.
func NewCoordinator(cfg Config, driver common.LoginDriver, tunnel common.TunnelSupervisor, store common.CredentialStore) *Coordinator {
	if cfg.CookieMaxAge == 0 {
		cfg.CookieMaxAge = common.DefaultCookieMaxAge
	}
	if cfg.EstablishTimeout <= 0 {
		cfg.EstablishTimeout = common.EstablishTimeout
	}
	if cfg.MaxRelogins <= 0 {
		cfg.MaxRelogins = common.MaxReloginAttempts
	}
	return &Coordinator{
		cfg:    cfg,
		driver: driver,
		tunnel: tunnel,
		store:  store,
		lines:  make(chan string, lineBuffer),
		state:  common.StateIdle,
		subs:   make(map[int]chan Event),
	}
}

// State returns the current state and, for StateFailed, the reason.
func (c *Coordinator) State() (common.SessionState, *common.Failure) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failure == nil {
		return c.state, nil
	}
	f := *c.failure
	return c.state, &f
}

// Subscribe registers for state changes. The current state is delivered
// first, so subscribers never start blind. Slow receivers lose events
// instead of stalling the session. The second return value removes the
// subscription.
func (c *Coordinator) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	snapshot := Event{From: c.state, To: c.state, Failure: c.failure}
	c.mu.Unlock()

	ch <- snapshot
	unsubscribe := func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
	return ch, unsubscribe
}

// Lines streams openconnect output for display. Slow readers lose lines;
// the complete stream is always in the debug log.
func (c *Coordinator) Lines() <-chan string {
	return c.lines
}

// AdoptExisting checks whether a tunnel from an earlier run of the
// application is still up and, if so, adopts it as the current
// connection. It reports whether an adoption happened.
func (c *Coordinator) AdoptExisting() bool {
	c.mu.Lock()
	busy := c.op != nil || !c.state.Resting()
	c.mu.Unlock()
	if busy || !c.tunnel.Alive() {
		return false
	}

	c.mu.Lock()
	if c.op != nil || !c.state.Resting() {
		c.mu.Unlock()
		return false
	}
	c.adopted = true
	c.mu.Unlock()

	common.LogInfo("Tunnel interface is already up, adopting the connection")
	c.transition(common.StateConnected, nil)
	return true
}

// Connect begins a connection attempt and returns immediately. It is
// accepted only while the session rests at Idle or Failed.
func (c *Coordinator) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == common.StateConnected {
		return common.ErrAlreadyConnected
	}
	if c.op != nil || !c.state.Resting() {
		return common.ErrAlreadyConnecting
	}

	ctx, cancel := context.WithCancel(context.Background())
	op := &operation{
		id:     common.GenerateID(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.op = op
	c.failure = nil
	go c.runConnect(ctx, op)
	return nil
}

// Disconnect ends the current connection or cancels the attempt in
// flight, and returns immediately. Cancelling an in-flight connect is
// not a failure: the session returns to Idle.
func (c *Coordinator) Disconnect() error {
	c.mu.Lock()
	if c.op != nil {
		op := c.op
		c.mu.Unlock()
		op.cancel()
		return nil
	}
	if c.state == common.StateConnected && c.adopted {
		// This connection predates the process; there is no handle to
		// stop, only stray processes to reap. A second Disconnect during
		// the teardown must not abort it, hence the no-op cancel.
		op := &operation{
			id:     common.GenerateID(),
			cancel: func() {},
			done:   make(chan struct{}),
		}
		c.op = op
		c.mu.Unlock()
		go c.runAdoptedDisconnect(op)
		return nil
	}
	c.mu.Unlock()
	return common.ErrNotConnected
}

// Cancel aborts the attempt in flight. Unlike Disconnect it refuses to
// touch an established connection.
func (c *Coordinator) Cancel() error {
	c.mu.Lock()
	op := c.op
	connected := c.state == common.StateConnected
	c.mu.Unlock()
	if op == nil || connected {
		return common.ErrNotConnected
	}
	op.cancel()
	return nil
}

// Wait blocks until the in-flight operation, if any, has finished.
func (c *Coordinator) Wait(ctx context.Context) error {
	c.mu.Lock()
	op := c.op
	c.mu.Unlock()
	if op == nil {
		return nil
	}
	select {
	case <-op.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runConnect owns the session for the lifetime of one operation. It is
// the only goroutine mutating session state while the operation lives.
func (c *Coordinator) runConnect(ctx context.Context, op *operation) {
	defer func() {
		c.mu.Lock()
		if c.op == op {
			c.op = nil
		}
		c.mu.Unlock()
		close(op.done)
	}()

	if c.tunnel.Alive() {
		// A tunnel from an earlier run is still up. Adopt it instead of
		// racing it for the interface.
		c.mu.Lock()
		c.adopted = true
		c.mu.Unlock()
		common.LogInfo("Tunnel interface is already up, adopting the connection")
		c.transition(common.StateConnected, nil)
		return
	}

	cookie := c.storedCookie()
	relogins := 0

	for {
		if ctx.Err() != nil {
			c.settleCancelled("Connection attempt cancelled")
			return
		}

		if cookie == nil {
			c.transition(common.StateLoggingIn, nil)
			fresh, err := c.driver.Run(ctx, c.cfg.Mode)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, common.ErrLoginCancelled) {
					c.settleCancelled("Login cancelled")
					return
				}
				c.settleFailed(err)
				return
			}
			cookie = fresh
			if err := c.store.SaveCookie(c.cfg.Gateway, cookie); err != nil {
				common.LogWarn("Could not save session cookie: %v", err)
			}
		}

		c.transition(common.StateStartingTunnel, nil)
		handle, err := c.tunnel.Start(ctx, cookie)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, common.ErrTunnelCancelled) {
				c.settleCancelled("Connection attempt cancelled")
				return
			}
			c.settleFailed(err)
			return
		}

		if c.superviseTunnel(ctx, handle) != tunnelRejected {
			return
		}

		// The gateway refused the cookie. Purge it so the next attempt
		// cannot pick it up again, then log in once more if allowed.
		if err := c.store.PurgeCookie(c.cfg.Gateway); err != nil {
			common.LogWarn("Could not purge rejected cookie: %v", err)
		}
		cookie = nil
		if relogins >= c.cfg.MaxRelogins {
			c.settleFailed(common.WrapError(common.ErrCredentialRejected, "gateway rejected a freshly obtained cookie"))
			return
		}
		relogins++
		common.LogWarn("Gateway rejected the session cookie, logging in again (attempt %d of %d)", relogins, c.cfg.MaxRelogins)
	}
}

// tunnelOutcome says how a supervised tunnel run ended.
type tunnelOutcome int

const (
	// tunnelSettled means superviseTunnel already brought the session to
	// rest at Idle or Failed.
	tunnelSettled tunnelOutcome = iota
	// tunnelRejected means the gateway refused the cookie. The handle is
	// fully reaped; the caller decides whether to log in again.
	tunnelRejected
)

// superviseTunnel watches one tunnel from spawn to rest. It returns once
// the handle is fully reaped.
func (c *Coordinator) superviseTunnel(ctx context.Context, handle common.TunnelHandle) tunnelOutcome {
	events := handle.Events()
	establish := time.NewTimer(c.cfg.EstablishTimeout)
	defer establish.Stop()
	deadline := establish.C

	connected := false
	for {
		select {
		case <-ctx.Done():
			c.transition(common.StateDisconnecting, nil)
			c.reap(handle)
			if connected {
				common.LogInfo("Disconnected")
				c.transition(common.StateIdle, nil)
			} else {
				c.settleCancelled("Connection attempt cancelled")
			}
			return tunnelSettled

		case <-deadline:
			common.LogError("Tunnel interface %s did not come up within %s", handle.InterfaceName(), c.cfg.EstablishTimeout)
			c.reap(handle)
			c.settleFailed(common.WrapError(common.ErrEstablishTimeout, fmt.Sprintf("no %s interface after %s", handle.InterfaceName(), c.cfg.EstablishTimeout)))
			return tunnelSettled

		case ev, ok := <-events:
			if !ok {
				// The stream ended without an exit event. Treat it as an
				// unexpected exit so the session cannot hang here.
				c.reap(handle)
				c.settleFailed(common.WrapError(common.ErrUnexpectedExit, "tunnel event stream ended"))
				return tunnelSettled
			}
			switch ev.Kind {
			case common.TunnelLog:
				c.publishLine(ev.Line)

			case common.TunnelUp:
				if !connected {
					connected = true
					deadline = nil
					c.transition(common.StateConnected, nil)
				}

			case common.TunnelDown:
				if !connected {
					continue
				}
				// The interface vanished while openconnect kept running:
				// the tunnel was taken down outside the application. Treat
				// it as a clean disconnect rather than a failure.
				common.LogInfo("Tunnel interface went away, disconnecting")
				c.transition(common.StateDisconnecting, nil)
				c.reap(handle)
				c.transition(common.StateIdle, nil)
				return tunnelSettled

			case common.TunnelExited:
				c.reap(handle)
				if errors.Is(ev.Err, common.ErrCredentialRejected) {
					return tunnelRejected
				}
				if ctx.Err() != nil {
					c.settleCancelled("Connection attempt cancelled")
					return tunnelSettled
				}
				detail := fmt.Sprintf("openconnect exited with code %d", ev.ExitCode)
				if !connected {
					detail += " before the tunnel came up"
				}
				c.settleFailed(common.WrapError(common.ErrUnexpectedExit, detail))
				return tunnelSettled
			}
		}
	}
}

// runAdoptedDisconnect tears down a connection this process never
// started. There is no handle to stop, only stray processes to reap.
func (c *Coordinator) runAdoptedDisconnect(op *operation) {
	defer func() {
		c.mu.Lock()
		if c.op == op {
			c.op = nil
		}
		c.mu.Unlock()
		close(op.done)
	}()

	c.transition(common.StateDisconnecting, nil)
	if err := c.tunnel.KillStrays(context.Background()); err != nil {
		common.LogWarn("Adopted tunnel teardown: %v", err)
	}
	common.LogInfo("Disconnected")
	c.transition(common.StateIdle, nil)
}

// reap stops the tunnel and waits for the supervisor to release the
// process. The event stream is drained concurrently because the
// supervisor delivers its final events before closing the stream, and
// nobody else is reading it anymore.
func (c *Coordinator) reap(handle common.TunnelHandle) {
	drained := make(chan struct{})
	go func() {
		for ev := range handle.Events() {
			if ev.Kind == common.TunnelLog {
				c.publishLine(ev.Line)
			}
		}
		close(drained)
	}()
	if err := c.tunnel.Stop(context.Background(), handle); err != nil {
		// Teardown trouble is reported, not fatal: the session still
		// comes to rest and the operator sees the warning.
		common.LogWarn("Tunnel teardown: %v", err)
	}
	<-drained
}

// storedCookie returns the persisted cookie when it is fresh enough to
// try against the gateway.
func (c *Coordinator) storedCookie() *common.SessionCookie {
	cookie, err := c.store.LoadCookie(c.cfg.Gateway)
	if err != nil {
		if !errors.Is(err, common.ErrCookieNotFound) {
			common.LogWarn("Could not load stored cookie: %v", err)
		}
		return nil
	}
	if !cookie.Fresh(c.cfg.CookieMaxAge) {
		common.LogDebug("Stored cookie is stale, a fresh login is required")
		return nil
	}
	common.LogInfo("Reusing stored session cookie %s", cookie.Redacted())
	return cookie
}

// settleCancelled brings the session to rest after a cancelled attempt.
// Cancellation is not a failure: the state returns to Idle.
func (c *Coordinator) settleCancelled(detail string) {
	common.LogInfo("%s", detail)
	c.transition(common.StateIdle, nil)
}

// settleFailed records the failure and brings the session to rest.
func (c *Coordinator) settleFailed(err error) {
	failure := common.ClassifyFailure(err)
	common.LogError("Connection failed: %v", err)
	c.transition(common.StateFailed, &failure)
}

// transition publishes a state change. It is only called from the
// goroutine owning the current operation, so states never interleave.
func (c *Coordinator) transition(state common.SessionState, failure *common.Failure) {
	c.mu.Lock()
	from := c.state
	c.state = state
	c.failure = failure
	if state != common.StateConnected {
		c.adopted = false
	}
	subs := make([]chan Event, 0, len(c.subs))
	for _, ch := range c.subs {
		subs = append(subs, ch)
	}
	c.mu.Unlock()

	common.LogDebug("Session state: %s", state)
	ev := Event{From: from, To: state, Failure: failure}
	for _, ch := range subs {
		select {
		case ch <- ev:
		default:
			// A slow subscriber loses events rather than stalling the
			// session.
		}
	}
}

// publishLine offers one line of openconnect output to the display
// stream without ever blocking the supervision loop.
func (c *Coordinator) publishLine(line string) {
	if line == "" {
		return
	}
	select {
	case c.lines <- line:
	default:
	}
}
