// Package vpn supervises the external openconnect process for Campus VPN.
package vpn

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/yllada/campus-vpn/common"
)

// SupervisorConfig holds the settings for running openconnect.
type SupervisorConfig struct {
	// GatewayURL is the VPN gateway the tunnel connects to.
	GatewayURL string
	// CookieName is the session cookie name passed to openconnect.
	// Defaults to common.DefaultCookieName.
	CookieName string
	// Interface is the tunnel interface to watch. Defaults to
	// DefaultInterfaceName(). Only Linux also passes it to openconnect;
	// macOS assigns utunN itself and Windows keeps the adapter's name.
	Interface string
	// Openconnect optionally overrides the openconnect binary, either a
	// bare name resolved on PATH or a full path.
	Openconnect string
	// Escalation optionally overrides the privilege escalation tool.
	Escalation string
	// Protocol is the openconnect protocol. Defaults to "nc".
	Protocol string
	// MonitorInterval is how often the tunnel interface is polled.
	MonitorInterval time.Duration
	// Prompter collects the escalation password when sudo needs one.
	Prompter common.Prompter
}

// Supervisor runs at most one openconnect process at a time. A new tunnel
// cannot start until the previous one has been stopped and fully reaped.
type Supervisor struct {
	cfg SupervisorConfig

	mu     sync.Mutex
	tunnel *Tunnel

	// ifaceUp and procRunning are swapped out in tests.
	ifaceUp     func(string) bool
	procRunning func() bool
}

// NewSupervisor creates a supervisor with defaults filled in.
func NewSupervisor(cfg SupervisorConfig) *Supervisor {
	if cfg.CookieName == "" {
		cfg.CookieName = common.DefaultCookieName
	}
	if cfg.Interface == "" {
		cfg.Interface = DefaultInterfaceName()
	}
	if cfg.Protocol == "" {
		cfg.Protocol = "nc"
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = common.MonitorInterval
	}
	return &Supervisor{
		cfg:         cfg,
		ifaceUp:     InterfaceUp,
		procRunning: openconnectRunning,
	}
}

// Interface returns the tunnel interface name this supervisor watches.
func (s *Supervisor) Interface() string {
	return s.cfg.Interface
}

// Alive reports whether the tunnel interface is currently up. This is the
// liveness check used for adopting a connection left over from an earlier
// run; the process table is deliberately not consulted.
func (s *Supervisor) Alive() bool {
	return s.ifaceUp(s.cfg.Interface)
}

// Start spawns openconnect with the given session cookie. The returned
// handle streams tunnel events until the process has been reaped.
func (s *Supervisor) Start(ctx context.Context, cookie *common.SessionCookie) (common.TunnelHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tunnel != nil {
		return nil, common.ErrTunnelActive
	}
	if cookie == nil || cookie.Value == "" {
		return nil, common.WrapError(common.ErrSpawn, "cannot start a tunnel without a session cookie")
	}

	ocPath, err := LocateOpenconnect(s.cfg.Openconnect)
	if err != nil {
		return nil, err
	}
	esc, err := resolveEscalation(ctx, s.cfg.Escalation, s.cfg.Prompter)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, common.ErrTunnelCancelled
	}

	cookieName := cookie.Name
	if cookieName == "" {
		cookieName = s.cfg.CookieName
	}
	flagIface := s.cfg.Interface
	if runtime.GOOS != "linux" {
		// macOS assigns the next free utunN; Windows uses the TAP
		// adapter's existing name. Neither honors a requested name.
		flagIface = ""
	}
	argv := tunnelArgs(esc, ocPath, s.cfg.Protocol, flagIface, cookieName+"="+cookie.Value, s.cfg.GatewayURL)

	cmd := exec.Command(argv[0], argv[1:]...)
	if esc != nil && esc.askpass != "" {
		cmd.Env = append(os.Environ(), "SUDO_ASKPASS="+esc.askpass)
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, common.WrapError(common.ErrSpawn, fmt.Sprintf("creating stdin pipe: %v", err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, common.WrapError(common.ErrSpawn, fmt.Sprintf("creating stdout pipe: %v", err))
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, common.WrapError(common.ErrSpawn, fmt.Sprintf("creating stderr pipe: %v", err))
	}

	common.LogInfo("Starting VPN tunnel to %s (interface %s)", s.cfg.GatewayURL, s.cfg.Interface)
	if err := cmd.Start(); err != nil {
		return nil, common.WrapError(common.ErrSpawn, fmt.Sprintf("starting openconnect: %v", err))
	}
	if esc != nil && esc.password != "" {
		// sudo -S reads the password from stdin before it execs the
		// tunnel binary. The pipe stays open for later prompts.
		if _, err := io.WriteString(stdin, esc.password+"\n"); err != nil {
			common.LogDebug("Writing escalation password: %v", err)
		}
	}

	promptCtx, promptCancel := context.WithCancel(context.Background())
	t := &Tunnel{
		iface:        s.cfg.Interface,
		interval:     s.cfg.MonitorInterval,
		cmd:          cmd,
		esc:          esc,
		ifaceUp:      s.ifaceUp,
		stdin:        stdin,
		prompter:     s.cfg.Prompter,
		promptCtx:    promptCtx,
		promptCancel: promptCancel,
		events:       make(chan common.TunnelEvent, 64),
		done:         make(chan struct{}),
		watchStop:    make(chan struct{}),
		watchDone:    make(chan struct{}),
		startTime:    time.Now(),
	}
	t.readers.Add(2)
	go t.readOutput(stdout)
	go t.readOutput(stderr)
	go t.watchInterface()
	go t.waitTunnel()

	s.tunnel = t
	return t, nil
}

// Stop tears the tunnel down and reaps the process. The supervisor's slot
// is freed whatever happens, so a later Start is never blocked by a failed
// teardown; the failure is still reported to the caller.
func (s *Supervisor) Stop(ctx context.Context, handle common.TunnelHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tunnel == nil {
		return common.ErrNotConnected
	}
	t, ok := handle.(*Tunnel)
	if !ok || t != s.tunnel {
		return common.WrapError(common.ErrNotConnected, "stale tunnel handle")
	}
	defer func() { s.tunnel = nil }()

	t.mu.Lock()
	t.stopRequested = true
	exited := t.exited
	t.mu.Unlock()

	// An outstanding interactive prompt must not keep the teardown
	// waiting for an answer that will never come.
	t.promptCancel()

	if !exited {
		common.LogInfo("Stopping VPN tunnel")
		terminate(t)
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return common.WrapError(common.ErrTeardown, "teardown interrupted")
	case <-time.After(common.TeardownGracePeriod):
		common.LogWarn("openconnect did not exit in time, force killing")
		forceKill(t)
		select {
		case <-t.done:
		case <-ctx.Done():
			return common.WrapError(common.ErrTeardown, "teardown interrupted")
		case <-time.After(2 * time.Second):
			return common.WrapError(common.ErrTeardown, "openconnect did not exit")
		}
	}

	// The direct child is reaped; an elevated openconnect may still be
	// detaching. Give it a moment before declaring the teardown failed.
	if s.procRunning() {
		time.Sleep(500 * time.Millisecond)
		if s.procRunning() {
			return common.WrapError(common.ErrTeardown, "an openconnect process is still running")
		}
	}
	common.LogInfo("VPN tunnel stopped")
	return nil
}

// KillStrays terminates openconnect processes left over from an earlier
// run. It is used when a live tunnel was adopted at startup and the user
// asks to disconnect: there is no handle, only a process and an interface.
func (s *Supervisor) KillStrays(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tunnel != nil {
		return common.ErrTunnelActive
	}
	if !s.procRunning() && !s.ifaceUp(s.cfg.Interface) {
		return nil
	}

	esc, err := resolveEscalation(ctx, s.cfg.Escalation, s.cfg.Prompter)
	if err != nil {
		return err
	}
	common.LogInfo("Terminating leftover openconnect process")
	signalStrays(esc, false)

	deadline := time.Now().Add(common.TeardownGracePeriod)
	for time.Now().Before(deadline) {
		if !s.procRunning() {
			return nil
		}
		select {
		case <-ctx.Done():
			return common.ErrTunnelCancelled
		case <-time.After(200 * time.Millisecond):
		}
	}

	signalStrays(esc, true)
	time.Sleep(500 * time.Millisecond)
	if s.procRunning() {
		return common.WrapError(common.ErrTeardown, "an openconnect process is still running")
	}
	return nil
}

// tunnelArgs builds the full argv for the openconnect invocation, including
// the escalation wrapper. An empty iface omits the --interface flag.
func tunnelArgs(esc *escalation, openconnect, protocol, iface, cookie, gateway string) []string {
	var argv []string
	if esc != nil {
		argv = append(argv, esc.path)
		if esc.askpass != "" {
			argv = append(argv, "-A")
		} else if esc.password != "" {
			// An empty -p suppresses sudo's prompt text, which the
			// output relay would otherwise treat as a fresh prompt.
			argv = append(argv, "-S", "-p", "")
		}
	}
	argv = append(argv, openconnect, "--protocol", protocol)
	if iface != "" {
		argv = append(argv, "--interface", iface)
	}
	argv = append(argv, "-C", cookie, gateway)
	return argv
}

// rejectionMarkers are openconnect output lines that mean the gateway
// refused the session cookie, as opposed to the tunnel failing for some
// other reason. Matched case-insensitively.
var rejectionMarkers = []string{
	"cookie was rejected",
	"cookie is not valid",
	"login failed",
	"failed to obtain webvpn cookie",
	"session authentication failed",
}

// isRejectionLine reports whether an output line indicates the gateway
// rejected the session cookie.
func isRejectionLine(line string) bool {
	lower := strings.ToLower(line)
	for _, marker := range rejectionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// promptMarkers are substrings of colon-terminated output lines that mean
// the process stopped to ask for input on stdin. Matched case-insensitively.
var promptMarkers = []string{
	"password",
	"passcode",
	"response",
	"challenge",
	"verification code",
}

// isPromptLine reports whether an output line is an interactive request
// for input rather than plain logging.
func isPromptLine(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasSuffix(trimmed, ":") {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, marker := range promptMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// scanPrompts is a bufio.SplitFunc like bufio.ScanLines that also flushes
// a buffered fragment recognized as an interactive prompt. Prompts are
// written without a trailing newline and would otherwise sit invisible in
// the scanner until the process exits.
func scanPrompts(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, dropCR(data[:i]), nil
	}
	if atEOF {
		return len(data), dropCR(data), nil
	}
	if isPromptLine(string(data)) {
		return len(data), dropCR(data), nil
	}
	return 0, nil, nil
}

func dropCR(data []byte) []byte {
	if len(data) > 0 && data[len(data)-1] == '\r' {
		return data[:len(data)-1]
	}
	return data
}

// Tunnel is one running openconnect process. It implements
// common.TunnelHandle.
type Tunnel struct {
	iface    string
	interval time.Duration
	cmd      *exec.Cmd
	esc      *escalation
	ifaceUp  func(string) bool

	// stdin stays open for the lifetime of the process so interactive
	// prompts (escalation password, MFA challenges) can be answered.
	stdin        io.Writer
	prompter     common.Prompter
	promptCtx    context.Context
	promptCancel context.CancelFunc

	events    chan common.TunnelEvent
	done      chan struct{} // closed once the process is reaped and events is closed
	watchStop chan struct{}
	watchDone chan struct{}
	readers   sync.WaitGroup
	startTime time.Time

	mu            sync.Mutex
	wasUp         bool
	rejectedSeen  bool
	stopRequested bool
	exited        bool
	exitCode      int
	promptBusy    bool
}

// Events streams lifecycle observations from the tunnel. The channel is
// closed after the final TunnelExited event; consumers must drain it.
func (t *Tunnel) Events() <-chan common.TunnelEvent {
	return t.events
}

// InterfaceName returns the network interface this tunnel is watched on.
func (t *Tunnel) InterfaceName() string {
	return t.iface
}

// readOutput streams one of the process pipes, scanning each line for
// rejection and prompt markers before forwarding it as a log event.
func (t *Tunnel) readOutput(r io.Reader) {
	defer t.readers.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	scanner.Split(scanPrompts)
	for scanner.Scan() {
		line := scanner.Text()
		common.LogDebug("openconnect: %s", line)
		if isRejectionLine(line) {
			t.mu.Lock()
			t.rejectedSeen = true
			t.mu.Unlock()
			common.LogWarn("Gateway rejected the session cookie")
		}
		if isPromptLine(line) {
			t.relayPrompt(line)
		}
		t.emitLog(line)
	}
}

// relayPrompt forwards an interactive prompt to the prompter and writes the
// answer back to the process. The ask happens on its own goroutine so the
// pipe reader never blocks on the user; writes to stdin stay suspended until
// the response or a cancellation arrives. Only one prompt can be outstanding
// at a time, which matches a process that stopped to read stdin.
func (t *Tunnel) relayPrompt(line string) {
	t.mu.Lock()
	if t.prompter == nil || t.stdin == nil || t.exited || t.promptBusy {
		t.mu.Unlock()
		return
	}
	t.promptBusy = true
	t.mu.Unlock()

	text := strings.TrimSpace(line)
	go func() {
		defer func() {
			t.mu.Lock()
			t.promptBusy = false
			t.mu.Unlock()
		}()
		answer, err := t.prompter.AskSecret(t.promptCtx, text)
		if err != nil {
			common.LogDebug("Prompt %q not answered: %v", text, err)
			return
		}
		if _, err := io.WriteString(t.stdin, answer+"\n"); err != nil {
			common.LogWarn("Writing prompt response: %v", err)
		}
	}()
}

// watchInterface polls the tunnel interface and reports up/down
// transitions. Process liveness is never used here: the escalation wrapper
// can outlive or predecease the elevated openconnect, but the interface
// cannot exist without a working tunnel.
func (t *Tunnel) watchInterface() {
	defer close(t.watchDone)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.watchStop:
			return
		case <-ticker.C:
		}
		up := t.ifaceUp(t.iface)
		t.mu.Lock()
		was := t.wasUp
		t.wasUp = up
		stopped := t.stopRequested
		t.mu.Unlock()
		if up && !was {
			common.LogInfo("Tunnel interface %s is up", t.iface)
			t.emit(common.TunnelEvent{Kind: common.TunnelUp})
		}
		if !up && was && !stopped {
			// During a requested stop the interface going away is
			// expected; only the exit event matters then.
			common.LogWarn("Tunnel interface %s went down", t.iface)
			t.emit(common.TunnelEvent{Kind: common.TunnelDown})
		}
	}
}

// waitTunnel reaps the process once the output pipes are drained, stops the
// interface watcher, and emits the final TunnelExited event.
func (t *Tunnel) waitTunnel() {
	t.readers.Wait()
	err := t.cmd.Wait()
	close(t.watchStop)
	<-t.watchDone

	code := 0
	if err != nil {
		code = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
	}

	t.mu.Lock()
	t.exited = true
	t.exitCode = code
	rejected := t.rejectedSeen
	t.mu.Unlock()
	t.promptCancel()

	ev := common.TunnelEvent{Kind: common.TunnelExited, ExitCode: code}
	if rejected {
		ev.Err = common.ErrCredentialRejected
	}
	common.LogInfo("openconnect exited (code %d) after %s", code, time.Since(t.startTime).Round(time.Second))
	t.emit(ev)
	close(t.events)
	close(t.done)
}

// emit delivers a lifecycle event. Lifecycle events must not be lost, so
// this blocks until the consumer takes it.
func (t *Tunnel) emit(ev common.TunnelEvent) {
	t.events <- ev
}

// emitLog delivers an output line, dropping it if the consumer is slow.
func (t *Tunnel) emitLog(line string) {
	select {
	case t.events <- common.TunnelEvent{Kind: common.TunnelLog, Line: line}:
	default:
	}
}
