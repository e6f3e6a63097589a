package vpn

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/yllada/campus-vpn/common"
)

func testSupervisor() *Supervisor {
	s := NewSupervisor(SupervisorConfig{
		GatewayURL: "https://vpn.example.edu",
		Interface:  "campus0",
	})
	s.ifaceUp = func(string) bool { return false }
	s.procRunning = func() bool { return false }
	return s
}

// exitedTunnel fabricates a tunnel whose process has already been reaped.
func exitedTunnel() *Tunnel {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tunnel{
		iface:        "campus0",
		promptCtx:    ctx,
		promptCancel: cancel,
		events:       make(chan common.TunnelEvent),
		done:         make(chan struct{}),
		watchStop:    make(chan struct{}),
		watchDone:    make(chan struct{}),
	}
	t.exited = true
	close(t.events)
	close(t.done)
	return t
}

func TestNewSupervisor_Defaults(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{GatewayURL: "https://vpn.example.edu"})
	if s.cfg.Protocol != "nc" {
		t.Errorf("Protocol = %q, want nc", s.cfg.Protocol)
	}
	if s.cfg.CookieName != common.DefaultCookieName {
		t.Errorf("CookieName = %q, want %q", s.cfg.CookieName, common.DefaultCookieName)
	}
	if s.cfg.Interface != DefaultInterfaceName() {
		t.Errorf("Interface = %q, want %q", s.cfg.Interface, DefaultInterfaceName())
	}
	if s.cfg.MonitorInterval != common.MonitorInterval {
		t.Errorf("MonitorInterval = %v, want %v", s.cfg.MonitorInterval, common.MonitorInterval)
	}
}

func TestTunnelArgs(t *testing.T) {
	const (
		oc  = "/usr/sbin/openconnect"
		url = "https://vpn.example.edu"
	)
	tests := []struct {
		name  string
		esc   *escalation
		iface string
		want  []string
	}{
		{
			name:  "no escalation",
			esc:   nil,
			iface: "campus0",
			want:  []string{oc, "--protocol", "nc", "--interface", "campus0", "-C", "DSID=abc", url},
		},
		{
			name:  "sudo with cached credentials",
			esc:   &escalation{path: "/usr/bin/sudo", name: "sudo"},
			iface: "campus0",
			want:  []string{"/usr/bin/sudo", oc, "--protocol", "nc", "--interface", "campus0", "-C", "DSID=abc", url},
		},
		{
			name:  "sudo with askpass",
			esc:   &escalation{path: "/usr/bin/sudo", name: "sudo", askpass: "/usr/bin/ssh-askpass"},
			iface: "campus0",
			want:  []string{"/usr/bin/sudo", "-A", oc, "--protocol", "nc", "--interface", "campus0", "-C", "DSID=abc", url},
		},
		{
			name:  "sudo with password over stdin",
			esc:   &escalation{path: "/usr/bin/sudo", name: "sudo", password: "hunter2"},
			iface: "campus0",
			want:  []string{"/usr/bin/sudo", "-S", "-p", "", oc, "--protocol", "nc", "--interface", "campus0", "-C", "DSID=abc", url},
		},
		{
			name:  "pkexec",
			esc:   &escalation{path: "/usr/bin/pkexec", name: "pkexec"},
			iface: "campus0",
			want:  []string{"/usr/bin/pkexec", oc, "--protocol", "nc", "--interface", "campus0", "-C", "DSID=abc", url},
		},
		{
			name:  "no interface flag",
			esc:   nil,
			iface: "",
			want:  []string{oc, "--protocol", "nc", "-C", "DSID=abc", url},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tunnelArgs(tt.esc, oc, "nc", tt.iface, "DSID=abc", url)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("tunnelArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRejectionLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Cookie was rejected by server; exiting.", true},
		{"COOKIE WAS REJECTED", true},
		{"Login failed.", true},
		{"Failed to obtain WebVPN cookie", true},
		{"Session authentication failed", true},
		{"Connected as 10.30.1.77, using SSL", false},
		{"Established DTLS connection", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isRejectionLine(tt.line); got != tt.want {
			t.Errorf("isRejectionLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestSupervisor_StartRejectsSecondTunnel(t *testing.T) {
	s := testSupervisor()
	s.tunnel = exitedTunnel()

	cookie := &common.SessionCookie{Name: "DSID", Value: "abc"}
	if _, err := s.Start(context.Background(), cookie); !errors.Is(err, common.ErrTunnelActive) {
		t.Errorf("Start with active tunnel: err = %v, want ErrTunnelActive", err)
	}
}

func TestSupervisor_StartRequiresCookie(t *testing.T) {
	s := testSupervisor()

	if _, err := s.Start(context.Background(), nil); !errors.Is(err, common.ErrSpawn) {
		t.Errorf("Start(nil cookie): err = %v, want ErrSpawn", err)
	}
	if _, err := s.Start(context.Background(), &common.SessionCookie{Name: "DSID"}); !errors.Is(err, common.ErrSpawn) {
		t.Errorf("Start(empty cookie): err = %v, want ErrSpawn", err)
	}
}

func TestSupervisor_StopWithoutTunnel(t *testing.T) {
	s := testSupervisor()

	if err := s.Stop(context.Background(), nil); !errors.Is(err, common.ErrNotConnected) {
		t.Errorf("Stop without tunnel: err = %v, want ErrNotConnected", err)
	}
}

func TestSupervisor_StopStaleHandle(t *testing.T) {
	s := testSupervisor()
	s.tunnel = exitedTunnel()

	if err := s.Stop(context.Background(), exitedTunnel()); !errors.Is(err, common.ErrNotConnected) {
		t.Errorf("Stop with stale handle: err = %v, want ErrNotConnected", err)
	}
	if s.tunnel == nil {
		t.Error("a stale handle must not clear the active tunnel")
	}
}

func TestSupervisor_StopAfterExit(t *testing.T) {
	s := testSupervisor()
	tun := exitedTunnel()
	s.tunnel = tun

	if err := s.Stop(context.Background(), tun); err != nil {
		t.Errorf("Stop after exit: err = %v, want nil", err)
	}
	if s.tunnel != nil {
		t.Error("Stop should clear the tunnel slot")
	}
}

func TestSupervisor_StopReportsSurvivors(t *testing.T) {
	s := testSupervisor()
	s.procRunning = func() bool { return true }
	tun := exitedTunnel()
	s.tunnel = tun

	err := s.Stop(context.Background(), tun)
	if !errors.Is(err, common.ErrTeardown) {
		t.Errorf("Stop with surviving process: err = %v, want ErrTeardown", err)
	}
	if s.tunnel != nil {
		t.Error("the tunnel slot must be freed even when teardown fails")
	}
}

func TestSupervisor_KillStraysNothingRunning(t *testing.T) {
	s := testSupervisor()

	if err := s.KillStrays(context.Background()); err != nil {
		t.Errorf("KillStrays with nothing running: err = %v, want nil", err)
	}
}

func TestSupervisor_KillStraysRefusesWithActiveTunnel(t *testing.T) {
	s := testSupervisor()
	s.tunnel = exitedTunnel()

	if err := s.KillStrays(context.Background()); !errors.Is(err, common.ErrTunnelActive) {
		t.Errorf("KillStrays with active tunnel: err = %v, want ErrTunnelActive", err)
	}
}

// watchTunnel fabricates a tunnel whose interface state is controlled by
// the test.
func watchTunnel(upFn func(string) bool) *Tunnel {
	return &Tunnel{
		iface:     "campus0",
		interval:  5 * time.Millisecond,
		ifaceUp:   upFn,
		events:    make(chan common.TunnelEvent, 64),
		done:      make(chan struct{}),
		watchStop: make(chan struct{}),
		watchDone: make(chan struct{}),
	}
}

func waitForEvent(t *testing.T, events <-chan common.TunnelEvent, kind common.TunnelEventKind) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Kind == kind {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %v event", kind)
		}
	}
}

func TestWatchInterface_UpDownTransitions(t *testing.T) {
	var mu sync.Mutex
	up := false
	tun := watchTunnel(func(string) bool {
		mu.Lock()
		defer mu.Unlock()
		return up
	})

	go tun.watchInterface()
	defer func() {
		close(tun.watchStop)
		<-tun.watchDone
	}()

	mu.Lock()
	up = true
	mu.Unlock()
	waitForEvent(t, tun.events, common.TunnelUp)

	mu.Lock()
	up = false
	mu.Unlock()
	waitForEvent(t, tun.events, common.TunnelDown)
}

func TestWatchInterface_QuietDuringStop(t *testing.T) {
	var mu sync.Mutex
	up := true
	tun := watchTunnel(func(string) bool {
		mu.Lock()
		defer mu.Unlock()
		return up
	})

	go tun.watchInterface()
	defer func() {
		close(tun.watchStop)
		<-tun.watchDone
	}()

	waitForEvent(t, tun.events, common.TunnelUp)

	tun.mu.Lock()
	tun.stopRequested = true
	tun.mu.Unlock()

	mu.Lock()
	up = false
	mu.Unlock()

	select {
	case ev := <-tun.events:
		t.Fatalf("unexpected %v event during stop", ev.Kind)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTunnel_EmitLogNeverBlocks(t *testing.T) {
	tun := &Tunnel{events: make(chan common.TunnelEvent, 1)}
	tun.emitLog("first")
	tun.emitLog("dropped when full")

	ev := <-tun.events
	if ev.Kind != common.TunnelLog || ev.Line != "first" {
		t.Errorf("got event %+v, want first log line", ev)
	}
	select {
	case ev := <-tun.events:
		t.Errorf("expected overflow line to be dropped, got %+v", ev)
	default:
	}
}

func TestIsPromptLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"Password:", true},
		{"[sudo] password for user:", true},
		{"Verification code: ", true},
		{"Secondary password:", true},
		{"Response:", true},
		{"Challenge: ", true},
		{"Passcode or option (1-3):", true},
		{"Connected as 10.30.1.77, using SSL", false},
		{"POLICY:", false},
		{"Login failed.", false},
		{"password", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isPromptLine(tt.line); got != tt.want {
			t.Errorf("isPromptLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestScanPrompts(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		atEOF   bool
		advance int
		token   string
	}{
		{"newline terminated", "line one\nrest", false, 9, "line one"},
		{"crlf stripped", "line one\r\nrest", false, 10, "line one"},
		{"incomplete fragment waits", "partial", false, 0, ""},
		{"prompt fragment flushes", "Password: ", false, 10, "Password: "},
		{"colon without marker waits", "Connecting to vpn.example.edu:", false, 0, ""},
		{"eof flushes remainder", "tail", true, 4, "tail"},
		{"empty eof", "", true, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			advance, token, err := scanPrompts([]byte(tt.data), tt.atEOF)
			if err != nil {
				t.Fatalf("scanPrompts() err = %v", err)
			}
			if advance != tt.advance || string(token) != tt.token {
				t.Errorf("scanPrompts(%q, %v) = (%d, %q), want (%d, %q)",
					tt.data, tt.atEOF, advance, token, tt.advance, tt.token)
			}
		})
	}
}

// stubPrompter records prompts and returns a fixed answer. With block set
// it waits for the context instead, like a user who never types.
type stubPrompter struct {
	mu     sync.Mutex
	asked  []string
	answer string
	block  bool
}

func (p *stubPrompter) ask(ctx context.Context, prompt string) (string, error) {
	p.mu.Lock()
	p.asked = append(p.asked, prompt)
	answer, block := p.answer, p.block
	p.mu.Unlock()
	if block {
		<-ctx.Done()
		return "", common.ErrLoginCancelled
	}
	return answer, nil
}

func (p *stubPrompter) AskText(ctx context.Context, prompt string) (string, error) {
	return p.ask(ctx, prompt)
}

func (p *stubPrompter) AskSecret(ctx context.Context, prompt string) (string, error) {
	return p.ask(ctx, prompt)
}

func (p *stubPrompter) ShowMFACode(string) {}
func (p *stubPrompter) ClearMFA()          {}

func (p *stubPrompter) askedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.asked)
}

func (p *stubPrompter) firstAsked() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.asked) == 0 {
		return ""
	}
	return p.asked[0]
}

// syncBuffer is a goroutine-safe in-memory stdin stand-in.
type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

// promptTunnel fabricates a tunnel wired to a prompter and an in-memory
// stdin, without any process behind it.
func promptTunnel(p common.Prompter) (*Tunnel, *syncBuffer) {
	stdin := &syncBuffer{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Tunnel{
		iface:        "campus0",
		stdin:        stdin,
		prompter:     p,
		promptCtx:    ctx,
		promptCancel: cancel,
		events:       make(chan common.TunnelEvent, 64),
	}, stdin
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestRelayPrompt_WritesAnswer(t *testing.T) {
	p := &stubPrompter{answer: "123456"}
	tun, stdin := promptTunnel(p)
	defer tun.promptCancel()

	tun.relayPrompt("Verification code: ")

	waitUntil(t, "answer on stdin", func() bool { return stdin.String() == "123456\n" })
	if got := p.firstAsked(); got != "Verification code:" {
		t.Errorf("prompt text = %q, want trimmed line", got)
	}
}

func TestRelayPrompt_SingleOutstandingPrompt(t *testing.T) {
	p := &stubPrompter{block: true}
	tun, _ := promptTunnel(p)
	defer tun.promptCancel()

	tun.relayPrompt("Password: ")
	waitUntil(t, "first prompt", func() bool { return p.askedCount() == 1 })

	// While the first prompt waits for the user, further prompt lines are
	// ignored rather than stacked up.
	tun.relayPrompt("Password: ")
	time.Sleep(50 * time.Millisecond)
	if got := p.askedCount(); got != 1 {
		t.Errorf("asked %d prompts, want 1", got)
	}
}

func TestRelayPrompt_CancellationUnblocksWithoutWrite(t *testing.T) {
	p := &stubPrompter{block: true}
	tun, stdin := promptTunnel(p)

	tun.relayPrompt("Password:")
	waitUntil(t, "prompt in flight", func() bool { return p.askedCount() == 1 })

	tun.promptCancel()
	waitUntil(t, "prompt slot released", func() bool {
		tun.mu.Lock()
		defer tun.mu.Unlock()
		return !tun.promptBusy
	})
	if got := stdin.String(); got != "" {
		t.Errorf("stdin = %q, want nothing written after cancellation", got)
	}
}

func TestRelayPrompt_NoPrompter(t *testing.T) {
	tun, stdin := promptTunnel(nil)
	defer tun.promptCancel()

	tun.relayPrompt("Password:")
	time.Sleep(20 * time.Millisecond)
	if got := stdin.String(); got != "" {
		t.Errorf("stdin = %q, want untouched without a prompter", got)
	}
}
