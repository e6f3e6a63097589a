package tui

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/yllada/campus-vpn/common"
	"github.com/yllada/campus-vpn/session"
	"golang.org/x/term"
)

// Run drives the connection screen until the session settles in Idle or
// Failed, or ctx is cancelled. On a terminal it renders the interactive
// program; otherwise it degrades to line-oriented output so the command
// still works over pipes and dumb terminals.
func Run(ctx context.Context, coord *session.Coordinator, relay *session.PromptRelay, gateway string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return RunPlain(ctx, coord, relay, gateway)
	}

	events, unsubscribe := coord.Subscribe()
	defer unsubscribe()

	p := tea.NewProgram(newModel(coord, relay, gateway), tea.WithContext(ctx))

	bridgeCtx, stopBridge := context.WithCancel(ctx)
	defer stopBridge()
	go bridge(bridgeCtx, p, events, coord.Lines(), relay)

	// The program owns the screen; keep log output in the file only.
	logger := common.GetLogger()
	logger.SetConsole(false)
	defer logger.SetConsole(true)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return common.WrapError(err, "terminal UI")
	}
	return nil
}

// bridge forwards coordinator and prompt traffic into the program. It exits
// with ctx; Send on a finished program is a no-op, so late events are safe.
func bridge(ctx context.Context, p *tea.Program, events <-chan session.Event, lines <-chan string, relay *session.PromptRelay) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.Send(stateMsg(ev))
		case line := <-lines:
			p.Send(lineMsg(line))
		case cp := <-relay.Prompts():
			p.Send(promptMsg(cp))
		case code := <-relay.MFA():
			p.Send(mfaMsg(code))
		}
	}
}

// RunPlain follows the session on stdout without taking over the screen.
func RunPlain(ctx context.Context, coord *session.Coordinator, relay *session.PromptRelay, gateway string) error {
	events, unsubscribe := coord.Subscribe()
	defer unsubscribe()

	fmt.Printf("Connecting to %s\n", gateway)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.From == ev.To {
				continue
			}
			switch ev.To {
			case common.StateLoggingIn:
				fmt.Println("Logging in at the portal...")
			case common.StateStartingTunnel:
				fmt.Println("Starting the tunnel...")
			case common.StateConnected:
				fmt.Println("Connected.")
			case common.StateDisconnecting:
				fmt.Println("Disconnecting...")
			case common.StateIdle:
				fmt.Println("Disconnected.")
				return nil
			case common.StateFailed:
				if ev.Failure != nil {
					fmt.Printf("Connection failed: %s\n", ev.Failure)
				} else {
					fmt.Println("Connection failed.")
				}
				return nil
			}
		case line := <-coord.Lines():
			fmt.Println("  " + line)
		case cp := <-relay.Prompts():
			go answerPlain(cp)
		case code := <-relay.MFA():
			if code != "" {
				fmt.Printf("Approve sign-in: enter %s in the Authenticator app\n", code)
			}
		}
	}
}

// ServePrompts answers relay prompts on the terminal until ctx ends. It is
// for commands that drive a login without the connection screen.
func ServePrompts(ctx context.Context, relay *session.PromptRelay) {
	for {
		select {
		case <-ctx.Done():
			return
		case cp := <-relay.Prompts():
			go answerPlain(cp)
		case code := <-relay.MFA():
			if code != "" {
				fmt.Printf("Approve sign-in: enter %s in the Authenticator app\n", code)
			}
		}
	}
}

// answerPlain collects one prompt response from stdin. It runs on its own
// goroutine so a user who never types cannot wedge the event loop; the
// prompt's own cancellation handles teardown.
func answerPlain(p *common.CredentialPrompt) {
	fmt.Print(p.Text + " ")
	if p.Secret && term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			p.Dismiss()
			return
		}
		p.Respond(string(raw))
		return
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		p.Dismiss()
		return
	}
	p.Respond(strings.TrimSpace(line))
}
