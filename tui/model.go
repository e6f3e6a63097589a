package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/yllada/campus-vpn/common"
	"github.com/yllada/campus-vpn/session"
)

// maxLogLines is how many openconnect output lines stay on screen.
const maxLogLines = 6

// Messages fed into the program by the coordinator bridge.
type (
	stateMsg  session.Event
	lineMsg   string
	promptMsg *common.CredentialPrompt
	mfaMsg    string
	tickMsg   time.Time
)

type model struct {
	coord   *session.Coordinator
	relay   *session.PromptRelay
	gateway string

	spin  spinner.Model
	input textinput.Model

	state       common.SessionState
	failure     *common.Failure
	connectedAt time.Time
	prompt      *common.CredentialPrompt
	mfaCode     string
	lines       []string
	quitting    bool
}

func newModel(coord *session.Coordinator, relay *session.PromptRelay, gateway string) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = connectingStyle

	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 256

	st, failure := coord.State()
	m := model{
		coord:   coord,
		relay:   relay,
		gateway: gateway,
		spin:    sp,
		input:   ti,
		state:   st,
		failure: failure,
	}
	if st == common.StateConnected {
		// Adopted session: uptime is counted from adoption.
		m.connectedAt = time.Now()
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, tickEvery())
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case stateMsg:
		ev := session.Event(msg)
		if ev.From == ev.To {
			return m, nil
		}
		m.state = ev.To
		m.failure = ev.Failure
		switch ev.To {
		case common.StateConnected:
			m.connectedAt = time.Now()
		case common.StateIdle, common.StateFailed:
			return m, tea.Quit
		}
		return m, nil

	case lineMsg:
		m.lines = append(m.lines, string(msg))
		if len(m.lines) > maxLogLines {
			m.lines = m.lines[len(m.lines)-maxLogLines:]
		}
		return m, nil

	case promptMsg:
		m.prompt = (*common.CredentialPrompt)(msg)
		m.input.Reset()
		if m.prompt.Secret {
			m.input.EchoMode = textinput.EchoPassword
		} else {
			m.input.EchoMode = textinput.EchoNormal
		}
		return m, m.input.Focus()

	case mfaMsg:
		m.mfaCode = string(msg)
		return m, nil

	case tickMsg:
		return m, tickEvery()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	if m.prompt != nil {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		if m.quitting {
			// Second ctrl+c: stop waiting for a polite teardown.
			return m, tea.Quit
		}
		m.quitting = true
		m.clearPrompt()
		if err := m.coord.Disconnect(); err != nil {
			return m, tea.Quit
		}
		return m, nil

	case "enter":
		if m.prompt != nil {
			value := m.input.Value()
			prompt := m.prompt
			m.clearPrompt()
			if err := m.relay.Respond(prompt.ID, value); err != nil {
				common.LogDebug("Prompt response: %v", err)
			}
		}
		return m, nil

	case "esc":
		if m.prompt != nil {
			m.clearPrompt()
			m.relay.Dismiss()
		}
		return m, nil

	case "q":
		if m.prompt == nil {
			return m.handleKey(tea.KeyMsg{Type: tea.KeyCtrlC})
		}
	}

	if m.prompt != nil {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *model) clearPrompt() {
	m.prompt = nil
	m.input.Blur()
	m.input.Reset()
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Campus VPN") + dimStyle.Render(" — "+m.gateway) + "\n\n")
	b.WriteString("  " + m.stateLine() + "\n")

	if m.mfaCode != "" {
		b.WriteString("\n" + mfaStyle.Render("Approve sign-in: enter "+m.mfaCode+" in the Authenticator app") + "\n")
	}

	if m.prompt != nil {
		b.WriteString("\n  " + promptStyle.Render(m.prompt.Text) + "\n  " + m.input.View() + "\n")
		b.WriteString(dimStyle.Render("  enter to submit · esc to cancel the login") + "\n")
	}

	if len(m.lines) > 0 {
		b.WriteString("\n")
		for _, line := range m.lines {
			b.WriteString(dimStyle.Render("  │ "+line) + "\n")
		}
	}

	b.WriteString("\n" + dimStyle.Render("  ctrl+c disconnect · q quit") + "\n")
	return b.String()
}

func (m model) stateLine() string {
	switch m.state {
	case common.StateIdle:
		if m.quitting {
			return dimStyle.Render("Disconnected")
		}
		return dimStyle.Render("Idle")
	case common.StateLoggingIn:
		return m.spin.View() + connectingStyle.Render("Logging in at the portal...")
	case common.StateStartingTunnel:
		return m.spin.View() + connectingStyle.Render("Starting the tunnel...")
	case common.StateConnected:
		up := time.Since(m.connectedAt).Round(time.Second)
		line := connectedStyle.Render("● Connected")
		if up > 0 {
			line += dimStyle.Render(fmt.Sprintf("  up %s", up))
		}
		return line
	case common.StateDisconnecting:
		return m.spin.View() + connectingStyle.Render("Disconnecting...")
	case common.StateFailed:
		if m.failure != nil {
			return errorStyle.Render("✗ " + m.failure.String())
		}
		return errorStyle.Render("✗ Failed")
	default:
		return m.state.String()
	}
}
