package chatcmder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	bubbletea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/ragchat/pkg/client"
	"github.com/papercomputeco/ragchat/pkg/cliui"
	"github.com/papercomputeco/ragchat/pkg/transcript"
)

type chatKeyMap struct {
	Send     key.Binding
	Cancel   key.Binding
	New      key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Quit     key.Binding
}

func (k chatKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Cancel, k.New, k.PageUp, k.PageDown, k.Quit}
}

func (k chatKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Send, k.Cancel, k.New}, {k.PageUp, k.PageDown, k.Quit}}
}

func defaultChatKeyMap() chatKeyMap {
	return chatKeyMap{
		Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "ask")),
		Cancel:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop answer")),
		New:      key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "new conversation")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit")),
	}
}

var (
	tuiStatusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	tuiLiveStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	tuiWelcomeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Italic(true)
)

// Messages sent to the TUI from stream goroutines. conv identifies the
// conversation the stream belongs to, so updates from a conversation that
// was replaced by ctrl+n are not drawn.
type (
	turnMsg struct {
		conv *client.Conversation
		turn transcript.Turn
	}

	turnDoneMsg struct {
		conv    *client.Conversation
		turn    transcript.Turn
		outcome client.Outcome
	}

	streamStartedMsg struct{}

	streamErrMsg struct{ err error }

	resetMsg struct{ err error }

	topKMsg struct{ topK int }
)

// tuiModel is the full-screen chat: the transcript in a scrolling viewport
// above a status line and the question input.
type tuiModel struct {
	ctx     context.Context
	session *session
	send    func(bubbletea.Msg)

	input    textinput.Model
	viewport viewport.Model
	help     help.Model
	keys     chatKeyMap

	// live holds the newest snapshot of each streaming turn, by turn ID.
	live map[string]transcript.Turn

	// active counts submitted questions whose streams have not finished.
	active int
	err    error
	ready  bool
}

func newTUIModel(ctx context.Context, s *session, send func(bubbletea.Msg)) tuiModel {
	ti := textinput.New()
	ti.Placeholder = "Ask a question about your documents..."
	ti.Prompt = cliui.UserPrompt
	ti.CharLimit = 0
	ti.Focus()

	return tuiModel{
		ctx:     ctx,
		session: s,
		send:    send,
		input:   ti,
		help:    help.New(),
		keys:    defaultChatKeyMap(),
		live:    map[string]transcript.Turn{},
	}
}

func (m tuiModel) Init() bubbletea.Cmd {
	return textinput.Blink
}

func (m tuiModel) Update(msg bubbletea.Msg) (bubbletea.Model, bubbletea.Cmd) {
	switch msg := msg.(type) {
	case bubbletea.WindowSizeMsg:
		return m.resize(msg), nil

	case bubbletea.KeyMsg:
		return m.handleKey(msg)

	case turnMsg:
		if msg.conv == m.session.conversation() {
			m.live[msg.turn.ID] = msg.turn
			m.refresh()
		}
		return m, nil

	case turnDoneMsg:
		m.active = max(m.active-1, 0)
		delete(m.live, msg.turn.ID)
		if msg.outcome.Kind == client.Failed {
			m.err = msg.outcome.Err
		}
		m.refresh()
		return m, nil

	case streamStartedMsg:
		m.refresh()
		return m, nil

	case streamErrMsg:
		m.active = max(m.active-1, 0)
		m.err = msg.err
		return m, nil

	case resetMsg:
		m.live = map[string]transcript.Turn{}
		m.err = msg.err
		m.refresh()
		return m, nil

	case topKMsg:
		return m, nil
	}

	var cmd bubbletea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m tuiModel) handleKey(msg bubbletea.KeyMsg) (bubbletea.Model, bubbletea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		if h := m.session.conversation().Active(); h != nil {
			h.Cancel()
		}
		return m, bubbletea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if h := m.session.conversation().Active(); h != nil {
			h.Cancel()
		}
		return m, nil

	case key.Matches(msg, m.keys.New):
		return m, m.resetCmd()

	case key.Matches(msg, m.keys.Send):
		return m.submit()

	case key.Matches(msg, m.keys.PageUp, m.keys.PageDown):
		var cmd bubbletea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd bubbletea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m tuiModel) submit() (bubbletea.Model, bubbletea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		return m, nil
	}

	m.input.SetValue("")
	m.err = nil
	m.active++

	return m, m.askCmd(m.session.conversation(), query)
}

// askCmd starts the stream off the event loop, since a cancel busy policy
// blocks until the previous stream has finalized.
func (m tuiModel) askCmd(conv *client.Conversation, query string) bubbletea.Cmd {
	send := m.send
	return func() bubbletea.Msg {
		_, err := m.session.ask(m.ctx, query, client.ObserverFuncs{
			Update: func(turn transcript.Turn) {
				send(turnMsg{conv: conv, turn: turn})
			},
			Terminal: func(turn transcript.Turn, outcome client.Outcome) {
				send(turnDoneMsg{conv: conv, turn: turn, outcome: outcome})
			},
		})
		if err != nil {
			return streamErrMsg{err: err}
		}
		return streamStartedMsg{}
	}
}

func (m tuiModel) resetCmd() bubbletea.Cmd {
	return func() bubbletea.Msg {
		return resetMsg{err: m.session.reset()}
	}
}

func (m tuiModel) resize(msg bubbletea.WindowSizeMsg) tuiModel {
	// viewport, status line, input, help
	vpHeight := max(msg.Height-3, 1)

	if !m.ready {
		m.viewport = viewport.New(msg.Width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = msg.Width
		m.viewport.Height = vpHeight
	}
	m.input.Width = msg.Width - lipgloss.Width(m.input.Prompt) - 1
	m.help.Width = msg.Width

	m.refresh()
	return m
}

// refresh redraws the transcript and scrolls to the newest turn.
func (m *tuiModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoBottom()
}

func (m tuiModel) renderContent() string {
	turns := m.session.conversation().Transcript().Turns()
	if len(turns) == 0 {
		return tuiWelcomeStyle.Render("Ask a question about the indexed documents.")
	}

	for i := range turns {
		if live, ok := m.live[turns[i].ID]; ok {
			turns[i] = live
		}
	}

	var b strings.Builder
	cliui.WriteTurns(&b, turns)
	return lipgloss.NewStyle().Width(m.viewport.Width).Render(b.String())
}

func (m tuiModel) statusLine() string {
	id := m.session.conversation().Transcript().ID()
	if len(id) > 8 {
		id = id[:8]
	}

	parts := []string{
		"conversation " + id,
		fmt.Sprintf("top_k %d", m.session.TopK()),
	}

	state := tuiStatusStyle.Render("ready")
	if m.active > 0 {
		state = tuiLiveStyle.Render("streaming…")
	}

	line := tuiStatusStyle.Render(strings.Join(parts, " · ")) + "  " + state
	if m.err != nil && !errors.Is(m.err, context.Canceled) {
		line += "  " + cliui.ErrorStyle.Render(m.err.Error())
	}
	return line
}

func (m tuiModel) View() string {
	if !m.ready {
		return "Initializing..."
	}

	var b strings.Builder
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.statusLine())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(tuiStatusStyle.Render(m.help.View(m.keys)))
	return b.String()
}

// runTUI runs the full-screen chat until the user quits. A stream still
// running at that point is cancelled and awaited.
func runTUI(ctx context.Context, s *session, reload <-chan int) error {
	var program *bubbletea.Program
	model := newTUIModel(ctx, s, func(msg bubbletea.Msg) { program.Send(msg) })
	program = bubbletea.NewProgram(model,
		bubbletea.WithContext(ctx),
		bubbletea.WithAltScreen(),
	)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case k := <-reload:
				program.Send(topKMsg{topK: k})
			case <-done:
				return
			}
		}
	}()

	_, err := program.Run()
	s.cancelActive()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
