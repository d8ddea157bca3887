package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"gapper-terminal/src/models"
	"gapper-terminal/src/session"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	feedWidth  = 34
	feedRows   = 18
	chatBudget = 200 // replies kept in the scrollback
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	userStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	degradedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	feedStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)

	stateColors = map[models.ConnectionState]lipgloss.Color{
		models.StateConnecting:      "220",
		models.StateOpen:            "42",
		models.StateReconnecting:    "214",
		models.StateFallbackPolling: "208",
		models.StateClosed:          "244",
	}
)

// -----------------------------------------------------------------------------
// Messages
// -----------------------------------------------------------------------------

type updateMsg models.MSessionUpdate
type snapshotMsg models.MSessionSnapshot
type submittedMsg struct{}

// programBridge forwards session output into the bubbletea loop. Program.Send
// blocks until the program runs, so messages are queued and drained by Start.
type programBridge struct {
	program *tea.Program
	queue   chan tea.Msg
	done    chan struct{}
	once    sync.Once
}

func newProgramBridge(p *tea.Program) *programBridge {
	return &programBridge{program: p, queue: make(chan tea.Msg, 512), done: make(chan struct{})}
}

func (b *programBridge) Broadcast(payload interface{}) {
	if u, ok := payload.(models.MSessionUpdate); ok {
		b.enqueue(updateMsg(u))
	}
}

func (b *programBridge) UpdateAllDatas(data interface{}) {
	if s, ok := data.(models.MSessionSnapshot); ok {
		b.enqueue(snapshotMsg(s))
	}
}

func (b *programBridge) enqueue(msg tea.Msg) {
	select {
	case b.queue <- msg:
	case <-b.done:
	default: // UI is behind; the next snapshot catches it up
	}
}

func (b *programBridge) Start() error {
	go func() {
		for {
			select {
			case msg := <-b.queue:
				b.program.Send(msg)
			case <-b.done:
				return
			}
		}
	}()
	return nil
}

func (b *programBridge) Stop() error {
	b.once.Do(func() { close(b.done) })
	return nil
}

// -----------------------------------------------------------------------------
// Model
// -----------------------------------------------------------------------------

type chatModel struct {
	ctx     context.Context
	sess    *session.Session
	cfg     *models.MConfig
	input   textinput.Model
	chat    viewport.Model
	spin    spinner.Model
	busy    bool
	lines   []string
	snap    models.MSessionSnapshot
	width   int
	ready   bool
	history []string
}

func newChatModel(ctx context.Context, sess *session.Session, cfg *models.MConfig) chatModel {
	ti := textinput.New()
	ti.Placeholder = "/analyze NVDA, /scan, $TSLA ... (tab completes commands)"
	ti.Prompt = "> "
	ti.CharLimit = 512
	ti.PromptStyle = userStyle
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return chatModel{ctx: ctx, sess: sess, cfg: cfg, input: ti, spin: sp, snap: sess.Snapshot()}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spin.Tick)
}

// -----------------------------------------------------------------------------

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		chatWidth := max(msg.Width-feedWidth-4, 20)
		height := max(msg.Height-4, 5)
		if !m.ready {
			m.chat = viewport.New(chatWidth, height)
			m.ready = true
		} else {
			m.chat.Width, m.chat.Height = chatWidth, height
		}
		m.input.Width = msg.Width - 4
		m.refreshChat()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyTab:
			m.complete()
			return m, nil
		case tea.KeyUp:
			if len(m.history) > 0 {
				m.input.SetValue(m.history[len(m.history)-1])
				m.input.CursorEnd()
			}
			return m, nil
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.busy {
				return m, nil
			}
			m.input.Reset()
			m.busy = true
			m.history = append(m.history, text)
			m.append(userStyle.Render("you: ") + text)
			return m, m.submit(text)
		}

	case submittedMsg:
		m.busy = false

	case updateMsg:
		m.applyUpdate(models.MSessionUpdate(msg))

	case snapshotMsg:
		m.snap = models.MSessionSnapshot(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.chat, cmd = m.chat.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m chatModel) submit(text string) tea.Cmd {
	sess, ctx := m.sess, m.ctx
	return func() tea.Msg {
		// The reply itself arrives through the bridge as an update.
		sess.Submit(ctx, text)
		return submittedMsg{}
	}
}

func (m *chatModel) complete() {
	v := m.input.Value()
	if !strings.HasPrefix(v, "/") || strings.Contains(v, " ") {
		return
	}
	matches := m.sess.Complete(strings.TrimPrefix(v, "/"))
	switch len(matches) {
	case 0:
	case 1:
		m.input.SetValue("/" + matches[0] + " ")
		m.input.CursorEnd()
	default:
		m.append(mutedStyle.Render(strings.Join(matches, "  ")))
	}
}

// -----------------------------------------------------------------------------

func (m *chatModel) applyUpdate(u models.MSessionUpdate) {
	switch u.Kind {
	case models.UpdateReply:
		if u.Reply != nil {
			m.append(renderReply(*u.Reply))
		}
	case models.UpdateState:
		if u.State != nil {
			line := fmt.Sprintf("stream %s", u.State.To)
			if u.State.Reason != models.ReasonNone {
				line += " (" + string(u.State.Reason) + ")"
			}
			m.append(mutedStyle.Render(line))
		}
	case models.UpdateEvent:
		// Feed panel is rebuilt from the session on every render.
	}
}

func renderReply(r models.MChatReply) string {
	var b strings.Builder
	if r.ActionError != "" {
		b.WriteString(errorStyle.Render(r.ActionError) + "\n")
	} else if r.ActionStatus != "" {
		b.WriteString(mutedStyle.Render(r.ActionStatus) + "\n")
	}
	if len(r.Sections) == 0 && len(r.Gappers) == 0 {
		b.WriteString(r.Text)
		return b.String()
	}
	if r.Input.Intent == models.IntentScan {
		b.WriteString(titleStyle.Render("Top gappers") + "\n")
		for i, g := range r.Gappers {
			fmt.Fprintf(&b, "%2d. %-6s %s\n", i+1, g.Ticker, g.Score.StringFixed(2))
		}
	}
	for _, s := range r.Sections {
		if s.Rendered != "" {
			b.WriteString(s.Rendered + "\n")
		}
		if s.Degraded != "" {
			b.WriteString(degradedStyle.Render(s.Degraded) + "\n")
		}
	}
	for _, n := range r.Notes {
		b.WriteString(mutedStyle.Render(n) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *chatModel) append(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > chatBudget {
		m.lines = m.lines[len(m.lines)-chatBudget:]
	}
	m.refreshChat()
}

func (m *chatModel) refreshChat() {
	if !m.ready {
		return
	}
	m.chat.SetContent(lipgloss.NewStyle().Width(m.chat.Width).Render(strings.Join(m.lines, "\n\n")))
	m.chat.GotoBottom()
}

// -----------------------------------------------------------------------------
// View
// -----------------------------------------------------------------------------

func (m chatModel) View() string {
	if !m.ready {
		return "starting..."
	}

	color, ok := stateColors[m.snap.State]
	if !ok {
		color = "244"
	}
	state := lipgloss.NewStyle().Foreground(color).Render(string(m.snap.State))
	if m.snap.Reason != models.ReasonNone {
		state += mutedStyle.Render(" (" + string(m.snap.Reason) + ")")
	}
	header := fmt.Sprintf("%s  %s  %s", titleStyle.Render(m.cfg.Name), state,
		mutedStyle.Render(fmt.Sprintf("cards %d/%d  tracked %d", m.snap.CardCacheSize, m.cfg.Cache.CardCapacity, len(m.snap.Tracked))))
	if m.busy {
		header += " " + m.spin.View()
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top, m.chat.View(), feedStyle.Width(feedWidth).Render(m.feedView()))
	return lipgloss.JoinVertical(lipgloss.Left, header, body, m.input.View())
}

func (m chatModel) feedView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Live gappers"))
	rows := 0
	for _, g := range m.sess.GroupedFeed() {
		if rows >= feedRows {
			break
		}
		b.WriteString("\n" + mutedStyle.Render(g.Bucket))
		for i := len(g.Events) - 1; i >= 0 && rows < feedRows; i-- {
			ev := g.Events[i]
			mark := "+"
			if ev.EventType == models.EventLeftGapper {
				mark = "-"
			}
			fmt.Fprintf(&b, "\n%s %-6s %s", mark, ev.Ticker, ev.Timestamp.Local().Format("15:04"))
			rows++
		}
	}
	if rows == 0 {
		b.WriteString("\n" + mutedStyle.Render("waiting for movers"))
	}
	return b.String()
}
