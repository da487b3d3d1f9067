// Package tui provides an interactive badge view built on bubbletea.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cristianoliveira/badgesync/internal/badge"
)

const (
	defaultViewportWidth  = 60
	defaultViewportHeight = 10
	headerHeight          = 4
	maxHistory            = 200
	markReadTimeout       = 10 * time.Second
)

// Engine is the subset of the badge engine the view drives.
type Engine interface {
	RequestRefresh()
	Clear()
	Snapshot() badge.Snapshot
	Subscribe(l badge.Listener) func()
}

// MarkAllReadFunc persists a clear on the server side.
type MarkAllReadFunc func(ctx context.Context) error

// countMsg carries a published badge value.
type countMsg struct {
	count uint
	at    time.Time
}

// markReadDoneMsg reports the result of the server-side clear.
type markReadDoneMsg struct {
	err error
}

// Model renders the badge and a history of published values.
type Model struct {
	engine      Engine
	markAllRead MarkAllReadFunc
	updates     chan countMsg
	unsubscribe func()

	count     uint
	history   []string
	viewport  viewport.Model
	width     int
	status    string
	statusErr bool
	quitting  bool
}

// NewModel subscribes to engine; call Close when the program exits.
func NewModel(engine Engine, markAllRead MarkAllReadFunc) *Model {
	if engine == nil {
		panic("NewModel: engine dependency cannot be nil")
	}
	m := &Model{
		engine:      engine,
		markAllRead: markAllRead,
		updates:     make(chan countMsg, 16),
		viewport:    viewport.New(defaultViewportWidth, defaultViewportHeight),
		width:       defaultViewportWidth,
	}
	m.count = engine.Snapshot().Count
	m.unsubscribe = engine.Subscribe(func(n uint) {
		msg := countMsg{count: n, at: time.Now()}
		select {
		case m.updates <- msg:
		default:
			// Drop the oldest pending value; only the latest matters.
			select {
			case <-m.updates:
			default:
			}
			select {
			case m.updates <- msg:
			default:
			}
		}
	})
	return m
}

// Close unsubscribes from the engine.
func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

// Init starts listening for badge updates.
func (m *Model) Init() tea.Cmd {
	return m.waitForCount()
}

func (m *Model) waitForCount() tea.Cmd {
	return func() tea.Msg {
		return <-m.updates
	}
}

// Update handles messages and updates the model state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-headerHeight, 1)
		m.refreshViewport()
		return m, nil
	case countMsg:
		m.count = msg.count
		m.appendHistory(fmt.Sprintf("%s  %d", msg.at.Format(time.TimeOnly), msg.count))
		return m, m.waitForCount()
	case markReadDoneMsg:
		if msg.err != nil {
			m.setStatus(fmt.Sprintf("mark read failed: %v", msg.err), true)
		} else {
			m.setStatus("marked all read", false)
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		return m, tea.Quit
	case "c":
		m.engine.Clear()
		m.setStatus("cleared", false)
		return m, m.markAllReadCmd()
	case "r":
		m.engine.RequestRefresh()
		m.setStatus("refresh requested", false)
		return m, nil
	}
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *Model) markAllReadCmd() tea.Cmd {
	if m.markAllRead == nil {
		return nil
	}
	fn := m.markAllRead
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
		defer cancel()
		return markReadDoneMsg{err: fn(ctx)}
	}
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m *Model) appendHistory(line string) {
	m.history = append(m.history, line)
	if len(m.history) > maxHistory {
		m.history = m.history[len(m.history)-maxHistory:]
	}
	m.refreshViewport()
}

func (m *Model) refreshViewport() {
	m.viewport.SetContent(strings.Join(m.history, "\n"))
	m.viewport.GotoBottom()
}

// View renders the badge header, history and help line.
func (m *Model) View() string {
	if m.quitting {
		return ""
	}
	snap := m.engine.Snapshot()

	var b strings.Builder
	b.WriteString(renderHeader(m.count, snap, m.width))
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(renderStatus(m.status, m.statusErr))
	}
	b.WriteString("\n")
	if len(m.history) == 0 {
		b.WriteString(mutedStyle.Render("No changes yet"))
	} else {
		b.WriteString(m.viewport.View())
	}
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("c clear • r refresh • q quit"))
	return b.String()
}

// Run starts the interactive program and blocks until the user quits.
func Run(engine Engine, markAllRead MarkAllReadFunc) error {
	m := NewModel(engine, markAllRead)
	defer m.Close()
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("tui: %w", err)
	}
	return nil
}
