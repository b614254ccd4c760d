// Package tui provides the live terminal monitor for ocrbox.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/custodia-labs/ocrbox/internal/adapters/driving/tui/keymap"
	"github.com/custodia-labs/ocrbox/internal/adapters/driving/tui/messages"
	"github.com/custodia-labs/ocrbox/internal/adapters/driving/tui/styles"
	"github.com/custodia-labs/ocrbox/internal/core/domain"
)

// Loader reads a snapshot. accountID selects the scope of Recent.
type Loader func(ctx context.Context, accountID string) (messages.Snapshot, error)

// Monitor shows ledger totals, recent records and poller state.
// It implements tea.Model.
type Monitor struct {
	ctx      context.Context
	load     Loader
	interval time.Duration
	styles   *styles.Styles
	keymap   *keymap.KeyMap

	snapshot messages.Snapshot
	selected int
	loading  bool
	err      error

	width  int
	height int
}

var _ tea.Model = (*Monitor)(nil)

// NewMonitor creates a monitor that reloads every interval.
func NewMonitor(ctx context.Context, load Loader, interval time.Duration) (*Monitor, error) {
	if load == nil {
		return nil, ErrMissingLoader
	}
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Monitor{
		ctx:      ctx,
		load:     load,
		interval: interval,
		styles:   styles.DefaultStyles(),
		keymap:   keymap.DefaultKeyMap(),
		loading:  true,
		width:    80,
	}, nil
}

// Init implements tea.Model.
func (m *Monitor) Init() tea.Cmd {
	return tea.Batch(
		tea.SetWindowTitle("ocrbox monitor"),
		m.refresh(),
	)
}

// Update implements tea.Model.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keymap.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keymap.Refresh):
			m.loading = true
			return m, m.refresh()
		case key.Matches(msg, m.keymap.Up):
			if m.selected > 0 {
				m.selected--
				return m, m.refresh()
			}
		case key.Matches(msg, m.keymap.Down):
			if m.selected < len(m.snapshot.Stats)-1 {
				m.selected++
				return m, m.refresh()
			}
		}
		return m, nil

	case messages.SnapshotLoaded:
		m.loading = false
		m.err = msg.Err
		if msg.Err == nil {
			m.snapshot = msg.Snapshot
			if m.selected >= len(m.snapshot.Stats) {
				m.selected = max(len(m.snapshot.Stats)-1, 0)
			}
		}
		return m, m.tick()

	case messages.Tick:
		return m, m.refresh()
	}
	return m, nil
}

func (m *Monitor) selectedAccount() string {
	if m.selected < len(m.snapshot.Stats) {
		return m.snapshot.Stats[m.selected].AccountID
	}
	return domain.LocalAccount
}

func (m *Monitor) refresh() tea.Cmd {
	account := m.selectedAccount()
	return func() tea.Msg {
		snap, err := m.load(m.ctx, account)
		return messages.SnapshotLoaded{Snapshot: snap, Err: err}
	}
}

func (m *Monitor) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return messages.Tick(t)
	})
}

// View implements tea.Model.
func (m *Monitor) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Title.Render("ocrbox"))
	b.WriteString(m.styles.Muted.Render("  " + m.snapshot.TakenAt.Local().Format(time.TimeOnly)))
	b.WriteString("\n\n")

	b.WriteString(m.styles.Panel.Render(m.viewStats()))
	b.WriteString("\n")
	b.WriteString(m.styles.Subtitle.Render("Recent: " + label(m.selectedAccount())))
	b.WriteString("\n")
	b.WriteString(m.viewRecent())
	b.WriteString("\n")
	b.WriteString(m.viewStatusBar())
	return b.String()
}

func (m *Monitor) viewStats() string {
	if len(m.snapshot.Stats) == 0 {
		return m.styles.Muted.Render("Nothing processed yet.")
	}
	lines := []string{m.styles.Subtitle.Render(fmt.Sprintf("%-28s %8s %8s %8s  %s", "ACCOUNT", "OK", "FAILED", "PENDING", "POLLER"))}
	for i, s := range m.snapshot.Stats {
		line := fmt.Sprintf("%-28s %8d %8d %8d  %s",
			truncate(label(s.AccountID), 28), s.Success, s.Failed, s.Pending, m.pollerState(s.AccountID))
		if i == m.selected {
			line = m.styles.Selected.Render(line)
		} else {
			line = m.styles.Normal.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (m *Monitor) pollerState(accountID string) string {
	for _, st := range m.snapshot.Accounts {
		if st.AccountID != accountID {
			continue
		}
		switch {
		case st.Running:
			return "polling"
		case st.LastResult == nil:
			return "idle"
		case st.LastResult.Err != nil:
			return "error: " + st.LastResult.Err.Error()
		default:
			return "last " + st.LastResult.EndedAt.Local().Format(time.TimeOnly)
		}
	}
	return "-"
}

func (m *Monitor) viewRecent() string {
	if len(m.snapshot.Recent) == 0 {
		return m.styles.Muted.Render("  no records")
	}
	lines := make([]string, 0, len(m.snapshot.Recent))
	for _, r := range m.snapshot.Recent {
		detail := r.OutputPath
		if r.Status == domain.StatusFailed {
			detail = r.Error
		}
		status := m.styles.ForStatus(r.Status).Render(fmt.Sprintf("%-8s", r.Status))
		lines = append(lines, fmt.Sprintf("  %s %s %s -> %s",
			r.UpdatedAt.Local().Format(time.TimeOnly), status, r.SourceName, detail))
	}
	return strings.Join(lines, "\n")
}

func (m *Monitor) viewStatusBar() string {
	left := m.styles.Muted.Render("ready")
	switch {
	case m.err != nil:
		left = m.styles.Error.Render("error: " + m.err.Error())
	case m.loading:
		left = m.styles.Muted.Render("loading...")
	}

	bindings := m.keymap.ShortHelp()
	hints := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		hints = append(hints, h.Key+": "+h.Desc)
	}
	right := m.styles.Muted.Render(strings.Join(hints, " | "))

	padding := max(m.width-lipgloss.Width(left)-lipgloss.Width(right)-2, 1)
	return m.styles.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", padding) + right)
}

// Run starts the monitor on the terminal.
func (m *Monitor) Run() error {
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(m.ctx))
	_, err := p.Run()
	return err
}

// Err returns the last load error.
func (m *Monitor) Err() error {
	return m.err
}

// Selected returns the index of the highlighted account row.
func (m *Monitor) Selected() int {
	return m.selected
}

func label(accountID string) string {
	if accountID == domain.LocalAccount {
		return "(local)"
	}
	return accountID
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
