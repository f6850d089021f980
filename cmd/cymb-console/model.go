package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/cyphergraph/go-cypher-bolt/internal/telemetry"
	"github.com/cyphergraph/go-cypher-bolt/pool"
	"github.com/cyphergraph/go-cypher-bolt/session"
)

const refreshInterval = 500 * time.Millisecond

// endpoint bundles one registered db_key's Pool with the Session used to
// ping it on demand.
type endpoint struct {
	dbKey    string
	pool     *pool.Pool
	session  *session.Session
	lastPing time.Duration
	pingErr  error
	pinging  bool
}

// Messages.
type (
	tickMsg      time.Time
	pingResultMsg struct {
		dbKey   string
		elapsed time.Duration
		err     error
	}
)

// consoleModel is the bubbletea model for the pool/router monitor.
type consoleModel struct {
	styles   *Styles
	spinner  spinner.Model
	recorder *telemetry.Recorder

	endpoints []*endpoint // sorted by dbKey, stable across the run
	cursor    int

	width, height int
	quitting      bool
}

func newConsoleModel(endpoints []*endpoint, rec *telemetry.Recorder) *consoleModel {
	sort.Slice(endpoints, func(i, j int) bool { return endpoints[i].dbKey < endpoints[j].dbKey })

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = DefaultStyles().Busy

	return &consoleModel{
		styles:    DefaultStyles(),
		spinner:   s,
		recorder:  rec,
		endpoints: endpoints,
		width:     100,
		height:    30,
	}
}

func (m *consoleModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *consoleModel) pingCmd(ep *endpoint) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		ctx := ep.session.ConnectedTo(context.Background(), "reading", "")
		_, err := ep.session.Execute(ctx, "RETURN 1", nil, "console-ping")
		return pingResultMsg{dbKey: ep.dbKey, elapsed: time.Since(start), err: err}
	}
}

func (m *consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) { //nolint:ireturn // bubbletea.Model interface
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.endpoints)-1 {
				m.cursor++
			}
		case "p", "enter":
			if len(m.endpoints) == 0 {
				return m, nil
			}
			ep := m.endpoints[m.cursor]
			if ep.pinging {
				return m, nil
			}
			ep.pinging = true
			return m, m.pingCmd(ep)
		}

	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height

	case tickMsg:
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pingResultMsg:
		for _, ep := range m.endpoints {
			if ep.dbKey == msg.dbKey {
				ep.pinging = false
				ep.lastPing = msg.elapsed
				ep.pingErr = msg.err
			}
		}
	}

	return m, nil
}

func (m *consoleModel) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Header.Render("cymb-console"))
	b.WriteString(m.styles.Dim.Render("  pool & router monitor"))
	b.WriteString("\n\n")

	b.WriteString(m.renderTable())
	b.WriteString("\n")
	b.WriteString(m.renderEvents())
	b.WriteString("\n")
	b.WriteString(m.styles.Dim.Render("  ↑/↓ select  •  p/enter ping  •  q quit"))
	b.WriteString("\n")

	return b.String()
}

func (m *consoleModel) renderTable() string {
	var b strings.Builder

	header := fmt.Sprintf("  %-16s %6s %6s %8s %8s  %s", "DB KEY", "IDLE", "BUSY", "WAITING", "MAX", "LAST PING")
	b.WriteString(m.styles.Muted.Render(header))
	b.WriteString("\n")

	if len(m.endpoints) == 0 {
		b.WriteString(m.styles.Dim.Render("  (no endpoints registered)\n"))
		return b.String()
	}

	for i, ep := range m.endpoints {
		stats := ep.pool.Stats()
		// Stats.InFlight already counts only checked-out/connecting
		// connections; Idle is tracked separately (pool.Pool.Acquire
		// moves an idle entry out of the idle list before incrementing
		// InFlight), so it doubles as the "busy" column here.
		busy := stats.InFlight

		cursor := "  "
		if i == m.cursor {
			cursor = m.styles.Selected.Render("❯ ")
		}

		key := m.styles.DBKey.Render(fmt.Sprintf("%-16s", ep.dbKey))

		row := fmt.Sprintf("%6s %6s %8s %8d",
			m.styles.Idle.Render(fmt.Sprintf("%d", stats.Idle)),
			colorizeBusy(m.styles, busy),
			colorizeWaiting(m.styles, stats.Waiting),
			stats.MaxSize,
		)

		last := m.renderLastPing(ep)

		b.WriteString(cursor + key + " " + row + "  " + last + "\n")
	}

	return b.String()
}

func colorizeBusy(s *Styles, n int) string {
	if n == 0 {
		return s.Dim.Render(fmt.Sprintf("%d", n))
	}
	return s.Busy.Render(fmt.Sprintf("%d", n))
}

func colorizeWaiting(s *Styles, n int) string {
	if n == 0 {
		return s.Dim.Render(fmt.Sprintf("%d", n))
	}
	return s.Waiting.Render(fmt.Sprintf("%d", n))
}

func (m *consoleModel) renderLastPing(ep *endpoint) string {
	switch {
	case ep.pinging:
		return m.spinner.View() + " pinging"
	case ep.pingErr != nil:
		return m.styles.Fail.Render("failed: " + ep.pingErr.Error())
	case ep.lastPing > 0:
		return m.styles.Idle.Render(ep.lastPing.Round(time.Millisecond).String())
	default:
		return m.styles.Dim.Render("-")
	}
}

const maxEventLines = 8

func (m *consoleModel) renderEvents() string {
	var b strings.Builder
	b.WriteString(m.styles.Muted.Render("  recent events"))
	b.WriteString("\n")

	events := m.recorder.Recent()
	if len(events) == 0 {
		b.WriteString(m.styles.Dim.Render("  (none yet — press p to ping an endpoint)\n"))
		return b.String()
	}

	start := 0
	if over := len(events) - maxEventLines; over > 0 {
		start = over
	}

	for _, ev := range events[start:] {
		name := m.styles.EventName.Render(ev.Name)
		fields := renderFields(ev.Fields)
		dur := ""
		if ev.Duration > 0 {
			dur = m.styles.Dim.Render(" (" + ev.Duration.Round(time.Microsecond).String() + ")")
		}
		b.WriteString("  " + name + dur + " " + fields + "\n")
	}

	return b.String()
}

func renderFields(fields map[string]any) string {
	if len(fields) == 0 {
		return ""
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return strings.Join(parts, " ")
}
