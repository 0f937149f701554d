// Package ui implements the terminal dashboard: a bubbletea program
// that polls the metrics store and alert engine on a timer and renders
// per-interface throughput/loss/latency alongside active alerts and
// bottleneck findings. Grounded on the teacher's bubbletea/lipgloss
// Model (poll-via-channel, tea.WindowSizeMsg handling,
// lipgloss.JoinVertical layout), rebuilt around this module's own
// domain state instead of the teacher's process table.
package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/googlesky/netsniff/internal/alert"
	"github.com/googlesky/netsniff/internal/bottleneck"
	"github.com/googlesky/netsniff/internal/store"
)

// View selects which panel is in focus; Tab cycles between them.
type View int

const (
	ViewInterfaces View = iota
	ViewFlows
	ViewAlerts
)

const refreshInterval = 1 * time.Second

// tickMsg drives the poll loop.
type tickMsg time.Time

// Model is the root bubbletea model.
type Model struct {
	width, height int

	store   *store.Store
	alerts  *alert.Engine
	profile alert.Profile
	reports func() []bottleneck.Report // supplied by caller; nil is fine

	view   View
	cursor int
	paused bool
}

// New creates a dashboard model backed by st and eng. reports, when
// non-nil, is polled each tick to populate the bottleneck panel. profile
// selects which quality-rating bands the interfaces panel applies.
func New(st *store.Store, eng *alert.Engine, profile alert.Profile, reports func() []bottleneck.Report) Model {
	return Model{store: st, alerts: eng, profile: profile, reports: reports}
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd {
	return tickCmd()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case tickMsg:
		return m, tickCmd()

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.view = (m.view + 1) % 3
			m.cursor = 0
		case "p":
			m.paused = !m.paused
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			m.cursor++
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "initializing...\n"
	}

	var body string
	switch m.view {
	case ViewInterfaces:
		body = m.renderInterfaces()
	case ViewFlows:
		body = m.renderFlows()
	case ViewAlerts:
		body = m.renderAlerts()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		body,
		m.renderFooter(),
	)
}

func (m Model) renderHeader() string {
	tabs := []string{"interfaces", "flows", "alerts"}
	var parts []string
	for i, t := range tabs {
		style := styleTab
		if View(i) == m.view {
			style = styleTabActive
		}
		parts = append(parts, style.Render(t))
	}
	title := styleTitle.Render("netsniff")
	status := ""
	if m.paused {
		status = stylePaused.Render(" PAUSED")
	}
	return title + "  " + strings.Join(parts, "  ") + status
}

func (m Model) renderFooter() string {
	return styleFooter.Render("tab: switch panel  ·  p: pause  ·  q: quit")
}

func (m Model) renderInterfaces() string {
	snaps := m.store.AllSnapshots()
	if len(snaps) == 0 {
		return "no interfaces yet\n"
	}
	names := make([]string, 0, len(snaps))
	for name := range snaps {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %10s %10s %10s %8s %8s %10s\n", "IFACE", "PPS", "MBPS", "LOSS%", "AVGMS", "P99MS", "QUALITY")
	for _, name := range names {
		s := snaps[name]
		quality := alert.QualityRatingForSnapshot(m.profile, "latency", s)
		fmt.Fprintf(&b, "%-10s %10.1f %10.2f %10.2f %8.1f %8.1f %10s\n",
			name, s.PacketsPerSecond, s.BandwidthMbps, s.PacketLossPercent, s.AvgLatencyMS, s.P99LatencyMS, quality)
	}
	return b.String()
}

func (m Model) renderFlows() string {
	top := m.store.TopFlows(20, store.SortByBytes)
	if len(top) == 0 {
		return "no flows yet\n"
	}
	if m.cursor >= len(top) {
		m.cursor = len(top) - 1
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-34s %10s %8s %6s\n", "FLOW", "BYTES", "PACKETS", "RETX")
	for i, f := range top {
		label := fmt.Sprintf("%s:%d <-> %s:%d", f.Key.IPLo, f.Key.PortLo, f.Key.IPHi, f.Key.PortHi)
		row := fmt.Sprintf("%-34s %10d %8d %6d\n", label, f.Bytes, f.Packets, f.Retransmits)
		if i == m.cursor {
			row = styleTabActive.Render(row)
		}
		b.WriteString(row)
	}
	return b.String()
}

func (m Model) renderAlerts() string {
	var b strings.Builder
	active := m.alerts.ActiveAlerts()
	if len(active) == 0 {
		b.WriteString("no active alerts\n")
	}
	for _, a := range active {
		line := fmt.Sprintf("[%s] %s: %s\n", a.Severity, a.Interface, a.Message)
		switch a.Severity {
		case alert.SeverityCritical:
			b.WriteString(styleCritical.Render(line))
		case alert.SeverityWarning:
			b.WriteString(styleWarning.Render(line))
		default:
			b.WriteString(line)
		}
	}
	if m.reports != nil {
		if reports := m.reports(); len(reports) > 0 {
			b.WriteString("\nbottlenecks:\n")
			for _, r := range reports {
				if len(r.Bottlenecks) == 0 {
					fmt.Fprintf(&b, "  %s [%s]: healthy\n", r.Interface, r.Status)
					continue
				}
				descriptions := make([]string, len(r.Bottlenecks))
				for i, bn := range r.Bottlenecks {
					descriptions[i] = bn.Description
				}
				fmt.Fprintf(&b, "  %s [%s, score=%d]: %s\n", r.Interface, r.Status, r.HealthScore, strings.Join(descriptions, "; "))
			}
		}
	}
	return b.String()
}
