package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/ticktape/cli/reader"
)

// StatsModel is a Bubble Tea model for stats views.
type StatsModel struct {
	viewType string
	data     any
	width    int
	height   int
	quitting bool
}

// NewStatsModel creates a new stats model.
func NewStatsModel(viewType string, data any) StatsModel {
	return StatsModel{
		viewType: viewType,
		data:     data,
	}
}

// Init implements tea.Model.
func (m StatsModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m StatsModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m StatsModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewStatsCapture:
		content = m.renderStatsCapture()
	case ViewStatsMetrics:
		content = m.renderStatsMetrics()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("Press q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m StatsModel) renderStatsCapture() string {
	data, ok := m.data.(*reader.CaptureStats)
	if !ok {
		return "Invalid data type for stats_capture"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Capture Statistics"))
	b.WriteString("\n\n")

	boxes := []string{
		m.renderStatBox("Bytes", data.Events, highlightColor),
		m.renderStatBox("Invalid", data.InvalidBytes, warningColor),
		m.renderStatBox("Emitted", data.Emitted, successColor),
		m.renderStatBox("Rejected", data.Rejected, errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, boxes...))
	b.WriteString("\n")

	m.writeBreakdown(&b, "By type:", data.EmittedByType)
	m.writeBreakdown(&b, "By reason:", data.RejectedByReason)
	return b.String()
}

func (m StatsModel) renderStatsMetrics() string {
	data, ok := m.data.(*reader.MetricsSnapshot)
	if !ok {
		return "Invalid data type for stats_metrics"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("Session %s", data.SessionID)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Feed:"), ValueStyle.Render(data.Feed)))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Policy:"), ValueStyle.Render(data.Policy)))
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render("Written:"), ValueStyle.Render(data.Ts)))
	b.WriteString("\n")

	decode := []string{
		m.renderStatBox("Bytes", data.BytesReceived, highlightColor),
		m.renderStatBox("Emitted", data.MessagesEmitted, successColor),
		m.renderStatBox("Rejected", data.MessagesRejected, errorColor),
	}
	delivery := []string{
		m.renderStatBox("Persisted", data.MessagesPersisted, successColor),
		m.renderStatBox("Dropped", data.MessagesDropped, warningColor),
		m.renderStatBox("Write Fails", data.LodeWriteFailure, errorColor),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, decode...))
	b.WriteString("\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, delivery...))
	b.WriteString("\n")

	m.writeBreakdown(&b, "By type:", data.EmittedByType)
	m.writeBreakdown(&b, "By reason:", data.RejectedByReason)
	m.writeBreakdown(&b, "Dropped:", data.DroppedByType)
	return b.String()
}

func (m StatsModel) writeBreakdown(b *strings.Builder, label string, counts map[string]int64) {
	if len(counts) == 0 {
		return
	}
	b.WriteString(fmt.Sprintf("%s %s\n", LabelStyle.Render(label), ValueStyle.Render(formatCounts(counts))))
}

func (m StatsModel) renderStatBox(label string, value int64, color lipgloss.Color) string {
	boxStyle := StatBoxStyle.BorderForeground(color)

	valueStr := StatValueStyle.Foreground(color).Render(fmt.Sprintf("%d", value))
	labelStr := StatLabelStyle.Render(label)

	content := lipgloss.JoinVertical(lipgloss.Center, valueStr, labelStr)

	return boxStyle.Render(content)
}

// RenderStatsStatic renders stats data without full TUI (for fallback).
func RenderStatsStatic(viewType string, data any) string {
	model := NewStatsModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
