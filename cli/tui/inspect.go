package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/justapithecus/ticktape/cli/reader"
)

// chromeHeight is the number of lines taken by the summary box and help.
const chromeHeight = 12

// InspectModel is a Bubble Tea model for inspect views. Decoded messages
// are shown in a scrollable table below a capture summary.
type InspectModel struct {
	viewType string
	data     any
	table    table.Model
	width    int
	height   int
	quitting bool
}

// NewInspectModel creates a new inspect model.
func NewInspectModel(viewType string, data any) InspectModel {
	m := InspectModel{
		viewType: viewType,
		data:     data,
	}
	if resp, ok := data.(*reader.InspectCaptureResponse); ok {
		m.table = newMessageTable(resp.Messages)
	}
	return m
}

var messageColumns = []table.Column{
	{Title: "Seq", Width: 5},
	{Title: "Type", Width: 4},
	{Title: "Locate", Width: 6},
	{Title: "Timestamp", Width: 15},
	{Title: "Order Ref", Width: 12},
	{Title: "Side", Width: 4},
	{Title: "Shares", Width: 8},
	{Title: "Symbol", Width: 8},
	{Title: "Price", Width: 12},
	{Title: "Valid", Width: 5},
}

func newMessageTable(rows []reader.MessageRow) table.Model {
	trows := make([]table.Row, 0, len(rows))
	for _, r := range rows {
		trows = append(trows, messageTableRow(r))
	}

	t := table.New(
		table.WithColumns(messageColumns),
		table.WithRows(trows),
		table.WithFocused(true),
		table.WithHeight(min(len(trows)+1, 20)),
	)
	s := table.DefaultStyles()
	s.Header = HeaderStyle
	s.Selected = SelectedStyle
	t.SetStyles(s)
	return t
}

func messageTableRow(r reader.MessageRow) table.Row {
	shares := ""
	if r.Shares != 0 {
		shares = strconv.FormatUint(uint64(r.Shares), 10)
	}
	return table.Row{
		strconv.FormatInt(r.Seq, 10),
		r.Type,
		strconv.FormatUint(uint64(r.StockLocate), 10),
		strconv.FormatUint(r.Timestamp, 10),
		strconv.FormatUint(r.OrderRefNo, 10),
		r.Side,
		shares,
		r.Symbol,
		r.Price,
		strconv.FormatBool(r.Valid),
	}
}

// Init implements tea.Model.
func (m InspectModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InspectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if h := msg.Height - chromeHeight; h > 2 {
			m.table.SetHeight(min(h, len(m.table.Rows())+1))
		}
		return m, nil

	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.quitting = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m InspectModel) View() string {
	if m.quitting {
		return ""
	}

	var content string
	switch m.viewType {
	case ViewInspectCapture:
		content = m.renderInspectCapture()
	default:
		content = fmt.Sprintf("Unknown view type: %s", m.viewType)
	}

	help := HelpStyle.Render("↑/↓ scroll • q or Ctrl+C to quit")
	return content + "\n" + help
}

func (m InspectModel) renderInspectCapture() string {
	data, ok := m.data.(*reader.InspectCaptureResponse)
	if !ok {
		return "Invalid data type for inspect_capture"
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("Capture"))
	b.WriteString("\n\n")

	rows := [][]string{
		{"Path", data.Path},
		{"Format", data.Format},
		{"Events", strconv.Itoa(data.Events)},
		{"Decoded", strconv.Itoa(data.Decoded)},
	}
	if data.Feed != "" {
		rows = append(rows, []string{"Feed", data.Feed})
	}
	for _, row := range rows {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render(row[0]+":"),
			ValueStyle.Render(row[1])))
	}
	if data.Truncated {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Shown:"),
			StateStyle("truncated").Render(fmt.Sprintf("first %d", data.Limit))))
	}
	if len(data.Rejections) > 0 {
		b.WriteString(fmt.Sprintf("%s %s\n",
			LabelStyle.Render("Rejected:"),
			StateStyle("rejected").Render(formatCounts(data.Rejections))))
	}

	summary := BoxStyle.Render(b.String())
	if len(data.Messages) == 0 {
		return summary
	}
	return lipgloss.JoinVertical(lipgloss.Left, summary, m.table.View())
}

// formatCounts renders a count map as "k=v" pairs in key order.
func formatCounts(counts map[string]int64) string {
	names := make([]string, 0, len(counts))
	for k := range counts {
		names = append(names, k)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, k := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	return strings.Join(parts, " ")
}

// keyMap defines key bindings.
type keyMap struct {
	Quit key.Binding
}

var keys = keyMap{
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// RenderInspectStatic renders inspect data without full TUI (for fallback).
func RenderInspectStatic(viewType string, data any) string {
	model := NewInspectModel(viewType, data)
	model.width = 80
	model.height = 24
	return lipgloss.NewStyle().Padding(1, 2).Render(model.View())
}
