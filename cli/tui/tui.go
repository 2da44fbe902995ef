package tui

import (
	"fmt"
	"slices"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// View types with a TUI.
const (
	ViewInspectCapture = "inspect_capture"
	ViewStatsCapture   = "stats_capture"
	ViewStatsMetrics   = "stats_metrics"
)

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
func Run(viewType string, data any) error {
	model, err := newModel(viewType, data)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(model, tea.WithAltScreen()).Run()
	return err
}

func newModel(viewType string, data any) (tea.Model, error) {
	if !IsTUISupported(viewType) {
		return nil, fmt.Errorf("TUI mode is not supported for %s", viewType)
	}
	if strings.HasPrefix(viewType, "inspect_") {
		return NewInspectModel(viewType, data), nil
	}
	return NewStatsModel(viewType, data), nil
}

// IsTUISupported returns true if the view type supports TUI mode.
// Only inspect and stats views have one.
func IsTUISupported(viewType string) bool {
	return slices.Contains(SupportedTUIViews(), viewType)
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{
		ViewInspectCapture,
		ViewStatsCapture,
		ViewStatsMetrics,
	}
}
