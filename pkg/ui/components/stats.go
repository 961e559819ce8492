// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Stats holds search statistics for display.
type Stats struct {
	Searches     int64
	Enumerated   int64
	Prefiltered  int64
	Solved       int64
	Profitable   int64
	Retried      int64
	AvgLatencyMs float64
	Failures     map[string]int64
}

// StatsComponent renders statistics.
type StatsComponent struct {
	stats Stats
}

// NewStatsComponent creates a new stats component.
func NewStatsComponent() *StatsComponent {
	return &StatsComponent{stats: Stats{Failures: make(map[string]int64)}}
}

// Stats returns the current statistics.
func (s *StatsComponent) Stats() Stats {
	return s.stats
}

// Update updates the statistics.
func (s *StatsComponent) Update(stats Stats) {
	s.stats = stats
}

// View renders the stats component.
func (s *StatsComponent) View() string {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)

	profitableRate := float64(0)
	if s.stats.Solved > 0 {
		profitableRate = float64(s.stats.Profitable) / float64(s.stats.Solved) * 100
	}

	out := style.Render("STATS") + "\n" +
		fmt.Sprintf("Searches: %s  │  Cycles: %s  │  Prefiltered: %s  │  Solved: %s  │  Profitable: %s (%.1f%%)\n",
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Searches)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Enumerated)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Prefiltered)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Solved)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Profitable)),
			profitableRate,
		) +
		fmt.Sprintf("Avg search: %s  │  Retried: %s",
			valueStyle.Render(fmt.Sprintf("%.1fms", s.stats.AvgLatencyMs)),
			valueStyle.Render(fmt.Sprintf("%d", s.stats.Retried)),
		)

	if len(s.stats.Failures) == 0 {
		return out
	}
	codes := make([]string, 0, len(s.stats.Failures))
	for code := range s.stats.Failures {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	parts := make([]string, len(codes))
	for i, code := range codes {
		parts[i] = fmt.Sprintf("%s %s", strings.ToLower(code), errorStyle.Render(fmt.Sprintf("%d", s.stats.Failures[code])))
	}
	return out + "\nFailures: " + strings.Join(parts, "  ")
}
