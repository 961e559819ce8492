// Package components provides reusable TUI components.
package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// CycleRow represents a solved cycle in the list.
type CycleRow struct {
	BlockNumber uint64
	Start       string
	Route       string
	Hops        int
	Input       float64
	Profit      float64
	Approximate bool
	Selected    bool
}

// CyclesComponent renders the most recent solved cycles with scrolling.
type CyclesComponent struct {
	rows    []CycleRow
	maxRows int
	visible int
	offset  int
}

// NewCyclesComponent creates a new cycles component.
func NewCyclesComponent(maxRows, visible int) *CyclesComponent {
	return &CyclesComponent{
		rows:    make([]CycleRow, 0, maxRows),
		maxRows: maxRows,
		visible: visible,
	}
}

// Add prepends rows, newest first.
func (c *CyclesComponent) Add(rows ...CycleRow) {
	c.rows = append(append(make([]CycleRow, 0, len(rows)+len(c.rows)), rows...), c.rows...)
	if len(c.rows) > c.maxRows {
		c.rows = c.rows[:c.maxRows]
	}
	c.offset = 0
}

// Clear clears all rows.
func (c *CyclesComponent) Clear() {
	c.rows = c.rows[:0]
	c.offset = 0
}

// Len returns the number of stored rows.
func (c *CyclesComponent) Len() int { return len(c.rows) }

// ScrollUp moves the window one row up.
func (c *CyclesComponent) ScrollUp() {
	if c.offset > 0 {
		c.offset--
	}
}

// ScrollDown moves the window one row down.
func (c *CyclesComponent) ScrollDown() {
	if c.offset+c.visible < len(c.rows) {
		c.offset++
	}
}

// View renders the cycles component.
func (c *CyclesComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	if len(c.rows) == 0 {
		return headerStyle.Render("CYCLES") + "\n\n  No profitable cycles yet..."
	}

	profitStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	flatStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	pickStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("CYCLES (%d)", len(c.rows))))
	b.WriteString("\n")
	b.WriteString("  Block     Hops   Input        Profit       Route\n")

	end := min(c.offset+c.visible, len(c.rows))
	for _, row := range c.rows[c.offset:end] {
		mark := " "
		if row.Selected {
			mark = pickStyle.Render("★")
		}
		approx := ""
		if row.Approximate {
			approx = "~"
		}
		style := flatStyle
		if row.Profit > 0 {
			style = profitStyle
		}
		b.WriteString(fmt.Sprintf("%s %-9d %-6d %-12.6g %s %s\n",
			mark,
			row.BlockNumber,
			row.Hops,
			row.Input,
			style.Render(fmt.Sprintf("%-12s", approx+fmt.Sprintf("%.6g", row.Profit))),
			row.Route,
		))
	}
	if len(c.rows) > c.visible {
		b.WriteString(flatStyle.Render(fmt.Sprintf("  rows %d-%d of %d", c.offset+1, end, len(c.rows))))
	}
	return b.String()
}
