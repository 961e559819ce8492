package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Pick is one selected cycle.
type Pick struct {
	Route  string
	Input  float64
	Profit float64
}

// Estimate is one entry of the zero-size budget split.
type Estimate struct {
	Route       string
	Coefficient float64
	Amount      float64
	Profit      float64
}

// SelectionComponent renders the latest selection and its linear estimate.
type SelectionComponent struct {
	start       string
	formulation string
	picks       []Pick
	totalInput  float64
	totalProfit float64
	exact       bool
	estimates   []Estimate
}

// NewSelectionComponent creates a new selection component.
func NewSelectionComponent() *SelectionComponent {
	return &SelectionComponent{exact: true}
}

// Update replaces the displayed selection.
func (s *SelectionComponent) Update(start, formulation string, picks []Pick, totalInput, totalProfit float64, exact bool, estimates []Estimate) {
	s.start = start
	s.formulation = formulation
	s.picks = picks
	s.totalInput = totalInput
	s.totalProfit = totalProfit
	s.exact = exact
	s.estimates = estimates
}

// View renders the selection component.
func (s *SelectionComponent) View() string {
	headerStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	labelStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	valueStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFFFF")).Bold(true)
	profitStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	warnStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B"))

	var b strings.Builder
	b.WriteString(headerStyle.Render("SELECTION"))
	b.WriteString("\n\n")
	if s.start == "" {
		b.WriteString(labelStyle.Render("  Waiting for the first search..."))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("  %s %s   %s %s\n",
		labelStyle.Render("Start:"), valueStyle.Render(s.start),
		labelStyle.Render("Model:"), valueStyle.Render(s.formulation)))
	if len(s.picks) == 0 {
		b.WriteString(labelStyle.Render("  Nothing profitable within budget"))
		b.WriteString("\n")
	}
	for i, p := range s.picks {
		b.WriteString(fmt.Sprintf("  %d. %s\n     in %s  profit %s\n",
			i+1, p.Route,
			valueStyle.Render(fmt.Sprintf("%.6g", p.Input)),
			profitStyle.Render(fmt.Sprintf("%.6g", p.Profit))))
	}
	if len(s.picks) > 1 {
		b.WriteString(fmt.Sprintf("  %s %s  %s %s\n",
			labelStyle.Render("Total in:"), valueStyle.Render(fmt.Sprintf("%.6g", s.totalInput)),
			labelStyle.Render("profit:"), profitStyle.Render(fmt.Sprintf("%.6g", s.totalProfit))))
	}
	if !s.exact {
		b.WriteString(warnStyle.Render("  search limit hit, selection may be suboptimal"))
		b.WriteString("\n")
	}

	if len(s.estimates) > 0 {
		b.WriteString("\n")
		b.WriteString(labelStyle.Render("  Linear estimate (rate x amount)"))
		b.WriteString("\n")
		for _, e := range s.estimates {
			b.WriteString(fmt.Sprintf("  %.4fx %-10.6g -> %s  %s\n",
				e.Coefficient, e.Amount,
				profitStyle.Render(fmt.Sprintf("%.6g", e.Profit)),
				labelStyle.Render(e.Route)))
		}
	}
	return b.String()
}
