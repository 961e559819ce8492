// Package infra contains infrastructure adapters for the arbitrage context.
package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/cfmm-arb/business/arbitrage/app"
	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
)

var _ app.Reporter = (*ConsoleReporter)(nil)

const rule = "================================================================================"

// ConsoleReporter implements Reporter for CLI output.
type ConsoleReporter struct {
	out   io.Writer
	label func(liquidity.Token) string
	// MaxRows limits the cycles listed per report.
	MaxRows int

	mu sync.Mutex
}

// NewConsoleReporter creates a ConsoleReporter writing to out (stdout when nil). label may
// be nil.
func NewConsoleReporter(out io.Writer, label func(liquidity.Token) string) *ConsoleReporter {
	if out == nil {
		out = os.Stdout
	}
	if label == nil {
		label = func(t liquidity.Token) string { return t.Hex() }
	}
	return &ConsoleReporter{out: out, label: label, MaxRows: 10}
}

// Start initializes the console reporter.
func (r *ConsoleReporter) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "CFMM cycle search started")
	fmt.Fprintln(r.out, "=========================")
	return nil
}

// Report writes a search report.
func (r *ConsoleReporter) Report(rep *domain.Report) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, rule)
	fmt.Fprintf(r.out, "SEARCH %s\n", rep.ID)
	fmt.Fprintln(r.out, rule)
	if rep.Block > 0 {
		fmt.Fprintf(r.out, "Block:          #%d\n", rep.Block)
	}
	fmt.Fprintf(r.out, "Started:        %s\n", rep.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(r.out, "Start token:    %s\n", r.label(rep.Start))
	fmt.Fprintf(r.out, "Formulation:    %s\n", rep.Formulation)
	fmt.Fprintf(r.out, "Duration:       %s\n", rep.Duration.Round(time.Microsecond))
	fmt.Fprintln(r.out, strings.Repeat("-", len(rule)))

	st := rep.Stats
	truncated := ""
	if st.Truncated {
		truncated = " (truncated)"
	}
	fmt.Fprintf(r.out, "Cycles:         %d%s\n", st.Enumerated, truncated)
	fmt.Fprintf(r.out, "Prefiltered:    %d\n", st.Prefiltered)
	fmt.Fprintf(r.out, "Solved:         %d (%d retried)\n", st.Solved, st.Retried)
	fmt.Fprintf(r.out, "Profitable:     %d\n", st.Profitable)
	if st.Failed() > 0 {
		codes := make([]string, 0, len(st.Failures))
		for code, n := range st.Failures {
			codes = append(codes, fmt.Sprintf("%s=%d", code, n))
		}
		sort.Strings(codes)
		fmt.Fprintf(r.out, "Failures:       %s\n", strings.Join(codes, " "))
	}

	profitable := rep.Profitable()
	if len(profitable) > 0 {
		fmt.Fprintln(r.out, strings.Repeat("-", len(rule)))
		fmt.Fprintln(r.out, "PROFITABLE CYCLES")
		for i, res := range profitable {
			if i == r.MaxRows {
				fmt.Fprintf(r.out, "  ... %d more\n", len(profitable)-r.MaxRows)
				break
			}
			approx := ""
			if res.Approximate {
				approx = "  (solver estimate " + fixed(res.Estimate) + ")"
			}
			fmt.Fprintf(r.out, "  %2d. %s\n      in %s  out %s  profit %s%s\n",
				i+1, r.route(res),
				fixed(res.Input), fixed(res.Output), fixed(res.Profit), approx)
		}
	}

	fmt.Fprintln(r.out, strings.Repeat("-", len(rule)))
	fmt.Fprintln(r.out, "SELECTION")
	if len(rep.Selection.Picked) == 0 {
		fmt.Fprintln(r.out, "  nothing selected")
	}
	for _, c := range rep.Selection.Picked {
		fmt.Fprintf(r.out, "  %s  in %s  profit %s\n", c.Key, fixed(c.Input), fixed(c.Profit))
	}
	if len(rep.Selection.Picked) > 1 {
		fmt.Fprintf(r.out, "  total in %s  profit %s\n", fixed(rep.Selection.TotalInput), fixed(rep.Selection.TotalProfit))
	}
	for _, a := range rep.Linear {
		fmt.Fprintf(r.out, "  linear estimate #%d: %s at %s\n", a.Index+1, fixed(a.Amount), fixed(a.Profit))
	}
	fmt.Fprintln(r.out, rule)
}

func (r *ConsoleReporter) route(res domain.CycleResult) string {
	var b strings.Builder
	for k, leg := range res.Legs {
		if k == 0 {
			b.WriteString(r.label(leg.TokenIn))
		}
		fmt.Fprintf(&b, " -[%s]-> %s", leg.Pool, r.label(leg.TokenOut))
	}
	return b.String()
}

func fixed(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(6)
}

// UpdateStatus outputs connection status changes.
func (r *ConsoleReporter) UpdateStatus(name string, connected bool, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := "disconnected"
	if connected {
		status = fmt.Sprintf("connected (%s)", latency.Round(time.Millisecond))
	}
	fmt.Fprintf(r.out, "[%s] %s: %s\n", time.Now().Format("15:04:05"), name, status)
}

// Stop gracefully shuts down the console reporter.
func (r *ConsoleReporter) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, "")
	fmt.Fprintln(r.out, "CFMM cycle search stopped")
	return nil
}
