package domain

import (
	"sort"
	"time"

	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
)

// Failure is one cycle that did not produce a result.
type Failure struct {
	Key  string
	Code apperror.Code
	Err  string
	// Retried is set when a relaxed second solve was attempted.
	Retried bool
}

// Stats counts what happened to the enumerated cycles.
type Stats struct {
	Enumerated  int
	Truncated   bool
	Prefiltered int
	Solved      int
	Retried     int
	Profitable  int
	Failures    map[apperror.Code]int
}

// Failed returns the number of failed cycles.
func (s Stats) Failed() int {
	n := 0
	for _, c := range s.Failures {
		n += c
	}
	return n
}

// Report is the outcome of one search from one start token.
type Report struct {
	ID          string
	Block       uint64
	Start       liquidity.Token
	Formulation Formulation
	StartedAt   time.Time
	Duration    time.Duration
	Stats       Stats
	// Results holds every solved cycle, most profitable first.
	Results   []CycleResult
	Failures  []Failure
	Selection Selection
	// Linear is the zero-size estimate of how the budget would be split.
	Linear []Allocation
}

// NewReport returns an empty report for start.
func NewReport(start liquidity.Token, f Formulation) *Report {
	return &Report{
		Start:       start,
		Formulation: f,
		StartedAt:   time.Now(),
		Stats:       Stats{Failures: make(map[apperror.Code]int)},
	}
}

// AddFailure records a failed cycle under its taxonomy code.
func (r *Report) AddFailure(key string, err error, retried bool) {
	code := Classify(err)
	r.Stats.Failures[code]++
	r.Failures = append(r.Failures, Failure{Key: key, Code: code, Err: err.Error(), Retried: retried})
}

// AddResult records a solved cycle.
func (r *Report) AddResult(res CycleResult) {
	r.Stats.Solved++
	if res.Profit > 0 {
		r.Stats.Profitable++
	}
	r.Results = append(r.Results, res)
}

// Sort orders results by profit, then key.
func (r *Report) Sort() {
	sort.SliceStable(r.Results, func(i, j int) bool {
		if r.Results[i].Profit != r.Results[j].Profit {
			return r.Results[i].Profit > r.Results[j].Profit
		}
		return r.Results[i].Key < r.Results[j].Key
	})
}

// Best returns the most profitable result, if any cycle was profitable.
func (r *Report) Best() (CycleResult, bool) {
	if len(r.Results) == 0 || r.Results[0].Profit <= 0 {
		return CycleResult{}, false
	}
	return r.Results[0], true
}

// Profitable returns the results with positive profit.
func (r *Report) Profitable() []CycleResult {
	var out []CycleResult
	for _, res := range r.Results {
		if res.Profit > 0 {
			out = append(out, res)
		}
	}
	return out
}

// Summary is the persisted digest of a report.
type Summary struct {
	ID          string
	Block       uint64
	Start       liquidity.Token
	Formulation string
	StartedAt   time.Time
	Duration    time.Duration
	Enumerated  int
	Solved      int
	Profitable  int
	Failed      int
	BestKey     string
	BestProfit  float64
	Selected    []string
	TotalProfit float64
}

// Summary digests r.
func (r *Report) Summary() Summary {
	s := Summary{
		ID:          r.ID,
		Block:       r.Block,
		Start:       r.Start,
		Formulation: r.Formulation.String(),
		StartedAt:   r.StartedAt,
		Duration:    r.Duration,
		Enumerated:  r.Stats.Enumerated,
		Solved:      r.Stats.Solved,
		Profitable:  r.Stats.Profitable,
		Failed:      r.Stats.Failed(),
		TotalProfit: r.Selection.TotalProfit,
	}
	if best, ok := r.Best(); ok {
		s.BestKey, s.BestProfit = best.Key, best.Profit
	}
	for _, c := range r.Selection.Picked {
		s.Selected = append(s.Selected, c.Key)
	}
	return s
}
