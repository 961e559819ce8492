package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fd1az/cfmm-arb/business/arbitrage/app"
	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	blockchainDomain "github.com/fd1az/cfmm-arb/business/blockchain/domain"
	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
)

type fakeLiquidity struct {
	current *liquidity.Registry
	next    *liquidity.Registry
	err     error
}

func (f *fakeLiquidity) Refresh(context.Context) (*liquidity.Registry, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.current = f.next
	return f.next, nil
}

func (f *fakeLiquidity) Current() *liquidity.Registry { return f.current }

type recorder struct {
	mu      sync.Mutex
	reports []*domain.Report
	got     chan struct{}
}

func newRecorder() *recorder { return &recorder{got: make(chan struct{}, 16)} }

func (r *recorder) Start(context.Context) error { return nil }
func (r *recorder) Stop() error                 { return nil }

func (r *recorder) UpdateStatus(string, bool, time.Duration) {}

func (r *recorder) Report(rep *domain.Report) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
	select {
	case r.got <- struct{}{}:
	default:
	}
}

type memHistory struct {
	saved []domain.Summary
}

func (h *memHistory) Save(_ context.Context, rep *domain.Report) error {
	h.saved = append(h.saved, rep.Summary())
	return nil
}

func (h *memHistory) Recent(_ context.Context, n int) ([]domain.Summary, error) {
	return h.saved[max(0, len(h.saved)-n):], nil
}

func okSolver() app.Solver {
	return solverFunc(func(_ context.Context, sys *domain.System, _ domain.SolveParams) (*domain.Solution, error) {
		return zeroSolution(sys), nil
	})
}

func TestDetector_RunOnce(t *testing.T) {
	reg := registry(t, pool("p1", 100, 10), pool("p2", 90, 20))
	liq := &fakeLiquidity{next: reg}
	rec := newRecorder()
	hist := &memHistory{}

	d := app.NewDetector(liq, nil, newSearcher(t, okSolver(), nil), rec, hist,
		app.DetectorConfig{StartTokens: []liquidity.Token{tokA, tokB}, Refresh: true}, nil)

	reports, err := d.RunOnce(context.Background(), 42)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 2 || len(rec.reports) != 2 || len(hist.saved) != 2 {
		t.Fatalf("reports %d, reported %d, saved %d", len(reports), len(rec.reports), len(hist.saved))
	}
	for i, want := range []liquidity.Token{tokA, tokB} {
		if reports[i].Start != want || reports[i].Block != 42 {
			t.Errorf("report %d: start %s block %d", i, reports[i].Start.Hex(), reports[i].Block)
		}
		if hist.saved[i].ID != reports[i].ID {
			t.Errorf("saved id %s, want %s", hist.saved[i].ID, reports[i].ID)
		}
	}
}

func TestDetector_RefreshFailure(t *testing.T) {
	reg := registry(t, pool("p1", 100, 10), pool("p2", 90, 20))
	cfg := app.DetectorConfig{StartTokens: []liquidity.Token{tokA}, Refresh: true}

	t.Run("keeps previous snapshot", func(t *testing.T) {
		liq := &fakeLiquidity{current: reg, err: errors.New("rpc down")}
		d := app.NewDetector(liq, nil, newSearcher(t, okSolver(), nil), newRecorder(), nil, cfg, nil)
		reports, err := d.RunOnce(context.Background(), 1)
		if err != nil || len(reports) != 1 {
			t.Fatalf("reports %d err %v", len(reports), err)
		}
	})

	t.Run("nothing to fall back to", func(t *testing.T) {
		liq := &fakeLiquidity{err: errors.New("rpc down")}
		d := app.NewDetector(liq, nil, newSearcher(t, okSolver(), nil), newRecorder(), nil, cfg, nil)
		if _, err := d.RunOnce(context.Background(), 1); err == nil {
			t.Fatal("expected error")
		}
	})
}

type blockFeed chan *blockchainDomain.Block

func (b blockFeed) SubscribeBlocks(context.Context) (<-chan *blockchainDomain.Block, error) {
	return b, nil
}

func TestDetector_Triggers(t *testing.T) {
	reg := registry(t, pool("p1", 100, 10), pool("p2", 90, 20))
	cfg := app.DetectorConfig{StartTokens: []liquidity.Token{tokA}, Interval: 10 * time.Millisecond}

	t.Run("blocks", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		feed := make(blockFeed, 1)
		rec := newRecorder()
		d := app.NewDetector(&fakeLiquidity{current: reg}, feed, newSearcher(t, okSolver(), nil), rec, nil, cfg, nil)
		if err := d.Start(ctx); err != nil {
			t.Fatal(err)
		}
		feed <- &blockchainDomain.Block{Number: 7, Timestamp: time.Now()}

		select {
		case <-rec.got:
		case <-time.After(2 * time.Second):
			t.Fatal("no report for block")
		}
		rec.mu.Lock()
		defer rec.mu.Unlock()
		if rec.reports[0].Block != 7 {
			t.Errorf("block = %d, want 7", rec.reports[0].Block)
		}
	})

	t.Run("interval", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		rec := newRecorder()
		d := app.NewDetector(&fakeLiquidity{current: reg}, nil, newSearcher(t, okSolver(), nil), rec, nil, cfg, nil)
		if err := d.Start(ctx); err != nil {
			t.Fatal(err)
		}
		for range 2 {
			select {
			case <-rec.got:
			case <-time.After(2 * time.Second):
				t.Fatal("interval did not trigger a search")
			}
		}
		if err := d.Stop(); err != nil {
			t.Fatal(err)
		}
	})
}
