// Package history persists search report summaries in SQLite through gorm.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/fd1az/cfmm-arb/business/arbitrage/app"
	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
)

var _ app.HistoryStore = (*Store)(nil)

type reportRecord struct {
	ID          string `gorm:"primaryKey"`
	Block       int64
	Start       string `gorm:"index"`
	Formulation string
	StartedAt   time.Time `gorm:"index"`
	DurationMS  float64
	Enumerated  int
	Solved      int
	Profitable  int
	Failed      int
	BestKey     string
	BestProfit  float64
	TotalProfit float64
	Selections  []selectionRecord `gorm:"foreignKey:ReportID;constraint:OnDelete:CASCADE"`
}

func (reportRecord) TableName() string { return "reports" }

type selectionRecord struct {
	ID       uint   `gorm:"primaryKey"`
	ReportID string `gorm:"index"`
	Position int
	CycleKey string
	Input    float64
	Profit   float64
}

func (selectionRecord) TableName() string { return "report_selections" }

// Store implements app.HistoryStore.
type Store struct {
	db *gorm.DB
}

// Open opens (or creates) the database at path and migrates it.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeStorageError, "open "+path)
	}
	if err := db.AutoMigrate(&reportRecord{}, &selectionRecord{}); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeStorageError, "migrate")
	}
	return &Store{db: db}, nil
}

// Save stores rep's summary and its selected cycles.
func (s *Store) Save(ctx context.Context, rep *domain.Report) error {
	sum := rep.Summary()
	rec := reportRecord{
		ID:          sum.ID,
		Block:       int64(sum.Block),
		Start:       sum.Start.Hex(),
		Formulation: sum.Formulation,
		StartedAt:   sum.StartedAt,
		DurationMS:  float64(sum.Duration.Microseconds()) / 1000,
		Enumerated:  sum.Enumerated,
		Solved:      sum.Solved,
		Profitable:  sum.Profitable,
		Failed:      sum.Failed,
		BestKey:     sum.BestKey,
		BestProfit:  sum.BestProfit,
		TotalProfit: sum.TotalProfit,
	}
	for i, c := range rep.Selection.Picked {
		rec.Selections = append(rec.Selections, selectionRecord{
			Position: i,
			CycleKey: c.Key,
			Input:    c.Input,
			Profit:   c.Profit,
		})
	}

	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return apperror.Wrap(err, apperror.CodeStorageError, "save report "+rec.ID)
	}
	return nil
}

// Recent returns the n latest summaries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]domain.Summary, error) {
	var recs []reportRecord
	err := s.db.WithContext(ctx).
		Preload("Selections", func(db *gorm.DB) *gorm.DB { return db.Order("position") }).
		Order("started_at desc").
		Limit(n).
		Find(&recs).Error
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeStorageError, "recent reports")
	}

	out := make([]domain.Summary, len(recs))
	for i, r := range recs {
		out[i] = domain.Summary{
			ID:          r.ID,
			Block:       uint64(r.Block),
			Start:       common.HexToAddress(r.Start),
			Formulation: r.Formulation,
			StartedAt:   r.StartedAt,
			Duration:    time.Duration(r.DurationMS * float64(time.Millisecond)),
			Enumerated:  r.Enumerated,
			Solved:      r.Solved,
			Profitable:  r.Profitable,
			Failed:      r.Failed,
			BestKey:     r.BestKey,
			BestProfit:  r.BestProfit,
			TotalProfit: r.TotalProfit,
		}
		for _, sel := range r.Selections {
			out[i].Selected = append(out[i].Selected, sel.CycleKey)
		}
	}
	return out, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
