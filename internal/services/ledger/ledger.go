// Package ledger keeps the append-only record of session fills and the
// aggregates derived from it. Fills are persisted to a WAL so an interrupted
// run can resume without forgetting what it already bought.
package ledger

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/stacker/internal/domain"
	"go.uber.org/zap"
)

const (
	fillKeyPrefix       = "fill_"
	walSegmentThreshold = 1000
	walMaxSegments      = 100
	walDirPermissions   = 0o755
)

// Summary is a point-in-time view of the session aggregates.
type Summary struct {
	FillCount    int
	Acquired     decimal.Decimal
	TotalCost    decimal.Decimal
	AveragePrice decimal.Decimal
}

// Ledger is the single source of truth for what the session has acquired.
// One writer (the orchestrator's event path) appends; workers read aggregates.
type Ledger struct {
	mu        sync.RWMutex
	wal       *gowal.Wal
	fills     []domain.Fill
	acquired  decimal.Decimal
	totalCost decimal.Decimal
	logger    *zap.Logger
}

// New opens the WAL under dir and recovers any fills already logged there.
func New(dir string, pair domain.Pair, logger *zap.Logger) (*Ledger, error) {
	walDir := filepath.Join(dir, pair.String())
	if err := os.MkdirAll(walDir, walDirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", walDir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              walDir,
		Prefix:           "fills_",
		SegmentThreshold: walSegmentThreshold,
		MaxSegments:      walMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to open fill WAL")
	}

	l := &Ledger{
		wal:       wal,
		acquired:  decimal.Zero,
		totalCost: decimal.Zero,
		logger:    logger,
	}

	for msg := range wal.Iterator() {
		if !strings.HasPrefix(msg.Key, fillKeyPrefix) {
			continue
		}
		var fill domain.Fill
		if err := json.Unmarshal(msg.Value, &fill); err != nil {
			logger.Error("failed to unmarshal logged fill", zap.Error(err), zap.String("key", msg.Key))
			continue
		}
		l.fills = append(l.fills, fill)
		l.acquired = l.acquired.Add(fill.Quantity)
		l.totalCost = l.totalCost.Add(fill.Cost)
	}

	if len(l.fills) > 0 {
		logger.Info("recovered fills from WAL",
			zap.Int("fills", len(l.fills)),
			zap.String("acquired", l.acquired.String()))
	}

	return l, nil
}

// Append records a fill and updates the aggregates.
func (l *Ledger) Append(fill domain.Fill) error {
	data, err := json.Marshal(fill)
	if err != nil {
		return errors.Wrap(err, "failed to marshal fill")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	nextIndex := l.wal.CurrentIndex() + 1
	key := fmt.Sprintf("%s%d", fillKeyPrefix, nextIndex)
	if err := l.wal.Write(nextIndex, key, data); err != nil {
		return errors.Wrap(err, "failed to persist fill")
	}

	l.fills = append(l.fills, fill)
	l.acquired = l.acquired.Add(fill.Quantity)
	l.totalCost = l.totalCost.Add(fill.Cost)

	return nil
}

// Acquired returns the cumulative bought quantity.
func (l *Ledger) Acquired() decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.acquired
}

// Summary returns the current aggregates.
func (l *Ledger) Summary() Summary {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.summaryLocked()
}

func (l *Ledger) summaryLocked() Summary {
	avg := decimal.Zero
	if l.acquired.IsPositive() {
		avg = l.totalCost.Div(l.acquired)
	}
	return Summary{
		FillCount:    len(l.fills),
		Acquired:     l.acquired,
		TotalCost:    l.totalCost,
		AveragePrice: avg,
	}
}

// Fills returns a copy of the recorded fill sequence.
func (l *Ledger) Fills() []domain.Fill {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.Fill, len(l.fills))
	copy(out, l.fills)
	return out
}

// Recompute folds over the full fill log and replaces the incrementally
// maintained aggregates with the result. It returns the recomputed summary
// and whether the incrementals already matched. Run at shutdown as a
// consistency pass rather than trusting concurrent bookkeeping.
func (l *Ledger) Recompute() (Summary, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	acquired := decimal.Zero
	totalCost := decimal.Zero
	for _, fill := range l.fills {
		acquired = acquired.Add(fill.Quantity)
		totalCost = totalCost.Add(fill.Quantity.Mul(fill.Price))
	}

	consistent := acquired.Equal(l.acquired) && totalCost.Equal(l.totalCost)
	if !consistent {
		l.logger.Warn("ledger aggregates diverged from fill log, replacing",
			zap.String("incremental_acquired", l.acquired.String()),
			zap.String("recomputed_acquired", acquired.String()),
			zap.String("incremental_cost", l.totalCost.String()),
			zap.String("recomputed_cost", totalCost.String()))
	}

	l.acquired = acquired
	l.totalCost = totalCost

	return l.summaryLocked(), consistent
}

// Close closes the underlying WAL.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wal.Close()
}
