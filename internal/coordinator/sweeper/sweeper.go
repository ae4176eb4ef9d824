// Package sweeper runs the periodic timeout enforcer spec.md §5
// "Cancellation and timeouts" requires: a background loop that finds every
// non-terminal transaction past its deadline and fails it.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/custody/internal/coordinator/errors"
	"github.com/arcsign/custody/internal/coordinator/model"
)

// timeoutStore is the narrow slice of store.Store the sweeper depends on —
// accepting this instead of the full interface keeps the sweeper testable
// without a fake that implements every store method.
type timeoutStore interface {
	ListTimedOut(ctx context.Context, now time.Time) ([]*model.Transaction, error)
	CASUpdateTransaction(ctx context.Context, txID string, expected model.TxStatus, mutate func(*model.Transaction)) error
}

// Sweeper polls timeoutStore.ListTimedOut on an interval and fails every
// transaction it returns. Grounded on a goroutine-with-ticker pattern
// rather than a cron-style external scheduler, since the coordinator is a
// single long-running process (spec.md §6 "Single-process service").
type Sweeper struct {
	Store    timeoutStore
	Log      *zap.Logger
	Interval time.Duration
}

// New constructs a Sweeper. A zero Interval defaults to 30s.
func New(st timeoutStore, log *zap.Logger, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{Store: st, Log: log, Interval: interval}
}

// Run blocks, sweeping on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

// sweepOnce performs a single pass, logging but not propagating individual
// failures — one transaction's timeout-fail error never halts the sweep of
// the rest.
func (s *Sweeper) sweepOnce(ctx context.Context) {
	timedOut, err := s.Store.ListTimedOut(ctx, time.Now())
	if err != nil {
		s.Log.Error("sweeper: failed to list timed-out transactions", zap.Error(err))
		return
	}

	for _, tx := range timedOut {
		if err := s.failOne(ctx, tx); err != nil {
			s.Log.Error("sweeper: failed to fail transaction", zap.String("tx_id", tx.TxID), zap.Error(err))
		}
	}
}

func (s *Sweeper) failOne(ctx context.Context, tx *model.Transaction) error {
	return s.Store.CASUpdateTransaction(ctx, tx.TxID, tx.Status, func(t *model.Transaction) {
		t.Status = model.TxFailed
		t.ErrorMessage = errors.NewTimedOut(errors.ErrCodeTransactionTimedOut, "transaction exceeded its deadline", nil).Error()
	})
}
