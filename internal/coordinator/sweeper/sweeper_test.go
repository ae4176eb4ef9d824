package sweeper

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	coordErrors "github.com/arcsign/custody/internal/coordinator/errors"
	"github.com/arcsign/custody/internal/coordinator/model"
)

// fakeStore implements only the sweeper's two dependency methods; every
// other store.Store method is unused here and left unimplemented.
type fakeStore struct {
	mu  sync.Mutex
	txs map[string]*model.Transaction
}

func (f *fakeStore) ListTimedOut(ctx context.Context, now time.Time) ([]*model.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range f.txs {
		if !tx.Status.IsTerminal() && tx.TimeoutAt.Before(now) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeStore) CASUpdateTransaction(ctx context.Context, txID string, expected model.TxStatus, mutate func(*model.Transaction)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[txID]
	if !ok {
		return coordErrors.NewNotFound(coordErrors.ErrCodeTxNotFound, "not found", nil)
	}
	if tx.Status != expected {
		return coordErrors.NewStateConflict(coordErrors.ErrCodeCASConflict, "status changed", nil)
	}
	mutate(tx)
	return nil
}

func TestSweepOnceFailsTimedOutTransactions(t *testing.T) {
	st := &fakeStore{txs: map[string]*model.Transaction{
		"tx-1": {TxID: "tx-1", Status: model.TxRound1, TimeoutAt: time.Now().Add(-time.Minute)},
		"tx-2": {TxID: "tx-2", Status: model.TxPending, TimeoutAt: time.Now().Add(time.Hour)},
	}}
	log, err := zap.NewDevelopment()
	require.NoError(t, err)

	s := New(st, log, time.Hour)
	s.sweepOnce(context.Background())

	require.Equal(t, model.TxFailed, st.txs["tx-1"].Status)
	require.NotEmpty(t, st.txs["tx-1"].ErrorMessage)
	require.Equal(t, model.TxPending, st.txs["tx-2"].Status)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	st := &fakeStore{txs: map[string]*model.Transaction{}}
	log, err := zap.NewDevelopment()
	require.NoError(t, err)

	s := New(st, log, 10*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
