// Package store defines the persistence interface the coordinator depends
// on, in the same shape as the teacher's chainadapter/storage package (an
// interface plus one concrete backend) — generalized from a single-process
// TxStore to the CAS-gated document store spec.md §4.5/§5 requires.
package store

import (
	"context"
	"time"

	"github.com/arcsign/custody/internal/coordinator/model"
)

// Store is the coordinator's persistence contract. Every transition-writing
// method is a compare-and-swap keyed on the transaction's expected current
// status (spec.md §5 "Suspension points" — per-transaction critical
// sections must execute atomically w.r.t. concurrent submissions).
type Store interface {
	CreateVault(ctx context.Context, v *model.Vault) error
	GetVault(ctx context.Context, vaultID string) (*model.Vault, error)
	CASUpdateVault(ctx context.Context, vaultID string, expected model.VaultStatus, mutate func(*model.Vault)) error

	CreateGuardian(ctx context.Context, g *model.Guardian) error
	GetGuardian(ctx context.Context, guardianID string) (*model.Guardian, error)
	ListGuardiansByVault(ctx context.Context, vaultID string) ([]*model.Guardian, error)

	CreateTransaction(ctx context.Context, tx *model.Transaction) error
	GetTransaction(ctx context.Context, txID string) (*model.Transaction, error)
	ListTransactionsByVaultAndStatus(ctx context.Context, vaultID string, status model.TxStatus) ([]*model.Transaction, error)

	// CASUpdateTransaction applies mutate to the transaction currently at
	// txID only if its Status equals expected, persisting atomically. It
	// returns ErrCASConflict (via the caller's errors package) when the
	// expected status doesn't match, distinguishing a duplicate trigger
	// (caller's responsibility to ignore) from a genuine out-of-order
	// event.
	CASUpdateTransaction(ctx context.Context, txID string, expected model.TxStatus, mutate func(*model.Transaction)) error

	// ListTimedOut returns every non-terminal transaction whose TimeoutAt
	// or RoundTimeoutAt has passed deadline, for the sweeper to fail.
	ListTimedOut(ctx context.Context, now time.Time) ([]*model.Transaction, error)
}
