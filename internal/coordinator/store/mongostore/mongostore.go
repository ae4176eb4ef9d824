// Package mongostore implements store.Store on top of
// go.mongodb.org/mongo-driver, using a single-document ReplaceOne filtered
// on the expected current status as the compare-and-swap primitive spec.md
// §4.5/§5 requires ("update-if-current-state-matches"). MongoDB guarantees
// single-document writes are atomic, so a ReplaceOne whose filter includes
// the expected status either applies the full new document or matches
// nothing — there is no window where a concurrent writer can observe a
// partially-applied transition.
package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	coordErrors "github.com/arcsign/custody/internal/coordinator/errors"
	"github.com/arcsign/custody/internal/coordinator/model"
	"github.com/arcsign/custody/internal/coordinator/store"
)

var _ store.Store = (*Store)(nil)

// Store is the Mongo-backed store.Store implementation. One instance per
// coordinator process, injected into CoordinatorContext.
type Store struct {
	db *mongo.Database
}

// NewStore wraps an already-connected *mongo.Database.
func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

func (s *Store) vaults() *mongo.Collection      { return s.db.Collection("vaults") }
func (s *Store) guardians() *mongo.Collection   { return s.db.Collection("guardians") }
func (s *Store) transactions() *mongo.Collection { return s.db.Collection("transactions") }

// EnsureIndexes creates the indexes spec.md §6 "Persisted state layout"
// requires. Call once at startup.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	if _, err := s.guardians().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "invitation_code", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
	}); err != nil {
		return coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "creating guardian indexes", err)
	}
	if _, err := s.transactions().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "vault_id", Value: 1}, {Key: "status", Value: 1}}},
	}); err != nil {
		return coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "creating transaction indexes", err)
	}
	return nil
}

func (s *Store) CreateVault(ctx context.Context, v *model.Vault) error {
	if _, err := s.vaults().InsertOne(ctx, v); err != nil {
		return coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "inserting vault", err)
	}
	return nil
}

func (s *Store) GetVault(ctx context.Context, vaultID string) (*model.Vault, error) {
	var v model.Vault
	err := s.vaults().FindOne(ctx, bson.M{"_id": vaultID}).Decode(&v)
	if err == mongo.ErrNoDocuments {
		return nil, coordErrors.NewNotFound(coordErrors.ErrCodeVaultNotFound, "vault not found", err)
	}
	if err != nil {
		return nil, coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "fetching vault", err)
	}
	return &v, nil
}

func (s *Store) CASUpdateVault(ctx context.Context, vaultID string, expected model.VaultStatus, mutate func(*model.Vault)) error {
	current, err := s.GetVault(ctx, vaultID)
	if err != nil {
		return err
	}
	if current.Status != expected {
		return coordErrors.NewStateConflict(coordErrors.ErrCodeCASConflict, "vault status changed before update applied", nil)
	}
	mutate(current)

	res, err := s.vaults().ReplaceOne(ctx, bson.M{"_id": vaultID, "status": expected}, current)
	if err != nil {
		return coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "replacing vault", err)
	}
	if res.MatchedCount == 0 {
		return coordErrors.NewStateConflict(coordErrors.ErrCodeCASConflict, "vault status changed before update applied", nil)
	}
	return nil
}

func (s *Store) CreateGuardian(ctx context.Context, g *model.Guardian) error {
	if _, err := s.guardians().InsertOne(ctx, g); err != nil {
		return coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "inserting guardian", err)
	}
	return nil
}

func (s *Store) GetGuardian(ctx context.Context, guardianID string) (*model.Guardian, error) {
	var g model.Guardian
	err := s.guardians().FindOne(ctx, bson.M{"_id": guardianID}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return nil, coordErrors.NewNotFound(coordErrors.ErrCodeGuardianNotFound, "guardian not found", err)
	}
	if err != nil {
		return nil, coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "fetching guardian", err)
	}
	return &g, nil
}

func (s *Store) ListGuardiansByVault(ctx context.Context, vaultID string) ([]*model.Guardian, error) {
	cur, err := s.guardians().Find(ctx, bson.M{"vault_id": vaultID})
	if err != nil {
		return nil, coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "listing guardians", err)
	}
	defer cur.Close(ctx)

	var out []*model.Guardian
	for cur.Next(ctx) {
		var g model.Guardian
		if err := cur.Decode(&g); err != nil {
			return nil, coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "decoding guardian", err)
		}
		out = append(out, &g)
	}
	return out, nil
}

func (s *Store) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	if _, err := s.transactions().InsertOne(ctx, tx); err != nil {
		return coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "inserting transaction", err)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	var tx model.Transaction
	err := s.transactions().FindOne(ctx, bson.M{"_id": txID}).Decode(&tx)
	if err == mongo.ErrNoDocuments {
		return nil, coordErrors.NewNotFound(coordErrors.ErrCodeTxNotFound, "transaction not found", err)
	}
	if err != nil {
		return nil, coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "fetching transaction", err)
	}
	return &tx, nil
}

func (s *Store) ListTransactionsByVaultAndStatus(ctx context.Context, vaultID string, status model.TxStatus) ([]*model.Transaction, error) {
	cur, err := s.transactions().Find(ctx, bson.M{"vault_id": vaultID, "status": status})
	if err != nil {
		return nil, coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "listing transactions", err)
	}
	defer cur.Close(ctx)

	var out []*model.Transaction
	for cur.Next(ctx) {
		var tx model.Transaction
		if err := cur.Decode(&tx); err != nil {
			return nil, coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "decoding transaction", err)
		}
		out = append(out, &tx)
	}
	return out, nil
}

func (s *Store) CASUpdateTransaction(ctx context.Context, txID string, expected model.TxStatus, mutate func(*model.Transaction)) error {
	current, err := s.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if current.Status != expected {
		return coordErrors.NewStateConflict(coordErrors.ErrCodeCASConflict, "transaction status changed before update applied", nil)
	}
	mutate(current)
	current.UpdatedAt = time.Now()

	res, err := s.transactions().ReplaceOne(ctx, bson.M{"_id": txID, "status": expected}, current)
	if err != nil {
		return coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "replacing transaction", err)
	}
	if res.MatchedCount == 0 {
		return coordErrors.NewStateConflict(coordErrors.ErrCodeCASConflict, "transaction status changed before update applied", nil)
	}
	return nil
}

func (s *Store) ListTimedOut(ctx context.Context, now time.Time) ([]*model.Transaction, error) {
	filter := bson.M{
		"status": bson.M{"$nin": []model.TxStatus{model.TxCompleted, model.TxFailed, model.TxCancelled}},
		"$or": []bson.M{
			{"timeout_at": bson.M{"$lte": now}},
			{"round_timeout_at": bson.M{"$lte": now}},
		},
	}
	cur, err := s.transactions().Find(ctx, filter)
	if err != nil {
		return nil, coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "listing timed-out transactions", err)
	}
	defer cur.Close(ctx)

	var out []*model.Transaction
	for cur.Next(ctx) {
		var tx model.Transaction
		if err := cur.Decode(&tx); err != nil {
			return nil, coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "decoding transaction", err)
		}
		out = append(out, &tx)
	}
	return out, nil
}
