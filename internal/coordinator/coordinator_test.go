package coordinator

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcsign/custody/internal/config"
	coordErrors "github.com/arcsign/custody/internal/coordinator/errors"
	"github.com/arcsign/custody/internal/coordinator/model"
	"github.com/arcsign/custody/internal/coordinator/pubsub"
	"github.com/arcsign/custody/internal/custody/curve"
	"github.com/arcsign/custody/internal/custody/tecdsa"
)

// memStore is a hand-written in-memory store.Store fake — the coordinator
// package has no live MongoDB in this test environment, so CAS semantics are
// exercised against a map guarded by a mutex instead (mongostore.go's
// ReplaceOne-filtered-on-status pattern, reimplemented in memory).
type memStore struct {
	mu           sync.Mutex
	vaults       map[string]*model.Vault
	guardians    map[string]*model.Guardian
	transactions map[string]*model.Transaction
}

func newMemStore() *memStore {
	return &memStore{
		vaults:       make(map[string]*model.Vault),
		guardians:    make(map[string]*model.Guardian),
		transactions: make(map[string]*model.Transaction),
	}
}

func (m *memStore) CreateVault(ctx context.Context, v *model.Vault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *v
	m.vaults[v.VaultID] = &cp
	return nil
}

func (m *memStore) GetVault(ctx context.Context, vaultID string) (*model.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vaults[vaultID]
	if !ok {
		return nil, coordErrors.NewNotFound(coordErrors.ErrCodeVaultNotFound, "vault not found", nil)
	}
	cp := *v
	return &cp, nil
}

func (m *memStore) CASUpdateVault(ctx context.Context, vaultID string, expected model.VaultStatus, mutate func(*model.Vault)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vaults[vaultID]
	if !ok {
		return coordErrors.NewNotFound(coordErrors.ErrCodeVaultNotFound, "vault not found", nil)
	}
	if v.Status != expected {
		return coordErrors.NewStateConflict(coordErrors.ErrCodeCASConflict, "vault status changed", nil)
	}
	mutate(v)
	return nil
}

func (m *memStore) CreateGuardian(ctx context.Context, g *model.Guardian) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.guardians[g.GuardianID] = &cp
	return nil
}

func (m *memStore) GetGuardian(ctx context.Context, guardianID string) (*model.Guardian, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guardians[guardianID]
	if !ok {
		return nil, coordErrors.NewNotFound(coordErrors.ErrCodeGuardianNotFound, "guardian not found", nil)
	}
	cp := *g
	return &cp, nil
}

func (m *memStore) ListGuardiansByVault(ctx context.Context, vaultID string) ([]*model.Guardian, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Guardian
	for _, g := range m.guardians {
		if g.VaultID == vaultID {
			cp := *g
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *tx
	m.transactions[tx.TxID] = &cp
	return nil
}

func (m *memStore) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[txID]
	if !ok {
		return nil, coordErrors.NewNotFound(coordErrors.ErrCodeTxNotFound, "transaction not found", nil)
	}
	cp := *tx
	return &cp, nil
}

func (m *memStore) ListTransactionsByVaultAndStatus(ctx context.Context, vaultID string, status model.TxStatus) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range m.transactions {
		if tx.VaultID == vaultID && tx.Status == status {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memStore) CASUpdateTransaction(ctx context.Context, txID string, expected model.TxStatus, mutate func(*model.Transaction)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[txID]
	if !ok {
		return coordErrors.NewNotFound(coordErrors.ErrCodeTxNotFound, "transaction not found", nil)
	}
	if tx.Status != expected {
		return coordErrors.NewStateConflict(coordErrors.ErrCodeCASConflict, "transaction status changed", nil)
	}
	mutate(tx)
	tx.UpdatedAt = time.Now()
	return nil
}

func (m *memStore) ListTimedOut(ctx context.Context, now time.Time) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, tx := range m.transactions {
		if tx.Status.IsTerminal() {
			continue
		}
		if tx.TimeoutAt.Before(now) || tx.RoundTimeoutAt.Before(now) {
			cp := *tx
			out = append(out, &cp)
		}
	}
	return out, nil
}

func testContext(t *testing.T) (*CoordinatorContext, *memStore) {
	t.Helper()
	st := newMemStore()
	log, err := zap.NewDevelopment()
	require.NoError(t, err)
	cfg := &config.Config{
		SecretKey:                  "test-secret",
		SigningRoundTimeoutSeconds: 300,
		TransactionTimeoutSeconds:  3600,
	}
	return New(cfg, st, pubsub.NewHub(), log), st
}

// threeGuardianShares splits a random private key into three additive
// shares summing to it, mirroring how internal/custody/shares would
// distribute a vault's signing key across its guardians.
func threeGuardianShares(t *testing.T) (priv curve.Scalar, pub curve.CurvePoint, shares []curve.Scalar) {
	t.Helper()
	priv, err := curve.RandomScalar()
	require.NoError(t, err)
	pub = curve.ScalarBaseMult(priv)

	s1, err := curve.RandomScalar()
	require.NoError(t, err)
	s2, err := curve.RandomScalar()
	require.NoError(t, err)
	s3 := priv.Sub(s1).Sub(s2)
	return priv, pub, []curve.Scalar{s1, s2, s3}
}

// runFullSigningCeremony drives SubmitRound1/SubmitRound3 for every
// guardian share and returns the completed transaction.
func runFullSigningCeremony(t *testing.T, cc *CoordinatorContext, txID string, shares []curve.Scalar, z curve.Scalar, isEthereum bool) *model.Transaction {
	t.Helper()
	ctx := context.Background()

	type partyState struct {
		guardianID string
		k          curve.Scalar
		r          curve.CurvePoint
		x          curve.Scalar
	}
	parties := make([]partyState, len(shares))
	for i, share := range shares {
		k, r, err := tecdsa.Round1()
		require.NoError(t, err)
		parties[i] = partyState{guardianID: guardianIDFor(i), k: k, r: r, x: share}
	}

	for _, p := range parties {
		err := cc.SubmitRound1(ctx, txID, p.guardianID, p.guardianID, p.r.Compressed(), p.k)
		require.NoError(t, err)
	}

	tx, err := cc.Store.GetTransaction(ctx, txID)
	require.NoError(t, err)
	require.Equal(t, model.TxRound3, tx.Status)
	require.NotNil(t, tx.Round2Data)

	r2 := tecdsa.Round2Result{RX: curve.NewScalar(tx.Round2Data.R.V), K: curve.NewScalar(tx.Round2Data.K.V)}
	for _, p := range parties {
		sI, err := tecdsa.Round3(r2, z, p.x, len(parties))
		require.NoError(t, err)
		err = cc.SubmitRound3(ctx, txID, p.guardianID, p.guardianID, sI.BigInt())
		require.NoError(t, err)
	}

	final, err := cc.Store.GetTransaction(ctx, txID)
	require.NoError(t, err)
	return final
}

func guardianIDFor(i int) string {
	return []string{"guardian-a", "guardian-b", "guardian-c"}[i]
}

func TestFullSigningCeremonyProducesVerifiableSignature(t *testing.T) {
	cc, st := testContext(t)
	priv, pub, shares := threeGuardianShares(t)
	_ = priv

	st.vaults["vault-1"] = &model.Vault{
		VaultID: "vault-1", CoinType: model.CoinBitcoin, Status: model.VaultActive,
		Threshold: 3, TotalGuardians: 3,
	}

	var msgHash [32]byte
	msgHash[0] = 0xAB

	tx, err := cc.CreateTransaction(context.Background(), CreateTransactionRequest{
		TxID: "tx-1", VaultID: "vault-1", CoinType: model.CoinBitcoin, Type: model.TxSend,
		Amount: big.NewInt(50000), Recipient: "bc1qexample", Fee: big.NewInt(500),
		MessageHash: msgHash, SigningPubKey: pub, SignaturesRequired: 3,
	})
	require.NoError(t, err)
	require.Equal(t, model.TxPending, tx.Status)

	z, err := curve.ScalarFromBytes(msgHash[:])
	require.NoError(t, err)

	final := runFullSigningCeremony(t, cc, "tx-1", shares, z, false)
	require.Equal(t, model.TxCompleted, final.Status)
	require.NotNil(t, final.FinalSignature)
	require.Nil(t, final.FinalSignature.RecoveryID)

	r := curve.NewScalar(final.FinalSignature.R.V)
	s := curve.NewScalar(final.FinalSignature.S.V)
	require.False(t, r.IsZero())
	require.False(t, s.IsZero())

	// Verify against the joint public key using the standard ECDSA
	// verification equation: with w = s^-1, (z*w)*G + (r*w)*Q must have
	// x-coordinate r mod n.
	sInv := s.Invert()
	u1 := z.Mul(sInv)
	u2 := r.Mul(sInv)
	reconstructed := curve.ScalarBaseMult(u1).Add(pub.ScalarMult(u2))
	x, _ := reconstructed.XY()
	require.Equal(t, 0, curve.NewScalar(x).Cmp(r))
}

func TestFullSigningCeremonyInfersEthereumRecoveryID(t *testing.T) {
	cc, st := testContext(t)
	_, pub, shares := threeGuardianShares(t)

	st.vaults["vault-2"] = &model.Vault{
		VaultID: "vault-2", CoinType: model.CoinEthereum, Status: model.VaultActive,
		Threshold: 3, TotalGuardians: 3,
	}

	var msgHash [32]byte
	msgHash[0] = 0xCD

	_, err := cc.CreateTransaction(context.Background(), CreateTransactionRequest{
		TxID: "tx-2", VaultID: "vault-2", CoinType: model.CoinEthereum, Type: model.TxSend,
		Amount: big.NewInt(1), Recipient: "0xexample", Fee: big.NewInt(1),
		MessageHash: msgHash, SigningPubKey: pub, SignaturesRequired: 3,
	})
	require.NoError(t, err)

	z, err := curve.ScalarFromBytes(msgHash[:])
	require.NoError(t, err)

	final := runFullSigningCeremony(t, cc, "tx-2", shares, z, true)
	require.Equal(t, model.TxCompleted, final.Status)
	require.NotNil(t, final.FinalSignature.RecoveryID)
	require.Contains(t, []int{0, 1}, *final.FinalSignature.RecoveryID)
}

func TestCreateTransactionRejectsInactiveVault(t *testing.T) {
	cc, st := testContext(t)
	st.vaults["vault-3"] = &model.Vault{VaultID: "vault-3", CoinType: model.CoinBitcoin, Status: model.VaultSetup}

	_, err := cc.CreateTransaction(context.Background(), CreateTransactionRequest{
		TxID: "tx-3", VaultID: "vault-3", CoinType: model.CoinBitcoin,
		Amount: big.NewInt(1), Fee: big.NewInt(1), SignaturesRequired: 1,
	})
	require.Error(t, err)
	require.True(t, coordErrors.IsStateConflict(err))
}

func TestSubmitRound1RejectsIdentityMismatch(t *testing.T) {
	cc, st := testContext(t)
	st.vaults["vault-4"] = &model.Vault{VaultID: "vault-4", CoinType: model.CoinBitcoin, Status: model.VaultActive}
	st.transactions["tx-4"] = &model.Transaction{TxID: "tx-4", VaultID: "vault-4", Status: model.TxPending, SignaturesRequired: 1}

	kI, rPoint, err := tecdsa.Round1()
	require.NoError(t, err)

	err = cc.SubmitRound1(context.Background(), "tx-4", "guardian-real", "guardian-claimed", rPoint.Compressed(), kI)
	require.Error(t, err)
	require.True(t, coordErrors.IsIdentityMismatch(err))
}

func TestCancelTransactionRejectsAfterRound2(t *testing.T) {
	cc, st := testContext(t)
	st.transactions["tx-5"] = &model.Transaction{TxID: "tx-5", VaultID: "vault-5", Status: model.TxRound3, SignaturesRequired: 1}

	err := cc.CancelTransaction(context.Background(), "tx-5")
	require.Error(t, err)
	require.True(t, coordErrors.IsStateConflict(err))
}
