package transport

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arcsign/custody/internal/config"
	"github.com/arcsign/custody/internal/coordinator"
	"github.com/arcsign/custody/internal/coordinator/auth"
	coordErrors "github.com/arcsign/custody/internal/coordinator/errors"
	"github.com/arcsign/custody/internal/coordinator/model"
	"github.com/arcsign/custody/internal/coordinator/pubsub"
)

// memStore is a minimal in-memory store.Store fake, duplicated here (rather
// than exported from the coordinator package) since transport only needs it
// for wiring a real CoordinatorContext into an httptest server.
type memStore struct {
	mu           sync.Mutex
	vaults       map[string]*model.Vault
	transactions map[string]*model.Transaction
}

func newMemStore() *memStore {
	return &memStore{vaults: map[string]*model.Vault{}, transactions: map[string]*model.Transaction{}}
}

func (m *memStore) CreateVault(ctx context.Context, v *model.Vault) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vaults[v.VaultID] = v
	return nil
}
func (m *memStore) GetVault(ctx context.Context, vaultID string) (*model.Vault, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vaults[vaultID]
	if !ok {
		return nil, coordErrors.NewNotFound(coordErrors.ErrCodeVaultNotFound, "not found", nil)
	}
	return v, nil
}
func (m *memStore) CASUpdateVault(ctx context.Context, vaultID string, expected model.VaultStatus, mutate func(*model.Vault)) error {
	return coordErrors.NewNotFound(coordErrors.ErrCodeVaultNotFound, "unused in this test", nil)
}
func (m *memStore) CreateGuardian(ctx context.Context, g *model.Guardian) error { return nil }
func (m *memStore) GetGuardian(ctx context.Context, guardianID string) (*model.Guardian, error) {
	return nil, coordErrors.NewNotFound(coordErrors.ErrCodeGuardianNotFound, "unused", nil)
}
func (m *memStore) ListGuardiansByVault(ctx context.Context, vaultID string) ([]*model.Guardian, error) {
	return nil, nil
}
func (m *memStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transactions[tx.TxID] = tx
	return nil
}
func (m *memStore) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[txID]
	if !ok {
		return nil, coordErrors.NewNotFound(coordErrors.ErrCodeTxNotFound, "not found", nil)
	}
	return tx, nil
}
func (m *memStore) ListTransactionsByVaultAndStatus(ctx context.Context, vaultID string, status model.TxStatus) ([]*model.Transaction, error) {
	return nil, nil
}
func (m *memStore) CASUpdateTransaction(ctx context.Context, txID string, expected model.TxStatus, mutate func(*model.Transaction)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.transactions[txID]
	if !ok {
		return coordErrors.NewNotFound(coordErrors.ErrCodeTxNotFound, "not found", nil)
	}
	if tx.Status != expected {
		return coordErrors.NewStateConflict(coordErrors.ErrCodeCASConflict, "status changed", nil)
	}
	mutate(tx)
	return nil
}
func (m *memStore) ListTimedOut(ctx context.Context, now time.Time) ([]*model.Transaction, error) {
	return nil, nil
}

func testServer(t *testing.T) (*httptest.Server, *auth.Manager, *coordinator.CoordinatorContext) {
	t.Helper()
	log, err := zap.NewDevelopment()
	require.NoError(t, err)
	cfg := &config.Config{SecretKey: "s", SigningRoundTimeoutSeconds: 300, TransactionTimeoutSeconds: 3600}
	cc := coordinator.New(cfg, newMemStore(), pubsub.NewHub(), log)
	authMgr := auth.NewManager([]byte("s"), time.Hour)
	h := NewHandler(cc, authMgr, log)
	return httptest.NewServer(h), authMgr, cc
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestServeHTTPRejectsMissingToken(t *testing.T) {
	srv, _, _ := testServer(t)
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, 401, resp.StatusCode)
}

func TestServeHTTPUpgradesWithValidTokenAndBroadcastsPresence(t *testing.T) {
	srv, authMgr, _ := testServer(t)
	defer srv.Close()

	tokenA, err := authMgr.IssueToken("guardian-a", "vault-1")
	require.NoError(t, err)
	connA, _, err := gorillaws.DefaultDialer.Dial(wsURL(srv.URL)+"?token="+tokenA, nil)
	require.NoError(t, err)
	defer connA.Close()

	tokenB, err := authMgr.IssueToken("guardian-b", "vault-1")
	require.NoError(t, err)
	connB, _, err := gorillaws.DefaultDialer.Dial(wsURL(srv.URL)+"?token="+tokenB, nil)
	require.NoError(t, err)
	defer connB.Close()

	connA.SetReadDeadline(time.Now().Add(2 * time.Second))
	var env envelope
	require.NoError(t, connA.ReadJSON(&env))
	require.Equal(t, "GuardianConnected", env.Type)
}
