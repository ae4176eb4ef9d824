// Package coordinator implements the transaction-signing state machine
// (spec.md §4.5): create_transaction, submit_round1, execute_round2,
// submit_round3, execute_round4, and the read-only round/signature
// fetches. All handlers are methods on CoordinatorContext — no
// package-level singletons (spec.md §9 "Re-architecting global state").
package coordinator

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"

	"github.com/arcsign/custody/internal/config"
	coordErrors "github.com/arcsign/custody/internal/coordinator/errors"
	"github.com/arcsign/custody/internal/coordinator/model"
	"github.com/arcsign/custody/internal/coordinator/pubsub"
	"github.com/arcsign/custody/internal/coordinator/store"
	"github.com/arcsign/custody/internal/custody/curve"
	"github.com/arcsign/custody/internal/custody/tecdsa"
)

// CoordinatorContext holds every dependency the signing state machine
// needs, injected at startup rather than reached for as package globals.
type CoordinatorContext struct {
	Config *config.Config
	Store  store.Store
	Hub    *pubsub.Hub
	Log    *zap.Logger
}

// New wires a CoordinatorContext from its dependencies.
func New(cfg *config.Config, st store.Store, hub *pubsub.Hub, log *zap.Logger) *CoordinatorContext {
	return &CoordinatorContext{Config: cfg, Store: st, Hub: hub, Log: log}
}

// CreateTransactionRequest is the client-supplied intent; MessageHash is
// computed by the caller's chain-specific codec (internal/custody/txcodec)
// before CreateTransaction is invoked, since only the caller knows how to
// build the UTXO set / nonce / gas parameters for the chain in question.
type CreateTransactionRequest struct {
	TxID               string
	VaultID            string
	CoinType           model.CoinType
	Type               model.TxType
	Amount             *big.Int
	Recipient          string
	Fee                *big.Int
	Memo               string
	MessageHash        [32]byte
	SigningPubKey      curve.CurvePoint
	SignaturesRequired int
}

// CreateTransaction validates the vault is Active and the coin type
// matches, then persists a new Pending transaction and broadcasts
// SigningNewTransaction to the vault's room (spec.md §4.5).
func (c *CoordinatorContext) CreateTransaction(ctx context.Context, req CreateTransactionRequest) (*model.Transaction, error) {
	vault, err := c.Store.GetVault(ctx, req.VaultID)
	if err != nil {
		return nil, err
	}
	if !vault.CanSign() {
		return nil, coordErrors.NewStateConflict(coordErrors.ErrCodeVaultNotActive, "vault is not Active", nil)
	}
	if vault.CoinType != req.CoinType {
		return nil, coordErrors.NewBadInput(coordErrors.ErrCodeCoinTypeMismatch, "transaction coin type does not match vault", nil)
	}

	now := time.Now()
	tx := &model.Transaction{
		TxID:               req.TxID,
		VaultID:            req.VaultID,
		CoinType:           req.CoinType,
		Type:               req.Type,
		Amount:             model.NewDecimalBig(req.Amount),
		Recipient:          req.Recipient,
		Fee:                model.NewDecimalBig(req.Fee),
		Memo:               req.Memo,
		MessageHashHex:     fmt.Sprintf("%x", req.MessageHash),
		SigningPubKeyHex:   signingPubKeyHex(req.SigningPubKey),
		Status:             model.TxPending,
		SignaturesRequired: req.SignaturesRequired,
		TimeoutAt:          now.Add(time.Duration(c.Config.TransactionTimeoutSeconds) * time.Second),
		RoundTimeoutAt:     now.Add(time.Duration(c.Config.SigningRoundTimeoutSeconds) * time.Second),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := c.Store.CreateTransaction(ctx, tx); err != nil {
		return nil, err
	}

	c.Hub.Broadcast(req.VaultID, "SigningNewTransaction", map[string]interface{}{
		"tx_id":        tx.TxID,
		"type":         tx.Type,
		"amount":       tx.Amount.String(),
		"recipient":    tx.Recipient,
		"message_hash": tx.MessageHashHex,
	})

	return tx, nil
}

// SubmitRound1 records one guardian's nonce commitment and its nonce k_i.
// The caller must have already authenticated the session and passed the
// matching guardianID — sessionGuardianID is the identity the transport
// layer authenticated, req guardianID is what was claimed in the message
// body; a mismatch is IdentityMismatch regardless of message contents.
// Per spec.md §4.4/§9, the coordinator must see k_i (not just R_i) to
// compute the joint nonce k = Σ k_i that Round3 requires.
func (c *CoordinatorContext) SubmitRound1(ctx context.Context, txID, sessionGuardianID, claimedGuardianID string, rCompressed [33]byte, kI curve.Scalar) error {
	if sessionGuardianID != claimedGuardianID {
		return coordErrors.NewIdentityMismatch(coordErrors.ErrCodeGuardianMismatch, "submitting guardian does not match authenticated session", nil)
	}
	if _, err := curve.DecodePoint(rCompressed[:]); err != nil {
		return coordErrors.NewInvalidContribution(coordErrors.ErrCodeOffCurvePoint, "round1 commitment is not a valid curve point", err)
	}
	if kI.IsZero() {
		return coordErrors.NewInvalidContribution(coordErrors.ErrCodeZeroNonce, "round1 nonce k_i is zero", nil)
	}

	contrib := model.Round1Contribution{RCompressedHex: fmt.Sprintf("%x", rCompressed), KIHex: kI.Hex()}

	var readyForRound2 bool
	var tx *model.Transaction

	err := c.Store.CASUpdateTransaction(ctx, txID, model.TxRound1, func(t *model.Transaction) {
		if t.Round1Data == nil {
			t.Round1Data = make(map[string]model.Round1Contribution)
		}
		t.Round1Data[claimedGuardianID] = contrib
		if len(t.Round1Data) == t.SignaturesRequired {
			readyForRound2 = true
		}
		tx = t
	})
	if err != nil {
		// First submission of a Pending transaction moves it to Round1.
		if coordErrors.IsStateConflict(err) {
			if casErr := c.Store.CASUpdateTransaction(ctx, txID, model.TxPending, func(t *model.Transaction) {
				if t.Round1Data == nil {
					t.Round1Data = make(map[string]model.Round1Contribution)
				}
				t.Round1Data[claimedGuardianID] = contrib
				t.Status = model.TxRound1
				if len(t.Round1Data) == t.SignaturesRequired {
					readyForRound2 = true
				}
				tx = t
			}); casErr == nil {
				err = nil
			} else {
				return casErr
			}
		} else {
			return err
		}
	}

	if readyForRound2 && tx != nil {
		return c.executeRound2(ctx, tx.TxID)
	}
	return nil
}

// executeRound2 is a pure function of round1_data: decode and aggregate
// the nonce commitments and nonces, compute r and the joint k, transition
// to Round3, and broadcast SigningRound2Ready. Per DESIGN.md's Open
// Question #2 decision, the coordinator is trusted with every k_i — this
// is the normative design spec.md §9 calls out, not a simplification to
// route around.
func (c *CoordinatorContext) executeRound2(ctx context.Context, txID string) error {
	tx, err := c.Store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}

	contributions := make([]tecdsa.Round1Contribution, 0, len(tx.Round1Data))
	for _, contrib := range tx.Round1Data {
		raw, err := hex.DecodeString(contrib.RCompressedHex)
		if err != nil {
			return coordErrors.NewInvalidContribution(coordErrors.ErrCodeOffCurvePoint, "stored round1 commitment is malformed", err)
		}
		p, err := curve.DecodePoint(raw)
		if err != nil {
			return coordErrors.NewInvalidContribution(coordErrors.ErrCodeOffCurvePoint, "stored round1 commitment is off-curve", err)
		}
		kI, err := curve.ScalarFromHex(contrib.KIHex)
		if err != nil {
			return coordErrors.NewInvalidContribution(coordErrors.ErrCodeOffCurvePoint, "stored round1 nonce is malformed", err)
		}
		contributions = append(contributions, tecdsa.Round1Contribution{R: p, K: kI})
	}

	r2, err := tecdsa.AggregateRound2(contributions)
	if err != nil {
		return c.failTransaction(ctx, txID, model.TxRound1, "round2", err)
	}

	// Two CAS writes, matching the state diagram's Round1->Round2->Round3
	// edges exactly: the first persists round2_data and marks the
	// coordinator-aggregation state, the second immediately advances to
	// Round3 now that (r, R, k) are available for guardians to fetch. No
	// guardian input gates the second transition — it is the coordinator's
	// own pure function of round1_data completing.
	rCompressed := r2.R.Compressed()
	err = c.Store.CASUpdateTransaction(ctx, txID, model.TxRound1, func(t *model.Transaction) {
		t.Round2Data = &model.Round2Data{
			RCompressedHex: fmt.Sprintf("%x", rCompressed),
			R:              model.NewDecimalBig(r2.RX.BigInt()),
			K:              model.NewDecimalBig(r2.K.BigInt()),
		}
		t.Status = model.TxRound2
	})
	if err != nil {
		return err
	}

	err = c.Store.CASUpdateTransaction(ctx, txID, model.TxRound2, func(t *model.Transaction) {
		t.Status = model.TxRound3
		t.RoundTimeoutAt = time.Now().Add(time.Duration(c.Config.SigningRoundTimeoutSeconds) * time.Second)
	})
	if err != nil {
		return err
	}

	c.Hub.Broadcast(tx.VaultID, "SigningRound2Ready", map[string]interface{}{
		"tx_id": txID,
		"r":     r2.RX.Hex(),
	})
	return nil
}

// SubmitRound3 records one guardian's signature share s_i, triggering
// execute_round4 once every required guardian has submitted.
func (c *CoordinatorContext) SubmitRound3(ctx context.Context, txID, sessionGuardianID, claimedGuardianID string, sI *big.Int) error {
	if sessionGuardianID != claimedGuardianID {
		return coordErrors.NewIdentityMismatch(coordErrors.ErrCodeGuardianMismatch, "submitting guardian does not match authenticated session", nil)
	}

	var readyForRound4 bool
	err := c.Store.CASUpdateTransaction(ctx, txID, model.TxRound3, func(t *model.Transaction) {
		if t.Round3Data == nil {
			t.Round3Data = make(map[string]model.Round3Contribution)
		}
		t.Round3Data[claimedGuardianID] = model.Round3Contribution{SI: model.NewDecimalBig(sI)}
		if len(t.Round3Data) == t.SignaturesRequired {
			readyForRound4 = true
		}
	})
	if err != nil {
		return err
	}

	if readyForRound4 {
		return c.executeRound4(ctx, txID)
	}
	return nil
}

// executeRound4 sums every s_i, normalizes to low-S, infers an Ethereum
// recovery id when applicable, and persists the terminal Completed state.
func (c *CoordinatorContext) executeRound4(ctx context.Context, txID string) error {
	tx, err := c.Store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Round2Data == nil {
		return coordErrors.NewStateConflict(coordErrors.ErrCodeIllegalTransition, "round4 invoked before round2 completed", nil)
	}

	contributions := make([]curve.Scalar, 0, len(tx.Round3Data))
	for _, c3 := range tx.Round3Data {
		contributions = append(contributions, curve.NewScalar(c3.SI.V))
	}

	zBytes, err := hex.DecodeString(tx.MessageHashHex)
	if err != nil {
		return c.failTransaction(ctx, txID, model.TxRound3, "round4", err)
	}
	z, err := curve.ScalarFromBytes(zBytes)
	if err != nil {
		return c.failTransaction(ctx, txID, model.TxRound3, "round4", err)
	}

	r2 := tecdsa.Round2Result{RX: curve.NewScalar(tx.Round2Data.R.V)}

	isEthereum := tx.CoinType == model.CoinEthereum
	var jointPubKey curve.CurvePoint
	if isEthereum {
		jointPubKey, err = decodeSigningPubKey(tx.SigningPubKeyHex)
		if err != nil {
			return c.failTransaction(ctx, txID, model.TxRound3, "round4", err)
		}
	}

	sig, err := tecdsa.AggregateRound4(r2, contributions, z, jointPubKey, isEthereum)
	if err != nil {
		return c.failTransaction(ctx, txID, model.TxRound3, "round4", err)
	}

	final := &model.FinalSignatureData{
		R: model.NewDecimalBig(sig.R.BigInt()),
		S: model.NewDecimalBig(sig.S.BigInt()),
	}
	if sig.RecoveryID != nil {
		recID := int(*sig.RecoveryID)
		final.RecoveryID = &recID
	}

	err = c.Store.CASUpdateTransaction(ctx, txID, model.TxRound3, func(t *model.Transaction) {
		t.FinalSignature = final
		t.Status = model.TxCompleted
		t.SignaturesReceived = len(tx.Round3Data)
	})
	if err != nil {
		return err
	}

	c.Hub.Broadcast(tx.VaultID, "SigningComplete", map[string]interface{}{
		"tx_id": txID,
	})
	return nil
}

// failTransaction moves a transaction to Failed, recording which round
// produced the failure — never including share material in the message.
func (c *CoordinatorContext) failTransaction(ctx context.Context, txID string, expected model.TxStatus, round string, cause error) error {
	updateErr := c.Store.CASUpdateTransaction(ctx, txID, expected, func(t *model.Transaction) {
		t.Status = model.TxFailed
		t.ErrorMessage = fmt.Sprintf("%s failed: %v", round, cause)
	})
	if updateErr != nil {
		c.Log.Error("failed to persist transaction failure", zap.String("tx_id", txID), zap.Error(updateErr))
		return updateErr
	}
	return coordErrors.NewInvalidContribution(coordErrors.ErrCodeZeroSignature, fmt.Sprintf("%s failed", round), cause)
}

// CancelTransaction cancels a transaction that hasn't progressed past
// Round1 (spec.md §5 "Explicit cancel is only valid while Pending or
// Round1").
func (c *CoordinatorContext) CancelTransaction(ctx context.Context, txID string) error {
	tx, err := c.Store.GetTransaction(ctx, txID)
	if err != nil {
		return err
	}
	if tx.Status != model.TxPending && tx.Status != model.TxRound1 {
		return coordErrors.NewStateConflict(coordErrors.ErrCodeIllegalTransition, "cancel only valid before round2", nil)
	}
	return c.Store.CASUpdateTransaction(ctx, txID, tx.Status, func(t *model.Transaction) {
		t.Status = model.TxCancelled
	})
}

// GetRound2Data returns the published (r, R, k) aggregate a guardian needs to
// compute its Round3 contribution. Returns NotFound until execute_round2
// has run.
func (c *CoordinatorContext) GetRound2Data(ctx context.Context, txID string) (*model.Round2Data, error) {
	tx, err := c.Store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Round2Data == nil {
		return nil, coordErrors.NewNotFound(coordErrors.ErrCodeTxNotFound, "round2 data not yet available", nil)
	}
	return tx.Round2Data, nil
}

// GetFinalSignature returns the assembled (r, s[, v]) signature. Returns
// NotFound until execute_round4 has run.
func (c *CoordinatorContext) GetFinalSignature(ctx context.Context, txID string) (*model.FinalSignatureData, error) {
	tx, err := c.Store.GetTransaction(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.FinalSignature == nil {
		return nil, coordErrors.NewNotFound(coordErrors.ErrCodeTxNotFound, "final signature not yet available", nil)
	}
	return tx.FinalSignature, nil
}

// signingPubKeyHex compresses a vault's signing public key for storage, or
// returns "" when the caller didn't supply one (Bitcoin transactions never
// need it — only Ethereum recovery-id inference does).
func signingPubKeyHex(p curve.CurvePoint) string {
	if p.IsInfinity() {
		return ""
	}
	c := p.Compressed()
	return hex.EncodeToString(c[:])
}

func decodeSigningPubKey(hexStr string) (curve.CurvePoint, error) {
	if hexStr == "" {
		return curve.CurvePoint{}, fmt.Errorf("transaction has no signing public key recorded")
	}
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return curve.CurvePoint{}, fmt.Errorf("stored signing public key is malformed: %w", err)
	}
	return curve.DecodePoint(raw)
}
