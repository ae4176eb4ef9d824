// Package httpapi is the thin HTTP control-plane surface the signing plane
// depends on: creating a transaction and issuing a guardian's websocket
// session token. Vault/guardian CRUD proper are out of scope (spec.md §1
// Non-goals "admin REST auth") — this package exists only to unblock
// SPEC_FULL.md §7's "transaction creation" collaborator.
package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arcsign/custody/internal/coordinator"
	"github.com/arcsign/custody/internal/coordinator/auth"
	coordErrors "github.com/arcsign/custody/internal/coordinator/errors"
	"github.com/arcsign/custody/internal/coordinator/model"
	"github.com/arcsign/custody/internal/custody/curve"
)

// Handler wires the control-plane HTTP endpoints to a CoordinatorContext.
type Handler struct {
	Coordinator *coordinator.CoordinatorContext
	Auth        *auth.Manager
	Log         *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(cc *coordinator.CoordinatorContext, authMgr *auth.Manager, log *zap.Logger) *Handler {
	return &Handler{Coordinator: cc, Auth: authMgr, Log: log}
}

// Routes registers the handler's endpoints on mux.
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/transactions", h.handleCreateTransaction)
	mux.HandleFunc("/v1/sessions", h.handleIssueSession)
}

type createTransactionRequest struct {
	TxID               string `json:"tx_id,omitempty"` // server-generated via uuid.NewString() when omitted
	VaultID            string `json:"vault_id"`
	CoinType           string `json:"coin_type"`
	Type               string `json:"type"`
	Amount             string `json:"amount"`
	Recipient          string `json:"recipient"`
	Fee                string `json:"fee"`
	Memo               string `json:"memo,omitempty"`
	MessageHashHex     string `json:"message_hash_hex"`
	SigningPubKeyHex   string `json:"signing_pub_key_hex,omitempty"`
	SignaturesRequired int    `json:"signatures_required"`
}

// handleCreateTransaction accepts the unsigned-transaction intent a client
// has already assembled with internal/custody/txcodec, and opens the
// signing-round state machine for it.
func (h *Handler) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, coordErrors.NewBadInput(coordErrors.ErrCodeCoinTypeMismatch, "malformed request body", err))
		return
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		writeError(w, coordErrors.NewBadInput(coordErrors.ErrCodeCoinTypeMismatch, "amount is not a canonical base-10 integer", nil))
		return
	}
	fee, ok := new(big.Int).SetString(req.Fee, 10)
	if !ok {
		writeError(w, coordErrors.NewBadInput(coordErrors.ErrCodeCoinTypeMismatch, "fee is not a canonical base-10 integer", nil))
		return
	}

	msgHashBytes, err := hex.DecodeString(req.MessageHashHex)
	if err != nil || len(msgHashBytes) != 32 {
		writeError(w, coordErrors.NewBadInput(coordErrors.ErrCodeCoinTypeMismatch, "message_hash_hex must be 32 bytes hex-encoded", err))
		return
	}
	var msgHash [32]byte
	copy(msgHash[:], msgHashBytes)

	txID := req.TxID
	if txID == "" {
		txID = uuid.NewString()
	}

	var pubKey curve.CurvePoint
	if req.SigningPubKeyHex != "" {
		raw, err := hex.DecodeString(req.SigningPubKeyHex)
		if err != nil {
			writeError(w, coordErrors.NewBadInput(coordErrors.ErrCodeOffCurvePoint, "signing_pub_key_hex is malformed", err))
			return
		}
		pubKey, err = curve.DecodePoint(raw)
		if err != nil {
			writeError(w, coordErrors.NewBadInput(coordErrors.ErrCodeOffCurvePoint, "signing_pub_key_hex is off-curve", err))
			return
		}
	}

	tx, err := h.Coordinator.CreateTransaction(r.Context(), coordinator.CreateTransactionRequest{
		TxID:               txID,
		VaultID:            req.VaultID,
		CoinType:           model.CoinType(req.CoinType),
		Type:               model.TxType(req.Type),
		Amount:             amount,
		Recipient:          req.Recipient,
		Fee:                fee,
		Memo:               req.Memo,
		MessageHash:        msgHash,
		SigningPubKey:      pubKey,
		SignaturesRequired: req.SignaturesRequired,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, tx)
}

type issueSessionRequest struct {
	GuardianID string `json:"guardian_id"`
	VaultID    string `json:"vault_id"`
}

type issueSessionResponse struct {
	Token string `json:"token"`
}

// handleIssueSession mints the JWT a guardian presents to
// internal/coordinator/transport when opening its websocket session.
// Authenticating the caller of this endpoint (proving they really are the
// named guardian) is the admin-auth surface spec.md §1 explicitly places
// out of scope — this endpoint trusts its caller, same as the rest of
// this package's deliberately thin control plane.
func (h *Handler) handleIssueSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req issueSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, coordErrors.NewBadInput(coordErrors.ErrCodeCoinTypeMismatch, "malformed request body", err))
		return
	}
	if req.GuardianID == "" || req.VaultID == "" {
		writeError(w, coordErrors.NewBadInput(coordErrors.ErrCodeGuardianNotFound, "guardian_id and vault_id are required", nil))
		return
	}

	token, err := h.Auth.IssueToken(req.GuardianID, req.VaultID)
	if err != nil {
		writeError(w, coordErrors.NewPersistenceError(coordErrors.ErrCodeStoreUnavailable, "failed to issue session token", err))
		return
	}

	writeJSON(w, http.StatusOK, issueSessionResponse{Token: token})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "ERR_UNKNOWN"
	if ce, ok := err.(*coordErrors.CoordinatorError); ok {
		code = ce.Code
		switch ce.Kind {
		case coordErrors.BadInput, coordErrors.InvalidContribution:
			status = http.StatusBadRequest
		case coordErrors.NotFound:
			status = http.StatusNotFound
		case coordErrors.StateConflict, coordErrors.IdentityMismatch:
			status = http.StatusConflict
		case coordErrors.TimedOut:
			status = http.StatusGatewayTimeout
		case coordErrors.UnsupportedSenderType:
			status = http.StatusUnprocessableEntity
		case coordErrors.PersistenceError:
			status = http.StatusInternalServerError
		}
	}
	writeJSON(w, status, map[string]string{"code": code, "message": err.Error()})
}
