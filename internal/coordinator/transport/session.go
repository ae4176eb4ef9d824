// Package transport implements the guardian-facing websocket protocol:
// JWT-authenticated connection upgrade, the client<->server message
// envelope from spec.md §6.5, and dispatch into CoordinatorContext's
// signing operations. Grounded on the teacher's
// internal/chainadapter/rpc/websocket.go connection-management shape
// (read loop in its own goroutine, mutex-guarded writes), adapted from a
// client dialing out to a server accepting inbound guardian connections.
package transport

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/arcsign/custody/internal/coordinator"
	"github.com/arcsign/custody/internal/coordinator/auth"
	coordErrors "github.com/arcsign/custody/internal/coordinator/errors"
	"github.com/arcsign/custody/internal/coordinator/pubsub"
	"github.com/arcsign/custody/internal/custody/curve"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Guardian clients are not browser pages served by this origin, so the
	// default same-origin check has nothing to enforce; the real
	// authentication boundary is the JWT, checked before the upgrade
	// completes in Handler.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// envelope is the wire shape of every message in both directions: a
// message type discriminator plus its raw payload (spec.md §6.5's
// client->server and server->client message catalogs).
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Session is one guardian's authenticated websocket connection, scoped to
// exactly one vault. It implements pubsub.Subscriber so the coordinator's
// Hub can broadcast signing-plane events to it.
type Session struct {
	conn       *websocket.Conn
	guardianID string
	vaultID    string
	writeMu    sync.Mutex
	log        *zap.Logger
}

var _ pubsub.Subscriber = (*Session)(nil)

// ID identifies this session within its vault's pub/sub room.
func (s *Session) ID() string { return s.guardianID }

// Send writes a server->client event as a JSON envelope. Concurrent
// broadcasts and direct acks share one connection, so every write goes
// through writeMu — gorilla/websocket permits only one writer goroutine
// at a time per connection.
func (s *Session) Send(event string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(envelope{Type: event, Payload: raw})
}

// Handler upgrades guardian websocket connections and routes their
// messages into a CoordinatorContext. One Handler serves every vault; the
// vault a session belongs to comes from its JWT, not the URL.
type Handler struct {
	Coordinator *coordinator.CoordinatorContext
	Auth        *auth.Manager
	Log         *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(cc *coordinator.CoordinatorContext, authMgr *auth.Manager, log *zap.Logger) *Handler {
	return &Handler{Coordinator: cc, Auth: authMgr, Log: log}
}

// ServeHTTP upgrades the connection, authenticates it via the ?token=
// query parameter, joins the vault's pub/sub room, and serves the
// session's read loop until the connection closes.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	claims, err := h.Auth.ValidateToken(token)
	if err != nil {
		http.Error(w, "invalid or expired session token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sess := &Session{conn: conn, guardianID: claims.GuardianID, vaultID: claims.VaultID, log: h.Log}
	h.Coordinator.Hub.Join(sess.vaultID, sess)
	h.Coordinator.Hub.Broadcast(sess.vaultID, "GuardianConnected", map[string]string{"guardian_id": sess.guardianID})

	h.readLoop(sess)

	h.Coordinator.Hub.Leave(sess.vaultID, sess)
	h.Coordinator.Hub.Broadcast(sess.vaultID, "GuardianDisconnected", map[string]string{"guardian_id": sess.guardianID})
	conn.Close()
}

// readLoop consumes client->server messages until the connection errors or
// closes. One malformed or failed message never terminates the session —
// only a transport-level read error does.
func (h *Handler) readLoop(sess *Session) {
	for {
		var env envelope
		if err := sess.conn.ReadJSON(&env); err != nil {
			return
		}
		h.dispatch(sess, env)
	}
}

// dispatch routes one client->server message. A fresh background context
// is used per message: the session's lifetime spans many independent
// requests, not one cancellable operation.
func (h *Handler) dispatch(sess *Session, env envelope) {
	switch env.Type {
	case "SubmitRound1":
		h.handleSubmitRound1(sess, env.Payload)
	case "GetRound2Data":
		h.handleGetRound2Data(sess, env.Payload)
	case "SubmitRound3":
		h.handleSubmitRound3(sess, env.Payload)
	case "GetFinalSignature":
		h.handleGetFinalSignature(sess, env.Payload)
	default:
		_ = sess.Send("Error", map[string]string{"code": "ERR_UNKNOWN_MESSAGE_TYPE", "message": "unrecognized message type: " + env.Type})
	}
}

type submitRound1Payload struct {
	TxID           string `json:"tx_id"`
	GuardianID     string `json:"guardian_id"`
	RCompressedHex string `json:"r_i_hex_compressed"`
	KIHex          string `json:"k_i_hex"`
}

func (h *Handler) handleSubmitRound1(sess *Session, raw json.RawMessage) {
	var p submitRound1Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.sendError(sess, "SubmitRound1", err)
		return
	}
	rBytes, err := hex.DecodeString(p.RCompressedHex)
	if err != nil {
		h.sendError(sess, "SubmitRound1", err)
		return
	}
	var rCompressed [33]byte
	if len(rBytes) != 33 {
		h.sendError(sess, "SubmitRound1", coordErrors.NewBadInput(coordErrors.ErrCodeOffCurvePoint, "R_i must be 33 bytes compressed", nil))
		return
	}
	copy(rCompressed[:], rBytes)

	kI, err := curve.ScalarFromHex(p.KIHex)
	if err != nil {
		h.sendError(sess, "SubmitRound1", coordErrors.NewBadInput(coordErrors.ErrCodeOffCurvePoint, "k_i is not a valid scalar", err))
		return
	}

	err = h.Coordinator.SubmitRound1(context.Background(), p.TxID, sess.guardianID, p.GuardianID, rCompressed, kI)
	if err != nil {
		h.sendError(sess, "SubmitRound1", err)
		return
	}
	_ = sess.Send("Round1Ack", map[string]string{"tx_id": p.TxID})
}

type getRound2DataPayload struct {
	TxID       string `json:"tx_id"`
	GuardianID string `json:"guardian_id"`
}

func (h *Handler) handleGetRound2Data(sess *Session, raw json.RawMessage) {
	var p getRound2DataPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.sendError(sess, "GetRound2Data", err)
		return
	}
	data, err := h.Coordinator.GetRound2Data(context.Background(), p.TxID)
	if err != nil {
		h.sendError(sess, "GetRound2Data", err)
		return
	}
	_ = sess.Send("Round2Data", data)
}

type submitRound3Payload struct {
	TxID       string `json:"tx_id"`
	GuardianID string `json:"guardian_id"`
	SIDecimal  string `json:"s_i_decimal"`
}

func (h *Handler) handleSubmitRound3(sess *Session, raw json.RawMessage) {
	var p submitRound3Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.sendError(sess, "SubmitRound3", err)
		return
	}
	sI, ok := new(big.Int).SetString(p.SIDecimal, 10)
	if !ok {
		h.sendError(sess, "SubmitRound3", coordErrors.NewBadInput(coordErrors.ErrCodeZeroSignature, "s_i is not a canonical base-10 integer", nil))
		return
	}

	err := h.Coordinator.SubmitRound3(context.Background(), p.TxID, sess.guardianID, p.GuardianID, sI)
	if err != nil {
		h.sendError(sess, "SubmitRound3", err)
		return
	}
	_ = sess.Send("Round3Ack", map[string]string{"tx_id": p.TxID})
}

type getFinalSignaturePayload struct {
	TxID       string `json:"tx_id"`
	GuardianID string `json:"guardian_id"`
}

func (h *Handler) handleGetFinalSignature(sess *Session, raw json.RawMessage) {
	var p getFinalSignaturePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.sendError(sess, "GetFinalSignature", err)
		return
	}
	sig, err := h.Coordinator.GetFinalSignature(context.Background(), p.TxID)
	if err != nil {
		h.sendError(sess, "GetFinalSignature", err)
		return
	}
	_ = sess.Send("FinalSignature", sig)
}

func (h *Handler) sendError(sess *Session, inResponseTo string, err error) {
	code := "ERR_UNKNOWN"
	if ce, ok := err.(*coordErrors.CoordinatorError); ok {
		code = ce.Code
	}
	_ = sess.Send("Error", map[string]string{
		"in_response_to": inResponseTo,
		"code":           code,
		"message":        err.Error(),
	})
}
