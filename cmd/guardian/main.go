// Command guardian is the reference client a guardian operator runs
// against a coordinatord instance: it holds one additive signing share for
// one vault, reacts to the coordinator's signing-plane broadcasts, and
// performs its own Round1/Round3 computation locally. Per spec.md §4.4/§9,
// the guardian's nonce k_i is revealed to the coordinator in Round1 so the
// coordinator can compute the joint nonce k — only the address-level
// signing share x_i never leaves this process.
//
// Scope note: a production guardian client would track many vaults and
// resolve the address-derivation index of each incoming transaction from
// its own records. This reference implementation keeps one already-derived
// address-level Share per process (GUARDIAN_SHARE_FILE) — multi-vault
// dispatch is left to the deployment wrapping this binary, not this
// package (see DESIGN.md).
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gorilla/websocket"

	"github.com/arcsign/custody/internal/custody/curve"
	"github.com/arcsign/custody/internal/custody/shares"
	"github.com/arcsign/custody/internal/custody/tecdsa"
)

// shareFile is the on-disk shape of a guardian's address-level share, the
// guardian-side analogue of the teacher's encrypted wallet file —
// unencrypted here since safeguarding the key-at-rest format is explicitly
// out of scope (spec.md §1 "Guardian-side key storage/HSM integration").
type shareFile struct {
	GuardianID   string `json:"guardian_id"`
	VaultID      string `json:"vault_id"`
	PartyID      int    `json:"party_id"`
	TotalParties int    `json:"total_parties"`
	SecretHex    string `json:"secret_hex"`
}

func loadShare(path string) (shareFile, shares.Share, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return shareFile{}, shares.Share{}, fmt.Errorf("reading share file: %w", err)
	}
	var sf shareFile
	if err := json.Unmarshal(raw, &sf); err != nil {
		return shareFile{}, shares.Share{}, fmt.Errorf("parsing share file: %w", err)
	}
	secret, err := curve.ScalarFromHex(sf.SecretHex)
	if err != nil {
		return shareFile{}, shares.Share{}, fmt.Errorf("parsing share secret: %w", err)
	}
	return sf, shares.Share{
		PartyID:      sf.PartyID,
		Secret:       secret,
		TotalParties: sf.TotalParties,
		Threshold:    sf.TotalParties,
		Tag:          shares.TagDerived,
	}, nil
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// pendingRound holds the signing digest z for a transaction between Round1
// and Round3. The nonce k_i itself is submitted to the coordinator in
// Round1 and zeroized locally right after — Round3 uses the joint k the
// coordinator publishes, never this guardian's own k_i.
type pendingRound struct {
	z curve.Scalar
}

type guardian struct {
	conn  *websocket.Conn
	sf    shareFile
	share shares.Share

	mu      sync.Mutex
	pending map[string]pendingRound
}

func main() {
	shareFilePath := os.Getenv("GUARDIAN_SHARE_FILE")
	coordinatorURL := os.Getenv("COORDINATOR_WS_URL")
	sessionToken := os.Getenv("COORDINATOR_SESSION_TOKEN")
	if shareFilePath == "" || coordinatorURL == "" || sessionToken == "" {
		fmt.Fprintln(os.Stderr, "usage: GUARDIAN_SHARE_FILE, COORDINATOR_WS_URL, and COORDINATOR_SESSION_TOKEN must all be set")
		os.Exit(1)
	}

	sf, share, err := loadShare(shareFilePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load share:", err)
		os.Exit(1)
	}
	defer share.Zeroize()

	u, err := url.Parse(coordinatorURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid COORDINATOR_WS_URL:", err)
		os.Exit(1)
	}
	q := u.Query()
	q.Set("token", sessionToken)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to connect to coordinator:", err)
		os.Exit(1)
	}
	defer conn.Close()

	g := &guardian{conn: conn, sf: sf, share: share, pending: make(map[string]pendingRound)}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		conn.Close()
	}()

	fmt.Printf("guardian %s connected, watching vault %s\n", sf.GuardianID, sf.VaultID)
	g.run()
}

func (g *guardian) run() {
	for {
		var env envelope
		if err := g.conn.ReadJSON(&env); err != nil {
			fmt.Fprintln(os.Stderr, "connection closed:", err)
			return
		}
		g.dispatch(env)
	}
}

func (g *guardian) dispatch(env envelope) {
	switch env.Type {
	case "SigningNewTransaction":
		g.onNewTransaction(env.Payload)
	case "SigningRound2Ready":
		g.onRound2Ready(env.Payload)
	case "SigningComplete":
		g.onComplete(env.Payload)
	case "Error":
		fmt.Fprintln(os.Stderr, "coordinator error:", string(env.Payload))
	}
}

func (g *guardian) send(msgType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return g.conn.WriteJSON(envelope{Type: msgType, Payload: raw})
}

type newTransactionPayload struct {
	TxID        string `json:"tx_id"`
	MessageHash string `json:"message_hash"`
}

// onNewTransaction runs this guardian's Round1: draw a fresh nonce, submit
// both its commitment and the nonce itself to the coordinator (spec.md
// §4.4's normative, trust-the-coordinator design), and zeroize the local
// copy immediately afterward.
func (g *guardian) onNewTransaction(raw json.RawMessage) {
	var p newTransactionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		fmt.Fprintln(os.Stderr, "malformed SigningNewTransaction:", err)
		return
	}

	zBytes, err := hex.DecodeString(p.MessageHash)
	if err != nil {
		fmt.Fprintln(os.Stderr, "malformed message hash:", err)
		return
	}
	z, err := curve.ScalarFromBytes(zBytes)
	if err != nil {
		fmt.Fprintln(os.Stderr, "message hash out of range:", err)
		return
	}

	kI, rI, err := tecdsa.Round1()
	if err != nil {
		fmt.Fprintln(os.Stderr, "round1 failed:", err)
		return
	}

	g.mu.Lock()
	g.pending[p.TxID] = pendingRound{z: z}
	g.mu.Unlock()

	rCompressed := rI.Compressed()
	kIHex := kI.Hex()
	kI.Zeroize()
	if err := g.send("SubmitRound1", map[string]string{
		"tx_id":              p.TxID,
		"guardian_id":        g.sf.GuardianID,
		"r_i_hex_compressed": hex.EncodeToString(rCompressed[:]),
		"k_i_hex":            kIHex,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "failed to submit round1:", err)
	}
}

type round2ReadyPayload struct {
	TxID string `json:"tx_id"`
}

type round2DataPayload struct {
	RCompressedHex string `json:"r_compressed_hex"`
	R              string `json:"r"`
	K              string `json:"k"`
}

// onRound2Ready fetches the aggregated nonce point and the joint nonce k
// the coordinator published, computes this guardian's s_i contribution
// using that joint k (never this guardian's own k_i, which is already gone
// by this point), and submits it.
func (g *guardian) onRound2Ready(raw json.RawMessage) {
	var p round2ReadyPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		fmt.Fprintln(os.Stderr, "malformed SigningRound2Ready:", err)
		return
	}

	g.mu.Lock()
	pr, ok := g.pending[p.TxID]
	g.mu.Unlock()
	if !ok {
		fmt.Fprintln(os.Stderr, "round2 ready for unknown tx:", p.TxID)
		return
	}

	if err := g.send("GetRound2Data", map[string]string{
		"tx_id":       p.TxID,
		"guardian_id": g.sf.GuardianID,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "failed to request round2 data:", err)
		return
	}

	var env envelope
	if err := g.conn.ReadJSON(&env); err != nil || env.Type != "Round2Data" {
		fmt.Fprintln(os.Stderr, "did not receive Round2Data:", err)
		return
	}
	var data round2DataPayload
	if err := json.Unmarshal(env.Payload, &data); err != nil {
		fmt.Fprintln(os.Stderr, "malformed Round2Data:", err)
		return
	}

	rxBig, ok := new(big.Int).SetString(data.R, 10)
	if !ok {
		fmt.Fprintln(os.Stderr, "malformed round2 RX: not a canonical base-10 integer")
		return
	}
	rxScalar := curve.NewScalar(rxBig)
	kBig, ok := new(big.Int).SetString(data.K, 10)
	if !ok {
		fmt.Fprintln(os.Stderr, "malformed round2 K: not a canonical base-10 integer")
		return
	}
	kScalar := curve.NewScalar(kBig)
	rCompressed, err := hex.DecodeString(data.RCompressedHex)
	if err != nil {
		fmt.Fprintln(os.Stderr, "malformed round2 R:", err)
		return
	}
	rPoint, err := curve.DecodePoint(rCompressed)
	if err != nil {
		fmt.Fprintln(os.Stderr, "round2 R off-curve:", err)
		return
	}

	r2 := tecdsa.Round2Result{R: rPoint, RX: rxScalar, K: kScalar}
	sI, err := tecdsa.Round3(r2, pr.z, g.share.Secret, g.share.TotalParties)
	if err != nil {
		fmt.Fprintln(os.Stderr, "round3 failed:", err)
		return
	}

	g.mu.Lock()
	delete(g.pending, p.TxID)
	g.mu.Unlock()

	if err := g.send("SubmitRound3", map[string]string{
		"tx_id":       p.TxID,
		"guardian_id": g.sf.GuardianID,
		"s_i_decimal": sI.BigInt().String(),
	}); err != nil {
		fmt.Fprintln(os.Stderr, "failed to submit round3:", err)
	}
}

type completePayload struct {
	TxID string `json:"tx_id"`
}

// onComplete fetches and prints the final signature for operator visibility.
func (g *guardian) onComplete(raw json.RawMessage) {
	var p completePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		fmt.Fprintln(os.Stderr, "malformed SigningComplete:", err)
		return
	}
	if err := g.send("GetFinalSignature", map[string]string{
		"tx_id":       p.TxID,
		"guardian_id": g.sf.GuardianID,
	}); err != nil {
		fmt.Fprintln(os.Stderr, "failed to request final signature:", err)
		return
	}

	var env envelope
	if err := g.conn.ReadJSON(&env); err != nil || env.Type != "FinalSignature" {
		fmt.Fprintln(os.Stderr, "did not receive FinalSignature:", err)
		return
	}
	fmt.Printf("tx %s signed: %s\n", p.TxID, string(env.Payload))
}
