package model

import "time"

// TxType is the intent behind a signing transaction (spec.md §3
// "Transaction record").
type TxType string

const (
	TxSend       TxType = "Send"
	TxConsolidate TxType = "Consolidate"
	TxSweep      TxType = "Sweep"
)

// TxStatus is a state in the per-transaction signing state machine (spec.md
// §4.5 state diagram). Completed, Failed, and Cancelled are terminal.
type TxStatus string

const (
	TxPending   TxStatus = "Pending"
	TxRound1    TxStatus = "Round1"
	TxRound2    TxStatus = "Round2"
	TxRound3    TxStatus = "Round3"
	TxCompleted TxStatus = "Completed"
	TxFailed    TxStatus = "Failed"
	TxCancelled TxStatus = "Cancelled"
)

// IsTerminal reports whether s admits no further transitions.
func (s TxStatus) IsTerminal() bool {
	return s == TxCompleted || s == TxFailed || s == TxCancelled
}

// AddressType is the scriptPubKey class a Bitcoin transaction spends from.
// P2TR is listed so a record can name it, but ECDSA-only custody has no
// P2TR spending path (spec.md §4.3).
type AddressType string

const (
	AddressP2PKH  AddressType = "P2PKH"
	AddressP2WPKH AddressType = "P2WPKH"
	AddressP2TR   AddressType = "P2TR"
)

// Round1Contribution is one guardian's Round1 submission: the nonce
// commitment R_i and the nonce k_i itself. Per spec.md §4.4/§9, the
// coordinator must see k_i to compute the joint nonce k = Σ k_i that Round3
// requires (DESIGN.md Open Question decision #2).
type Round1Contribution struct {
	RCompressedHex string `bson:"r_compressed_hex" json:"r_compressed_hex"`
	KIHex          string `bson:"k_i_hex" json:"k_i_hex"`
}

// Round2Data is the coordinator-computed aggregate published to every
// guardian ahead of Round3: the aggregated nonce point, its x-coordinate
// r = R.x mod N, and the joint nonce k = Σ k_i each guardian's Round3 must
// use (never its own k_i).
type Round2Data struct {
	RCompressedHex string     `bson:"r_compressed_hex" json:"r_compressed_hex"`
	R              DecimalBig `bson:"r" json:"r"`
	K              DecimalBig `bson:"k" json:"k"`
}

// Round3Contribution is one guardian's signature share s_i.
type Round3Contribution struct {
	SI DecimalBig `bson:"s_i" json:"s_i"`
}

// FinalSignatureData is the assembled, low-S-normalized signature, with a
// recovery id for Ethereum transactions.
type FinalSignatureData struct {
	R          DecimalBig `bson:"r" json:"r"`
	S          DecimalBig `bson:"s" json:"s"`
	RecoveryID *int       `bson:"recovery_id,omitempty" json:"recovery_id,omitempty"`
}

// Transaction is the central state-machine record: one document per
// signing operation, transitioned only via single-document atomic updates
// gated by the expected current Status (spec.md §5 "Suspension points").
type Transaction struct {
	TxID     string   `bson:"_id" json:"tx_id"`
	VaultID  string   `bson:"vault_id" json:"vault_id"`
	CoinType CoinType `bson:"coin_type" json:"coin_type"`
	Type     TxType   `bson:"type" json:"type"`

	Amount    DecimalBig `bson:"amount" json:"amount"`
	Recipient string     `bson:"recipient" json:"recipient"`
	Fee       DecimalBig `bson:"fee" json:"fee"`
	Memo      string     `bson:"memo,omitempty" json:"memo,omitempty"`

	// Bitcoin-specific.
	UTXOTxID      string      `bson:"utxo_txid,omitempty" json:"utxo_txid,omitempty"`
	UTXOVout      uint32      `bson:"utxo_vout,omitempty" json:"utxo_vout,omitempty"`
	UTXOAmount    DecimalBig  `bson:"utxo_amount,omitempty" json:"utxo_amount,omitempty"`
	SenderAddress string      `bson:"sender_address,omitempty" json:"sender_address,omitempty"`
	AddressIndex  uint32      `bson:"address_index" json:"address_index"`
	AddressType   AddressType `bson:"address_type,omitempty" json:"address_type,omitempty"`

	// Ethereum-specific.
	Nonce             *uint64    `bson:"nonce,omitempty" json:"nonce,omitempty"`
	ChainID           int64      `bson:"chain_id,omitempty" json:"chain_id,omitempty"`
	GasLimit          uint64     `bson:"gas_limit,omitempty" json:"gas_limit,omitempty"`
	MaxPriorityFee    DecimalBig `bson:"max_priority_fee,omitempty" json:"max_priority_fee,omitempty"`
	MaxFee            DecimalBig `bson:"max_fee,omitempty" json:"max_fee,omitempty"`
	GasPrice          DecimalBig `bson:"gas_price,omitempty" json:"gas_price,omitempty"`
	TxData            []byte     `bson:"tx_data,omitempty" json:"tx_data,omitempty"`

	MessageHashHex   string `bson:"message_hash_hex" json:"message_hash_hex"`
	SigningPubKeyHex string `bson:"signing_pub_key_hex" json:"signing_pub_key_hex"`

	Status              TxStatus `bson:"status" json:"status"`
	SignaturesRequired  int      `bson:"signatures_required" json:"signatures_required"`
	SignaturesReceived  int      `bson:"signatures_received" json:"signatures_received"`
	TimeoutAt           time.Time `bson:"timeout_at" json:"timeout_at"`
	RoundTimeoutAt      time.Time `bson:"round_timeout_at" json:"round_timeout_at"`
	ErrorMessage        string    `bson:"error_message,omitempty" json:"error_message,omitempty"`

	Round1Data      map[string]Round1Contribution `bson:"round1_data,omitempty" json:"round1_data,omitempty"`
	Round2Data      *Round2Data                   `bson:"round2_data,omitempty" json:"round2_data,omitempty"`
	Round3Data      map[string]Round3Contribution `bson:"round3_data,omitempty" json:"round3_data,omitempty"`
	FinalSignature  *FinalSignatureData           `bson:"final_signature,omitempty" json:"final_signature,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// allowedTransitions encodes the state diagram from spec.md §4.5. A
// transition not listed here is refused.
var allowedTransitions = map[TxStatus]map[TxStatus]bool{
	TxPending: {TxRound1: true, TxCancelled: true, TxFailed: true},
	TxRound1:  {TxRound2: true, TxCancelled: true, TxFailed: true},
	TxRound2:  {TxRound3: true, TxFailed: true},
	TxRound3:  {TxCompleted: true, TxFailed: true},
}

// CanTransition reports whether moving from 'from' to 'to' is a legal edge
// in the state machine. Terminal states never transition further.
func CanTransition(from, to TxStatus) bool {
	if from.IsTerminal() {
		return false
	}
	edges, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return edges[to]
}
