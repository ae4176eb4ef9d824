// Package bitcoin computes Bitcoin signing payloads (legacy and BIP143
// witness sighashes) from an unsigned transaction and assembles the final
// scriptSig/witness once the threshold engine has produced a signature.
//
// Grounded on the teacher's internal/chainadapter/bitcoin/builder.go, which
// builds the same wire.MsgTx shape but only hashes the whole serialized
// transaction for "signing" (correct for nothing — it never commits to a
// specific input's prevout script or value). This package replaces that
// placeholder with the real per-input sighash txscript implements.
package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// PrevOut describes the previous output being spent by one transaction
// input, the data every sighash algorithm commits to.
type PrevOut struct {
	PkScript []byte
	Value    int64
}

// prevOutputFetcher adapts a per-input PrevOut slice to txscript's
// PrevOutputFetcher interface, needed by the BIP143 sighash midstate cache.
type prevOutputFetcher struct {
	tx       *wire.MsgTx
	prevOuts []PrevOut
}

func (f *prevOutputFetcher) FetchPrevOutput(op wire.OutPoint) *wire.TxOut {
	for i, in := range f.tx.TxIn {
		if in.PreviousOutPoint == op {
			return &wire.TxOut{Value: f.prevOuts[i].Value, PkScript: f.prevOuts[i].PkScript}
		}
	}
	return nil
}

// WitnessSigHash computes the BIP143 sighash for a P2WPKH input at idx.
// scriptCode is the P2PKH-equivalent script derived from the witness
// program (OP_DUP OP_HASH160 <pubkeyhash> OP_EQUALVERIFY OP_CHECKSIG), not
// the witness program itself — this is BIP143's defined scriptCode for
// v0 P2WPKH.
func WitnessSigHash(tx *wire.MsgTx, idx int, scriptCode []byte, prevOuts []PrevOut) ([32]byte, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return [32]byte{}, fmt.Errorf("input index %d out of range", idx)
	}
	if len(prevOuts) != len(tx.TxIn) {
		return [32]byte{}, fmt.Errorf("prevOuts length %d does not match input count %d", len(prevOuts), len(tx.TxIn))
	}

	fetcher := &prevOutputFetcher{tx: tx, prevOuts: prevOuts}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	hash, err := txscript.CalcWitnessSigHash(scriptCode, sigHashes, txscript.SigHashAll, tx, idx, prevOuts[idx].Value)
	if err != nil {
		return [32]byte{}, fmt.Errorf("witness sighash: %w", err)
	}

	var out [32]byte
	copy(out[:], hash)
	return out, nil
}

// LegacySigHash computes the pre-segwit sighash for a P2PKH input at idx.
func LegacySigHash(tx *wire.MsgTx, idx int, prevPkScript []byte) ([32]byte, error) {
	if idx < 0 || idx >= len(tx.TxIn) {
		return [32]byte{}, fmt.Errorf("input index %d out of range", idx)
	}

	hash, err := txscript.CalcSignatureHash(prevPkScript, txscript.SigHashAll, tx, idx)
	if err != nil {
		return [32]byte{}, fmt.Errorf("legacy sighash: %w", err)
	}

	var out [32]byte
	copy(out[:], hash)
	return out, nil
}

// P2WPKHScriptCode builds the BIP143 scriptCode for a P2WPKH input given the
// 20-byte pubkey hash from the witness program.
func P2WPKHScriptCode(pubKeyHash [20]byte) []byte {
	b, _ := txscript.NewScriptBuilder().
		AddOp(txscript.OP_DUP).
		AddOp(txscript.OP_HASH160).
		AddData(pubKeyHash[:]).
		AddOp(txscript.OP_EQUALVERIFY).
		AddOp(txscript.OP_CHECKSIG).
		Script()
	return b
}
