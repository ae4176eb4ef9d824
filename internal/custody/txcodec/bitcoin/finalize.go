package bitcoin

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
)

// FinalizeWitnessInput attaches the witness stack for a signed P2WPKH input:
// [signature || sighash-type byte, compressed pubkey].
func FinalizeWitnessInput(tx *wire.MsgTx, idx int, derSig []byte, pubKey [33]byte) error {
	if idx < 0 || idx >= len(tx.TxIn) {
		return fmt.Errorf("input index %d out of range", idx)
	}
	sigWithType := append(append([]byte{}, derSig...), byte(txscript.SigHashAll))
	tx.TxIn[idx].Witness = wire.TxWitness{sigWithType, pubKey[:]}
	return nil
}

// FinalizeLegacyInput builds the scriptSig for a signed P2PKH input:
// <push sig || sighash-type> <push pubkey>.
func FinalizeLegacyInput(tx *wire.MsgTx, idx int, derSig []byte, pubKey [33]byte) error {
	if idx < 0 || idx >= len(tx.TxIn) {
		return fmt.Errorf("input index %d out of range", idx)
	}
	sigWithType := append(append([]byte{}, derSig...), byte(txscript.SigHashAll))
	script, err := txscript.NewScriptBuilder().
		AddData(sigWithType).
		AddData(pubKey[:]).
		Script()
	if err != nil {
		return fmt.Errorf("building scriptSig: %w", err)
	}
	tx.TxIn[idx].SignatureScript = script
	return nil
}
