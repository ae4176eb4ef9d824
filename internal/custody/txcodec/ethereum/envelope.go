// Package ethereum builds the signing payload for an EIP-1559 Ethereum
// transaction (there is no legacy EIP-155 builder here) and finalizes it
// once the threshold engine
// has produced an (r, s, v) signature, via go-ethereum's own types.Signer
// and types.Transaction.WithSignature — the same library the teacher's
// internal/chainadapter/ethereum/builder.go already uses for unsigned-hash
// computation, generalized here to also consume a threshold-produced
// signature rather than calling types.SignTx with a raw private key.
package ethereum

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/arcsign/custody/internal/custody/tecdsa"
)

// UnsignedEnvelope pairs an unsigned EIP-1559 transaction with the digest
// every guardian signs over.
type UnsignedEnvelope struct {
	Tx     *types.Transaction
	Signer types.Signer
	Digest [32]byte
}

// BuildDynamicFeeTx assembles an EIP-1559 DynamicFeeTx and returns the
// per-chain signing digest (types.Signer.Hash), the payload Round1-4 signs.
func BuildDynamicFeeTx(chainID *big.Int, nonce uint64, to common.Address, value *big.Int, gasLimit uint64, gasFeeCap, gasTipCap *big.Int, data []byte) UnsignedEnvelope {
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: gasTipCap,
		GasFeeCap: gasFeeCap,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
		Data:      data,
	})

	signer := types.LatestSignerForChainID(chainID)
	digest := signer.Hash(tx)

	var out [32]byte
	copy(out[:], digest.Bytes())
	return UnsignedEnvelope{Tx: tx, Signer: signer, Digest: out}
}

// Finalize attaches a threshold-produced signature to env.Tx and returns the
// signed transaction, ready for RLP encoding and broadcast. sig.RecoveryID
// must be set (isEthereum=true was passed to tecdsa.AggregateRound4) —
// go-ethereum's signature format is exactly R || S || V (65 bytes).
func Finalize(env UnsignedEnvelope, sig tecdsa.FinalSignature) (*types.Transaction, error) {
	if sig.RecoveryID == nil {
		return nil, fmt.Errorf("signature has no recovery id; AggregateRound4 must be called with isEthereum=true")
	}

	rBytes := sig.R.Bytes()
	sBytes := sig.S.Bytes()

	sigBytes := make([]byte, 65)
	copy(sigBytes[0:32], rBytes[:])
	copy(sigBytes[32:64], sBytes[:])
	sigBytes[64] = *sig.RecoveryID

	signedTx, err := env.Tx.WithSignature(env.Signer, sigBytes)
	if err != nil {
		return nil, fmt.Errorf("attaching signature: %w", err)
	}
	return signedTx, nil
}

// RecoverSigner is a diagnostic helper: recovers the sender address from a
// signed transaction, used by tests to confirm a threshold signature
// produced by an address's shares recovers to that address's own pubkey.
func RecoverSigner(signer types.Signer, tx *types.Transaction) (common.Address, error) {
	return types.Sender(signer, tx)
}
