package ethereum

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/arcsign/custody/internal/custody/curve"
	"github.com/arcsign/custody/internal/custody/tecdsa"
)

// recoverExpectedAddress re-derives the Ethereum address for pubKey the same
// way crypto.PubkeyToAddress does, from the uncompressed SEC1 encoding this
// package's own CurvePoint produces.
func recoverExpectedAddress(t *testing.T, pubKey curve.CurvePoint) common.Address {
	t.Helper()
	uncompressed := pubKey.Uncompressed()
	pub, err := crypto.UnmarshalPubkey(uncompressed[:])
	require.NoError(t, err)
	return crypto.PubkeyToAddress(*pub)
}

func TestFinalizeRecoversSignerAddress(t *testing.T) {
	chainID := big.NewInt(1)
	to := common.HexToAddress("0x000000000000000000000000000000000000ab")

	env := BuildDynamicFeeTx(chainID, 0, to, big.NewInt(1_000_000_000_000_000), 21000,
		big.NewInt(30_000_000_000), big.NewInt(1_000_000_000), nil)

	// Single-party threshold "ceremony" (n=1): the additive-share protocol
	// degenerates to standard ECDSA, exercising the same Round1-4 path a
	// real multi-guardian signature uses.
	priv, _, err := tecdsa.Round1()
	require.NoError(t, err)
	pubKey := curve.ScalarBaseMult(priv)

	z, err := curve.ScalarFromBytes(env.Digest[:])
	require.NoError(t, err)

	k, r1, err := tecdsa.Round1()
	require.NoError(t, err)
	r2, err := tecdsa.AggregateRound2([]tecdsa.Round1Contribution{{R: r1, K: k}})
	require.NoError(t, err)

	si, err := tecdsa.Round3(r2, z, priv, 1)
	require.NoError(t, err)

	sig, err := tecdsa.AggregateRound4(r2, []curve.Scalar{si}, z, pubKey, true)
	require.NoError(t, err)
	require.NotNil(t, sig.RecoveryID)

	signedTx, err := Finalize(env, sig)
	require.NoError(t, err)

	recovered, err := RecoverSigner(env.Signer, signedTx)
	require.NoError(t, err)

	require.Equal(t, recoverExpectedAddress(t, pubKey), recovered)
}

func TestFinalizeRejectsMissingRecoveryID(t *testing.T) {
	chainID := big.NewInt(1)
	to := common.HexToAddress("0x000000000000000000000000000000000000ab")
	env := BuildDynamicFeeTx(chainID, 0, to, big.NewInt(1), 21000, big.NewInt(1), big.NewInt(1), nil)

	sig := tecdsa.FinalSignature{R: curve.NewScalarUint64(1), S: curve.NewScalarUint64(2)}
	_, err := Finalize(env, sig)
	require.Error(t, err)
}
