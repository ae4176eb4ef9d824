package shares

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/arcsign/custody/internal/custody/curve"
)

func TestGenerateSharesSumsToPubKey(t *testing.T) {
	sh, pubKey, err := GenerateShares(3)
	require.NoError(t, err)
	require.Len(t, sh, 3)

	sum := SumShares(sh)
	require.True(t, curve.ScalarBaseMult(sum).Equal(pubKey), "sum of shares * G must equal the published pubkey")
}

func TestGenerateSharesRejectsTooFewParties(t *testing.T) {
	_, _, err := GenerateShares(1)
	require.Error(t, err)
}

// TestAccountSetupShareSumCorrectness is Testable Property 1: the sum of
// hardened-account shares, scalar-multiplied by G, equals the published
// account xpub's public key.
func TestAccountSetupShareSumCorrectness(t *testing.T) {
	n := 3
	initial, _, err := GenerateShares(n)
	require.NoError(t, err)

	seed := make([]byte, 32) // zero seed, matches spec.md scenario S1
	accountShares, xpub, err := AccountSetup(initial, seed, 0, 0)
	require.NoError(t, err)
	require.Len(t, accountShares, n)

	sum := SumShares(accountShares)
	wantPoint, err := xpub.PubKeyPoint()
	require.NoError(t, err)

	require.True(t, curve.ScalarBaseMult(sum).Equal(wantPoint))
}

// TestNonHardenedDerivationConsistency is Testable Property 2: each party
// deriving its address-level share locally from its hardened share and the
// account xpub reconstructs the same public key as direct pubkey-only
// derivation from the xpub.
func TestNonHardenedDerivationConsistency(t *testing.T) {
	n := 3
	initial, _, err := GenerateShares(n)
	require.NoError(t, err)

	seed := make([]byte, 32)
	accountShares, xpub, err := AccountSetup(initial, seed, 0, 0)
	require.NoError(t, err)

	var addressShares []Share
	for _, as := range accountShares {
		addrShare, _, err := DeriveAddressShare(as, xpub, 0, 0)
		require.NoError(t, err)
		addressShares = append(addressShares, addrShare)
	}

	sum := SumShares(addressShares)
	wantPubKeyBytes, err := DeriveAddressPubKey(xpub, 0, 0)
	require.NoError(t, err)
	wantPoint, err := curve.DecodePoint(wantPubKeyBytes[:])
	require.NoError(t, err)

	require.True(t, curve.ScalarBaseMult(sum).Equal(wantPoint))
}

func TestDeriveNonHardenedChildRejectsHardenedIndex(t *testing.T) {
	sh := Share{PartyID: 1, Secret: curve.NewScalarUint64(1), TotalParties: 3, Threshold: 3, Tag: TagAccount}
	_, _, err := DeriveNonHardenedChildShare(sh, [33]byte{0x02}, [32]byte{}, hardenedOffset)
	require.Error(t, err)
}

func TestAgreeChainCodeDetectsMismatch(t *testing.T) {
	a := [32]byte{1}
	b := [32]byte{2}
	_, err := AgreeChainCode([][32]byte{a, a, b})
	require.Error(t, err)

	got, err := AgreeChainCode([][32]byte{a, a, a})
	require.NoError(t, err)
	require.Equal(t, a, got)
}
