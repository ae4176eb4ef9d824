package model

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecimalBigJSONRoundTrip(t *testing.T) {
	want := new(big.Int)
	want.SetString("115792089237316195423570985008687907852837564279074904382605163141518161494337", 10)

	d := NewDecimalBig(want)
	b, err := json.Marshal(d)
	require.NoError(t, err)
	require.Equal(t, `"115792089237316195423570985008687907852837564279074904382605163141518161494337"`, string(b))

	var got DecimalBig
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, 0, want.Cmp(got.V))
}

func TestDecimalBigRejectsNonCanonicalJSON(t *testing.T) {
	var got DecimalBig
	err := got.UnmarshalJSON([]byte(`"not-a-number"`))
	require.Error(t, err)
}

func TestCanTransitionFollowsStateDiagram(t *testing.T) {
	require.True(t, CanTransition(TxPending, TxRound1))
	require.True(t, CanTransition(TxRound1, TxRound2))
	require.True(t, CanTransition(TxRound2, TxRound3))
	require.True(t, CanTransition(TxRound3, TxCompleted))
	require.True(t, CanTransition(TxPending, TxCancelled))

	require.False(t, CanTransition(TxPending, TxRound2), "cannot skip Round1")
	require.False(t, CanTransition(TxRound2, TxCancelled), "cancel only valid before Round2")
	require.False(t, CanTransition(TxCompleted, TxFailed), "terminal states refuse transitions")
}

func TestVaultReadyToActivate(t *testing.T) {
	v := &Vault{Status: VaultSetup, TotalGuardians: 3, GuardiansJoined: 2}
	require.False(t, v.ReadyToActivate())
	v.GuardiansJoined = 3
	require.True(t, v.ReadyToActivate())
}
