package shares

import (
	"fmt"

	"github.com/arcsign/custody/internal/custody/curve"
)

// DeriveMasterLocal applies the BIP32 master-key tweak derived from a
// shared seed to an existing additive share. Every party runs this
// identically on the same seed (established once, out of band, during the
// distributed key-setup ceremony) — it is a local operation that preserves
// the additive invariant, per spec.md §4.2 "Master key derivation
// (distributed)".
func DeriveMasterLocal(share Share, seed []byte) (Share, [32]byte, error) {
	i := curve.HMACSHA512([]byte("Bitcoin seed"), seed)
	tweak, err := curve.ScalarFromBytes(i[:32])
	if err != nil {
		return Share{}, [32]byte{}, fmt.Errorf("failed to parse master tweak: %w", err)
	}

	var chainCode [32]byte
	copy(chainCode[:], i[32:])

	child := share
	child.Secret = share.Secret.Add(tweak)
	child.Tag = TagMaster
	return child, chainCode, nil
}

// DeriveHardenedChildShare computes one party's contribution to a hardened
// child derivation. All n parties must run this (no single party can
// compute a hardened tweak without the full private scalar), per spec.md
// §4.2 "Hardened child derivation".
//
// Canonical chain-code scheme (spec.md §9 Open Question #1, resolved in
// DESIGN.md): the chain code for a hardened child is derived from the
// *parent's public key* plus the derivation index — data every party can
// compute independently from public information, domain-separated (tag
// 0x01) from the private tweak derivation (tag 0x00) below — instead of the
// source's unsound "first party's secret" shortcut. DeriveHardenedChainCode
// computes this value; callers broadcast and compare it across guardians as
// an agreement check before accepting the derivation.
func DeriveHardenedChildShare(share Share, parentChainCode [32]byte, index uint32) (Share, error) {
	if index >= hardenedOffset {
		return Share{}, fmt.Errorf("index %d already hardened-encoded; pass the unhardened index", index)
	}
	hardenedIndex := index + hardenedOffset

	secretBytes := share.Secret.Bytes()
	data := make([]byte, 0, 1+32+4)
	data = append(data, 0x00)
	data = append(data, secretBytes[:]...)
	data = append(data, be32(hardenedIndex)...)

	i := curve.HMACSHA512(parentChainCode[:], data)
	tweak, err := curve.ScalarFromBytes(i[:32])
	if err != nil {
		return Share{}, fmt.Errorf("failed to parse hardened tweak: %w", err)
	}

	child := share
	child.Secret = share.Secret.Add(tweak)
	child.Tag = TagDerived
	return child, nil
}

// DeriveHardenedChainCode computes the canonical chain code for a hardened
// child at `index`, from public data only (parent pubkey + parent chain
// code + index). Every guardian computes the same value independently;
// callers that want the spec's "broadcast and agree" sanity check can
// simply diff each guardian's locally-computed value.
func DeriveHardenedChainCode(parentPubKey [33]byte, parentChainCode [32]byte, index uint32) [32]byte {
	hardenedIndex := index + hardenedOffset

	data := make([]byte, 0, 1+33+4)
	data = append(data, 0x01)
	data = append(data, parentPubKey[:]...)
	data = append(data, be32(hardenedIndex)...)

	i := curve.HMACSHA512(parentChainCode[:], data)
	var chainCode [32]byte
	copy(chainCode[:], i[32:])
	return chainCode
}

// AgreeChainCode verifies that every guardian computed the same chain code
// for a hardened derivation step before any party accepts the child share.
// Returns the agreed value, or an error naming the mismatch.
func AgreeChainCode(commitments [][32]byte) ([32]byte, error) {
	if len(commitments) == 0 {
		return [32]byte{}, fmt.Errorf("no chain code commitments supplied")
	}
	want := commitments[0]
	for idx, c := range commitments[1:] {
		if c != want {
			return [32]byte{}, fmt.Errorf("chain code commitment mismatch at guardian index %d", idx+1)
		}
	}
	return want, nil
}

// DeriveNonHardenedChildShare computes a non-hardened child share locally,
// from a party's own share and the parent's public xpub, per spec.md §4.2
// "Non-hardened child derivation". No guardian interaction is required: the
// BIP32 tweak T depends only on public inputs (parent pubkey, chain code,
// index), and each party adds T * (1/TotalParties) mod N to its own share
// so the sum across all parties increases by exactly T.
func DeriveNonHardenedChildShare(share Share, parentPubKey [33]byte, parentChainCode [32]byte, index uint32) (Share, [32]byte, error) {
	if index >= hardenedOffset {
		return Share{}, [32]byte{}, fmt.Errorf("index %d is hardened; non-hardened indices must be < 2^31", index)
	}

	data := make([]byte, 0, 33+4)
	data = append(data, parentPubKey[:]...)
	data = append(data, be32(index)...)

	i := curve.HMACSHA512(parentChainCode[:], data)
	t, err := curve.ScalarFromBytes(i[:32])
	if err != nil {
		return Share{}, [32]byte{}, fmt.Errorf("failed to parse non-hardened tweak: %w", err)
	}
	var childChainCode [32]byte
	copy(childChainCode[:], i[32:])

	if share.TotalParties <= 0 {
		return Share{}, [32]byte{}, fmt.Errorf("share has invalid TotalParties %d", share.TotalParties)
	}
	invN := curve.NewScalarUint64(uint64(share.TotalParties)).Invert()
	contribution := t.Mul(invN)

	child := share
	child.Secret = share.Secret.Add(contribution)
	child.Tag = TagDerived
	return child, childChainCode, nil
}

// DeriveNonHardenedChildPubKey computes the child public key and chain code
// for a non-hardened index from public data only: child pubkey =
// parent_pubkey + T*G. Used to keep an ExtendedPubKey in sync as guardians
// independently extend DeriveNonHardenedChildShare down the change/index
// levels.
func DeriveNonHardenedChildPubKey(parentPubKey [33]byte, parentChainCode [32]byte, index uint32) ([33]byte, [32]byte, error) {
	if index >= hardenedOffset {
		return [33]byte{}, [32]byte{}, fmt.Errorf("index %d is hardened; non-hardened indices must be < 2^31", index)
	}

	data := make([]byte, 0, 33+4)
	data = append(data, parentPubKey[:]...)
	data = append(data, be32(index)...)

	i := curve.HMACSHA512(parentChainCode[:], data)
	t, err := curve.ScalarFromBytes(i[:32])
	if err != nil {
		return [33]byte{}, [32]byte{}, fmt.Errorf("failed to parse non-hardened tweak: %w", err)
	}
	var childChainCode [32]byte
	copy(childChainCode[:], i[32:])

	parentPoint, err := curve.DecodePoint(parentPubKey[:])
	if err != nil {
		return [33]byte{}, [32]byte{}, fmt.Errorf("invalid parent public key: %w", err)
	}
	childPoint := parentPoint.Add(curve.ScalarBaseMult(t))
	return childPoint.Compressed(), childChainCode, nil
}
