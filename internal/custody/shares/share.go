// Package shares implements additive secret sharing over secp256k1 and the
// BIP32-derived hierarchical derivation rules adapted for additive shares:
// hardened children require every party to participate (no single party
// ever holds enough material to compute a hardened tweak alone), while
// non-hardened children are computed locally from a share plus the public
// account xpub.
//
// Grounded on the teacher's internal/services/hdkey/service.go (BIP32 path
// derivation idiom) and src/chainadapter/keysource_impl.go (BIP44 path
// shape), reimplemented over additive shares instead of whole private keys.
package shares

import (
	"encoding/binary"
	"fmt"

	"github.com/arcsign/custody/internal/custody/curve"
)

// Tag classifies what derivation level a Share's secret belongs to.
type Tag string

const (
	TagMaster  Tag = "master"
	TagAccount Tag = "account"
	TagDerived Tag = "derived"
)

// Share is one guardian's additive secret at a given derivation level.
// Invariant: the sum mod N of all TotalParties shares at the same
// derivation level equals the level's private scalar.
type Share struct {
	PartyID      int
	Secret       curve.Scalar
	TotalParties int
	Threshold    int
	Tag          Tag
}

// Zeroize overwrites the share's secret. Every Share must be zeroized once
// it is no longer needed; shares must never be logged (see
// internal/obslog's field-value prohibition for anything touching a Share).
func (s *Share) Zeroize() {
	s.Secret.Zeroize()
}

// ExtendedPubKey is the public half of an HD key: a compressed public key
// plus chain code and BIP32 bookkeeping fields. Freely shareable — it is
// what lets guardians enumerate non-hardened addresses without any
// guardian interaction.
type ExtendedPubKey struct {
	PubKey            [33]byte
	ChainCode         [32]byte
	Depth             uint8
	ParentFingerprint [4]byte
	ChildNumber       uint32
}

// PubKeyPoint decodes PubKey into a curve point.
func (x ExtendedPubKey) PubKeyPoint() (curve.CurvePoint, error) {
	return curve.DecodePoint(x.PubKey[:])
}

const hardenedOffset uint32 = 0x80000000

func be32(i uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, i)
	return b
}

// fingerprint is the first 4 bytes of hash160(compressed pubkey), BIP32's
// parent-fingerprint field. Uses the same RIPEMD160(SHA256(.)) construction
// btcutil.Hash160 implements, reproduced in hash160.go with crypto/sha256 and
// golang.org/x/crypto/ripemd160 rather than importing btcutil.
func fingerprint(pubKey [33]byte) [4]byte {
	h := hash160(pubKey[:])
	var fp [4]byte
	copy(fp[:], h[:4])
	return fp
}

// GenerateShares draws n-1 uniform scalars and sets the last as the additive
// complement of a freshly-drawn master scalar k, per spec.md §4.2
// "Additive sharing": k is the master private key (never persisted or
// returned — only its shares and its public key leave this function). The
// public key k·G is also recoverable as Σ share_i·G (Testable Property 1).
func GenerateShares(n int) ([]Share, curve.CurvePoint, error) {
	if n < 2 {
		return nil, curve.CurvePoint{}, fmt.Errorf("n must be >= 2, got %d", n)
	}

	k, err := curve.RandomScalar()
	if err != nil {
		return nil, curve.CurvePoint{}, fmt.Errorf("failed to draw master scalar: %w", err)
	}
	defer k.Zeroize()

	pubKey := curve.ScalarBaseMult(k)

	shares := make([]Share, n)
	running := curve.NewScalarZero()
	for i := 0; i < n-1; i++ {
		si, err := curve.RandomScalar()
		if err != nil {
			return nil, curve.CurvePoint{}, fmt.Errorf("failed to draw share %d: %w", i+1, err)
		}
		shares[i] = Share{PartyID: i + 1, Secret: si, TotalParties: n, Threshold: n, Tag: TagMaster}
		running = running.Add(si)
	}
	sn := k.Sub(running)
	shares[n-1] = Share{PartyID: n, Secret: sn, TotalParties: n, Threshold: n, Tag: TagMaster}

	return shares, pubKey, nil
}

// SumShares reconstructs Σ share_i mod N. This never happens inside the
// coordinator or any single guardian process in production — it exists for
// test harnesses verifying Testable Properties 1 and 2; AccountSetup does
// not call it.
func SumShares(all []Share) curve.Scalar {
	sum := curve.NewScalarZero()
	for _, s := range all {
		sum = sum.Add(s.Secret)
	}
	return sum
}
