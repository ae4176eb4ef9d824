// Package curve provides the secp256k1 scalar and point arithmetic that the
// share algebra and threshold-signing layers build on. It wraps btcec/v2 for
// point decode/on-curve validation and the underlying elliptic.Curve for raw
// point addition and scalar multiplication, since btcec.PublicKey alone has
// no way to combine additive shares.
package curve

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
)

// N is the secp256k1 group order.
var N = btcec.S256().N

// Scalar is an integer reduced mod N. All private share and nonce material
// is represented as a Scalar.
type Scalar struct {
	v *big.Int
}

// NewScalar reduces x mod N and wraps it.
func NewScalar(x *big.Int) Scalar {
	v := new(big.Int).Mod(x, N)
	return Scalar{v: v}
}

// NewScalarZero returns the additive identity.
func NewScalarZero() Scalar {
	return Scalar{v: big.NewInt(0)}
}

// NewScalarUint64 wraps a small non-negative integer as a Scalar.
func NewScalarUint64(x uint64) Scalar {
	return NewScalar(new(big.Int).SetUint64(x))
}

// ScalarFromBytes interprets b as a 32-byte big-endian integer mod N.
func ScalarFromBytes(b []byte) (Scalar, error) {
	if len(b) != 32 {
		return Scalar{}, fmt.Errorf("scalar must be 32 bytes, got %d", len(b))
	}
	return NewScalar(new(big.Int).SetBytes(b)), nil
}

// ScalarFromHex parses a hex-encoded 32-byte scalar.
func ScalarFromHex(s string) (Scalar, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Scalar{}, fmt.Errorf("invalid scalar hex: %w", err)
	}
	return ScalarFromBytes(b)
}

// RandomScalar draws a uniform scalar in [1, N).
func RandomScalar() (Scalar, error) {
	for {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return Scalar{}, fmt.Errorf("failed to read randomness: %w", err)
		}
		v := new(big.Int).SetBytes(buf)
		if v.Sign() == 0 || v.Cmp(N) >= 0 {
			continue
		}
		return Scalar{v: v}, nil
	}
}

// Bytes serializes the scalar as 32-byte big-endian.
func (s Scalar) Bytes() [32]byte {
	var out [32]byte
	b := s.v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

// BigIntBytesTrimmed returns the scalar's big-endian bytes with no leading
// zero padding (big.Int.Bytes semantics) — the form ASN.1 DER integer
// encoding starts from, as opposed to Bytes' fixed 32-byte wire form.
func (s Scalar) BigIntBytesTrimmed() []byte {
	return s.v.Bytes()
}

// Hex returns the scalar as a lowercase hex string (64 chars).
func (s Scalar) Hex() string {
	b := s.Bytes()
	return hex.EncodeToString(b[:])
}

// BigInt returns a copy of the underlying integer.
func (s Scalar) BigInt() *big.Int {
	return new(big.Int).Set(s.v)
}

// IsZero reports whether the scalar is 0.
func (s Scalar) IsZero() bool {
	return s.v.Sign() == 0
}

// Add returns (s + o) mod N.
func (s Scalar) Add(o Scalar) Scalar {
	return NewScalar(new(big.Int).Add(s.v, o.v))
}

// Sub returns (s - o) mod N.
func (s Scalar) Sub(o Scalar) Scalar {
	return NewScalar(new(big.Int).Sub(s.v, o.v))
}

// Mul returns (s * o) mod N.
func (s Scalar) Mul(o Scalar) Scalar {
	return NewScalar(new(big.Int).Mul(s.v, o.v))
}

// Negate returns (-s) mod N.
func (s Scalar) Negate() Scalar {
	return NewScalar(new(big.Int).Neg(s.v))
}

// Invert returns the modular inverse of s mod N via Fermat's little theorem
// (x^(N-2) mod N), matching spec's pow(x, -1, n) requirement exactly. N is
// prime, so this always succeeds for a nonzero s; Invert panics on s == 0
// since every call site already excludes the zero case (a zero nonce or
// zero share is rejected as InvalidContribution before inversion).
func (s Scalar) Invert() Scalar {
	if s.IsZero() {
		panic("curve: cannot invert zero scalar")
	}
	exp := new(big.Int).Sub(N, big.NewInt(2))
	return Scalar{v: new(big.Int).Exp(s.v, exp, N)}
}

// Equal reports whether two scalars are congruent mod N.
func (s Scalar) Equal(o Scalar) bool {
	return s.v.Cmp(o.v) == 0
}

// Cmp compares the underlying integers (both already reduced mod N, so this
// is a total order over [0, N)).
func (s Scalar) Cmp(o Scalar) int {
	return s.v.Cmp(o.v)
}

// Zeroize overwrites the scalar's backing storage. Callers holding a Scalar
// that represents share or nonce material must call this once the value is
// no longer needed.
func (s *Scalar) Zeroize() {
	if s.v == nil {
		return
	}
	words := s.v.Bits()
	for i := range words {
		words[i] = 0
	}
	s.v.SetInt64(0)
}
