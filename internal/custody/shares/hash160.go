package shares

import (
	"crypto/sha256"

	"golang.org/x/crypto/ripemd160" //nolint:staticcheck // RIPEMD160 is required by BIP32's fingerprint construction, not chosen for its own security properties.
)

// hash160 is RIPEMD160(SHA256(b)), the digest BIP32 uses for extended-key
// fingerprints. Reproduced here with the golang.org/x/crypto RIPEMD160
// primitive rather than pulling btcutil.Hash160 into this package.
func hash160(b []byte) [20]byte {
	sha := sha256.Sum256(b)
	r := ripemd160.New()
	r.Write(sha[:])
	sum := r.Sum(nil)
	var out [20]byte
	copy(out[:], sum)
	return out
}
