package curve

import (
	"crypto/hmac"
	"crypto/sha512"
)

// HMACSHA512 computes HMAC-SHA512(key, data), the raw primitive BIP32 builds
// every derivation step on. Neither btcd nor go-ethereum exposes a bare
// HMAC-SHA512 entry point — both embed it inside whole-private-key helpers
// like hdkeychain.NewMaster, which can't operate on additive shares — so
// this wraps the standard library directly.
func HMACSHA512(key, data []byte) [64]byte {
	mac := hmac.New(sha512.New, key)
	mac.Write(data)
	sum := mac.Sum(nil)
	var out [64]byte
	copy(out[:], sum)
	return out
}
