package bitcoin

import (
	"github.com/arcsign/custody/internal/custody/curve"
)

// EncodeDER serializes an (r, s) pair produced by the threshold engine as a
// BIP66-strict DER signature (SEQUENCE of two INTEGERs, each minimally
// encoded with no unnecessary leading zero byte, and a leading 0x00 inserted
// only when the high bit of the leftmost byte would otherwise be set).
//
// btcec/v2/ecdsa.Signature.Serialize does the equivalent encoding, but only
// for a *btcec.Signature built from that package's own Sign call — there is
// no library entry point that DER-encodes a caller-supplied (r, s) pair
// computed outside btcec's signing path, which is exactly what the
// threshold engine's aggregated (r, s) is. Hand-rolling the encoding here is
// the one faithful way to wire the threshold engine's output into Bitcoin's
// wire format.
func EncodeDER(r, s curve.Scalar) []byte {
	rBytes := asn1Int(r.BigIntBytesTrimmed())
	sBytes := asn1Int(s.BigIntBytesTrimmed())

	body := append(append([]byte{}, rBytes...), sBytes...)
	out := []byte{0x30, byte(len(body))}
	return append(out, body...)
}

// asn1Int wraps b as a minimal-length DER INTEGER, prefixing a 0x00 byte
// when the leading byte's high bit is set (DER integers are signed; this
// signature's r and s are always treated as positive).
func asn1Int(b []byte) []byte {
	for len(b) > 1 && b[0] == 0x00 && b[1] < 0x80 {
		b = b[1:]
	}
	if len(b) == 0 {
		b = []byte{0x00}
	}
	if b[0]&0x80 != 0 {
		b = append([]byte{0x00}, b...)
	}
	out := []byte{0x02, byte(len(b))}
	return append(out, b...)
}
