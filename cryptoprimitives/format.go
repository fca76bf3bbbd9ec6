package cryptoprimitives

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"regexp"

	"github.com/commands-run/desktop-agent/internal/errs"
)

// standardB64Pattern matches only well-formed, correctly-padded
// standard base64 (RFC 4648 alphabet). Input is validated against it
// before ever reaching the decoder, so malformed alphabets or padding
// fail closed with a CryptoFormatError instead of a decoder-specific
// error.
var standardB64Pattern = regexp.MustCompile(`^(?:[A-Za-z0-9+/]{4})*(?:[A-Za-z0-9+/]{2}==|[A-Za-z0-9+/]{3}=)?$`)

// DecodeBase64 validates s against the standard base64 alphabet and
// padding rules before decoding it.
func DecodeBase64(s string) ([]byte, error) {
	if s != "" && !standardB64Pattern.MatchString(s) {
		return nil, errs.New(errs.CodeCryptoFormat, "invalid base64 encoding")
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, errs.Wrap(errs.CodeCryptoFormat, "base64 decode failed", err)
	}
	return decoded, nil
}

// EncodeBase64 is the standard-alphabet counterpart to DecodeBase64.
func EncodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// ConstantTimeEqual reports whether a and b are equal using a
// constant-time comparison, avoiding timing side channels on secret
// material such as derived nonces or authentication tags.
func ConstantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// Zeroize overwrites buf with zeros in place. It must be called on
// every secret buffer (ephemeral private keys, shared secrets,
// derived session keys) as soon as it is no longer needed.
func Zeroize(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
}

// ValidateFixedLength is a small helper closed-error wrapper used by
// callers that need a one-line length check with a CryptoFormatError
// on mismatch, matching the style used throughout this package.
func ValidateFixedLength(name string, got, want int) error {
	if got != want {
		return errs.New(errs.CodeCryptoFormat, fmt.Sprintf("%s must be %d bytes, got %d", name, want, got))
	}
	return nil
}
