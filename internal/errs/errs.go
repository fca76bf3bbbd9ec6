// Package errs defines the closed set of session-layer error codes and
// the SessionError type every component in this module reports through.
package errs

import "fmt"

// Code is one of the closed set of stable, UI-facing error codes.
type Code string

const (
	CodeCryptoFormat         Code = "CRYPTO_FORMAT_ERROR"
	CodeSignatureInvalid     Code = "SIGNATURE_INVALID"
	CodeSequenceViolation    Code = "SEQUENCE_VIOLATION"
	CodeDecryptFailure       Code = "DECRYPT_FAILURE"
	CodeHandshakeTimeout     Code = "HANDSHAKE_TIMEOUT"
	CodeRelayUnauthenticated Code = "RELAY_UNAUTHENTICATED"
	CodeRelayGone            Code = "RELAY_GONE"
	CodeRelayTransient       Code = "RELAY_TRANSIENT"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeUntrustedOrigin      Code = "UNTRUSTED_ORIGIN"
	CodeUnsafeScheme         Code = "UNSAFE_SCHEME"
	CodeKeychainUnavailable  Code = "KEYCHAIN_UNAVAILABLE"
)

// recoverableByDefault records whether each code drives a UI retry
// affordance ("reconnect now") versus a hard stop ("sign in required").
var recoverableByDefault = map[Code]bool{
	CodeCryptoFormat:         false,
	CodeSignatureInvalid:     false,
	CodeSequenceViolation:    false,
	CodeDecryptFailure:       false,
	CodeHandshakeTimeout:     true,
	CodeRelayUnauthenticated: false,
	CodeRelayGone:            true,
	CodeRelayTransient:       true,
	CodeRateLimited:          true,
	CodeUntrustedOrigin:      false,
	CodeUnsafeScheme:         false,
	CodeKeychainUnavailable:  true,
}

// SessionError is the error value every fatal-for-session failure takes.
// It matches the UI contract {code, message, recoverable} from spec §7.
type SessionError struct {
	Code        Code
	Message     string
	Recoverable bool
	Cause       error
}

// New builds a SessionError with the default recoverability for code.
func New(code Code, message string) *SessionError {
	return &SessionError{Code: code, Message: message, Recoverable: recoverableByDefault[code]}
}

// Wrap builds a SessionError carrying cause as the underlying error.
func Wrap(code Code, message string, cause error) *SessionError {
	return &SessionError{Code: code, Message: message, Recoverable: recoverableByDefault[code], Cause: cause}
}

func (e *SessionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SessionError) Unwrap() error { return e.Cause }

// Is reports whether err is a *SessionError with the given code.
func Is(err error, code Code) bool {
	se, ok := err.(*SessionError)
	return ok && se.Code == code
}
