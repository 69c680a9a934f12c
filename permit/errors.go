package permit

import "errors"

// Kind is a stable category for programmatic error handling.
//
// Callers should branch on Kind/RuleID rather than matching error strings.
type Kind string

const (
	KindPermit    Kind = "Permit"
	KindDomain    Kind = "Domain"
	KindSignature Kind = "Signature"
	KindCodec     Kind = "Codec"
)

// Error is the package's structured error type.
//
// RuleID is a stable identifier (e.g. CALM-SIG-001) naming the violated rule.
// Message is intended for humans; do not match on it.
type Error struct {
	Kind    Kind
	RuleID  string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any *Error carrying the same RuleID, so the exported
// sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.RuleID == t.RuleID
}

var (
	// ErrMalformedSignature reports a signature whose encoding is invalid.
	ErrMalformedSignature = &Error{Kind: KindSignature, RuleID: "CALM-SIG-001", Message: "malformed signature"}
	// ErrInvalidSignature reports a well-formed signature from which no signer can be recovered.
	ErrInvalidSignature = &Error{Kind: KindSignature, RuleID: "CALM-SIG-002", Message: "invalid signature"}
)

// MalformedSignatureError reports a signature that could not be decoded.
// It matches ErrMalformedSignature.
func MalformedSignatureError(msg string, cause error) error {
	return wrapError(KindSignature, ErrMalformedSignature.RuleID, msg, cause)
}

func newError(kind Kind, ruleID, msg string) error {
	return &Error{Kind: kind, RuleID: ruleID, Message: msg}
}

func wrapError(kind Kind, ruleID, msg string, cause error) error {
	if cause == nil {
		return newError(kind, ruleID, msg)
	}
	return &Error{Kind: kind, RuleID: ruleID, Message: msg, Cause: cause}
}

// IsKind reports whether err is (or wraps) a *Error with the given Kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// RuleID returns the stable RuleID for a structured error, or "" if unknown.
func RuleID(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.RuleID
}
