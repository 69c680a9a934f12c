package claim

import (
	"errors"

	"xdao.co/calm/permit"
)

// Reason is the stable rejection taxonomy of a claim.
type Reason string

const (
	PermitWindowInvalid Reason = "PermitWindowInvalid"
	RecipientMismatch   Reason = "RecipientMismatch"
	UnauthorizedSigner  Reason = "UnauthorizedSigner"
	StaleOrReusedPermit Reason = "StaleOrReusedPermit"
	InsufficientPayment Reason = "InsufficientPayment"
	TokenAlreadyMinted  Reason = "TokenAlreadyMinted"
	MalformedRequest    Reason = "MalformedRequest"
	MalformedSignature  Reason = "MalformedSignature"
	InvalidSignature    Reason = "InvalidSignature"
)

// Error is a claim rejection. A rejected claim has no effects.
//
// RuleID is stable (e.g. CALM-CLAIM-004); Message is for humans only.
type Error struct {
	Reason  Reason
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

// Is matches any *Error with the same RuleID.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.RuleID == t.RuleID
}

var (
	ErrPermitWindowInvalid = &Error{Reason: PermitWindowInvalid, RuleID: "CALM-CLAIM-001", Message: "permit is not valid at this time"}
	ErrRecipientMismatch   = &Error{Reason: RecipientMismatch, RuleID: "CALM-CLAIM-002", Message: "permit is restricted to another recipient"}
	ErrUnauthorizedSigner  = &Error{Reason: UnauthorizedSigner, RuleID: "CALM-CLAIM-003", Message: "permit was not signed by the token's creator"}
	ErrStaleOrReusedPermit = &Error{Reason: StaleOrReusedPermit, RuleID: "CALM-CLAIM-004", Message: "permit nonce is not the creator's current nonce"}
	ErrInsufficientPayment = &Error{Reason: InsufficientPayment, RuleID: "CALM-CLAIM-005", Message: "payment does not cover the minimum price"}
	ErrTokenAlreadyMinted  = &Error{Reason: TokenAlreadyMinted, RuleID: "CALM-CLAIM-006", Message: "token has already been minted"}
	ErrMalformedRequest    = &Error{Reason: MalformedRequest, RuleID: "CALM-CLAIM-007", Message: "malformed claim request"}
)

func reject(sentinel *Error, msg string, cause error) error {
	if msg == "" {
		msg = sentinel.Message
	}
	return &Error{Reason: sentinel.Reason, RuleID: sentinel.RuleID, Message: msg, Cause: cause}
}

// ReasonOf classifies err. It returns "" for errors that are not claim
// rejections (storage or transport failures).
func ReasonOf(err error) Reason {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Reason
	}
	switch {
	case errors.Is(err, permit.ErrMalformedSignature):
		return MalformedSignature
	case errors.Is(err, permit.ErrInvalidSignature):
		return InvalidSignature
	case permit.RuleID(err) != "":
		return MalformedRequest
	}
	return ""
}

// RuleID returns the stable rule id of a rejection, or "".
func RuleID(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.RuleID
	}
	return permit.RuleID(err)
}

// IsRejection reports whether err rejects the claim, as opposed to failing
// to evaluate it.
func IsRejection(err error) bool { return ReasonOf(err) != "" }
