// errors.go - Typed verification errors.
//
// Every failure of the pipeline maps to one kind, and each kind to one
// HTTP status. Messages never carry intermediate field values.

package auth

import "fmt"

// Kind classifies a verification failure.
type Kind int

const (
	KindInternal Kind = iota
	KindInvalidInput
	KindInvalidChallenge
	KindChallengeExpired
	KindInvalidProof
	KindBindingMismatch
	KindRegistryRootMismatch
	KindNullifierReused
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidInput:
		return "InvalidInput"
	case KindInvalidChallenge:
		return "InvalidChallenge"
	case KindChallengeExpired:
		return "ChallengeExpired"
	case KindInvalidProof:
		return "InvalidProof"
	case KindBindingMismatch:
		return "BindingMismatch"
	case KindRegistryRootMismatch:
		return "RegistryRootMismatch"
	case KindNullifierReused:
		return "NullifierReused"
	case KindTimeout:
		return "Timeout"
	default:
		return "Internal"
	}
}

// HTTPStatus maps the kind to its response status.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidInput:
		return 400
	case KindInvalidChallenge, KindChallengeExpired, KindInvalidProof,
		KindBindingMismatch, KindRegistryRootMismatch:
		return 401
	case KindNullifierReused:
		return 409
	case KindTimeout:
		return 504
	default:
		return 500
	}
}

// VerifyError is a classified verification failure.
type VerifyError struct {
	Kind Kind
	msg  string
}

func (e *VerifyError) Error() string {
	if e.msg == "" {
		return e.Kind.String()
	}
	return e.Kind.String() + ": " + e.msg
}

func errf(kind Kind, format string, args ...interface{}) *VerifyError {
	return &VerifyError{Kind: kind, msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from an error, defaulting to Internal.
func KindOf(err error) Kind {
	if ve, ok := err.(*VerifyError); ok {
		return ve.Kind
	}
	return KindInternal
}
