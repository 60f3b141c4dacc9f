package safe

import (
	"errors"
	"fmt"
)

// Kind classifies a failure so callers can decide between retrying and
// asking for new input.
type Kind uint8

const (
	KindConfiguration Kind = iota + 1
	KindEmptyTransaction
	KindUnauthorizedSigner
	KindAuthentication
	KindRelayRejected
	KindRelayUnavailable
	KindNetworkRead
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindEmptyTransaction:
		return "empty transaction"
	case KindUnauthorizedSigner:
		return "unauthorized signer"
	case KindAuthentication:
		return "authentication"
	case KindRelayRejected:
		return "relay rejected"
	case KindRelayUnavailable:
		return "relay unavailable"
	case KindNetworkRead:
		return "network read"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Retriable reports whether the same input may be submitted again.
func (k Kind) Retriable() bool {
	return k == KindRelayUnavailable || k == KindNetworkRead
}

// Kind sentinels, usable with errors.Is.
var (
	ErrConfiguration      = &Error{Kind: KindConfiguration}
	ErrEmptyTransaction   = &Error{Kind: KindEmptyTransaction}
	ErrUnauthorizedSigner = &Error{Kind: KindUnauthorizedSigner}
	ErrAuthentication     = &Error{Kind: KindAuthentication}
	ErrRelayRejected      = &Error{Kind: KindRelayRejected}
	ErrRelayUnavailable   = &Error{Kind: KindRelayUnavailable}
	ErrNetworkRead        = &Error{Kind: KindNetworkRead}
)

var (
	ErrNoOwners           = errors.New("owner set is empty")
	ErrDuplicateOwner     = errors.New("duplicate owner")
	ErrZeroOwner          = errors.New("zero address owner")
	ErrThresholdRange     = errors.New("threshold out of range")
	ErrInvalidCall        = errors.New("invalid call")
	ErrMissingFeePayment  = errors.New("unsponsored request has no fee payment call")
	ErrNotComposed        = errors.New("relay request has no relay options")
	ErrSigningAbandoned   = errors.New("signing abandoned")
	ErrSignatureMismatch  = errors.New("signature does not recover to signer")
	ErrIncompleteDeploy   = errors.New("incomplete deployment config")
	ErrAccountNotSelected = errors.New("account not in resolved set")
)

// Error carries a Kind, the failing operation and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op == "" && e.Err == nil:
		return e.Kind.String()
	case e.Op == "":
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same Kind, so the package sentinels work
// with errors.Is regardless of Op and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func (e *Error) Retriable() bool { return e.Kind.Retriable() }

// NewError wraps err with a kind and operation name.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or zero.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsRetriable reports whether err is safe to retry with unchanged input.
func IsRetriable(err error) bool {
	return KindOf(err).Retriable()
}
