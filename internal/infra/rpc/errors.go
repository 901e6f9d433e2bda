package rpc

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a failed registrar call.
type Kind string

const (
	KindAuth      Kind = "AUTH_ERROR"
	KindRetryable Kind = "RETRYABLE_ERROR"
	KindNetwork   Kind = "NETWORK_ERROR"
	KindTimeout   Kind = "REQUEST_TIMEOUT"

	// Business-rule kinds. Retrying cannot change these.
	KindDomainNotAvailable Kind = "DOMAIN_NOT_AVAILABLE"
	KindDomainExpired      Kind = "DOMAIN_EXPIRED"
	KindInsufficientFunds  Kind = "INSUFFICIENT_FUNDS"
	KindTransferNotAllowed Kind = "TRANSFER_NOT_ALLOWED"
	KindInvalidAuthCode    Kind = "INVALID_AUTH_CODE"
	KindCustomerNotFound   Kind = "CUSTOMER_NOT_FOUND"
	KindContactNotFound    Kind = "CONTACT_NOT_FOUND"
	KindOrderNotFound      Kind = "ORDER_NOT_FOUND"
	KindDomainNotFound     Kind = "DOMAIN_NOT_FOUND"
	KindInvalidParameter   Kind = "INVALID_PARAMETER"
	KindPurchasesDisabled  Kind = "PURCHASES_DISABLED"

	// KindAPI is a failure reported by the registrar that matched no known pattern.
	KindAPI Kind = "API_ERROR"
)

// Retryable reports whether a call failing with this kind may be attempted again.
func (k Kind) Retryable() bool {
	return k == KindRetryable || k == KindTimeout
}

const maxRawSnippet = 512

// Error is the normalized form of every failure coming out of the client.
type Error struct {
	Kind    Kind
	Message string
	Status  int    // HTTP status, 0 when not HTTP-derived
	Raw     string // truncated response payload
	Err     error
}

// NewError builds an Error, truncating the raw payload snippet.
func NewError(kind Kind, message string, status int, raw []byte) *Error {
	if len(raw) > maxRawSnippet {
		raw = raw[:maxRawSnippet]
	}
	return &Error{Kind: kind, Message: message, Status: status, Raw: string(raw)}
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (http %d)", e.Kind, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// KindOf extracts the Kind from err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// IsKind reports whether err is a normalized error of the given kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable decides whether the client should try again after err.
// Unclassified errors (transport faults) are retried; caller cancellation is not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if k, ok := KindOf(err); ok {
		return k.Retryable()
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
