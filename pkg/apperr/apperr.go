// Package apperr defines the error kinds returned by the storefront core.
// Callers branch on kinds with errors.Is against the sentinels below; the
// message carries the detail meant for humans.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindValidation         Kind = "validation"
	KindInvalidCoupon      Kind = "invalid_coupon"
	KindExpired            Kind = "expired"
	KindAlreadyUsed        Kind = "already_used"
	KindOutOfStock         Kind = "out_of_stock"
	KindUnavailable        Kind = "unavailable"
	KindProductUnavailable Kind = "product_unavailable"
	KindEmptyCart          Kind = "empty_cart"
	KindInvalidTransition  Kind = "invalid_transition"
	KindAlreadyRequested   Kind = "already_requested"
	KindNoRefundRequested  Kind = "no_refund_requested"
	KindUnauthorized       Kind = "unauthorized"
	KindConflict           Kind = "conflict"
)

var (
	ErrNotFound           = &Error{Kind: KindNotFound}
	ErrValidation         = &Error{Kind: KindValidation}
	ErrInvalidCoupon      = &Error{Kind: KindInvalidCoupon}
	ErrExpired            = &Error{Kind: KindExpired}
	ErrAlreadyUsed        = &Error{Kind: KindAlreadyUsed}
	ErrOutOfStock         = &Error{Kind: KindOutOfStock}
	ErrUnavailable        = &Error{Kind: KindUnavailable}
	ErrProductUnavailable = &Error{Kind: KindProductUnavailable}
	ErrEmptyCart          = &Error{Kind: KindEmptyCart}
	ErrInvalidTransition  = &Error{Kind: KindInvalidTransition}
	ErrAlreadyRequested   = &Error{Kind: KindAlreadyRequested}
	ErrNoRefundRequested  = &Error{Kind: KindNoRefundRequested}
	ErrUnauthorized       = &Error{Kind: KindUnauthorized}
	// ErrConflict reports a lost optimistic-concurrency race or a unique key collision.
	ErrConflict = &Error{Kind: KindConflict}
)

type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Message returns the human-readable part of err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
