package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error. Each kind maps to one HTTP status.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindTooLarge     Kind = "too_large"
	KindUnauthorized Kind = "unauthorized"
	KindSignature    Kind = "signature"
	KindNotFound     Kind = "not_found"
	KindConflict     Kind = "conflict"
	KindGateway      Kind = "gateway"
	KindDelivery     Kind = "delivery"
)

var statusByKind = map[Kind]int{
	KindValidation:   http.StatusBadRequest,
	KindTooLarge:     http.StatusRequestEntityTooLarge,
	KindUnauthorized: http.StatusUnauthorized,
	KindSignature:    http.StatusBadRequest,
	KindNotFound:     http.StatusNotFound,
	KindConflict:     http.StatusConflict,
	KindGateway:      http.StatusInternalServerError,
	KindDelivery:     http.StatusBadGateway,
}

// Error represents an application error
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new Error of the given kind
func New(kind Kind, message string, err error) *Error {
	code, ok := statusByKind[kind]
	if !ok {
		code = http.StatusInternalServerError
	}
	return &Error{Kind: kind, Code: code, Message: message, Err: err}
}

func Validation(message string) *Error {
	return New(KindValidation, message, nil)
}

func TooLarge(message string) *Error {
	return New(KindTooLarge, message, nil)
}

func Unauthorized(message string) *Error {
	return New(KindUnauthorized, message, nil)
}

func Signature(err error) *Error {
	return New(KindSignature, "Webhook signature verification failed", err)
}

func NotFound(message string, err error) *Error {
	return New(KindNotFound, message, err)
}

func Conflict(message string) *Error {
	return New(KindConflict, message, nil)
}

func Gateway(message string, err error) *Error {
	return New(KindGateway, message, err)
}

func Delivery(err error) *Error {
	return New(KindDelivery, "Failed to deliver notification", err)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, or an empty Kind for foreign errors.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return ""
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsNotFound(err error) bool {
	return Is(err, KindNotFound)
}

// StatusCode returns the HTTP status for err; foreign errors are 500.
func StatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return http.StatusInternalServerError
}

// PublicMessage returns the message safe to show to a client.
func PublicMessage(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return "internal server error"
}
