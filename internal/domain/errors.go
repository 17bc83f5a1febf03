package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of business error categories. The transport
// layer maps each kind to an HTTP status via a fixed table.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindInternal
)

// Error is a tagged business error carrying a user-facing message.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func NewValidationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func NewInternalError(format string, args ...any) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf(format, args...)}
}

// AsError unwraps err into a tagged *Error if one is in the chain.
func AsError(err error) (*Error, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}
