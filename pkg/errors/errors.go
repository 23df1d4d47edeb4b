package errors

import (
	"errors"
	"fmt"
)

// Error codes used across the pipeline.
const (
	CodeValidation      = "validation"
	CodeTransientFetch  = "transient_fetch"
	CodeStructuralParse = "structural_parse"
	CodeDelivery        = "delivery"
	CodeResource        = "resource"
)

// Sentinels for errors.Is checks. Any *Error carrying the same code matches.
var (
	ErrValidation      = &Error{Code: CodeValidation, Message: "validation failed"}
	ErrTransientFetch  = &Error{Code: CodeTransientFetch, Message: "transient fetch failure"}
	ErrStructuralParse = &Error{Code: CodeStructuralParse, Message: "unexpected payload structure"}
	ErrDelivery        = &Error{Code: CodeDelivery, Message: "delivery failed"}
	ErrResource        = &Error{Code: CodeResource, Message: "resource limit exceeded"}
)

// Error represents a custom error type
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so wrapped errors compare equal to the sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// New creates a new error with a message
func New(message string) error {
	return &Error{
		Message: message,
	}
}

// Newf creates a coded error with a formatted message.
func Newf(code, format string, args ...any) error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with additional message, keeping the code of the wrapped error.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    GetCode(err),
		Message: message,
		Err:     err,
	}
}

// WrapWithCode wraps an error with a code and message
func WrapWithCode(err error, code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// GetCode returns the error code if it exists
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// GetMessage returns the error message
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsTransientFetch(err error) bool {
	return errors.Is(err, ErrTransientFetch)
}

func IsStructuralParse(err error) bool {
	return errors.Is(err, ErrStructuralParse)
}

func IsDelivery(err error) bool {
	return errors.Is(err, ErrDelivery)
}

func IsResource(err error) bool {
	return errors.Is(err, ErrResource)
}
