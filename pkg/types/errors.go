package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode represents a goshape error code.
//
// The leading letter identifies the stage that produced the error:
// L (lexer), S (parser), B (builder) and R (runtime evaluation).
type ErrorCode string

const (
	// L01xx: Lexical errors
	ErrUnexpectedChar  ErrorCode = "L0101"
	ErrStringNotClosed ErrorCode = "L0102"
	ErrInvalidNumber   ErrorCode = "L0103"

	// S02xx: Syntax errors
	ErrSyntaxError       ErrorCode = "S0201"
	ErrExpectedToken     ErrorCode = "S0202"
	ErrUnexpectedEnd     ErrorCode = "S0203"
	ErrInvalidIndexer    ErrorCode = "S0204"
	ErrMissingAlias      ErrorCode = "S0205"
	ErrUnknownFunction   ErrorCode = "S0206"
	ErrMaxDepth          ErrorCode = "S0207"
	ErrInvalidProjection ErrorCode = "S0208"
	ErrInvalidArgument   ErrorCode = "S0209"

	// B03xx: Build errors
	ErrUnknownProperty  ErrorCode = "B0301"
	ErrArgumentCount    ErrorCode = "B0302"
	ErrTypeMismatch     ErrorCode = "B0303"
	ErrUnsupportedNode  ErrorCode = "B0304"
	ErrTooManyGroupKeys ErrorCode = "B0305"
	ErrNoGroupContext   ErrorCode = "B0306"
	ErrNotCollection    ErrorCode = "B0307"
	ErrNoAggregate      ErrorCode = "B0308"
	ErrUnknownType      ErrorCode = "B0309"

	// R04xx: Runtime errors
	ErrNullReference  ErrorCode = "R0401"
	ErrConversion     ErrorCode = "R0402"
	ErrDivisionByZero ErrorCode = "R0403"
)

// Error represents a structured goshape error.
type Error struct {
	Code     ErrorCode
	Message  string
	Position int
	Token    string
	Err      error
}

// NewError creates a new goshape error.
func NewError(code ErrorCode, message string, position int) *Error {
	return &Error{
		Code:     code,
		Message:  message,
		Position: position,
	}
}

// Errorf creates a new goshape error with a formatted message.
func Errorf(code ErrorCode, position int, format string, args ...interface{}) *Error {
	return NewError(code, fmt.Sprintf(format, args...), position)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Position >= 0 {
		return fmt.Sprintf("%s at position %d: %s", e.Code, e.Position, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// WithToken adds token information to the error.
func (e *Error) WithToken(token string) *Error {
	e.Token = token
	return e
}

// WithCause wraps another error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func hasStage(err error, prefix string) bool {
	return strings.HasPrefix(string(CodeOf(err)), prefix)
}

// IsLexical reports whether err was raised by the tokenizer.
func IsLexical(err error) bool { return hasStage(err, "L") }

// IsSyntax reports whether err was raised by the parser.
func IsSyntax(err error) bool { return hasStage(err, "S") }

// IsBuild reports whether err was raised while building a backend artifact.
func IsBuild(err error) bool { return hasStage(err, "B") }

// IsRuntime reports whether err was raised while executing a compiled artifact.
func IsRuntime(err error) bool { return hasStage(err, "R") }
