// Package bterr implements the engine's prefixed, coded error model:
// every failure carries a stable prefix (e.g. KLINE_NODE), a 4-digit
// code, an HTTP status mapping and English/Chinese messages, and chains
// transparently through fmt.Errorf("...: %w", ...) like any other Go error.
package bterr

import (
	"errors"
	"fmt"
)

// Error is the engine's coded error type.
type Error struct {
	Prefix     string
	Code       int
	MessageEN  string
	MessageZH  string
	HTTPStatus int
	Cause      error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s_%04d: %s: %v", e.Prefix, e.Code, e.MessageEN, e.Cause)
	}
	return fmt.Sprintf("%s_%04d: %s", e.Prefix, e.Code, e.MessageEN)
}

func (e *Error) Unwrap() error { return e.Cause }

// ErrorCode returns the "<PREFIX>_<NNNN>" form used in emitted events.
func (e *Error) ErrorCode() string {
	return fmt.Sprintf("%s_%04d", e.Prefix, e.Code)
}

// WithCause returns a copy of e wrapping cause, for use at a call site
// that wants to attach a concrete underlying error without mutating the
// package-level definition.
func (e *Error) WithCause(cause error) *Error {
	cp := *e
	cp.Cause = cause
	return &cp
}

var registry = map[string]*Error{}

// New registers (or returns the existing) canonical definition for a
// prefix+code pair. Call it once per failure mode at package init time.
func New(prefix string, code int, httpStatus int, en, zh string) *Error {
	key := fmt.Sprintf("%s_%04d", prefix, code)
	if existing, ok := registry[key]; ok {
		return existing
	}
	e := &Error{Prefix: prefix, Code: code, MessageEN: en, MessageZH: zh, HTTPStatus: httpStatus}
	registry[key] = e
	return e
}

// Lookup finds a registered definition by its "<PREFIX>_<NNNN>" code.
func Lookup(code string) (*Error, bool) {
	e, ok := registry[code]
	return e, ok
}

// CodeChain walks err's Unwrap chain collecting every *Error code
// encountered, outermost first, for the errorCodeChain event field.
func CodeChain(err error) []string {
	var chain []string
	for err != nil {
		var be *Error
		if errors.As(err, &be) {
			chain = append(chain, be.ErrorCode())
			err = be.Cause
			continue
		}
		break
	}
	return chain
}

// As is a thin re-export so callers importing only bterr can type-assert
// without also importing errors.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
