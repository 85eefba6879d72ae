package api

import (
	"github.com/conorfennell/memoryrefresh/internal/errs"
)

// Envelope is the result-or-error record returned by every operation.
type Envelope struct {
	Data any    `json:"data,omitempty"`
	Err  *Error `json:"error,omitempty"`
}

// Error is the client-facing part of a failed operation.
type Error struct {
	Code    errs.Code `json:"code"`
	Message string    `json:"message"`
}

// OK reports whether the operation succeeded.
func (e Envelope) OK() bool { return e.Err == nil }

func success(data any) Envelope {
	return Envelope{Data: data}
}

func failure(err error) Envelope {
	code := errs.CodeOf(err)
	msg := err.Error()
	if code == errs.CodeInternal {
		msg = "internal error"
	}
	return Envelope{Err: &Error{Code: code, Message: msg}}
}
