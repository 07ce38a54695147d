// Package errcode provides layered error codes.
// Code format: MMBBBB (MM = module code, BBBB = business code).
package errcode

import (
	"errors"
	"fmt"
	"net/http"
)

// LayeredError carries a stable numeric code, a message key, an HTTP status
// mapping, optional context data and an optional cause.
type LayeredError struct {
	module     string
	code       int
	msgKey     string
	msg        string
	httpStatus int
	data       map[string]interface{}
	cause      error
}

// New creates a layered error. httpStatus defaults to 500.
func New(moduleCode, businessCode int, module, msgKey, msg string, httpStatus ...int) *LayeredError {
	status := http.StatusInternalServerError
	if len(httpStatus) > 0 {
		status = httpStatus[0]
	}
	return &LayeredError{
		module:     module,
		code:       moduleCode*10000 + businessCode,
		msgKey:     msgKey,
		msg:        msg,
		httpStatus: status,
	}
}

func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code returns the full MMBBBB code.
func (e *LayeredError) Code() int { return e.code }

// Module returns the owning module name.
func (e *LayeredError) Module() string { return e.module }

// MsgKey returns the i18n message key.
func (e *LayeredError) MsgKey() string { return e.msgKey }

// Message returns the message without the cause.
func (e *LayeredError) Message() string { return e.msg }

// HTTPStatus returns the mapped HTTP status.
func (e *LayeredError) HTTPStatus() int { return e.httpStatus }

// Data returns a copy of the context data.
func (e *LayeredError) Data() map[string]interface{} { return e.cloneData() }

// Unwrap supports errors.Is / errors.As through the cause.
func (e *LayeredError) Unwrap() error { return e.cause }

// Is matches any LayeredError with the same code.
func (e *LayeredError) Is(target error) bool {
	t, ok := target.(*LayeredError)
	return ok && t.code == e.code
}

// WithMsg returns a copy with a replaced message.
func (e *LayeredError) WithMsg(msg string) *LayeredError {
	clone := *e
	clone.msg = msg
	return &clone
}

// WithMsgf returns a copy with a formatted message.
func (e *LayeredError) WithMsgf(format string, args ...interface{}) *LayeredError {
	return e.WithMsg(fmt.Sprintf(format, args...))
}

// WithData returns a copy with one more context entry.
func (e *LayeredError) WithData(key string, value interface{}) *LayeredError {
	clone := *e
	clone.data = e.cloneData()
	clone.data[key] = value
	return &clone
}

// WithHTTPStatus returns a copy with a different HTTP status.
func (e *LayeredError) WithHTTPStatus(status int) *LayeredError {
	clone := *e
	clone.httpStatus = status
	return &clone
}

// Wrap returns a copy carrying cause. A nil cause returns e unchanged.
func (e *LayeredError) Wrap(cause error) *LayeredError {
	if cause == nil {
		return e
	}
	clone := *e
	clone.cause = cause
	return &clone
}

func (e *LayeredError) cloneData() map[string]interface{} {
	data := make(map[string]interface{}, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return data
}

// As finds the outermost LayeredError in err's chain.
func As(err error) (*LayeredError, bool) {
	var le *LayeredError
	if errors.As(err, &le) {
		return le, true
	}
	return nil, false
}

// CodeOf returns the code of the outermost LayeredError, or 0.
func CodeOf(err error) int {
	if le, ok := As(err); ok {
		return le.code
	}
	return 0
}
