// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

import (
	"errors"
	"strings"
)

// Op represents an operation (package.function).
// For example iam.CreateRole
type Op string

// Err provides the ability to specify a Msg, Op, Code and Wrapped error.
// Errs must have a Code and all other fields are optional.
type Err struct {
	// Code is the error's code, which can be used to get the error's
	// errorCodeInfo, which contains the error's Kind and Message
	Code Code

	// Msg for the error
	Msg string

	// Op represents the operation raising/propagating an error and is optional.
	Op Op

	// Wrapped is the error which this Err wraps and will be nil if there's no
	// error being wrapped.
	Wrapped error
}

// New creates a new Err and supports the options of:
// WithMsg() - allows you to specify an optional error msg, if the default
// msg for the error Code is not sufficient.
// WithWrap() - allows you to specify an error to wrap.
func New(c Code, op Op, msg string, opt ...Option) error {
	opts := GetOpts(opt...)
	if msg == "" {
		msg = opts.withErrMsg
	}
	return &Err{
		Code:    c,
		Op:      op,
		Msg:     msg,
		Wrapped: opts.withErrWrapped,
	}
}

// Wrap creates a new Err from the provided err and op, preserving the code
// from the originating error. It supports the options of:
// WithCode() - allows you to specify a code.  If not specified the Code of
// the wrapped Err is used, or Unknown when err is not an Err.
// WithMsg() - allows you to specify an optional error msg.
// Wrap returns nil when err is nil.
func Wrap(err error, op Op, opt ...Option) error {
	if err == nil {
		return nil
	}
	opts := GetOpts(opt...)
	code := opts.withCode
	if code == Unknown {
		var e *Err
		if errors.As(err, &e) {
			code = e.Code
		}
	}
	return &Err{
		Code:    code,
		Op:      op,
		Msg:     opts.withErrMsg,
		Wrapped: err,
	}
}

// Info about the Err
func (e *Err) Info() Info {
	if e == nil {
		return errorCodeInfo[Unknown]
	}
	return e.Code.Info()
}

// Error satisfies the error interface and returns a string representation of
// the Err
func (e *Err) Error() string {
	if e == nil {
		return ""
	}
	var s strings.Builder
	if e.Op != "" {
		join(&s, ": ", string(e.Op))
	}
	if e.Msg != "" {
		join(&s, ": ", e.Msg)
	}

	var skipInfo bool
	var wrapped *Err
	if errors.As(e.Wrapped, &wrapped) {
		// if wrapped error code is the same as this error, don't print redundant info
		skipInfo = wrapped.Code == e.Code
	}

	if info, ok := errorCodeInfo[e.Code]; ok && !skipInfo {
		if e.Msg == "" {
			join(&s, ": ", info.Message) // provide a default.
			join(&s, ", ", info.Kind.String())
		} else {
			join(&s, ": ", info.Kind.String())
		}
	}
	if e.Wrapped != nil {
		join(&s, ": \n", e.Wrapped.Error())
	}
	return s.String()
}

func join(str *strings.Builder, delim string, s string) {
	if str.Len() > 0 {
		str.WriteString(delim)
	}
	str.WriteString(s)
}

// Unwrap implements the errors.Unwrap interface and allows callers to use the
// errors.Is() and errors.As() functions effectively for any wrapped errors.
func (e *Err) Unwrap() error {
	return e.Wrapped
}

// Convenience to avoid importing the standard library errors package
// alongside this one.
var (
	// Is the equivalent of the std errors.Is
	Is = errors.Is
	// As is the equivalent of the std errors.As
	As = errors.As
	// Unwrap is the equivalent of the std errors.Unwrap
	Unwrap = errors.Unwrap
)
