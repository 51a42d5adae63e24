// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package errors

// Template describes the Errs a Match call accepts. Zero fields are not
// compared, so a Template holding only a Kind matches every code of that
// kind.
type Template struct {
	Err
	Kind Kind
}

// T builds a Template from codes, kinds, ops, messages and errors given in
// any order. Unsupported values are ignored and later values of the same
// type replace earlier ones.
func T(args ...any) *Template {
	t := &Template{}
	for _, a := range args {
		switch arg := a.(type) {
		case Code:
			t.Code = arg
		case Kind:
			t.Kind = arg
		case Op:
			t.Op = arg
		case string:
			t.Msg = arg
		case *Err:
			c := *arg
			t.Wrapped = &c
		case error:
			t.Wrapped = arg
		}
	}
	return t
}

// Info returns the Info of the Template's Code, or of its Kind when no Code
// was given.
func (t *Template) Info() Info {
	switch {
	case t == nil:
		return errorCodeInfo[Unknown]
	case t.Code != Unknown:
		return t.Code.Info()
	case t.Kind != Other:
		return Info{Kind: t.Kind, Message: "Unknown"}
	}
	return errorCodeInfo[Unknown]
}

// Error makes a Template usable as a wrapped error inside another Template.
func (t *Template) Error() string {
	return "Template error"
}

// Match reports whether the first Err in err's chain has every non zero
// field of t. A Template wrapping another Template is matched against the
// Err's wrapped error in turn.
func Match(t *Template, err error) bool {
	if t == nil || err == nil {
		return false
	}
	var e *Err
	if !As(err, &e) {
		return false
	}
	switch {
	case t.Code != Unknown && t.Code != e.Code,
		t.Kind != Other && t.Info().Kind != e.Info().Kind,
		t.Op != "" && t.Op != e.Op,
		t.Msg != "" && t.Msg != e.Msg:
		return false
	}
	if t.Wrapped == nil {
		return true
	}
	if inner, ok := t.Wrapped.(*Template); ok {
		return Match(inner, e.Wrapped)
	}
	return e.Wrapped != nil && t.Wrapped.Error() == e.Wrapped.Error()
}
