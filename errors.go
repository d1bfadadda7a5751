// Copyright 2026 Toni Melisma
// SPDX-License-Identifier: MIT

package xmpimage

import (
	"errors"
	"fmt"
)

// errMalformed is the sentinel wrapped by every *MalformedError.
var errMalformed = &MalformedError{errors.New("malformed container")}

// IsMalformed reports whether err is (or wraps) a *MalformedError, i.e. the
// input was structurally rejected rather than failing on plain I/O grounds.
func IsMalformed(err error) bool {
	return errors.Is(err, errMalformed)
}

// MalformedError is returned when a container fails a structural check:
// a bad signature, an impossible size, an enumerated constant that doesn't
// match, or a magic trailer that doesn't match exactly.
type MalformedError struct {
	Err error
}

func (e *MalformedError) Error() string {
	return "malformed container: " + e.Err.Error()
}

// Is reports whether target is also a *MalformedError, so errors.Is(err,
// errMalformed) matches any MalformedError regardless of its wrapped detail.
func (e *MalformedError) Is(target error) bool {
	_, ok := target.(*MalformedError)
	return ok
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func newMalformedf(format string, args ...any) error {
	return &MalformedError{fmt.Errorf(format, args...)}
}

func newMalformed(err error) error {
	return &MalformedError{err}
}

// errShortRead/errShortWrite mark failures of the bounded-copy path shared
// by every writer. A short read of the reference is wrapped in a
// *MalformedError, like every other read past the end of the input; a
// failed destination write wraps errShortWrite and is an ordinary I/O
// error, not a format rejection.
var (
	errShortRead  = errors.New("xmpimage: short read")
	errShortWrite = errors.New("xmpimage: short write")
)
