// Copyright 2020 Nathan Taylor (nbtaylor@gmail.com)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy of
// this software and associated documentation files (the "Software"), to deal in
// the Software without restriction, including without limitation the rights to
// use, copy, modify, merge, publish, distribute, sublicense, and/or sell copies
// of the Software, and to permit persons to whom the Software is furnished to do
// so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package ctkerr

import (
	"errors"
	"fmt"
)

// Error is the concrete error type returned by every go-ctk component.
type Error struct {
	// Op names the failing operation, e.g. "Mutex.Lock" or "Pool.Submit".
	Op   string
	Kind Kind
	// Err is the underlying cause, if any (e.g. a backend allocation
	// failure). May be nil for pure usage errors.
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error. err may be nil.
func New(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Is reports whether err is a *Error of the given Kind, unwrapping as
// necessary. It lets callers write `ctkerr.Is(err, ctkerr.Busy)` instead
// of a type assertion at every call site.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, returning Internal if err is not a
// *Error (so callers always get a meaningful classification).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if err == nil {
		return Ok
	}
	return Internal
}

// Convenience constructors for the call sites that just need a bare Kind
// with no wrapped cause.

func Invalid(op string) error           { return New(op, InvalidArgument, nil) }
func BusyErr(op string) error           { return New(op, Busy, nil) }
func NotPermittedErr(op string) error   { return New(op, NotPermitted, nil) }
func TimedOutErr(op string) error       { return New(op, TimedOut, nil) }
func DeadlockErr(op string) error       { return New(op, Deadlock, nil) }
func NotStartedErr(op string) error     { return New(op, NotStarted, nil) }
func FinishedErr(op string) error       { return New(op, Finished, nil) }
func DetachedErr(op string) error       { return New(op, Detached, nil) }
func CancelledErr(op string) error      { return New(op, Cancelled, nil) }
func UnsupportedErr(op string) error    { return New(op, Unsupported, nil) }
func ResourceExhaustedErr(op string, err error) error {
	return New(op, ResourceExhausted, err)
}
func InternalErr(op string, err error) error { return New(op, Internal, err) }
