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

// Package ctkerr defines the error taxonomy shared by every go-ctk
// component: mutex, cond, barrier, thread, pool, fiber and ghost all
// return a *ctkerr.Error carrying one of the Kinds below rather than an
// ad-hoc error per package.
package ctkerr

// Kind classifies why an operation failed. It is not a replacement for
// Go's error values - it is the dimension callers switch on to decide
// whether to retry, abort, or treat the return as a usage bug.
type Kind int

const (
	// Ok is the zero value; never itself wrapped in an Error.
	Ok Kind = iota
	// InvalidArgument covers nil/zero handles, malformed input, and
	// threshold-zero style caller bugs caught at the API boundary.
	InvalidArgument
	// Busy means the handle's state machine forbids the operation right
	// now (e.g. try-acquire found the mutex held, create() on a
	// not-Fresh thread, wait() on an already-released one-shot barrier).
	Busy
	// ResourceExhausted means a backing allocation (kernel object, OS
	// thread, stack) could not be obtained.
	ResourceExhausted
	// NotPermitted means the calling context does not own the resource
	// (e.g. unlock from a non-owning goroutine, where detectable).
	NotPermitted
	// Internal means a sub-component failed in a way that isn't one of
	// the other kinds; it wraps the sub-component's error as its cause
	// when there is one (a recovered pool task panic has none).
	Internal
	// TimedOut means a deadline elapsed before the operation completed.
	TimedOut
	// Deadlock means the platform backend detected self-deadlock.
	Deadlock
	// NotStarted means join/detach was attempted on a Fresh thread, or a
	// fiber was created on a goroutine with no established main fiber.
	NotStarted
	// Finished means the operation requires a still-running handle but
	// found one that already completed.
	Finished
	// Detached means join was attempted after detach (or vice versa).
	Detached
	// Cancelled means the operation could not proceed because the
	// owning component is shutting down (e.g. submit after pool.Destroy).
	Cancelled
	// Unsupported means the platform backend cannot fulfill the
	// operation at all (e.g. recursive mutexes on a backend that lacks
	// them) and must be reported rather than silently emulated.
	Unsupported
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case InvalidArgument:
		return "invalid argument"
	case Busy:
		return "busy"
	case ResourceExhausted:
		return "resource exhausted"
	case NotPermitted:
		return "not permitted"
	case Internal:
		return "internal"
	case TimedOut:
		return "timed out"
	case Deadlock:
		return "deadlock"
	case NotStarted:
		return "not started"
	case Finished:
		return "finished"
	case Detached:
		return "detached"
	case Cancelled:
		return "cancelled"
	case Unsupported:
		return "unsupported"
	default:
		return "unknown kind"
	}
}
