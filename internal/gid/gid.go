// Package gid extracts the calling goroutine's runtime-assigned id.
//
// The runtime does not expose this through any public API. The technique
// below - parsing the "goroutine NNN [state]:" header off a runtime.Stack
// dump of just the calling goroutine - is the same one used by the
// handful of debug/observability packages in the wild that need it (e.g.
// to key per-goroutine caches or detect cross-goroutine misuse); there is
// no lighter-weight alternative, and no third-party package is vendored
// for it here because its entire contract is "parse one line of a stdlib
// stack dump", which isn't worth an external dependency.
//
// Callers: mutex calls it once per Lock, TryLock and Unlock for ownership
// checks; thread calls it once at trampoline entry; fiber calls it in
// EstablishMain, Create, Resume and at each backing goroutine's start.
package gid

import (
	"bytes"
	"runtime"
	"strconv"
)

// Current returns the calling goroutine's id. It never returns an error;
// if the stack header is ever in an unrecognised shape (which would mean
// a runtime internal change) it returns 0, which no real goroutine id is.
func Current() uint64 {
	buf := make([]byte, 64)
	for {
		n := runtime.Stack(buf, false)
		if n < len(buf) {
			buf = buf[:n]
			break
		}
		buf = make([]byte, 2*len(buf))
	}
	// Format: "goroutine 123 [running]:\n..."
	const prefix = "goroutine "
	if !bytes.HasPrefix(buf, []byte(prefix)) {
		return 0
	}
	rest := buf[len(prefix):]
	sp := bytes.IndexByte(rest, ' ')
	if sp < 0 {
		return 0
	}
	id, err := strconv.ParseUint(string(rest[:sp]), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
