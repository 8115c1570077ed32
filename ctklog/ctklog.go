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

// Package ctklog is the cross-cutting, package-level logging hook shared
// by mutex, barrier, thread, pool, fiber and ghost. None of those
// packages' algorithms depend on logging; this only exists so that a
// leaked handle or a spurious deadlock can be traced after the fact.
//
// The logger is package-scoped rather than threaded through every
// constructor because logging here is infrastructure, not a behavioral
// input - every component shares one sink, same as a process shares one
// stderr.
package ctklog

import (
	"context"
	"log/slog"
	"sync"
)

var global struct {
	sync.RWMutex
	logger *slog.Logger
}

// Set installs the logger every go-ctk component will use from this point
// forward. A nil logger restores the default (slog.Default()).
func Set(logger *slog.Logger) {
	global.Lock()
	defer global.Unlock()
	global.logger = logger
}

func get() *slog.Logger {
	global.RLock()
	defer global.RUnlock()
	if global.logger != nil {
		return global.logger
	}
	return slog.Default()
}

// Debug logs a lifecycle event: component name, op, and structured attrs.
func Debug(component, op string, args ...any) {
	get().Debug(op, append([]any{"component", component}, args...)...)
}

// Error logs a failure: component name, op, the error, and structured attrs.
func Error(component, op string, err error, args ...any) {
	get().With("component", component).Error(op, append([]any{"err", err}, args...)...)
}

// ErrorContext is the context-aware counterpart of Error, for call sites
// that already carry a context.Context (e.g. timed waits).
func ErrorContext(ctx context.Context, component, op string, err error, args ...any) {
	get().With("component", component).ErrorContext(ctx, op, append([]any{"err", err}, args...)...)
}
