package ctklog

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dijkstracula/go-ctk/ctkerr"
)

func TestDebugUsesConfiguredLogger(t *testing.T) {
	var buf bytes.Buffer
	Set(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer Set(nil)

	Debug("mutex", "Mutex.Lock", "owner", "g1")
	assert.True(t, strings.Contains(buf.String(), "Mutex.Lock"))
	assert.True(t, strings.Contains(buf.String(), "owner=g1"))
}

func TestErrorLogsWrappedCause(t *testing.T) {
	var buf bytes.Buffer
	Set(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer Set(nil)

	Error("pool", "Pool.Destroy", ctkerr.InternalErr("Pool.Destroy", nil))
	assert.True(t, strings.Contains(buf.String(), "Pool.Destroy"))
}

func TestErrorContextPropagatesFields(t *testing.T) {
	var buf bytes.Buffer
	Set(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer Set(nil)

	ErrorContext(context.Background(), "barrier", "Barrier.Wait", ctkerr.TimedOutErr("Barrier.Wait"))
	assert.True(t, strings.Contains(buf.String(), "Barrier.Wait"))
}

func TestSetNilRestoresDefault(t *testing.T) {
	Set(nil)
	assert.NotPanics(t, func() {
		Debug("thread", "Thread.Start")
	})
}
