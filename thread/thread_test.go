package thread

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dijkstracula/go-ctk/ctkerr"
)

func TestJoinReturnsValueAndTransitionsState(t *testing.T) {
	tr := New[int, int]()
	assert.Equal(t, Fresh, tr.State())

	assert.NoError(t, tr.Start(func(a int) int { return a * 2 }, 21))

	res, err := tr.Join()
	assert.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, Joined, tr.State())
	assert.False(t, tr.StartedAt().IsZero())
	assert.False(t, tr.FinishedAt().IsZero())

	assert.NoError(t, tr.Dispose())
	assert.Equal(t, Disposed, tr.State())
}

func TestSecondJoinFails(t *testing.T) {
	tr := New[int, int]()
	assert.NoError(t, tr.Start(func(a int) int { return a }, 1))
	_, err := tr.Join()
	assert.NoError(t, err)

	_, err = tr.Join()
	assert.True(t, ctkerr.Is(err, ctkerr.Detached))
}

func TestDetachThenFinishIsDisposableAndUnjoinable(t *testing.T) {
	tr := New[int, int]()
	started := make(chan struct{})
	release := make(chan struct{})
	assert.NoError(t, tr.Start(func(a int) int {
		close(started)
		<-release
		return a
	}, 7))

	<-started
	assert.NoError(t, tr.Detach())
	close(release)

	_, err := tr.Join()
	assert.True(t, ctkerr.Is(err, ctkerr.Detached))

	for tr.FinishedAt().IsZero() {
		time.Sleep(time.Millisecond)
	}
	assert.NoError(t, tr.Dispose())
}

func TestDoubleDetachFails(t *testing.T) {
	tr := New[int, int]()
	assert.NoError(t, tr.Start(func(a int) int { return a }, 1))
	assert.NoError(t, tr.Detach())
	err := tr.Detach()
	assert.True(t, ctkerr.Is(err, ctkerr.Detached))
}

func TestJoinBeforeStartFails(t *testing.T) {
	tr := New[int, int]()
	_, err := tr.Join()
	assert.True(t, ctkerr.Is(err, ctkerr.NotStarted))
}

func TestDetachBeforeStartFails(t *testing.T) {
	tr := New[int, int]()
	err := tr.Detach()
	assert.True(t, ctkerr.Is(err, ctkerr.NotStarted))
}

func TestStartTwiceFails(t *testing.T) {
	tr := New[int, int]()
	assert.NoError(t, tr.Start(func(a int) int { return a }, 1))
	err := tr.Start(func(a int) int { return a }, 2)
	assert.True(t, ctkerr.Is(err, ctkerr.Busy))
	_, _ = tr.Join()
}

func TestDisposeBlocksUntilFinished(t *testing.T) {
	tr := New[int, int]()
	release := make(chan struct{})
	assert.NoError(t, tr.Start(func(a int) int {
		<-release
		return a
	}, 1))

	done := make(chan error, 1)
	go func() { done <- tr.Dispose() }()

	select {
	case <-done:
		t.Fatal("dispose returned before the thread finished")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	assert.NoError(t, <-done)
}

func TestDisposeIdempotent(t *testing.T) {
	tr := New[int, int]()
	assert.NoError(t, tr.Dispose())
	assert.NoError(t, tr.Dispose())
}

func TestCancelRequested(t *testing.T) {
	tr := New[int, int]()
	assert.False(t, tr.CancelRequested())
	tr.RequestCancel()
	assert.True(t, tr.CancelRequested())
}

func TestEqualityIsPointerIdentity(t *testing.T) {
	a := New[int, int]()
	b := New[int, int]()
	assert.True(t, a.Equal(a))
	assert.False(t, a.Equal(b))
}

func TestYieldAndSleepDoNotPanic(t *testing.T) {
	Yield()
	Sleep(time.Millisecond)
}
