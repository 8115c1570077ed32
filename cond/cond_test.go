package cond

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dijkstracula/go-ctk/ctkerr"
	"github.com/dijkstracula/go-ctk/mutex"
)

func TestWaitReacquiresMutexOnSignal(t *testing.T) {
	m, err := mutex.New(mutex.Plain)
	assert.NoError(t, err)
	c := New()

	ready := make(chan struct{})
	done := make(chan struct{})
	go func() {
		assert.NoError(t, m.Lock())
		close(ready)
		assert.NoError(t, c.Wait(m))
		assert.True(t, m.IsLocked(), "mutex must be held on return from Wait")
		assert.NoError(t, m.Unlock())
		close(done)
	}()

	<-ready
	// Give the waiter a chance to park before we signal.
	for c.WaiterCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	assert.NoError(t, m.Lock())
	c.Signal()
	assert.NoError(t, m.Unlock())
	<-done
}

func TestWaitWithDeadlineTimesOut(t *testing.T) {
	m, err := mutex.New(mutex.Plain)
	assert.NoError(t, err)
	c := New()

	assert.NoError(t, m.Lock())
	err = c.WaitWithDeadline(m, time.Now().Add(20*time.Millisecond))
	assert.True(t, ctkerr.Is(err, ctkerr.TimedOut))
	assert.True(t, m.IsLocked(), "mutex must be held on timeout return")
	assert.NoError(t, m.Unlock())
}

func TestWaiterCountTracksEveryExitPath(t *testing.T) {
	m, err := mutex.New(mutex.Plain)
	assert.NoError(t, err)
	c := New()

	assert.NoError(t, m.Lock())
	err = c.WaitWithDeadline(m, time.Now().Add(10*time.Millisecond))
	assert.True(t, ctkerr.Is(err, ctkerr.TimedOut))
	assert.Equal(t, int64(0), c.WaiterCount())
	assert.NoError(t, m.Unlock())
}

func TestBroadcastWakesAllWaiters(t *testing.T) {
	m, err := mutex.New(mutex.Plain)
	assert.NoError(t, err)
	c := New()

	const n = 8
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Lock())
			assert.NoError(t, c.Wait(m))
			assert.NoError(t, m.Unlock())
		}()
	}

	for int(c.WaiterCount()) < n {
		time.Sleep(time.Millisecond)
	}
	c.Broadcast()
	wg.Wait()
	assert.Equal(t, int64(0), c.WaiterCount())
}

func TestSignalWithNoWaitersIsNoOp(t *testing.T) {
	c := New()
	c.Signal()
	c.Broadcast()
	assert.Equal(t, int64(0), c.WaiterCount())
}

func TestWaitOnUninitializedReturnsInvalid(t *testing.T) {
	var c Cond
	m, err := mutex.New(mutex.Plain)
	assert.NoError(t, err)
	assert.NoError(t, m.Lock())
	err = c.Wait(m)
	assert.True(t, ctkerr.Is(err, ctkerr.InvalidArgument))
	assert.NoError(t, m.Unlock())
}

// producerConsumer exercises the scenario S3 in the original spec: one
// producer, one consumer, a bounded buffer of capacity 1 guarded by a
// mutex plus two condition variables (not-empty, not-full).
func TestProducerConsumer(t *testing.T) {
	m, err := mutex.New(mutex.Plain)
	assert.NoError(t, err)
	notEmpty := New()
	notFull := New()

	var buf []int
	const capacity = 1
	const items = 50

	var wg sync.WaitGroup
	wg.Add(2)

	go func() { // producer
		defer wg.Done()
		for i := 0; i < items; i++ {
			assert.NoError(t, m.Lock())
			for len(buf) == capacity {
				assert.NoError(t, notFull.Wait(m))
			}
			buf = append(buf, i)
			notEmpty.Signal()
			assert.NoError(t, m.Unlock())
		}
	}()

	received := make([]int, 0, items)
	go func() { // consumer
		defer wg.Done()
		for len(received) < items {
			assert.NoError(t, m.Lock())
			for len(buf) == 0 {
				assert.NoError(t, notEmpty.Wait(m))
			}
			v := buf[0]
			buf = buf[1:]
			notFull.Signal()
			assert.NoError(t, m.Unlock())
			received = append(received, v)
		}
	}()

	wg.Wait()
	assert.Len(t, received, items)
	for i, v := range received {
		assert.Equal(t, i, v)
	}
}
