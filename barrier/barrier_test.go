package barrier

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dijkstracula/go-ctk/ctkerr"
)

func TestZeroThresholdRejected(t *testing.T) {
	_, err := New(0, false)
	assert.True(t, ctkerr.Is(err, ctkerr.InvalidArgument))
}

func TestOneShotReleasesAllAtOnce(t *testing.T) {
	const n = 5
	b, err := New(n, false)
	assert.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			assert.NoError(t, b.Wait())
		}()
	}
	wg.Wait()
	assert.NoError(t, b.Destroy())
}

func TestOneShotNthPlusOneWaitReturnsBusy(t *testing.T) {
	b, err := New(1, false)
	assert.NoError(t, err)
	assert.NoError(t, b.Wait())
	err = b.Wait()
	assert.True(t, ctkerr.Is(err, ctkerr.Busy))
	assert.NoError(t, b.Destroy())
}

// TestCyclicBarrierMultipleRounds is scenario S2: 3 threads cycle through
// a barrier of threshold 3 five times, each round incrementing a shared
// counter that must land on exactly n*rounds at the end.
func TestCyclicBarrierMultipleRounds(t *testing.T) {
	const parties = 3
	const rounds = 5

	b, err := New(parties, true)
	assert.NoError(t, err)

	var counter int64
	var wg sync.WaitGroup
	wg.Add(parties)
	for i := 0; i < parties; i++ {
		go func() {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				atomic.AddInt64(&counter, 1)
				assert.NoError(t, b.Wait())
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(parties*rounds), atomic.LoadInt64(&counter))
	assert.NoError(t, b.Destroy())
}

func TestWaitWithDeadlineTimesOut(t *testing.T) {
	b, err := New(2, true)
	assert.NoError(t, err)
	err = b.WaitWithDeadline(time.Now().Add(20 * time.Millisecond))
	assert.True(t, ctkerr.Is(err, ctkerr.TimedOut))
	assert.NoError(t, b.Destroy())
}

func TestDestroyWakesWaitersWithInvalid(t *testing.T) {
	b, err := New(2, true)
	assert.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Wait()
	}()

	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, b.Destroy())

	err = <-errCh
	assert.True(t, ctkerr.Is(err, ctkerr.InvalidArgument))
}

func TestResetAdvancesGenerationForCyclicOnly(t *testing.T) {
	b, err := New(2, true)
	assert.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		errCh <- b.Wait()
	}()
	time.Sleep(20 * time.Millisecond)
	assert.NoError(t, b.Reset())
	assert.NoError(t, <-errCh)
	assert.NoError(t, b.Destroy())
}

func TestResetNoOpOnOneShot(t *testing.T) {
	b, err := New(1, false)
	assert.NoError(t, err)
	assert.NoError(t, b.Reset())
	assert.NoError(t, b.Wait())
	err = b.Wait()
	assert.True(t, ctkerr.Is(err, ctkerr.Busy))
}
