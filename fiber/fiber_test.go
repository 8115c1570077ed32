package fiber

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dijkstracula/go-ctk/ctkerr"
)

func TestEstablishMainTwiceOnSameThreadFails(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		main, err := EstablishMain()
		assert.NoError(t, err)
		assert.True(t, main.IsCurrent())

		_, err = EstablishMain()
		assert.True(t, ctkerr.Is(err, ctkerr.Busy))
	}()
	<-done
}

func TestCreateWithoutMainFails(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := Create(func(any) {}, nil)
		assert.True(t, ctkerr.Is(err, ctkerr.NotStarted))
	}()
	<-done
}

func TestResumeRunsEntryAndReturnsToCaller(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		main, err := EstablishMain()
		assert.NoError(t, err)

		var order []string
		f, err := Create(func(any) {
			order = append(order, "fiber")
		}, nil)
		assert.NoError(t, err)

		order = append(order, "before")
		assert.NoError(t, f.Resume())
		order = append(order, "after")

		assert.Equal(t, []string{"before", "fiber", "after"}, order)
		assert.True(t, f.IsFinished())
		assert.True(t, main.IsCurrent())
		assert.NoError(t, f.Dispose())
	}()
	<-done
}

func TestYieldToTransfersBackAndForth(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		main, err := EstablishMain()
		assert.NoError(t, err)

		var order []string
		var f *Fiber
		f, err = Create(func(any) {
			order = append(order, "a")
			assert.NoError(t, main.YieldTo())
			order = append(order, "c")
		}, nil)
		assert.NoError(t, err)

		order = append(order, "start")
		assert.NoError(t, f.Resume())
		order = append(order, "b")
		assert.NoError(t, f.Resume())

		assert.Equal(t, []string{"start", "a", "b", "c"}, order)
		assert.True(t, f.IsFinished())
		assert.NoError(t, f.Dispose())
	}()
	<-done
}

func TestDisposeCurrentFiberFails(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		main, err := EstablishMain()
		assert.NoError(t, err)
		err = main.Dispose()
		assert.True(t, ctkerr.Is(err, ctkerr.InvalidArgument))
	}()
	<-done
}

func TestDisposeNeverResumedFiberSucceeds(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := EstablishMain()
		assert.NoError(t, err)

		f, err := Create(func(any) {}, nil)
		assert.NoError(t, err)
		assert.NoError(t, f.Dispose())
	}()
	<-done
}

func TestResumeFinishedFiberFails(t *testing.T) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := EstablishMain()
		assert.NoError(t, err)

		f, err := Create(func(any) {}, nil)
		assert.NoError(t, err)
		assert.NoError(t, f.Resume())

		err = f.Resume()
		assert.True(t, ctkerr.Is(err, ctkerr.Finished))
	}()
	<-done
}

func TestResumeFromWrongOSThreadRejected(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	fiberCh := make(chan *Fiber, 1)
	go func() {
		defer wg.Done()
		_, err := EstablishMain()
		assert.NoError(t, err)
		f, err := Create(func(any) {}, nil)
		assert.NoError(t, err)
		fiberCh <- f
	}()
	wg.Wait()
	f := <-fiberCh

	var otherWg sync.WaitGroup
	otherWg.Add(1)
	go func() {
		defer otherWg.Done()
		err := f.Resume()
		assert.True(t, ctkerr.Is(err, ctkerr.InvalidArgument))
	}()
	otherWg.Wait()
}
