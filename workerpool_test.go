package smb1d

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestWorkerPoolRunsSubmittedItems exercises the basic Submit/dispatch path:
// every submitted (session, packet) pair eventually reaches dispatch exactly
// once (workerpool.go's runWorker/runOne).
func TestWorkerPoolRunsSubmittedItems(t *testing.T) {
	var count int32
	var wg sync.WaitGroup
	wg.Add(10)

	pool := NewWorkerPool(4, 16, nil, func(ctx context.Context, session *Session, pkt *Packet) {
		atomic.AddInt32(&count, 1)
		wg.Done()
	})
	defer pool.Close()

	for i := 0; i < 10; i++ {
		pool.Submit(nil, nil)
	}

	waitOrTimeout(t, &wg, time.Second)
	require.EqualValues(t, 10, atomic.LoadInt32(&count))
}

// TestWorkerPoolRecoversPanickingDispatch confirms runOne's recover keeps the
// pool alive and other workers keep draining the queue after one dispatch
// call panics (workerpool.go's runOne logs "dispatcher panicked; session
// preserved").
func TestWorkerPoolRecoversPanickingDispatch(t *testing.T) {
	var ran int32
	var wg sync.WaitGroup
	wg.Add(5)

	pool := NewWorkerPool(2, 16, nil, func(ctx context.Context, session *Session, pkt *Packet) {
		defer wg.Done()
		if pkt == nil {
			panic("simulated dispatch failure")
		}
		atomic.AddInt32(&ran, 1)
	})
	defer pool.Close()

	pool.Submit(nil, nil) // panics, recovered
	for i := 0; i < 4; i++ {
		pool.Submit(nil, &Packet{})
	}

	waitOrTimeout(t, &wg, time.Second)
	require.EqualValues(t, 4, atomic.LoadInt32(&ran))
}

// TestWorkerPoolCloseWaitsForInFlightDispatch confirms Close does not return
// until an in-flight dispatch has finished (workerpool.go's Close: cancel
// then close(items) then Wait).
func TestWorkerPoolCloseWaitsForInFlightDispatch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	pool := NewWorkerPool(1, 4, nil, func(ctx context.Context, session *Session, pkt *Packet) {
		close(started)
		<-release
	})

	pool.Submit(nil, nil)
	<-started

	done := make(chan struct{})
	go func() {
		pool.Close()
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Close returned before the in-flight dispatch finished")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close did not return after the in-flight dispatch finished")
	}
}

func waitOrTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatal("timed out waiting for worker pool to drain")
	}
}
