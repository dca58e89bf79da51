package smb1d

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// workItem is one (session, packet) pair waiting for a worker (spec.md §4.8
// "Worker pool", §5 "Scheduling").
type workItem struct {
	session *Session
	packet  *Packet
}

// WorkerPool is the shared, bounded pool of goroutines that run the
// dispatcher. Every accepted session's reader loop feeds it. The
// "max packets per run" yielding rule (spec.md §4.8) is enforced by the
// session's own read loop (see acceptor.go), not here: this pool only
// guarantees that a submitted item eventually runs on some worker.
type WorkerPool struct {
	items    chan workItem
	wg       sync.WaitGroup
	log      *logrus.Entry
	dispatch func(ctx context.Context, session *Session, pkt *Packet)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWorkerPool starts numWorkers goroutines pulling from a shared, bounded
// queue. dispatch runs the actual request handling for one packet.
func NewWorkerPool(numWorkers, queueDepth int, log *logrus.Entry, dispatch func(ctx context.Context, session *Session, pkt *Packet)) *WorkerPool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{
		items:    make(chan workItem, queueDepth),
		log:      log,
		dispatch: dispatch,
		ctx:      ctx,
		cancel:   cancel,
	}
	for i := 0; i < numWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker()
	}
	return p
}

func (p *WorkerPool) runWorker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case item, ok := <-p.items:
			if !ok {
				return
			}
			p.runOne(item.session, item.packet)
		}
	}
}

func (p *WorkerPool) runOne(session *Session, pkt *Packet) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Error("dispatcher panicked; session preserved")
		}
	}()
	p.dispatch(p.ctx, session, pkt)
}

// Submit enqueues one (session, packet) work item. Blocks if the shared
// queue is full, providing natural backpressure on session reader loops.
func (p *WorkerPool) Submit(session *Session, pkt *Packet) {
	select {
	case p.items <- workItem{session: session, packet: pkt}:
	case <-p.ctx.Done():
	}
}

// Close stops accepting new work and waits for in-flight dispatches to
// finish.
func (p *WorkerPool) Close() {
	p.cancel()
	close(p.items)
	p.wg.Wait()
}
