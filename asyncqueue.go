package smb1d

import "sync"

// asyncQueue is a per-session FIFO of server-initiated packets (change
// notify, oplock break) drained between request/response cycles (spec.md
// §4.7). It is the only thread-safe mutation point on session state other
// than the worker currently dispatching on that session.
type asyncQueue struct {
	mu    sync.Mutex
	items []*Packet
}

func newAsyncQueue() *asyncQueue {
	return &asyncQueue{}
}

// Enqueue may be called from any goroutine (spec.md §5 "Shared resources" —
// push-producers must go through the thread-safe enqueue).
func (q *asyncQueue) Enqueue(pkt *Packet) {
	q.mu.Lock()
	q.items = append(q.items, pkt)
	q.mu.Unlock()
}

// Drain removes and returns every queued packet in FIFO order. Called by
// the session's own worker, never concurrently with itself.
func (q *asyncQueue) Drain() []*Packet {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

func (q *asyncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// flushAsync implements spec.md §4.7's ordering rule: drain and write every
// pending async packet. Callers invoke this between request/response
// cycles and after sending any direct response, never in the middle of one,
// so an async push can never land between a request's header and its reply.
func flushAsync(session *Session, framer *Framer, pool *PacketPool) error {
	for _, pkt := range session.async.Drain() {
		if err := framer.WritePacket(pkt, pkt.Length()); err != nil {
			pool.Release(pkt)
			return err
		}
		if err := framer.Flush(); err != nil {
			pool.Release(pkt)
			return err
		}
		pool.Release(pkt)
	}
	return nil
}
