package smb1d

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Packet is an owned byte buffer plus the bookkeeping the pool, framer, and
// dispatcher need to share it safely (spec.md §3 "Packet").
type Packet struct {
	buf          []byte
	length       int // received/written length, excluding the 4-byte frame prefix accounting handled by caller
	sizeClass    int
	nonPooled    bool
	leaseDeadline time.Time
	associated   *Packet
	deferred     int

	queuedAsync         bool
	encryptionRequired bool
}

// Buf returns the full underlying buffer, framing prefix included.
func (p *Packet) Buf() []byte { return p.buf }

// Body returns the buffer from offset 4 onward (past the framing header).
func (p *Packet) Body() []byte { return p.buf[4:] }

// Length returns the recorded payload length (not including the frame prefix).
func (p *Packet) Length() int { return p.length }

// SetLength records how much of the buffer is meaningful.
func (p *Packet) SetLength(n int) { p.length = n }

// Associated returns the packet's linked response/request, if any.
func (p *Packet) Associated() *Packet { return p.associated }

// NonPooled reports whether this packet's buffer came from a fresh
// allocation rather than a size-class free-list.
func (p *Packet) NonPooled() bool { return p.nonPooled }

// sizeClasses are the pool's fixed buffer sizes, smallest to largest.
// Mirrors the common CIFS server default of 1K/4K/16K/64K buckets.
var sizeClasses = []int{1024, 4096, 16384, 65536}

// PacketPoolConfig configures the process-wide buffer pool (spec.md §4.1,
// §6 "packet-pool-max-size", "over-size-ceiling", "lease-ms", "allocate-wait-ms").
type PacketPoolConfig struct {
	// LargestPooledSize is the top of the size-class ladder; requests above
	// it but at or below OverSizeCeiling get a fresh non-pooled buffer.
	LargestPooledSize int

	// OverSizeCeiling is the hard cap; requests above it fail with
	// ErrOutOfPoolMemory.
	OverSizeCeiling int

	// LeaseDuration is how long a leased buffer may go unreleased before the
	// lease-expiry watcher logs it as a leak.
	LeaseDuration time.Duration

	// AllocateWait bounds how long allocate() waits for a free buffer in the
	// matching size class; if none is released in that time, a fresh buffer
	// of that class is allocated instead.
	AllocateWait time.Duration

	// FreeListCapacity bounds how many buffers each size class retains.
	FreeListCapacity int
}

// DefaultPacketPoolConfig matches spec.md §6's defaults.
func DefaultPacketPoolConfig() PacketPoolConfig {
	return PacketPoolConfig{
		LargestPooledSize: 65536,
		OverSizeCeiling:   128 * 1024,
		LeaseDuration:     5 * time.Second,
		AllocateWait:      250 * time.Millisecond,
		FreeListCapacity:  64,
	}
}

type freeList struct {
	mu   sync.Mutex
	cond *sync.Cond
	bufs [][]byte
}

// PacketPool is the process-wide, size-classed byte-buffer pool (spec.md
// §4.1, §9 "Global state"). One instance is created at server startup and
// shared by every session's framer.
type PacketPool struct {
	cfg    PacketPoolConfig
	lists  map[int]*freeList

	leaseMu sync.Mutex
	leased  map[*Packet]time.Time

	log *logrus.Entry

	stopWatcher chan struct{}
	watcherDone chan struct{}
}

// NewPacketPool builds a pool with one free-list per entry in sizeClasses
// that is <= cfg.LargestPooledSize, and starts the lease-expiry watcher.
func NewPacketPool(cfg PacketPoolConfig, log *logrus.Entry) *PacketPool {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	p := &PacketPool{
		cfg:         cfg,
		lists:       make(map[int]*freeList),
		leased:      make(map[*Packet]time.Time),
		log:         log,
		stopWatcher: make(chan struct{}),
		watcherDone: make(chan struct{}),
	}
	for _, sz := range sizeClasses {
		if sz > cfg.LargestPooledSize {
			continue
		}
		fl := &freeList{}
		fl.cond = sync.NewCond(&fl.mu)
		p.lists[sz] = fl
	}
	go p.watchLeases()
	return p
}

// classFor returns the smallest size class that fits size, or 0 if none does.
func (p *PacketPool) classFor(size int) int {
	for _, sz := range sizeClasses {
		if sz > p.cfg.LargestPooledSize {
			break
		}
		if size <= sz {
			return sz
		}
	}
	return 0
}

// Allocate implements spec.md §4.1's allocate(size) contract.
func (p *PacketPool) Allocate(size int) (*Packet, error) {
	if class := p.classFor(size); class != 0 {
		buf := p.takeFromFreeList(class)
		pkt := &Packet{buf: buf, sizeClass: class, leaseDeadline: time.Now().Add(p.cfg.LeaseDuration)}
		p.registerLease(pkt)
		return pkt, nil
	}
	if size <= p.cfg.OverSizeCeiling {
		return &Packet{buf: make([]byte, size), nonPooled: true}, nil
	}
	return nil, ErrOutOfPoolMemory
}

func (p *PacketPool) takeFromFreeList(class int) []byte {
	fl := p.lists[class]
	fl.mu.Lock()
	deadline := time.Now().Add(p.cfg.AllocateWait)
	for len(fl.bufs) == 0 {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		timer := time.AfterFunc(remaining, fl.cond.Broadcast)
		fl.cond.Wait()
		timer.Stop()
	}
	var buf []byte
	if n := len(fl.bufs); n > 0 {
		buf = fl.bufs[n-1]
		fl.bufs = fl.bufs[:n-1]
	}
	fl.mu.Unlock()
	if buf == nil {
		buf = make([]byte, class)
	}
	return buf
}

func (p *PacketPool) registerLease(pkt *Packet) {
	p.leaseMu.Lock()
	p.leased[pkt] = pkt.leaseDeadline
	p.leaseMu.Unlock()
}

// AllocateWithHeader implements spec.md §4.1 "Header-copy allocate": builds
// a response packet of size, copies copyBytes from req's buffer at offset
// 4, and links it as req's associated packet.
func (p *PacketPool) AllocateWithHeader(size int, req *Packet, copyBytes int) (*Packet, error) {
	if copyBytes == 0 {
		copyBytes = headerSize
	}
	resp, err := p.Allocate(size)
	if err != nil {
		return nil, err
	}
	n := copy(resp.Body(), req.Body()[:min(copyBytes, len(req.Body()))])
	resp.SetLength(n)
	req.associated = resp
	return resp, nil
}

// Release implements spec.md §4.1's release(packet) contract: unregisters
// the lease, returns pooled buffers to their free-list (bounded by
// FreeListCapacity; excess buffers are simply dropped), lets non-pooled
// buffers drop, and recursively releases any associated packet.
func (p *PacketPool) Release(pkt *Packet) {
	if pkt == nil {
		return
	}
	p.leaseMu.Lock()
	delete(p.leased, pkt)
	p.leaseMu.Unlock()

	if assoc := pkt.associated; assoc != nil {
		pkt.associated = nil
		p.Release(assoc)
	}

	if pkt.nonPooled || pkt.sizeClass == 0 {
		return
	}
	fl := p.lists[pkt.sizeClass]
	if fl == nil {
		return
	}
	fl.mu.Lock()
	if len(fl.bufs) < p.cfg.FreeListCapacity {
		fl.bufs = append(fl.bufs, pkt.buf)
	}
	fl.cond.Signal()
	fl.mu.Unlock()
}

// watchLeases is the leak-alarm loop from spec.md §4.1: every 5s it walks
// the leased-packet table and logs (never reclaims) expired leases.
func (p *PacketPool) watchLeases() {
	defer close(p.watcherDone)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopWatcher:
			return
		case now := <-ticker.C:
			p.leaseMu.Lock()
			for pkt, deadline := range p.leased {
				if now.After(deadline) {
					p.log.WithFields(logrus.Fields{
						"sizeClass": pkt.sizeClass,
						"deadline":  deadline,
					}).Warn("packet lease expired without release")
				}
			}
			p.leaseMu.Unlock()
		}
	}
}

// Close stops the lease-expiry watcher. Safe to call once at server shutdown.
func (p *PacketPool) Close() {
	close(p.stopWatcher)
	<-p.watcherDone
}
