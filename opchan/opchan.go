// ============================================================================
// SPSC OP CHANNEL
// ============================================================================
//
// Carries the record of one successful data-layer mutation from an
// enclave's application thread (the producer) to that same enclave's
// helper thread (the consumer), so the helper can fold the change into
// its private index without ever touching the global chain itself.
//
// This is ring24/ring.go generalized from a fixed 24-byte byte payload
// to the (key, node) pair the original's opbuffer circular array
// carries (enclave.h's op_t): a Node pointer, or nil to mean "this was
// a remove". Same sequence-number availability protocol, same cache
// line isolation between producer and consumer cursors, same strict
// single-producer/single-consumer discipline.
package opchan

import (
	"sync/atomic"

	"hosk/datalayer"
)

// Op is one recorded data-layer mutation. A nil Node means key was
// removed; otherwise Node is the live node the mutation produced.
type Op struct {
	Key  uint64
	Node *datalayer.Node
}

type slot struct {
	val Op
	seq uint64
}

// Ring is a fixed-capacity SPSC queue of Op records, one per enclave,
// linking that enclave's application thread to its helper thread.
type Ring struct {
	_    [64]byte
	head uint64

	_    [56]byte
	tail uint64

	_ [56]byte

	mask uint64
	step uint64
	buf  []slot
}

// New creates a ring with the given power-of-two capacity.
func New(size int) *Ring {
	if size <= 0 || size&(size-1) != 0 {
		panic("opchan: size must be >0 and a power of two")
	}
	r := &Ring{
		mask: uint64(size - 1),
		step: uint64(size),
		buf:  make([]slot, size),
	}
	for i := range r.buf {
		r.buf[i].seq = uint64(i)
	}
	return r
}

// Push records one op. Only the enclave's application thread may call
// this. Returns false without blocking if the ring is full; the
// worker loops retry until the push succeeds, so no record is dropped
// (ApplicationLoop gives up only once the run-wide stop flag is set).
//
//go:nosplit
//go:inline
//go:registerparams
func (r *Ring) Push(key uint64, node *datalayer.Node) bool {
	t := r.tail
	s := &r.buf[t&r.mask]

	if atomic.LoadUint64(&s.seq) != t {
		return false
	}

	s.val = Op{Key: key, Node: node}
	atomic.StoreUint64(&s.seq, t+1)
	r.tail = t + 1
	return true
}

// Pop removes the next available op, if any. Only the enclave's helper
// thread may call this.
//
//go:nosplit
//go:inline
//go:registerparams
func (r *Ring) Pop() (Op, bool) {
	h := r.head
	s := &r.buf[h&r.mask]

	if atomic.LoadUint64(&s.seq) != h+1 {
		return Op{}, false
	}

	op := s.val
	atomic.StoreUint64(&s.seq, h+r.step)
	r.head = h + 1
	return op, true
}
