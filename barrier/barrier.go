// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: barrier.go — reusable cyclic barrier
//
// Purpose:
//   - Synchronizes the coordinator and every enclave's application thread
//     at the start of the timed run: each of them crosses it once before
//     the measurement window opens.
//   - Unlike sync.WaitGroup, this barrier can be crossed more than once —
//     the crossing count resets itself once the last party arrives.
// ─────────────────────────────────────────────────────────────────────────────

package barrier

import "sync"

// Barrier blocks n parties until all n have called Cross, then releases
// them together and resets for the next round.
type Barrier struct {
	mu       sync.Mutex
	cond     *sync.Cond
	parties  int
	crossing int
}

// New returns a Barrier that releases once n parties have crossed it.
func New(n int) *Barrier {
	b := &Barrier{parties: n}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Cross blocks the calling goroutine until every party has called Cross,
// then returns. Safe to call repeatedly from the same goroutines across
// multiple rounds.
func (b *Barrier) Cross() {
	b.mu.Lock()
	b.crossing++
	if b.crossing < b.parties {
		b.cond.Wait()
	} else {
		b.cond.Broadcast()
		b.crossing = 0
	}
	b.mu.Unlock()
}
