// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: rng.go — per-enclave reentrant random generator
//
// Purpose:
//   - Every enclave's application thread and helper thread each carry their
//     own RNG state so population and mixed-workload key selection never
//     contend on a shared generator.
//   - A single run-wide master seed (CLI-selected or time-based) is mixed
//     through SHA3 to derive a distinct, well-distributed per-thread seed,
//     so nearby thread indices don't produce correlated key streams.
//
// Notes:
//   - The per-thread generator itself is a fast xorshift64*, not a
//     cryptographic primitive — SHA3 is only used once, at seed derivation
//     time, to spread the master seed across threads.
// ─────────────────────────────────────────────────────────────────────────────

package rng

import (
	"encoding/binary"
	"time"

	"golang.org/x/crypto/sha3"
)

// MasterSeed returns the run-wide seed. A zero argument means time-based,
// matching the CLI's "0=time-based" convention.
func MasterSeed(requested int64) uint64 {
	if requested != 0 {
		return uint64(requested)
	}
	return uint64(time.Now().UnixNano())
}

// DeriveSeed mixes the master seed with a thread index through SHA3-256,
// producing an independent 64-bit seed per enclave thread.
func DeriveSeed(master uint64, threadIdx int) uint64 {
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], master)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(threadIdx))
	sum := sha3.Sum256(buf[:])
	return binary.LittleEndian.Uint64(sum[0:8])
}

// State is a reentrant xorshift64* generator. Each enclave thread owns one;
// it is never shared, so it carries no synchronization of its own.
type State struct {
	x uint64
}

// New returns a State seeded with s. A zero seed is nudged to a nonzero
// value since xorshift cannot escape the all-zero state.
func New(s uint64) *State {
	if s == 0 {
		s = 0x9e3779b97f4a7c15
	}
	return &State{x: s}
}

// Next advances the generator and returns the next 64-bit value.
//
//go:nosplit
//go:inline
//go:registerparams
func (s *State) Next() uint64 {
	x := s.x
	x ^= x << 13
	x ^= x >> 7
	x ^= x << 17
	s.x = x
	return x * 0x2545F4914F6CDD1D
}

// Range returns a pseudo-random value in [1, r], matching the original
// rand_range_re semantics: callers that need a zero-based key subtract 1.
//
//go:nosplit
//go:inline
//go:registerparams
func (s *State) Range(r int64) int64 {
	if r <= 0 {
		return 1
	}
	return int64(s.Next()%uint64(r)) + 1
}

// Percent reports whether a draw in [0,100) fell below threshold,
// matching the original's update-probability check
// (rand_range_re(seed,100) - 1 < update).
//
//go:nosplit
//go:inline
//go:registerparams
func (s *State) Percent(threshold int) bool {
	return s.Range(100)-1 < int64(threshold)
}
