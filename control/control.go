// control.go — Global stop signaling shared by every enclave's threads
// ============================================================================
// RUN CONTROL
// ============================================================================
//
// Control provides the stop flag every application and helper thread polls.
//
// Architecture overview:
//   - One run-wide Flags shared by every enclave's application thread, so a
//     run stops all application threads together; each enclave also holds
//     its own Flags for its helper thread (enclave.HelperControl)
//   - Zero-allocation flag access for hot-path polling
//   - Lock-free atomic operations; the coordinator learns a loop has
//     actually unwound by joining its thread handle, not by polling here
//
// Threading model:
//   - the coordinator calls Shutdown() then joins every enclave's
//     application and helper thread handles
//   - application_loop polls the run-wide Stopped() once per iteration and
//     while waiting on a full op channel; helper_loop polls its enclave's
//     own flag once per iteration

package control

import "sync/atomic"

// Flags is the per-run coordination state. One instance is constructed by
// the coordinator and threaded through every enclave.
type Flags struct {
	stop uint32
}

// New returns a zeroed Flags ready for a fresh run.
func New() *Flags {
	return &Flags{}
}

// ============================================================================
// HOT-PATH POLL
// ============================================================================

// Stopped reports whether Shutdown has been called. Application and helper
// loops poll this once per iteration; the application loop also polls it
// while it waits for room on a full op channel.
//
//go:norace
//go:nocheckptr
//go:nosplit
//go:inline
//go:registerparams
func (f *Flags) Stopped() bool {
	return atomic.LoadUint32(&f.stop) != 0
}

// ============================================================================
// SHUTDOWN
// ============================================================================

// Shutdown requests that every enclave stop at its next poll of Stopped.
// Idempotent.
//
//go:norace
//go:nocheckptr
//go:nosplit
//go:inline
//go:registerparams
func (f *Flags) Shutdown() {
	atomic.StoreUint32(&f.stop, 1)
}
