// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: pagepool.go — NUMA-local backing storage for per-enclave arenas
//
// Purpose:
//   - Gives each enclave's arena a chunk of memory outside the Go heap by
//     mmapping anonymous pages directly, in place of the original's
//     numa_alloc_local. The mapping is page-aligned and stable across the
//     process lifetime.
//   - No NUMA policy is applied: there is no mbind(2) call, so the kernel
//     places each page by its default policy when the page is first touched.
// ─────────────────────────────────────────────────────────────────────────────

package numatopo

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// AllocPages returns a zeroed, page-aligned byte slice of at least size
// bytes, backed by an anonymous mmap. It takes no NUMA node argument and
// binds the mapping to no node.
func AllocPages(size int) ([]byte, error) {
	pageSize := unix.Getpagesize()
	rounded := align(size, pageSize)
	b, err := unix.Mmap(-1, 0, rounded, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("numatopo: mmap %d bytes: %w", rounded, err)
	}
	return b[:size], nil
}

// FreePages releases a mapping obtained from AllocPages. The slice passed
// in must be the exact slice returned (not a sub-slice), since the
// underlying mmap's true length was rounded up to a page boundary.
func FreePages(b []byte) error {
	pageSize := unix.Getpagesize()
	rounded := align(len(b), pageSize)
	full := b[:rounded:rounded]
	return unix.Munmap(full)
}

func align(n, alignment int) int {
	return n + ((alignment - (n % alignment)) % alignment)
}
