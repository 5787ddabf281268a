// affinity_linux.go - CPU pinning via sched_setaffinity(2)

//go:build linux

package numatopo

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// PinCurrentThread pins the calling OS thread to a single hardware thread.
// Callers must have already called runtime.LockOSThread — pinning a
// goroutine that can migrate to another OS thread is meaningless.
//
//go:norace
//go:nocheckptr
func PinCurrentThread(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("numatopo: sched_setaffinity cpu %d: %w", cpu, err)
	}
	return nil
}
