// Package workerpool provides the two bounded concurrency pools
// spec.md §5 calls for: an I/O pool for network/disk operations and a
// CPU pool for parsing, packing, and plan-building work, so that a wide
// directory or a burst of in-flight archives cannot fan out an
// unbounded number of goroutines.
package workerpool

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

func ioSize() int64 {
	n := int64(2 * runtime.NumCPU())
	if n < 4 {
		n = 4
	}
	return n
}

// IO bounds concurrent network/disk operations: archive extraction,
// large-file writes.
var IO = semaphore.NewWeighted(ioSize())

// CPU bounds concurrent parsing/packing/plan-building work: the
// directory walk's fan-out, archive packing, tree parsing.
var CPU = semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0)))

// AcquireIO blocks until a slot in the I/O pool is free or ctx is done.
func AcquireIO(ctx context.Context) error { return IO.Acquire(ctx, 1) }

// ReleaseIO frees a slot acquired with AcquireIO.
func ReleaseIO() { IO.Release(1) }

// AcquireCPU blocks until a slot in the CPU pool is free or ctx is done.
func AcquireCPU(ctx context.Context) error { return CPU.Acquire(ctx, 1) }

// ReleaseCPU frees a slot acquired with AcquireCPU.
func ReleaseCPU() { CPU.Release(1) }
