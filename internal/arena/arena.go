// Package arena provides the two allocation regimes used by the interpreter:
// a bump-allocated Arena that is reset wholesale at the end of every
// execution attempt, and a long-lived Heap for values that must outlive an
// attempt (environment bindings, promoted results, trace entries).
//
// Language values never free themselves. Moving a value from one regime to
// the other is an explicit deep copy performed by the caller.
package arena

import (
	"fmt"
	"sync/atomic"
)

const DefaultChunkSize = 64 * 1024

// poisonByte is written over released arena memory when poisoning is on, so
// a value read after Reset shows up as garbage in tests instead of stale data.
const poisonByte = 0xDD

// Allocator is the storage source for language values.
type Allocator interface {
	// Alloc returns n bytes of writable storage owned by the allocator.
	Alloc(n int) []byte
	// Track records a fixed-size cell (a Result or function record)
	// allocated on behalf of this allocator.
	Track(size int)
	// Release tells the allocator that n bytes previously handed out are no
	// longer referenced. Arenas ignore it; they release in bulk.
	Release(n int)
	// Name identifies the allocator in logs.
	Name() string
}

// Stats is a snapshot of allocator accounting.
type Stats struct {
	Allocs    uint64 // allocations since the last reset
	InUse     int    // bytes currently handed out
	Capacity  int    // bytes of backing storage retained
	HighWater int    // largest InUse ever observed
	Resets    uint64
}

func (s Stats) String() string {
	return fmt.Sprintf("allocs=%d in_use=%d capacity=%d high_water=%d resets=%d",
		s.Allocs, s.InUse, s.Capacity, s.HighWater, s.Resets)
}

type chunk struct {
	buf []byte
	off int
}

// Arena is a bump allocator. It is not safe for concurrent use; each
// execution attempt owns exactly one.
type Arena struct {
	chunkSize int
	chunks    []*chunk
	current   int
	poison    bool

	allocs    uint64
	inUse     int
	highWater int
	resets    uint64
	id        uint64
}

var arenaIDs atomic.Uint64

type Option func(*Arena)

// WithChunkSize sets the size of each backing chunk.
func WithChunkSize(n int) Option {
	return func(a *Arena) {
		if n > 0 {
			a.chunkSize = n
		}
	}
}

// WithPoison makes Reset overwrite released memory.
func WithPoison(on bool) Option {
	return func(a *Arena) { a.poison = on }
}

func New(opts ...Option) *Arena {
	a := &Arena{chunkSize: DefaultChunkSize, id: arenaIDs.Add(1)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Arena) Name() string { return fmt.Sprintf("arena-%d", a.id) }

func (a *Arena) Alloc(n int) []byte {
	if n <= 0 {
		return nil
	}
	a.allocs++
	a.account(n)

	// Oversized requests get a dedicated chunk that is dropped on reset.
	if n > a.chunkSize {
		c := &chunk{buf: make([]byte, n), off: n}
		a.chunks = append(a.chunks, c)
		return c.buf[:n:n]
	}

	for a.current < len(a.chunks) {
		c := a.chunks[a.current]
		if len(c.buf) == a.chunkSize && len(c.buf)-c.off >= n {
			b := c.buf[c.off : c.off+n : c.off+n]
			c.off += n
			return b
		}
		a.current++
	}

	c := &chunk{buf: make([]byte, a.chunkSize)}
	a.chunks = append(a.chunks, c)
	a.current = len(a.chunks) - 1
	b := c.buf[:n:n]
	c.off = n
	return b
}

func (a *Arena) Track(size int) {
	a.allocs++
	a.account(size)
}

func (a *Arena) Release(int) {}

func (a *Arena) account(n int) {
	a.inUse += n
	if a.inUse > a.highWater {
		a.highWater = a.inUse
	}
}

// Reset releases every allocation at once. Standard-size chunks are kept for
// reuse by the next attempt; oversized chunks are dropped.
func (a *Arena) Reset() {
	kept := a.chunks[:0]
	for _, c := range a.chunks {
		if len(c.buf) != a.chunkSize {
			continue
		}
		if a.poison {
			for i := 0; i < c.off; i++ {
				c.buf[i] = poisonByte
			}
		}
		c.off = 0
		kept = append(kept, c)
	}
	for i := len(kept); i < len(a.chunks); i++ {
		a.chunks[i] = nil
	}
	a.chunks = kept
	a.current = 0
	a.allocs = 0
	a.inUse = 0
	a.resets++
}

func (a *Arena) Stats() Stats {
	capacity := 0
	for _, c := range a.chunks {
		capacity += len(c.buf)
	}
	return Stats{
		Allocs:    a.allocs,
		InUse:     a.inUse,
		Capacity:  capacity,
		HighWater: a.highWater,
		Resets:    a.resets,
	}
}
