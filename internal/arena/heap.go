package arena

import "sync"

// Heap is the long-lived allocator. Each allocation is an independent Go
// slice; Release only adjusts accounting so leaks show up in Stats.
type Heap struct {
	name string

	mu        sync.Mutex
	allocs    uint64
	inUse     int
	highWater int
}

func NewHeap(name string) *Heap {
	return &Heap{name: name}
}

func (h *Heap) Name() string { return h.name }

func (h *Heap) Alloc(n int) []byte {
	if n <= 0 {
		return nil
	}
	h.Track(n)
	return make([]byte, n)
}

func (h *Heap) Track(size int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.allocs++
	h.inUse += size
	if h.inUse > h.highWater {
		h.highWater = h.inUse
	}
}

func (h *Heap) Release(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.inUse -= n
	if h.inUse < 0 {
		h.inUse = 0
	}
}

func (h *Heap) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Allocs: h.allocs, InUse: h.inUse, HighWater: h.highWater}
}
