package arena

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArenaBumpAllocation(t *testing.T) {
	a := New(WithChunkSize(16))

	first := a.Alloc(10)
	second := a.Alloc(4)
	require.Len(t, first, 10)
	require.Len(t, second, 4)

	// appending to a handed-out slice must not overwrite its neighbour
	assert.Equal(t, 10, cap(first))

	third := a.Alloc(8) // does not fit the first chunk
	require.Len(t, third, 8)

	stats := a.Stats()
	assert.Equal(t, uint64(3), stats.Allocs)
	assert.Equal(t, 22, stats.InUse)
	assert.Equal(t, 32, stats.Capacity)
}

func TestArenaResetReusesChunks(t *testing.T) {
	a := New(WithChunkSize(32))
	for i := 0; i < 5; i++ {
		a.Alloc(20)
	}
	a.Alloc(100) // oversized
	before := a.Stats()
	assert.Equal(t, 5*32+100, before.Capacity)

	a.Reset()
	after := a.Stats()
	assert.Equal(t, 0, after.InUse)
	assert.Equal(t, uint64(0), after.Allocs)
	assert.Equal(t, 5*32, after.Capacity, "oversized chunk should be dropped")
	assert.Equal(t, uint64(1), after.Resets)

	// the same workload fits in the retained chunks
	for i := 0; i < 5; i++ {
		a.Alloc(20)
	}
	assert.Equal(t, 5*32, a.Stats().Capacity)
}

func TestArenaPoisonOnReset(t *testing.T) {
	a := New(WithChunkSize(8), WithPoison(true))
	b := a.Alloc(4)
	copy(b, "abcd")
	a.Reset()
	assert.Equal(t, []byte{poisonByte, poisonByte, poisonByte, poisonByte}, b)
}

func TestArenaZeroAlloc(t *testing.T) {
	a := New()
	assert.Nil(t, a.Alloc(0))
	assert.Equal(t, uint64(0), a.Stats().Allocs)
}

func TestHeapAccounting(t *testing.T) {
	h := NewHeap("test")
	h.Alloc(10)
	h.Track(6)
	assert.Equal(t, 16, h.Stats().InUse)
	h.Release(10)
	assert.Equal(t, 6, h.Stats().InUse)
	assert.Equal(t, 16, h.Stats().HighWater)
	h.Release(100)
	assert.Equal(t, 0, h.Stats().InUse)
}
