package arena_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirtoolchain/sircc/internal/arena"
)

func TestAllocStringRoundTrip(t *testing.T) {
	a := arena.New()
	s := a.AllocString("hello.world")
	assert.Equal(t, "hello.world", s)
}

func TestAllocGrowsAcrossBlocks(t *testing.T) {
	a := arena.New()
	// Force several block growths with allocations bigger than the
	// current block.
	var last []byte
	for i := 0; i < 8; i++ {
		b := a.Alloc(8 * 1024)
		require.Len(t, b, 8*1024)
		for j := range b {
			b[j] = byte(i)
		}
		last = b
	}
	assert.Equal(t, byte(7), last[0])
	assert.Greater(t, a.Bytes(), uint64(0))
}

func TestFreeThenAllocPanics(t *testing.T) {
	a := arena.New()
	a.Free()
	assert.Panics(t, func() { a.Alloc(1) })
}

func TestAllocZeroReturnsNil(t *testing.T) {
	a := arena.New()
	assert.Nil(t, a.Alloc(0))
}
