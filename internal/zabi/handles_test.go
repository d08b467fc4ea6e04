package zabi_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirtoolchain/sircc/internal/zabi"
)

func TestAllocStartsAtThree(t *testing.T) {
	tbl := zabi.NewTable()
	h, err := tbl.Alloc(nil, nil, nil, zabi.Readable)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, h, 3)
}

func TestReleaseThenAllocReusesSlot(t *testing.T) {
	tbl := zabi.NewTable()
	h1, err := tbl.Alloc(nil, nil, "first", zabi.Readable)
	require.NoError(t, err)
	tbl.Release(h1)
	assert.False(t, tbl.Has(h1))

	h2, err := tbl.Alloc(nil, nil, "second", zabi.Writable)
	require.NoError(t, err)
	_, ctx, flags, ok := tbl.Lookup(h2)
	require.True(t, ok)
	assert.Equal(t, "second", ctx)
	assert.Equal(t, zabi.Writable, flags)
}

func TestLookupUnknownHandleFails(t *testing.T) {
	tbl := zabi.NewTable()
	_, _, _, ok := tbl.Lookup(42)
	assert.False(t, ok)
	assert.False(t, tbl.Has(2)) // reserved
}

func TestAllocFailsWhenFull(t *testing.T) {
	tbl := zabi.NewTable()
	var last error
	for i := 0; i < 300; i++ {
		_, err := tbl.Alloc(nil, nil, nil, 0)
		if err != nil {
			last = err
			break
		}
	}
	assert.Error(t, last)
}

func TestRegistryOpenAndClose(t *testing.T) {
	reg := zabi.NewRegistry()
	tbl := zabi.NewTable()
	closed := false
	reg.Register("file", "aio@v1", func() (zabi.ReadOps, zabi.PollOps, any, zabi.HFlag, func(), error) {
		return nil, nil, "ctx", zabi.Readable | zabi.Writable, func() { closed = true }, nil
	})

	h, err := reg.Open(tbl, "file", "aio@v1")
	require.NoError(t, err)
	assert.True(t, tbl.Has(h))

	id, ok := reg.InstanceID(h)
	require.True(t, ok)
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", id.String())

	reg.Close(tbl, h)
	assert.False(t, tbl.Has(h))
	assert.True(t, closed)
}

func TestRegistryOpenUnknownCapability(t *testing.T) {
	reg := zabi.NewRegistry()
	tbl := zabi.NewTable()
	_, err := reg.Open(tbl, "file", "nonexistent@v1")
	assert.Error(t, err)
}
