//go:build !windows

package fileaio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirtoolchain/sircc/internal/fileaio"
	"github.com/sirtoolchain/sircc/internal/zabi"
)

func TestCapabilityRegistersAndOpens(t *testing.T) {
	root := t.TempDir()
	reg := zabi.NewRegistry()
	tbl := zabi.NewTable()
	reg.Register("file", "aio@v1", fileaio.Opener(root))

	h, err := reg.Open(tbl, "file", "aio@v1")
	require.NoError(t, err)
	assert.True(t, tbl.Has(h))

	_, _, flags, ok := tbl.Lookup(h)
	require.True(t, ok)
	assert.NotZero(t, flags&zabi.Writable)

	reg.Close(tbl, h)
	assert.False(t, tbl.Has(h))
}
