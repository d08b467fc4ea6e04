package fileaio_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirtoolchain/sircc/internal/fileaio"
)

func TestFrameRoundTrip(t *testing.T) {
	h := fileaio.Header{Op: fileaio.OpRead, RID: 7, Status: 1, PayloadLen: 0}
	payload := []byte("hello world")
	wire := fileaio.Encode(h, payload)

	got, gotPayload, consumed, ok, err := fileaio.Decode(wire)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, len(wire), consumed)
	assert.Equal(t, h.Op, got.Op)
	assert.Equal(t, h.RID, got.RID)
	assert.Equal(t, h.Status, got.Status)
	assert.Equal(t, payload, gotPayload)
}

func TestFrameDecodeIncompleteHeaderReturnsNotOK(t *testing.T) {
	_, _, _, ok, err := fileaio.Decode([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFrameDecodeIncompletePayloadReturnsNotOK(t *testing.T) {
	wire := fileaio.EncodeOK(fileaio.OpOpen, 1, []byte("0123456789"))
	truncated := wire[:len(wire)-3]

	_, _, _, ok, err := fileaio.Decode(truncated)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFrameDecodeRejectsBadMagic(t *testing.T) {
	wire := fileaio.EncodeOK(fileaio.OpOpen, 1, nil)
	wire[0] = 'X'

	_, _, _, _, err := fileaio.Decode(wire)
	assert.Error(t, err)
}

func TestFrameMultipleFramesInBuffer(t *testing.T) {
	a := fileaio.EncodeOK(fileaio.OpOpen, 1, []byte("a"))
	b := fileaio.EncodeError(fileaio.OpRead, 2, "nope")
	buf := append(append([]byte(nil), a...), b...)

	h1, p1, n1, ok, err := fileaio.Decode(buf)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(1), h1.RID)
	assert.Equal(t, []byte("a"), p1)

	h2, p2, _, ok, err := fileaio.Decode(buf[n1:])
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint32(2), h2.RID)
	assert.Equal(t, []byte("nope"), p2)
}

func TestEncodeDoneCarriesOriginalOpInPayloadHead(t *testing.T) {
	frame := fileaio.EncodeDone(fileaio.OpWrite, 9, true, []byte("ok"))
	h, payload, _, ok, err := fileaio.Decode(frame)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint16(fileaio.OpDone), h.Op)
	require.GreaterOrEqual(t, len(payload), 2)
	assert.Equal(t, uint16(fileaio.OpWrite), binary.LittleEndian.Uint16(payload[0:2]))
	assert.Equal(t, []byte("ok"), payload[2:])
}
