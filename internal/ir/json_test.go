package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirtoolchain/sircc/internal/arena"
	"github.com/sirtoolchain/sircc/internal/ir"
)

func TestParseLinePrimitives(t *testing.T) {
	a := arena.New()

	v, err := ir.ParseLine(a, `null`)
	require.NoError(t, err)
	assert.Equal(t, ir.KindNull, v.Kind)

	v, err = ir.ParseLine(a, `true`)
	require.NoError(t, err)
	assert.True(t, v.Bool)

	v, err = ir.ParseLine(a, `-42`)
	require.NoError(t, err)
	assert.Equal(t, int64(-42), v.Int)

	v, err = ir.ParseLine(a, `"hi\nthereA"`)
	require.NoError(t, err)
	assert.Equal(t, "hi\nthereA", v.Str)
}

func TestParseLineNonASCIIEscapeBecomesQuestionMark(t *testing.T) {
	a := arena.New()
	// "\u00e9clair" as literal wire bytes (backslash-u escape, not a
	// raw UTF-8 rune) exercises the \uXXXX decode path, which replaces
	// any non-ASCII code point with '?'.
	line := "\"\\u00e9clair\""
	v, err := ir.ParseLine(a, line)
	require.NoError(t, err)
	assert.Equal(t, "?clair", v.Str)
}

func TestParseLineRawUTF8PassesThroughUnescaped(t *testing.T) {
	a := arena.New()
	line := string([]byte{'"', 0xc3, 0xa9, '"'})
	v, err := ir.ParseLine(a, line)
	require.NoError(t, err)
	assert.Equal(t, string([]byte{0xc3, 0xa9}), v.Str)
}

func TestParseLineRejectsFloat(t *testing.T) {
	a := arena.New()
	_, err := ir.ParseLine(a, `1.5`)
	assert.Error(t, err)
}

func TestParseLineObjectPreservesOrderAndLookup(t *testing.T) {
	a := arena.New()
	v, err := ir.ParseLine(a, `{"k":1,"ir":"sir-v1.0","a":[1,2,3]}`)
	require.NoError(t, err)
	require.Equal(t, ir.KindObject, v.Kind)
	assert.Equal(t, []string{"k", "ir", "a"}, v.Keys())

	ir_, ok := v.Get("ir")
	require.True(t, ok)
	assert.Equal(t, "sir-v1.0", ir_.Str)

	arr, ok := v.Get("a")
	require.True(t, ok)
	require.Len(t, arr.Arr, 3)
	assert.Equal(t, int64(2), arr.Arr[1].Int)
}

func TestParseLineRejectsTrailingData(t *testing.T) {
	a := arena.New()
	_, err := ir.ParseLine(a, `{"k":1} garbage`)
	assert.Error(t, err)
}
