package ir_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirtoolchain/sircc/internal/ir"
)

func TestInternStringAssignsStableIDs(t *testing.T) {
	in := ir.NewInterner()
	id1 := in.InternString("alpha")
	id2 := in.InternString("beta")
	id3 := in.InternString("alpha")

	assert.Equal(t, id1, id3)
	assert.NotEqual(t, id1, id2)

	s, ok := in.ReverseString(id1)
	require.True(t, ok)
	assert.Equal(t, "alpha", s)
}

func TestInternIntPreservesVerbatim(t *testing.T) {
	in := ir.NewInterner()
	id := in.InternInt(7)
	assert.Equal(t, int64(7), id)

	// Interning the same integer again returns the same id.
	assert.Equal(t, id, in.InternInt(7))

	// Integer ids have no originating string.
	_, ok := in.ReverseString(7)
	assert.False(t, ok)
}

func TestInternIntAndStringNeverCollide(t *testing.T) {
	in := ir.NewInterner()
	// Pre-claim small integer ids, then intern enough strings that the
	// allocator must skip past every one of them.
	for i := int64(1); i <= 5; i++ {
		in.InternInt(i)
	}
	seen := make(map[int64]bool)
	for i := 1; i <= 5; i++ {
		seen[i] = true
	}
	for i := 0; i < 20; i++ {
		id := in.InternString(fmt.Sprintf("s%d", i))
		assert.False(t, seen[id], "string id %d collided with a claimed integer id", id)
		seen[id] = true
	}
}

func TestInternIntRemapsWhenStringClaimedIDFirst(t *testing.T) {
	in := ir.NewInterner()
	// The interner hands out 1 as the first-ever id, to whichever key
	// arrives first. Here a string claims it...
	strID := in.InternString("main")
	require.Equal(t, int64(1), strID)

	// ...so an explicit integer id 1 arriving later must not collide
	// with it, even though InternInt would otherwise preserve 1
	// verbatim.
	intID := in.InternInt(1)
	assert.NotEqual(t, strID, intID)

	// The remapped id is stable on repeat lookups.
	assert.Equal(t, intID, in.InternInt(1))

	s, ok := in.ReverseString(strID)
	require.True(t, ok)
	assert.Equal(t, "main", s)
	_, ok = in.ReverseString(intID)
	assert.False(t, ok)
}

func TestInternStringGrowsAcrossManyKeys(t *testing.T) {
	in := ir.NewInterner()
	ids := make(map[string]int64)
	for i := 0; i < 500; i++ {
		k := fmt.Sprintf("key-%d", i)
		ids[k] = in.InternString(k)
	}
	// Every key must still resolve to its original id after growth.
	for k, id := range ids {
		assert.Equal(t, id, in.InternString(k))
		s, ok := in.ReverseString(id)
		require.True(t, ok)
		assert.Equal(t, k, s)
	}
}

func TestInternersNamespacesAreIndependent(t *testing.T) {
	its := ir.NewInterners()
	srcID := its.For(ir.NsSrc).InternString("main.sir")
	symID := its.For(ir.NsSym).InternString("main.sir")
	// Same string key in different namespaces need not share an id,
	// and each namespace tracks its own reverse mapping.
	s, ok := its.For(ir.NsSrc).ReverseString(srcID)
	require.True(t, ok)
	assert.Equal(t, "main.sir", s)

	s, ok = its.For(ir.NsSym).ReverseString(symID)
	require.True(t, ok)
	assert.Equal(t, "main.sir", s)
}

func TestInternIDValueRejectsWrongKinds(t *testing.T) {
	its := ir.NewInterners()

	_, err := its.InternIDValue(ir.NsNode, ir.Value{Kind: ir.KindBool, Bool: true})
	assert.Error(t, err)

	_, err = its.InternIDValue(ir.NsNode, ir.Value{Kind: ir.KindInt, Int: -1})
	assert.Error(t, err)

	_, err = its.InternIDValue(ir.NsNode, ir.Value{Kind: ir.KindString, Str: ""})
	assert.Error(t, err)

	id, err := its.InternIDValue(ir.NsNode, ir.Value{Kind: ir.KindInt, Int: 42})
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
}
