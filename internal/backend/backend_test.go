package backend_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirtoolchain/sircc/internal/arena"
	"github.com/sirtoolchain/sircc/internal/backend"
	"github.com/sirtoolchain/sircc/internal/diag"
	"github.com/sirtoolchain/sircc/internal/ir"
)

func parseProgram(t *testing.T, lines ...string) *ir.Program {
	t.Helper()
	prog, err := ir.Parse(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	return prog
}

func TestDispatchWalksFnNodesInOrder(t *testing.T) {
	prog := parseProgram(t,
		`{"ir":"sir-v1.0","k":"meta"}`,
		`{"ir":"sir-v1.0","k":"sym","id":1,"name":"first","kind":"func"}`,
		`{"ir":"sir-v1.0","k":"sym","id":2,"name":"second","kind":"func"}`,
		`{"ir":"sir-v1.0","k":"node","id":10,"tag":"fn","fields":{"sym":{"t":"ref","k":"sym","id":1}}}`,
		`{"ir":"sir-v1.0","k":"node","id":11,"tag":"fn","fields":{"sym":{"t":"ref","k":"sym","id":2}}}`,
	)

	sb := backend.NewStubBackend()
	surf := diag.NewSurface()
	err := backend.Dispatch(sb, prog.Tables, surf)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, sb.Lowered)
	assert.True(t, sb.Finished)
}

func TestDispatchStopsAtFirstError(t *testing.T) {
	prog := parseProgram(t,
		`{"ir":"sir-v1.0","k":"meta"}`,
		`{"ir":"sir-v1.0","k":"sym","id":1,"name":"good","kind":"func"}`,
		`{"ir":"sir-v1.0","k":"sym","id":2,"name":"bad","kind":"func"}`,
		`{"ir":"sir-v1.0","k":"sym","id":3,"name":"never","kind":"func"}`,
		`{"ir":"sir-v1.0","k":"node","id":10,"tag":"fn","fields":{"sym":{"t":"ref","k":"sym","id":1}}}`,
		`{"ir":"sir-v1.0","k":"node","id":11,"tag":"fn","fields":{"sym":{"t":"ref","k":"sym","id":2}}}`,
		`{"ir":"sir-v1.0","k":"node","id":12,"tag":"fn","fields":{"sym":{"t":"ref","k":"sym","id":3}}}`,
	)

	sb := backend.NewStubBackend()
	sb.FailOn = "bad"
	surf := diag.NewSurface()
	err := backend.Dispatch(sb, prog.Tables, surf)
	require.Error(t, err)
	assert.Equal(t, []string{"good"}, sb.Lowered)
	assert.False(t, sb.Finished)
	assert.True(t, surf.HasErrors())
}

func TestFoldAddrConstFoldsPtrAddChain(t *testing.T) {
	prog := parseProgram(t,
		`{"ir":"sir-v1.0","k":"meta"}`,
		`{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","of":"i32"}`,
		`{"ir":"sir-v1.0","k":"type","id":2,"kind":"ptr","of":1}`,
		`{"ir":"sir-v1.0","k":"node","id":1,"tag":"sym.addr","fields":{"sym":{"t":"ref","k":"sym","id":1}}}`,
		`{"ir":"sir-v1.0","k":"node","id":2,"tag":"const.i64","fields":{"value":3}}`,
		`{"ir":"sir-v1.0","k":"node","id":3,"tag":"ptr.add","type_ref":2,"fields":{"base":{"t":"ref","id":1},"disp":{"t":"ref","id":2}}}`,
		`{"ir":"sir-v1.0","k":"sym","id":1,"name":"arr","kind":"data"}`,
	)

	mode, err := backend.FoldAddr(prog.Tables, 3)
	require.NoError(t, err)
	assert.Equal(t, "sym", mode.BaseKind)
	assert.Equal(t, int64(1), mode.BaseID)
	assert.Equal(t, int64(12), mode.Disp) // 3 * sizeof(i32)
}

func TestFoldAddrRequiresRegisterForDataDependentDisp(t *testing.T) {
	prog := parseProgram(t,
		`{"ir":"sir-v1.0","k":"meta"}`,
		`{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","of":"i32"}`,
		`{"ir":"sir-v1.0","k":"type","id":2,"kind":"ptr","of":1}`,
		`{"ir":"sir-v1.0","k":"sym","id":1,"name":"arr","kind":"data"}`,
		`{"ir":"sir-v1.0","k":"node","id":1,"tag":"sym.addr","fields":{"sym":{"t":"ref","k":"sym","id":1}}}`,
		`{"ir":"sir-v1.0","k":"node","id":2,"tag":"load.i32","fields":{}}`,
		`{"ir":"sir-v1.0","k":"node","id":3,"tag":"ptr.add","type_ref":2,"fields":{"base":{"t":"ref","id":1},"disp":{"t":"ref","id":2}}}`,
	)

	_, err := backend.FoldAddr(prog.Tables, 3)
	assert.ErrorIs(t, err, backend.ErrRequiresRegister)
}
