package validate_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirtoolchain/sircc/internal/diag"
	"github.com/sirtoolchain/sircc/internal/ir"
	"github.com/sirtoolchain/sircc/internal/validate"
)

func mustParse(t *testing.T, src string) *ir.Program {
	t.Helper()
	prog, err := ir.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return prog
}

// TestCFGBranchArgsArityMismatch mirrors spec.md §8 scenario 2: a
// block with one param, a predecessor branching to it with two args.
func TestCFGBranchArgsArityMismatch(t *testing.T) {
	src := strings.Join([]string{
		`{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","of":"i32"}`,
		`{"ir":"sir-v1.0","k":"node","id":100,"tag":"bparam","type_ref":1}`,
		`{"ir":"sir-v1.0","k":"node","id":11,"tag":"term.ret","fields":{}}`,
		`{"ir":"sir-v1.0","k":"node","id":10,"tag":"block","fields":{"params":[{"t":"ref","id":100}],"stmts":[{"t":"ref","id":11}]}}`,
		`{"ir":"sir-v1.0","k":"node","id":20,"tag":"const.i32","fields":{"value":1}}`,
		`{"ir":"sir-v1.0","k":"node","id":21,"tag":"const.i32","fields":{"value":2}}`,
		`{"ir":"sir-v1.0","k":"node","id":30,"tag":"term.br","fields":{"to":{"t":"ref","id":10},"args":[{"t":"ref","id":20},{"t":"ref","id":21}]}}`,
		`{"ir":"sir-v1.0","k":"node","id":40,"tag":"block","fields":{"stmts":[{"t":"ref","id":30}]}}`,
		`{"ir":"sir-v1.0","k":"node","id":50,"tag":"fn","fields":{"entry":{"t":"ref","id":40},"blocks":[{"t":"ref","id":40},{"t":"ref","id":10}]}}`,
	}, "\n")

	prog := mustParse(t, src)
	surf := diag.NewSurface()
	ok := validate.New(prog, surf).Run()

	assert.False(t, ok)
	require.True(t, surf.HasErrors())
	found := false
	for _, d := range surf.Diagnostics() {
		if d.Code == "sircc.cfg.branch.args.count_mismatch" {
			found = true
			assert.Equal(t, "block", d.Context.Tag)
			assert.Equal(t, int64(10), d.Context.RecID)
		}
	}
	assert.True(t, found, "expected a branch-args-count-mismatch diagnostic")
}

// TestCFGValidProgramPasses is the arity-matching counterpart: one
// arg for one param succeeds.
func TestCFGValidProgramPasses(t *testing.T) {
	src := strings.Join([]string{
		`{"ir":"sir-v1.0","k":"type","id":1,"kind":"prim","of":"i32"}`,
		`{"ir":"sir-v1.0","k":"node","id":100,"tag":"bparam","type_ref":1}`,
		`{"ir":"sir-v1.0","k":"node","id":11,"tag":"term.ret","fields":{}}`,
		`{"ir":"sir-v1.0","k":"node","id":10,"tag":"block","fields":{"params":[{"t":"ref","id":100}],"stmts":[{"t":"ref","id":11}]}}`,
		`{"ir":"sir-v1.0","k":"node","id":20,"tag":"const.i32","fields":{"value":1}}`,
		`{"ir":"sir-v1.0","k":"node","id":30,"tag":"term.br","fields":{"to":{"t":"ref","id":10},"args":[{"t":"ref","id":20}]}}`,
		`{"ir":"sir-v1.0","k":"node","id":40,"tag":"block","fields":{"stmts":[{"t":"ref","id":30}]}}`,
		`{"ir":"sir-v1.0","k":"node","id":50,"tag":"fn","fields":{"entry":{"t":"ref","id":40},"blocks":[{"t":"ref","id":40},{"t":"ref","id":10}]}}`,
	}, "\n")

	prog := mustParse(t, src)
	surf := diag.NewSurface()
	ok := validate.New(prog, surf).Run()
	assert.True(t, ok)
	assert.False(t, surf.HasErrors())
}

// TestVecCmpRequiresMatchingBoolVecType mirrors spec.md §8 scenario 3.
func TestVecCmpRequiresMatchingBoolVecType(t *testing.T) {
	base := []string{
		`{"ir":"sir-v1.0","k":"meta","ext":{"features":["simd:v1"]}}`,
		`{"ir":"sir-v1.0","k":"type","id":1,"kind":"vec","of":"i32","lanes":4}`,
		`{"ir":"sir-v1.0","k":"node","id":1,"tag":"cstr","type_ref":1,"fields":{}}`,
	}

	// Without the bool vec type, vec.cmp.eq fails.
	missing := append(append([]string{}, base...),
		`{"ir":"sir-v1.0","k":"node","id":3,"tag":"vec.cmp.eq","fields":{"a":{"t":"ref","id":1},"b":{"t":"ref","id":1}}}`,
	)
	prog := mustParse(t, strings.Join(missing, "\n"))
	surf := diag.NewSurface()
	ok := validate.New(prog, surf).Run()
	assert.False(t, ok)
	found := false
	for _, d := range surf.Diagnostics() {
		if d.Code == "sircc.vec.cmp.bool_ty_missing" {
			found = true
		}
	}
	assert.True(t, found)

	// Adding t2 = vec(bool, 4) makes it pass.
	present := append(append([]string{}, base...),
		`{"ir":"sir-v1.0","k":"type","id":2,"kind":"vec","of":"bool","lanes":4}`,
		`{"ir":"sir-v1.0","k":"node","id":3,"tag":"vec.cmp.eq","fields":{"a":{"t":"ref","id":1},"b":{"t":"ref","id":1}}}`,
	)
	prog2 := mustParse(t, strings.Join(present, "\n"))
	surf2 := diag.NewSurface()
	ok2 := validate.New(prog2, surf2).Run()
	assert.True(t, ok2)
}

func TestFeatureDependencyClosureRequiresFun(t *testing.T) {
	src := `{"ir":"sir-v1.0","k":"meta","ext":{"features":["closure:v1"]}}`
	prog := mustParse(t, src)
	surf := diag.NewSurface()
	ok := validate.New(prog, surf).Run()
	assert.False(t, ok)
	found := false
	for _, d := range surf.Diagnostics() {
		if d.Code == "sircc.feature.dep" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestTypeCycleDetected(t *testing.T) {
	src := strings.Join([]string{
		`{"ir":"sir-v1.0","k":"type","id":1,"kind":"ptr","of":2}`,
		`{"ir":"sir-v1.0","k":"type","id":2,"kind":"ptr","of":1}`,
	}, "\n")
	prog := mustParse(t, src)
	surf := diag.NewSurface()
	ok := validate.New(prog, surf).Run()
	assert.False(t, ok)
}
