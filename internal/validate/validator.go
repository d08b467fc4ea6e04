// Package validate runs the program validator: feature-dependency
// checks, type well-formedness, node feature gates, CFG discipline,
// and SIMD semantic checks, in the fixed order spec.md §4.3
// prescribes. It runs after the whole stream has been parsed because
// a meta record enabling a feature may appear anywhere in the stream,
// so parse-time gating alone is not sufficient.
package validate

import (
	"github.com/sirtoolchain/sircc/internal/diag"
	"github.com/sirtoolchain/sircc/internal/ir"
	"github.com/sirtoolchain/sircc/internal/problem"
)

// Validator walks a parsed Program and reports every violation onto a
// diagnostic Surface.
type Validator struct {
	prog *ir.Program
	surf *diag.Surface
}

// New creates a Validator for prog, reporting onto surf.
func New(prog *ir.Program, surf *diag.Surface) *Validator {
	return &Validator{prog: prog, surf: surf}
}

// Run performs every validation pass in spec order. It does not stop
// early on the first failing pass — early passes (feature deps, type
// well-formedness) catch independent classes of error, and surfacing
// all of them in one run is more useful to a caller than a single
// diagnostic per invocation. CFG and SIMD checks run whatever the
// earlier passes found; a node whose operands or types do not resolve
// gets its own diagnostic from those checks.
func (v *Validator) Run() bool {
	ok := true
	if !v.checkFeatureDeps() {
		ok = false
	}
	if !v.checkTypes() {
		ok = false
	}
	if !v.checkNodeFeatureGates() {
		ok = false
	}
	if !v.checkCFGs() {
		ok = false
	}
	if v.prog.Tables.HasFeature("simd:v1") {
		if !v.checkSIMD() {
			ok = false
		}
	}
	return ok
}

func (v *Validator) checkFeatureDeps() bool {
	ok := true
	for feature := range v.prog.Tables.Features {
		dep, has := ir.FeatureDependency(feature)
		if !has {
			continue
		}
		if !v.prog.Tables.HasFeature(dep) {
			v.surf.Emit(problem.FeatureDep, "feature "+feature+" requires "+dep+" to also be enabled")
			ok = false
		}
	}
	return ok
}

func (v *Validator) checkNodeFeatureGates() bool {
	ok := true
	for i := range v.prog.Tables.Node {
		n := &v.prog.Tables.Node[i]
		if n.Tag == "" {
			continue
		}
		feature, gated := ir.RequiredFeature(n.Tag)
		if !gated {
			continue
		}
		if !v.prog.Tables.HasFeature(feature) {
			v.surf.Emit(problem.FeatureGate, "mnemonic "+n.Tag+" requires feature "+feature)
			ok = false
		}
		if n.Tag == "sem.match_sum" && !v.prog.Tables.HasFeature("adt:v1") {
			v.surf.Emit(problem.FeatureDep, "mnemonic sem.match_sum requires feature adt:v1")
			ok = false
		}
	}
	return ok
}
