package validate

import (
	"fmt"

	"github.com/sirtoolchain/sircc/internal/ir"
	"github.com/sirtoolchain/sircc/internal/problem"
)

var vecLaneTypes = map[string]bool{
	"i8": true, "i16": true, "i32": true, "i64": true,
	"f32": true, "f64": true, "bool": true, "i1": true,
}

// checkTypes enforces spec.md §4.3 item 2: vec lane type validity and
// lane count, array.len non-negativity (already enforced at parse
// time, re-checked here for completeness), and that ptr/fn references
// resolve to existing type records.
func (v *Validator) checkTypes() bool {
	ok := true
	for i := range v.prog.Tables.Type {
		t := &v.prog.Tables.Type[i]
		if t.ID == 0 {
			continue
		}
		switch t.Kind {
		case ir.TypeVec:
			if !vecLaneTypes[t.VecOf] {
				v.surf.Emit(problem.SchemaBadType, "vec lane type must be one of i8,i16,i32,i64,f32,f64,bool,i1")
				ok = false
			}
			if t.VecLanes <= 0 {
				v.surf.Emit(problem.SchemaBadType, "vec lanes must be positive")
				ok = false
			}
		case ir.TypeArray:
			if t.ArrLen < 0 {
				v.surf.Emit(problem.SchemaBadType, "array len must be non-negative")
				ok = false
			}
			if _, found := v.prog.Tables.GetType(t.ArrOf); !found {
				v.surf.Emit(problem.RefUnresolved, "array element type does not resolve")
				ok = false
			}
		case ir.TypePtr:
			if _, found := v.prog.Tables.GetType(t.PtrOf); !found {
				v.surf.Emit(problem.RefUnresolved, "ptr pointee type does not resolve")
				ok = false
			}
		case ir.TypeFn:
			for _, p := range t.FnParams {
				if _, found := v.prog.Tables.GetType(p); !found {
					v.surf.Emit(problem.RefUnresolved, "fn param type does not resolve")
					ok = false
				}
			}
			if _, found := v.prog.Tables.GetType(t.FnRet); !found {
				v.surf.Emit(problem.RefUnresolved, "fn return type does not resolve")
				ok = false
			}
		}
	}
	if !v.checkTypeCycles() {
		ok = false
	}
	return ok
}

// checkTypeCycles walks the type graph depth-first by recursion (there
// is no explicit worklist) with a three-state marker
// (unseen/in-progress/resolved), per spec.md §9's redesign of the
// original "resolving flag": a cycle is reported with the offending
// id, not silently papered over.
func (v *Validator) checkTypeCycles() bool {
	state := make(map[int64]int) // 0 unseen, 1 in-progress, 2 resolved
	ok := true

	var visit func(id int64) bool
	visit = func(id int64) bool {
		switch state[id] {
		case 2:
			return true
		case 1:
			v.surf.Emit(problem.SchemaBadType, fmt.Sprintf("type cycle detected through id %d", id))
			return false
		}
		state[id] = 1
		t, found := v.prog.Tables.GetType(id)
		if !found {
			state[id] = 2
			return true
		}
		good := true
		switch t.Kind {
		case ir.TypePtr:
			good = visit(t.PtrOf)
		case ir.TypeArray:
			good = visit(t.ArrOf)
		case ir.TypeFn:
			for _, p := range t.FnParams {
				if !visit(p) {
					good = false
				}
			}
			if !visit(t.FnRet) {
				good = false
			}
		}
		state[id] = 2
		return good
	}

	for i := range v.prog.Tables.Type {
		t := &v.prog.Tables.Type[i]
		if t.ID == 0 {
			continue
		}
		if state[t.ID] == 0 {
			if !visit(t.ID) {
				ok = false
			}
		}
	}
	return ok
}
