package validate

import (
	"strings"

	"github.com/sirtoolchain/sircc/internal/ir"
	"github.com/sirtoolchain/sircc/internal/problem"
)

// checkSIMD runs the vec.* semantic checks from spec.md §4.3 item 5.
// Only reached when simd:v1 is enabled.
func (v *Validator) checkSIMD() bool {
	ok := true
	for i := range v.prog.Tables.Node {
		n := &v.prog.Tables.Node[i]
		if !strings.HasPrefix(n.Tag, "vec.") {
			continue
		}
		switch n.Tag {
		case "vec.splat":
			if !v.checkVecSplat(n) {
				ok = false
			}
		case "vec.replace":
			if !v.checkVecIdxOp(n, true) {
				ok = false
			}
		case "vec.extract":
			if !v.checkVecIdxOp(n, false) {
				ok = false
			}
		case "vec.shuffle":
			if !v.checkVecShuffle(n) {
				ok = false
			}
		case "vec.bitcast":
			if !v.checkVecBitcast(n) {
				ok = false
			}
		default:
			if strings.HasPrefix(n.Tag, "vec.cmp.") {
				if !v.checkVecCmp(n) {
					ok = false
				}
			}
		}
	}
	return ok
}

func (v *Validator) vecType(id int64) (*ir.TypeRecord, bool) {
	t, ok := v.prog.Tables.GetType(id)
	if !ok || t.Kind != ir.TypeVec {
		return nil, false
	}
	return t, true
}

func (v *Validator) checkVecSplat(n *ir.NodeRecord) bool {
	if !n.HasType {
		v.surf.Emit(problem.SIMDLaneMismatch, "vec.splat requires a type_ref")
		return false
	}
	vt, ok := v.vecType(n.TypeRef)
	if !ok {
		v.surf.Emit(problem.SIMDLaneMismatch, "vec.splat type_ref does not resolve to a vec type")
		return false
	}
	argV, has := n.Fields.Get("arg")
	if !has {
		v.surf.Emit(problem.SIMDLaneMismatch, "vec.splat missing 'arg'")
		return false
	}
	argID, err := resolveRef(v.prog.Interners, argV, ir.NsNode)
	if err != nil {
		v.surf.Emit(problem.SIMDLaneMismatch, "vec.splat.arg: "+err.Error())
		return false
	}
	argNode, found := v.prog.Tables.GetNode(argID)
	if !found {
		v.surf.Emit(problem.SIMDLaneMismatch, "vec.splat.arg does not resolve")
		return false
	}
	if !argNode.HasType || !v.typeNamesLane(argNode.TypeRef, vt.VecOf) {
		v.surf.Emit(problem.SIMDLaneMismatch, "vec.splat argument type must equal the vector's lane type")
		return false
	}
	return true
}

// typeNamesLane reports whether type id is the primitive type named
// laneName.
func (v *Validator) typeNamesLane(id int64, laneName string) bool {
	t, ok := v.prog.Tables.GetType(id)
	if !ok || t.Kind != ir.TypePrim {
		return false
	}
	return t.Prim == laneName
}

func (v *Validator) checkVecIdxOp(n *ir.NodeRecord, isReplace bool) bool {
	ok := true
	idxV, has := n.Fields.Get("idx")
	if !has {
		v.surf.Emit(problem.SIMDLaneMismatch, n.Tag+" missing 'idx'")
		return false
	}
	idxID, err := resolveRef(v.prog.Interners, idxV, ir.NsNode)
	if err != nil {
		v.surf.Emit(problem.SIMDLaneMismatch, n.Tag+".idx: "+err.Error())
		return false
	}
	idxNode, found := v.prog.Tables.GetNode(idxID)
	if !found || !idxNode.HasType || !v.typeNamesLane(idxNode.TypeRef, "i32") {
		v.surf.Emit(problem.SIMDLaneMismatch, n.Tag+".idx must be of type i32")
		ok = false
	}

	if isReplace {
		xV, has := n.Fields.Get("x")
		if !has {
			v.surf.Emit(problem.SIMDLaneMismatch, "vec.replace missing 'x'")
			return false
		}
		vecV, has := n.Fields.Get("vec")
		if !has {
			v.surf.Emit(problem.SIMDLaneMismatch, "vec.replace missing 'vec'")
			return false
		}
		vecID, err := resolveRef(v.prog.Interners, vecV, ir.NsNode)
		if err != nil {
			v.surf.Emit(problem.SIMDLaneMismatch, "vec.replace.vec: "+err.Error())
			return false
		}
		vecNode, found := v.prog.Tables.GetNode(vecID)
		if !found || !vecNode.HasType {
			v.surf.Emit(problem.SIMDLaneMismatch, "vec.replace.vec does not resolve")
			return false
		}
		vt, found := v.vecType(vecNode.TypeRef)
		if !found {
			v.surf.Emit(problem.SIMDLaneMismatch, "vec.replace.vec is not vector-typed")
			return false
		}
		xID, err := resolveRef(v.prog.Interners, xV, ir.NsNode)
		if err != nil {
			v.surf.Emit(problem.SIMDLaneMismatch, "vec.replace.x: "+err.Error())
			return false
		}
		xNode, found := v.prog.Tables.GetNode(xID)
		if !found || !xNode.HasType || !v.typeNamesLane(xNode.TypeRef, vt.VecOf) {
			v.surf.Emit(problem.SIMDLaneMismatch, "vec.replace.x must match the vector's lane type")
			ok = false
		}
	} else {
		if !n.HasType {
			v.surf.Emit(problem.SIMDLaneMismatch, "vec.extract requires a type_ref naming the lane type")
			ok = false
		}
	}
	return ok
}

func (v *Validator) checkVecShuffle(n *ir.NodeRecord) bool {
	if !n.HasType {
		v.surf.Emit(problem.SIMDShuffleLen, "vec.shuffle requires a type_ref")
		return false
	}
	vt, found := v.vecType(n.TypeRef)
	if !found {
		v.surf.Emit(problem.SIMDShuffleLen, "vec.shuffle type_ref does not resolve to a vec type")
		return false
	}
	idxV, has := n.Fields.Get("idx")
	if !has || idxV.Kind != ir.KindArray {
		v.surf.Emit(problem.SIMDShuffleLen, "vec.shuffle requires an integer array 'idx'")
		return false
	}
	if int64(len(idxV.Arr)) != vt.VecLanes {
		v.surf.Emit(problem.SIMDShuffleLen, "vec.shuffle idx length must equal lane count")
		return false
	}
	for _, e := range idxV.Arr {
		if e.Kind != ir.KindInt {
			v.surf.Emit(problem.SIMDShuffleLen, "vec.shuffle idx entries must be integers")
			return false
		}
	}
	return true
}

func (v *Validator) checkVecBitcast(n *ir.NodeRecord) bool {
	if !n.HasType {
		v.surf.Emit(problem.SIMDBitcastSize, "vec.bitcast requires a type_ref")
		return false
	}
	toVT, found := v.vecType(n.TypeRef)
	if !found {
		v.surf.Emit(problem.SIMDBitcastSize, "vec.bitcast type_ref does not resolve to a vec type")
		return false
	}
	argV, has := n.Fields.Get("arg")
	if !has {
		v.surf.Emit(problem.SIMDBitcastSize, "vec.bitcast missing 'arg'")
		return false
	}
	argID, err := resolveRef(v.prog.Interners, argV, ir.NsNode)
	if err != nil {
		v.surf.Emit(problem.SIMDBitcastSize, "vec.bitcast.arg: "+err.Error())
		return false
	}
	argNode, found := v.prog.Tables.GetNode(argID)
	if !found || !argNode.HasType {
		v.surf.Emit(problem.SIMDBitcastSize, "vec.bitcast.arg does not resolve")
		return false
	}
	fromVT, found := v.vecType(argNode.TypeRef)
	if !found {
		v.surf.Emit(problem.SIMDBitcastSize, "vec.bitcast.arg is not vector-typed")
		return false
	}
	if laneBytes(fromVT.VecOf)*fromVT.VecLanes != laneBytes(toVT.VecOf)*toVT.VecLanes {
		v.surf.Emit(problem.SIMDBitcastSize, "vec.bitcast does not preserve total byte size")
		return false
	}
	return true
}

func laneBytes(name string) int64 {
	switch name {
	case "i1", "bool", "i8":
		return 1
	case "i16":
		return 2
	case "i32", "f32":
		return 4
	case "i64", "f64":
		return 8
	default:
		return 0
	}
}

// checkVecCmp enforces the rule that a vec.cmp.* node lacking an
// explicit type_ref must have a matching vec(bool, lanes) type
// declared somewhere in the stream (spec.md §3, §4.3, scenario 3 of
// §8: callers are expected to declare the bool vector type
// themselves, it is never synthesized).
func (v *Validator) checkVecCmp(n *ir.NodeRecord) bool {
	if n.HasType {
		return true
	}
	aV, hasA := n.Fields.Get("a")
	if !hasA {
		v.surf.Emit(problem.SIMDCmpBoolTypeMissing, n.Tag+" missing operand 'a'")
		return false
	}
	aID, err := resolveRef(v.prog.Interners, aV, ir.NsNode)
	if err != nil {
		v.surf.Emit(problem.SIMDCmpBoolTypeMissing, n.Tag+".a: "+err.Error())
		return false
	}
	aNode, found := v.prog.Tables.GetNode(aID)
	if !found || !aNode.HasType {
		v.surf.Emit(problem.SIMDCmpBoolTypeMissing, n.Tag+".a does not resolve")
		return false
	}
	aVT, found := v.vecType(aNode.TypeRef)
	if !found {
		v.surf.Emit(problem.SIMDCmpBoolTypeMissing, n.Tag+".a is not vector-typed")
		return false
	}
	for i := range v.prog.Tables.Type {
		t := &v.prog.Tables.Type[i]
		if t.ID == 0 || t.Kind != ir.TypeVec {
			continue
		}
		if (t.VecOf == "bool" || t.VecOf == "i1") && t.VecLanes == aVT.VecLanes {
			return true
		}
	}
	v.surf.Emit(problem.SIMDCmpBoolTypeMissing, "no matching vec(bool, lanes) type declared for "+n.Tag)
	return false
}
