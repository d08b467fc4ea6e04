package validate

import (
	"fmt"

	"github.com/sirtoolchain/sircc/internal/ir"
)

// resolveRef decodes a typed ref {t:"ref", k?, id} from a node's
// fields object, interning its id into the namespace named by k
// (defaulting to def when k is absent), per spec.md §3: "typed refs
// {t:\"ref\", k?, id} to other nodes/types/symbols".
func resolveRef(its *ir.Interners, v ir.Value, def ir.Namespace) (int64, error) {
	if v.Kind != ir.KindObject {
		return 0, fmt.Errorf("ref must be an object")
	}
	tv, ok := v.Get("t")
	if !ok || tv.Kind != ir.KindString || tv.Str != "ref" {
		return 0, fmt.Errorf("ref must have t=\"ref\"")
	}
	ns := def
	if kv, ok := v.Get("k"); ok && kv.Kind == ir.KindString {
		switch kv.Str {
		case "node":
			ns = ir.NsNode
		case "type":
			ns = ir.NsType
		case "sym":
			ns = ir.NsSym
		case "src":
			ns = ir.NsSrc
		default:
			return 0, fmt.Errorf("unknown ref namespace %q", kv.Str)
		}
	}
	idv, ok := v.Get("id")
	if !ok {
		return 0, fmt.Errorf("ref missing 'id'")
	}
	return its.InternIDValue(ns, idv)
}

// refSlice decodes an array of typed refs.
func refSlice(its *ir.Interners, v ir.Value, def ir.Namespace) ([]int64, error) {
	if v.Kind != ir.KindArray {
		return nil, fmt.Errorf("expected an array of refs")
	}
	out := make([]int64, 0, len(v.Arr))
	for _, e := range v.Arr {
		id, err := resolveRef(its, e, def)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}
