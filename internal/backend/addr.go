package backend

import (
	"errors"
	"fmt"

	"github.com/sirtoolchain/sircc/internal/ir"
)

// ErrRequiresRegister is returned by FoldAddr when the address tree
// is data-dependent and cannot be const-folded into a base+constant
// displacement pair (spec.md §4.4 "falling back to register
// materialization only when the tree is data-dependent").
var ErrRequiresRegister = errors.New("backend: address is data-dependent, requires register materialization")

// AddrMode is the const-folded result of addr_to_mem: a symbol- or
// register-valued base plus a constant byte displacement.
type AddrMode struct {
	BaseKind string // "sym" or "reg"
	BaseID   int64
	Disp     int64
}

// FoldAddr implements the addr_to_mem(base, disp) contract shared by
// every backend (spec.md §4.4): it walks a chain of ptr.add/
// ptr.offset nodes rooted at nodeID, accumulating a constant byte
// displacement scaled by the pointee element size, and bottoms out at
// a sym- or reg-valued base. A non-constant disp operand anywhere in
// the chain means the address can't be folded; the caller must
// materialize it into a register through ordinary codegen instead.
func FoldAddr(tables *ir.Tables, nodeID int64) (AddrMode, error) {
	disp := int64(0)
	cur := nodeID

	for {
		node, ok := tables.GetNode(cur)
		if !ok {
			return AddrMode{}, fmt.Errorf("backend: unknown node %d", cur)
		}

		switch node.Tag {
		case "ptr.add", "ptr.offset":
			baseID, err := refField(node.Fields, "base")
			if err != nil {
				return AddrMode{}, err
			}
			elemSize, err := elementSize(tables, node)
			if err != nil {
				return AddrMode{}, err
			}
			idxConst, ok, err := constIntField(tables, node.Fields, "disp")
			if err != nil {
				return AddrMode{}, err
			}
			if !ok {
				return AddrMode{}, ErrRequiresRegister
			}
			disp += idxConst * elemSize
			cur = baseID
			continue

		case "sym.addr":
			symID, err := refField(node.Fields, "sym")
			if err != nil {
				return AddrMode{}, err
			}
			return AddrMode{BaseKind: "sym", BaseID: symID, Disp: disp}, nil

		default:
			// Anything else is treated as an already-materialized
			// register-valued base (spec.md §4.4's "reg" operand
			// kind).
			return AddrMode{BaseKind: "reg", BaseID: cur, Disp: disp}, nil
		}
	}
}

func refField(fields ir.Value, name string) (int64, error) {
	v, ok := fields.Get(name)
	if !ok {
		return 0, fmt.Errorf("backend: missing field %q", name)
	}
	id, ok := idFromValue(v)
	if !ok {
		return 0, fmt.Errorf("backend: field %q is not a node reference", name)
	}
	return id, nil
}

// idFromValue decodes either a bare integer id or a {t:"ref", id}-
// shaped ref object into its node/sym id.
func idFromValue(v ir.Value) (int64, bool) {
	if v.Kind == ir.KindInt {
		return v.Int, true
	}
	if v.Kind == ir.KindObject {
		if idv, ok := v.Get("id"); ok && idv.Kind == ir.KindInt {
			return idv.Int, true
		}
	}
	return 0, false
}

// constIntField resolves fields[name] to a compile-time integer
// constant, which is either a literal int in the field itself or a
// reference to a const.* node. ok is false (no error) when the field
// is a reference to something other than a constant.
func constIntField(tables *ir.Tables, fields ir.Value, name string) (int64, bool, error) {
	v, ok := fields.Get(name)
	if !ok {
		return 0, false, fmt.Errorf("backend: missing field %q", name)
	}
	if v.Kind == ir.KindInt {
		return v.Int, true, nil
	}
	if v.Kind != ir.KindObject {
		return 0, false, nil
	}
	idv, ok := v.Get("id")
	if !ok || idv.Kind != ir.KindInt {
		return 0, false, nil
	}
	node, ok := tables.GetNode(idv.Int)
	if !ok || len(node.Tag) < 6 || node.Tag[:6] != "const." {
		return 0, false, nil
	}
	cv, ok := node.Fields.Get("value")
	if !ok || cv.Kind != ir.KindInt {
		return 0, false, nil
	}
	return cv.Int, true, nil
}

// elementSize returns the byte size of the pointee type for a
// ptr.add/ptr.offset node, defaulting to 1 (byte-addressed) if the
// node carries no type_ref.
func elementSize(tables *ir.Tables, node *ir.NodeRecord) (int64, error) {
	if !node.HasType {
		return 1, nil
	}
	t, ok := tables.GetType(node.TypeRef)
	if !ok {
		return 0, fmt.Errorf("backend: node %d references unknown type %d", node.ID, node.TypeRef)
	}
	if t.Kind != ir.TypePtr {
		return 1, nil
	}
	pointee, ok := tables.GetType(t.PtrOf)
	if !ok {
		return 1, nil
	}
	return primByteSize(pointee), nil
}

func primByteSize(t *ir.TypeRecord) int64 {
	if t.Kind == ir.TypePtr {
		return 8
	}
	if t.Kind != ir.TypePrim {
		return 1
	}
	switch t.Prim {
	case "i1", "bool", "i8":
		return 1
	case "i16":
		return 2
	case "i32", "f32":
		return 4
	case "i64", "f64":
		return 8
	default:
		return 1
	}
}
