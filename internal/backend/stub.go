package backend

import (
	"fmt"

	"github.com/sirtoolchain/sircc/internal/ir"
)

// StubBackend records the sequence of functions (and, optionally,
// their instruction mnemonics) it was asked to lower instead of
// emitting LLVM IR, ZASM records, or bytecode. It stands in for the
// three excluded real backends so the dispatch/validate pipeline can
// be exercised end to end in tests (SPEC_FULL.md §4.4a). Grounded on
// the teacher's builder-style test doubles (e.g.
// kernel/threads/testutil/mock_sab_builder.go's fluent
// Add*/Build accumulation), adapted here from "build a byte buffer"
// to "record a call trace".
type StubBackend struct {
	Lowered  []string // fn symbol names, in dispatch order
	Mnemonics map[string][]string
	Finished bool

	// FailOn, if set, makes LowerFunction return an error every time
	// it is asked to lower the named function, so tests can
	// assert Dispatch's stop-at-first-error behavior.
	FailOn string
}

// NewStubBackend creates an empty StubBackend.
func NewStubBackend() *StubBackend {
	return &StubBackend{Mnemonics: make(map[string][]string)}
}

func (s *StubBackend) Name() string { return "stub" }

// LowerFunction records fn's name and the mnemonic of every
// instruction node directly reachable from fn.body/fn.blocks'
// top-level stmts list, without attempting real codegen.
func (s *StubBackend) LowerFunction(fn *ir.NodeRecord, tables *ir.Tables) error {
	name := fnName(fn, tables)
	if s.FailOn != "" && name == s.FailOn {
		return fmt.Errorf("stub backend: induced failure lowering %q", name)
	}
	s.Lowered = append(s.Lowered, name)
	s.Mnemonics[name] = collectMnemonics(fn, tables)
	return nil
}

func (s *StubBackend) Finish() error {
	s.Finished = true
	return nil
}

func fnName(fn *ir.NodeRecord, tables *ir.Tables) string {
	if nameV, ok := fn.Fields.Get("name"); ok && nameV.Kind == ir.KindString {
		return nameV.Str
	}
	if symV, ok := fn.Fields.Get("sym"); ok {
		if id, ok := idFromValue(symV); ok {
			if sym, ok := tables.GetSym(id); ok {
				return sym.Name
			}
		}
	}
	return fmt.Sprintf("fn#%d", fn.ID)
}

func collectMnemonics(fn *ir.NodeRecord, tables *ir.Tables) []string {
	var out []string
	stmtsFrom := func(blockID int64) {
		n, ok := tables.GetNode(blockID)
		if !ok {
			return
		}
		stmtsV, ok := n.Fields.Get("stmts")
		if !ok || stmtsV.Kind != ir.KindArray {
			return
		}
		for _, el := range stmtsV.Arr {
			id, ok := idFromValue(el)
			if !ok {
				continue
			}
			if stmt, ok := tables.GetNode(id); ok {
				out = append(out, stmt.Tag)
			}
		}
	}

	if id, err := refField(fn.Fields, "body"); err == nil {
		stmtsFrom(id)
	}
	if blocksV, ok := fn.Fields.Get("blocks"); ok && blocksV.Kind == ir.KindArray {
		for _, el := range blocksV.Arr {
			if el.Kind == ir.KindObject {
				if idv, ok := el.Get("id"); ok && idv.Kind == ir.KindInt {
					stmtsFrom(idv.Int)
				}
			}
		}
	}
	return out
}
