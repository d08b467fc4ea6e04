// Package backend defines the contract shared by sircc's three code
// generation backends (LLVM, ZASM, interpreter) and the dispatcher
// that drives them (spec.md §4.4, SPEC_FULL.md §4.4a). The real
// LLVM/ZASM/interpreter implementations are excluded external
// collaborators; this package owns only the shared contract
// (Backend, addr_to_mem) and a StubBackend test double that exercises
// the dispatch pipeline end to end.
package backend

import (
	"fmt"

	"github.com/sirtoolchain/sircc/internal/diag"
	"github.com/sirtoolchain/sircc/internal/ir"
	"github.com/sirtoolchain/sircc/internal/problem"
)

// Backend realizes validated fn nodes into a target representation.
// LowerFunction is called once per fn node in declaration order;
// Finish is called once after every function has been lowered (or
// dispatch stopped early on error) to flush any buffered output.
type Backend interface {
	Name() string
	LowerFunction(fn *ir.NodeRecord, tables *ir.Tables) error
	Finish() error
}

// Dispatch walks fn nodes in declaration order, handing each to
// backend.LowerFunction, and aborts at the first error — spec.md
// §4.4's "unknown mnemonics are rejected... never silently skipped"
// and §7's "stop at the first fatal error". Node declaration order is
// ascending internal node id; it equals stream order only when node
// ids increase along the stream.
func Dispatch(backend Backend, tables *ir.Tables, surf *diag.Surface) error {
	for i := range tables.Node {
		node := &tables.Node[i]
		if node.Tag != "fn" {
			continue
		}
		if err := backend.LowerFunction(node, tables); err != nil {
			surf.Emit(problem.InternalInvariant, fmt.Sprintf("backend %s: lowering fn %d: %v", backend.Name(), node.ID, err))
			return err
		}
	}
	if err := backend.Finish(); err != nil {
		surf.Emit(problem.InternalInvariant, fmt.Sprintf("backend %s: finish: %v", backend.Name(), err))
		return err
	}
	return nil
}
