// Package diag implements the program-wide diagnostic surface: a
// stack of "current context" values pushed on every descent into a
// record or child node, plus sticky max-severity exit-code tracking
// (spec.md §4.5, §9 "global program-wide diagnostic context").
package diag

import (
	"github.com/sirtoolchain/sircc/internal/ir"
	"github.com/sirtoolchain/sircc/internal/problem"
)

// Diagnostic is one emitted error, carrying the context active at
// emission time.
type Diagnostic struct {
	Level   string
	Code    string
	Msg     string
	Kind    problem.Kind
	Context ir.Context
}

// Surface accumulates diagnostics and tracks the sticky max-severity
// exit code. Unlike the teacher's single mutable global, callers pass
// a *Surface explicitly; Push/Pop return a guard value so a deferred
// Pop() always restores the prior context, matching the "stack-guard
// value whose destructor restores the prior context on every exit
// path" redesign (spec.md §9).
type Surface struct {
	stack []ir.Context
	diags []Diagnostic
	worst problem.Severity
}

// NewSurface creates an empty diagnostic surface.
func NewSurface() *Surface {
	return &Surface{}
}

// Guard restores the context that was current before the matching
// Push, via Pop.
type Guard struct {
	s *Surface
}

// Push records ctx as the current context and returns a guard whose
// Pop restores whatever was current before.
func (s *Surface) Push(ctx ir.Context) Guard {
	s.stack = append(s.stack, ctx)
	return Guard{s: s}
}

// Pop restores the context active before the corresponding Push.
func (g Guard) Pop() {
	if g.s == nil || len(g.s.stack) == 0 {
		return
	}
	g.s.stack = g.s.stack[:len(g.s.stack)-1]
}

// Current returns the innermost pushed context, or the zero Context
// if the stack is empty.
func (s *Surface) Current() ir.Context {
	if len(s.stack) == 0 {
		return ir.Context{}
	}
	return s.stack[len(s.stack)-1]
}

// Emit records a diagnostic at the current context and folds its
// severity into the sticky worst-severity tracker. SeverityInternal
// always wins over a later SeverityError (spec.md §4.5).
func (s *Surface) Emit(kind problem.Kind, msg string) {
	d := Diagnostic{
		Level:   "error",
		Code:    kind.Code(),
		Msg:     msg,
		Kind:    kind,
		Context: s.Current(),
	}
	s.diags = append(s.diags, d)
	sev := kind.Severity()
	if sev == problem.SeverityInternal || s.worst != problem.SeverityInternal && sev > s.worst {
		s.worst = sev
	}
}

// Diagnostics returns every diagnostic emitted so far, in order.
func (s *Surface) Diagnostics() []Diagnostic {
	return s.diags
}

// HasErrors reports whether any diagnostic was emitted.
func (s *Surface) HasErrors() bool {
	return len(s.diags) > 0
}

// ExitCode returns the process exit code implied by the worst
// severity emitted so far (spec.md §4.5, §6).
func (s *Surface) ExitCode() int {
	return s.worst.ExitCode()
}
