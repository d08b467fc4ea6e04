// Package problem defines the canonical error-kind enum shared by the
// compiler's diagnostic surface (internal/diag) and the file/aio
// capability's completion-frame errors (internal/fileaio). A single
// enum avoids keeping two error taxonomies in sync by hand.
package problem

// Severity is the coarse bucket a Kind maps to for process exit codes.
type Severity int

const (
	SeverityOK Severity = iota
	SeverityError
	SeverityInternal
	SeverityToolchain
	SeverityUsage
)

// ExitCode returns the numeric process exit code for a severity.
func (s Severity) ExitCode() int {
	return int(s)
}

// Kind enumerates every distinguishable failure the toolchain and
// runtime can produce. Names are grouped by the taxonomy in spec §7.
type Kind int

const (
	None Kind = iota

	// Schema
	SchemaUnknownKey
	SchemaIRUnsupported
	SchemaDuplicateID
	SchemaUnknownKind
	SchemaBadType

	// Reference
	RefUnresolved
	RefKindMismatch

	// Feature
	FeatureGate
	FeatureDep

	// CFG
	CFGMissingTerminator
	CFGTerminatorNotLast
	CFGBranchArgsMismatch
	CFGBlockNotInBlocks
	CFGSwitchMissingDefault
	CFGCaseLitNotConst

	// SIMD
	SIMDLaneMismatch
	SIMDShuffleLen
	SIMDBitcastSize
	SIMDCmpBoolTypeMissing

	// Runtime (file/aio), mapped from errno
	RuntimeAgain
	RuntimeInvalid
	RuntimeClosed
	RuntimeDenied
	RuntimeNotFound
	RuntimeOOM
	RuntimeIO

	// Internal
	InternalOOM
	InternalInvariant
)

type info struct {
	code     string
	short    string
	severity Severity
}

var table = map[Kind]info{
	None: {"", "", SeverityOK},

	SchemaUnknownKey:     {"sircc.schema.unknown_key", "unknown key", SeverityError},
	SchemaIRUnsupported:  {"sircc.schema.ir.unsupported", "unsupported ir version", SeverityError},
	SchemaDuplicateID:    {"sircc.schema.duplicate_id", "duplicate id", SeverityError},
	SchemaUnknownKind:    {"sircc.schema.unknown_kind", "unknown record kind", SeverityError},
	SchemaBadType:        {"sircc.schema.bad_type", "wrong field type", SeverityError},
	RefUnresolved:        {"sircc.ref.unresolved", "unresolved reference", SeverityError},
	RefKindMismatch:      {"sircc.ref.kind_mismatch", "reference kind mismatch", SeverityError},
	FeatureGate:          {"sircc.feature.gate", "mnemonic or type requires an ungated feature", SeverityError},
	FeatureDep:           {"sircc.feature.dep", "feature dependency not satisfied", SeverityError},
	CFGMissingTerminator: {"sircc.cfg.terminator.missing", "block has no terminator", SeverityError},
	CFGTerminatorNotLast: {"sircc.cfg.terminator.not_last", "terminator is not the last statement", SeverityError},
	CFGBranchArgsMismatch: {
		"sircc.cfg.branch.args.count_mismatch", "branch argument count does not match destination params", SeverityError,
	},
	CFGBlockNotInBlocks:    {"sircc.cfg.block.not_in_blocks", "entry or target is not a declared block", SeverityError},
	CFGSwitchMissingDefault: {"sircc.cfg.switch.missing_default", "switch has no default arm", SeverityError},
	CFGCaseLitNotConst:     {"sircc.cfg.switch.case_lit_not_const", "case literal is not a const node", SeverityError},
	SIMDLaneMismatch:       {"sircc.vec.lane_mismatch", "vector lane type mismatch", SeverityError},
	SIMDShuffleLen:         {"sircc.vec.shuffle.index_len", "shuffle index length does not match lane count", SeverityError},
	SIMDBitcastSize:        {"sircc.vec.bitcast.size_mismatch", "bitcast does not preserve byte size", SeverityError},
	SIMDCmpBoolTypeMissing: {"sircc.vec.cmp.bool_ty_missing", "no matching vec(bool, lanes) type declared", SeverityError},

	RuntimeAgain:    {"sircc.rt.again", "again", SeverityError},
	RuntimeInvalid:  {"sircc.rt.invalid", "invalid", SeverityError},
	RuntimeClosed:   {"sircc.rt.closed", "closed", SeverityError},
	RuntimeDenied:   {"sircc.rt.denied", "denied", SeverityError},
	RuntimeNotFound: {"sircc.rt.noent", "not found", SeverityError},
	RuntimeOOM:      {"sircc.rt.oom", "out of memory", SeverityInternal},
	RuntimeIO:       {"sircc.rt.io", "io error", SeverityError},

	InternalOOM:       {"sircc.internal.oom", "out of memory", SeverityInternal},
	InternalInvariant: {"sircc.internal.invariant", "invariant violated", SeverityInternal},
}

// Code returns the dotted diagnostic code spec.md uses, e.g.
// "sircc.cfg.branch.args.count_mismatch".
func (k Kind) Code() string { return table[k].code }

// ShortMessage returns the brief human-readable form of the kind, e.g.
// "denied", "not found"; file/aio uses it as the prefix of a denied
// OPEN completion.
func (k Kind) ShortMessage() string { return table[k].short }

// Severity returns the coarse bucket used to compute the process exit
// code, with SeverityInternal sticky over any later SeverityError
// (spec.md §4.5).
func (k Kind) Severity() Severity { return table[k].severity }
