package ir

import (
	"bufio"
	"fmt"
	"io"
	"regexp"

	"github.com/sirtoolchain/sircc/internal/arena"
	"github.com/sirtoolchain/sircc/internal/problem"
)

// identRe matches the identifier grammar shared by symbol names and
// instr operand identifiers (spec.md §3, §4.1).
var identRe = regexp.MustCompile(`^[A-Za-z_.$][A-Za-z0-9_.$]*$`)

// Context is the diagnostic surface's "current position" (spec.md
// §4.5): the record kind/id/tag being processed, plus its source
// reference and location, if any. The parser pushes a fresh Context
// for every record it dispatches.
type Context struct {
	Kind   string
	RecID  int64
	HasID  bool
	Tag    string
	SrcRef int64
	HasSrc bool
	Loc    Loc
	HasLoc bool
	Line   int
}

// ParseError pairs a problem.Kind with the Context active when it was
// raised and a human-readable message.
type ParseError struct {
	Kind    problem.Kind
	Context Context
	Msg     string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s (line %d)", e.Kind.Code(), e.Msg, e.Context.Line)
}

func perr(k problem.Kind, ctx Context, format string, args ...any) *ParseError {
	return &ParseError{Kind: k, Context: ctx, Msg: fmt.Sprintf(format, args...)}
}

// Program is the fully-parsed, not-yet-validated result of consuming
// one SIR stream.
type Program struct {
	Arena     *arena.Arena
	Interners *Interners
	Tables    *Tables
}

// Parse reads a JSONL SIR stream line by line, interning ids and
// populating record tables. It stops at the first error, mirroring
// the spec's "accumulate diagnostics but stop at the first fatal
// error within a record" rule (spec.md §7) — SIRCC's frontend treats
// every schema violation as fatal to the whole parse, since a torn
// record table cannot be validated meaningfully.
func Parse(r io.Reader) (*Program, error) {
	a := arena.New()
	p := &parser{
		a:    a,
		its:  NewInterners(),
		tabs: NewTables(),
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if isBlank(line) {
			continue
		}
		if err := p.parseLine(lineNo, line); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, perr(problem.RuntimeIO, Context{Line: lineNo}, "read error: %v", err)
	}
	return &Program{Arena: a, Interners: p.its, Tables: p.tabs}, nil
}

func isBlank(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\r', '\n':
			continue
		default:
			return false
		}
	}
	return true
}

type parser struct {
	a    *arena.Arena
	its  *Interners
	tabs *Tables
}

var recordKeyAllowList = map[string][]string{
	"meta":  {"ir", "k", "ext"},
	"src":   {"ir", "k", "id", "file", "line", "col", "end_line", "end_col", "text"},
	"diag":  {"ir", "k", "level", "msg", "code", "about", "src_ref", "loc", "context"},
	"sym":   {"ir", "k", "id", "name", "kind", "linkage", "type_ref", "attrs", "src_ref", "loc"},
	"type":  {"ir", "k", "id", "kind", "of", "len", "params", "ret", "varargs", "lanes"},
	"node":  {"ir", "k", "id", "tag", "type_ref", "fields"},
	"ext":   {"ir", "k", "name", "data"},
	"label": {"ir", "k", "id", "name"},
	"instr": {"ir", "k", "mnemonic", "operands", "loc"},
	"dir":   {"ir", "k", "name", "args"},
}

func (p *parser) parseLine(lineNo int, line string) error {
	v, err := ParseLine(p.a, line)
	if err != nil {
		return perr(problem.SchemaBadType, Context{Line: lineNo}, "malformed JSON: %v", err)
	}
	if v.Kind != KindObject {
		return perr(problem.SchemaBadType, Context{Line: lineNo}, "record is not a JSON object")
	}

	kv, ok := v.Get("k")
	if !ok || kv.Kind != KindString {
		return perr(problem.SchemaUnknownKind, Context{Line: lineNo}, "record missing string field 'k'")
	}
	kind := kv.Str

	allow, known := recordKeyAllowList[kind]
	if !known {
		return perr(problem.SchemaUnknownKind, Context{Line: lineNo, Kind: kind}, "unknown record kind %q", kind)
	}
	if err := checkKeyAllowList(v, allow); err != nil {
		return perr(problem.SchemaUnknownKey, Context{Line: lineNo, Kind: kind}, "%v", err)
	}

	irv, ok := v.Get("ir")
	if !ok || irv.Kind != KindString || irv.Str != "sir-v1.0" {
		return perr(problem.SchemaIRUnsupported, Context{Line: lineNo, Kind: kind}, "unsupported or missing 'ir' field")
	}

	ctx := Context{Kind: kind, Line: lineNo}

	switch kind {
	case "meta":
		return p.parseMeta(ctx, v)
	case "src":
		return p.parseSrc(ctx, v)
	case "diag":
		// Producer-emitted diagnostics are accepted but ignored
		// (spec.md §1 Non-goals).
		return nil
	case "sym":
		return p.parseSym(ctx, v)
	case "type":
		return p.parseType(ctx, v)
	case "node":
		return p.parseNode(ctx, v)
	case "ext":
		return nil
	case "label":
		return nil
	case "instr":
		return p.parseInstr(ctx, v)
	case "dir":
		return nil
	default:
		return perr(problem.SchemaUnknownKind, ctx, "unhandled record kind %q", kind)
	}
}

func checkKeyAllowList(v Value, allow []string) error {
	allowed := make(map[string]bool, len(allow))
	for _, k := range allow {
		allowed[k] = true
	}
	for _, key := range v.Keys() {
		if !allowed[key] {
			return fmt.Errorf("unknown key %q", key)
		}
	}
	return nil
}

func (p *parser) parseMeta(ctx Context, v Value) error {
	ext, ok := v.Get("ext")
	if !ok {
		return nil
	}
	if features, ok := ext.Get("features"); ok {
		if features.Kind != KindArray {
			return perr(problem.SchemaBadType, ctx, "ext.features must be an array")
		}
		for _, f := range features.Arr {
			if f.Kind != KindString {
				return perr(problem.SchemaBadType, ctx, "ext.features entries must be strings")
			}
			p.tabs.Features[f.Str] = true
		}
	}
	if target, ok := ext.Get("target"); ok {
		if triple, ok := target.Get("triple"); ok && triple.Kind == KindString {
			p.tabs.Target = triple.Str
		}
	}
	return nil
}

func (p *parser) idFromCtx(ns Namespace, v Value, ctx *Context) (int64, error) {
	idv, ok := v.Get("id")
	if !ok {
		return 0, perr(problem.SchemaBadType, *ctx, "record missing 'id'")
	}
	id, err := p.its.InternIDValue(ns, idv)
	if err != nil {
		return 0, perr(problem.SchemaBadType, *ctx, "invalid id: %v", err)
	}
	ctx.RecID = id
	ctx.HasID = true
	return id, nil
}

func (p *parser) parseSrc(ctx Context, v Value) error {
	id, err := p.idFromCtx(NsSrc, v, &ctx)
	if err != nil {
		return err
	}
	r := SrcRecord{ID: id}
	if f, ok := v.Get("file"); ok && f.Kind == KindString {
		r.File = f.Str
	}
	line, ok := v.Get("line")
	if !ok || line.Kind != KindInt {
		return perr(problem.SchemaBadType, ctx, "src record missing integer 'line'")
	}
	r.Line = line.Int
	if c, ok := v.Get("col"); ok && c.Kind == KindInt {
		r.Col = c.Int
	}
	el, hasEL := v.Get("end_line")
	ec, hasEC := v.Get("end_col")
	if hasEL != hasEC {
		return perr(problem.SchemaBadType, ctx, "end_line and end_col must both be present or both absent")
	}
	if hasEL {
		r.HasEnd = true
		r.EndLine = el.Int
		r.EndCol = ec.Int
	}
	if t, ok := v.Get("text"); ok && t.Kind == KindString {
		r.Text = t.Str
	}
	if !p.tabs.PutSrc(id, r) {
		return perr(problem.SchemaDuplicateID, ctx, "duplicate src id")
	}
	return nil
}

func (p *parser) parseSym(ctx Context, v Value) error {
	id, err := p.idFromCtx(NsSym, v, &ctx)
	if err != nil {
		return err
	}
	name, ok := v.Get("name")
	if !ok || name.Kind != KindString {
		return perr(problem.SchemaBadType, ctx, "sym record missing string 'name'")
	}
	if !identRe.MatchString(name.Str) {
		return perr(problem.SchemaBadType, ctx, "sym name %q does not match identifier grammar", name.Str)
	}
	ctx.Tag = name.Str
	kindv, ok := v.Get("kind")
	if !ok || kindv.Kind != KindString {
		return perr(problem.SchemaBadType, ctx, "sym record missing string 'kind'")
	}
	r := SymRecord{ID: id, Name: name.Str, Kind: kindv.Str}
	if l, ok := v.Get("linkage"); ok && l.Kind == KindString {
		r.Linkage = l.Str
	}
	if tr, ok := v.Get("type_ref"); ok {
		tid, err := p.its.InternIDValue(NsType, tr)
		if err != nil {
			return perr(problem.SchemaBadType, ctx, "bad type_ref: %v", err)
		}
		r.TypeRef = tid
		r.HasType = true
	}
	if at, ok := v.Get("attrs"); ok {
		r.Attrs = at
	}
	if sr, ok := v.Get("src_ref"); ok {
		sid, err := p.its.InternIDValue(NsSrc, sr)
		if err != nil {
			return perr(problem.SchemaBadType, ctx, "bad src_ref: %v", err)
		}
		r.SrcRef = sid
		r.HasSrc = true
	}
	if loc, ok := v.Get("loc"); ok {
		l, err := parseLoc(loc)
		if err != nil {
			return perr(problem.SchemaBadType, ctx, "bad loc: %v", err)
		}
		r.Loc = l
		r.HasLoc = true
	}
	if !p.tabs.PutSym(id, r) {
		return perr(problem.SchemaDuplicateID, ctx, "duplicate sym id")
	}
	return nil
}

func parseLoc(v Value) (Loc, error) {
	l := Loc{}
	if u, ok := v.Get("unit"); ok && u.Kind == KindString {
		l.Unit = u.Str
	}
	if ln, ok := v.Get("line"); ok && ln.Kind == KindInt {
		l.Line = ln.Int
	}
	if c, ok := v.Get("col"); ok && c.Kind == KindInt {
		l.Col = c.Int
	}
	return l, nil
}

var primTypes = map[string]bool{
	"i1": true, "bool": true, "i8": true, "i16": true, "i32": true,
	"i64": true, "f32": true, "f64": true, "ptr": true,
}

func (p *parser) parseType(ctx Context, v Value) error {
	id, err := p.idFromCtx(NsType, v, &ctx)
	if err != nil {
		return err
	}
	kindv, ok := v.Get("kind")
	if !ok || kindv.Kind != KindString {
		return perr(problem.SchemaBadType, ctx, "type record missing string 'kind'")
	}
	ctx.Tag = kindv.Str

	r := TypeRecord{ID: id}
	switch kindv.Str {
	case "prim":
		of, ok := v.Get("of")
		name := ""
		if ok && of.Kind == KindString {
			name = of.Str
		} else if pn, ok := v.Get("prim"); ok && pn.Kind == KindString {
			name = pn.Str
		}
		if name == "" || !primTypes[name] {
			return perr(problem.SchemaBadType, ctx, "unknown primitive type name %q", name)
		}
		r.Kind = TypePrim
		r.Prim = name
	case "ptr":
		of, ok := v.Get("of")
		if !ok {
			return perr(problem.SchemaBadType, ctx, "ptr type missing 'of'")
		}
		tid, err := p.its.InternIDValue(NsType, of)
		if err != nil {
			return perr(problem.SchemaBadType, ctx, "bad ptr.of: %v", err)
		}
		r.Kind = TypePtr
		r.PtrOf = tid
	case "array":
		of, ok := v.Get("of")
		if !ok {
			return perr(problem.SchemaBadType, ctx, "array type missing 'of'")
		}
		tid, err := p.its.InternIDValue(NsType, of)
		if err != nil {
			return perr(problem.SchemaBadType, ctx, "bad array.of: %v", err)
		}
		lenv, ok := v.Get("len")
		if !ok || lenv.Kind != KindInt || lenv.Int < 0 {
			return perr(problem.SchemaBadType, ctx, "array type requires non-negative integer 'len'")
		}
		r.Kind = TypeArray
		r.ArrOf = tid
		r.ArrLen = lenv.Int
	case "fn":
		paramsv, ok := v.Get("params")
		if !ok || paramsv.Kind != KindArray {
			return perr(problem.SchemaBadType, ctx, "fn type requires array 'params'")
		}
		var params []int64
		for _, pv := range paramsv.Arr {
			tid, err := p.its.InternIDValue(NsType, pv)
			if err != nil {
				return perr(problem.SchemaBadType, ctx, "bad fn param type: %v", err)
			}
			params = append(params, tid)
		}
		retv, ok := v.Get("ret")
		if !ok {
			return perr(problem.SchemaBadType, ctx, "fn type missing 'ret'")
		}
		retID, err := p.its.InternIDValue(NsType, retv)
		if err != nil {
			return perr(problem.SchemaBadType, ctx, "bad fn.ret: %v", err)
		}
		r.Kind = TypeFn
		r.FnParams = params
		r.FnRet = retID
		if va, ok := v.Get("varargs"); ok && va.Kind == KindBool {
			r.FnVarargs = va.Bool
		}
	case "vec":
		lanesv, ok := v.Get("lanes")
		if !ok || lanesv.Kind != KindInt || lanesv.Int <= 0 {
			return perr(problem.SchemaBadType, ctx, "vec type requires positive integer 'lanes'")
		}
		ofv, ok := v.Get("of")
		if !ok || ofv.Kind != KindString {
			return perr(problem.SchemaBadType, ctx, "vec type requires string 'of' (lane type name)")
		}
		r.Kind = TypeVec
		r.VecOf = ofv.Str
		r.VecLanes = lanesv.Int
	case "fun":
		r.Kind = TypeFun
	case "closure":
		r.Kind = TypeClosure
	case "sum":
		r.Kind = TypeSum
	default:
		return perr(problem.SchemaBadType, ctx, "unknown type kind %q", kindv.Str)
	}
	if !p.tabs.PutType(id, r) {
		return perr(problem.SchemaDuplicateID, ctx, "duplicate type id")
	}
	return nil
}

func (p *parser) parseNode(ctx Context, v Value) error {
	id, err := p.idFromCtx(NsNode, v, &ctx)
	if err != nil {
		return err
	}
	tagv, ok := v.Get("tag")
	if !ok || tagv.Kind != KindString {
		return perr(problem.SchemaBadType, ctx, "node record missing string 'tag'")
	}
	ctx.Tag = tagv.Str

	if feature, gated := RequiredFeature(tagv.Str); gated && !p.tabs.HasFeature(feature) {
		return perr(problem.FeatureGate, ctx, "mnemonic %q requires feature %q", tagv.Str, feature)
	}

	r := NodeRecord{ID: id, Tag: tagv.Str}
	if tr, ok := v.Get("type_ref"); ok {
		tid, err := p.its.InternIDValue(NsType, tr)
		if err != nil {
			return perr(problem.SchemaBadType, ctx, "bad type_ref: %v", err)
		}
		r.TypeRef = tid
		r.HasType = true
	}
	if f, ok := v.Get("fields"); ok {
		r.Fields = f
	}
	if !p.tabs.PutNode(id, r) {
		return perr(problem.SchemaDuplicateID, ctx, "duplicate node id")
	}
	return nil
}

var validOperandTags = map[string]bool{
	"sym": true, "lbl": true, "reg": true, "num": true, "str": true, "mem": true, "ref": true,
}

func (p *parser) parseInstr(ctx Context, v Value) error {
	mn, ok := v.Get("mnemonic")
	if !ok || mn.Kind != KindString {
		return perr(problem.SchemaBadType, ctx, "instr record missing string 'mnemonic'")
	}
	ctx.Tag = mn.Str

	if feature, gated := RequiredFeature(mn.Str); gated && !p.tabs.HasFeature(feature) {
		return perr(problem.FeatureGate, ctx, "mnemonic %q requires feature %q", mn.Str, feature)
	}

	if ops, ok := v.Get("operands"); ok {
		if ops.Kind != KindArray {
			return perr(problem.SchemaBadType, ctx, "instr.operands must be an array")
		}
		for _, op := range ops.Arr {
			if err := validateOperand(op); err != nil {
				return perr(problem.SchemaBadType, ctx, "bad operand: %v", err)
			}
		}
	}
	return nil
}

var validMemSizes = map[int64]bool{1: true, 2: true, 4: true, 8: true, 16: true}

func validateOperand(op Value) error {
	if op.Kind != KindObject {
		return fmt.Errorf("operand must be an object")
	}
	tv, ok := op.Get("t")
	if !ok || tv.Kind != KindString || !validOperandTags[tv.Str] {
		return fmt.Errorf("operand 't' must be one of sym|lbl|reg|num|str|mem|ref")
	}
	switch tv.Str {
	case "sym", "lbl", "reg":
		idv, ok := op.Get("id")
		if ok && idv.Kind == KindString && !identRe.MatchString(idv.Str) {
			return fmt.Errorf("operand identifier %q does not match identifier grammar", idv.Str)
		}
	case "mem":
		base, ok := op.Get("base")
		if !ok || base.Kind != KindObject {
			return fmt.Errorf("mem operand requires object 'base'")
		}
		bt, ok := base.Get("t")
		if !ok || bt.Kind != KindString || (bt.Str != "reg" && bt.Str != "sym") {
			return fmt.Errorf("mem.base.t must be reg or sym")
		}
		if sz, ok := op.Get("size"); ok {
			if sz.Kind != KindInt || !validMemSizes[sz.Int] {
				return fmt.Errorf("mem.size must be one of 1,2,4,8,16")
			}
		}
	}
	return nil
}
