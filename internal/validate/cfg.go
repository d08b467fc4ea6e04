package validate

import (
	"github.com/sirtoolchain/sircc/internal/ir"
	"github.com/sirtoolchain/sircc/internal/problem"
)

// terminatorTags are node tags that may only appear as a block's last
// statement (spec.md §3, §4.3 item 4).
var terminatorTags = map[string]bool{
	"term.br": true, "term.cbr": true, "term.switch": true,
	"term.ret": true, "return": true,
}

// checkCFGs validates every `fn` node that is in CFG form (has both
// fields.entry and fields.blocks). Legacy linear-form functions
// (fields.body) are exempt from CFG discipline, per spec.md §3.
func (v *Validator) checkCFGs() bool {
	ok := true
	for i := range v.prog.Tables.Node {
		n := &v.prog.Tables.Node[i]
		if n.Tag != "fn" {
			continue
		}
		entryV, hasEntry := n.Fields.Get("entry")
		blocksV, hasBlocks := n.Fields.Get("blocks")
		if !hasEntry || !hasBlocks {
			continue // legacy linear form
		}
		if !v.checkOneCFG(n, entryV, blocksV) {
			ok = false
		}
	}
	return ok
}

func (v *Validator) checkOneCFG(fn *ir.NodeRecord, entryV, blocksV ir.Value) bool {
	its := v.prog.Interners
	ok := true

	entryID, err := resolveRef(its, entryV, ir.NsNode)
	if err != nil {
		v.surf.Emit(problem.SchemaBadType, "fn.entry: "+err.Error())
		return false
	}
	blockIDs, err := refSlice(its, blocksV, ir.NsNode)
	if err != nil {
		v.surf.Emit(problem.SchemaBadType, "fn.blocks: "+err.Error())
		return false
	}

	inBlocks := make(map[int64]bool, len(blockIDs))
	for _, b := range blockIDs {
		inBlocks[b] = true
	}
	if !inBlocks[entryID] {
		v.surf.Emit(problem.CFGBlockNotInBlocks, "fn.entry is not a member of fn.blocks")
		ok = false
	}

	blockParams := make(map[int64]int) // block id -> len(params)
	for _, bid := range blockIDs {
		bn, found := v.prog.Tables.GetNode(bid)
		if !found || bn.Tag != "block" {
			v.surf.Emit(problem.CFGBlockNotInBlocks, "fn.blocks entry does not resolve to a block node")
			ok = false
			continue
		}
		params := 0
		if pv, has := bn.Fields.Get("params"); has && pv.Kind == ir.KindArray {
			params = len(pv.Arr)
		}
		blockParams[bid] = params
	}

	for _, bid := range blockIDs {
		bn, found := v.prog.Tables.GetNode(bid)
		if !found || bn.Tag != "block" {
			continue
		}
		if !v.checkBlockBody(bn, blockParams) {
			ok = false
		}
	}
	return ok
}

func (v *Validator) checkBlockBody(bn *ir.NodeRecord, blockParams map[int64]int) bool {
	its := v.prog.Interners
	ok := true

	stmtsV, has := bn.Fields.Get("stmts")
	if !has || stmtsV.Kind != ir.KindArray || len(stmtsV.Arr) == 0 {
		v.surf.Emit(problem.CFGMissingTerminator, "block has no statements")
		return false
	}

	stmtIDs, err := refSlice(its, stmtsV, ir.NsNode)
	if err != nil {
		v.surf.Emit(problem.SchemaBadType, "block.stmts: "+err.Error())
		return false
	}

	for i, sid := range stmtIDs {
		sn, found := v.prog.Tables.GetNode(sid)
		if !found {
			v.surf.Emit(problem.RefUnresolved, "block statement does not resolve")
			ok = false
			continue
		}
		isTerm := terminatorTags[sn.Tag]
		last := i == len(stmtIDs)-1
		if last && !isTerm {
			v.surf.Emit(problem.CFGMissingTerminator, "block does not end with a terminator")
			ok = false
		}
		if !last && isTerm {
			v.surf.Emit(problem.CFGTerminatorNotLast, "terminator "+sn.Tag+" is not the last statement in its block")
			ok = false
		}
		if isTerm {
			if !v.checkTerminator(sn, blockParams) {
				ok = false
			}
		}
	}
	return ok
}

func (v *Validator) checkTerminator(term *ir.NodeRecord, blockParams map[int64]int) bool {
	its := v.prog.Interners
	ok := true

	checkArm := func(armLabel string, arm ir.Value) bool {
		toV, has := arm.Get("to")
		if !has {
			v.surf.Emit(problem.SchemaBadType, armLabel+" missing 'to'")
			return false
		}
		toID, err := resolveRef(its, toV, ir.NsNode)
		if err != nil {
			v.surf.Emit(problem.SchemaBadType, armLabel+".to: "+err.Error())
			return false
		}
		nparams, known := blockParams[toID]
		if !known {
			v.surf.Emit(problem.CFGBlockNotInBlocks, armLabel+".to does not refer to a declared block")
			return false
		}
		nargs := 0
		if argsV, has := arm.Get("args"); has {
			ids, err := refSlice(its, argsV, ir.NsNode)
			if err != nil {
				v.surf.Emit(problem.SchemaBadType, armLabel+".args: "+err.Error())
				return false
			}
			nargs = len(ids)
		}
		if nargs != nparams {
			g := v.surf.Push(ir.Context{Kind: "node", RecID: toID, HasID: true, Tag: "block"})
			v.surf.Emit(problem.CFGBranchArgsMismatch, armLabel+": branch argument count does not match destination params")
			g.Pop()
			return false
		}
		return true
	}

	switch term.Tag {
	case "term.br":
		if !checkArm("term.br", term.Fields) {
			ok = false
		}
	case "term.cbr":
		condV, has := term.Fields.Get("cond")
		if !has {
			v.surf.Emit(problem.SchemaBadType, "term.cbr missing 'cond'")
			ok = false
		} else if _, err := resolveRef(its, condV, ir.NsNode); err != nil {
			v.surf.Emit(problem.SchemaBadType, "term.cbr.cond: "+err.Error())
			ok = false
		}
		thenV, has := term.Fields.Get("then")
		if !has || !checkArm("term.cbr.then", thenV) {
			if !has {
				v.surf.Emit(problem.SchemaBadType, "term.cbr missing 'then'")
			}
			ok = false
		}
		elseV, has := term.Fields.Get("else")
		if !has || !checkArm("term.cbr.else", elseV) {
			if !has {
				v.surf.Emit(problem.SchemaBadType, "term.cbr missing 'else'")
			}
			ok = false
		}
	case "term.switch":
		scrutV, has := term.Fields.Get("scrut")
		if !has {
			v.surf.Emit(problem.SchemaBadType, "term.switch missing 'scrut'")
			ok = false
		} else if _, err := resolveRef(its, scrutV, ir.NsNode); err != nil {
			v.surf.Emit(problem.SchemaBadType, "term.switch.scrut: "+err.Error())
			ok = false
		}
		defaultV, has := term.Fields.Get("default")
		if !has {
			v.surf.Emit(problem.CFGSwitchMissingDefault, "term.switch has no default arm")
			ok = false
		} else if !checkArm("term.switch.default", defaultV) {
			ok = false
		}
		casesV, has := term.Fields.Get("cases")
		if has {
			if casesV.Kind != ir.KindArray {
				v.surf.Emit(problem.SchemaBadType, "term.switch.cases must be an array")
				ok = false
			} else {
				for _, c := range casesV.Arr {
					litV, has := c.Get("lit")
					if !has {
						v.surf.Emit(problem.SchemaBadType, "term.switch case missing 'lit'")
						ok = false
						continue
					}
					litID, err := resolveRef(its, litV, ir.NsNode)
					if err != nil {
						v.surf.Emit(problem.SchemaBadType, "term.switch case.lit: "+err.Error())
						ok = false
						continue
					}
					litNode, found := v.prog.Tables.GetNode(litID)
					if !found || !isConstTag(litNode.Tag) {
						v.surf.Emit(problem.CFGCaseLitNotConst, "term.switch case.lit does not refer to a const.* node")
						ok = false
					}
					if !checkArm("term.switch.case", c) {
						ok = false
					}
				}
			}
		}
	case "term.ret", "return":
		if valueV, has := term.Fields.Get("value"); has {
			if _, err := resolveRef(its, valueV, ir.NsNode); err != nil {
				v.surf.Emit(problem.SchemaBadType, term.Tag+".value: "+err.Error())
				ok = false
			}
		}
	}
	return ok
}

func isConstTag(tag string) bool {
	return len(tag) >= 6 && tag[:6] == "const."
}
