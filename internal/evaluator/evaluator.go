// Package evaluator implements the per-instruction rule evaluation of
// spec.md §4.4: given a compiled Action's conjunction of MatchEntry and a
// disassembled instruction, decide whether every entry passes.
package evaluator

import (
	"math/rand"

	"binrewrite/internal/diag"
	"binrewrite/internal/disasm"
	"binrewrite/internal/dsl"
	"binrewrite/internal/rule"
)

// Evaluator holds the process-global-but-explicit state the matching pass
// needs: the deterministic RNG and an optional debug tracer.
type Evaluator struct {
	RNG    *rand.Rand
	Tracer *diag.Tracer
}

// New builds an Evaluator sharing rng (the same Rand the Compiler seeded,
// so `random` draws are part of the single reproducible sequence) and an
// optional trace sink.
func New(rng *rand.Rand, tracer *diag.Tracer) *Evaluator {
	return &Evaluator{RNG: rng, Tracer: tracer}
}

// Eval evaluates every MatchEntry of action against inst, short-circuiting
// on the first failing entry, per "Conjunction locality."
func (e *Evaluator) Eval(action *rule.Action, inst disasm.Inst) bool {
	if e.Tracer != nil {
		e.Tracer.Header(inst.Addr, inst.Text())
	}
	for _, entry := range action.Matches {
		ok := e.evalEntry(entry, inst)
		if e.Tracer != nil {
			obs, undefined := e.observe(entry, inst)
			e.Tracer.Entry(entry.Source, ok, obs, undefined)
		}
		if !ok {
			return false
		}
	}
	return true
}

func (e *Evaluator) evalEntry(entry *rule.MatchEntry, inst disasm.Inst) bool {
	if entry.Kind == rule.KindAsm || entry.Kind == rule.KindMnemonic {
		return e.evalRegexKind(entry, inst)
	}
	obs, undefined := e.observe(entry, inst)
	if undefined {
		return false
	}
	return compare(entry.Cmp, obs, entry.IntSet)
}

func (e *Evaluator) evalRegexKind(entry *rule.MatchEntry, inst disasm.Inst) bool {
	subject := inst.Text()
	if entry.Kind == rule.KindMnemonic {
		subject = inst.Mnemonic()
	}
	matched := entry.Regex.MatchString(subject)
	if entry.Cmp == dsl.CmpNeq {
		return !matched
	}
	return matched
}

// Observe exposes the integer observable computation for callers outside
// the matching pass — specifically, emission-time USER-argument
// resolution, which must recompute the same key a CSV-bound MatchEntry
// observed in order to look up the matched row again.
func (e *Evaluator) Observe(entry *rule.MatchEntry, inst disasm.Inst) (int64, bool) {
	return e.observe(entry, inst)
}

// observe computes the integer observable for value-producing kinds, and
// whether it is undefined (an unsupported operand-accessor selector
// combination, which fails the entry regardless of comparator).
func (e *Evaluator) observe(entry *rule.MatchEntry, inst disasm.Inst) (int64, bool) {
	switch entry.Kind {
	case rule.KindTrue:
		return 1, false
	case rule.KindFalse:
		return 0, false
	case rule.KindAddr:
		return int64(inst.Addr), false
	case rule.KindOffset:
		return int64(inst.Offset), false
	case rule.KindSize:
		return int64(inst.Size()), false
	case rule.KindRandom:
		return e.RNG.Int63(), false
	case rule.KindCall:
		return boolInt(inst.IsCall()), false
	case rule.KindJump:
		return boolInt(inst.IsJump()), false
	case rule.KindReturn:
		return boolInt(inst.IsReturn()), false
	case rule.KindPlugin:
		if entry.Plugin == nil {
			return 0, true
		}
		return entry.Plugin.LastResult, false
	case rule.KindOp, rule.KindSrc, rule.KindDst, rule.KindImm, rule.KindReg, rule.KindMem:
		return e.observeOperand(entry, inst)
	default:
		return 0, true
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (e *Evaluator) observeOperand(entry *rule.MatchEntry, inst disasm.Inst) (int64, bool) {
	filtered := filterOperands(entry.Kind, inst.Operands())

	if entry.OperandIndex == rule.AggregateOperand {
		if entry.Field != rule.FieldSize {
			return 0, true // "only .size is valid [without [i]]; other selectors mark the observable undefined"
		}
		return int64(len(filtered)), false
	}

	if entry.OperandIndex < 0 || entry.OperandIndex >= len(filtered) {
		return 0, true
	}
	op := filtered[entry.OperandIndex]
	switch entry.Field {
	case rule.FieldSize:
		return int64(op.SizeBytes), false
	case rule.FieldType:
		return int64(op.Kind), false
	case rule.FieldRead:
		return boolInt(op.Read), false
	case rule.FieldWrite:
		return boolInt(op.Write), false
	default:
		return 0, true
	}
}

func filterOperands(kind rule.MatchKind, ops []disasm.Operand) []disasm.Operand {
	var out []disasm.Operand
	for _, op := range ops {
		switch kind {
		case rule.KindOp:
			out = append(out, op)
		case rule.KindSrc:
			if op.Read {
				out = append(out, op)
			}
		case rule.KindDst:
			if op.Write {
				out = append(out, op)
			}
		case rule.KindImm:
			if op.Kind == disasm.OperandImm {
				out = append(out, op)
			}
		case rule.KindReg:
			if op.Kind == disasm.OperandReg {
				out = append(out, op)
			}
		case rule.KindMem:
			if op.Kind == disasm.OperandMem {
				out = append(out, op)
			}
		}
	}
	return out
}

// compare applies the value-set comparator semantics of spec.md §4.4,
// including the preserved `neq` quirk: against a set with more than one
// element it always passes.
func compare(cmp dsl.CmpOp, v int64, set interface{ Min() int64; Max() int64; Contains(int64) bool; Len() int }) bool {
	switch cmp {
	case dsl.CmpEqZero:
		return v == 0
	case dsl.CmpNeqZero:
		return v != 0
	case dsl.CmpEq:
		return set.Contains(v)
	case dsl.CmpNeq:
		if set.Len() == 1 {
			return !set.Contains(v)
		}
		return true
	case dsl.CmpLt:
		return v < set.Max()
	case dsl.CmpLeq:
		return v <= set.Max()
	case dsl.CmpGt:
		return v > set.Min()
	case dsl.CmpGeq:
		return v >= set.Min()
	default:
		return false
	}
}
