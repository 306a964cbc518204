package pipeline

import (
	"binrewrite/internal/backend"
	"binrewrite/internal/csvtable"
	"binrewrite/internal/diag"
	"binrewrite/internal/disasm"
	"binrewrite/internal/rule"
)

// step8ReverseEmission implements spec.md §4.6 step 8. Traversing last
// to first is essential: a patch's jump displacement can reach into a
// neighbor's bytes, so that neighbor must be announced as an instruction
// message before the patch that depends on it.
func (ctx *Context) step8ReverseEmission() error {
	for i := len(ctx.locations) - 1; i >= 0; i-- {
		loc := ctx.locations[i]
		if !loc.Patch() {
			continue
		}

		inst, err := ctx.decodeAt(loc)
		if err != nil {
			return err
		}

		if err := ctx.emitOne(i); err != nil {
			return err
		}
		if err := ctx.walkNeighbors(i); err != nil {
			return err
		}

		a := ctx.Comp.Actions()[loc.Action()]
		if a.Kind == rule.ActionPlugin {
			a.Plugin.Patch(inst.Addr, ctx.operandRawPtr(inst), uint32(inst.Size()))
			continue
		}

		args, err := ctx.buildArgs(a, inst)
		if err != nil {
			return err
		}
		if err := ctx.Sink.Patch(backend.Patch{
			Addr:           inst.Addr,
			TrampolineName: a.TrampolineName,
			Args:           args,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (ctx *Context) decodeAt(loc rule.Location) (disasm.Inst, error) {
	buf := make([]byte, loc.Size())
	if _, err := ctx.ELF.ReadAt(buf, int64(loc.Offset())); err != nil {
		return disasm.Inst{}, diag.New(diag.Disasm, "re-disassembly read at offset 0x%x: %v", loc.Offset(), err)
	}
	addr := ctx.baseAddr + (loc.Offset() - ctx.baseOff)
	inst, err := disasm.Decode(buf, addr, loc.Offset(), ctx.Cfg.Syntax)
	if err != nil {
		return disasm.Inst{}, diag.New(diag.Disasm, "re-disassembly at 0x%x: %v", addr, err)
	}
	return inst, nil
}

func (ctx *Context) addrOf(idx int) uint64 {
	loc := ctx.locations[idx]
	return ctx.baseAddr + (loc.Offset() - ctx.baseOff)
}

// emitOne sends the instruction message for locations[idx] unless its
// one-shot latch is already set.
func (ctx *Context) emitOne(idx int) error {
	loc := ctx.locations[idx]
	if loc.Emitted() {
		return nil
	}
	inst, err := ctx.decodeAt(loc)
	if err != nil {
		return err
	}
	if err := ctx.Sink.Instruction(backend.Instruction{
		Addr:   inst.Addr,
		Offset: inst.Offset,
		Size:   inst.Size(),
		Text:   inst.Text(),
	}); err != nil {
		return err
	}
	ctx.locations[idx] = loc.WithEmitted(true)
	return nil
}

// walkNeighbors announces still-un-emitted Locations within jump reach
// of locations[i] in both directions, stopping once the reach is
// exceeded, per spec.md §4.6 step 8.
func (ctx *Context) walkNeighbors(i int) error {
	base := ctx.addrOf(i)

	for j := i - 1; j >= 0; j-- {
		if base-ctx.addrOf(j) > maxJumpReach {
			break
		}
		if err := ctx.emitOne(j); err != nil {
			return err
		}
	}
	for j := i + 1; j < len(ctx.locations); j++ {
		if ctx.addrOf(j)-base > maxJumpReach {
			break
		}
		if err := ctx.emitOne(j); err != nil {
			return err
		}
	}
	return nil
}

// buildArgs resolves an action's compiled Argument vector against the
// matched instruction, producing the wire-level values a patch message
// carries. The scratch work here stands in for the spec's "fixed-size
// scratch buffer" at the interface this module owns.
func (ctx *Context) buildArgs(a *rule.Action, inst disasm.Inst) ([]backend.ArgValue, error) {
	out := make([]backend.ArgValue, 0, len(a.Args))
	for _, arg := range a.Args {
		v, err := ctx.resolveArg(a, arg, inst)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (ctx *Context) resolveArg(a *rule.Action, arg *rule.Argument, inst disasm.Inst) (backend.ArgValue, error) {
	name := argKindName(arg.Kind)

	switch arg.Kind {
	case rule.ArgAddr:
		return backend.ArgValue{Kind: name, Int: int64(inst.Addr)}, nil
	case rule.ArgOffset:
		return backend.ArgValue{Kind: name, Int: int64(inst.Offset)}, nil
	case rule.ArgBase:
		return backend.ArgValue{Kind: name, Int: int64(ctx.baseAddr)}, nil
	case rule.ArgNextAddr:
		return backend.ArgValue{Kind: name, Int: int64(inst.Addr) + int64(inst.Size())}, nil
	case rule.ArgStaticAddr, rule.ArgTrampolineAddr:
		// Resolved by the back-end once it has placed the trampoline;
		// the core only names which trampoline this argument targets.
		return backend.ArgValue{Kind: name, Str: a.TrampolineName}, nil
	case rule.ArgRandom:
		return backend.ArgValue{Kind: name, Int: ctx.Eval.RNG.Int63()}, nil
	case rule.ArgInstrBytes:
		return backend.ArgValue{Kind: name, Str: string(inst.Bytes)}, nil
	case rule.ArgInstrSize:
		return backend.ArgValue{Kind: name, Int: int64(inst.Size())}, nil
	case rule.ArgAsmStr:
		return backend.ArgValue{Kind: name, Str: inst.Text()}, nil
	case rule.ArgAsmLen:
		return backend.ArgValue{Kind: name, Int: int64(len(inst.Text()))}, nil
	case rule.ArgAsmBufSize:
		return backend.ArgValue{Kind: name, Int: 256}, nil // fixed scratch buffer size, per spec.md §9
	case rule.ArgOp, rule.ArgSrc, rule.ArgDst, rule.ArgImm, rule.ArgReg, rule.ArgMem:
		return ctx.resolveOperandArg(name, arg, inst)
	case rule.ArgNamedReg:
		return backend.ArgValue{Kind: name, Str: rule.RegisterName(arg.Register)}, nil
	case rule.ArgInt:
		return backend.ArgValue{Kind: name, Int: arg.IntValue}, nil
	case rule.ArgUser:
		return ctx.resolveUserArg(a, arg, inst)
	default:
		return backend.ArgValue{}, diag.New(diag.Internal, "unresolvable argument kind %v", arg.Kind)
	}
}

// resolveOperandArg carries the selected operand's index, not its
// runtime value: the back-end already received the instruction's raw
// bytes in an earlier Instruction message and can decode the operand
// itself. Deriving an immediate or register's actual value belongs to
// the machine-code trampoline synthesis this module does not implement.
func (ctx *Context) resolveOperandArg(name string, arg *rule.Argument, inst disasm.Inst) (backend.ArgValue, error) {
	ops := inst.Operands()
	if arg.OperandIndex < 0 || arg.OperandIndex >= len(ops) {
		return backend.ArgValue{}, diag.New(diag.Disasm, "%s[%d] argument: instruction %q has no such operand", name, arg.OperandIndex, inst.Text())
	}
	return backend.ArgValue{Kind: name, Int: int64(arg.OperandIndex)}, nil
}

// resolveUserArg re-derives the CSV-bound match's observed key, finds the
// unique matching row, and returns its chosen column — the USER argument
// mechanism of spec.md §4.1.
func (ctx *Context) resolveUserArg(a *rule.Action, arg *rule.Argument, inst disasm.Inst) (backend.ArgValue, error) {
	var bound *rule.MatchEntry
	for _, e := range a.Matches {
		if e.CSVBase == arg.CSVBasename {
			bound = e
			break
		}
	}
	if bound == nil {
		return backend.ArgValue{}, diag.New(diag.Internal, "USER argument %q has no bound match entry", arg.CSVBasename)
	}

	key, undefined := ctx.Eval.Observe(bound, inst)
	if undefined {
		return backend.ArgValue{}, diag.New(diag.Disasm, "USER argument %q: bound match's observable is undefined for this instruction", arg.CSVBasename)
	}

	table, err := csvtable.Load(arg.CSVBasename)
	if err != nil {
		return backend.ArgValue{}, err
	}
	row, err := table.UniqueRow(bound.CSVKeyCol, key)
	if err != nil {
		return backend.ArgValue{}, err
	}
	if arg.CSVColumn < 0 || arg.CSVColumn >= len(row) {
		return backend.ArgValue{}, diag.New(diag.Resolve, "USER argument %q: no column %d", arg.CSVBasename, arg.CSVColumn)
	}
	return backend.ArgValue{Kind: "user", Int: row[arg.CSVColumn]}, nil
}
