package pipeline

import (
	"binrewrite/internal/diag"
	"binrewrite/internal/disasm"
	"binrewrite/internal/pluginreg"
	"binrewrite/internal/rule"
)

// step6DisasmPassA performs the always-run linear sweep of spec.md §4.6
// step 6. When notify is off, plugin match hooks and rule matching run
// inline here, so pass B never runs.
func (ctx *Context) step6DisasmPassA() (anyFailure bool, err error) {
	stream := disasm.NewStream(ctx.code, ctx.baseAddr, ctx.baseOff, ctx.Cfg.Syntax)

	for !stream.Done() {
		inst, failed := stream.Next()
		if failed {
			anyFailure = true
			diag.Warnf(ctx.Cfg.NoWarnings, "decode failure at offset 0x%x, resynchronising", ctx.baseOff+uint64(stream.Pos()))
			if ctx.Cfg.Sync > 0 {
				stream.Resync(ctx.Cfg.Sync)
			}
			continue
		}

		loc := rule.NewLocation(inst.Offset, uint8(inst.Size()))
		if !ctx.notify {
			loc = ctx.matchInstruction(loc, inst)
		}
		ctx.locations = append(ctx.locations, loc)
	}
	return anyFailure, nil
}

// step7DisasmPassB re-disassembles every Location from its recorded
// (offset, size) once notify is set, invoking plugin instr hooks (the
// reason this pass exists) before re-running plugin match and rule
// matching, overwriting each Location's action index.
func (ctx *Context) step7DisasmPassB() error {
	for i, loc := range ctx.locations {
		buf := make([]byte, loc.Size())
		if _, err := ctx.ELF.ReadAt(buf, int64(loc.Offset())); err != nil {
			return diag.New(diag.Disasm, "pass B read at offset 0x%x: %v", loc.Offset(), err)
		}
		addr := ctx.baseAddr + (loc.Offset() - ctx.baseOff)
		inst, derr := disasm.Decode(buf, addr, loc.Offset(), ctx.Cfg.Syntax)
		if derr != nil {
			return diag.New(diag.Disasm, "pass B decode at 0x%x: %v", addr, derr)
		}

		raw := ctx.operandRawPtr(inst)
		ctx.Plugins.ForEachWithInstr(func(p *pluginreg.Plugin) {
			p.Instr(inst.Addr, raw, uint32(inst.Size()))
		})

		ctx.locations[i] = ctx.matchInstruction(loc, inst)
	}
	return nil
}

// matchInstruction runs every registered match-hook plugin (so
// entry.Plugin.LastResult is fresh for KindPlugin comparisons), then the
// compiled action vector in order, stopping at the first match, per
// "first match wins."
func (ctx *Context) matchInstruction(loc rule.Location, inst disasm.Inst) rule.Location {
	raw := ctx.operandRawPtr(inst)
	ctx.Plugins.ForEachWithMatch(func(p *pluginreg.Plugin) {
		p.Match(inst.Addr, raw, uint32(inst.Size()))
	})

	for _, a := range ctx.Comp.Actions() {
		if ctx.Eval.Eval(a, inst) {
			return loc.WithPatch(true).WithAction(a.Index)
		}
	}

	if ctx.Cfg.TrapAll {
		if idx, ok := ctx.trapActionIndex(); ok {
			return loc.WithPatch(true).WithAction(idx)
		}
	}
	return loc
}

func (ctx *Context) trapActionIndex() (int, bool) {
	for _, a := range ctx.Comp.Actions() {
		if a.Kind == rule.ActionTrap {
			return a.Index, true
		}
	}
	return 0, false
}
