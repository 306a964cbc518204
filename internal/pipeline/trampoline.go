package pipeline

import (
	"binrewrite/internal/backend"
	"binrewrite/internal/diag"
	"binrewrite/internal/elfinfo"
	"binrewrite/internal/rule"
)

// step4TrampolinePreload walks the statically compiled action vector —
// known in full before any instruction is decoded — and emits exactly
// one trampoline definition per distinct name, loading and registering
// each distinct callee ELF on first reference, per spec.md §4.5.
func (ctx *Context) step4TrampolinePreload() error {
	for _, a := range ctx.Comp.Actions() {
		if ctx.trampSent[a.TrampolineName] {
			continue
		}

		if a.Kind == rule.ActionCall {
			if err := ctx.ensureCalleeELF(a.CalleeFile); err != nil {
				return err
			}
		}

		msg := backend.Trampoline{
			Name:   a.TrampolineName,
			Kind:   trampolineKind(a.Kind),
			Symbol: a.Symbol,
			Clean:  a.Clean,
			Place:  placementName(a.Place),
		}
		if a.Kind == rule.ActionCall {
			msg.ELFPath = a.CalleeFile
		}
		for _, arg := range a.Args {
			msg.Args = append(msg.Args, argDescriptor(arg))
		}

		if err := ctx.Sink.DefineTrampoline(msg); err != nil {
			return err
		}
		ctx.trampSent[a.TrampolineName] = true
	}
	return nil
}

// ensureCalleeELF loads path once, computing its free-address placement
// (page-aligned, leaving a guard gap of at least 8 pages past the
// previous allocation), and registers it with the back-end.
func (ctx *Context) ensureCalleeELF(path string) error {
	if _, ok := ctx.calleeELFs[path]; ok {
		return nil
	}
	if ctx.nextFreeVA == 0 {
		ctx.nextFreeVA = elfinfo.PageAlign(ctx.ELF.HighestVA()) + guardGap
	}

	f, err := elfinfo.Open(path)
	if err != nil {
		return diag.New(diag.Resolve, "callee ELF %q: %v", path, err)
	}
	ctx.calleeELFs[path] = f

	loadVA := ctx.nextFreeVA
	ctx.nextFreeVA = elfinfo.PageAlign(loadVA+uint64(f.FileSize())) + guardGap

	return ctx.Sink.RegisterELFFile(backend.ELFFile{
		Path:    path,
		LoadVA:  loadVA,
		FileLen: f.FileSize(),
	})
}

func trampolineKind(k rule.ActionKind) string {
	switch k {
	case rule.ActionCall:
		return "call"
	case rule.ActionPlugin:
		return "plugin"
	case rule.ActionPrint:
		return "print"
	case rule.ActionPassthru:
		return "passthru"
	case rule.ActionTrap:
		return "trap"
	default:
		return "unknown"
	}
}

func placementName(p rule.Placement) string {
	switch p {
	case rule.PlacementBefore:
		return "before"
	case rule.PlacementAfter:
		return "after"
	case rule.PlacementReplace:
		return "replace"
	case rule.PlacementConditional:
		return "conditional"
	default:
		return "before"
	}
}

func argDescriptor(a *rule.Argument) backend.ArgDescriptor {
	d := backend.ArgDescriptor{
		Kind:      argKindName(a.Kind),
		ByPointer: a.ByPointer,
		Duplicate: a.Duplicate,
		Basename:  a.CSVBasename,
	}
	if a.Kind == rule.ArgInt {
		d.Value = a.IntValue
	}
	return d
}

func argKindName(k rule.ArgKind) string {
	switch k {
	case rule.ArgAddr:
		return "addr"
	case rule.ArgBase:
		return "base"
	case rule.ArgOffset:
		return "offset"
	case rule.ArgNextAddr:
		return "next"
	case rule.ArgStaticAddr:
		return "static"
	case rule.ArgTrampolineAddr:
		return "target"
	case rule.ArgRandom:
		return "random"
	case rule.ArgInstrBytes:
		return "bytes"
	case rule.ArgInstrSize:
		return "size"
	case rule.ArgAsmStr:
		return "asm"
	case rule.ArgAsmLen:
		return "asmlen"
	case rule.ArgAsmBufSize:
		return "asmbuf"
	case rule.ArgOp:
		return "op"
	case rule.ArgSrc:
		return "src"
	case rule.ArgDst:
		return "dst"
	case rule.ArgImm:
		return "imm"
	case rule.ArgReg:
		return "reg"
	case rule.ArgMem:
		return "mem"
	case rule.ArgNamedReg:
		return "named_reg"
	case rule.ArgInt:
		return "int"
	case rule.ArgUser:
		return "user"
	default:
		return "unknown"
	}
}
