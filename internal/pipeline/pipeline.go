// Package pipeline runs the rewrite pipeline of spec.md §4.6: ELF mode
// inference, back-end handshake, plugin lifecycle, range trim, the two
// disassembly passes, reverse-order emission, and final output framing.
// All state lives in a *Context threaded explicitly through each step,
// per the REDESIGN FLAG against true globals.
package pipeline

import (
	"unsafe"

	"binrewrite/internal/backend"
	"binrewrite/internal/diag"
	"binrewrite/internal/disasm"
	"binrewrite/internal/elfinfo"
	"binrewrite/internal/evaluator"
	"binrewrite/internal/pluginreg"
	"binrewrite/internal/rule"
)

// guardGap is the minimum page gap spec.md §4.5 requires between a
// callee ELF's loaded image and the next free address region.
const guardGap = 8 * 0x1000

// maxJumpReach is |Δaddr| ≤ INT8_MAX + 2 + 15, the neighbor-reach bound
// of spec.md §4.6 step 8: a one-byte relative jump's furthest possible
// target plus the longest instruction that could precede it.
const maxJumpReach = 127 + 2 + 15

// Config carries the driver-resolved settings the pipeline needs beyond
// the rule model itself.
type Config struct {
	Mode             elfinfo.Mode
	ModeForced       bool
	Syntax           disasm.Syntax
	Sync             int
	NoWarnings       bool
	Debug            bool
	TrapAll          bool
	StartSpec        string
	EndSpec          string
	OutputPath       string
	Format           string
	CompressionLevel int
}

// Context is the pipeline's explicit state record.
type Context struct {
	ELF     *elfinfo.File
	Sink    backend.Sink
	Plugins *pluginreg.Registry
	Comp    *rule.Compiler
	Eval    *evaluator.Evaluator
	Tracer  *diag.Tracer
	Cfg     Config

	mode elfinfo.Mode

	baseAddr uint64
	baseOff  uint64
	codeLen  uint64
	code     []byte

	locations []rule.Location

	trampSent  map[string]bool
	calleeELFs map[string]*elfinfo.File
	nextFreeVA uint64

	detail bool
	notify bool
}

// New builds a pipeline Context ready to Run.
func New(elfFile *elfinfo.File, plugins *pluginreg.Registry, comp *rule.Compiler, eval *evaluator.Evaluator, tracer *diag.Tracer, cfg Config) *Context {
	return &Context{
		ELF:        elfFile,
		Plugins:    plugins,
		Comp:       comp,
		Eval:       eval,
		Tracer:     tracer,
		Cfg:        cfg,
		trampSent:  make(map[string]bool),
		calleeELFs: make(map[string]*elfinfo.File),
		detail:     comp.Detail,
		notify:     comp.Notify,
	}
}

// Run executes the full pipeline, sending the complete back-end protocol
// stream to ctx.Sink.
func (ctx *Context) Run() error {
	if err := ctx.step1Mode(); err != nil {
		return err
	}
	if err := ctx.step2Handshake(); err != nil {
		return err
	}
	ctx.step3PluginInit()
	if err := ctx.step4TrampolinePreload(); err != nil {
		return err
	}
	if err := ctx.step5RangeTrim(); err != nil {
		return err
	}
	anyFailure, err := ctx.step6DisasmPassA()
	if err != nil {
		return err
	}
	if ctx.Cfg.Sync == 0 && anyFailure {
		return diag.New(diag.Disasm, "decode failures occurred and --sync was not given")
	}
	if ctx.notify {
		if err := ctx.step7DisasmPassB(); err != nil {
			return err
		}
	}
	if err := ctx.step8ReverseEmission(); err != nil {
		return err
	}
	return ctx.step9Finish()
}

func (ctx *Context) step1Mode() error {
	if ctx.Cfg.ModeForced {
		ctx.mode = ctx.Cfg.Mode
		return nil
	}
	ctx.mode = ctx.ELF.InferMode()
	return nil
}

func (ctx *Context) step2Handshake() error {
	return ctx.Sink.RegisterBinary(backend.BinaryRegistration{
		Mode:     backend.Mode(ctx.mode.String()),
		Filename: ctx.ELF.Path,
	})
}

func (ctx *Context) step3PluginInit() {
	ctx.Plugins.InitAll()
}

func (ctx *Context) operandRawPtr(inst disasm.Inst) uintptr {
	if len(inst.Bytes) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&inst.Bytes[0]))
}
