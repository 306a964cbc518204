package rule

import (
	"fmt"
	"math/rand"
	"regexp"

	"binrewrite/internal/csvtable"
	"binrewrite/internal/diag"
	"binrewrite/internal/dsl"
	"binrewrite/internal/pluginreg"
)

var attributeKinds = map[string]MatchKind{
	"true": KindTrue, "false": KindFalse, "plugin": KindPlugin,
	"asm": KindAsm, "mnemonic": KindMnemonic, "addr": KindAddr,
	"call": KindCall, "jump": KindJump, "offset": KindOffset,
	"random": KindRandom, "return": KindReturn, "size": KindSize,
	"op": KindOp, "src": KindSrc, "dst": KindDst,
	"imm": KindImm, "reg": KindReg, "mem": KindMem,
}

var fieldSelectors = map[string]Field{
	"size": FieldSize, "type": FieldType, "read": FieldRead, "write": FieldWrite,
}

var argKindByIdent = map[string]ArgKind{
	"addr": ArgAddr, "base": ArgBase, "offset": ArgOffset, "next": ArgNextAddr,
	"static": ArgStaticAddr, "target": ArgTrampolineAddr, "random": ArgRandom,
	"bytes": ArgInstrBytes, "size": ArgInstrSize,
	"asm": ArgAsmStr, "asmlen": ArgAsmLen, "asmbuf": ArgAsmBufSize,
	"op": ArgOp, "src": ArgSrc, "dst": ArgDst, "imm": ArgImm, "reg": ArgReg, "mem": ArgMem,
}

func operandMatchKind(k MatchKind) bool {
	switch k {
	case KindOp, KindSrc, KindDst, KindImm, KindReg, KindMem:
		return true
	default:
		return false
	}
}

func operandArgKind(k ArgKind) bool {
	switch k {
	case ArgOp, ArgSrc, ArgDst, ArgImm, ArgReg, ArgMem:
		return true
	default:
		return false
	}
}

// Compiler turns DSL AST nodes into the compiled rule model, threading the
// global-but-explicit state spec.md §9 calls for (detail, notify flags,
// plugin registry, trampoline name table, RNG) through a single context
// record instead of package-level globals. CSV tables are memoised
// separately, in package csvtable's own package-level cache.
type Compiler struct {
	Plugins *pluginreg.Registry
	RNG     *rand.Rand

	Detail bool // true iff any compiled rule needs detailed disassembly
	Notify bool // true iff any compiled rule forces the notification pass

	pending    []*MatchEntry // accumulator, reset after each Action
	actions    []*Action
	trampNames map[string]bool
	csvBound   map[string]string // basename -> match source, for sibling-match CSV-bound USER arg validation
}

// NewCompiler builds a Compiler seeded for reproducible RNG draws, per
// spec.md §5 ("The RNG is process-global with a fixed seed").
func NewCompiler(plugins *pluginreg.Registry, seed int64) *Compiler {
	return &Compiler{
		Plugins:    plugins,
		RNG:        rand.New(rand.NewSource(seed)),
		trampNames: make(map[string]bool),
		csvBound:   make(map[string]string),
	}
}

// Actions returns the compiled action vector in declaration order.
func (c *Compiler) Actions() []*Action { return c.actions }

// PendingMatches reports whether a `--match` clause has accumulated
// without a following `--action`, a configuration error the driver must
// reject at end of argument processing.
func (c *Compiler) PendingMatches() bool { return len(c.pending) > 0 }

// CompileMatch compiles one `--match` AST into a MatchEntry and appends it
// to the free-floating accumulator (spec.md §3 lifecycle: "Matches are
// accumulated as a free-floating vector until the next Action is parsed").
func (c *Compiler) CompileMatch(ast *dsl.MatchAST) error {
	kind, ok := attributeKinds[ast.Attribute]
	if !ok {
		return diag.NewAt(diag.Parse, "matching", ast.Offset, ast.Attribute, "unknown attribute %q", ast.Attribute)
	}

	e := &MatchEntry{
		Source:       ast.Source,
		Kind:         kind,
		OperandIndex: AggregateOperand,
		Cmp:          ast.Cmp,
	}

	if ast.Index != nil {
		e.OperandIndex = *ast.Index
	}
	if ast.Field != "" {
		f, ok := fieldSelectors[ast.Field]
		if !ok {
			return diag.NewAt(diag.Parse, "matching", ast.Offset, ast.Field, "unknown field selector %q", ast.Field)
		}
		e.Field = f
	}

	if operandMatchKind(kind) {
		c.Detail = true
	}

	if kind == KindPlugin {
		p, err := c.Plugins.Load(ast.PluginRef)
		if err != nil {
			return err
		}
		if err := pluginreg.RequireMatchHook(p); err != nil {
			return err
		}
		e.Plugin = p
		c.Detail = true
	}

	if kind == KindAsm || kind == KindMnemonic {
		if ast.Cmp != dsl.CmpEq && ast.Cmp != dsl.CmpNeq {
			return diag.NewAt(diag.Parse, "matching", ast.Offset, ast.Attribute, "%s matches accept only == or !=", ast.Attribute)
		}
	}

	switch ast.Value {
	case dsl.ValueNone:
		e.Payload = PayloadNone
	case dsl.ValueRegex:
		re, err := regexp.Compile(ast.Regex)
		if err != nil {
			return diag.NewAt(diag.Parse, "matching", ast.Offset, ast.Regex, "invalid regex: %v", err)
		}
		e.Payload = PayloadRegex
		e.Regex = re
	case dsl.ValueInts:
		e.Payload = PayloadIntSet
		e.IntSet = csvtable.NewOrderedSetFrom(ast.Ints)
	case dsl.ValueCSV:
		table, err := csvtable.Load(ast.CSVBase)
		if err != nil {
			return err
		}
		set, err := table.OrderedSet(ast.CSVCol)
		if err != nil {
			return err
		}
		e.Payload = PayloadIntSet
		e.IntSet = set
		e.CSVBase = ast.CSVBase
		e.CSVKeyCol = ast.CSVCol
		c.csvBound[ast.CSVBase] = ast.Source
	}

	c.pending = append(c.pending, e)
	return nil
}

// CompileAction compiles one `--action` AST together with the pending
// match accumulator into an Action, transferring ownership of the pending
// vector and resetting it (spec.md §3 lifecycle).
func (c *Compiler) CompileAction(ast *dsl.ActionAST) (*Action, error) {
	if len(c.actions) >= MaxActions-1 { // one slot reserved for ActionSentinel
		return nil, diag.New(diag.Config, "action count exceeds the %d-action cap", MaxActions-1)
	}

	a := &Action{
		Source:  ast.Source,
		Index:   len(c.actions),
		Matches: c.pending,
	}
	c.pending = nil

	if err := c.compileKind(a, ast); err != nil {
		return nil, err
	}

	a.TrampolineName = trampolineName(a)
	c.trampNames[a.TrampolineName] = true

	c.actions = append(c.actions, a)
	return a, nil
}

func (c *Compiler) compileKind(a *Action, ast *dsl.ActionAST) error {
	switch ast.Kind {
	case "passthru":
		a.Kind = ActionPassthru
	case "print":
		a.Kind = ActionPrint
	case "trap":
		a.Kind = ActionTrap
	case "plugin":
		a.Kind = ActionPlugin
		p, err := c.Plugins.Load(ast.PluginName)
		if err != nil {
			return err
		}
		a.Plugin = p
		a.CalleeFile = ast.PluginName
		c.Detail = true
		if p.HasInstr() {
			c.Notify = true
		}
	case "call":
		a.Kind = ActionCall
		if err := c.compileCall(a, ast); err != nil {
			return err
		}
	default:
		return diag.NewAt(diag.Parse, "action", ast.Offset, ast.Kind, "unknown action kind %q", ast.Kind)
	}
	return nil
}

func (c *Compiler) compileCall(a *Action, ast *dsl.ActionAST) error {
	a.Symbol = ast.Symbol
	a.CalleeFile = ast.File
	a.Clean = true // default clean unless `naked` flag given
	a.Place = PlacementBefore

	var placements int
	for _, f := range ast.Flags {
		switch f {
		case "clean":
			a.Clean = true
		case "naked":
			a.Clean = false
		case "before":
			a.Place = PlacementBefore
			placements++
		case "after":
			a.Place = PlacementAfter
			placements++
		case "replace":
			a.Place = PlacementReplace
			placements++
		case "conditional":
			a.Place = PlacementConditional
			placements++
		}
	}
	if placements > 1 {
		return diag.NewAt(diag.Config, "action", ast.Offset, ast.Source, "an action may not carry more than one placement flag")
	}
	if hasFlag(ast.Flags, "clean") && hasFlag(ast.Flags, "naked") {
		return diag.NewAt(diag.Config, "action", ast.Offset, ast.Source, "an action may not carry both clean and naked")
	}

	seenKinds := make(map[ArgKind]bool)
	if len(ast.Args) > MaxTrampolineArgs {
		return diag.NewAt(diag.Config, "action", ast.Offset, ast.Source, "call has %d arguments, exceeds the %d-argument trampoline limit", len(ast.Args), MaxTrampolineArgs)
	}
	for _, argAST := range ast.Args {
		arg, err := c.compileArg(argAST)
		if err != nil {
			return err
		}
		if seenKinds[arg.Kind] {
			arg.Duplicate = true
		}
		seenKinds[arg.Kind] = true
		a.Args = append(a.Args, arg)
	}
	return nil
}

func hasFlag(flags []string, name string) bool {
	for _, f := range flags {
		if f == name {
			return true
		}
	}
	return false
}

func (c *Compiler) compileArg(ast dsl.ArgAST) (*Argument, error) {
	arg := &Argument{ByPointer: ast.ByPointer}

	if ast.IsIntLit {
		arg.Kind = ArgInt
		arg.IntValue = *ast.IntLit
		return arg, nil
	}

	if k, ok := argKindByIdent[ast.Ident]; ok {
		arg.Kind = k
		if operandArgKind(k) {
			c.Detail = true
			if ast.Index == nil {
				return nil, diag.NewAt(diag.Parse, "action", ast.Offset, ast.Ident, "%s argument requires an operand index [i]", ast.Ident)
			}
			arg.OperandIndex = *ast.Index
		}
		if k == ArgNextAddr || k == ArgTrampolineAddr {
			c.Detail = true
		}
		return arg, nil
	}

	if id, ok := LookupRegister(ast.Ident); ok {
		arg.Kind = ArgNamedReg
		arg.Register = id
		return arg, nil
	}

	// Fall through: a bare identifier referencing a CSV basename bound by
	// a sibling match clause, per spec.md §4.1: "a bare identifier matches
	// a CSV basename previously bound by a sibling match clause and
	// becomes a USER argument."
	src, bound := c.csvBound[ast.Ident]
	if !bound {
		return nil, diag.NewAt(diag.Parse, "action", ast.Offset, ast.Ident, "%q is not a register, a known argument keyword, or a CSV basename bound by a prior --match", ast.Ident)
	}
	_ = src // bound match's source, available for future diagnostics
	arg.Kind = ArgUser
	arg.CSVBasename = ast.Ident
	if ast.Index != nil {
		arg.CSVColumn = *ast.Index
	}
	return arg, nil
}

func trampolineName(a *Action) string {
	switch a.Kind {
	case ActionPassthru:
		return "passthru"
	case ActionPrint:
		return "print"
	case ActionTrap:
		return "trap"
	case ActionPlugin:
		return fmt.Sprintf("plugin_%s", baseName(a.CalleeFile))
	case ActionCall:
		conv := "naked"
		if a.Clean {
			conv = "clean"
		}
		return fmt.Sprintf("call_%s_%s_%s_%s", conv, placementName(a.Place), a.Symbol, baseName(a.CalleeFile))
	default:
		return "unknown"
	}
}

func placementName(p Placement) string {
	switch p {
	case PlacementBefore:
		return "before"
	case PlacementAfter:
		return "after"
	case PlacementReplace:
		return "replace"
	case PlacementConditional:
		return "conditional"
	default:
		return "before"
	}
}

func baseName(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[i+1:]
		}
	}
	return path
}
