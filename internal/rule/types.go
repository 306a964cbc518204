// Package rule is the in-memory, compiled representation of matches,
// actions, and their bound arguments — the sum-type model spec.md §9
// calls for instead of an inheritance hierarchy.
package rule

import (
	"regexp"

	"binrewrite/internal/csvtable"
	"binrewrite/internal/dsl"
	"binrewrite/internal/pluginreg"
)

// MaxActions bounds the action vector to what a 10-bit Location.Action
// field can index.
const MaxActions = 1024

// MaxTrampolineArgs bounds a trampoline's argument vector to the
// back-end ABI constant this module targets.
const MaxTrampolineArgs = 16

// MatchKind enumerates the atomic predicate kinds of spec.md §3.
type MatchKind int

const (
	KindTrue MatchKind = iota
	KindFalse
	KindPlugin
	KindAsm
	KindAddr
	KindCall
	KindJump
	KindMnemonic
	KindOffset
	KindRandom
	KindReturn
	KindSize
	KindOp
	KindSrc
	KindDst
	KindImm
	KindReg
	KindMem
)

// Field selects which property of an operand accessor is observed.
type Field int

const (
	FieldNone Field = iota
	FieldSize
	FieldType
	FieldRead
	FieldWrite
)

// AggregateOperand is the sentinel OperandIndex meaning "no [i] suffix was
// given" — the aggregate/whole-instruction form.
const AggregateOperand = -1

// MatchEntry is a compiled atomic predicate. At most one of Regex/IntSet
// is populated (neither for PayloadNone), selected by the Payload tag — a
// sum type, per spec.md §9.
type MatchEntry struct {
	Source       string
	Kind         MatchKind
	OperandIndex int // 0..7, or AggregateOperand
	Field        Field
	Cmp          dsl.CmpOp
	Plugin       *pluginreg.Plugin // set iff Kind == KindPlugin

	Payload    PayloadKind
	Regex      *regexp.Regexp
	IntSet     *csvtable.OrderedSet
	CSVBase    string // basename cross-referenced by a companion USER argument
	CSVKeyCol  int    // column this entry's value set was drawn from
}

// PayloadKind tags which variant of MatchEntry's payload is populated.
type PayloadKind int

const (
	PayloadNone PayloadKind = iota
	PayloadRegex
	PayloadIntSet
)

// ActionKind enumerates the rewrite directive kinds.
type ActionKind int

const (
	ActionCall ActionKind = iota
	ActionPassthru
	ActionPlugin
	ActionPrint
	ActionTrap
)

// Placement enumerates where a call action's trampoline executes relative
// to the matched instruction.
type Placement int

const (
	PlacementBefore Placement = iota
	PlacementAfter
	PlacementReplace
	PlacementConditional
)

// Action is a compiled rewrite directive: a conjunction of MatchEntry
// plus the dispatch metadata spec.md §3 and §4.5 describe.
type Action struct {
	Source string
	Index  int // position in the action vector; fits MaxActions

	Matches []*MatchEntry // conjunctive

	Kind           ActionKind
	TrampolineName string

	CalleeFile string
	Symbol     string
	CalleeELF  any // *elfinfo.File once loaded; any to avoid an import cycle with elfinfo

	Plugin        *pluginreg.Plugin
	PluginContext any

	Args  []*Argument
	Clean bool // true = clean call convention, false = naked
	Place Placement
}

// ArgKind enumerates Argument's kind tag.
type ArgKind int

const (
	ArgAddr ArgKind = iota
	ArgBase
	ArgOffset
	ArgNextAddr
	ArgStaticAddr
	ArgTrampolineAddr
	ArgRandom
	ArgInstrBytes
	ArgInstrSize
	ArgAsmStr
	ArgAsmLen
	ArgAsmBufSize
	ArgOp
	ArgSrc
	ArgDst
	ArgImm
	ArgReg
	ArgMem
	ArgNamedReg
	ArgInt
	ArgUser // CSV basename lookup
)

// Argument is one compiled call-site argument.
type Argument struct {
	Kind         ArgKind
	ByPointer    bool
	Duplicate    bool // true if an earlier argument in the same Action has the same Kind
	OperandIndex int  // for ArgOp/ArgSrc/ArgDst/ArgImm/ArgReg/ArgMem
	Register     RegisterID
	IntValue     int64
	CSVBasename  string
	CSVColumn    int
}
