// Package disasm decodes x86_64 machine code for the rewrite pipeline's
// two disassembly passes, and exposes the operand introspection the match
// evaluator needs (op/src/dst/imm/reg/mem accessors).
package disasm

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// Syntax selects the assembly text rendering, per --syntax {ATT,intel}.
type Syntax int

const (
	SyntaxATT Syntax = iota
	SyntaxIntel
)

// OperandKind mirrors the numeric encoding spec.md §4.4 assigns to the
// `type` field selector: IMM=1, REG=2, MEM=3.
type OperandKind int

const (
	OperandNone OperandKind = 0
	OperandImm  OperandKind = 1
	OperandReg  OperandKind = 2
	OperandMem  OperandKind = 3
)

// Operand is one introspected operand of a decoded instruction.
type Operand struct {
	Kind      OperandKind
	SizeBytes int
	Read      bool
	Write     bool
}

// Inst is a decoded x86_64 instruction.
type Inst struct {
	Addr   uint64
	Offset uint64 // file offset within the code section
	Bytes  []byte
	inner  x86asm.Inst
	text   string

	operands []Operand
}

// Decode decodes a single instruction at addr/offset from data, which
// must contain at least one valid instruction at its start (up to 15
// bytes are consulted, x86_64's maximum instruction length).
func Decode(data []byte, addr, offset uint64, syntax Syntax) (Inst, error) {
	inner, err := x86asm.Decode(data, 64)
	if err != nil {
		return Inst{}, fmt.Errorf("disasm: decode at 0x%x: %w", addr, err)
	}
	n := inner.Len
	if n > len(data) {
		n = len(data)
	}
	inst := Inst{
		Addr:   addr,
		Offset: offset,
		Bytes:  append([]byte(nil), data[:n]...),
		inner:  inner,
	}
	inst.text = renderSyntax(inner, addr, syntax)
	inst.operands = buildOperands(inner)
	return inst, nil
}

func renderSyntax(inst x86asm.Inst, addr uint64, syntax Syntax) string {
	if syntax == SyntaxIntel {
		return x86asm.IntelSyntax(inst, addr, nil)
	}
	return x86asm.GNUSyntax(inst, addr, nil)
}

// Size is the instruction's byte length, 1..15.
func (i Inst) Size() int { return len(i.Bytes) }

// Text is the full rendered "mnemonic operands" string.
func (i Inst) Text() string { return i.text }

// Mnemonic is the bare opcode mnemonic, lowercased, with no operands.
func (i Inst) Mnemonic() string {
	return strings.ToLower(i.inner.Op.String())
}

// Operands returns the introspected operand list (best-effort: x86
// read/write classification for two-operand forms assumes the first
// operand is the destination, matching how x86asm orders Args for the
// common encodings; the rare exceptions, e.g. CMP/TEST having no true
// destination, are Non-goals per spec.md's explicit exclusion of
// instruction-semantics simulation).
func (i Inst) Operands() []Operand { return i.operands }

func buildOperands(inst x86asm.Inst) []Operand {
	var ops []Operand
	for idx, a := range inst.Args {
		if a == nil {
			break
		}
		op := Operand{Write: idx == 0, Read: idx != 0}
		switch v := a.(type) {
		case x86asm.Imm:
			op.Kind = OperandImm
			op.Read = true
			op.Write = false
			op.SizeBytes = immSize(v)
		case x86asm.Reg:
			op.Kind = OperandReg
			op.SizeBytes = regSize(v)
		case x86asm.Mem:
			op.Kind = OperandMem
			op.Read = true // conservative: memory operands are at least read
			op.SizeBytes = 0
		case x86asm.Rel:
			op.Kind = OperandImm
			op.Read = true
			op.Write = false
			op.SizeBytes = 8
		default:
			continue
		}
		ops = append(ops, op)
	}
	return ops
}

func immSize(v x86asm.Imm) int {
	switch {
	case v >= -128 && v <= 127:
		return 1
	case v >= -32768 && v <= 32767:
		return 2
	case v >= -(1<<31) && v <= (1<<31)-1:
		return 4
	default:
		return 8
	}
}

func regSize(r x86asm.Reg) int {
	name := strings.ToLower(r.String())
	switch {
	case strings.HasPrefix(name, "r") && !strings.HasSuffix(name, "d") && !strings.HasSuffix(name, "w") && !strings.HasSuffix(name, "b"):
		return 8
	case strings.HasSuffix(name, "d") || strings.HasPrefix(name, "e"):
		return 4
	case strings.HasSuffix(name, "w"):
		return 2
	case strings.HasSuffix(name, "b") || strings.HasSuffix(name, "l") || strings.HasSuffix(name, "h"):
		return 1
	default:
		return 8
	}
}

// IsCall reports whether the instruction is a call-group instruction.
func (i Inst) IsCall() bool { return strings.HasPrefix(i.opUpper(), "CALL") }

// IsJump reports whether the instruction is a jump-group instruction
// (conditional or unconditional).
func (i Inst) IsJump() bool { return strings.HasPrefix(i.opUpper(), "J") }

// IsReturn reports whether the instruction is a return-group instruction.
func (i Inst) IsReturn() bool {
	op := i.opUpper()
	return strings.HasPrefix(op, "RET") || strings.HasPrefix(op, "IRET")
}

func (i Inst) opUpper() string { return strings.ToUpper(i.inner.Op.String()) }
