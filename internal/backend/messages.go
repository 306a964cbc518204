// Package backend implements the back-end protocol of spec.md §6: the
// message stream the core pipeline emits, and the sinks (JSON, a spawned
// back-end process, and the output patch's compressed framing) that
// deliver it. The core depends only on the Sink interface; everything
// concrete here is the "external collaborator" the spec leaves unspecified.
package backend

import "encoding/gob"

func init() {
	// gob only encodes/decodes a concrete type through an interface field
	// (frame.Msg) once it has been registered.
	gob.Register(BinaryRegistration{})
	gob.Register(ELFFile{})
	gob.Register(Trampoline{})
	gob.Register(Instruction{})
	gob.Register(Patch{})
	gob.Register(Emit{})
}

// Mode mirrors elfinfo.Mode without importing it, avoiding a dependency
// cycle (elfinfo is a leaf package the pipeline also consumes directly).
type Mode string

const (
	ModeExecutable Mode = "executable"
	ModeShared     Mode = "shared"
)

// BinaryRegistration is the first message of every session: the rewrite
// target's mode and filename.
type BinaryRegistration struct {
	Mode     Mode   `json:"mode"`
	Filename string `json:"filename"`
}

// ELFFile registers one distinct callee ELF file referenced by a `call`
// action's `@lib` suffix, sent once per distinct file before any
// trampoline that calls into it.
type ELFFile struct {
	Path    string `json:"path"`
	LoadVA  uint64 `json:"load_va"`  // free address chosen for this callee image
	FileLen int64  `json:"file_len"`
}

// ArgDescriptor is one trampoline-argument slot's static shape, per
// spec.md §4.5: "the full argument descriptor (kind, by-pointer,
// duplicate, value, basename)".
type ArgDescriptor struct {
	Kind      string `json:"kind"`
	ByPointer bool   `json:"by_pointer,omitempty"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Value     int64  `json:"value,omitempty"`
	Basename  string `json:"basename,omitempty"`
}

// Trampoline defines one distinct call/plugin/print/passthru/trap
// trampoline, sent once per distinct trampoline name before any
// instruction message references it.
type Trampoline struct {
	Name    string          `json:"name"`
	Kind    string          `json:"kind"` // "call", "plugin", "print", "passthru", "trap"
	Symbol  string          `json:"symbol,omitempty"`
	ELFPath string          `json:"elf_path,omitempty"`
	Clean   bool            `json:"clean"`
	Place   string          `json:"place"` // "before", "after", "replace", "conditional"
	Args    []ArgDescriptor `json:"args,omitempty"`
}

// Instruction carries one disassembled instruction the back-end must
// account for in its mapping table, whether or not it is patched.
type Instruction struct {
	Addr   uint64 `json:"addr"`
	Offset uint64 `json:"offset"`
	Size   int    `json:"size"`
	Text   string `json:"text,omitempty"`
}

// ArgValue is one resolved call-site argument, built from rule.Argument
// at emission time: Int for any numeric kind, Str for the asm-text kind.
type ArgValue struct {
	Kind string `json:"kind"`
	Int  int64  `json:"int,omitempty"`
	Str  string `json:"str,omitempty"`
}

// Patch directs the back-end to rewrite the instruction at Addr via the
// named trampoline, carrying the action's bound argument values.
type Patch struct {
	Addr           uint64     `json:"addr"`
	TrampolineName string     `json:"trampoline_name"`
	Args           []ArgValue `json:"args,omitempty"`
}

// Emit is the final message: where to write the output and in what
// format, plus the mapping-table granularity.
type Emit struct {
	OutputPath  string `json:"output_path"`
	Format      string `json:"format"`
	Granularity uint64 `json:"granularity"`
}
