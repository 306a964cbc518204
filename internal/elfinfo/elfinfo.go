// Package elfinfo provides ELF loading helpers for the x86_64 rewrite
// target: section/segment lookup, symbol resolution, and the free-address
// allocator used when registering callee ELF files with the back-end.
package elfinfo

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
)

var (
	ErrNotELF    = errors.New("elfinfo: not an ELF file")
	ErrNot64Bit  = errors.New("elfinfo: not 64-bit ELF")
	ErrNotX86_64 = errors.New("elfinfo: not x86_64 (EM_X86_64)")
	ErrNoSymbol  = errors.New("elfinfo: symbol not found")
	ErrNoSegment = errors.New("elfinfo: no PT_LOAD segment covers address")
	ErrNoSection = errors.New("elfinfo: section not found")
)

// Mode is the rewrite target's ELF mode, inferred or forced via
// --shared/--executable.
type Mode int

const (
	ModeExecutable Mode = iota
	ModeShared
)

func (m Mode) String() string {
	if m == ModeShared {
		return "shared"
	}
	return "executable"
}

// File wraps a debug/elf.File with convenience methods for x86_64 rewrite
// targets.
type File struct {
	ELF  *elf.File
	Path string
	raw  io.ReaderAt
	size int64
}

// Open validates and wraps an x86_64 ELF file.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("elfinfo: open: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("elfinfo: stat: %w", err)
	}

	ef, err := elf.NewFile(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", ErrNotELF, err)
	}
	if ef.Class != elf.ELFCLASS64 {
		ef.Close()
		return nil, ErrNot64Bit
	}
	if ef.Machine != elf.EM_X86_64 {
		ef.Close()
		return nil, ErrNotX86_64
	}

	return &File{ELF: ef, Path: path, raw: f, size: info.Size()}, nil
}

// Close releases resources.
func (f *File) Close() error { return f.ELF.Close() }

// FileSize returns the underlying file's size.
func (f *File) FileSize() int64 { return f.size }

var libSOPattern = regexp.MustCompile(`^lib[^/]*\.so(\.[0-9]+)*$`)

// InferMode implements the ELF mode inference of spec.md §4.6 step 1: a
// dynamic ELF whose filename matches `[PATH/]lib*.so[.VERSION]` is treated
// as a shared object, otherwise an executable.
func (f *File) InferMode() Mode {
	if f.ELF.Type != elf.ET_DYN {
		return ModeExecutable
	}
	if libSOPattern.MatchString(filepath.Base(f.Path)) {
		return ModeShared
	}
	return ModeExecutable
}

// CodeSection locates the executable code section, conventionally .text.
func (f *File) CodeSection() (*elf.Section, error) {
	for _, s := range f.ELF.Sections {
		if s.Flags&elf.SHF_EXECINSTR != 0 && s.Type == elf.SHT_PROGBITS {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: no SHF_EXECINSTR section", ErrNoSection)
}

// Symbol resolves a dynamic or static symbol by exact name.
func (f *File) Symbol(name string) (addr, size uint64, err error) {
	if syms, serr := f.ELF.Symbols(); serr == nil {
		if addr, size, err = f.lookupIn(syms, name); err == nil {
			return addr, size, nil
		}
	}
	syms, serr := f.ELF.DynamicSymbols()
	if serr != nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrNoSymbol, name)
	}
	return f.lookupIn(syms, name)
}

func (f *File) lookupIn(syms []elf.Symbol, name string) (uint64, uint64, error) {
	for _, s := range syms {
		if s.Name == name {
			return s.Value, s.Size, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: %s", ErrNoSymbol, name)
}

// VAToFileOffset converts a virtual address to a file offset via PT_LOAD
// segments.
func (f *File) VAToFileOffset(va uint64) (uint64, error) {
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if va >= p.Vaddr && va < p.Vaddr+p.Memsz {
			off := va - p.Vaddr + p.Off
			if off >= uint64(f.size) {
				return 0, fmt.Errorf("elfinfo: VA 0x%x maps to offset 0x%x beyond file size 0x%x", va, off, f.size)
			}
			return off, nil
		}
	}
	return 0, fmt.Errorf("%w: VA 0x%x", ErrNoSegment, va)
}

// ReadAt reads raw bytes at a file offset.
func (f *File) ReadAt(buf []byte, off int64) (int, error) {
	return f.raw.ReadAt(buf, off)
}

// HighestVA returns the highest virtual address mapped by any PT_LOAD
// segment, the basis for the callee-ELF free-address allocator.
func (f *File) HighestVA() uint64 {
	var max uint64
	for _, p := range f.ELF.Progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if end := p.Vaddr + p.Memsz; end > max {
			max = end
		}
	}
	return max
}

const pageSize = 0x1000

// PageAlign rounds v up to the next page boundary.
func PageAlign(v uint64) uint64 {
	return (v + pageSize - 1) &^ (pageSize - 1)
}
