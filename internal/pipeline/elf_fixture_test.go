package pipeline

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

// synthELF builds a minimal, internally consistent 64-bit x86_64 ELF for
// pipeline tests that need a real *elfinfo.File without a checked-in
// binary fixture, mirroring the technique elfinfo's own tests use.
func synthELF(t *testing.T, etype elf.Type, textVA uint64, code []byte, symName string, symVA uint64) []byte {
	t.Helper()

	const (
		ehdrSize = 64
		phdrSize = 56
		shdrSize = 64
		symSize  = 24
	)

	textOff := uint64(ehdrSize + phdrSize)
	textLen := uint64(len(code))

	symtabOff := textOff + textLen
	symtab := make([]byte, symSize*2)
	binary.LittleEndian.PutUint32(symtab[symSize+0:], 1)
	symtab[symSize+4] = (1 << 4) | 2
	binary.LittleEndian.PutUint64(symtab[symSize+8:], symVA)
	binary.LittleEndian.PutUint64(symtab[symSize+16:], 8)

	strtab := append([]byte{0}, append([]byte(symName), 0)...)
	strtabOff := symtabOff + uint64(len(symtab))

	shNames := []string{"", ".text", ".symtab", ".strtab", ".shstrtab"}
	var shstrtab []byte
	shNameOff := make([]uint32, len(shNames))
	for i, n := range shNames {
		shNameOff[i] = uint32(len(shstrtab))
		shstrtab = append(shstrtab, append([]byte(n), 0)...)
	}
	shstrtabOff := strtabOff + uint64(len(strtab))

	shoff := shstrtabOff + uint64(len(shstrtab))

	var buf bytes.Buffer
	buf.Grow(int(shoff) + shdrSize*5)

	ehdr := make([]byte, ehdrSize)
	copy(ehdr[0:4], "\x7fELF")
	ehdr[4] = 2
	ehdr[5] = 1
	ehdr[6] = 1
	binary.LittleEndian.PutUint16(ehdr[16:], uint16(etype))
	binary.LittleEndian.PutUint16(ehdr[18:], uint16(elf.EM_X86_64))
	binary.LittleEndian.PutUint32(ehdr[20:], 1)
	binary.LittleEndian.PutUint64(ehdr[24:], 0)
	binary.LittleEndian.PutUint64(ehdr[32:], ehdrSize)
	binary.LittleEndian.PutUint64(ehdr[40:], shoff)
	binary.LittleEndian.PutUint16(ehdr[52:], ehdrSize)
	binary.LittleEndian.PutUint16(ehdr[54:], phdrSize)
	binary.LittleEndian.PutUint16(ehdr[56:], 1)
	binary.LittleEndian.PutUint16(ehdr[58:], shdrSize)
	binary.LittleEndian.PutUint16(ehdr[60:], 5)
	binary.LittleEndian.PutUint16(ehdr[62:], 4)
	buf.Write(ehdr)

	phdr := make([]byte, phdrSize)
	binary.LittleEndian.PutUint32(phdr[0:], uint32(elf.PT_LOAD))
	binary.LittleEndian.PutUint32(phdr[4:], uint32(elf.PF_R|elf.PF_X))
	binary.LittleEndian.PutUint64(phdr[8:], 0)
	binary.LittleEndian.PutUint64(phdr[16:], textVA-textOff)
	binary.LittleEndian.PutUint64(phdr[24:], textVA-textOff)
	binary.LittleEndian.PutUint64(phdr[32:], shoff)
	binary.LittleEndian.PutUint64(phdr[40:], shoff)
	binary.LittleEndian.PutUint64(phdr[48:], 0x1000)
	buf.Write(phdr)

	buf.Write(code)
	buf.Write(symtab)
	buf.Write(strtab)
	buf.Write(shstrtab)

	writeShdr := func(nameIdx uint32, typ elf.SectionType, flags elf.SectionFlag, addr, off, size uint64, link, info uint32, entsize uint64) {
		sh := make([]byte, shdrSize)
		binary.LittleEndian.PutUint32(sh[0:], nameIdx)
		binary.LittleEndian.PutUint32(sh[4:], uint32(typ))
		binary.LittleEndian.PutUint64(sh[8:], uint64(flags))
		binary.LittleEndian.PutUint64(sh[16:], addr)
		binary.LittleEndian.PutUint64(sh[24:], off)
		binary.LittleEndian.PutUint64(sh[32:], size)
		binary.LittleEndian.PutUint32(sh[40:], link)
		binary.LittleEndian.PutUint32(sh[44:], info)
		binary.LittleEndian.PutUint64(sh[48:], 1)
		binary.LittleEndian.PutUint64(sh[56:], entsize)
		buf.Write(sh)
	}

	writeShdr(shNameOff[0], elf.SHT_NULL, 0, 0, 0, 0, 0, 0, 0)
	writeShdr(shNameOff[1], elf.SHT_PROGBITS, elf.SHF_EXECINSTR|elf.SHF_ALLOC, textVA, textOff, textLen, 0, 0, 0)
	writeShdr(shNameOff[2], elf.SHT_SYMTAB, 0, 0, symtabOff, uint64(len(symtab)), 3, 1, symSize)
	writeShdr(shNameOff[3], elf.SHT_STRTAB, 0, 0, strtabOff, uint64(len(strtab)), 0, 0, 0)
	writeShdr(shNameOff[4], elf.SHT_STRTAB, 0, 0, shstrtabOff, uint64(len(shstrtab)), 0, 0, 0)

	return buf.Bytes()
}

func writeTemp(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}
