package pipeline

import "binrewrite/internal/backend"

// fakeSink records every message handed to it, standing in for a real
// back-end process in tests that exercise a *Context's message-sending
// steps without spawning one.
type fakeSink struct {
	binaries     []backend.BinaryRegistration
	elfFiles     []backend.ELFFile
	trampolines  []backend.Trampoline
	instructions []backend.Instruction
	patches      []backend.Patch
	emits        []backend.Emit
	closed       bool
}

func (s *fakeSink) RegisterBinary(msg backend.BinaryRegistration) error {
	s.binaries = append(s.binaries, msg)
	return nil
}

func (s *fakeSink) RegisterELFFile(msg backend.ELFFile) error {
	s.elfFiles = append(s.elfFiles, msg)
	return nil
}

func (s *fakeSink) DefineTrampoline(msg backend.Trampoline) error {
	s.trampolines = append(s.trampolines, msg)
	return nil
}

func (s *fakeSink) Instruction(msg backend.Instruction) error {
	s.instructions = append(s.instructions, msg)
	return nil
}

func (s *fakeSink) Patch(msg backend.Patch) error {
	s.patches = append(s.patches, msg)
	return nil
}

func (s *fakeSink) Emit(msg backend.Emit) error {
	s.emits = append(s.emits, msg)
	return nil
}

func (s *fakeSink) Close() error {
	s.closed = true
	return nil
}
