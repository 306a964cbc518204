package backend

import (
	"encoding/gob"
	"fmt"
	"io"
)

// FileSink is the built-in back-end used when --backend is not given: it
// frames the protocol as gob records directly into the (optionally
// compressed) output file, standing in for the external process that
// would otherwise synthesise and write the patched binary. Trampoline
// byte synthesis itself is out of scope (spec's Non-goals); FileSink
// records the same intent the protocol carries so the emitted file is at
// least a faithful, replayable log of the rewrite.
type FileSink struct {
	w   io.WriteCloser
	enc *gob.Encoder
}

// NewFileSink wraps an already-opened (and possibly compressed) writer.
func NewFileSink(w io.WriteCloser) *FileSink {
	return &FileSink{w: w, enc: gob.NewEncoder(w)}
}

func (s *FileSink) write(kind string, msg any) error {
	if err := s.enc.Encode(frame{Kind: kind, Msg: msg}); err != nil {
		return fmt.Errorf("backend: encode %s: %w", kind, err)
	}
	return nil
}

func (s *FileSink) RegisterBinary(msg BinaryRegistration) error { return s.write("binary", msg) }
func (s *FileSink) RegisterELFFile(msg ELFFile) error            { return s.write("elf_file", msg) }
func (s *FileSink) DefineTrampoline(msg Trampoline) error        { return s.write("trampoline", msg) }
func (s *FileSink) Instruction(msg Instruction) error            { return s.write("instruction", msg) }
func (s *FileSink) Patch(msg Patch) error                        { return s.write("patch", msg) }
func (s *FileSink) Emit(msg Emit) error                          { return s.write("emit", msg) }

func (s *FileSink) Close() error { return s.w.Close() }
