package backend

import (
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"os/exec"

	"binrewrite/internal/diag"
)

// frame tags a gob-encoded message for the spawned back-end process, the
// same envelope shape as JSONSink but binary, per --format binary and
// --backend PROG.
type frame struct {
	Kind string
	Msg  any
}

// ProcessSink spawns the back-end program named by --backend, forwards
// --option values as its arguments, and streams the protocol to its
// stdin as gob-encoded frames. The back-end's own stdout/stderr are
// connected to this process's, matching how a CLI tool hands control to
// a cooperating subprocess.
type ProcessSink struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	enc   *gob.Encoder
}

// NewProcessSink spawns prog with args (the forwarded --option values).
func NewProcessSink(prog string, args []string) (*ProcessSink, error) {
	cmd := exec.Command(prog, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, diag.New(diag.Config, "backend: stdin pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, diag.New(diag.Config, "backend: spawn %q: %v", prog, err)
	}

	return &ProcessSink{cmd: cmd, stdin: stdin, enc: gob.NewEncoder(stdin)}, nil
}

func (s *ProcessSink) write(kind string, msg any) error {
	if err := s.enc.Encode(frame{Kind: kind, Msg: msg}); err != nil {
		return fmt.Errorf("backend: encode %s: %w", kind, err)
	}
	return nil
}

func (s *ProcessSink) RegisterBinary(msg BinaryRegistration) error { return s.write("binary", msg) }
func (s *ProcessSink) RegisterELFFile(msg ELFFile) error            { return s.write("elf_file", msg) }
func (s *ProcessSink) DefineTrampoline(msg Trampoline) error        { return s.write("trampoline", msg) }
func (s *ProcessSink) Instruction(msg Instruction) error            { return s.write("instruction", msg) }
func (s *ProcessSink) Patch(msg Patch) error                        { return s.write("patch", msg) }
func (s *ProcessSink) Emit(msg Emit) error                          { return s.write("emit", msg) }

// Close closes the back-end's stdin (signalling end of stream) and waits
// for it to exit, per spec.md §4.6 step 9: "await back-end exit."
func (s *ProcessSink) Close() error {
	if err := s.stdin.Close(); err != nil {
		return err
	}
	return s.cmd.Wait()
}
