package backend

import (
	"encoding/json"
	"io"
)

// jsonEnvelope tags each newline-delimited JSON message with its kind, so
// a single stream (stdout or a `.json` file, per --format json) can carry
// the whole protocol.
type jsonEnvelope struct {
	Kind string `json:"kind"`
	Msg  any    `json:"msg"`
}

// JSONSink writes the protocol as newline-delimited JSON, one envelope
// per message. Matches the teacher's own json.Encoder idiom: HTML
// escaping disabled, since the output is a data stream, not HTML-embedded.
type JSONSink struct {
	enc *json.Encoder
	w   io.WriteCloser
}

// NewJSONSink builds a JSONSink writing to w. w is closed by Close.
func NewJSONSink(w io.WriteCloser) *JSONSink {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &JSONSink{enc: enc, w: w}
}

func (s *JSONSink) write(kind string, msg any) error {
	return s.enc.Encode(jsonEnvelope{Kind: kind, Msg: msg})
}

func (s *JSONSink) RegisterBinary(msg BinaryRegistration) error { return s.write("binary", msg) }
func (s *JSONSink) RegisterELFFile(msg ELFFile) error            { return s.write("elf_file", msg) }
func (s *JSONSink) DefineTrampoline(msg Trampoline) error        { return s.write("trampoline", msg) }
func (s *JSONSink) Instruction(msg Instruction) error            { return s.write("instruction", msg) }
func (s *JSONSink) Patch(msg Patch) error                        { return s.write("patch", msg) }
func (s *JSONSink) Emit(msg Emit) error                          { return s.write("emit", msg) }

func (s *JSONSink) Close() error { return s.w.Close() }
