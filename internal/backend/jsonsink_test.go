package backend

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

type nopWriteCloser struct{ *bytes.Buffer }

func (nopWriteCloser) Close() error { return nil }

func TestJSONSinkWritesEnvelopes(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(nopWriteCloser{&buf})

	if err := sink.RegisterBinary(BinaryRegistration{Mode: ModeExecutable, Filename: "a.out"}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Instruction(Instruction{Addr: 0x1000, Size: 4, Text: "nop"}); err != nil {
		t.Fatal(err)
	}
	if err := sink.Close(); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	var env jsonEnvelope
	if err := json.Unmarshal([]byte(lines[0]), &env); err != nil {
		t.Fatal(err)
	}
	if env.Kind != "binary" {
		t.Errorf("Kind = %q, want binary", env.Kind)
	}

	if err := json.Unmarshal([]byte(lines[1]), &env); err != nil {
		t.Fatal(err)
	}
	if env.Kind != "instruction" {
		t.Errorf("Kind = %q, want instruction", env.Kind)
	}
}

func TestJSONSinkDisablesHTMLEscaping(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONSink(nopWriteCloser{&buf})
	if err := sink.Patch(Patch{TrampolineName: "call_clean_before_f_<lib>"}); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "\\u003c") {
		t.Error("HTML escaping should be disabled, but found an escaped '<'")
	}
}
