package driver

import (
	"errors"
	"testing"

	"binrewrite/internal/disasm"
)

func TestParseFlagsRequiresExactlyOnePositionalArg(t *testing.T) {
	if _, _, _, err := parseFlags([]string{"-o", "out"}); err == nil {
		t.Fatal("expected an error with no positional binary argument")
	}
	if _, _, _, err := parseFlags([]string{"-o", "out", "a.out", "extra"}); err == nil {
		t.Fatal("expected an error with more than one positional argument")
	}
}

func TestParseFlagsHelp(t *testing.T) {
	_, _, _, err := parseFlags([]string{"-help"})
	if !errors.Is(err, flagHelpRequested) {
		t.Fatalf("err = %v, want flagHelpRequested", err)
	}
}

func TestParseFlagsDefaults(t *testing.T) {
	opts, _, _, err := parseFlags([]string{"a.out"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.format != "binary" {
		t.Errorf("default format = %q, want binary", opts.format)
	}
	if opts.syntax != disasm.SyntaxATT {
		t.Errorf("default syntax = %v, want ATT", opts.syntax)
	}
	if opts.compression != 6 {
		t.Errorf("default compression = %d, want 6", opts.compression)
	}
	if opts.inputPath != "a.out" {
		t.Errorf("inputPath = %q, want a.out", opts.inputPath)
	}
}

func TestParseFlagsMatchActionPairCompilesInOrder(t *testing.T) {
	_, comp, _, err := parseFlags([]string{
		"-match", "asm==/nop/",
		"-action", "trap",
		"a.out",
	})
	if err != nil {
		t.Fatal(err)
	}
	if comp.PendingMatches() {
		t.Error("PendingMatches() = true after a match was paired with an action")
	}
	if len(comp.Actions()) != 1 {
		t.Fatalf("got %d actions, want 1", len(comp.Actions()))
	}
}

func TestParseFlagsDanglingMatchLeavesPending(t *testing.T) {
	_, comp, _, err := parseFlags([]string{
		"-match", "asm==/nop/",
		"a.out",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !comp.PendingMatches() {
		t.Error("PendingMatches() = false, want true for a dangling --match with no --action")
	}
}

func TestParseFlagsRejectsBadMatchSyntax(t *testing.T) {
	if _, _, _, err := parseFlags([]string{"-match", "not a valid clause {{{", "a.out"}); err == nil {
		t.Fatal("expected an error for malformed --match syntax")
	}
}

func TestSyntaxValueRoundTrip(t *testing.T) {
	var s disasm.Syntax
	v := &syntaxValue{dst: &s}
	if err := v.Set("intel"); err != nil {
		t.Fatal(err)
	}
	if v.String() != "intel" {
		t.Errorf("String() = %q, want intel", v.String())
	}
	if err := v.Set("ATT"); err != nil {
		t.Fatal(err)
	}
	if v.String() != "ATT" {
		t.Errorf("String() = %q, want ATT", v.String())
	}
	if err := v.Set("bogus"); err == nil {
		t.Fatal("expected an error for an unknown syntax value")
	}
}

func TestOptionValueAccumulatesInOrder(t *testing.T) {
	var dst []string
	v := &optionValue{dst: &dst}
	if err := v.Set("first"); err != nil {
		t.Fatal(err)
	}
	if err := v.Set("second"); err != nil {
		t.Fatal(err)
	}
	if len(dst) != 2 || dst[0] != "first" || dst[1] != "second" {
		t.Errorf("dst = %v, want [first second]", dst)
	}
}
