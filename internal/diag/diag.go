// Package diag carries the taxonomy of fatal diagnostics and non-fatal
// warnings used throughout the rule engine and rewrite pipeline.
package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

// Severity tags the category of a fatal error, per the five-bucket
// taxonomy: parse, config, resolve, disasm, internal.
type Severity string

const (
	Parse    Severity = "parse"
	Config   Severity = "config"
	Resolve  Severity = "resolve"
	Disasm   Severity = "disasm"
	Internal Severity = "internal"
)

// Position locates a diagnostic within DSL source text.
type Position struct {
	Grammar string // "matching" or "action"
	Offset  int
	Token   string
}

// Error is a fatal diagnostic. The program prints it and exits non-zero;
// there is no recovery.
type Error struct {
	Severity Severity
	Pos      *Position
	Msg      string
}

func (e *Error) Error() string {
	if e.Pos != nil {
		return fmt.Sprintf("[%s] %s: at %q (offset %d): %s", e.Severity, e.Pos.Grammar, e.Pos.Token, e.Pos.Offset, e.Msg)
	}
	return fmt.Sprintf("[%s] %s", e.Severity, e.Msg)
}

// New builds a fatal diagnostic with no source position.
func New(sev Severity, format string, args ...any) *Error {
	return &Error{Severity: sev, Msg: fmt.Sprintf(format, args...)}
}

// NewAt builds a fatal diagnostic positioned within a DSL sub-grammar.
func NewAt(sev Severity, grammar string, offset int, token, format string, args ...any) *Error {
	return &Error{
		Severity: sev,
		Pos:      &Position{Grammar: grammar, Offset: offset, Token: token},
		Msg:      fmt.Sprintf(format, args...),
	}
}

// IsTTY reports whether w is a terminal, used to gate colourised debug
// output per spec: "A TTY check on standard error selects colourised
// debug output."
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Warnf prints a non-fatal warning to stderr unless suppressed is true.
func Warnf(suppressed bool, format string, args ...any) {
	if suppressed {
		return
	}
	fmt.Fprintf(os.Stderr, "warning: %s\n", fmt.Sprintf(format, args...))
}

// Tracer renders per-entry match evaluation traces, colourised when stderr
// is a TTY. It is a no-op unless built with enabled=true, so callers can
// always construct and pass one and let --debug gate the output.
type Tracer struct {
	w       io.Writer
	enabled bool
	color   bool
	pass    *color.Color
	fail    *color.Color
	header  *color.Color
}

// NewTracer builds a Tracer writing to w. Header and Entry are no-ops
// unless enabled is true; when enabled, output is colourised if w is a TTY.
func NewTracer(w io.Writer, enabled bool) *Tracer {
	t := &Tracer{w: w, enabled: enabled, color: enabled && IsTTY(w)}
	t.pass = color.New(color.FgGreen)
	t.fail = color.New(color.FgRed)
	t.header = color.New(color.FgCyan, color.Bold)
	return t
}

// Entry traces one MatchEntry's evaluation result.
func (t *Tracer) Entry(source string, ok bool, observable int64, undefined bool) {
	if !t.enabled || t.w == nil {
		return
	}
	status := "FAIL"
	if ok {
		status = "PASS"
	}
	line := fmt.Sprintf("  %-4s %-40s observable=%d undefined=%v\n", status, source, observable, undefined)
	if !t.color {
		fmt.Fprint(t.w, line)
		return
	}
	c := t.fail
	if ok {
		c = t.pass
	}
	c.Fprint(t.w, line)
}

// Header traces the start of evaluation for one instruction.
func (t *Tracer) Header(addr uint64, text string) {
	if !t.enabled || t.w == nil {
		return
	}
	line := fmt.Sprintf("0x%x: %s\n", addr, text)
	if !t.color {
		fmt.Fprint(t.w, line)
		return
	}
	t.header.Fprint(t.w, line)
}
