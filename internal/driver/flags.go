package driver

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"binrewrite/internal/disasm"
	"binrewrite/internal/dsl"
	"binrewrite/internal/pluginreg"
	"binrewrite/internal/rule"
)

// options holds every resolved CLI flag plus the single positional
// argument, per spec.md §6's CLI surface.
type options struct {
	output      string
	compression int
	staticLoader bool
	help        bool

	backend    string
	debug      bool
	end        string
	executable bool
	format     string
	noWarnings bool
	options    []string
	shared     bool
	start      string
	sync       int
	syntax     disasm.Syntax
	trapAll    bool

	inputPath string
}

var flagHelpRequested = errors.New("help requested")

// matchValue is a flag.Value that compiles each --match/-M occurrence
// immediately, in command-line order, into the shared Compiler's pending
// accumulator.
type matchValue struct{ comp *rule.Compiler }

func (v *matchValue) String() string { return "" }
func (v *matchValue) Set(s string) error {
	ast, err := dsl.ParseMatch(s)
	if err != nil {
		return err
	}
	return v.comp.CompileMatch(ast)
}

// actionValue is a flag.Value that compiles each --action/-A occurrence
// immediately, transferring the pending match accumulator.
type actionValue struct{ comp *rule.Compiler }

func (v *actionValue) String() string { return "" }
func (v *actionValue) Set(s string) error {
	ast, err := dsl.ParseAction(s)
	if err != nil {
		return err
	}
	_, err = v.comp.CompileAction(ast)
	return err
}

// optionValue is a flag.Value collecting repeated --option values in
// order, forwarded verbatim to the back-end process.
type optionValue struct{ dst *[]string }

func (v *optionValue) String() string { return "" }
func (v *optionValue) Set(s string) error {
	*v.dst = append(*v.dst, s)
	return nil
}

// syntaxValue is a flag.Value validating --syntax against its enum.
type syntaxValue struct{ dst *disasm.Syntax }

func (v *syntaxValue) String() string {
	if *v.dst == disasm.SyntaxIntel {
		return "intel"
	}
	return "ATT"
}
func (v *syntaxValue) Set(s string) error {
	switch s {
	case "ATT":
		*v.dst = disasm.SyntaxATT
	case "intel":
		*v.dst = disasm.SyntaxIntel
	default:
		return fmt.Errorf("--syntax must be ATT or intel, got %q", s)
	}
	return nil
}

func parseFlags(args []string) (*options, *rule.Compiler, *pluginreg.Registry, error) {
	plugins := pluginreg.NewRegistry()
	comp := rule.NewCompiler(plugins, rngSeed)

	opts := &options{format: "binary", syntax: disasm.SyntaxATT}

	fs := flag.NewFlagSet("binrewrite", flag.ContinueOnError)
	fs.Usage = func() { printUsage(fs) }

	mv := &matchValue{comp: comp}
	av := &actionValue{comp: comp}
	ov := &optionValue{dst: &opts.options}
	sv := &syntaxValue{dst: &opts.syntax}

	fs.Var(mv, "M", "add a match clause (see DSL grammar)")
	fs.Var(mv, "match", "add a match clause (see DSL grammar)")
	fs.Var(av, "A", "add an action clause, consuming pending matches")
	fs.Var(av, "action", "add an action clause, consuming pending matches")

	fs.StringVar(&opts.output, "o", "", "output file basename")
	fs.StringVar(&opts.output, "output", "", "output file basename")
	fs.IntVar(&opts.compression, "c", 6, "compression level 0..9")
	fs.IntVar(&opts.compression, "compression", 6, "compression level 0..9")
	fs.BoolVar(&opts.staticLoader, "s", false, "use a statically linked loader")
	fs.BoolVar(&opts.staticLoader, "static-loader", false, "use a statically linked loader")
	fs.BoolVar(&opts.help, "h", false, "show usage")
	fs.BoolVar(&opts.help, "help", false, "show usage")

	fs.StringVar(&opts.backend, "backend", "", "back-end program to spawn")
	fs.BoolVar(&opts.debug, "debug", false, "trace match evaluation to stderr")
	fs.StringVar(&opts.end, "end", "", "end address or symbol, exclusive")
	fs.BoolVar(&opts.executable, "executable", false, "force executable mode")
	fs.StringVar(&opts.format, "format", "binary", "binary, json, patch, patch.gz, patch.bz2, patch.xz")
	fs.BoolVar(&opts.noWarnings, "no-warnings", false, "suppress non-fatal warnings")
	fs.Var(ov, "option", "forward an option to the back-end (repeatable)")
	fs.BoolVar(&opts.shared, "shared", false, "force shared-object mode")
	fs.StringVar(&opts.start, "start", "", "start address or symbol, inclusive")
	fs.IntVar(&opts.sync, "sync", 0, "instructions to skip after a decode failure, 0..1000")
	fs.Var(sv, "syntax", "ATT or intel")
	fs.BoolVar(&opts.trapAll, "trap-all", false, "give otherwise-unmatched instructions the first compiled trap action (no effect without one)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, nil, nil, flagHelpRequested
		}
		return nil, nil, nil, err
	}

	if opts.help {
		fs.Usage()
		return nil, nil, nil, flagHelpRequested
	}

	rest := fs.Args()
	if len(rest) != 1 {
		return nil, nil, nil, fmt.Errorf("expected exactly one positional argument (the input binary), got %d", len(rest))
	}
	opts.inputPath = rest[0]

	return opts, comp, plugins, nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, "usage: binrewrite [flags] <binary>\n\n")
	fs.PrintDefaults()
}
