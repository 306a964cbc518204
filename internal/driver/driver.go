// Package driver implements the command-line front end of spec.md §4.7:
// flag parsing, flag-combination validation, and orchestration of the
// rewrite pipeline against the resolved options.
package driver

import (
	"fmt"
	"os"

	"binrewrite/internal/backend"
	"binrewrite/internal/diag"
	"binrewrite/internal/elfinfo"
	"binrewrite/internal/evaluator"
	"binrewrite/internal/pipeline"
	"binrewrite/internal/pluginreg"
	"binrewrite/internal/rule"
)

// rngSeed is the fixed constant spec.md §4.7 requires ("seeds the RNG
// with a fixed constant for reproducibility").
const rngSeed = 0x5EED5EED

// Run parses args, validates them, and runs the rewrite pipeline. It
// returns the process exit code; it never calls os.Exit itself, so
// tests can drive it directly.
func Run(args []string) int {
	opts, comp, plugins, err := parseFlags(args)
	if err != nil {
		if err == flagHelpRequested {
			return 0
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if err := validate(opts, comp); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}

	if err := runPipeline(opts, comp, plugins); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func runPipeline(opts *options, comp *rule.Compiler, plugins *pluginreg.Registry) error {
	elfFile, err := elfinfo.Open(opts.inputPath)
	if err != nil {
		return err
	}
	defer elfFile.Close()

	tracer := diag.NewTracer(os.Stderr, opts.debug)

	sink, err := buildSink(opts)
	if err != nil {
		return err
	}

	eval := evaluator.New(comp.RNG, tracer)

	cfg := pipeline.Config{
		ModeForced:       opts.shared || opts.executable,
		Syntax:           opts.syntax,
		Sync:             opts.sync,
		NoWarnings:       opts.noWarnings,
		Debug:            opts.debug,
		TrapAll:          opts.trapAll,
		StartSpec:        opts.start,
		EndSpec:          opts.end,
		OutputPath:       opts.output,
		Format:           opts.format,
		CompressionLevel: opts.compression,
	}
	if opts.shared {
		cfg.Mode = elfinfo.ModeShared
	} else if opts.executable {
		cfg.Mode = elfinfo.ModeExecutable
	}

	ctx := pipeline.New(elfFile, plugins, comp, eval, tracer, cfg)
	ctx.Sink = sink
	return ctx.Run()
}

// buildSink selects the built-in file sink (no --backend given) or spawns
// the external back-end process, per spec.md §4.6 step 2.
func buildSink(opts *options) (backend.Sink, error) {
	if opts.format == "json" {
		if opts.output == "-" || opts.output == "" {
			return backend.NewJSONSink(nopCloser{os.Stdout}), nil
		}
		f, err := os.Create(opts.output + backend.OutputExtension(opts.format))
		if err != nil {
			return nil, diag.New(diag.Config, "creating %q: %v", opts.output, err)
		}
		return backend.NewJSONSink(f), nil
	}

	if opts.backend != "" {
		args := opts.options
		if opts.staticLoader {
			args = append(append([]string{}, args...), "--static-loader")
		}
		return backend.NewProcessSink(opts.backend, args)
	}

	w, err := backend.NewOutputWriter(opts.output, opts.format, opts.compression)
	if err != nil {
		return nil, err
	}
	return backend.NewFileSink(w), nil
}

type nopCloser struct{ *os.File }

func (nopCloser) Close() error { return nil }
