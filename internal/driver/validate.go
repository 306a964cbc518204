package driver

import (
	"fmt"

	"binrewrite/internal/rule"
)

var validFormats = map[string]bool{
	"binary": true, "json": true, "patch": true,
	"patch.gz": true, "patch.bz2": true, "patch.xz": true,
}

// validate checks the flag-combination rules of spec.md §4.7.
func validate(opts *options, comp *rule.Compiler) error {
	if opts.shared && opts.executable {
		return fmt.Errorf("--shared and --executable are mutually exclusive")
	}
	if opts.sync < 0 || opts.sync > 1000 {
		return fmt.Errorf("--sync must be 0..1000, got %d", opts.sync)
	}
	if opts.compression < 0 || opts.compression > 9 {
		return fmt.Errorf("--compression must be 0..9, got %d", opts.compression)
	}
	if !validFormats[opts.format] {
		return fmt.Errorf("--format %q is not one of binary, json, patch, patch.gz, patch.bz2, patch.xz", opts.format)
	}
	if comp.PendingMatches() {
		return fmt.Errorf("dangling --match clause not paired with a following --action")
	}
	if opts.format != "json" && opts.backend == "" && opts.output == "" {
		return fmt.Errorf("--output is required unless --format json writes to stdout")
	}
	return nil
}
