package pipeline

import (
	"binrewrite/internal/backend"
)

const pageSize = 0x1000

// step9Finish runs plugin fini, computes the final output filename and
// mapping granularity, sends the emit message, and awaits back-end exit
// (the Sink's Close), per spec.md §4.6 step 9.
func (ctx *Context) step9Finish() error {
	ctx.Plugins.FiniAll()

	outputPath := ctx.Cfg.OutputPath + backend.OutputExtension(ctx.Cfg.Format)
	granularity := pageSize * (uint64(1) << (9 - uint(ctx.Cfg.CompressionLevel)))

	if err := ctx.Sink.Emit(backend.Emit{
		OutputPath:  outputPath,
		Format:      ctx.Cfg.Format,
		Granularity: granularity,
	}); err != nil {
		return err
	}

	return ctx.Sink.Close()
}
