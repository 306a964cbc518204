package pipeline

import (
	"strconv"
	"strings"

	"binrewrite/internal/diag"
)

// step5RangeTrim resolves --start/--end (absolute hex or dynamic-symbol
// lookup) and narrows the code region accordingly, per spec.md §4.6 step
// 5. With neither flag given, the whole code section is swept.
func (ctx *Context) step5RangeTrim() error {
	sec, err := ctx.ELF.CodeSection()
	if err != nil {
		return diag.New(diag.Resolve, "%v", err)
	}

	ctx.baseAddr = sec.Addr
	ctx.baseOff = sec.Offset
	ctx.codeLen = sec.Size

	if ctx.Cfg.StartSpec == "" && ctx.Cfg.EndSpec == "" {
		return ctx.readCode()
	}

	start := ctx.baseAddr
	end := ctx.baseAddr + ctx.codeLen

	if ctx.Cfg.StartSpec != "" {
		v, err := ctx.resolveAddr(ctx.Cfg.StartSpec)
		if err != nil {
			return err
		}
		start = v
	}
	if ctx.Cfg.EndSpec != "" {
		v, err := ctx.resolveAddr(ctx.Cfg.EndSpec)
		if err != nil {
			return err
		}
		end = v
	}

	if start < ctx.baseAddr || start >= ctx.baseAddr+ctx.codeLen {
		return diag.New(diag.Config, "--start 0x%x lies outside the code section [0x%x, 0x%x)", start, ctx.baseAddr, ctx.baseAddr+ctx.codeLen)
	}
	if end <= start || end > ctx.baseAddr+ctx.codeLen {
		return diag.New(diag.Config, "--end 0x%x lies outside (--start, code section end]", end)
	}

	ctx.baseOff += start - ctx.baseAddr
	ctx.baseAddr = start
	ctx.codeLen = end - start

	return ctx.readCode()
}

func (ctx *Context) readCode() error {
	ctx.code = make([]byte, ctx.codeLen)
	_, err := ctx.ELF.ReadAt(ctx.code, int64(ctx.baseOff))
	if err != nil {
		return diag.New(diag.Resolve, "reading code region: %v", err)
	}
	return nil
}

// resolveAddr parses an absolute hex address (leading 0x) or resolves a
// symbol by name. It does not check the address against the code section;
// step5RangeTrim does that.
func (ctx *Context) resolveAddr(spec string) (uint64, error) {
	if strings.HasPrefix(spec, "0x") || strings.HasPrefix(spec, "0X") {
		v, err := strconv.ParseUint(spec[2:], 16, 64)
		if err != nil {
			return 0, diag.New(diag.Config, "invalid hex address %q: %v", spec, err)
		}
		return v, nil
	}

	addr, _, err := ctx.ELF.Symbol(spec)
	if err != nil {
		return 0, diag.New(diag.Resolve, "resolving %q: %v", spec, err)
	}
	return addr, nil
}
