package dsl

import (
	"strings"

	"binrewrite/internal/diag"
)

var actionKeywords = map[string]bool{"passthru": true, "print": true, "trap": true, "plugin": true, "call": true}

var callFlags = map[string]bool{
	"clean": true, "naked": true, "before": true, "after": true, "replace": true, "conditional": true,
}

// argKeywords are the reserved argument identifiers that are NOT a bare
// CSV basename reference. op/src/dst/imm/reg/mem are handled separately
// since they require an index suffix.
var argKeywords = map[string]bool{
	"addr": true, "base": true, "offset": true, "next": true, "static": true,
	"target": true, "random": true, "bytes": true, "size": true,
	"asm": true, "asmlen": true, "asmbuf": true,
}

var argOperandKinds = map[string]bool{"op": true, "src": true, "dst": true, "imm": true, "reg": true, "mem": true}

// registerNames is the x86_64 general-purpose/flags/IP register vocabulary
// accepted as bare argument identifiers.
var registerNames = buildRegisterNames()

func buildRegisterNames() map[string]bool {
	m := map[string]bool{"rip": true, "rflags": true}
	byte8 := []string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil"}
	word16 := []string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di"}
	dword32 := []string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"}
	qword64 := []string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi"}
	for _, n := range byte8 {
		m[n] = true
	}
	for _, n := range word16 {
		m[n] = true
	}
	for _, n := range dword32 {
		m[n] = true
	}
	for _, n := range qword64 {
		m[n] = true
	}
	for i := 8; i <= 15; i++ {
		m[regN(i, "b")] = true
		m[regN(i, "w")] = true
		m[regN(i, "d")] = true
		m[regN(i, "")] = true
	}
	return m
}

func regN(n int, suffix string) string {
	s := "r"
	s += itoa(n)
	s += suffix
	return s
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return string(rune('0'+n/10)) + string(rune('0'+n%10))
}

// ActionParser parses one `--action` clause into an ActionAST.
type ActionParser struct {
	src string
	lex *Lexer
	tok Token
}

// ParseAction parses a single `--action` argument string.
func ParseAction(src string) (*ActionAST, error) {
	p := &ActionParser{src: src, lex: NewLexer(src)}
	if err := p.advance(); err != nil {
		return nil, p.fail(0, "", err.Error())
	}
	ast, err := p.parseAction()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != TEOF {
		return nil, p.fail(p.tok.Offset, p.tok.String(), "unexpected trailing token, expected end of action clause")
	}
	return ast, nil
}

func (p *ActionParser) advance() error {
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *ActionParser) fail(offset int, token, format string, args ...any) error {
	return diag.NewAt(diag.Parse, "action", offset, token, format, args...)
}

func (p *ActionParser) expect(kind TokenKind, what string) (Token, error) {
	if p.tok.Kind != kind {
		return Token{}, p.fail(p.tok.Offset, p.tok.String(), "expected %s, got %q", what, p.tok.String())
	}
	t := p.tok
	if err := p.advance(); err != nil {
		return Token{}, err
	}
	return t, nil
}

func (p *ActionParser) parseAction() (*ActionAST, error) {
	ast := &ActionAST{Source: p.src, Offset: p.tok.Offset}

	kw, err := p.expect(TIdent, "passthru, print, trap, plugin, or call")
	if err != nil {
		return nil, err
	}
	if !actionKeywords[kw.Text] {
		return nil, p.fail(kw.Offset, kw.Text, "unknown action %q; expected one of passthru, print, trap, plugin, call", kw.Text)
	}
	ast.Kind = kw.Text

	switch ast.Kind {
	case "passthru", "print", "trap":
		return ast, nil
	case "plugin":
		if err := p.parsePluginAction(ast); err != nil {
			return nil, err
		}
		return ast, nil
	case "call":
		if err := p.parseCallAction(ast); err != nil {
			return nil, err
		}
		return ast, nil
	}
	return ast, nil
}

func (p *ActionParser) parsePluginAction(ast *ActionAST) error {
	if _, err := p.expect(TLBrk, "'['"); err != nil {
		return err
	}
	name, err := p.expect(TIdent, "a plugin name")
	if err != nil {
		return err
	}
	ast.PluginName = name.Text
	_, err = p.expect(TRBrk, "']'")
	return err
}

func (p *ActionParser) parseCallAction(ast *ActionAST) error {
	if p.tok.Kind == TLBrk {
		if err := p.advance(); err != nil {
			return err
		}
		for {
			flag, err := p.expect(TIdent, "a call flag")
			if err != nil {
				return err
			}
			if !callFlags[flag.Text] {
				return p.fail(flag.Offset, flag.Text, "unknown call flag %q; expected one of clean, naked, before, after, replace, conditional", flag.Text)
			}
			ast.Flags = append(ast.Flags, flag.Text)
			if p.tok.Kind != TComma {
				break
			}
			if err := p.advance(); err != nil {
				return err
			}
		}
		if _, err := p.expect(TRBrk, "']'"); err != nil {
			return err
		}
	}

	sym, err := p.expect(TIdent, "a callee symbol name")
	if err != nil {
		return err
	}
	ast.Symbol = sym.Text

	if p.tok.Kind == TLParen {
		if err := p.advance(); err != nil {
			return err
		}
		if p.tok.Kind != TRParen {
			for {
				arg, err := p.parseArg()
				if err != nil {
					return err
				}
				ast.Args = append(ast.Args, arg)
				if p.tok.Kind != TComma {
					break
				}
				if err := p.advance(); err != nil {
					return err
				}
			}
		}
		if _, err := p.expect(TRParen, "')'"); err != nil {
			return err
		}
	}

	if p.tok.Kind != TAt {
		return p.fail(p.tok.Offset, p.tok.String(), "expected '@' followed by the callee file path, got %q", p.tok.String())
	}
	// The file path is the rest of the clause, taken verbatim: it may hold
	// '.', '/' and other bytes the lexer does not accept in an identifier.
	file := strings.TrimSpace(p.src[p.tok.Offset+1:])
	if file == "" {
		return p.fail(len(p.src), "<eof>", "expected a callee file path")
	}
	ast.File = file
	p.lex.pos = len(p.lex.src)
	p.tok = Token{Kind: TEOF, Offset: len(p.src)}
	return nil
}

func (p *ActionParser) parseArg() (ArgAST, error) {
	arg := ArgAST{Offset: p.tok.Offset}
	if p.tok.Kind == TAmp {
		arg.ByPointer = true
		if err := p.advance(); err != nil {
			return arg, err
		}
	}

	if p.tok.Kind == TInt {
		v := p.tok.IntVal
		arg.IsIntLit = true
		arg.IntLit = &v
		return arg, p.advance()
	}

	id, err := p.expect(TIdent, "an argument")
	if err != nil {
		return arg, err
	}
	arg.Ident = id.Text

	switch {
	case argOperandKinds[id.Text]:
		// op/src/dst/imm/reg/mem always carry a mandatory [i] operand index.
		if _, err := p.expect(TLBrk, "'[' operand index"); err != nil {
			return arg, err
		}
		idxTok, err := p.expect(TInt, "an operand index 0..7")
		if err != nil {
			return arg, err
		}
		if idxTok.IntVal < 0 || idxTok.IntVal > 7 {
			return arg, p.fail(idxTok.Offset, idxTok.Text, "operand index %d out of range 0..7", idxTok.IntVal)
		}
		idx := int(idxTok.IntVal)
		arg.Index = &idx
		if _, err := p.expect(TRBrk, "']'"); err != nil {
			return arg, err
		}
	case p.tok.Kind == TLBrk:
		// A CSV-basename USER argument may carry an optional [col] suffix
		// selecting which column of the matched row to pass.
		if err := p.advance(); err != nil {
			return arg, err
		}
		colTok, err := p.expect(TInt, "a CSV column index")
		if err != nil {
			return arg, err
		}
		idx := int(colTok.IntVal)
		arg.Index = &idx
		if _, err := p.expect(TRBrk, "']'"); err != nil {
			return arg, err
		}
	}

	return arg, nil
}
