package dsl

import (
	"binrewrite/internal/diag"
)

var regexAttributes = map[string]bool{"asm": true, "mnemonic": true}

var plainIntAttributes = map[string]bool{
	"true": true, "false": true, "addr": true, "call": true, "jump": true,
	"offset": true, "random": true, "return": true, "size": true,
}

var operandAttributes = map[string]bool{
	"op": true, "src": true, "dst": true, "imm": true, "reg": true, "mem": true,
}

var validFields = map[string]bool{"size": true, "type": true, "read": true, "write": true}

// MatchParser parses one `--match` clause into a MatchAST.
type MatchParser struct {
	src string
	lex *Lexer
	tok Token
}

// ParseMatch parses a single `--match` argument string.
func ParseMatch(src string) (*MatchAST, error) {
	p := &MatchParser{src: src, lex: NewLexer(src)}
	if err := p.advance(); err != nil {
		return nil, p.fail(0, "", err.Error())
	}
	ast, err := p.parseMatch()
	if err != nil {
		return nil, err
	}
	if p.tok.Kind != TEOF {
		return nil, p.fail(p.tok.Offset, p.tok.String(), "unexpected trailing token, expected end of match clause")
	}
	return ast, nil
}

func (p *MatchParser) advance() error {
	t, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *MatchParser) fail(offset int, token, format string, args ...any) error {
	return diag.NewAt(diag.Parse, "matching", offset, token, format, args...)
}

func (p *MatchParser) expect(kind TokenKind, what string) (Token, error) {
	if p.tok.Kind != kind {
		return Token{}, p.fail(p.tok.Offset, p.tok.String(), "expected %s, got %q", what, p.tok.String())
	}
	t := p.tok
	if err := p.advance(); err != nil {
		return Token{}, err
	}
	return t, nil
}

func (p *MatchParser) parseMatch() (*MatchAST, error) {
	ast := &MatchAST{Source: p.src, Offset: p.tok.Offset}

	if p.tok.Kind == TBang {
		ast.Negate = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}

	ident, err := p.expect(TIdent, "an attribute name")
	if err != nil {
		return nil, err
	}
	ast.Attribute = ident.Text

	switch {
	case ast.Attribute == "plugin":
		if err := p.parsePluginRef(ast); err != nil {
			return nil, err
		}
	case operandAttributes[ast.Attribute]:
		if err := p.parseOperandSuffix(ast); err != nil {
			return nil, err
		}
	case plainIntAttributes[ast.Attribute] || regexAttributes[ast.Attribute]:
		// no suffix
	default:
		return nil, p.fail(ident.Offset, ident.Text, "unknown attribute %q; expected one of true, false, plugin, asm, mnemonic, addr, call, jump, offset, random, return, size, op, src, dst, imm, reg, mem", ident.Text)
	}

	if p.tok.Kind == TEOF {
		ast.HasCmp = false
		ast.Cmp = CmpNeqZero
		if ast.Negate {
			ast.Cmp = ast.Cmp.Invert()
		}
		return ast, nil
	}

	cmp, err := p.parseCmp()
	if err != nil {
		return nil, err
	}
	ast.HasCmp = true
	ast.Cmp = cmp
	if ast.Negate {
		ast.Cmp = ast.Cmp.Invert()
	}

	if err := p.parseValues(ast); err != nil {
		return nil, err
	}
	return ast, nil
}

func (p *MatchParser) parsePluginRef(ast *MatchAST) error {
	if _, err := p.expect(TLBrk, "'['"); err != nil {
		return err
	}
	name, err := p.expect(TIdent, "a plugin name")
	if err != nil {
		return err
	}
	ast.PluginRef = name.Text
	if _, err := p.expect(TRBrk, "']'"); err != nil {
		return err
	}
	return nil
}

// parseOperandSuffix parses the optional `[i]` and mandatory `.field`
// selector that op/src/dst/imm/reg/mem attributes carry.
func (p *MatchParser) parseOperandSuffix(ast *MatchAST) error {
	if p.tok.Kind == TLBrk {
		if err := p.advance(); err != nil {
			return err
		}
		idxTok, err := p.expect(TInt, "an operand index 0..7")
		if err != nil {
			return err
		}
		if idxTok.IntVal < 0 || idxTok.IntVal > 7 {
			return p.fail(idxTok.Offset, idxTok.Text, "operand index %d out of range 0..7", idxTok.IntVal)
		}
		idx := int(idxTok.IntVal)
		ast.Index = &idx
		if _, err := p.expect(TRBrk, "']'"); err != nil {
			return err
		}
	}
	if _, err := p.expect(TDot, "'.' field selector (operand attributes require one)"); err != nil {
		return err
	}
	field, err := p.expect(TIdent, "a field selector")
	if err != nil {
		return err
	}
	if !validFields[field.Text] {
		return p.fail(field.Offset, field.Text, "unknown field selector %q; expected one of size, type, read, write", field.Text)
	}
	ast.Field = field.Text
	return nil
}

func (p *MatchParser) parseCmp() (CmpOp, error) {
	tok := p.tok
	var c CmpOp
	switch tok.Kind {
	case TEq:
		c = CmpEq
	case TNeq:
		c = CmpNeq
	case TLt:
		c = CmpLt
	case TLeq:
		c = CmpLeq
	case TGt:
		c = CmpGt
	case TGeq:
		c = CmpGeq
	default:
		return 0, p.fail(tok.Offset, tok.String(), "expected a comparison operator (==, !=, <, <=, >, >=)")
	}
	if err := p.advance(); err != nil {
		return 0, err
	}
	return c, nil
}

func (p *MatchParser) parseValues(ast *MatchAST) error {
	if regexAttributes[ast.Attribute] {
		if ast.Cmp != CmpEq && ast.Cmp != CmpNeq {
			return p.fail(ast.Offset, ast.Attribute, "asm/mnemonic matches accept only == or !=")
		}
		return p.parseRegexOrAlternation(ast)
	}

	// CSV form: BASENAME '[' INT ']'
	if p.tok.Kind == TIdent {
		save := *p.lex
		saveTok := p.tok
		name := p.tok.Text
		if err := p.advance(); err != nil {
			return err
		}
		if p.tok.Kind == TLBrk {
			if err := p.advance(); err != nil {
				return err
			}
			colTok, err := p.expect(TInt, "a CSV column index")
			if err != nil {
				return err
			}
			if _, err := p.expect(TRBrk, "']'"); err != nil {
				return err
			}
			ast.Value = ValueCSV
			ast.CSVBase = name
			ast.CSVCol = int(colTok.IntVal)
			return nil
		}
		// Not a CSV reference after all; rewind and fall through to int list.
		*p.lex = save
		p.tok = saveTok
	}

	return p.parseIntList(ast)
}

func (p *MatchParser) parseRegexOrAlternation(ast *MatchAST) error {
	if p.tok.Kind == TRegex {
		ast.Value = ValueRegex
		ast.Regex = p.tok.Text
		return p.advance()
	}
	// comma-separated alternation strings (bare identifiers)
	var alts []string
	for {
		id, err := p.expect(TIdent, "a regex literal or comma-separated alternation list")
		if err != nil {
			return err
		}
		alts = append(alts, id.Text)
		if p.tok.Kind != TComma {
			break
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
	ast.Value = ValueRegex
	ast.Regex = alternationToRegex(alts)
	return nil
}

func alternationToRegex(alts []string) string {
	out := "^("
	for i, a := range alts {
		if i > 0 {
			out += "|"
		}
		out += regexQuoteLiteral(a)
	}
	out += ")$"
	return out
}

func regexQuoteLiteral(s string) string {
	out := ""
	for _, r := range s {
		switch r {
		case '.', '+', '*', '?', '(', ')', '[', ']', '{', '}', '^', '$', '|', '\\':
			out += "\\" + string(r)
		default:
			out += string(r)
		}
	}
	return out
}

func (p *MatchParser) parseIntList(ast *MatchAST) error {
	var ints []int64
	for {
		it, err := p.expect(TInt, "an integer value")
		if err != nil {
			return err
		}
		ints = append(ints, it.IntVal)
		if p.tok.Kind != TComma {
			break
		}
		if err := p.advance(); err != nil {
			return err
		}
	}
	ast.Value = ValueInts
	ast.Ints = ints
	return nil
}
