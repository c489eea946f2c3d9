package planlang

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/mandubian/ccos-sub014/hosterr"
	"github.com/mandubian/ccos-sub014/value"
)

// Parse reads a single top-level form from src. Trailing whitespace after
// the form is tolerated; trailing non-whitespace is rejected.
func Parse(src string) (*Node, error) {
	p := &parser{src: src}
	p.skipSpace()
	node, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, hosterr.Newf(hosterr.SchemaError, "planlang: unexpected trailing input at byte %d", p.pos)
	}
	return node, nil
}

// ParseProgram reads every top-level form in src, for a plan body made of
// several sequential expressions.
func ParseProgram(src string) ([]*Node, error) {
	p := &parser{src: src}
	var nodes []*Node
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			break
		}
		n, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == ';' {
			for p.pos < len(p.src) && p.src[p.pos] != '\n' {
				p.pos++
			}
			continue
		}
		if unicode.IsSpace(rune(c)) {
			p.pos++
			continue
		}
		break
	}
}

func (p *parser) parseExpr() (*Node, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, hosterr.New(hosterr.SchemaError, "planlang: unexpected end of input")
	}
	switch c := p.src[p.pos]; {
	case c == '(':
		return p.parseList()
	case c == '"':
		return p.parseString()
	case c == ':':
		return p.parseKeyword()
	default:
		return p.parseAtom()
	}
}

func (p *parser) parseList() (*Node, error) {
	start := p.pos
	p.pos++ // consume '('
	var items []*Node
	for {
		p.skipSpace()
		if p.pos >= len(p.src) {
			return nil, hosterr.New(hosterr.SchemaError, "planlang: unterminated list")
		}
		if p.src[p.pos] == ')' {
			p.pos++
			return listNode(items, start), nil
		}
		item, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
}

func (p *parser) parseString() (*Node, error) {
	start := p.pos
	p.pos++ // consume opening quote
	var b strings.Builder
	for {
		if p.pos >= len(p.src) {
			return nil, hosterr.New(hosterr.SchemaError, "planlang: unterminated string literal")
		}
		c := p.src[p.pos]
		if c == '"' {
			p.pos++
			return litNode(value.Str(b.String()), start), nil
		}
		if c == '\\' && p.pos+1 < len(p.src) {
			p.pos++
			switch p.src[p.pos] {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '"':
				b.WriteByte('"')
			case '\\':
				b.WriteByte('\\')
			default:
				b.WriteByte(p.src[p.pos])
			}
			p.pos++
			continue
		}
		b.WriteByte(c)
		p.pos++
	}
}

func (p *parser) parseKeyword() (*Node, error) {
	start := p.pos
	p.pos++ // consume ':'
	name := p.readToken()
	if name == "" {
		return nil, hosterr.New(hosterr.SchemaError, "planlang: empty keyword")
	}
	return litNode(value.Keyword(name), start), nil
}

func (p *parser) parseAtom() (*Node, error) {
	start := p.pos
	tok := p.readToken()
	if tok == "" {
		return nil, hosterr.Newf(hosterr.SchemaError, "planlang: unexpected character %q at byte %d", p.src[p.pos], p.pos)
	}
	switch tok {
	case "nil":
		return litNode(value.Nil, start), nil
	case "true":
		return litNode(value.Bool(true), start), nil
	case "false":
		return litNode(value.Bool(false), start), nil
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return litNode(value.Int(i), start), nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return litNode(value.Float(f), start), nil
	}
	return symNode(tok, start), nil
}

func (p *parser) readToken() string {
	start := p.pos
	for p.pos < len(p.src) && !isDelimiter(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func isDelimiter(c byte) bool {
	return unicode.IsSpace(rune(c)) || c == '(' || c == ')' || c == ';'
}
