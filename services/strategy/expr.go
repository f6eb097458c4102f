package strategy

import (
	"strconv"
	"strings"
	"unicode"
)

// resolveExpression evaluates a small arithmetic expression (+ - * /,
// parentheses) whose identifiers are supplied by lookup. Any unresolvable
// token or syntax error yields (0, false) so a malformed condition degrades
// to "false" instead of aborting the run. This is a real parser, not string
// substitution into an interpreter.
func resolveExpression(expr string, lookup func(name string) (float64, bool)) (float64, bool) {
	toks, ok := tokenize(expr)
	if !ok {
		return 0, false
	}
	p := &exprParser{toks: toks, lookup: lookup}
	v, ok := p.parseSum()
	if !ok || p.pos != len(p.toks) {
		return 0, false
	}
	return v, true
}

type exprToken struct {
	kind byte // 'n' number, 'i' identifier, 'o' operator/paren
	text string
	num  float64
}

func tokenize(expr string) ([]exprToken, bool) {
	var toks []exprToken
	s := strings.TrimSpace(expr)
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case strings.ContainsRune("+-*/()", rune(c)):
			toks = append(toks, exprToken{kind: 'o', text: string(c)})
			i++
		case c >= '0' && c <= '9' || c == '.':
			j := i
			for j < len(s) && (s[j] >= '0' && s[j] <= '9' || s[j] == '.') {
				j++
			}
			v, err := strconv.ParseFloat(s[i:j], 64)
			if err != nil {
				return nil, false
			}
			toks = append(toks, exprToken{kind: 'n', num: v})
			i = j
		case unicode.IsLetter(rune(c)) || c == '_':
			j := i
			for j < len(s) && (unicode.IsLetter(rune(s[j])) || unicode.IsDigit(rune(s[j])) || s[j] == '_') {
				j++
			}
			toks = append(toks, exprToken{kind: 'i', text: s[i:j]})
			i = j
		default:
			return nil, false
		}
	}
	if len(toks) == 0 {
		return nil, false
	}
	return toks, true
}

type exprParser struct {
	toks   []exprToken
	pos    int
	lookup func(string) (float64, bool)
}

func (p *exprParser) peek() (exprToken, bool) {
	if p.pos >= len(p.toks) {
		return exprToken{}, false
	}
	return p.toks[p.pos], true
}

func (p *exprParser) parseSum() (float64, bool) {
	left, ok := p.parseProduct()
	if !ok {
		return 0, false
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != 'o' || (t.text != "+" && t.text != "-") {
			return left, true
		}
		p.pos++
		right, ok := p.parseProduct()
		if !ok {
			return 0, false
		}
		if t.text == "+" {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *exprParser) parseProduct() (float64, bool) {
	left, ok := p.parseUnary()
	if !ok {
		return 0, false
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != 'o' || (t.text != "*" && t.text != "/") {
			return left, true
		}
		p.pos++
		right, ok := p.parseUnary()
		if !ok {
			return 0, false
		}
		if t.text == "*" {
			left *= right
		} else {
			if right == 0 {
				return 0, false
			}
			left /= right
		}
	}
}

func (p *exprParser) parseUnary() (float64, bool) {
	t, ok := p.peek()
	if !ok {
		return 0, false
	}
	if t.kind == 'o' && t.text == "-" {
		p.pos++
		v, ok := p.parseUnary()
		return -v, ok
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, bool) {
	t, ok := p.peek()
	if !ok {
		return 0, false
	}
	switch t.kind {
	case 'n':
		p.pos++
		return t.num, true
	case 'i':
		p.pos++
		v, ok := p.lookup(t.text)
		return v, ok
	case 'o':
		if t.text != "(" {
			return 0, false
		}
		p.pos++
		v, ok := p.parseSum()
		if !ok {
			return 0, false
		}
		t, ok = p.peek()
		if !ok || t.text != ")" {
			return 0, false
		}
		p.pos++
		return v, true
	}
	return 0, false
}

// identifiers returns every identifier token in expr, for up-front
// validation. A tokenization failure returns the raw expression itself so
// the validator rejects it.
func identifiers(expr string) []string {
	if _, err := strconv.ParseFloat(strings.TrimSpace(expr), 64); err == nil {
		return nil
	}
	toks, ok := tokenize(expr)
	if !ok {
		return []string{expr}
	}
	var names []string
	for _, t := range toks {
		if t.kind == 'i' {
			names = append(names, t.text)
		}
	}
	return names
}
