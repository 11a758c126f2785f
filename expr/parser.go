package expr

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/adatao/ddf/errors"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

type lexer struct {
	src  string
	pos  int
	toks []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src}
	for l.pos < len(l.src) {
		c := rune(l.src[l.pos])
		switch {
		case unicode.IsSpace(c):
			l.pos++
		case c == '\'':
			if err := l.lexString(); err != nil {
				return nil, err
			}
		case c == '`':
			if err := l.lexQuotedIdent(); err != nil {
				return nil, err
			}
		case unicode.IsDigit(c) || (c == '.' && l.pos+1 < len(l.src) && unicode.IsDigit(rune(l.src[l.pos+1]))):
			l.lexNumber()
		case unicode.IsLetter(c) || c == '_':
			l.lexIdent()
		default:
			if err := l.lexOp(); err != nil {
				return nil, err
			}
		}
	}
	l.toks = append(l.toks, token{kind: tokEOF, pos: l.pos})
	return l.toks, nil
}

func (l *lexer) lexString() error {
	start := l.pos
	l.pos++
	var b strings.Builder
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '\'' {
			if l.pos+1 < len(l.src) && l.src[l.pos+1] == '\'' {
				b.WriteByte('\'')
				l.pos += 2
				continue
			}
			l.pos++
			l.toks = append(l.toks, token{kind: tokString, text: b.String(), pos: start})
			return nil
		}
		b.WriteByte(c)
		l.pos++
	}
	return fmt.Errorf("unterminated string literal at offset %d", start)
}

func (l *lexer) lexQuotedIdent() error {
	start := l.pos
	l.pos++
	end := strings.IndexByte(l.src[l.pos:], '`')
	if end < 0 {
		return fmt.Errorf("unterminated quoted identifier at offset %d", start)
	}
	l.toks = append(l.toks, token{kind: tokIdent, text: l.src[l.pos : l.pos+end], pos: start})
	l.pos += end + 1
	return nil
}

func (l *lexer) lexNumber() {
	start := l.pos
	for l.pos < len(l.src) {
		c := rune(l.src[l.pos])
		if unicode.IsDigit(c) || c == '.' || c == 'e' || c == 'E' {
			l.pos++
			continue
		}
		if (c == '+' || c == '-') && l.pos > start &&
			(l.src[l.pos-1] == 'e' || l.src[l.pos-1] == 'E') {
			l.pos++
			continue
		}
		break
	}
	l.toks = append(l.toks, token{kind: tokNumber, text: l.src[start:l.pos], pos: start})
}

func (l *lexer) lexIdent() {
	start := l.pos
	for l.pos < len(l.src) {
		c := rune(l.src[l.pos])
		if unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' {
			l.pos++
			continue
		}
		break
	}
	l.toks = append(l.toks, token{kind: tokIdent, text: l.src[start:l.pos], pos: start})
}

var twoCharOps = map[string]bool{
	"==": true, "!=": true, "<>": true, "<=": true, ">=": true,
}

func (l *lexer) lexOp() error {
	if l.pos+1 < len(l.src) && twoCharOps[l.src[l.pos:l.pos+2]] {
		l.toks = append(l.toks, token{kind: tokOp, text: l.src[l.pos : l.pos+2], pos: l.pos})
		l.pos += 2
		return nil
	}
	switch c := l.src[l.pos]; c {
	case '+', '-', '*', '/', '%', '=', '<', '>', '(', ')', ',', '.':
		l.toks = append(l.toks, token{kind: tokOp, text: string(c), pos: l.pos})
		l.pos++
		return nil
	default:
		return fmt.Errorf("unexpected character %q at offset %d", c, l.pos)
	}
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) cur() token  { return p.toks[p.pos] }
func (p *parser) next() token { t := p.toks[p.pos]; p.pos++; return t }

func (p *parser) isKeyword(kw string) bool {
	t := p.cur()
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.isKeyword(kw) {
		p.pos++
		return true
	}
	return false
}

func (p *parser) acceptOp(op string) bool {
	if p.cur().kind == tokOp && p.cur().text == op {
		p.pos++
		return true
	}
	return false
}

func (p *parser) expectOp(op string) error {
	if !p.acceptOp(op) {
		return fmt.Errorf("expected %q at offset %d", op, p.cur().pos)
	}
	return nil
}

// ParseExpr parses a standalone expression, as used in filter conditions and
// withColumn definitions.
func ParseExpr(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.cur().text, p.cur().pos)
	}
	return e, nil
}

// ParseSelectItem parses one select-list item, allowing `*`, `alias.*` and
// `expr AS name` forms.
func ParseSelectItem(src string) (Expr, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	e, err := p.parseSelectItem()
	if err != nil {
		return nil, err
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.cur().text, p.cur().pos)
	}
	return e, nil
}

// Statement features outside the restricted subset.
var rejectedKeywords = []string{
	"JOIN", "UNION", "GROUP", "ORDER", "HAVING", "LIMIT", "DISTINCT", "INSERT", "UPDATE", "DELETE", "WITH",
}

// ParseSelect parses a restricted SELECT statement. Queries using joins,
// unions, grouping, ordering or subqueries are rejected with an
// UnsupportedSQLError.
func ParseSelect(query string) (*SelectStmt, error) {
	toks, err := lex(query)
	if err != nil {
		return nil, errors.UnsupportedSQLError{Query: query, Reason: err.Error()}
	}
	for _, t := range toks {
		if t.kind != tokIdent {
			continue
		}
		for _, kw := range rejectedKeywords {
			if strings.EqualFold(t.text, kw) {
				return nil, errors.UnsupportedSQLError{Query: query, Reason: strings.ToUpper(kw) + " is not supported"}
			}
		}
	}
	p := &parser{toks: toks}
	stmt, err := p.parseSelect()
	if err != nil {
		return nil, errors.UnsupportedSQLError{Query: query, Reason: err.Error()}
	}
	return stmt, nil
}

func (p *parser) parseSelect() (*SelectStmt, error) {
	if !p.acceptKeyword("SELECT") {
		return nil, fmt.Errorf("expected SELECT at offset %d", p.cur().pos)
	}
	stmt := &SelectStmt{}
	for {
		item, err := p.parseSelectItem()
		if err != nil {
			return nil, err
		}
		stmt.Items = append(stmt.Items, item)
		if !p.acceptOp(",") {
			break
		}
	}
	if !p.acceptKeyword("FROM") {
		return nil, fmt.Errorf("expected FROM at offset %d", p.cur().pos)
	}
	from := p.cur()
	if from.kind != tokIdent {
		return nil, fmt.Errorf("expected frame alias after FROM at offset %d", from.pos)
	}
	p.pos++
	stmt.From = from.text
	if p.acceptKeyword("WHERE") {
		cond, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Where = cond
	}
	if p.cur().kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", p.cur().text, p.cur().pos)
	}
	return stmt, nil
}

func (p *parser) parseSelectItem() (Expr, error) {
	if p.acceptOp("*") {
		return &Star{}, nil
	}
	// alias.* needs two tokens of lookahead past the identifier
	if p.cur().kind == tokIdent && !isReserved(p.cur().text) &&
		p.pos+2 < len(p.toks) &&
		p.toks[p.pos+1].kind == tokOp && p.toks[p.pos+1].text == "." &&
		p.toks[p.pos+2].kind == tokOp && p.toks[p.pos+2].text == "*" {
		q := p.next().text
		p.pos += 2
		return &Star{Qualifier: q}, nil
	}
	e, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.acceptKeyword("AS") {
		name := p.cur()
		if name.kind != tokIdent {
			return nil, fmt.Errorf("expected name after AS at offset %d", name.pos)
		}
		p.pos++
		return &Alias{X: e, As: name.text}, nil
	}
	return e, nil
}

func (p *parser) parseExpr() (Expr, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (Expr, error) {
	x, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("OR") {
		y, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: "OR", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseAnd() (Expr, error) {
	x, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.acceptKeyword("AND") {
		y, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: "AND", X: x, Y: y}
	}
	return x, nil
}

func (p *parser) parseNot() (Expr, error) {
	if p.acceptKeyword("NOT") {
		x, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "NOT", X: x}, nil
	}
	return p.parseComparison()
}

var comparisonOps = map[string]string{
	"=": "=", "==": "=", "!=": "!=", "<>": "!=",
	"<": "<", "<=": "<=", ">": ">", ">=": ">=",
}

func (p *parser) parseComparison() (Expr, error) {
	x, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	if p.isKeyword("IS") {
		p.pos++
		negate := p.acceptKeyword("NOT")
		if !p.acceptKeyword("NULL") {
			return nil, fmt.Errorf("expected NULL after IS at offset %d", p.cur().pos)
		}
		return &IsNull{X: x, Negate: negate}, nil
	}
	if p.isKeyword("NOT") || p.isKeyword("IN") {
		negate := p.acceptKeyword("NOT")
		if !p.acceptKeyword("IN") {
			if negate {
				p.pos-- // plain NOT belongs to the caller
				return x, nil
			}
		} else {
			set, err := p.parseLiteralSet()
			if err != nil {
				return nil, err
			}
			return &In{X: x, Set: set, Negate: negate}, nil
		}
	}
	if t := p.cur(); t.kind == tokOp {
		if op, ok := comparisonOps[t.text]; ok {
			p.pos++
			y, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			return &Binary{Op: op, X: x, Y: y}, nil
		}
	}
	return x, nil
}

func (p *parser) parseLiteralSet() ([]Expr, error) {
	if err := p.expectOp("("); err != nil {
		return nil, err
	}
	var set []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		set = append(set, e)
		if p.acceptOp(",") {
			continue
		}
		break
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return set, nil
}

func (p *parser) parseAdd() (Expr, error) {
	x, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		if p.acceptOp("+") {
			y, err := p.parseMul()
			if err != nil {
				return nil, err
			}
			x = &Binary{Op: "+", X: x, Y: y}
		} else if p.acceptOp("-") {
			y, err := p.parseMul()
			if err != nil {
				return nil, err
			}
			x = &Binary{Op: "-", X: x, Y: y}
		} else {
			return x, nil
		}
	}
}

func (p *parser) parseMul() (Expr, error) {
	x, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		var op string
		switch {
		case p.acceptOp("*"):
			op = "*"
		case p.acceptOp("/"):
			op = "/"
		case p.acceptOp("%"):
			op = "%"
		default:
			return x, nil
		}
		y, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		x = &Binary{Op: op, X: x, Y: y}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.acceptOp("-") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &Unary{Op: "-", X: x}, nil
	}
	return p.parsePrimary()
}

var reservedWords = map[string]bool{
	"SELECT": true, "FROM": true, "WHERE": true, "AS": true,
	"AND": true, "OR": true, "NOT": true, "IS": true, "IN": true,
}

func isReserved(word string) bool {
	return reservedWords[strings.ToUpper(word)]
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.cur()
	switch t.kind {
	case tokNumber:
		p.pos++
		if !strings.ContainsAny(t.text, ".eE") {
			i, err := strconv.ParseInt(t.text, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("bad integer literal %q at offset %d", t.text, t.pos)
			}
			return &NumberLit{IsInt: true, Int: i, Float: float64(i)}, nil
		}
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("bad numeric literal %q at offset %d", t.text, t.pos)
		}
		return &NumberLit{Float: f}, nil
	case tokString:
		p.pos++
		return &StringLit{Value: t.text}, nil
	case tokIdent:
		upper := strings.ToUpper(t.text)
		switch upper {
		case "TRUE":
			p.pos++
			return &BoolLit{Value: true}, nil
		case "FALSE":
			p.pos++
			return &BoolLit{Value: false}, nil
		case "NULL":
			p.pos++
			return &NullLit{}, nil
		}
		if isReserved(t.text) {
			return nil, fmt.Errorf("unexpected keyword %q at offset %d", t.text, t.pos)
		}
		p.pos++
		if p.acceptOp("(") {
			call := &Call{Fn: upper}
			if !p.acceptOp(")") {
				for {
					arg, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					call.Args = append(call.Args, arg)
					if p.acceptOp(",") {
						continue
					}
					break
				}
				if err := p.expectOp(")"); err != nil {
					return nil, err
				}
			}
			return call, nil
		}
		if p.acceptOp(".") {
			name := p.cur()
			if name.kind != tokIdent {
				return nil, fmt.Errorf("expected column name after %q. at offset %d", t.text, name.pos)
			}
			p.pos++
			return &ColumnRef{Qualifier: t.text, Name: name.text}, nil
		}
		return &ColumnRef{Name: t.text}, nil
	case tokOp:
		if t.text == "(" {
			p.pos++
			e, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return e, nil
		}
	}
	return nil, fmt.Errorf("unexpected %q at offset %d", t.text, t.pos)
}
