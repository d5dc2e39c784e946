package frontend

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"macrodex/internal/macros"
)

type tokKind uint8

const (
	tkNum tokKind = iota + 1
	tkIdent
	tkPunct
)

// ppToken is a token of a #if expression. off is the byte offset in the
// text it was lexed from; it is -1 for tokens produced by expansion.
type ppToken struct {
	kind tokKind
	text string
	val  int64
	off  int
}

var puncts = []string{
	"<<", ">>", "<=", ">=", "==", "!=", "&&", "||", "##",
	"(", ")", "!", "~", "-", "+", "*", "/", "%", "<", ">", "&", "^", "|", "?", ":", ",", "#",
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// lexExpr tokenizes preprocessor expression text, skipping whitespace,
// comments and line continuations.
func lexExpr(src string) ([]ppToken, error) {
	var toks []ppToken
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '\f' || c == '\v':
			i++
		case c == '\\' && i+1 < len(src) && (src[i+1] == '\n' || src[i+1] == '\r'):
			i += 2
		case strings.HasPrefix(src[i:], "//"):
			for i < len(src) && src[i] != '\n' {
				i++
			}
		case strings.HasPrefix(src[i:], "/*"):
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return nil, errors.New("unterminated comment")
			}
			i += end + 4
		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentChar(src[i]) {
				i++
			}
			toks = append(toks, ppToken{kind: tkIdent, text: src[start:i], off: start})
		case c >= '0' && c <= '9':
			start := i
			for i < len(src) && (isIdentChar(src[i]) || src[i] == '.') {
				i++
			}
			v, err := parseIntLiteral(src[start:i])
			if err != nil {
				return nil, err
			}
			toks = append(toks, ppToken{kind: tkNum, text: src[start:i], val: v, off: start})
		case c == '\'':
			start := i
			v, n, err := parseCharLiteral(src[i:])
			if err != nil {
				return nil, err
			}
			i += n
			toks = append(toks, ppToken{kind: tkNum, text: src[start:i], val: v, off: start})
		case c == '"':
			return nil, errors.New("string literal in expression")
		default:
			matched := false
			for _, p := range puncts {
				if strings.HasPrefix(src[i:], p) {
					toks = append(toks, ppToken{kind: tkPunct, text: p, off: i})
					i += len(p)
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("unexpected character %q", c)
			}
		}
	}
	return toks, nil
}

func parseIntLiteral(s string) (int64, error) {
	lit := strings.TrimRight(s, "uUlL")
	base := 10
	switch {
	case strings.HasPrefix(lit, "0x") || strings.HasPrefix(lit, "0X"):
		base, lit = 16, lit[2:]
	case strings.HasPrefix(lit, "0b") || strings.HasPrefix(lit, "0B"):
		base, lit = 2, lit[2:]
	case len(lit) > 1 && lit[0] == '0':
		base, lit = 8, lit[1:]
	}
	lit = strings.ReplaceAll(lit, "'", "")
	u, err := strconv.ParseUint(lit, base, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer literal %q", s)
	}
	return int64(u), nil
}

// parseCharLiteral parses 'c' and simple escapes, returning the value and
// the number of bytes consumed.
func parseCharLiteral(s string) (int64, int, error) {
	if len(s) < 3 {
		return 0, 0, errors.New("invalid character literal")
	}
	if s[1] != '\\' {
		if s[2] != '\'' {
			return 0, 0, errors.New("invalid character literal")
		}
		return int64(s[1]), 3, nil
	}
	if s[2] == '\'' {
		if len(s) < 4 || s[3] != '\'' {
			return 0, 0, errors.New("unterminated character literal")
		}
		return '\'', 4, nil
	}
	end := strings.IndexByte(s[2:], '\'')
	if end <= 0 {
		return 0, 0, errors.New("unterminated character literal")
	}
	esc := s[2 : 2+end]
	n := end + 3
	switch esc {
	case "n":
		return '\n', n, nil
	case "t":
		return '\t', n, nil
	case "r":
		return '\r', n, nil
	case "\\":
		return '\\', n, nil
	case "\"":
		return '"', n, nil
	case "a":
		return 7, n, nil
	case "b":
		return 8, n, nil
	case "f":
		return 12, n, nil
	case "v":
		return 11, n, nil
	}
	if esc[0] == 'x' {
		v, err := strconv.ParseUint(esc[1:], 16, 8)
		return int64(v), n, err
	}
	v, err := strconv.ParseUint(esc, 8, 8)
	return int64(v), n, err
}

// condHooks connects the evaluator to the macro table and the event stream.
// Offsets passed to defined and expands are relative to the condition text.
type condHooks struct {
	lookup  func(name string) *macros.MacroInfo
	defined func(name string, off int)
	expands func(name string, off int)
}

const maxExpansionDepth = 64

var errDepth = errors.New("macro expansion too deep")

type condEval struct {
	hooks condHooks
}

// evalCondition expands and evaluates the text of a #if or #elif.
func evalCondition(text string, hooks condHooks) (bool, error) {
	toks, err := lexExpr(text)
	if err != nil {
		return false, err
	}
	e := &condEval{hooks: hooks}
	expanded, err := e.expand(toks, nil, true, 0)
	if err != nil {
		return false, err
	}
	p := &exprParser{toks: expanded}
	v, err := p.parseTernary(true)
	if err != nil {
		return false, err
	}
	if p.pos != len(p.toks) {
		return false, fmt.Errorf("unexpected %q after expression", p.toks[p.pos].text)
	}
	return v != 0, nil
}

func num(v int64) ppToken { return ppToken{kind: tkNum, val: v, off: -1} }

func hidden(hide map[string]bool, name string) map[string]bool {
	out := make(map[string]bool, len(hide)+1)
	for k := range hide {
		out[k] = true
	}
	out[name] = true
	return out
}

// expand performs macro replacement. Events fire only for tokens of the
// original text (top), not for tokens produced by expansion.
func (e *condEval) expand(toks []ppToken, hide map[string]bool, top bool, depth int) ([]ppToken, error) {
	if depth > maxExpansionDepth {
		return nil, errDepth
	}
	var out []ppToken
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		if t.kind != tkIdent {
			out = append(out, t)
			continue
		}

		if t.text == "defined" {
			name, next, err := definedOperand(toks, i+1)
			if err != nil {
				return nil, err
			}
			info := e.hooks.lookup(name.text)
			if top && e.hooks.defined != nil {
				e.hooks.defined(name.text, name.off)
			}
			if info != nil {
				out = append(out, num(1))
			} else {
				out = append(out, num(0))
			}
			i = next - 1
			continue
		}

		info := e.hooks.lookup(t.text)
		if info == nil || hide[t.text] {
			out = append(out, t)
			continue
		}

		if !info.FunctionLike {
			if top && e.hooks.expands != nil {
				e.hooks.expands(t.text, t.off)
			}
			body, err := lexExpr(info.Body)
			if err != nil {
				return nil, err
			}
			expanded, err := e.expand(body, hidden(hide, t.text), false, depth+1)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
			continue
		}

		if i+1 >= len(toks) || toks[i+1].text != "(" {
			out = append(out, t)
			continue
		}
		args, next, err := collectArgs(toks, i+1)
		if err != nil {
			return nil, err
		}
		if top && e.hooks.expands != nil {
			e.hooks.expands(t.text, t.off)
		}
		substituted, err := e.substitute(info, args, hide, depth)
		if err != nil {
			return nil, err
		}
		expanded, err := e.expand(substituted, hidden(hide, t.text), false, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
		i = next - 1
	}
	return out, nil
}

// definedOperand parses "X" or "( X )" starting at toks[i].
func definedOperand(toks []ppToken, i int) (ppToken, int, error) {
	if i < len(toks) && toks[i].kind == tkIdent {
		return toks[i], i + 1, nil
	}
	if i+2 < len(toks) && toks[i].text == "(" && toks[i+1].kind == tkIdent && toks[i+2].text == ")" {
		return toks[i+1], i + 3, nil
	}
	return ppToken{}, 0, errors.New("malformed defined operator")
}

// collectArgs splits a parenthesized argument list starting at toks[i] == "(".
func collectArgs(toks []ppToken, i int) ([][]ppToken, int, error) {
	var (
		args  [][]ppToken
		cur   []ppToken
		depth int
	)
	for j := i + 1; j < len(toks); j++ {
		t := toks[j]
		switch {
		case t.text == "(":
			depth++
		case t.text == ")" && depth == 0:
			args = append(args, cur)
			return args, j + 1, nil
		case t.text == ")":
			depth--
		case t.text == "," && depth == 0:
			args = append(args, cur)
			cur = nil
			continue
		}
		cur = append(cur, t)
	}
	return nil, 0, errors.New("unterminated macro argument list")
}

func (e *condEval) substitute(info *macros.MacroInfo, args [][]ppToken, hide map[string]bool, depth int) ([]ppToken, error) {
	body, err := lexExpr(info.Body)
	if err != nil {
		return nil, err
	}
	params := make(map[string][]ppToken, len(info.Params))
	for k, p := range info.Params {
		if p == "..." {
			var rest []ppToken
			for m := k; m < len(args); m++ {
				if m > k {
					rest = append(rest, ppToken{kind: tkPunct, text: ",", off: -1})
				}
				rest = append(rest, args[m]...)
			}
			params["__VA_ARGS__"] = rest
			break
		}
		if k < len(args) {
			expanded, err := e.expand(args[k], hide, false, depth+1)
			if err != nil {
				return nil, err
			}
			params[p] = expanded
		}
	}
	var out []ppToken
	for _, t := range body {
		if t.kind == tkIdent {
			if repl, ok := params[t.text]; ok {
				out = append(out, repl...)
				continue
			}
		}
		t.off = -1
		out = append(out, t)
	}
	return out, nil
}

var binaryPrec = map[string]int{
	"||": 1, "&&": 2, "|": 3, "^": 4, "&": 5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

// exprParser evaluates expanded tokens by precedence climbing. live is false
// in short-circuited operands, where division by zero is not an error.
type exprParser struct {
	toks []ppToken
	pos  int
}

func (p *exprParser) peek() (ppToken, bool) {
	if p.pos >= len(p.toks) {
		return ppToken{}, false
	}
	return p.toks[p.pos], true
}

func (p *exprParser) parseTernary(live bool) (int64, error) {
	cond, err := p.parseBinary(1, live)
	if err != nil {
		return 0, err
	}
	t, ok := p.peek()
	if !ok || t.text != "?" {
		return cond, nil
	}
	p.pos++
	a, err := p.parseTernary(live && cond != 0)
	if err != nil {
		return 0, err
	}
	if t, ok := p.peek(); !ok || t.text != ":" {
		return 0, errors.New("expected ':' in conditional expression")
	}
	p.pos++
	b, err := p.parseTernary(live && cond == 0)
	if err != nil {
		return 0, err
	}
	if cond != 0 {
		return a, nil
	}
	return b, nil
}

func (p *exprParser) parseBinary(minPrec int, live bool) (int64, error) {
	lhs, err := p.parseUnary(live)
	if err != nil {
		return 0, err
	}
	for {
		t, ok := p.peek()
		if !ok || t.kind != tkPunct {
			return lhs, nil
		}
		prec, isBinary := binaryPrec[t.text]
		if !isBinary || prec < minPrec {
			return lhs, nil
		}
		p.pos++

		rhsLive := live
		switch t.text {
		case "&&":
			rhsLive = live && lhs != 0
		case "||":
			rhsLive = live && lhs == 0
		}
		rhs, err := p.parseBinary(prec+1, rhsLive)
		if err != nil {
			return 0, err
		}
		lhs, err = applyBinary(t.text, lhs, rhs, rhsLive)
		if err != nil {
			return 0, err
		}
	}
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func applyBinary(op string, a, b int64, live bool) (int64, error) {
	switch op {
	case "||":
		return boolInt(a != 0 || b != 0), nil
	case "&&":
		return boolInt(a != 0 && b != 0), nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "&":
		return a & b, nil
	case "==":
		return boolInt(a == b), nil
	case "!=":
		return boolInt(a != b), nil
	case "<":
		return boolInt(a < b), nil
	case ">":
		return boolInt(a > b), nil
	case "<=":
		return boolInt(a <= b), nil
	case ">=":
		return boolInt(a >= b), nil
	case "<<":
		return a << uint64(b&63), nil
	case ">>":
		return a >> uint64(b&63), nil
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/", "%":
		if b == 0 {
			if live {
				return 0, errors.New("division by zero in preprocessor expression")
			}
			return 0, nil
		}
		if op == "/" {
			return a / b, nil
		}
		return a % b, nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

func (p *exprParser) parseUnary(live bool) (int64, error) {
	t, ok := p.peek()
	if !ok {
		return 0, errors.New("unexpected end of expression")
	}
	if t.kind == tkPunct {
		switch t.text {
		case "!", "~", "-", "+":
			p.pos++
			v, err := p.parseUnary(live)
			if err != nil {
				return 0, err
			}
			switch t.text {
			case "!":
				return boolInt(v == 0), nil
			case "~":
				return ^v, nil
			case "-":
				return -v, nil
			}
			return v, nil
		case "(":
			p.pos++
			v, err := p.parseTernary(live)
			if err != nil {
				return 0, err
			}
			if t, ok := p.peek(); !ok || t.text != ")" {
				return 0, errors.New("missing ')'")
			}
			p.pos++
			return v, nil
		}
		return 0, fmt.Errorf("unexpected %q", t.text)
	}
	p.pos++
	if t.kind == tkNum {
		return t.val, nil
	}
	// Identifiers left after expansion evaluate to 0, except C++ true.
	if t.text == "true" {
		return 1, nil
	}
	return 0, nil
}
