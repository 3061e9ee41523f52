package config

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/openfroyo/planforge/pkg/model"
)

// exprScope resolves the names an expression may reference. Variables bound
// by quantifiers shadow action parameters.
type exprScope struct {
	problem *model.Problem
	params  map[string]*model.Parameter
	vars    map[string]*model.Variable
}

func newScope(p *model.Problem, params []*model.Parameter) exprScope {
	s := exprScope{problem: p, params: make(map[string]*model.Parameter)}
	for _, param := range params {
		s.params[param.Name()] = param
	}
	return s
}

func (s exprScope) withVars(vars []*model.Variable) exprScope {
	out := exprScope{problem: s.problem, params: s.params, vars: make(map[string]*model.Variable, len(s.vars)+len(vars))}
	for k, v := range s.vars {
		out.vars[k] = v
	}
	for _, v := range vars {
		out.vars[v.Name()] = v
	}
	return out
}

// sexpr is a parsed s-expression: either an atom or a list.
type sexpr struct {
	atom   string
	list   []sexpr
	pos    int
	isList bool
}

func (s sexpr) String() string {
	if !s.isList {
		return s.atom
	}
	parts := make([]string, len(s.list))
	for i, item := range s.list {
		parts[i] = item.String()
	}
	return "(" + strings.Join(parts, " ") + ")"
}

func tokenize(src string) ([]string, []int) {
	var tokens []string
	var positions []int
	i := 0
	for i < len(src) {
		c := rune(src[i])
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '(' || c == ')':
			tokens = append(tokens, string(c))
			positions = append(positions, i)
			i++
		case c == ';':
			for i < len(src) && src[i] != '\n' {
				i++
			}
		default:
			start := i
			for i < len(src) && !unicode.IsSpace(rune(src[i])) && src[i] != '(' && src[i] != ')' {
				i++
			}
			tokens = append(tokens, src[start:i])
			positions = append(positions, start)
		}
	}
	return tokens, positions
}

// readSExpr parses exactly one s-expression from src.
func readSExpr(src string) (sexpr, error) {
	tokens, positions := tokenize(src)
	if len(tokens) == 0 {
		return sexpr{}, fmt.Errorf("empty expression")
	}
	i := 0
	var read func() (sexpr, error)
	read = func() (sexpr, error) {
		if i >= len(tokens) {
			return sexpr{}, fmt.Errorf("unexpected end of expression")
		}
		tok, pos := tokens[i], positions[i]
		i++
		switch tok {
		case ")":
			return sexpr{}, fmt.Errorf("unexpected ')' at offset %d", pos)
		case "(":
			node := sexpr{isList: true, pos: pos}
			for {
				if i >= len(tokens) {
					return sexpr{}, fmt.Errorf("unclosed '(' at offset %d", pos)
				}
				if tokens[i] == ")" {
					i++
					return node, nil
				}
				child, err := read()
				if err != nil {
					return sexpr{}, err
				}
				node.list = append(node.list, child)
			}
		default:
			return sexpr{atom: tok, pos: pos}, nil
		}
	}
	node, err := read()
	if err != nil {
		return sexpr{}, err
	}
	if i != len(tokens) {
		return sexpr{}, fmt.Errorf("trailing input at offset %d", positions[i])
	}
	return node, nil
}

// ParseExpression parses an expression in s-expression syntax against the
// objects and fluents of p, with params in scope as ?name.
func ParseExpression(p *model.Problem, src string, params ...*model.Parameter) (*model.Expression, error) {
	node, err := readSExpr(src)
	if err != nil {
		return nil, err
	}
	return newScope(p, params).build(node)
}

func (s exprScope) build(node sexpr) (*model.Expression, error) {
	if !node.isList {
		return s.atom(node.atom)
	}
	if len(node.list) == 0 {
		return nil, fmt.Errorf("empty list at offset %d", node.pos)
	}
	head := node.list[0]
	if head.isList {
		return nil, fmt.Errorf("expected operator or fluent at offset %d, got %s", head.pos, head)
	}
	rest := node.list[1:]

	switch head.atom {
	case "exists", "forall":
		return s.quantifier(head.atom, rest, node.pos)
	}

	args := make([]model.Term, len(rest))
	for i, child := range rest {
		e, err := s.build(child)
		if err != nil {
			return nil, err
		}
		args[i] = e
	}

	arity := func(n int) error {
		if len(args) != n {
			return fmt.Errorf("%s takes %d arguments, got %d", head.atom, n, len(args))
		}
		return nil
	}
	atLeast := func(n int) error {
		if len(args) < n {
			return fmt.Errorf("%s takes at least %d arguments, got %d", head.atom, n, len(args))
		}
		return nil
	}

	switch head.atom {
	case "and":
		return model.And(args...), nil
	case "or":
		return model.Or(args...), nil
	case "not":
		if err := arity(1); err != nil {
			return nil, err
		}
		return model.Not(args[0]), nil
	case "implies", "imply":
		if err := arity(2); err != nil {
			return nil, err
		}
		return model.Implies(args[0], args[1]), nil
	case "iff":
		if err := arity(2); err != nil {
			return nil, err
		}
		return model.Iff(args[0], args[1]), nil
	case "=", "==":
		if err := arity(2); err != nil {
			return nil, err
		}
		return model.Equals(args[0], args[1]), nil
	case "<=":
		if err := arity(2); err != nil {
			return nil, err
		}
		return model.LE(args[0], args[1]), nil
	case "<":
		if err := arity(2); err != nil {
			return nil, err
		}
		return model.LT(args[0], args[1]), nil
	case ">=":
		if err := arity(2); err != nil {
			return nil, err
		}
		return model.GE(args[0], args[1]), nil
	case ">":
		if err := arity(2); err != nil {
			return nil, err
		}
		return model.GT(args[0], args[1]), nil
	case "+":
		if err := atLeast(2); err != nil {
			return nil, err
		}
		return model.Plus(args...), nil
	case "-":
		if err := arity(2); err != nil {
			return nil, err
		}
		return model.Minus(args[0], args[1]), nil
	case "*":
		if err := atLeast(2); err != nil {
			return nil, err
		}
		return model.Times(args...), nil
	case "/":
		if err := arity(2); err != nil {
			return nil, err
		}
		return model.Div(args[0], args[1]), nil
	}

	f, ok := s.problem.FluentByName(head.atom)
	if !ok {
		return nil, fmt.Errorf("unknown operator or fluent %q at offset %d", head.atom, head.pos)
	}
	if f.Arity() != len(args) {
		return nil, fmt.Errorf("fluent %s takes %d arguments, got %d", f.Name(), f.Arity(), len(args))
	}
	return f.Of(args...), nil
}

// quantifier parses (exists (?x - T ?y ?z - U) body).
func (s exprScope) quantifier(op string, rest []sexpr, pos int) (*model.Expression, error) {
	if len(rest) != 2 || !rest[0].isList {
		return nil, fmt.Errorf("%s at offset %d expects a variable list and a body", op, pos)
	}
	var vars []*model.Variable
	var pending []string
	decls := rest[0].list
	for i := 0; i < len(decls); i++ {
		d := decls[i]
		if d.isList {
			return nil, fmt.Errorf("%s at offset %d: unexpected list in variable list", op, pos)
		}
		if d.atom == "-" {
			if i+1 >= len(decls) || decls[i+1].isList || len(pending) == 0 {
				return nil, fmt.Errorf("%s at offset %d: malformed variable list", op, pos)
			}
			t, ok := s.problem.UserTypeByName(decls[i+1].atom)
			if !ok {
				return nil, fmt.Errorf("unknown type %q", decls[i+1].atom)
			}
			for _, name := range pending {
				vars = append(vars, model.NewVariable(name, t))
			}
			pending = nil
			i++
			continue
		}
		if !strings.HasPrefix(d.atom, "?") || len(d.atom) == 1 {
			return nil, fmt.Errorf("variable %q must start with ?", d.atom)
		}
		pending = append(pending, d.atom[1:])
	}
	if len(pending) > 0 || len(vars) == 0 {
		return nil, fmt.Errorf("%s at offset %d: every variable needs a type", op, pos)
	}

	body, err := s.withVars(vars).build(rest[1])
	if err != nil {
		return nil, err
	}
	if op == "exists" {
		return model.Exists(body, vars...), nil
	}
	return model.Forall(body, vars...), nil
}

func (s exprScope) atom(tok string) (*model.Expression, error) {
	switch tok {
	case "true":
		return model.True(), nil
	case "false":
		return model.False(), nil
	}
	if strings.HasPrefix(tok, "?") {
		name := tok[1:]
		if v, ok := s.vars[name]; ok {
			return v.Expr(), nil
		}
		if param, ok := s.params[name]; ok {
			return param.Expr(), nil
		}
		return nil, fmt.Errorf("unbound name %s", tok)
	}
	if looksNumeric(tok) {
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			return model.Int(n), nil
		}
		n, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", tok)
		}
		return model.Real(n), nil
	}
	if o, ok := s.problem.ObjectByName(tok); ok {
		return o.Expr(), nil
	}
	if f, ok := s.problem.FluentByName(tok); ok {
		if f.Arity() != 0 {
			return nil, fmt.Errorf("fluent %s takes %d arguments", f.Name(), f.Arity())
		}
		return f.Of(), nil
	}
	return nil, fmt.Errorf("unknown name %q", tok)
}

func looksNumeric(tok string) bool {
	if tok == "" {
		return false
	}
	c := tok[0]
	if c == '-' || c == '+' {
		if len(tok) == 1 {
			return false
		}
		c = tok[1]
	}
	return (c >= '0' && c <= '9') || c == '.'
}

// FormatExpression renders e in the syntax read by ParseExpression.
func FormatExpression(e *model.Expression) string {
	var sb strings.Builder
	writeExpr(&sb, e)
	return sb.String()
}

var sexprOps = map[model.Op]string{
	model.OpAnd:     "and",
	model.OpOr:      "or",
	model.OpNot:     "not",
	model.OpImplies: "implies",
	model.OpIff:     "iff",
	model.OpEquals:  "=",
	model.OpLE:      "<=",
	model.OpLT:      "<",
	model.OpPlus:    "+",
	model.OpMinus:   "-",
	model.OpTimes:   "*",
	model.OpDiv:     "/",
}

func writeExpr(sb *strings.Builder, e *model.Expression) {
	switch e.Op() {
	case model.OpBool:
		sb.WriteString(strconv.FormatBool(e.BoolValue()))
	case model.OpInt:
		sb.WriteString(strconv.FormatInt(int64(e.NumberValue()), 10))
	case model.OpReal:
		sb.WriteString(formatReal(e.NumberValue()))
	case model.OpObject:
		sb.WriteString(e.Object().Name())
	case model.OpParameter:
		sb.WriteString("?" + e.Parameter().Name())
	case model.OpVariable:
		sb.WriteString("?" + e.Variable().Name())
	case model.OpFluent:
		sb.WriteString("(" + e.Fluent().Name())
		for _, a := range e.Args() {
			sb.WriteByte(' ')
			writeExpr(sb, a)
		}
		sb.WriteByte(')')
	case model.OpExists, model.OpForall:
		if e.Op() == model.OpExists {
			sb.WriteString("(exists (")
		} else {
			sb.WriteString("(forall (")
		}
		for i, v := range e.Variables() {
			if i > 0 {
				sb.WriteByte(' ')
			}
			fmt.Fprintf(sb, "?%s - %s", v.Name(), v.Type().Name())
		}
		sb.WriteString(") ")
		writeExpr(sb, e.Arg(0))
		sb.WriteByte(')')
	default:
		sb.WriteString("(" + sexprOps[e.Op()])
		for _, a := range e.Args() {
			sb.WriteByte(' ')
			writeExpr(sb, a)
		}
		sb.WriteByte(')')
	}
}

// formatReal keeps a decimal point so the value reads back as a real.
func formatReal(n float64) string {
	s := strconv.FormatFloat(n, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// ParseType resolves a type name: bool, int, real, int[lo, hi], real[lo, hi]
// or a user type declared in p.
func ParseType(p *model.Problem, name string) (*model.Type, error) {
	name = strings.TrimSpace(name)
	switch name {
	case "bool":
		return model.BoolType(), nil
	case "int", "integer":
		return model.IntType(), nil
	case "real":
		return model.RealType(), nil
	}

	if open := strings.IndexByte(name, '['); open > 0 && strings.HasSuffix(name, "]") {
		base := strings.TrimSpace(name[:open])
		bounds := strings.Split(name[open+1:len(name)-1], ",")
		if len(bounds) != 2 {
			return nil, fmt.Errorf("type %q: expected two bounds", name)
		}
		lo, hi := strings.TrimSpace(bounds[0]), strings.TrimSpace(bounds[1])
		switch base {
		case "int", "integer":
			l, err := strconv.ParseInt(lo, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("type %q: invalid lower bound: %w", name, err)
			}
			h, err := strconv.ParseInt(hi, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("type %q: invalid upper bound: %w", name, err)
			}
			if l > h {
				return nil, fmt.Errorf("type %q: empty range", name)
			}
			return model.BoundedIntType(l, h), nil
		case "real":
			l, err := strconv.ParseFloat(lo, 64)
			if err != nil {
				return nil, fmt.Errorf("type %q: invalid lower bound: %w", name, err)
			}
			h, err := strconv.ParseFloat(hi, 64)
			if err != nil {
				return nil, fmt.Errorf("type %q: invalid upper bound: %w", name, err)
			}
			if l > h {
				return nil, fmt.Errorf("type %q: empty range", name)
			}
			return model.BoundedRealType(l, h), nil
		}
		return nil, fmt.Errorf("type %q: only int and real take bounds", name)
	}

	if t, ok := p.UserTypeByName(name); ok {
		return t, nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}

// FormatType renders t in the syntax read by ParseType.
func FormatType(t *model.Type) string {
	if t.IsUser() {
		return t.Name()
	}
	return t.String()
}
