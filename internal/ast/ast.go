package ast

import (
	"bytes"
	"conduit/internal/token"
	"strconv"
	"strings"
)

// The base Node interface
type Node interface {
	TokenLiteral() string
	String() string
}

type Expression interface {
	Node
	expressionNode()
}

// Program is the ordered sequence of top-level expressions. Labels holds
// the trimmed source text of each expression, index-aligned with Expressions.
type Program struct {
	Expressions []Expression
	Labels      []string
}

func (p *Program) TokenLiteral() string {
	if len(p.Expressions) > 0 {
		return p.Expressions[0].TokenLiteral()
	}
	return ""
}

func (p *Program) String() string {
	var out bytes.Buffer

	for i, e := range p.Expressions {
		if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(e.String())
	}

	return out.String()
}

// Label returns the source label for the i-th top-level expression.
func (p *Program) Label(i int) string {
	if i < len(p.Labels) && p.Labels[i] != "" {
		return p.Labels[i]
	}
	return p.Expressions[i].String()
}

// Literals

type NumberLiteral struct {
	Token token.Token
	Value float64
}

func (n *NumberLiteral) expressionNode()      {}
func (n *NumberLiteral) TokenLiteral() string { return n.Token.Literal }
func (n *NumberLiteral) String() string       { return n.Token.Literal }

type StringLiteral struct {
	Token token.Token
	Value string
}

func (s *StringLiteral) expressionNode()      {}
func (s *StringLiteral) TokenLiteral() string { return s.Token.Literal }
func (s *StringLiteral) String() string       { return strconv.Quote(s.Value) }

type Boolean struct {
	Token token.Token
	Value bool
}

func (b *Boolean) expressionNode()      {}
func (b *Boolean) TokenLiteral() string { return b.Token.Literal }
func (b *Boolean) String() string       { return b.Token.Literal }

type None struct {
	Token token.Token
}

func (n *None) expressionNode()      {}
func (n *None) TokenLiteral() string { return n.Token.Literal }
func (n *None) String() string       { return "none" }

// Expressions

type Identifier struct {
	Token token.Token // the token.IDENT token
	Value string
}

func (i *Identifier) expressionNode()      {}
func (i *Identifier) TokenLiteral() string { return i.Token.Literal }
func (i *Identifier) String() string       { return i.Value }

// Topic is `_`, the value flowing into the current pipe stage.
type Topic struct {
	Token token.Token
}

func (t *Topic) expressionNode()      {}
func (t *Topic) TokenLiteral() string { return t.Token.Literal }
func (t *Topic) String() string       { return "_" }

type PrefixExpression struct {
	Token    token.Token // The prefix token, e.g. -
	Operator string
	Right    Expression
}

func (pe *PrefixExpression) expressionNode()      {}
func (pe *PrefixExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PrefixExpression) String() string {
	var out bytes.Buffer

	out.WriteString("(")
	out.WriteString(pe.Operator)
	if pe.Operator == "not" {
		out.WriteString(" ")
	}
	out.WriteString(pe.Right.String())
	out.WriteString(")")

	return out.String()
}

type InfixExpression struct {
	Token    token.Token // The operator token, e.g. +
	Left     Expression
	Operator string
	Right    Expression
}

func (ie *InfixExpression) expressionNode()      {}
func (ie *InfixExpression) TokenLiteral() string { return ie.Token.Literal }
func (ie *InfixExpression) String() string {
	var out bytes.Buffer

	out.WriteString("(")
	out.WriteString(ie.Left.String())
	out.WriteString(" " + ie.Operator + " ")
	out.WriteString(ie.Right.String())
	out.WriteString(")")

	return out.String()
}

// AssignmentExpression is `name := value`.
type AssignmentExpression struct {
	Token token.Token // the := token
	Name  *Identifier
	Value Expression
}

func (ae *AssignmentExpression) expressionNode()      {}
func (ae *AssignmentExpression) TokenLiteral() string { return ae.Token.Literal }
func (ae *AssignmentExpression) String() string {
	return ae.Name.String() + " := " + ae.Value.String()
}

type PipeExpression struct {
	Token token.Token // the |> token
	Left  Expression
	Right Expression
}

func (pe *PipeExpression) expressionNode()      {}
func (pe *PipeExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PipeExpression) String() string {
	return pe.Left.String() + " |> " + pe.Right.String()
}

// Policy selects how the Result of the wrapped expression is unwrapped.
type Policy int

const (
	PolicyDefault Policy = iota
	PolicyKeepWrapped
	PolicyUnwrapOrNone
	PolicyPanicOnError
)

func (p Policy) String() string {
	switch p {
	case PolicyKeepWrapped:
		return "^"
	case PolicyUnwrapOrNone:
		return "?"
	case PolicyPanicOnError:
		return "!"
	default:
		return ""
	}
}

// PolicyFromToken maps a policy marker token onto its Policy.
func PolicyFromToken(t token.TokenType) Policy {
	switch t {
	case token.CARET:
		return PolicyKeepWrapped
	case token.QUESTION:
		return PolicyUnwrapOrNone
	case token.BANG:
		return PolicyPanicOnError
	default:
		return PolicyDefault
	}
}

type PolicyExpression struct {
	Token  token.Token // the marker token
	Policy Policy
	Right  Expression
}

func (pe *PolicyExpression) expressionNode()      {}
func (pe *PolicyExpression) TokenLiteral() string { return pe.Token.Literal }
func (pe *PolicyExpression) String() string {
	return pe.Policy.String() + pe.Right.String()
}

type CallExpression struct {
	Token     token.Token // The '(' token
	Function  Expression  // Identifier or FunctionLiteral
	Arguments []Expression
}

func (ce *CallExpression) expressionNode()      {}
func (ce *CallExpression) TokenLiteral() string { return ce.Token.Literal }
func (ce *CallExpression) String() string {
	args := make([]string, 0, len(ce.Arguments))
	for _, a := range ce.Arguments {
		args = append(args, a.String())
	}
	return ce.Function.String() + "(" + strings.Join(args, ", ") + ")"
}

type FunctionLiteral struct {
	Token      token.Token // The 'fn' token
	Parameters []*Identifier
	Body       Expression
}

func (fl *FunctionLiteral) expressionNode()      {}
func (fl *FunctionLiteral) TokenLiteral() string { return fl.Token.Literal }
func (fl *FunctionLiteral) String() string {
	params := make([]string, 0, len(fl.Parameters))
	for _, p := range fl.Parameters {
		params = append(params, p.String())
	}
	return "fn(" + strings.Join(params, ", ") + ") -> " + fl.Body.String()
}

// MatchExpression dispatches on a value. A nil Value means the match is a
// pipe stage and inspects the topic.
type MatchExpression struct {
	Token token.Token // the 'match' token
	Value Expression
	Cases []*MatchCase
}

func (me *MatchExpression) expressionNode()      {}
func (me *MatchExpression) TokenLiteral() string { return me.Token.Literal }
func (me *MatchExpression) String() string {
	var out bytes.Buffer

	out.WriteString("match ")
	if me.Value != nil {
		out.WriteString(me.Value.String())
		out.WriteString(" ")
	}
	out.WriteString("{ ")
	for i, c := range me.Cases {
		if i > 0 {
			out.WriteString("; ")
		}
		out.WriteString(c.String())
	}
	out.WriteString(" }")

	return out.String()
}

type MatchCase struct {
	Token   token.Token // first token of the pattern
	Pattern MatchPattern
	Body    Expression
}

func (mc *MatchCase) String() string {
	return mc.Pattern.String() + " -> " + mc.Body.String()
}

type MatchPattern interface {
	Node
	patternNode()
}

// WildcardPattern `_` matches anything without binding.
type WildcardPattern struct {
	Token token.Token
}

func (wp *WildcardPattern) patternNode()         {}
func (wp *WildcardPattern) TokenLiteral() string { return wp.Token.Literal }
func (wp *WildcardPattern) String() string       { return "_" }

// IdentifierPattern binds the matched value to a name.
type IdentifierPattern struct {
	Token token.Token
	Value *Identifier
}

func (ip *IdentifierPattern) patternNode()         {}
func (ip *IdentifierPattern) TokenLiteral() string { return ip.Token.Literal }
func (ip *IdentifierPattern) String() string       { return ip.Value.String() }

// LiteralPattern compares against a number, string, boolean or none literal.
type LiteralPattern struct {
	Token token.Token
	Value Expression
}

func (lp *LiteralPattern) patternNode()         {}
func (lp *LiteralPattern) TokenLiteral() string { return lp.Token.Literal }
func (lp *LiteralPattern) String() string       { return lp.Value.String() }

// ResultPattern is `ok(p)` or `err(p)`.
type ResultPattern struct {
	Token token.Token // the ok / err identifier
	Ok    bool
	Inner MatchPattern
}

func (rp *ResultPattern) patternNode()         {}
func (rp *ResultPattern) TokenLiteral() string { return rp.Token.Literal }
func (rp *ResultPattern) String() string {
	tag := "err"
	if rp.Ok {
		tag = "ok"
	}
	return tag + "(" + rp.Inner.String() + ")"
}
