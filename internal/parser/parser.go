package parser

import (
	"conduit/internal/ast"
	"conduit/internal/lexer"
	"conduit/internal/token"
	"errors"
	"strconv"
	"strings"
)

const (
	_           int = iota
	LOWEST          // assignment
	PIPE            // a |> b
	LOGICAL_OR      // or
	LOGICAL_AND     // and
	EQUALS          // ==
	COMPARISON      // > or <
	SUM             // +
	PRODUCT         // *
	PREFIX          // -X, not X, ^X
	CALL            // myFunction(X)
)

var precedences = map[token.TokenType]int{
	token.PIPE:     PIPE,
	token.OR:       LOGICAL_OR,
	token.AND:      LOGICAL_AND,
	token.EQ:       EQUALS,
	token.NOT_EQ:   EQUALS,
	token.LT:       COMPARISON,
	token.LT_EQ:    COMPARISON,
	token.GT:       COMPARISON,
	token.GT_EQ:    COMPARISON,
	token.PLUS:     SUM,
	token.MINUS:    SUM,
	token.SLASH:    PRODUCT,
	token.ASTERISK: PRODUCT,
	token.PERCENT:  PRODUCT,
	token.LPAREN:   CALL,
}

type (
	prefixParseFn func() ast.Expression
	infixParseFn  func(ast.Expression) ast.Expression
)

// Tokenizer is the token source a Parser consumes.
type Tokenizer interface {
	NextToken() token.Token
}

type Parser struct {
	tokenizer Tokenizer
	src       string // source code here
	errors    []token.Diagnostic

	curToken  token.Token
	peekToken token.Token

	prefixParseFns map[token.TokenType]prefixParseFn
	infixParseFns  map[token.TokenType]infixParseFn
}

func New(l Tokenizer, source string) *Parser {
	p := &Parser{
		tokenizer: l,
		src:       source,
	}

	p.prefixParseFns = make(map[token.TokenType]prefixParseFn)
	p.registerPrefix(token.NONE, p.parseNone)
	p.registerPrefix(token.IDENT, p.parseIdentifier)
	p.registerPrefix(token.UNDERSCORE, p.parseTopic)
	p.registerPrefix(token.NUMBER, p.parseNumberLiteral)
	p.registerPrefix(token.STRING, p.parseStringLiteral)
	p.registerPrefix(token.MINUS, p.parsePrefixExpression)
	p.registerPrefix(token.NOT, p.parsePrefixExpression)
	p.registerPrefix(token.CARET, p.parsePolicyExpression)
	p.registerPrefix(token.QUESTION, p.parsePolicyExpression)
	p.registerPrefix(token.BANG, p.parsePolicyExpression)
	p.registerPrefix(token.TRUE, p.parseBoolean)
	p.registerPrefix(token.FALSE, p.parseBoolean)
	p.registerPrefix(token.LPAREN, p.parseGroupedExpression)
	p.registerPrefix(token.FUNCTION, p.parseFunctionLiteral)
	p.registerPrefix(token.MATCH, p.parseMatchExpression)

	p.infixParseFns = make(map[token.TokenType]infixParseFn)
	p.registerInfix(token.PLUS, p.parseInfixExpression)
	p.registerInfix(token.MINUS, p.parseInfixExpression)
	p.registerInfix(token.SLASH, p.parseInfixExpression)
	p.registerInfix(token.ASTERISK, p.parseInfixExpression)
	p.registerInfix(token.PERCENT, p.parseInfixExpression)
	p.registerInfix(token.EQ, p.parseInfixExpression)
	p.registerInfix(token.NOT_EQ, p.parseInfixExpression)
	p.registerInfix(token.LT, p.parseInfixExpression)
	p.registerInfix(token.LT_EQ, p.parseInfixExpression)
	p.registerInfix(token.GT, p.parseInfixExpression)
	p.registerInfix(token.GT_EQ, p.parseInfixExpression)
	p.registerInfix(token.AND, p.parseInfixExpression)
	p.registerInfix(token.OR, p.parseInfixExpression)

	p.registerInfix(token.PIPE, p.parsePipeExpression)
	p.registerInfix(token.LPAREN, p.parseCallExpression)

	// Read two tokens, so curToken and peekToken are both set
	p.nextToken()
	p.nextToken()

	return p
}

// Parse tokenizes and parses src in one step. Lexing failures are reported
// as a single diagnostic.
func Parse(src string) (*ast.Program, []token.Diagnostic) {
	tokens, err := lexer.Tokenize(src)
	if err != nil {
		var d token.Diagnostic
		if errors.As(err, &d) {
			return nil, []token.Diagnostic{d}
		}
		return nil, []token.Diagnostic{{Line: 1, Column: 1, Message: err.Error()}}
	}
	p := New(NewTokenSliceProvider(tokens), src)
	program := p.ParseProgram()
	if len(p.Errors()) > 0 {
		return nil, p.Errors()
	}
	return program, nil
}

// TokenSliceProvider replays an already lexed token slice.
type TokenSliceProvider struct {
	tokens []token.Token
	pos    int
}

func NewTokenSliceProvider(tokens []token.Token) *TokenSliceProvider {
	return &TokenSliceProvider{tokens: tokens}
}

func (tsp *TokenSliceProvider) NextToken() token.Token {
	if tsp.pos >= len(tsp.tokens) {
		end := 0
		if len(tsp.tokens) > 0 {
			end = tsp.tokens[len(tsp.tokens)-1].End
		}
		return token.Token{Type: token.EOF, Position: end, End: end}
	}
	tok := tsp.tokens[tsp.pos]
	tsp.pos++
	return tok
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.tokenizer.NextToken()
}

func (p *Parser) curTokenIs(t token.TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) peekTokenIs(t token.TokenType) bool {
	return p.peekToken.Type == t
}

func (p *Parser) addError(message string, args ...interface{}) {
	p.errors = append(p.errors, token.NewDiagnostic(p.src, p.curToken.Position, message, args...))
}

func (p *Parser) peekError(t token.TokenType) {
	p.errors = append(p.errors, token.NewDiagnostic(p.src, p.peekToken.Position,
		"expected next token to be %s, got %s instead", t, p.peekToken.Type))
}

func (p *Parser) noPrefixParseFnError(t token.TokenType) {
	p.addError("no prefix parse function for %s found", t)
}

func (p *Parser) expectPeek(t token.TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.peekError(t)
	return false
}

func (p *Parser) Errors() []token.Diagnostic {
	return p.errors
}

func isSeparator(t token.TokenType) bool {
	return t == token.NEWLINE || t == token.SEMICOLON
}

func (p *Parser) ParseProgram() *ast.Program {
	program := &ast.Program{}

	for !p.curTokenIs(token.EOF) {
		if isSeparator(p.curToken.Type) {
			p.nextToken()
			continue
		}

		start := p.curToken.Position
		errCount := len(p.errors)
		exp := p.parseExpression(LOWEST)

		if len(p.errors) == errCount && !isSeparator(p.peekToken.Type) && !p.peekTokenIs(token.EOF) {
			p.errors = append(p.errors, token.NewDiagnostic(p.src, p.peekToken.Position,
				"unexpected %s after expression", p.peekToken.Type))
		}

		if len(p.errors) > errCount || exp == nil {
			p.skipToSeparator()
			continue
		}

		program.Expressions = append(program.Expressions, exp)
		program.Labels = append(program.Labels, strings.TrimSpace(p.src[start:p.curToken.End]))
		p.nextToken()
	}

	return program
}

// skipToSeparator discards tokens up to the end of the current statement so
// one malformed statement yields one diagnostic.
func (p *Parser) skipToSeparator() {
	for !p.curTokenIs(token.EOF) && !isSeparator(p.curToken.Type) {
		p.nextToken()
	}
}

func (p *Parser) parseExpression(precedence int) ast.Expression {
	prefix := p.prefixParseFns[p.curToken.Type]
	if prefix == nil {
		p.noPrefixParseFnError(p.curToken.Type)
		return nil
	}
	leftExp := prefix()
	if leftExp == nil {
		return nil
	}

	for !isSeparator(p.peekToken.Type) && precedence < p.peekPrecedence() {
		infix := p.infixParseFns[p.peekToken.Type]
		if infix == nil {
			return leftExp
		}

		p.nextToken()

		leftExp = infix(leftExp)
		if leftExp == nil {
			return nil
		}
	}

	return leftExp
}

func (p *Parser) peekPrecedence() int {
	if p, ok := precedences[p.peekToken.Type]; ok {
		return p
	}

	return LOWEST
}

func (p *Parser) curPrecedence() int {
	if p, ok := precedences[p.curToken.Type]; ok {
		return p
	}

	return LOWEST
}

func (p *Parser) parseIdentifier() ast.Expression {
	ident := &ast.Identifier{Token: p.curToken, Value: p.curToken.Literal}

	if p.peekTokenIs(token.BIND) {
		p.nextToken()
		return p.parseAssignmentExpression(ident)
	}

	return ident
}

func (p *Parser) parseAssignmentExpression(name *ast.Identifier) ast.Expression {
	expression := &ast.AssignmentExpression{
		Token: p.curToken,
		Name:  name,
	}

	p.nextToken()
	expression.Value = p.parseExpression(LOWEST)
	if expression.Value == nil {
		return nil
	}

	return expression
}

func (p *Parser) parseTopic() ast.Expression {
	return &ast.Topic{Token: p.curToken}
}

func (p *Parser) parseNumberLiteral() ast.Expression {
	lit := &ast.NumberLiteral{Token: p.curToken}

	value, err := strconv.ParseFloat(p.curToken.Literal, 64)
	if err != nil {
		p.addError("could not parse %q as number", p.curToken.Literal)
		return nil
	}

	lit.Value = value
	return lit
}

func (p *Parser) parseStringLiteral() ast.Expression {
	return &ast.StringLiteral{Token: p.curToken, Value: p.curToken.Literal}
}

func (p *Parser) parseBoolean() ast.Expression {
	return &ast.Boolean{Token: p.curToken, Value: p.curTokenIs(token.TRUE)}
}

func (p *Parser) parseNone() ast.Expression {
	return &ast.None{Token: p.curToken}
}

func (p *Parser) parsePrefixExpression() ast.Expression {
	expression := &ast.PrefixExpression{
		Token:    p.curToken,
		Operator: p.curToken.Literal,
	}

	p.nextToken()

	expression.Right = p.parseExpression(PREFIX)
	if expression.Right == nil {
		return nil
	}

	return expression
}

// parsePolicyExpression handles the ^ ? ! markers. A marker may not wrap an
// expression that already carries one: the policies are mutually exclusive.
func (p *Parser) parsePolicyExpression() ast.Expression {
	expression := &ast.PolicyExpression{
		Token:  p.curToken,
		Policy: ast.PolicyFromToken(p.curToken.Type),
	}

	if token.IsPolicy(p.peekToken.Type) {
		p.addError("conflicting policy markers %s and %s", p.curToken.Literal, p.peekToken.Literal)
		return nil
	}

	p.nextToken()

	expression.Right = p.parseExpression(PREFIX)
	if expression.Right == nil {
		return nil
	}

	if inner, ok := expression.Right.(*ast.PolicyExpression); ok {
		p.addError("conflicting policy markers %s and %s", expression.Token.Literal, inner.Token.Literal)
		return nil
	}

	return expression
}

func (p *Parser) parseInfixExpression(left ast.Expression) ast.Expression {
	expression := &ast.InfixExpression{
		Token:    p.curToken,
		Operator: p.curToken.Literal,
		Left:     left,
	}

	precedence := p.curPrecedence()
	p.nextToken()

	expression.Right = p.parseExpression(precedence)
	if expression.Right == nil {
		return nil
	}

	return expression
}

// parsePipeExpression builds a left-associative chain: a |> b |> c is (a |> b) |> c.
func (p *Parser) parsePipeExpression(left ast.Expression) ast.Expression {
	expression := &ast.PipeExpression{
		Token: p.curToken,
		Left:  left,
	}

	precedence := p.curPrecedence()
	p.nextToken()

	expression.Right = p.parseExpression(precedence)
	if expression.Right == nil {
		p.addError("expected expression after '|>'")
		return nil
	}

	return expression
}

func (p *Parser) parseGroupedExpression() ast.Expression {
	p.nextToken()

	exp := p.parseExpression(LOWEST)
	if exp == nil {
		return nil
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}

	return exp
}

func (p *Parser) parseFunctionLiteral() ast.Expression {
	lit := &ast.FunctionLiteral{Token: p.curToken}

	if !p.expectPeek(token.LPAREN) {
		return nil
	}

	lit.Parameters = p.parseFunctionParameters()
	if lit.Parameters == nil {
		return nil
	}

	if !p.expectPeek(token.ARROW) {
		return nil
	}

	p.nextToken()
	lit.Body = p.parseExpression(LOWEST)
	if lit.Body == nil {
		return nil
	}

	return lit
}

func (p *Parser) parseFunctionParameters() []*ast.Identifier {
	identifiers := []*ast.Identifier{}

	if p.peekTokenIs(token.RPAREN) {
		p.nextToken()
		return identifiers
	}

	seen := map[string]bool{}
	for {
		if !p.expectPeek(token.IDENT) {
			return nil
		}
		ident := &ast.Identifier{Token: p.curToken, Value: p.curToken.Literal}
		if seen[ident.Value] {
			p.addError("duplicate parameter %q", ident.Value)
			return nil
		}
		seen[ident.Value] = true
		identifiers = append(identifiers, ident)

		if !p.peekTokenIs(token.COMMA) {
			break
		}
		p.nextToken()
	}

	if !p.expectPeek(token.RPAREN) {
		return nil
	}

	return identifiers
}

func (p *Parser) parseCallExpression(function ast.Expression) ast.Expression {
	exp := &ast.CallExpression{Token: p.curToken, Function: function}
	exp.Arguments = p.parseExpressionList(token.RPAREN)
	if exp.Arguments == nil {
		return nil
	}
	return exp
}

func (p *Parser) parseExpressionList(end token.TokenType) []ast.Expression {
	list := []ast.Expression{}

	if p.peekTokenIs(end) {
		p.nextToken()
		return list
	}

	p.nextToken()
	first := p.parseExpression(LOWEST)
	if first == nil {
		return nil
	}
	list = append(list, first)

	for p.peekTokenIs(token.COMMA) {
		p.nextToken()
		p.nextToken()
		next := p.parseExpression(LOWEST)
		if next == nil {
			return nil
		}
		list = append(list, next)
	}

	if !p.expectPeek(end) {
		return nil
	}

	return list
}

func (p *Parser) parseMatchExpression() ast.Expression {
	match := &ast.MatchExpression{Token: p.curToken}

	// Without a subject the match inspects the pipe topic.
	if !p.peekTokenIs(token.LBRACE) {
		p.nextToken()
		match.Value = p.parseExpression(LOWEST)
		if match.Value == nil {
			return nil
		}
	}

	if !p.expectPeek(token.LBRACE) {
		return nil
	}
	p.nextToken()

	for !p.curTokenIs(token.RBRACE) {
		if p.curTokenIs(token.EOF) {
			p.addError("unterminated match expression")
			return nil
		}
		if isSeparator(p.curToken.Type) {
			p.nextToken()
			continue
		}

		matchCase := p.parseMatchCase()
		if matchCase == nil {
			return nil
		}
		match.Cases = append(match.Cases, matchCase)

		if !isSeparator(p.peekToken.Type) && !p.peekTokenIs(token.RBRACE) {
			p.peekError(token.SEMICOLON)
			return nil
		}
		p.nextToken()
	}

	if len(match.Cases) == 0 {
		p.addError("match expression has no cases")
		return nil
	}

	return match
}

func (p *Parser) parseMatchCase() *ast.MatchCase {
	matchCase := &ast.MatchCase{Token: p.curToken}

	matchCase.Pattern = p.parseMatchPattern()
	if matchCase.Pattern == nil {
		return nil
	}

	if !p.expectPeek(token.ARROW) {
		return nil
	}
	p.nextToken()

	matchCase.Body = p.parseExpression(LOWEST)
	if matchCase.Body == nil {
		return nil
	}

	return matchCase
}

func (p *Parser) parseMatchPattern() ast.MatchPattern {
	switch p.curToken.Type {
	case token.UNDERSCORE:
		return &ast.WildcardPattern{Token: p.curToken}
	case token.IDENT:
		tag := p.curToken
		if (tag.Literal == "ok" || tag.Literal == "err") && p.peekTokenIs(token.LPAREN) {
			p.nextToken()
			p.nextToken()
			inner := p.parseMatchPattern()
			if inner == nil {
				return nil
			}
			if !p.expectPeek(token.RPAREN) {
				return nil
			}
			return &ast.ResultPattern{Token: tag, Ok: tag.Literal == "ok", Inner: inner}
		}
		return &ast.IdentifierPattern{
			Token: p.curToken,
			Value: &ast.Identifier{Token: p.curToken, Value: p.curToken.Literal},
		}
	case token.NUMBER, token.STRING, token.TRUE, token.FALSE, token.NONE:
		tok := p.curToken
		expr := p.prefixParseFns[p.curToken.Type]()
		if expr == nil {
			return nil
		}
		return &ast.LiteralPattern{Token: tok, Value: expr}
	case token.MINUS:
		tok := p.curToken
		if !p.expectPeek(token.NUMBER) {
			return nil
		}
		number := p.parseNumberLiteral()
		if number == nil {
			return nil
		}
		return &ast.LiteralPattern{Token: tok, Value: &ast.PrefixExpression{Token: tok, Operator: "-", Right: number}}
	default:
		p.addError("unexpected %s in match pattern", p.curToken.Type)
		return nil
	}
}

func (p *Parser) registerPrefix(tokenType token.TokenType, fn prefixParseFn) {
	p.prefixParseFns[tokenType] = fn
}

func (p *Parser) registerInfix(tokenType token.TokenType, fn infixParseFn) {
	p.infixParseFns[tokenType] = fn
}
