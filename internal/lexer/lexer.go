package lexer

import (
	"conduit/internal/token"
	"strings"
	"unicode"
	"unicode/utf8"
)

type Lexer struct {
	input        string
	position     int  // current byte position in input (points to start of current rune)
	readPosition int  // next byte position in input (start of next rune)
	ch           rune // current rune under examination; 0 means EOF

	parenDepth int // newlines are insignificant inside ( )
	err        *token.Diagnostic
}

func New(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar()
	return l
}

// Tokenize scans the whole input. The returned slice always ends with EOF
// unless an illegal character or unterminated literal was found.
func Tokenize(input string) ([]token.Token, error) {
	l := New(input)
	tokens := make([]token.Token, 0, len(input)/3+1)
	for {
		tok := l.NextToken()
		if tok.Type == token.ILLEGAL {
			if l.err != nil {
				return tokens, *l.err
			}
			return tokens, token.NewDiagnostic(input, tok.Position, "illegal character %q", tok.Literal)
		}
		tokens = append(tokens, tok)
		if tok.Type == token.EOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) NextToken() token.Token {
	tok := l.scan()
	tok.End = l.position
	return tok
}

func (l *Lexer) scan() token.Token {
	var tok token.Token

	l.skipWhitespace()

	startPosition := l.position

	switch l.ch {
	case '\n':
		if l.parenDepth > 0 || l.continuesWithPipe() {
			l.readChar()
			return l.scan()
		}
		tok = newToken(token.NEWLINE, l.ch, startPosition)
	case '+':
		tok = newToken(token.PLUS, l.ch, startPosition)
	case '-':
		tok = l.handleCompoundToken(token.MINUS, '>', token.ARROW)
	case '*':
		tok = newToken(token.ASTERISK, l.ch, startPosition)
	case '/':
		tok = newToken(token.SLASH, l.ch, startPosition)
	case '%':
		tok = newToken(token.PERCENT, l.ch, startPosition)
	case '<':
		tok = l.handleCompoundToken(token.LT, '=', token.LT_EQ)
	case '>':
		tok = l.handleCompoundToken(token.GT, '=', token.GT_EQ)
	case '=':
		if l.peekChar() == '=' {
			tok = l.handleCompoundToken(token.ILLEGAL, '=', token.EQ)
		} else {
			tok = newToken(token.ILLEGAL, l.ch, startPosition)
		}
	case '!':
		tok = l.handleCompoundToken(token.BANG, '=', token.NOT_EQ)
	case ':':
		if l.peekChar() == '=' {
			tok = l.handleCompoundToken(token.ILLEGAL, '=', token.BIND)
		} else {
			tok = newToken(token.ILLEGAL, l.ch, startPosition)
		}
	case '|':
		if l.peekChar() == '>' {
			tok = l.handleCompoundToken(token.ILLEGAL, '>', token.PIPE)
		} else {
			tok = newToken(token.ILLEGAL, l.ch, startPosition)
		}
	case '^':
		tok = newToken(token.CARET, l.ch, startPosition)
	case '?':
		tok = newToken(token.QUESTION, l.ch, startPosition)
	case '_':
		if isLetter(l.peekChar()) || isDigit(l.peekChar()) {
			tok.Literal = l.readIdentifier()
			tok.Type = token.LookupIdent(tok.Literal)
			tok.Position = startPosition
			return tok
		}
		tok = newToken(token.UNDERSCORE, l.ch, startPosition)
	case ',':
		tok = newToken(token.COMMA, l.ch, startPosition)
	case ';':
		tok = newToken(token.SEMICOLON, l.ch, startPosition)
	case '(':
		l.parenDepth++
		tok = newToken(token.LPAREN, l.ch, startPosition)
	case ')':
		if l.parenDepth > 0 {
			l.parenDepth--
		}
		tok = newToken(token.RPAREN, l.ch, startPosition)
	case '{':
		tok = newToken(token.LBRACE, l.ch, startPosition)
	case '}':
		tok = newToken(token.RBRACE, l.ch, startPosition)
	case '"':
		literal, ok := l.readString()
		if !ok {
			return token.Token{Type: token.ILLEGAL, Literal: literal, Position: startPosition}
		}
		return token.Token{Type: token.STRING, Literal: literal, Position: startPosition}
	case 0:
		tok.Literal = ""
		tok.Type = token.EOF
		tok.Position = startPosition
		return tok
	default:
		if isLetter(l.ch) {
			tok.Literal = l.readIdentifier()
			tok.Type = token.LookupIdent(tok.Literal)
			tok.Position = startPosition
			return tok
		} else if isDigit(l.ch) {
			literal, err := l.readNumber()
			if err != "" {
				d := token.NewDiagnostic(l.input, startPosition, "%s", err)
				l.err = &d
				return token.Token{Type: token.ILLEGAL, Literal: literal, Position: startPosition}
			}
			return token.Token{Type: token.NUMBER, Literal: literal, Position: startPosition}
		}
		tok = newToken(token.ILLEGAL, l.ch, startPosition)
	}

	l.readChar()
	return tok
}

// handleCompoundToken consumes a two-rune token when the next rune is ch1,
// otherwise emits the single-rune token t.
func (l *Lexer) handleCompoundToken(t token.TokenType, ch1 rune, t1 token.TokenType) token.Token {
	startPosition := l.position
	if l.peekChar() == ch1 {
		first := l.ch
		l.readChar()
		literal := string(first) + string(l.ch)
		return token.Token{Type: t1, Literal: literal, Position: startPosition}
	}
	return newToken(t, l.ch, startPosition)
}

func (l *Lexer) skipWhitespace() {
	for {
		switch l.ch {
		case ' ', '\t', '\r':
			l.readChar()
		case '#':
			l.skipToLineEnd()
		case '/':
			if l.peekChar() == '/' {
				l.skipToLineEnd()
			} else {
				return
			}
		default:
			return
		}
	}
}

func (l *Lexer) skipToLineEnd() {
	for l.ch != '\n' && l.ch != 0 {
		l.readChar()
	}
}

// continuesWithPipe reports whether the next non-blank line starts with |>,
// which lets a pipeline be written one stage per line.
func (l *Lexer) continuesWithPipe() bool {
	rest := strings.TrimLeft(l.input[l.readPosition:], " \t\r\n")
	return strings.HasPrefix(rest, "|>")
}

// readChar advances by one UTF-8 rune, updating byte positions
func (l *Lexer) readChar() {
	if l.readPosition >= len(l.input) {
		l.ch = 0
		l.position = l.readPosition
		return
	}
	r, size := utf8.DecodeRuneInString(l.input[l.readPosition:])
	l.ch = r
	l.position = l.readPosition
	l.readPosition += size
}

// peekChar returns the next rune without advancing; returns 0 at EOF
func (l *Lexer) peekChar() rune {
	if l.readPosition >= len(l.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.input[l.readPosition:])
	return r
}

func (l *Lexer) readIdentifier() string {
	start := l.position
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	return l.input[start:l.position]
}

// readNumber accepts digits with '_' separators, an optional fraction and an
// optional exponent. The separators are dropped from the literal.
func (l *Lexer) readNumber() (string, string) {
	var sb strings.Builder
	readDigits := func() string {
		for isDigit(l.ch) || l.ch == '_' {
			if l.ch == '_' {
				prev := l.input[l.position-1]
				if !isDigit(rune(prev)) || !isDigit(l.peekChar()) {
					return "underscore must be between digits in number literal"
				}
			} else {
				sb.WriteRune(l.ch)
			}
			l.readChar()
		}
		return ""
	}
	if err := readDigits(); err != "" {
		return sb.String(), err
	}
	if l.ch == '.' && isDigit(l.peekChar()) {
		sb.WriteRune(l.ch)
		l.readChar()
		if err := readDigits(); err != "" {
			return sb.String(), err
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		sb.WriteRune(l.ch)
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			sb.WriteRune(l.ch)
			l.readChar()
		}
		if !isDigit(l.ch) {
			return sb.String(), "expected digit in number exponent"
		}
		for isDigit(l.ch) {
			sb.WriteRune(l.ch)
			l.readChar()
		}
	}
	return sb.String(), ""
}

// readString consumes a double-quoted literal, handling \n \t \r \" and \\.
func (l *Lexer) readString() (string, bool) {
	start := l.position
	var sb strings.Builder
	l.readChar() // opening "
	for {
		switch l.ch {
		case '"':
			l.readChar()
			return sb.String(), true
		case 0, '\n':
			d := token.NewDiagnostic(l.input, start, "unterminated string literal")
			l.err = &d
			return sb.String(), false
		case '\\':
			l.readChar()
			switch l.ch {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '"', '\\':
				sb.WriteRune(l.ch)
			default:
				d := token.NewDiagnostic(l.input, l.position, "unknown escape sequence \\%c", l.ch)
				l.err = &d
				return sb.String(), false
			}
		default:
			sb.WriteRune(l.ch)
		}
		l.readChar()
	}
}

// Unicode-aware helpers
func isLetter(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch) || unicode.Is(unicode.Mn, ch) || unicode.Is(unicode.Mc, ch)
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

func newToken(tokenType token.TokenType, ch rune, position int) token.Token {
	return token.Token{Type: tokenType, Literal: string(ch), Position: position}
}
