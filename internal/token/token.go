package token

type TokenType string

const (
	ILLEGAL = "ILLEGAL"
	EOF     = "EOF"
	NEWLINE = "NEWLINE"

	// Identifiers + literals
	IDENT  = "IDENT"  // add, foobar, x, y, ...
	NUMBER = "NUMBER" // 1343456, 3.5, 1e3
	STRING = "STRING" // "foobar"

	// Operators
	PLUS     = "+"
	MINUS    = "-"
	ASTERISK = "*"
	SLASH    = "/"
	PERCENT  = "%"

	LT    = "<"
	LT_EQ = "<="
	GT    = ">"
	GT_EQ = ">="

	EQ     = "=="
	NOT_EQ = "!="

	BIND  = ":="
	PIPE  = "|>"
	ARROW = "->"

	// Policy markers
	CARET    = "^" // keep wrapped
	QUESTION = "?" // unwrap or none
	BANG     = "!" // panic on error

	UNDERSCORE = "_"

	// Delimiters
	COMMA     = ","
	SEMICOLON = ";"

	LPAREN = "("
	RPAREN = ")"
	LBRACE = "{"
	RBRACE = "}"

	// Keywords
	FUNCTION = "FUNCTION"
	MATCH    = "MATCH"
	TRUE     = "TRUE"
	FALSE    = "FALSE"
	NONE     = "NONE"
	AND      = "AND"
	OR       = "OR"
	NOT      = "NOT"
)

type Token struct {
	Type     TokenType
	Literal  string
	Position int // the src index of the token
	End      int // the src index just past the token
}

var keywords = map[string]TokenType{
	// constants
	"none":  NONE,
	"true":  TRUE,
	"false": FALSE,

	// declarations
	"fn": FUNCTION,

	// flow control
	"match": MATCH,

	// logic
	"and": AND,
	"or":  OR,
	"not": NOT,
}

func LookupIdent(ident string) TokenType {
	if tok, ok := keywords[ident]; ok {
		return tok
	}
	return IDENT
}

// IsPolicy reports whether t is one of the policy marker tokens.
func IsPolicy(t TokenType) bool {
	return t == CARET || t == QUESTION || t == BANG
}
