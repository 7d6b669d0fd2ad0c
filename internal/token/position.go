package token

import "fmt"

// Diagnostic is a lexing or parsing failure located in the source text.
type Diagnostic struct {
	Line    int
	Column  int
	Message string
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("[%3d:%2d] %s", d.Line, d.Column, d.Message)
}

// NewDiagnostic builds a Diagnostic for the byte offset pos of src.
func NewDiagnostic(src string, pos int, format string, args ...any) Diagnostic {
	line, col := LineAndColumn(src, pos)
	return Diagnostic{Line: line, Column: col, Message: fmt.Sprintf(format, args...)}
}

// LineAndColumn converts a byte offset into 1-based line and column numbers.
func LineAndColumn(src string, pos int) (line int, column int) {
	line = 1
	column = 1
	for i, char := range src {
		if i >= pos {
			break
		}
		if char == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return
}
