package util

import (
	"bytes"
	"fmt"
	"strings"
)

// SourceContext renders up to two lines before line plus line itself, with
// a caret under column and msg after it. Lines and columns start at 1.
func SourceContext(src string, line, column int, msg string) string {
	lines := strings.Split(src, "\n")
	if line < 1 || line > len(lines) {
		return msg
	}

	var result bytes.Buffer
	for i := max(line-2, 1); i <= line; i++ {
		content := lines[i-1]
		if i < line {
			fmt.Fprintf(&result, "     %3d | %s\n", i, content)
			continue
		}
		margin := fmt.Sprintf("  >  %3d | ", i)
		fmt.Fprintf(&result, "%s%s\n", margin, content)
		col := min(max(column-1, 0), len(content))
		fmt.Fprintf(&result, "%s^ %s", blankOut(margin+content[:col]), msg)
	}
	return result.String()
}

// blankOut keeps tabs so the caret lines up under tab-indented source.
func blankOut(s string) string {
	var buf bytes.Buffer
	for _, c := range s {
		if c == '\t' {
			buf.WriteRune('\t')
		} else {
			buf.WriteRune(' ')
		}
	}
	return buf.String()
}
