package parser

import (
	"conduit/internal/ast"
	"encoding/json"
	"strings"
	"testing"
)

func parseOK(t *testing.T, input string) *ast.Program {
	t.Helper()
	program, diags := Parse(input)
	if len(diags) > 0 {
		for _, d := range diags {
			t.Errorf("parser error: %s", d.Error())
		}
		t.FailNow()
	}
	return program
}

func TestOperatorPrecedenceParsing(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1 + 2 * 3", "(1 + (2 * 3))"},
		{"(1 + 2) * 3", "((1 + 2) * 3)"},
		{"-a * b", "((-a) * b)"},
		{"a - b - c", "((a - b) - c)"},
		{"a % b / c", "((a % b) / c)"},
		{"a == b < c", "(a == (b < c))"},
		{"a + b >= c * d", "((a + b) >= (c * d))"},
		{"not a and b", "((not a) and b)"},
		{"a or b and c", "(a or (b and c))"},
		{"x := 1 + 2", "x := (1 + 2)"},
		{"^a + b", "(^a + b)"},
		{"?(10 / 0) or 1", "(?(10 / 0) or 1)"},
		{"!f(x)", "!f(x)"},
		{"add(1, 2 * 3)", "add(1, (2 * 3))"},
		{"5 |> (_ + 1)", "5 |> (_ + 1)"},
		{"a + 1 |> f", "(a + 1) |> f"},
		{"fn(x) -> x + 1", "fn(x) -> (x + 1)"},
		{"fn() -> none", "fn() -> none"},
		{`s := "a" + "b"`, `s := ("a" + "b")`},
		{"match x { 1 -> true; -1 -> false; _ -> none }", "match x { 1 -> true; (-1) -> false; _ -> none }"},
	}

	for _, tt := range tests {
		program := parseOK(t, tt.input)
		if actual := program.String(); actual != tt.expected {
			t.Errorf("Parse(%q) = %q, want %q", tt.input, actual, tt.expected)
		}
	}
}

func TestPipeIsLeftAssociative(t *testing.T) {
	program := parseOK(t, "a |> b |> c")
	if len(program.Expressions) != 1 {
		t.Fatalf("got %d expressions, want 1", len(program.Expressions))
	}

	outer, ok := program.Expressions[0].(*ast.PipeExpression)
	if !ok {
		t.Fatalf("expression is %T, want *ast.PipeExpression", program.Expressions[0])
	}
	if _, ok := outer.Left.(*ast.PipeExpression); !ok {
		t.Fatalf("left side is %T, want *ast.PipeExpression", outer.Left)
	}
	if id, ok := outer.Right.(*ast.Identifier); !ok || id.Value != "c" {
		t.Fatalf("right side is %s, want c", outer.Right)
	}
}

func TestMultiLinePipeline(t *testing.T) {
	program := parseOK(t, "src := 5\nsrc\n  |> (_ * 2)\n  |> (_ + 1)")
	if len(program.Expressions) != 2 {
		t.Fatalf("got %d expressions, want 2", len(program.Expressions))
	}
	if got := program.Label(1); !strings.HasPrefix(got, "src\n") || !strings.HasSuffix(got, "|> (_ + 1)") {
		t.Errorf("label of pipeline = %q", got)
	}
}

func TestStatementsAndLabels(t *testing.T) {
	program := parseOK(t, "a := 1\n\nb := a + 2; b\n")
	want := []string{"a := 1", "b := a + 2", "b"}

	if len(program.Expressions) != len(want) {
		t.Fatalf("got %d expressions, want %d", len(program.Expressions), len(want))
	}
	for i, w := range want {
		if got := program.Label(i); got != w {
			t.Errorf("label %d = %q, want %q", i, got, w)
		}
	}
}

func TestPolicyExpressions(t *testing.T) {
	tests := []struct {
		input  string
		policy ast.Policy
	}{
		{"^x", ast.PolicyKeepWrapped},
		{"?x", ast.PolicyUnwrapOrNone},
		{"!x", ast.PolicyPanicOnError},
	}

	for _, tt := range tests {
		program := parseOK(t, tt.input)
		pe, ok := program.Expressions[0].(*ast.PolicyExpression)
		if !ok {
			t.Fatalf("Parse(%q) gave %T, want *ast.PolicyExpression", tt.input, program.Expressions[0])
		}
		if pe.Policy != tt.policy {
			t.Errorf("Parse(%q) policy = %v, want %v", tt.input, pe.Policy, tt.policy)
		}
	}
}

func TestPoliciesAreMutuallyExclusive(t *testing.T) {
	for _, input := range []string{"?!x", "^?x", "!!x", "?(!x)", "^(^x)"} {
		_, diags := Parse(input)
		if len(diags) == 0 {
			t.Errorf("Parse(%q) succeeded, want a conflicting policy error", input)
			continue
		}
		if !strings.Contains(diags[0].Message, "conflicting policy markers") {
			t.Errorf("Parse(%q) error = %q", input, diags[0].Message)
		}
	}
}

func TestMatchExpression(t *testing.T) {
	program := parseOK(t, "ok(5) |> match { ok(v) -> v; err(m) -> 0 }")

	pipe, ok := program.Expressions[0].(*ast.PipeExpression)
	if !ok {
		t.Fatalf("expression is %T, want *ast.PipeExpression", program.Expressions[0])
	}
	match, ok := pipe.Right.(*ast.MatchExpression)
	if !ok {
		t.Fatalf("pipe right is %T, want *ast.MatchExpression", pipe.Right)
	}
	if match.Value != nil {
		t.Fatalf("topic match has subject %s", match.Value)
	}
	if len(match.Cases) != 2 {
		t.Fatalf("got %d cases, want 2", len(match.Cases))
	}

	first, ok := match.Cases[0].Pattern.(*ast.ResultPattern)
	if !ok || !first.Ok {
		t.Fatalf("first pattern is %s, want ok(...)", match.Cases[0].Pattern)
	}
	if _, ok := first.Inner.(*ast.IdentifierPattern); !ok {
		t.Errorf("ok inner pattern is %T, want *ast.IdentifierPattern", first.Inner)
	}

	second, ok := match.Cases[1].Pattern.(*ast.ResultPattern)
	if !ok || second.Ok {
		t.Fatalf("second pattern is %s, want err(...)", match.Cases[1].Pattern)
	}
}

func TestMatchCasesOnSeparateLines(t *testing.T) {
	program := parseOK(t, "match x {\n  \"a\" -> 1\n  _ -> 2\n}")
	match, ok := program.Expressions[0].(*ast.MatchExpression)
	if !ok {
		t.Fatalf("expression is %T, want *ast.MatchExpression", program.Expressions[0])
	}
	if len(match.Cases) != 2 {
		t.Fatalf("got %d cases, want 2", len(match.Cases))
	}
	if _, ok := match.Cases[0].Pattern.(*ast.LiteralPattern); !ok {
		t.Errorf("first pattern is %T, want *ast.LiteralPattern", match.Cases[0].Pattern)
	}
	if _, ok := match.Cases[1].Pattern.(*ast.WildcardPattern); !ok {
		t.Errorf("second pattern is %T, want *ast.WildcardPattern", match.Cases[1].Pattern)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input   string
		line    int
		column  int
		message string
	}{
		{"x := := 10", 1, 6, "no prefix parse function for :="},
		{"1 2", 1, 3, "unexpected NUMBER after expression"},
		{"a := 1\nb := (2", 2, 8, "expected next token to be )"},
		{"fn(a, a) -> a", 1, 7, "duplicate parameter"},
		{"match x { }", 1, 11, "match expression has no cases"},
		{"match x { + -> 1 }", 1, 11, "unexpected + in match pattern"},
		{`"open`, 1, 1, "unterminated string literal"},
	}

	for _, tt := range tests {
		_, diags := Parse(tt.input)
		if len(diags) == 0 {
			t.Errorf("Parse(%q) succeeded, want error", tt.input)
			continue
		}
		d := diags[0]
		if !strings.Contains(d.Message, tt.message) {
			t.Errorf("Parse(%q) message = %q, want it to contain %q", tt.input, d.Message, tt.message)
		}
		if d.Line != tt.line || d.Column != tt.column {
			t.Errorf("Parse(%q) at %d:%d, want %d:%d", tt.input, d.Line, d.Column, tt.line, tt.column)
		}
	}
}

func TestOneDiagnosticPerBadStatement(t *testing.T) {
	_, diags := Parse("x := := 1\ny := 2\nz := * 3")
	if len(diags) != 2 {
		t.Fatalf("got %d diagnostics, want 2: %v", len(diags), diags)
	}
	if diags[1].Line != 3 {
		t.Errorf("second diagnostic on line %d, want 3", diags[1].Line)
	}
}

func TestRenderASTAsJSON(t *testing.T) {
	program := parseOK(t, "x := 1 + 2")
	out, err := RenderASTAsJSON(program)
	if err != nil {
		t.Fatal(err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("rendered AST is not JSON: %v", err)
	}
	if !strings.Contains(string(out), `"label": "x := 1 + 2"`) {
		t.Errorf("rendered AST is missing the statement label:\n%s", out)
	}
}
