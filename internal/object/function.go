package object

import (
	"conduit/internal/arena"
	"conduit/internal/ast"
	"context"
	"fmt"
	"io"
	"strings"
)

// CallContext is what a builtin sees of the evaluator calling it.
type CallContext interface {
	Context() context.Context
	Allocator() arena.Allocator
	Output() io.Writer
}

type BuiltinFunction func(ctx CallContext, args ...Value) Value

// Function is either a lambda (Body set) or a builtin (Builtin set).
//
// A lambda keeps a pointer to the Environment it was created in so free
// names resolve lexically. Cloning a lambda into another allocator
// snapshots the enclosed scopes it captured; the root scope is shared.
type Function struct {
	Name       string
	Parameters []string
	Body       ast.Expression
	Env        *Environment

	Builtin BuiltinFunction
	Arity   int // builtins only; -1 is variadic
}

func (f *Function) IsBuiltin() bool { return f.Builtin != nil }

// NumParams is the number of arguments the function accepts, or -1.
func (f *Function) NumParams() int {
	if f.IsBuiltin() {
		return f.Arity
	}
	return len(f.Parameters)
}

func (f *Function) Inspect() string {
	if f.IsBuiltin() {
		return "<builtin " + f.Name + ">"
	}
	return fmt.Sprintf("fn(%s) -> %s", strings.Join(f.Parameters, ", "), f.Body.String())
}

// NewLambda allocates a function cell in alloc.
func NewLambda(alloc arena.Allocator, params []string, body ast.Expression, env *Environment) *Function {
	alloc.Track(functionCellSize)
	return &Function{Parameters: params, Body: body, Env: env}
}
