package evaluator

import (
	"conduit/internal/ast"
	"conduit/internal/object"
)

func (e *Evaluator) evalCallExpression(node *ast.CallExpression) object.Value {
	callee := e.evalDefault(node.Function)
	if callee.IsError() {
		return callee
	}
	fn, ok := callee.AsFunction()
	if !ok {
		return e.newError(object.NotCallable, "not a function: %s", callee.Type())
	}

	args, failure := e.evalExpressions(node.Arguments)
	if failure.IsError() {
		return failure
	}

	return e.applyFunction(fn, args)
}

// evalExpressions evaluates arguments left to right and stops at the first
// error. An argument marked ^ is passed as a Result, err included.
func (e *Evaluator) evalExpressions(exps []ast.Expression) ([]object.Value, object.Value) {
	result := make([]object.Value, 0, len(exps))

	for _, exp := range exps {
		evaluated := e.evalDefault(exp)
		if evaluated.IsError() && !isKeepWrapped(exp) {
			return nil, evaluated
		}
		result = append(result, evaluated)
	}

	return result, object.NONE
}

func (e *Evaluator) applyFunction(fn *object.Function, args []object.Value) object.Value {
	if n := fn.NumParams(); n >= 0 && n != len(args) {
		return e.newError(object.ArityMismatch, "wrong number of arguments: want=%d, got=%d", n, len(args))
	}

	e.depth++
	defer func() { e.depth-- }()
	if e.depth > e.config.MaxDepth {
		panic(object.Faultf("call depth limit %d exceeded", e.config.MaxDepth))
	}

	if fn.IsBuiltin() {
		return fn.Builtin(e, args...)
	}

	env := object.NewEnclosedEnvironment(fn.Env, e.alloc)
	for i, param := range fn.Parameters {
		if _, err := env.Set(param, args[i]); err != nil {
			return e.newError(object.VariableAlreadyDefined, "variable already defined: %s", param)
		}
	}

	e.PushEnv(env)
	defer e.PopEnv()
	return e.Eval(fn.Body)
}
