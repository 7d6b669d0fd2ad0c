package evaluator

import (
	"conduit/internal/ast"
	"conduit/internal/object"
)

// evalMatchExpression tries each case in order. The subject is taken as a
// Result, so `err(...)` arms see failures instead of propagating them.
// Without an explicit subject the match inspects the pipe topic.
func (e *Evaluator) evalMatchExpression(node *ast.MatchExpression) object.Value {
	var subject object.Value
	if node.Value != nil {
		subject = e.Eval(node.Value)
	} else {
		subject = e.evalTopic()
		if len(e.topics) == 0 {
			return subject
		}
	}

	for _, mc := range node.Cases {
		result, matched := e.evalMatchCase(subject, mc)
		if matched {
			return result
		}
	}

	return e.newError(object.NoMatchFound, "no match for %s", subject.Literal())
}

func (e *Evaluator) evalMatchCase(subject object.Value, mc *ast.MatchCase) (object.Value, bool) {
	scope := object.NewEnclosedEnvironment(e.CurrentEnv(), e.alloc)

	matched, failure := e.patternMatches(mc.Pattern, subject, scope)
	if failure != nil {
		return *failure, true
	}
	if !matched {
		return object.NONE, false
	}

	e.PushEnv(scope)
	defer e.PopEnv()
	return e.Eval(mc.Body), true
}

// patternMatches reports whether pattern accepts v, binding names into
// scope. A binding that collides with an existing name yields an error
// value instead of a match.
func (e *Evaluator) patternMatches(pattern ast.MatchPattern, v object.Value, scope *object.Environment) (bool, *object.Value) {
	switch p := pattern.(type) {
	case *ast.WildcardPattern:
		return true, nil

	case *ast.IdentifierPattern:
		if _, err := scope.Set(p.Value.Value, v); err != nil {
			failure := e.newError(object.VariableAlreadyDefined, "variable already defined: %s", p.Value.Value)
			return false, &failure
		}
		return true, nil

	case *ast.LiteralPattern:
		if v.IsError() {
			return false, nil
		}
		literal := e.Eval(p.Value)
		return object.Equal(object.Unwrap(v), literal), nil

	case *ast.ResultPattern:
		r, isResult := v.AsResult()
		if p.Ok {
			switch {
			case !isResult:
				// a bare value is an implicit ok
				return e.patternMatches(p.Inner, v, scope)
			case r.IsOk():
				return e.patternMatches(p.Inner, r.Payload(), scope)
			}
			return false, nil
		}
		if !isResult || !r.IsErr() {
			return false, nil
		}
		return e.patternMatches(p.Inner, object.NewString(e.alloc, r.Failure().Message), scope)
	}

	panic(object.Faultf("unsupported match pattern %T", pattern))
}
