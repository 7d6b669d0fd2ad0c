package evaluator

import (
	"conduit/internal/ast"
	"conduit/internal/object"
	"math"
)

var (
	TRUE  = object.Bool(true)
	FALSE = object.Bool(false)
)

func nativeBoolToBooleanObject(input bool) object.Value {
	if input {
		return TRUE
	}
	return FALSE
}

func (e *Evaluator) evalPrefixExpression(operator string, right object.Value) object.Value {
	switch operator {
	case "-":
		n, ok := right.AsNumber()
		if !ok {
			return e.newError(object.TypeMismatch, "type mismatch: -%s", right.Type())
		}
		return object.Number(-n)
	case "not":
		b, ok := right.AsBool()
		if !ok {
			return e.newError(object.TypeMismatch, "type mismatch: not %s", right.Type())
		}
		return nativeBoolToBooleanObject(!b)
	default:
		return e.newError(object.UnknownOperator, "unknown operator: %s%s", operator, right.Type())
	}
}

func (e *Evaluator) evalInfixExpression(operator string, left, right object.Value) object.Value {
	switch operator {
	case "==":
		return nativeBoolToBooleanObject(object.Equal(left, right))
	case "!=":
		return nativeBoolToBooleanObject(!object.Equal(left, right))
	}

	switch {
	case left.Type() == object.NUMBER_OBJ && right.Type() == object.NUMBER_OBJ:
		return e.evalNumberInfixExpression(operator, left, right)
	case operator == "+" && left.Type() == object.STRING_OBJ && right.Type() == object.STRING_OBJ:
		return e.evalStringConcatenation(left, right)
	case isKnownOperator(operator):
		return e.newError(object.TypeMismatch, "type mismatch: %s %s %s",
			left.Type(), operator, right.Type())
	default:
		return e.newError(object.UnknownOperator, "unknown operator: %s %s %s",
			left.Type(), operator, right.Type())
	}
}

func isKnownOperator(operator string) bool {
	switch operator {
	case "+", "-", "*", "/", "%", "<", "<=", ">", ">=":
		return true
	}
	return false
}

func (e *Evaluator) evalNumberInfixExpression(operator string, left, right object.Value) object.Value {
	leftVal, _ := left.AsNumber()
	rightVal, _ := right.AsNumber()

	switch operator {
	case "+":
		return object.Number(leftVal + rightVal)
	case "-":
		return object.Number(leftVal - rightVal)
	case "*":
		return object.Number(leftVal * rightVal)
	case "/":
		if rightVal == 0 {
			return e.newError(object.DivisionByZero, "division by zero")
		}
		return object.Number(leftVal / rightVal)
	case "%":
		if rightVal == 0 {
			return e.newError(object.DivisionByZero, "division by zero")
		}
		return object.Number(math.Mod(leftVal, rightVal))
	case "<":
		return nativeBoolToBooleanObject(leftVal < rightVal)
	case "<=":
		return nativeBoolToBooleanObject(leftVal <= rightVal)
	case ">":
		return nativeBoolToBooleanObject(leftVal > rightVal)
	case ">=":
		return nativeBoolToBooleanObject(leftVal >= rightVal)
	default:
		return e.newError(object.UnknownOperator, "unknown operator: %s %s %s",
			left.Type(), operator, right.Type())
	}
}

// evalStringConcatenation builds a fresh string in the attempt's arena.
func (e *Evaluator) evalStringConcatenation(left, right object.Value) object.Value {
	l, _ := left.AsString()
	r, _ := right.AsString()
	return object.NewString(e.alloc, l+r)
}

// evalOrExpression is the fallback operator: the right side is evaluated
// only when the left is none, false or an error. An ok left side is
// unwrapped before the test unless it is marked ^.
func (e *Evaluator) evalOrExpression(node *ast.InfixExpression) object.Value {
	left := e.Eval(node.Left)
	if !left.IsError() && !isKeepWrapped(node.Left) {
		left = object.Unwrap(left)
	}
	if left.Truthy() {
		return left
	}
	return e.evalDefault(node.Right)
}

func (e *Evaluator) evalAndExpression(node *ast.InfixExpression) object.Value {
	left := e.evalDefault(node.Left)
	if left.IsError() {
		return left
	}
	l, ok := left.AsBool()
	if !ok {
		return e.newError(object.TypeMismatch, "type mismatch: %s and", left.Type())
	}
	if !l {
		return FALSE
	}

	right := e.evalDefault(node.Right)
	if right.IsError() {
		return right
	}
	if _, ok := right.AsBool(); !ok {
		return e.newError(object.TypeMismatch, "type mismatch: and %s", right.Type())
	}
	return right
}

// evalPolicyExpression applies a call-site policy marker.
func (e *Evaluator) evalPolicyExpression(node *ast.PolicyExpression) object.Value {
	v := e.Eval(node.Right)

	switch node.Policy {
	case ast.PolicyKeepWrapped:
		return object.Wrap(object.Lift(e.alloc, v))

	case ast.PolicyUnwrapOrNone:
		if v.IsError() {
			return object.NONE
		}
		return object.Unwrap(v)

	case ast.PolicyPanicOnError:
		if v.IsError() {
			r, _ := v.AsResult()
			return object.Wrap(r.Annotated(e.alloc, object.SeverityKey, object.SeverityFatal))
		}
		return object.Unwrap(v)
	}

	if v.IsError() {
		return v
	}
	return object.Unwrap(v)
}
