package evaluator

import (
	"conduit/internal/object"
	"fmt"
	"strings"
	"time"
)

var builtins = map[string]*object.Function{
	"ok":    funcOk(),
	"err":   funcErr(),
	"type":  funcType(),
	"print": funcPrint(),
	"sleep": funcSleep(),
	"len":   funcLen(),
	"str":   funcStr(),
}

func newBuiltin(name string, arity int, fn object.BuiltinFunction) *object.Function {
	return &object.Function{Name: name, Arity: arity, Builtin: fn}
}

// funcOk wraps its argument in an ok Result.
func funcOk() *object.Function {
	return newBuiltin("ok", 1, func(ctx object.CallContext, args ...object.Value) object.Value {
		return object.Wrap(object.NewOk(ctx.Allocator(), args[0], object.Metadata{}))
	})
}

// funcErr builds a user error whose message is the argument's text.
func funcErr() *object.Function {
	return newBuiltin("err", 1, func(ctx object.CallContext, args ...object.Value) object.Value {
		return object.Wrap(object.NewErr(ctx.Allocator(), object.UserError, args[0].Inspect(), object.Metadata{}))
	})
}

func funcType() *object.Function {
	return newBuiltin("type", 1, func(ctx object.CallContext, args ...object.Value) object.Value {
		return object.NewString(ctx.Allocator(), string(args[0].Type()))
	})
}

// funcPrint writes its arguments separated by spaces and returns none.
func funcPrint() *object.Function {
	return newBuiltin("print", -1, func(ctx object.CallContext, args ...object.Value) object.Value {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = arg.Inspect()
		}
		fmt.Fprintln(ctx.Output(), strings.Join(parts, " "))
		return object.NONE
	})
}

// funcSleep blocks for the given number of milliseconds, or until the
// attempt's context is cancelled.
func funcSleep() *object.Function {
	return newBuiltin("sleep", 1, func(ctx object.CallContext, args ...object.Value) object.Value {
		ms, ok := args[0].AsNumber()
		if !ok {
			return object.Errorf(ctx.Allocator(), object.TypeMismatch, "argument to `sleep` must be number, got %s", args[0].Type())
		}
		timer := time.NewTimer(time.Duration(ms * float64(time.Millisecond)))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Context().Done():
		}
		return object.NONE
	})
}

func funcLen() *object.Function {
	return newBuiltin("len", 1, func(ctx object.CallContext, args ...object.Value) object.Value {
		s, ok := args[0].AsString()
		if !ok {
			return object.Errorf(ctx.Allocator(), object.TypeMismatch, "argument to `len` must be string, got %s", args[0].Type())
		}
		return object.Number(float64(len(s)))
	})
}

func funcStr() *object.Function {
	return newBuiltin("str", 1, func(ctx object.CallContext, args ...object.Value) object.Value {
		return object.NewString(ctx.Allocator(), args[0].Inspect())
	})
}
