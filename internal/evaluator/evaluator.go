package evaluator

import (
	"conduit/internal/arena"
	"conduit/internal/ast"
	"conduit/internal/object"
	"conduit/internal/trace"
	"context"
	"io"
	"log/slog"
	"time"
)

const DefaultMaxDepth = 512

type Config struct {
	EnableTrace bool
	MaxDepth    int
	Output      io.Writer
}

type Evaluator struct {
	ctx      context.Context
	alloc    arena.Allocator // transient values for this attempt
	envStack []*object.Environment
	topics   []object.Value
	depth    int
	config   Config
	ledger   *trace.Ledger
	failed   bool
	now      func() time.Time

	interrupted error
}

// New prepares an evaluator that allocates intermediate values in temp and
// binds names into env.
func New(ctx context.Context, temp arena.Allocator, env *object.Environment, config Config) *Evaluator {
	if ctx == nil {
		ctx = context.Background()
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultMaxDepth
	}
	if config.Output == nil {
		config.Output = io.Discard
	}
	e := &Evaluator{
		ctx:    ctx,
		alloc:  temp,
		config: config,
		now:    time.Now,
	}
	if config.EnableTrace {
		e.ledger = &trace.Ledger{}
	}
	e.PushEnv(env)
	return e
}

// Outcome is what Evaluate hands back to its host.
type Outcome struct {
	Value object.Value   // final value, owned by the result allocator
	Err   *object.Result // unhandled top-level error, nil on success
	Trace *trace.Ledger  // values still borrowed from temp

	// Interrupted is the context error when evaluation stopped before the
	// last top-level expression.
	Interrupted error
}

// Evaluate runs program and returns its final value cloned into result.
// Trace values stay in temp until the caller promotes them.
//
// A host fault raised during evaluation propagates as a *object.Fault
// panic; callers that run untrusted programs recover it.
func Evaluate(
	ctx context.Context,
	program *ast.Program,
	result, temp arena.Allocator,
	env *object.Environment,
	config Config,
) Outcome {
	if env == nil {
		env = object.NewEnvironment(result)
	}
	e := New(ctx, temp, env, config)
	v := e.Eval(program).Clone(result)

	out := Outcome{Value: v, Trace: e.ledger, Interrupted: e.interrupted}
	if e.failed {
		out.Err, _ = v.AsResult()
	}
	return out
}

func (e *Evaluator) PushEnv(env *object.Environment) {
	e.envStack = append(e.envStack, env)
}

func (e *Evaluator) CurrentEnv() *object.Environment {
	if len(e.envStack) == 0 {
		panic(object.Faultf("environment stack is empty"))
	}
	return e.envStack[len(e.envStack)-1]
}

func (e *Evaluator) PopEnv() {
	if len(e.envStack) == 0 {
		panic(object.Faultf("attempted to pop from an empty environment stack"))
	}
	e.envStack = e.envStack[:len(e.envStack)-1]
}

// Ledger is nil unless tracing is enabled.
func (e *Evaluator) Ledger() *trace.Ledger { return e.ledger }

// CallContext implementation for builtins.

func (e *Evaluator) Context() context.Context   { return e.ctx }
func (e *Evaluator) Allocator() arena.Allocator { return e.alloc }
func (e *Evaluator) Output() io.Writer          { return e.config.Output }

func (e *Evaluator) Eval(node ast.Node) object.Value {
	switch node := node.(type) {

	case *ast.Program:
		return e.evalProgram(node)

	// Literals
	case *ast.NumberLiteral:
		return object.Number(node.Value)

	case *ast.StringLiteral:
		return object.NewString(e.alloc, node.Value)

	case *ast.Boolean:
		return object.Bool(node.Value)

	case *ast.None:
		return object.NONE

	// Expressions
	case *ast.Identifier:
		return e.evalIdentifier(node)

	case *ast.Topic:
		return e.evalTopic()

	case *ast.AssignmentExpression:
		return e.evalAssignmentExpression(node)

	case *ast.PrefixExpression:
		right := e.evalDefault(node.Right)
		if right.IsError() {
			return right
		}
		return e.evalPrefixExpression(node.Operator, right)

	case *ast.InfixExpression:
		switch node.Operator {
		case "or":
			return e.evalOrExpression(node)
		case "and":
			return e.evalAndExpression(node)
		}

		left := e.evalDefault(node.Left)
		if left.IsError() {
			return left
		}
		right := e.evalDefault(node.Right)
		if right.IsError() {
			return right
		}
		return e.evalInfixExpression(node.Operator, left, right)

	case *ast.PolicyExpression:
		return e.evalPolicyExpression(node)

	case *ast.PipeExpression:
		return e.evalPipeExpression(node)

	case *ast.FunctionLiteral:
		params := make([]string, len(node.Parameters))
		for i, p := range node.Parameters {
			params[i] = p.Value
		}
		return object.FunctionValue(object.NewLambda(e.alloc, params, node.Body, e.CurrentEnv()))

	case *ast.CallExpression:
		return e.evalCallExpression(node)

	case *ast.MatchExpression:
		return e.evalMatchExpression(node)
	}

	panic(object.Faultf("unsupported node %T", node))
}

// evalProgram evaluates top-level expressions in order and stops at the
// first one that yields an unhandled error Result. A cancelled context
// stops it before the next expression.
func (e *Evaluator) evalProgram(program *ast.Program) object.Value {
	result := object.NONE

	for i, expr := range program.Expressions {
		if err := e.ctx.Err(); err != nil {
			e.interrupted = err
			slog.Debug("evaluation interrupted",
				slog.Int("remaining", len(program.Expressions)-i),
				slog.Any("error", err),
			)
			return result
		}

		label := program.Label(i)
		start := e.now()
		result = e.Eval(expr)
		elapsed := e.now().Sub(start)

		result = e.stamp(result, label, start, elapsed)
		if e.ledger != nil {
			e.ledger.Record(label, result, start, elapsed)
		}

		if result.IsError() && !handlesError(expr) {
			e.failed = true
			r, _ := result.AsResult()
			slog.Debug("top-level expression failed",
				slog.String("expr", label),
				slog.String("kind", string(r.Failure().Kind)),
				slog.String("message", r.Failure().Message),
			)
			return result
		}
	}

	return result
}

// handlesError reports whether a top-level expression deliberately keeps an
// error as a value instead of failing the program.
func handlesError(expr ast.Expression) bool {
	if a, ok := expr.(*ast.AssignmentExpression); ok {
		return isKeepWrapped(a.Value)
	}
	return isKeepWrapped(expr)
}

// stamp fills in source and timing on a top-level Result.
func (e *Evaluator) stamp(v object.Value, label string, start time.Time, d time.Duration) object.Value {
	r, ok := v.AsResult()
	if !ok {
		return v
	}
	return object.Wrap(r.Stamped(e.alloc, label, start, d))
}

// evalDefault applies the default policy: an ok Result is unwrapped, an
// err Result propagates. An explicit ^ keeps the Result intact.
func (e *Evaluator) evalDefault(node ast.Expression) object.Value {
	v := e.Eval(node)
	if v.IsError() || isKeepWrapped(node) {
		return v
	}
	return object.Unwrap(v)
}

func isKeepWrapped(node ast.Expression) bool {
	p, ok := node.(*ast.PolicyExpression)
	return ok && p.Policy == ast.PolicyKeepWrapped
}

func (e *Evaluator) evalIdentifier(node *ast.Identifier) object.Value {
	if val, ok := e.CurrentEnv().Get(node.Value); ok {
		return val
	}
	if builtin, ok := builtins[node.Value]; ok {
		return object.FunctionValue(builtin)
	}
	return e.newError(object.UndefinedVariable, "undefined variable: %s", node.Value)
}

func (e *Evaluator) evalTopic() object.Value {
	if len(e.topics) == 0 {
		return e.newError(object.UndefinedVariable, "_ used outside a pipe stage")
	}
	return e.topics[len(e.topics)-1]
}

func (e *Evaluator) evalAssignmentExpression(node *ast.AssignmentExpression) object.Value {
	var val object.Value
	if isKeepWrapped(node.Value) {
		// ^ stores the Result itself, err included
		val = e.Eval(node.Value)
	} else {
		val = e.evalDefault(node.Value)
		if val.IsError() {
			return val
		}
	}

	stored, err := e.CurrentEnv().Set(node.Name.Value, val)
	if err != nil {
		return e.newError(object.VariableAlreadyDefined, "variable already defined: %s", node.Name.Value)
	}
	return stored
}

func (e *Evaluator) newError(kind object.ErrorKind, format string, a ...interface{}) object.Value {
	return object.Errorf(e.alloc, kind, format, a...)
}
