package evaluator

import (
	"conduit/internal/ast"
	"conduit/internal/object"
)

// evalPipeExpression evaluates `left |> right`. An error on the left stops
// the pipe before the right side runs. The right side sees the left value
// as the topic `_`; if it evaluates to a function, the function is called
// with the topic.
func (e *Evaluator) evalPipeExpression(node *ast.PipeExpression) object.Value {
	left := e.Eval(node.Left)
	if left.IsError() {
		r, _ := left.AsResult()
		return object.Wrap(r.Annotated(e.alloc, object.StageKey, object.StagePipeLeft))
	}

	e.pushTopic(left)
	right := e.Eval(node.Right)
	if fn, ok := right.AsFunction(); ok {
		right = e.applyFunction(fn, []object.Value{object.Unwrap(left)})
	}
	e.popTopic()

	if right.IsError() {
		r, _ := right.AsResult()
		return object.Wrap(r.Annotated(e.alloc, object.StageKey, object.StagePipeRight))
	}

	meta := object.Metadata{
		ExprSource:  node.String(),
		Annotations: map[string]string{},
	}
	if r, ok := right.AsResult(); ok {
		for k, v := range r.Meta.Annotations {
			meta.Annotations[k] = v
		}
	}
	meta.Annotations[object.KindKey] = object.KindPipe

	out := object.NewOk(e.alloc, object.Unwrap(right), meta)
	if r, ok := left.AsResult(); ok {
		out.MergeAnnotations(r.Meta)
	}
	return object.Wrap(out)
}

func (e *Evaluator) pushTopic(v object.Value) {
	e.topics = append(e.topics, v)
}

func (e *Evaluator) popTopic() {
	e.topics = e.topics[:len(e.topics)-1]
}
