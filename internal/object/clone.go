package object

import "conduit/internal/arena"

// cloner deep-copies values into one allocator. Captured scopes are
// memoized so a closure that is reachable from its own scope is copied
// once.
type cloner struct {
	alloc  arena.Allocator
	scopes map[*Environment]*Environment
}

func newCloner(alloc arena.Allocator) *cloner {
	return &cloner{alloc: alloc}
}

func (c *cloner) value(v Value) Value {
	switch v.kind {
	case STRING_OBJ:
		buf := c.alloc.Alloc(len(v.str))
		copy(buf, v.str)
		return Value{kind: STRING_OBJ, str: buf}
	case RESULT_OBJ:
		return Wrap(c.result(v.res))
	case FUNCTION_OBJ:
		return FunctionValue(c.function(v.fn))
	}
	return v
}

func (c *cloner) result(r *Result) *Result {
	out := &Result{tag: r.tag, Meta: r.Meta.clone()}
	if r.tag == OK {
		c.alloc.Track(resultCellSize)
		out.payload = c.value(r.payload)
	} else {
		c.alloc.Track(resultCellSize + len(r.failure.Message))
		f := *r.failure
		out.failure = &f
	}
	return out
}

// function copies the record. The body is immutable AST and is shared.
func (c *cloner) function(f *Function) *Function {
	if f.IsBuiltin() {
		return f
	}
	c.alloc.Track(functionCellSize)
	out := *f
	out.Parameters = append([]string(nil), f.Parameters...)
	out.Env = c.scope(f.Env)
	return &out
}

// scope returns env unless it is an enclosed scope stored in another
// allocator, in which case its bindings are copied into a new scope in
// c.alloc. Root scopes and scopes already in c.alloc are kept as is.
func (c *cloner) scope(env *Environment) *Environment {
	if env == nil || env.Outer == nil || env.alloc == c.alloc {
		return env
	}
	if snap, ok := c.scopes[env]; ok {
		return snap
	}
	if c.scopes == nil {
		c.scopes = make(map[*Environment]*Environment)
	}

	snap := NewEnvironment(c.alloc)
	c.scopes[env] = snap
	snap.Outer = c.scope(env.Outer)

	env.mu.RLock()
	bindings := make(map[string]Value, len(env.Bindings))
	for name, b := range env.Bindings {
		bindings[name] = b.Value
	}
	env.mu.RUnlock()

	for name, v := range bindings {
		snap.Bindings[name] = &Binding{Value: c.value(v)}
	}
	return snap
}
