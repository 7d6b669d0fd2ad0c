package object

import (
	"conduit/internal/arena"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

var ErrAlreadyDefined = errors.New("variable already defined")

var nextID atomic.Uint64

// Environment is a write-once binding store. A name may be bound once
// across the whole scope chain; there is no shadowing and no rebinding.
//
// Every stored value is a deep copy living in the Environment's allocator,
// so nothing an Environment owns is reachable from another Environment or
// from a transient arena.
type Environment struct {
	ID       uint64
	Bindings map[string]*Binding
	Outer    *Environment

	alloc arena.Allocator
	mu    sync.RWMutex
}

type Binding struct {
	Value Value
}

func NewEnvironment(alloc arena.Allocator) *Environment {
	return &Environment{
		ID:       nextID.Add(1),
		Bindings: make(map[string]*Binding),
		alloc:    alloc,
	}
}

// NewEnclosedEnvironment opens a child scope, used for match arms and
// lambda bodies. The child stores into alloc, which is normally the
// attempt's arena.
func NewEnclosedEnvironment(outer *Environment, alloc arena.Allocator) *Environment {
	env := NewEnvironment(alloc)
	env.Outer = outer
	return env
}

func (e *Environment) Allocator() arena.Allocator { return e.alloc }

// Set clones val into the Environment and binds it to name. It returns the
// stored value as a borrowed view.
func (e *Environment) Set(name string, val Value) (Value, error) {
	if e.Has(name) {
		return NONE, fmt.Errorf("%w: %s", ErrAlreadyDefined, name)
	}

	stored := val.Clone(e.alloc)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.Bindings[name] = &Binding{Value: stored}

	slog.Debug("binding variable",
		slog.Uint64("env", e.ID),
		slog.String("name", name),
		slog.String("type", string(stored.Type())),
		slog.String("allocator", e.alloc.Name()),
	)
	return stored, nil
}

// Get walks the scope chain. The returned value is borrowed: it stays
// valid only until the owning Environment removes or clears the binding.
func (e *Environment) Get(name string) (Value, bool) {
	e.mu.RLock()
	binding, ok := e.Bindings[name]
	e.mu.RUnlock()

	if ok {
		return binding.Value, true
	}
	if e.Outer != nil {
		return e.Outer.Get(name)
	}
	return NONE, false
}

// Has reports whether name is bound anywhere in the scope chain.
func (e *Environment) Has(name string) bool {
	_, ok := e.Get(name)
	return ok
}

// Remove releases a local binding. It reports whether the name was bound
// in this scope.
func (e *Environment) Remove(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	binding, ok := e.Bindings[name]
	if !ok {
		return false
	}
	binding.Value.release(e.alloc)
	delete(e.Bindings, name)
	return true
}

// Clear releases every local binding, recursing through Result wrappers.
func (e *Environment) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for name, binding := range e.Bindings {
		binding.Value.release(e.alloc)
		delete(e.Bindings, name)
	}
}

// Names lists the local bindings in sorted order.
func (e *Environment) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.Bindings))
	for name := range e.Bindings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Environment) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.Bindings)
}
