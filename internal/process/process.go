// Package process runs programs in supervised attempts. Every attempt owns
// a private arena that is reclaimed in bulk when the attempt ends; values
// handed back to the caller are promoted into the Process's heap first.
package process

import (
	"conduit/internal/arena"
	"conduit/internal/evaluator"
	"conduit/internal/object"
	"conduit/internal/parser"
	"conduit/internal/trace"
	"conduit/internal/util/future"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// RunAttempt is the outcome of one tokenize, parse and evaluate pass.
type RunAttempt struct {
	Status   Status
	Value    object.Value
	Err      error
	Fatal    bool // not worth retrying: a ! failure or a host fault
	Trace    []trace.Entry
	Duration time.Duration
}

type Process struct {
	heap      *arena.Heap
	arena     *arena.Arena
	arenaOpts []arena.Option
	env       *object.Environment
	ids       trace.Counter
	timeout   time.Duration
	config    evaluator.Config
}

type Option func(*Process)

// WithEnvironment makes every attempt bind into env instead of a fresh
// Environment. The caller owns env and its allocator.
func WithEnvironment(env *object.Environment) Option {
	return func(p *Process) { p.env = env }
}

// WithTimeout sets the wall-clock budget of one attempt. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(p *Process) { p.timeout = d }
}

func WithTrace(enabled bool) Option {
	return func(p *Process) { p.config.EnableTrace = enabled }
}

// WithOutput directs the print builtin.
func WithOutput(w io.Writer) Option {
	return func(p *Process) { p.config.Output = w }
}

func WithMaxDepth(n int) Option {
	return func(p *Process) { p.config.MaxDepth = n }
}

func WithArenaOptions(opts ...arena.Option) Option {
	return func(p *Process) { p.arenaOpts = append(p.arenaOpts, opts...) }
}

// WithHeap replaces the long-lived allocator results are promoted into.
func WithHeap(h *arena.Heap) Option {
	return func(p *Process) { p.heap = h }
}

func NewProcess(opts ...Option) *Process {
	p := &Process{}
	for _, opt := range opts {
		opt(p)
	}
	if p.heap == nil {
		p.heap = arena.NewHeap("process")
	}
	p.arena = arena.New(p.arenaOpts...)
	return p
}

func (p *Process) Heap() *arena.Heap { return p.heap }

// ArenaStats reports on the arena the next attempt will use.
func (p *Process) ArenaStats() arena.Stats { return p.arena.Stats() }

// LastTaskID is the most recent task ID handed out by this Process.
func (p *Process) LastTaskID() uint64 { return p.ids.Last() }

// ExecuteOnce runs source once. Evaluation happens on a watchdog goroutine
// so a timeout or a cancelled ctx can be reported without waiting for it.
// An abandoned evaluation keeps its arena and stops at the next top-level
// expression; the Process continues with a new arena.
func (p *Process) ExecuteOnce(ctx context.Context, source string) RunAttempt {
	start := time.Now()
	attempt := p.executeOnce(ctx, source)
	attempt.Duration = time.Since(start)

	slog.Debug("attempt finished",
		slog.String("status", string(attempt.Status)),
		slog.Duration("duration", attempt.Duration),
		slog.Int("trace", len(attempt.Trace)),
		slog.String("arena", p.arena.Stats().String()),
	)
	return attempt
}

func (p *Process) executeOnce(ctx context.Context, source string) RunAttempt {
	work := p.arena
	parent := ctx
	var cancel context.CancelFunc
	if p.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	fut := future.New(func() (RunAttempt, error) {
		return p.evaluate(ctx, work, source), nil
	})

	attempt, err := fut.AwaitContext(ctx)
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
		cancel()
		p.arena = arena.New(p.arenaOpts...)

		err = fmt.Errorf("%w (%s)", ErrTimeout, p.timeout)
		if parent.Err() != nil {
			err = fmt.Errorf("attempt interrupted: %w", parent.Err())
		}
		slog.Warn("attempt abandoned",
			slog.Duration("budget", p.timeout),
			slog.String("abandoned_arena", work.Name()),
			slog.Any("error", err),
		)
		return RunAttempt{
			Status: StatusTimeout,
			Err:    err,
			Fatal:  true,
		}
	}

	work.Reset()

	if err != nil {
		var fault *object.Fault
		if errors.As(err, &fault) {
			slog.Error("host fault", slog.String("reason", fault.Reason))
		}
		return RunAttempt{
			Status: StatusEvalError,
			Err:    fmt.Errorf("attempt aborted: %w", err),
			Fatal:  true,
		}
	}
	return attempt
}

// evaluate runs on the watchdog goroutine. Everything it returns lives in
// the heap, so the caller may reset work afterwards.
func (p *Process) evaluate(ctx context.Context, work *arena.Arena, source string) RunAttempt {
	program, diags := parser.Parse(source)
	if len(diags) > 0 {
		return RunAttempt{Status: StatusParseError, Err: &ParseError{Diagnostics: diags}}
	}

	env := p.env
	if env == nil {
		env = object.NewEnvironment(p.heap)
		defer env.Clear()
	}

	out := evaluator.Evaluate(ctx, program, p.heap, work, env, p.config)
	if ctx.Err() != nil {
		// the watchdog gave up on this attempt; nothing is promoted
		return RunAttempt{Status: StatusTimeout, Err: ctx.Err()}
	}

	attempt := RunAttempt{
		Status: StatusSuccess,
		Value:  out.Value,
		Trace:  out.Trace.Promote(p.heap, &p.ids),
	}
	if out.Err != nil {
		evalErr := newEvalError(out.Err)
		attempt.Status = StatusEvalError
		attempt.Err = evalErr
		attempt.Fatal = evalErr.Fatal()
	}
	return attempt
}
