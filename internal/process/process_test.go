package process

import (
	"bytes"
	"conduit/internal/arena"
	"conduit/internal/object"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestExecuteOnceEndToEnd(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		typ      object.ValueType
	}{
		{"x := 3 * 4", "12", object.NUMBER_OBJ},
		{`"a" + "b"`, "ab", object.STRING_OBJ},
		{"ok(5) |> match { ok(v) -> v; err(m) -> 0 }", "5", object.NUMBER_OBJ},
		{"?(10 / 0) or 1", "1", object.NUMBER_OBJ},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			p := NewProcess()
			attempt := p.ExecuteOnce(context.Background(), tt.input)

			require.Equal(t, StatusSuccess, attempt.Status, "err: %v", attempt.Err)
			v := object.Unwrap(attempt.Value)
			assert.Equal(t, tt.typ, v.Type())
			assert.Equal(t, tt.expected, v.Inspect())
		})
	}
}

func TestArenaResetIdempotence(t *testing.T) {
	const program = "a := \"abc\" + \"def\"\nb := a + \"!\"\nb"
	p := NewProcess(WithTrace(true), WithArenaOptions(arena.WithPoison(true)))

	var (
		got        []string
		heapDeltas []int
		capacity   int
	)
	for i := 0; i < 5; i++ {
		before := p.Heap().Stats().InUse
		attempt := p.ExecuteOnce(context.Background(), program)
		require.Equal(t, StatusSuccess, attempt.Status)

		got = append(got, string(attempt.Status)+":"+attempt.Value.Inspect())
		heapDeltas = append(heapDeltas, p.Heap().Stats().InUse-before)

		stats := p.ArenaStats()
		assert.Equal(t, 0, stats.InUse, "arena must be empty after attempt %d", i)
		if i == 0 {
			capacity = stats.Capacity
		}
		assert.Equal(t, capacity, stats.Capacity, "arena must not grow across attempts")
	}

	want := []string{"success:abcdef!", "success:abcdef!", "success:abcdef!", "success:abcdef!", "success:abcdef!"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("attempt outcomes differ (-want +got):\n%s", diff)
	}
	for _, d := range heapDeltas[1:] {
		assert.Equal(t, heapDeltas[0], d, "only promoted results may stay on the heap")
	}
}

func TestPromotedValuesSurviveArenaReset(t *testing.T) {
	p := NewProcess(WithTrace(true), WithArenaOptions(arena.WithPoison(true)))
	first := p.ExecuteOnce(context.Background(), `s := "kept"`)
	require.Equal(t, StatusSuccess, first.Status)

	// a second attempt reuses and then poisons the same arena chunks
	second := p.ExecuteOnce(context.Background(), `"other" + "value"`)
	require.Equal(t, StatusSuccess, second.Status)

	assert.Equal(t, "kept", first.Value.Inspect())
	require.Len(t, first.Trace, 1)
	assert.Equal(t, "kept", first.Trace[0].Value.Inspect())
}

func TestParseErrorIsTerminal(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{MaxRestarts: 5})
	result := s.Run(context.Background(), "x := := 10")

	assert.Equal(t, StatusParseError, result.Status)
	assert.Equal(t, 1, result.Attempts)

	var parseErr *ParseError
	require.True(t, errors.As(result.LastError, &parseErr))
	assert.NotEmpty(t, parseErr.Diagnostics)
}

func TestEvalErrorExhaustsRestarts(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{MaxRestarts: 3})
	result := s.Run(context.Background(), "x := unknown")

	assert.Equal(t, StatusFailedMaxRestarts, result.Status)
	assert.Equal(t, 3, result.Attempts)

	var evalErr *EvalError
	require.True(t, errors.As(result.LastError, &evalErr))
	assert.Equal(t, object.UndefinedVariable, evalErr.Kind)
	assert.Equal(t, "undefined variable: unknown", evalErr.Message)
}

func TestFatalErrorIsNotRetried(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{MaxRestarts: 3})
	result := s.Run(context.Background(), `!err("stop")`)

	assert.Equal(t, StatusEvalError, result.Status)
	assert.Equal(t, 1, result.Attempts)

	var evalErr *EvalError
	require.True(t, errors.As(result.LastError, &evalErr))
	assert.True(t, evalErr.Fatal())
	assert.Equal(t, "stop", evalErr.Message)
}

func TestSuccessStopsImmediately(t *testing.T) {
	s := NewSupervisor(DefaultSupervisorConfig())
	result := s.Run(context.Background(), "1 + 1")

	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.NoError(t, result.LastError)
	assert.Equal(t, "2", result.FinalValue.Inspect())
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", result.RunID.String())
}

func TestTraceMonotonicity(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{EnableTrace: true})

	first := s.Run(context.Background(), "a := 1\nb := 2\na + b")
	require.Equal(t, StatusSuccess, first.Status)
	require.Len(t, first.Trace, 3)

	var last uint64
	for _, e := range first.Trace {
		assert.Greater(t, e.TaskID, last)
		last = e.TaskID
	}

	second := s.Run(context.Background(), "1")
	require.Len(t, second.Trace, 1)
	assert.Greater(t, second.Trace[0].TaskID, last, "task IDs are scoped to the Process, not the run")
	assert.Equal(t, second.Trace[0].TaskID, s.Process().LastTaskID())
}

func TestTimeoutIsTerminal(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{MaxRestarts: 3, Timeout: 20 * time.Millisecond})
	result := s.Run(context.Background(), "sleep(5000)")

	assert.Equal(t, StatusTimeout, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.True(t, errors.Is(result.LastError, ErrTimeout))
	assert.Empty(t, result.Trace)

	// the Process keeps working on a fresh arena
	again := s.Run(context.Background(), "2 * 3")
	assert.Equal(t, StatusSuccess, again.Status)
	assert.Equal(t, "6", again.FinalValue.Inspect())
}

func TestHostFaultIsNotRetried(t *testing.T) {
	s := NewSupervisor(SupervisorConfig{MaxRestarts: 3}, WithMaxDepth(20))
	result := s.Run(context.Background(), "loop := fn(n) -> loop(n + 1)\nloop(0)")

	assert.Equal(t, StatusEvalError, result.Status)
	assert.Equal(t, 1, result.Attempts)

	var fault *object.Fault
	require.True(t, errors.As(result.LastError, &fault))
	assert.Equal(t, 0, s.Process().ArenaStats().InUse)
}

func TestFreshEnvironmentPerAttempt(t *testing.T) {
	p := NewProcess()
	for i := 0; i < 3; i++ {
		attempt := p.ExecuteOnce(context.Background(), "x := 1")
		require.Equal(t, StatusSuccess, attempt.Status)
	}
}

func TestWithEnvironmentPersistsBindings(t *testing.T) {
	env := object.NewEnvironment(arena.NewHeap("host"))
	p := NewProcess(WithEnvironment(env))

	require.Equal(t, StatusSuccess, p.ExecuteOnce(context.Background(), "x := 1").Status)

	next := p.ExecuteOnce(context.Background(), "x + 1")
	require.Equal(t, StatusSuccess, next.Status)
	assert.Equal(t, "2", next.Value.Inspect())

	rebind := p.ExecuteOnce(context.Background(), "x := 2")
	assert.Equal(t, StatusEvalError, rebind.Status)
	var evalErr *EvalError
	require.True(t, errors.As(rebind.Err, &evalErr))
	assert.Equal(t, object.VariableAlreadyDefined, evalErr.Kind)
}

func TestClosureSurvivesArenaReuse(t *testing.T) {
	env := object.NewEnvironment(arena.NewHeap("host"))
	p := NewProcess(WithEnvironment(env), WithArenaOptions(arena.WithPoison(true)))
	ctx := context.Background()

	first := p.ExecuteOnce(ctx, "mk := fn(s) -> fn() -> s\ng := mk(\"hel\" + \"lo\")\ng()")
	require.Equal(t, StatusSuccess, first.Status, "err: %v", first.Err)
	assert.Equal(t, "hello", first.Value.Inspect())

	// reuses and then poisons the chunks the call scope lived in
	filler := p.ExecuteOnce(ctx, `"other" + "value"`)
	require.Equal(t, StatusSuccess, filler.Status)

	again := p.ExecuteOnce(ctx, "g()")
	require.Equal(t, StatusSuccess, again.Status, "err: %v", again.Err)
	assert.Equal(t, "hello", again.Value.Inspect())
}

func TestTimedOutAttemptStopsBinding(t *testing.T) {
	env := object.NewEnvironment(arena.NewHeap("host"))
	p := NewProcess(WithEnvironment(env), WithTimeout(20*time.Millisecond))

	attempt := p.ExecuteOnce(context.Background(), "sleep(1000)\nlate := 1")
	require.Equal(t, StatusTimeout, attempt.Status)
	assert.True(t, errors.Is(attempt.Err, ErrTimeout))

	// give the abandoned evaluation time to reach its next statement
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, env.Names())

	retry := NewProcess(WithEnvironment(env)).ExecuteOnce(context.Background(), "late := 1")
	assert.Equal(t, StatusSuccess, retry.Status, "err: %v", retry.Err)
}

func TestCallerCancellationEndsAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(20*time.Millisecond, cancel)

	p := NewProcess()
	start := time.Now()
	attempt := p.ExecuteOnce(ctx, "sleep(5000)\nx := 1")

	assert.Equal(t, StatusTimeout, attempt.Status)
	assert.True(t, errors.Is(attempt.Err, context.Canceled))
	assert.False(t, errors.Is(attempt.Err, ErrTimeout))
	assert.Less(t, time.Since(start), 2*time.Second)

	next := p.ExecuteOnce(context.Background(), "x := 2")
	assert.Equal(t, StatusSuccess, next.Status)
}

func TestRetryBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	s := NewSupervisor(SupervisorConfig{MaxRestarts: 3, RetryBackoff: time.Hour})
	result := s.Run(ctx, "missing")

	assert.Equal(t, StatusEvalError, result.Status)
	assert.Equal(t, 1, result.Attempts)
	assert.True(t, errors.Is(result.LastError, context.DeadlineExceeded))
}

func TestPrintGoesToConfiguredOutput(t *testing.T) {
	var out bytes.Buffer
	p := NewProcess(WithOutput(&out))

	attempt := p.ExecuteOnce(context.Background(), `print("hello", 1 + 1)`)

	require.Equal(t, StatusSuccess, attempt.Status)
	assert.Equal(t, "hello 2\n", out.String())
}

func TestExitCodes(t *testing.T) {
	tests := []struct {
		status Status
		code   int
	}{
		{StatusSuccess, 0},
		{StatusParseError, 2},
		{StatusEvalError, 3},
		{StatusFailedMaxRestarts, 4},
		{StatusTimeout, 5},
		{Status("bogus"), 1},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.code, tt.status.ExitCode())
		})
	}
}
