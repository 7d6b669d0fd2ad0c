package process

import (
	"conduit/internal/object"
	"conduit/internal/trace"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxRestarts = 3

type SupervisorConfig struct {
	// MaxRestarts bounds the total number of attempts for retryable
	// failures. Zero means DefaultMaxRestarts.
	MaxRestarts uint32

	// Timeout is the per-attempt budget. Zero means no budget.
	Timeout time.Duration

	EnableTrace bool

	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{MaxRestarts: DefaultMaxRestarts}
}

type SupervisionResult struct {
	RunID      uuid.UUID
	Status     Status
	Attempts   int
	FinalValue object.Value
	Trace      []trace.Entry
	Duration   time.Duration
	LastError  error
}

// Supervisor retries a program in a single Process until it succeeds or
// fails in a way retrying cannot fix.
type Supervisor struct {
	config  SupervisorConfig
	process *Process
}

// NewSupervisor builds the Process it drives from config plus any extra
// Process options.
func NewSupervisor(config SupervisorConfig, opts ...Option) *Supervisor {
	if config.MaxRestarts == 0 {
		config.MaxRestarts = DefaultMaxRestarts
	}
	base := []Option{WithTimeout(config.Timeout), WithTrace(config.EnableTrace)}
	return &Supervisor{
		config:  config,
		process: NewProcess(append(base, opts...)...),
	}
}

func (s *Supervisor) Config() SupervisorConfig { return s.config }

func (s *Supervisor) Process() *Process { return s.process }

func (s *Supervisor) Run(ctx context.Context, source string) SupervisionResult {
	result := SupervisionResult{RunID: uuid.New()}
	logger := slog.With(slog.String("run_id", result.RunID.String()))
	start := time.Now()

	for attempt := 1; ; attempt++ {
		a := s.process.ExecuteOnce(ctx, source)
		result.Attempts = attempt
		result.Status = a.Status
		result.FinalValue = a.Value
		result.Trace = a.Trace
		result.LastError = a.Err

		logger.Info("attempt complete",
			slog.Int("attempt", attempt),
			slog.String("status", string(a.Status)),
			slog.Duration("duration", a.Duration),
		)

		if !s.shouldRetry(a) {
			result.Duration = time.Since(start)
			return result
		}

		if uint32(attempt) >= s.config.MaxRestarts {
			result.Status = StatusFailedMaxRestarts
			result.Duration = time.Since(start)
			logger.Warn("giving up after max restarts",
				slog.Int("attempts", attempt),
				slog.Any("error", a.Err),
			)
			return result
		}

		if err := s.backoff(ctx, attempt); err != nil {
			result.LastError = fmt.Errorf("retry interrupted: %w", err)
			result.Duration = time.Since(start)
			return result
		}
	}
}

// shouldRetry is true only for evaluation errors that were not marked
// fatal. Parse errors and timeouts are terminal.
func (s *Supervisor) shouldRetry(a RunAttempt) bool {
	return a.Status == StatusEvalError && !a.Fatal
}

func (s *Supervisor) backoff(ctx context.Context, attempt int) error {
	if s.config.RetryBackoff <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(s.config.RetryBackoff * time.Duration(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
