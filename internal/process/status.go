package process

import (
	"conduit/internal/object"
	"conduit/internal/token"
	"errors"
	"strings"
)

type Status string

const (
	StatusSuccess           Status = "success"
	StatusParseError        Status = "parse_error"
	StatusEvalError         Status = "eval_error"
	StatusFailedMaxRestarts Status = "failed_max_restarts"
	StatusTimeout           Status = "timeout"
)

// Exit codes for the host CLI. ExitUsage covers flag and config failures.
const (
	ExitSuccess           = 0
	ExitUsage             = 1
	ExitParseError        = 2
	ExitEvalError         = 3
	ExitFailedMaxRestarts = 4
	ExitTimeout           = 5
)

func (s Status) ExitCode() int {
	switch s {
	case StatusSuccess:
		return ExitSuccess
	case StatusParseError:
		return ExitParseError
	case StatusEvalError:
		return ExitEvalError
	case StatusFailedMaxRestarts:
		return ExitFailedMaxRestarts
	case StatusTimeout:
		return ExitTimeout
	default:
		return ExitUsage
	}
}

var ErrTimeout = errors.New("attempt exceeded its time budget")

// ParseError carries every diagnostic reported for the source.
type ParseError struct {
	Diagnostics []token.Diagnostic
}

func (e *ParseError) Error() string {
	msgs := make([]string, len(e.Diagnostics))
	for i, d := range e.Diagnostics {
		msgs[i] = d.Error()
	}
	return "parse error: " + strings.Join(msgs, "; ")
}

// EvalError is an unhandled error Result that stopped a program.
type EvalError struct {
	Kind        object.ErrorKind
	Message     string
	Source      string
	Annotations map[string]string
}

func (e *EvalError) Error() string {
	if e.Source != "" {
		return string(e.Kind) + ": " + e.Message + " (in " + e.Source + ")"
	}
	return string(e.Kind) + ": " + e.Message
}

// Fatal reports whether the error was raised under the ! policy.
func (e *EvalError) Fatal() bool {
	return e.Annotations[object.SeverityKey] == object.SeverityFatal
}

func newEvalError(r *object.Result) *EvalError {
	f := r.Failure()
	return &EvalError{
		Kind:        f.Kind,
		Message:     f.Message,
		Source:      r.Meta.ExprSource,
		Annotations: r.Meta.Annotations,
	}
}
