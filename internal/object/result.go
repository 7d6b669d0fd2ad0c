package object

import (
	"conduit/internal/arena"
	"fmt"
	"maps"
	"strconv"
	"time"
)

type Tag uint8

const (
	OK Tag = iota
	ERR
)

func (t Tag) String() string {
	if t == ERR {
		return "err"
	}
	return "ok"
}

type ErrorKind string

const (
	UndefinedVariable      ErrorKind = "UndefinedVariable"
	VariableAlreadyDefined ErrorKind = "VariableAlreadyDefined"
	TypeMismatch           ErrorKind = "TypeMismatch"
	DivisionByZero         ErrorKind = "DivisionByZero"
	UnknownOperator        ErrorKind = "UnknownOperator"
	NoMatchFound           ErrorKind = "NoMatchFound"
	NotCallable            ErrorKind = "NotCallable"
	ArityMismatch          ErrorKind = "ArityMismatch"
	UserError              ErrorKind = "UserError"
)

// Annotation keys and well-known values.
const (
	SeverityKey = "severity"
	StageKey    = "stage"
	KindKey     = "kind"

	SeverityFatal  = "fatal"
	StagePipeLeft  = "pipe-left"
	StagePipeRight = "pipe-right"
	KindPipe       = "pipe"
)

type Failure struct {
	Kind    ErrorKind
	Message string
}

func (f *Failure) Error() string { return string(f.Kind) + ": " + f.Message }

// Metadata travels with every Result.
type Metadata struct {
	ExprSource  string
	Timestamp   time.Time
	Duration    time.Duration
	Annotations map[string]string
}

func (m Metadata) clone() Metadata {
	out := m
	if m.Annotations != nil {
		out.Annotations = maps.Clone(m.Annotations)
	}
	return out
}

// Annotation returns the value stored under key, or "".
func (m Metadata) Annotation(key string) string {
	return m.Annotations[key]
}

// Result is the dual-channel outcome of an expression: an ok payload or an
// err Failure, never both.
type Result struct {
	tag     Tag
	payload Value
	failure *Failure
	Meta    Metadata
}

// NewOk allocates an ok Result cell in alloc. The payload is stored as
// given; callers clone it first when it lives elsewhere.
func NewOk(alloc arena.Allocator, v Value, meta Metadata) *Result {
	alloc.Track(resultCellSize)
	return &Result{tag: OK, payload: v, Meta: meta}
}

func NewErr(alloc arena.Allocator, kind ErrorKind, message string, meta Metadata) *Result {
	alloc.Track(resultCellSize + len(message))
	return &Result{tag: ERR, failure: &Failure{Kind: kind, Message: message}, Meta: meta}
}

// Errorf builds an err Result value with a formatted message.
func Errorf(alloc arena.Allocator, kind ErrorKind, format string, a ...interface{}) Value {
	return Wrap(NewErr(alloc, kind, fmt.Sprintf(format, a...), Metadata{}))
}

// Lift returns v unchanged when it is already a Result, otherwise ok(v).
func Lift(alloc arena.Allocator, v Value) *Result {
	if r, ok := v.AsResult(); ok {
		return r
	}
	return NewOk(alloc, v, Metadata{})
}

// Unwrap strips ok wrappers from v. Bare values and err Results come back
// unchanged.
func Unwrap(v Value) Value {
	for {
		r, ok := v.AsResult()
		if !ok || r.IsErr() {
			return v
		}
		v = r.payload
	}
}

func (r *Result) Tag() Tag    { return r.tag }
func (r *Result) IsOk() bool  { return r.tag == OK }
func (r *Result) IsErr() bool { return r.tag == ERR }

// Payload returns the ok value. Asking an err Result for its payload is an
// invariant violation.
func (r *Result) Payload() Value {
	if r.tag != OK {
		panic(Faultf("payload requested from err result (%s)", r.failure.Kind))
	}
	return r.payload
}

// Failure returns the err description. Asking an ok Result is an invariant
// violation.
func (r *Result) Failure() *Failure {
	if r.tag != ERR {
		panic(Faultf("failure requested from ok result"))
	}
	return r.failure
}

// Annotated returns a copy of r with key set to value. The receiver is left
// untouched because it may be owned by an Environment.
func (r *Result) Annotated(alloc arena.Allocator, key, value string) *Result {
	alloc.Track(resultCellSize)
	out := *r
	out.Meta = r.Meta.clone()
	if out.Meta.Annotations == nil {
		out.Meta.Annotations = make(map[string]string, 1)
	}
	out.Meta.Annotations[key] = value
	return &out
}

// Stamped returns a copy of r carrying timing for the expression that
// produced it. An existing ExprSource is kept.
func (r *Result) Stamped(alloc arena.Allocator, source string, ts time.Time, d time.Duration) *Result {
	alloc.Track(resultCellSize)
	out := *r
	out.Meta = r.Meta.clone()
	if out.Meta.ExprSource == "" {
		out.Meta.ExprSource = source
	}
	out.Meta.Timestamp = ts
	out.Meta.Duration = d
	return &out
}

// MergeAnnotations copies every annotation from base that r does not
// already define, so r's keys win.
func (r *Result) MergeAnnotations(base Metadata) {
	if len(base.Annotations) == 0 {
		return
	}
	if r.Meta.Annotations == nil {
		r.Meta.Annotations = make(map[string]string, len(base.Annotations))
	}
	for k, v := range base.Annotations {
		if _, exists := r.Meta.Annotations[k]; !exists {
			r.Meta.Annotations[k] = v
		}
	}
}

// Clone deep-copies the cell, its payload and its metadata into alloc.
func (r *Result) Clone(alloc arena.Allocator) *Result {
	return newCloner(alloc).result(r)
}

func (r *Result) footprint() int {
	if r.tag == ERR {
		return resultCellSize + len(r.failure.Message)
	}
	return resultCellSize + r.payload.footprint()
}

func (r *Result) equal(o *Result) bool {
	if r.tag != o.tag {
		return false
	}
	if r.tag == OK {
		return Equal(r.payload, o.payload)
	}
	return r.failure.Kind == o.failure.Kind && r.failure.Message == o.failure.Message
}

func (r *Result) Inspect() string {
	if r.tag == ERR {
		return "err(" + strconv.Quote(r.failure.Message) + ")"
	}
	return "ok(" + r.payload.Literal() + ")"
}
