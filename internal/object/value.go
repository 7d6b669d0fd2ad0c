package object

import (
	"bytes"
	"conduit/internal/arena"
	"math"
	"strconv"
)

type ValueType string

const (
	NONE_OBJ     ValueType = "none"
	NUMBER_OBJ   ValueType = "number"
	STRING_OBJ   ValueType = "string"
	BOOLEAN_OBJ  ValueType = "boolean"
	RESULT_OBJ   ValueType = "result"
	FUNCTION_OBJ ValueType = "function"
)

// Cell sizes charged to an allocator for the fixed-size records a value
// can point at. Strings are charged by byte length.
const (
	resultCellSize   = 64
	functionCellSize = 48
)

// Value is a language value. The zero Value is none.
//
// Number, boolean and none are plain data. A string owns its bytes, which
// live in whichever allocator created it. A result points at a Result cell
// in the same allocator. Copying a Value struct produces a borrowed view;
// use Clone to move a value into another allocator.
type Value struct {
	kind ValueType
	num  float64
	b    bool
	str  []byte
	res  *Result
	fn   *Function
}

var NONE = Value{kind: NONE_OBJ}

func Number(f float64) Value { return Value{kind: NUMBER_OBJ, num: f} }

func Bool(b bool) Value { return Value{kind: BOOLEAN_OBJ, b: b} }

// NewString copies s into storage owned by alloc.
func NewString(alloc arena.Allocator, s string) Value {
	buf := alloc.Alloc(len(s))
	copy(buf, s)
	return Value{kind: STRING_OBJ, str: buf}
}

// Wrap turns a Result cell into a value.
func Wrap(r *Result) Value {
	if r == nil {
		return NONE
	}
	return Value{kind: RESULT_OBJ, res: r}
}

func FunctionValue(fn *Function) Value { return Value{kind: FUNCTION_OBJ, fn: fn} }

func (v Value) Type() ValueType {
	if v.kind == "" {
		return NONE_OBJ
	}
	return v.kind
}

func (v Value) IsNone() bool   { return v.Type() == NONE_OBJ }
func (v Value) IsResult() bool { return v.kind == RESULT_OBJ }

// IsError reports whether v is an err Result.
func (v Value) IsError() bool { return v.kind == RESULT_OBJ && v.res.IsErr() }

func (v Value) AsNumber() (float64, bool) { return v.num, v.kind == NUMBER_OBJ }
func (v Value) AsBool() (bool, bool)      { return v.b, v.kind == BOOLEAN_OBJ }

// AsString returns a Go copy of the string bytes.
func (v Value) AsString() (string, bool) {
	if v.kind != STRING_OBJ {
		return "", false
	}
	return string(v.str), true
}

func (v Value) AsResult() (*Result, bool)     { return v.res, v.kind == RESULT_OBJ }
func (v Value) AsFunction() (*Function, bool) { return v.fn, v.kind == FUNCTION_OBJ }

// Truthy is false for none, false and err Results.
func (v Value) Truthy() bool {
	switch v.Type() {
	case NONE_OBJ:
		return false
	case BOOLEAN_OBJ:
		return v.b
	case RESULT_OBJ:
		return v.res.IsOk()
	default:
		return true
	}
}

func (v Value) Inspect() string {
	switch v.Type() {
	case NUMBER_OBJ:
		return FormatNumber(v.num)
	case STRING_OBJ:
		return string(v.str)
	case BOOLEAN_OBJ:
		return strconv.FormatBool(v.b)
	case RESULT_OBJ:
		return v.res.Inspect()
	case FUNCTION_OBJ:
		return v.fn.Inspect()
	default:
		return "none"
	}
}

// Literal renders v the way it would be written in source, quoting strings.
func (v Value) Literal() string {
	if v.kind == STRING_OBJ {
		return strconv.Quote(string(v.str))
	}
	return v.Inspect()
}

// FormatNumber prints integral numbers without a fraction.
func FormatNumber(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Equal compares structurally within a variant. Values of different
// variants are never equal.
func Equal(a, b Value) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch a.Type() {
	case NONE_OBJ:
		return true
	case NUMBER_OBJ:
		return a.num == b.num
	case STRING_OBJ:
		return bytes.Equal(a.str, b.str)
	case BOOLEAN_OBJ:
		return a.b == b.b
	case RESULT_OBJ:
		return a.res.equal(b.res)
	case FUNCTION_OBJ:
		return a.fn == b.fn
	}
	return false
}

// Clone deep-copies v into alloc. Nothing in the copy refers to storage
// owned by the source allocator.
func (v Value) Clone(alloc arena.Allocator) Value {
	return newCloner(alloc).value(v)
}

// footprint is the number of bytes v charges to its allocator.
func (v Value) footprint() int {
	switch v.kind {
	case STRING_OBJ:
		return len(v.str)
	case RESULT_OBJ:
		return v.res.footprint()
	case FUNCTION_OBJ:
		return functionCellSize
	}
	return 0
}

// release returns v's storage to alloc and zeroes it, recursing through
// Result payloads.
func (v *Value) release(alloc arena.Allocator) {
	alloc.Release(v.footprint())
	if v.kind == RESULT_OBJ && v.res != nil {
		v.res.payload.release(nopAllocator{})
		v.res.failure = nil
		v.res.Meta.Annotations = nil
	}
	*v = Value{}
}

// nopAllocator swallows releases already accounted for by the caller.
type nopAllocator struct{}

func (nopAllocator) Alloc(n int) []byte { return make([]byte, n) }
func (nopAllocator) Track(int)          {}
func (nopAllocator) Release(int)        {}
func (nopAllocator) Name() string       { return "nop" }
