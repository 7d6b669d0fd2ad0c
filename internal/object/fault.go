package object

import "fmt"

// Fault is a host-level failure that is not expressible as a language
// Result: a broken invariant or an exhausted host limit. The evaluator
// raises it with panic and the Process recovers it.
type Fault struct {
	Reason string
}

func (f *Fault) Error() string { return "host fault: " + f.Reason }

func Faultf(format string, a ...interface{}) *Fault {
	return &Fault{Reason: fmt.Sprintf(format, a...)}
}
