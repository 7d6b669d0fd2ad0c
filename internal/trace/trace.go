// Package trace records the outcome of every top-level expression an
// attempt evaluates.
package trace

import (
	"conduit/internal/arena"
	"conduit/internal/object"
	"encoding/json"
	"io"
	"sync/atomic"
	"time"
)

// Entry is one evaluated expression. TaskID is zero until the entry is
// promoted out of its attempt.
type Entry struct {
	TaskID    uint64
	Source    string
	Value     object.Value
	Timestamp time.Time
	Duration  time.Duration
}

type entryJSON struct {
	TaskID     uint64            `json:"task_id"`
	Source     string            `json:"source"`
	Type       string            `json:"type"`
	Status     string            `json:"status"`
	Value      string            `json:"value"`
	Timestamp  time.Time         `json:"timestamp"`
	DurationMs float64           `json:"duration_ms"`
	Annotation map[string]string `json:"annotations,omitempty"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	out := entryJSON{
		TaskID:     e.TaskID,
		Source:     e.Source,
		Type:       string(e.Value.Type()),
		Status:     e.Status(),
		Value:      e.Value.Literal(),
		Timestamp:  e.Timestamp,
		DurationMs: float64(e.Duration) / float64(time.Millisecond),
	}
	if r, ok := e.Value.AsResult(); ok {
		out.Annotation = r.Meta.Annotations
	}
	return json.Marshal(out)
}

// Status is "err" for an error Result and "ok" for everything else.
func (e Entry) Status() string {
	if e.Value.IsError() {
		return "err"
	}
	return "ok"
}

// Ledger collects entries in evaluation order. Values recorded here are
// borrowed from the attempt's arena until promoted.
type Ledger struct {
	entries []Entry
}

func (l *Ledger) Record(source string, v object.Value, ts time.Time, d time.Duration) {
	l.entries = append(l.entries, Entry{Source: source, Value: v, Timestamp: ts, Duration: d})
}

func (l *Ledger) Len() int {
	if l == nil {
		return 0
	}
	return len(l.entries)
}

func (l *Ledger) Entries() []Entry {
	if l == nil {
		return nil
	}
	return l.entries
}

// Counter hands out task IDs. The first ID is 1.
type Counter struct {
	last atomic.Uint64
}

func (c *Counter) Next() uint64 { return c.last.Add(1) }

func (c *Counter) Last() uint64 { return c.last.Load() }

// Promote deep-copies every entry into alloc and stamps it with the next
// task ID, so the result stays valid after the attempt's arena is reset.
func (l *Ledger) Promote(alloc arena.Allocator, ids *Counter) []Entry {
	if l.Len() == 0 {
		return nil
	}
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = Entry{
			TaskID:    ids.Next(),
			Source:    e.Source,
			Value:     e.Value.Clone(alloc),
			Timestamp: e.Timestamp,
			Duration:  e.Duration,
		}
	}
	return out
}

// Writer emits entries as JSON lines.
type Writer struct {
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: json.NewEncoder(w)}
}

func (w *Writer) Write(entries ...Entry) error {
	for _, e := range entries {
		if err := w.enc.Encode(e); err != nil {
			return err
		}
	}
	return nil
}
