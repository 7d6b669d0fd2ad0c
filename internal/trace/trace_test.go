package trace

import (
	"bytes"
	"conduit/internal/arena"
	"conduit/internal/object"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromoteStampsIncreasingIDs(t *testing.T) {
	temp := arena.New(arena.WithPoison(true))
	heap := arena.NewHeap("trace")
	ids := &Counter{}

	first := &Ledger{}
	first.Record("a", object.NewString(temp, "one"), time.Now(), time.Millisecond)
	first.Record("b", object.Number(2), time.Now(), time.Millisecond)
	promotedFirst := first.Promote(heap, ids)

	second := &Ledger{}
	second.Record("c", object.Number(3), time.Now(), 0)
	promotedSecond := second.Promote(heap, ids)

	temp.Reset()

	all := append(promotedFirst, promotedSecond...)
	require.Len(t, all, 3)
	for i, e := range all {
		assert.Equal(t, uint64(i+1), e.TaskID)
	}
	s, ok := all[0].Value.AsString()
	require.True(t, ok)
	assert.Equal(t, "one", s, "promoted values survive the arena reset")
	assert.Equal(t, uint64(3), ids.Last())
}

func TestPromoteEmptyLedger(t *testing.T) {
	var l *Ledger
	assert.Nil(t, l.Promote(arena.NewHeap("trace"), &Counter{}))
	assert.Equal(t, 0, l.Len())
}

func TestWriterEmitsJSONLines(t *testing.T) {
	h := arena.NewHeap("trace")
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	errVal := object.Wrap(object.NewErr(h, object.DivisionByZero, "division by zero",
		object.Metadata{Annotations: map[string]string{object.StageKey: object.StagePipeLeft}}))

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Write(
		Entry{TaskID: 1, Source: "x := 1", Value: object.Number(1), Timestamp: ts, Duration: 2 * time.Millisecond},
		Entry{TaskID: 2, Source: "10 / 0 |> f", Value: errVal, Timestamp: ts},
	))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, float64(1), first["task_id"])
	assert.Equal(t, "x := 1", first["source"])
	assert.Equal(t, "number", first["type"])
	assert.Equal(t, "ok", first["status"])
	assert.Equal(t, "1", first["value"])
	assert.Equal(t, float64(2), first["duration_ms"])

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "err", second["status"])
	assert.Equal(t, `err("division by zero")`, second["value"])
	assert.Equal(t, map[string]interface{}{"stage": "pipe-left"}, second["annotations"])
}
