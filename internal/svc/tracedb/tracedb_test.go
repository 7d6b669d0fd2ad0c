package tracedb

import (
	"conduit/internal/process"
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite3", filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndLoadRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sup := process.NewSupervisor(process.SupervisorConfig{EnableTrace: true})
	res := sup.Run(ctx, "a := 5\na |> (_ + 1)\na * 2")
	require.Equal(t, process.StatusSuccess, res.Status)
	require.Len(t, res.Trace, 3)

	require.NoError(t, s.SaveRun(ctx, res))

	run, err := s.LoadRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, run.RunID)
	assert.Equal(t, process.StatusSuccess, run.Status)
	assert.Equal(t, 1, run.Attempts)
	assert.Equal(t, "10", run.FinalValue)
	assert.Empty(t, run.LastError)

	require.Len(t, run.Entries, 3)
	for i, e := range run.Entries {
		assert.Equal(t, res.Trace[i].TaskID, e.TaskID)
		assert.Equal(t, res.Trace[i].Source, e.Source)
		assert.Equal(t, "ok", e.Status)
		assert.True(t, res.Trace[i].Timestamp.Equal(e.Timestamp))
	}
	assert.Equal(t, "pipe", run.Entries[1].Annotations["kind"])
}

func TestSaveFailedRun(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	sup := process.NewSupervisor(process.SupervisorConfig{MaxRestarts: 2, EnableTrace: true})
	res := sup.Run(ctx, "x := unknown")
	require.Equal(t, process.StatusFailedMaxRestarts, res.Status)
	require.NoError(t, s.SaveRun(ctx, res))

	run, err := s.LoadRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, process.StatusFailedMaxRestarts, run.Status)
	assert.Equal(t, 2, run.Attempts)
	assert.Contains(t, run.LastError, "undefined variable: unknown")
	require.Len(t, run.Entries, 1)
	assert.Equal(t, "err", run.Entries[0].Status)
}

func TestLoadMissingRun(t *testing.T) {
	s := openTestStore(t)
	_, err := s.LoadRun(context.Background(), uuid.New())
	assert.True(t, errors.Is(err, ErrRunNotFound))
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sup := process.NewSupervisor(process.DefaultSupervisorConfig())

	for _, src := range []string{"1", "2", "3"} {
		require.NoError(t, s.SaveRun(ctx, sup.Run(ctx, src)))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
	for _, r := range runs {
		assert.Empty(t, r.Entries)
		assert.Equal(t, process.StatusSuccess, r.Status)
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	sup := process.NewSupervisor(process.DefaultSupervisorConfig())

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stamps := []time.Time{
		base,
		base.Add(120 * time.Millisecond),
		base.Add(123 * time.Millisecond),
		base.Add(time.Second),
	}

	var ids []uuid.UUID
	for i, ts := range stamps {
		s.now = func() time.Time { return ts }
		res := sup.Run(ctx, strconv.Itoa(i))
		require.NoError(t, s.SaveRun(ctx, res))
		ids = append(ids, res.RunID)
	}

	runs, err := s.ListRuns(ctx, len(stamps))
	require.NoError(t, err)
	require.Len(t, runs, len(stamps))
	for i, r := range runs {
		want := len(stamps) - 1 - i
		assert.Equal(t, ids[want], r.RunID, "position %d", i)
		assert.True(t, stamps[want].Equal(r.CreatedAt), "position %d: %s", i, r.CreatedAt)
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: "postgres"}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", pg.rebind("SELECT a FROM t WHERE x = ? AND y = ?"))

	lite := &Store{driver: "sqlite3"}
	assert.Equal(t, "x = ?", lite.rebind("x = ?"))
}
