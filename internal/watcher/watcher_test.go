package watcher

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/searchable-files/internal/models"
	"github.com/pders01/searchable-files/internal/testutil"
)

// scriptedTasks answers each poll of a task from a fixed script; the last
// entry repeats.
type scriptedTasks struct {
	mu     sync.Mutex
	script map[string][]any
	polls  map[string]int
}

func newScripted(script map[string][]any) *scriptedTasks {
	return &scriptedTasks{script: script, polls: map[string]int{}}
}

func (s *scriptedTasks) GetTask(ctx context.Context, id string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	steps := s.script[id]
	i := min(s.polls[id], len(steps)-1)
	s.polls[id]++
	switch v := steps[i].(type) {
	case models.TaskState:
		return &models.Task{TaskID: id, State: v}, nil
	case error:
		return nil, v
	}
	panic("bad script")
}

type recordingSleep struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleep) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestWaitMaxWaitOneMeansOnePoll(t *testing.T) {
	tasks := newScripted(map[string][]any{"t1": {models.TaskPending}})
	sl := &recordingSleep{}
	w := New(tasks, WithMaxWait(1), WithSleep(sl.sleep))

	o := w.Wait(context.Background(), "t1")
	assert.Equal(t, models.WatchTimedOut, o.Status)
	assert.Equal(t, 1, o.Polls)
	assert.Equal(t, 1, tasks.polls["t1"])
	assert.Empty(t, sl.delays)
}

func TestWaitOutcomes(t *testing.T) {
	transient := errors.New("connection refused")

	tests := []struct {
		name      string
		script    []any
		maxWait   int
		want      models.WatchStatus
		wantPolls int
	}{
		{"immediate success", []any{models.TaskSuccess}, 10, models.WatchSucceeded, 1},
		{"success after progress", []any{models.TaskPending, models.TaskProgress, models.TaskSuccess}, 10, models.WatchSucceeded, 3},
		{"remote failure", []any{models.TaskProgress, models.TaskFailed}, 10, models.WatchFailed, 2},
		{"timeout", []any{models.TaskPending}, 3, models.WatchTimedOut, 3},
		{"transient error then success", []any{transient, models.TaskSuccess}, 10, models.WatchSucceeded, 2},
		{"error on last poll", []any{models.TaskPending, transient}, 2, models.WatchErrored, 2},
		{"error recovered before ceiling", []any{transient, models.TaskPending}, 2, models.WatchTimedOut, 2},
		{"terminal on final poll", []any{models.TaskPending, models.TaskSuccess}, 2, models.WatchSucceeded, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tasks := newScripted(map[string][]any{"t": tt.script})
			sl := &recordingSleep{}
			w := New(tasks, WithMaxWait(tt.maxWait), WithSleep(sl.sleep))

			o := w.Wait(context.Background(), "t")
			assert.Equal(t, tt.want, o.Status)
			assert.Equal(t, tt.wantPolls, o.Polls)
			assert.Len(t, sl.delays, tt.wantPolls-1)
			for _, d := range sl.delays {
				assert.Equal(t, DefaultInterval, d)
			}
		})
	}
}

func TestWaitErroredKeepsMessage(t *testing.T) {
	tasks := newScripted(map[string][]any{"t": {errors.New("HTTP 503")}})
	o := New(tasks, WithMaxWait(2), WithSleep((&recordingSleep{}).sleep)).Wait(context.Background(), "t")
	assert.Equal(t, models.WatchErrored, o.Status)
	assert.Equal(t, "HTTP 503", o.Error)
}

func TestWaitExponentialPolicy(t *testing.T) {
	newBackOff, err := NewBackOff(PolicyExponential, 100*time.Millisecond, 400*time.Millisecond)
	require.NoError(t, err)

	tasks := newScripted(map[string][]any{"t": {models.TaskPending}})
	sl := &recordingSleep{}
	o := New(tasks, WithMaxWait(6), WithBackOff(newBackOff), WithSleep(sl.sleep)).Wait(context.Background(), "t")

	assert.Equal(t, models.WatchTimedOut, o.Status)
	assert.Equal(t, []time.Duration{
		100 * time.Millisecond,
		150 * time.Millisecond,
		225 * time.Millisecond,
		337500 * time.Microsecond,
		400 * time.Millisecond,
	}, sl.delays)
}

type stopBackOff struct{}

func (stopBackOff) NextBackOff() time.Duration { return backoff.Stop }
func (stopBackOff) Reset()                     {}

func TestWaitStopsWhenPolicyGivesUp(t *testing.T) {
	tasks := newScripted(map[string][]any{"t": {models.TaskPending}})
	w := New(tasks, WithMaxWait(10), WithBackOff(func() backoff.BackOff { return stopBackOff{} }))

	o := w.Wait(context.Background(), "t")
	assert.Equal(t, models.WatchTimedOut, o.Status)
	assert.Equal(t, 1, o.Polls)
}

func TestNewBackOff(t *testing.T) {
	f, err := NewBackOff("", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultInterval, f().NextBackOff())

	f, err = NewBackOff(PolicyFixed, 2*time.Second, 0)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, f().NextBackOff())

	_, err = NewBackOff("linear", time.Second, time.Second)
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestRunSummaryAndProgress(t *testing.T) {
	tasks := newScripted(map[string][]any{
		"a": {models.TaskSuccess},
		"b": {models.TaskFailed},
		"c": {models.TaskPending},
		"d": {models.TaskProgress, models.TaskSuccess},
	})
	sl := &recordingSleep{}

	var seen []int
	w := New(tasks, WithMaxWait(2), WithSleep(sl.sleep), WithProgress(func(done, total int, o models.WatchOutcome) {
		assert.Equal(t, 4, total)
		seen = append(seen, done)
	}))

	sum, err := w.Run(context.Background(), []string{"a", "b", "c", "d"})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3, 4}, seen)
	assert.Equal(t, 4, sum.Total)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, 1, sum.TimedOut)
	assert.False(t, sum.AllSucceeded())
	assert.Equal(t, []string{
		"2 tasks completed successfully (2/4)",
		"2 tasks failed or did not complete (2/4)",
		"  failed: 1, timed out: 1, errored: 0",
	}, sum.Lines())
}

func TestRunAllSucceeded(t *testing.T) {
	tasks := newScripted(map[string][]any{"a": {models.TaskSuccess}, "b": {models.TaskSuccess}})
	sum, err := New(tasks).Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Tasks all completed successfully (2/2)"}, sum.Lines())
}

func TestRunDelayBetweenTasks(t *testing.T) {
	tasks := newScripted(map[string][]any{"a": {models.TaskSuccess}, "b": {models.TaskSuccess}})
	sl := &recordingSleep{}
	_, err := New(tasks, WithDelay(250*time.Millisecond), WithSleep(sl.sleep)).Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, sl.delays)
}

func TestRunCanceled(t *testing.T) {
	tasks := newScripted(map[string][]any{"a": {models.TaskPending}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(tasks).Run(ctx, []string{"a"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadTaskLog(t *testing.T) {
	tree := testutil.NewTempTree(t)
	path := tree.CreateFile("tasks.txt", "t3\n\n  t1  \nt2\nt3\n\n")

	ids, err := ReadTaskLog(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2", "t3"}, ids)

	_, err = ReadTaskLog(filepath.Join(tree.Path, "missing.txt"))
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	tree := testutil.NewTempTree(t)
	sum := &Summary{}
	sum.add(models.WatchOutcome{TaskID: "a", Status: models.WatchSucceeded, Polls: 1, State: models.TaskSuccess})

	path, err := WriteReport(tree.Dir("watch"), sum)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Summary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, 1, got.Succeeded)
	assert.Equal(t, "a", got.Outcomes[0].TaskID)
}
