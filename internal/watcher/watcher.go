// Package watcher polls submitted ingest tasks until they finish or a
// poll budget runs out.
package watcher

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/pders01/searchable-files/internal/models"
)

// DefaultMaxWait is the default number of polls per task
const DefaultMaxWait = 10

// TaskGetter fetches the current state of a task
type TaskGetter interface {
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
}

// ProgressFunc is called after each task settles
type ProgressFunc func(done, total int, outcome models.WatchOutcome)

// Watcher polls tasks
type Watcher struct {
	client     TaskGetter
	maxWait    int
	newBackOff func() backoff.BackOff
	delay      time.Duration
	sleep      func(context.Context, time.Duration) error
	progress   ProgressFunc
	logger     *slog.Logger
}

// Option customizes a Watcher
type Option func(*Watcher)

// WithMaxWait sets the number of polls after which a task counts as timed out
func WithMaxWait(n int) Option {
	return func(w *Watcher) { w.maxWait = n }
}

// WithBackOff sets the poll policy
func WithBackOff(f func() backoff.BackOff) Option {
	return func(w *Watcher) { w.newBackOff = f }
}

// WithDelay pauses between tasks
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) { w.delay = d }
}

// WithSleep replaces the context-aware sleep, mainly for tests
func WithSleep(f func(context.Context, time.Duration) error) Option {
	return func(w *Watcher) { w.sleep = f }
}

// WithProgress registers a progress callback
func WithProgress(f ProgressFunc) Option {
	return func(w *Watcher) { w.progress = f }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// New creates a Watcher with a fixed one-second policy and DefaultMaxWait
func New(client TaskGetter, opts ...Option) *Watcher {
	w := &Watcher{
		client:  client,
		maxWait: DefaultMaxWait,
		newBackOff: func() backoff.BackOff {
			return backoff.NewConstantBackOff(DefaultInterval)
		},
		sleep:  sleepContext,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.maxWait < 1 {
		w.maxWait = 1
	}
	w.logger = w.logger.With("component", "watcher")
	return w
}

// ReadTaskLog returns the distinct task ids in path, sorted. Blank lines
// are ignored.
func ReadTaskLog(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open task log: %w", err)
	}
	defer f.Close()

	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		id := strings.TrimSpace(scanner.Text())
		if id == "" {
			continue
		}
		seen[id] = struct{}{}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read task log: %w", err)
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Wait polls one task. A terminal state returns at once; otherwise the
// task is polled at most maxWait times with the policy's interval in
// between.
func (w *Watcher) Wait(ctx context.Context, taskID string) models.WatchOutcome {
	out := models.WatchOutcome{TaskID: taskID}
	b := w.newBackOff()

	var lastErr error
	for {
		out.Polls++
		task, err := w.client.GetTask(ctx, taskID)
		if ctxErr := ctx.Err(); ctxErr != nil {
			out.Status = models.WatchErrored
			out.Error = ctxErr.Error()
			return out
		}

		if err != nil {
			lastErr = err
			w.logger.Warn("task poll failed", "task_id", taskID, "poll", out.Polls, "error", err)
		} else {
			lastErr = nil
			out.State = task.State
			switch task.State {
			case models.TaskSuccess:
				out.Status = models.WatchSucceeded
				return out
			case models.TaskFailed:
				out.Status = models.WatchFailed
				out.Error = task.StateDescription
				return out
			}
		}

		if out.Polls >= w.maxWait {
			break
		}
		d := b.NextBackOff()
		if d == backoff.Stop {
			break
		}
		if err := w.sleep(ctx, d); err != nil {
			out.Status = models.WatchErrored
			out.Error = err.Error()
			return out
		}
	}

	if lastErr != nil {
		out.Status = models.WatchErrored
		out.Error = lastErr.Error()
	} else {
		out.Status = models.WatchTimedOut
	}
	return out
}

// Run watches every task in order and summarizes the results. It stops
// early only when ctx is canceled.
func (w *Watcher) Run(ctx context.Context, taskIDs []string) (*Summary, error) {
	sum := &Summary{}
	for i, id := range taskIDs {
		o := w.Wait(ctx, id)
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		sum.add(o)
		w.logger.Debug("task settled", "task_id", id, "status", o.Status, "polls", o.Polls)
		if w.progress != nil {
			w.progress(i+1, len(taskIDs), o)
		}
		if w.delay > 0 {
			if err := w.sleep(ctx, w.delay); err != nil {
				return sum, err
			}
		}
	}
	return sum, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
