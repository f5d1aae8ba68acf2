// Package submitter sends assembled ingest batches to the search service
// and records the resulting task ids.
package submitter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/pders01/searchable-files/internal/artifacts"
	"github.com/pders01/searchable-files/internal/models"
	"github.com/pders01/searchable-files/internal/search"
	"github.com/pders01/searchable-files/internal/walker"
)

// TaskLogName is the file task ids are appended to
const TaskLogName = "tasks.txt"

// Ingester submits one ingest document
type Ingester interface {
	Ingest(ctx context.Context, indexID string, doc json.RawMessage) (*search.IngestResponse, error)
}

// IndexSource provides the persisted default index
type IndexSource interface {
	ReadIndexInfo(ctx context.Context) (*models.IndexInfo, error)
}

// ErrBatchesFailed is returned after a continue-on-error run in which
// some batches were rejected
var ErrBatchesFailed = errors.New("some batches failed to submit")

// Submitter walks an assembled directory and ingests every batch in it
type Submitter struct {
	client          Ingester
	continueOnError bool
	logger          *slog.Logger
}

// Option customizes a Submitter
type Option func(*Submitter)

// WithContinueOnError records failures per batch instead of stopping
func WithContinueOnError(v bool) Option {
	return func(s *Submitter) { s.continueOnError = v }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Submitter) { s.logger = l }
}

// New creates a Submitter
func New(client Ingester, opts ...Option) *Submitter {
	s := &Submitter{client: client, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "submitter")
	return s
}

// Result summarizes a submit run
type Result struct {
	TaskLog  string
	Outcomes []models.BatchOutcome
	Duration time.Duration
}

// Submitted counts accepted batches
func (r *Result) Submitted() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts rejected batches
func (r *Result) Failed() int {
	return len(r.Outcomes) - r.Submitted()
}

// ResolveIndexID picks the override when set, else the persisted index
func ResolveIndexID(ctx context.Context, override string, src IndexSource) (string, error) {
	if override != "" {
		if _, err := uuid.Parse(override); err != nil {
			return "", fmt.Errorf("%w: invalid index id %q", models.ErrConfig, override)
		}
		return override, nil
	}
	if src == nil {
		return "", fmt.Errorf("%w: cannot submit without first setting up an index or passing '--index-id'", models.ErrNoIndex)
	}
	info, err := src.ReadIndexInfo(ctx)
	if errors.Is(err, models.ErrNoIndex) {
		return "", fmt.Errorf("%w: cannot submit without first setting up an index or passing '--index-id'", models.ErrNoIndex)
	}
	if err != nil {
		return "", err
	}
	return info.IndexID, nil
}

// Run submits every file under inputDir, in lexicographic order, to
// indexID and appends each task id to outputDir/tasks.txt, which is
// truncated first.
func (s *Submitter) Run(ctx context.Context, inputDir, outputDir, indexID string) (*Result, error) {
	start := time.Now()

	if err := artifacts.EnsureDir(outputDir); err != nil {
		return nil, err
	}
	logPath := filepath.Join(outputDir, TaskLogName)
	logFile, err := os.Create(logPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create task log: %w", err)
	}
	defer logFile.Close()
	w := bufio.NewWriter(logFile)

	files, err := walker.Collect(inputDir)
	if err != nil {
		return nil, err
	}

	res := &Result{TaskLog: logPath}
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		outcome := models.BatchOutcome{File: rel}
		taskID, err := s.submit(ctx, filepath.Join(inputDir, filepath.FromSlash(rel)), indexID)
		if err != nil {
			outcome.Error = err.Error()
			res.Outcomes = append(res.Outcomes, outcome)
			if !s.continueOnError {
				return res, fmt.Errorf("failed to submit %s: %w", rel, err)
			}
			s.logger.Warn("batch rejected", "file", rel, "error", err)
			continue
		}

		if _, err := fmt.Fprintln(w, taskID); err != nil {
			return res, fmt.Errorf("failed to record task id: %w", err)
		}
		if err := w.Flush(); err != nil {
			return res, fmt.Errorf("failed to record task id: %w", err)
		}
		outcome.TaskID = taskID
		res.Outcomes = append(res.Outcomes, outcome)
		s.logger.Debug("submitted batch", "file", rel, "task_id", taskID)
	}

	res.Duration = time.Since(start)
	if n := res.Failed(); n > 0 {
		return res, fmt.Errorf("%w: %d of %d", ErrBatchesFailed, n, len(res.Outcomes))
	}
	return res, nil
}

func (s *Submitter) submit(ctx context.Context, path, indexID string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read batch: %w", err)
	}
	if err := ValidateBatch(data); err != nil {
		return "", err
	}
	resp, err := s.client.Ingest(ctx, indexID, json.RawMessage(data))
	if err != nil {
		return "", err
	}
	return resp.TaskID, nil
}
