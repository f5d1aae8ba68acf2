// Package assembler turns extracted FileRecords into GMetaList ingest batches.
//
// Each record becomes one default entry plus one entry per configured doc
// part. Entries from all records form a single stream that is cut into
// batches of at most max_batch_size entries, in arrival order.
package assembler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pders01/searchable-files/internal/artifacts"
	"github.com/pders01/searchable-files/internal/models"
	"github.com/pders01/searchable-files/internal/settings"
	"github.com/pders01/searchable-files/internal/walker"
)

// VisibilityResolver supplies the principal that replaces {current_user}
type VisibilityResolver interface {
	CurrentUser(ctx context.Context) (string, error)
}

// Assembler builds ingest entries and batches. It is not safe for concurrent
// use.
type Assembler struct {
	settings *settings.Assembler
	resolver VisibilityResolver
	logger   *slog.Logger

	// resolved {current_user}, looked up once per Assembler
	currentUser string
}

// New creates an Assembler. resolver may be nil when no visibility rule uses
// {current_user}.
func New(s *settings.Assembler, resolver VisibilityResolver, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		settings: s,
		resolver: resolver,
		logger:   logger.With("component", "assembler"),
	}
}

// Stats summarizes an assembly run
type Stats struct {
	Records   int
	Entries   int
	Batches   int
	OutputDir string
	Duration  time.Duration
}

// Run reads every record under inputDir and writes ingest_doc_<N>.json files
// into outputDir. Every entry is built before the first batch is written, so
// a configuration problem leaves no output behind.
func (a *Assembler) Run(ctx context.Context, inputDir, outputDir string, clean bool) (*Stats, error) {
	start := time.Now()

	var entries []models.IngestEntry
	records := 0
	for rel, err := range walker.Files(inputDir) {
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", inputDir, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path := filepath.Join(inputDir, filepath.FromSlash(rel))
		record, err := ReadRecord(path)
		if err != nil {
			return nil, err
		}
		built, err := a.BuildEntries(ctx, record)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", rel, err)
		}
		entries = append(entries, built...)
		records++
	}

	if clean {
		if err := artifacts.CleanDir(outputDir); err != nil {
			return nil, err
		}
	}
	if err := artifacts.EnsureDir(outputDir); err != nil {
		return nil, err
	}

	batches := Pack(entries, a.settings.MaxBatchSize)
	for n, batch := range batches {
		if err := WriteBatch(outputDir, n, batch); err != nil {
			return nil, err
		}
	}

	a.logger.Info("assembly complete", "records", records, "entries", len(entries), "batches", len(batches))
	return &Stats{
		Records:   records,
		Entries:   len(entries),
		Batches:   len(batches),
		OutputDir: outputDir,
		Duration:  time.Since(start),
	}, nil
}

// ReadRecord loads an extracted record as a generic field map.
// Numbers are kept as json.Number so they round-trip unchanged.
func ReadRecord(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var record map[string]any
	if err := dec.Decode(&record); err != nil {
		return nil, fmt.Errorf("failed to parse record %s: %w", path, err)
	}
	return record, nil
}

// BuildEntries splits one record into its default entry followed by one entry
// per doc part, in configured order.
func (a *Assembler) BuildEntries(ctx context.Context, record map[string]any) ([]models.IngestEntry, error) {
	relPath, ok := record["relpath"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: relpath", models.ErrMissingField)
	}

	data := make(map[string]any, len(record))
	for k, v := range record {
		data[k] = v
	}
	for k, v := range a.settings.FileSpecificAnnotations[relPath] {
		data[k] = v
	}

	parts := a.settings.Visibility.DocParts
	carved := make(map[string]bool)
	partEntries := make([]models.IngestEntry, 0, len(parts))
	for _, part := range parts {
		content := make(map[string]any, len(part.Fields))
		for _, field := range part.Fields {
			v, ok := data[field]
			if !ok {
				return nil, fmt.Errorf("%w: doc part %q needs field %q", models.ErrMissingField, part.ID, field)
			}
			content[field] = v
			carved[field] = true
		}

		visibleTo, err := a.resolve(ctx, part.Visibility)
		if err != nil {
			return nil, err
		}
		partEntries = append(partEntries, models.IngestEntry{
			Subject:   relPath,
			VisibleTo: visibleTo,
			Content:   content,
			ID:        part.ID,
		})
	}

	defaultContent := make(map[string]any, len(data))
	for k, v := range data {
		if !carved[k] {
			defaultContent[k] = v
		}
	}
	visibleTo, err := a.resolve(ctx, a.settings.DefaultVisibilityFor(relPath))
	if err != nil {
		return nil, err
	}

	entries := make([]models.IngestEntry, 0, 1+len(partEntries))
	entries = append(entries, models.IngestEntry{
		Subject:   relPath,
		VisibleTo: visibleTo,
		Content:   defaultContent,
	})
	return append(entries, partEntries...), nil
}

// resolve replaces {current_user} and returns a fresh principal list
func (a *Assembler) resolve(ctx context.Context, v settings.Visibility) ([]string, error) {
	out := make([]string, 0, len(v))
	for _, principal := range v {
		if principal == settings.CurrentUser {
			if a.resolver == nil {
				return nil, fmt.Errorf("%w: %s visibility needs a logged-in identity", models.ErrNotLoggedIn, settings.CurrentUser)
			}
			if a.currentUser == "" {
				urn, err := a.resolver.CurrentUser(ctx)
				if err != nil {
					return nil, fmt.Errorf("failed to resolve %s: %w", settings.CurrentUser, err)
				}
				a.currentUser = urn
			}
			principal = a.currentUser
		}
		out = append(out, principal)
	}
	return out, nil
}

// Pack cuts entries into consecutive batches of at most size entries.
// Empty input yields no batches.
func Pack(entries []models.IngestEntry, size int) [][]models.IngestEntry {
	if size <= 0 {
		size = settings.DefaultMaxBatchSize
	}
	var batches [][]models.IngestEntry
	for start := 0; start < len(entries); start += size {
		end := min(start+size, len(entries))
		batches = append(batches, entries[start:end])
	}
	return batches
}

// WriteBatch writes the n-th batch file into dir
func WriteBatch(dir string, n int, entries []models.IngestEntry) error {
	data, err := json.Marshal(models.NewIngestBatch(entries))
	if err != nil {
		return fmt.Errorf("failed to marshal batch %d: %w", n, err)
	}
	return artifacts.WriteFileAtomic(filepath.Join(dir, models.BatchFileName(n)), data)
}
