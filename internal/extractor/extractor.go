// Package extractor turns the files of a source tree into FileRecord JSON
// documents, one per file, named by the SHA-256 of the file's relative path.
package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gowebpki/jcs"

	"github.com/pders01/searchable-files/internal/artifacts"
	"github.com/pders01/searchable-files/internal/models"
	"github.com/pders01/searchable-files/internal/settings"
	"github.com/pders01/searchable-files/internal/walker"
)

// MTimeLayout is the ISO-8601 layout used for FileRecord.MTime
const MTimeLayout = "2006-01-02T15:04:05.000000-07:00"

// Classifier maps a file path to its type tags
type Classifier func(path string) ([]string, error)

// Extractor builds FileRecords for a source tree
type Extractor struct {
	settings *settings.Extractor
	classify Classifier
	location *time.Location
	logger   *slog.Logger
}

// Option customizes an Extractor
type Option func(*Extractor)

// WithClassifier replaces the content classifier
func WithClassifier(c Classifier) Option {
	return func(e *Extractor) { e.classify = c }
}

// WithLocation sets the timezone mtimes are rendered in (default: local)
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) { e.location = loc }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Extractor) { e.logger = l }
}

// New creates an Extractor
func New(s *settings.Extractor, opts ...Option) *Extractor {
	e := &Extractor{
		settings: s,
		classify: Tags,
		location: time.Local,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "extractor")
	return e
}

// Stats summarizes an extraction run
type Stats struct {
	Files     int
	OutputDir string
	Duration  time.Duration
}

// Run extracts every file under sourceDir and writes one record per file into
// outputDir. All records are built before anything is written, so a file that
// cannot be read aborts the run with no output. With clean set, outputDir is
// emptied first.
func (e *Extractor) Run(ctx context.Context, sourceDir, outputDir string, clean bool) (*Stats, error) {
	start := time.Now()

	var records []*models.FileRecord
	for rel, err := range walker.Files(sourceDir) {
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", sourceDir, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, err := e.Record(sourceDir, rel)
		if err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", rel, err)
		}
		records = append(records, rec)
	}

	if clean {
		if err := artifacts.CleanDir(outputDir); err != nil {
			return nil, err
		}
	}
	if err := artifacts.EnsureDir(outputDir); err != nil {
		return nil, err
	}

	for _, rec := range records {
		if _, err := WriteRecord(outputDir, rec); err != nil {
			return nil, err
		}
	}

	e.logger.Info("extraction complete", "files", len(records), "output", outputDir)
	return &Stats{Files: len(records), OutputDir: outputDir, Duration: time.Since(start)}, nil
}

// Record builds the FileRecord for rel, a slash-separated path under root
func (e *Extractor) Record(root, rel string) (*models.FileRecord, error) {
	full := filepath.Join(root, filepath.FromSlash(rel))

	info, err := os.Stat(full)
	if err != nil {
		return nil, err
	}

	tags, err := e.classify(full)
	if err != nil {
		return nil, fmt.Errorf("failed to classify: %w", err)
	}

	var head *string
	if e.settings.WantsHead(rel) {
		sample, err := sampleHead(full, e.settings.HeadLength(), e.settings.SkipPatterns())
		if err != nil {
			return nil, fmt.Errorf("failed to read head: %w", err)
		}
		head = &sample
	}

	name := filepath.Base(full)
	return &models.FileRecord{
		RelPath:   rel,
		Name:      name,
		Extension: extension(name),
		Tags:      tags,
		Mode:      octalMode(info.Mode()),
		SizeBytes: info.Size(),
		MTime:     info.ModTime().In(e.location).Format(MTimeLayout),
		Head:      head,
	}, nil
}

// WriteRecord writes rec as canonical JSON (RFC 8785) and returns its path
func WriteRecord(dir string, rec *models.FileRecord) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to marshal record for %s: %w", rec.RelPath, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize record for %s: %w", rec.RelPath, err)
	}

	dest := filepath.Join(dir, models.RecordFileName(rec.RelPath))
	if err := artifacts.WriteFileAtomic(dest, canonical); err != nil {
		return "", err
	}
	return dest, nil
}

// extension returns the text after the last '.' of name, or nil
func extension(name string) *string {
	i := strings.LastIndex(name, ".")
	if i < 0 {
		return nil
	}
	ext := name[i+1:]
	return &ext
}

// octalMode renders a FileMode the way stat(2) reports st_mode, e.g. "0o100644"
func octalMode(m fs.FileMode) string {
	bits := uint32(m.Perm())
	if m&fs.ModeSetuid != 0 {
		bits |= 0o4000
	}
	if m&fs.ModeSetgid != 0 {
		bits |= 0o2000
	}
	if m&fs.ModeSticky != 0 {
		bits |= 0o1000
	}

	switch {
	case m.IsRegular():
		bits |= 0o100000
	case m.IsDir():
		bits |= 0o040000
	case m&fs.ModeSymlink != 0:
		bits |= 0o120000
	case m&fs.ModeNamedPipe != 0:
		bits |= 0o010000
	case m&fs.ModeSocket != 0:
		bits |= 0o140000
	case m&fs.ModeCharDevice != 0:
		bits |= 0o020000
	case m&fs.ModeDevice != 0:
		bits |= 0o060000
	}
	return fmt.Sprintf("0o%o", bits)
}
