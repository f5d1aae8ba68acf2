package watcher

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/pders01/searchable-files/internal/artifacts"
	"github.com/pders01/searchable-files/internal/models"
)

// ReportName is the file the watch report is written to
const ReportName = "watch_report.json"

// Summary tallies watch outcomes
type Summary struct {
	Total     int                   `json:"total"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
	TimedOut  int                   `json:"timed_out"`
	Errored   int                   `json:"errored"`
	Outcomes  []models.WatchOutcome `json:"outcomes"`
}

func (s *Summary) add(o models.WatchOutcome) {
	s.Total++
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case models.WatchSucceeded:
		s.Succeeded++
	case models.WatchFailed:
		s.Failed++
	case models.WatchTimedOut:
		s.TimedOut++
	case models.WatchErrored:
		s.Errored++
	}
}

// AllSucceeded reports whether every task succeeded
func (s *Summary) AllSucceeded() bool {
	return s.Succeeded == s.Total
}

// Lines renders the human summary
func (s *Summary) Lines() []string {
	n := s.Total
	if s.AllSucceeded() {
		return []string{fmt.Sprintf("Tasks all completed successfully (%d/%d)", n, n)}
	}
	bad := n - s.Succeeded
	return []string{
		fmt.Sprintf("%d tasks completed successfully (%d/%d)", s.Succeeded, s.Succeeded, n),
		fmt.Sprintf("%d tasks failed or did not complete (%d/%d)", bad, bad, n),
		fmt.Sprintf("  failed: %d, timed out: %d, errored: %d", s.Failed, s.TimedOut, s.Errored),
	}
}

// WriteReport writes the summary as JSON into dir
func WriteReport(dir string, s *Summary) (string, error) {
	if err := artifacts.EnsureDir(dir); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode watch report: %w", err)
	}
	path := filepath.Join(dir, ReportName)
	if err := artifacts.WriteFileAtomic(path, append(data, '\n')); err != nil {
		return "", err
	}
	return path, nil
}
