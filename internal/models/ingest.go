package models

import "fmt"

// IngestTypeGMetaList is the only ingest envelope type we produce
const IngestTypeGMetaList = "GMetaList"

// IngestEntry is one visibility-scoped fragment of a file's metadata (a GMetaEntry)
type IngestEntry struct {
	Subject   string         `json:"subject"`
	VisibleTo []string       `json:"visible_to"`
	Content   map[string]any `json:"content"`
	ID        string         `json:"id,omitempty"`
}

// IngestData wraps the entry list
type IngestData struct {
	GMeta []IngestEntry `json:"gmeta"`
}

// IngestBatch is the ingest document submitted in one request
type IngestBatch struct {
	IngestType string     `json:"ingest_type"`
	IngestData IngestData `json:"ingest_data"`
}

// NewIngestBatch builds a GMetaList batch around entries
func NewIngestBatch(entries []IngestEntry) *IngestBatch {
	return &IngestBatch{
		IngestType: IngestTypeGMetaList,
		IngestData: IngestData{GMeta: entries},
	}
}

// BatchFileName returns the name of the n-th assembled batch file
func BatchFileName(n int) string {
	return fmt.Sprintf("ingest_doc_%d.json", n)
}
