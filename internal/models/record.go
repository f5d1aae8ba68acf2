package models

import (
	"crypto/sha256"
	"encoding/hex"
)

// FileRecord is the per-file metadata written by the extractor
type FileRecord struct {
	RelPath   string   `json:"relpath"`
	Name      string   `json:"name"`
	Extension *string  `json:"extension"`
	Tags      []string `json:"tags"`
	Mode      string   `json:"mode"`
	SizeBytes int64    `json:"size_bytes"`
	MTime     string   `json:"mtime"`
	Head      *string  `json:"head"`
}

// RecordFileName returns the on-disk name of the record for relPath:
// the hex SHA-256 of the path plus ".json"
func RecordFileName(relPath string) string {
	sum := sha256.Sum256([]byte(relPath))
	return hex.EncodeToString(sum[:]) + ".json"
}
