package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pders01/searchable-files/internal/models"
)

func TestParseExtractor(t *testing.T) {
	content := `
read_head:
  files:
    - "*.txt"
    - "docs/*"
  length: 40
skip_preamble_patterns:
  - "(?s)^# Copyright.*?\n\n"
`
	s, err := ParseExtractor([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, 40, s.HeadLength())
	assert.True(t, s.WantsHead("notes.txt"))
	assert.True(t, s.WantsHead("deep/dir/notes.txt"), "'*' should cross directory separators")
	assert.True(t, s.WantsHead("docs/a/b.md"))
	assert.False(t, s.WantsHead("main.go"))
	require.Len(t, s.SkipPatterns(), 1)
}

func TestParseExtractorDefaults(t *testing.T) {
	s, err := ParseExtractor([]byte(""))
	require.NoError(t, err)

	assert.Equal(t, DefaultHeadLength, s.HeadLength())
	assert.False(t, s.WantsHead("anything"))
	assert.Empty(t, s.SkipPatterns())
}

func TestParseExtractorErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown key", "read_hed:\n  files: []\n"},
		{"bad regex", "skip_preamble_patterns:\n  - \"(unclosed\"\n"},
		{"negative length", "read_head:\n  length: -1\n"},
		{"wrong type", "read_head:\n  files: \"*.txt\"\n"},
		{"not yaml", "read_head: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExtractor([]byte(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrConfig)
		})
	}
}

func TestParseAssembler(t *testing.T) {
	content := `
max_batch_size: 2
file_specific_annotations:
  a.txt:
    owner: alice
    priority: 3
visibility:
  default_visibility: "{current_user}"
  file_restrictions:
    secret.txt: ["urn:x:2", "urn:x:3"]
  doc_parts:
    - id: tags
      visibility: public
      fields: [tags]
`
	s, err := ParseAssembler([]byte(content))
	require.NoError(t, err)

	assert.Equal(t, 2, s.MaxBatchSize)
	assert.Equal(t, "alice", s.FileSpecificAnnotations["a.txt"]["owner"])
	assert.Equal(t, Visibility{CurrentUser}, s.Visibility.DefaultVisibility)
	assert.Equal(t, Visibility{"urn:x:2", "urn:x:3"}, s.DefaultVisibilityFor("secret.txt"))
	assert.Equal(t, Visibility{CurrentUser}, s.DefaultVisibilityFor("other.txt"))
	require.Len(t, s.Visibility.DocParts, 1)
	assert.Equal(t, DocPart{ID: "tags", Visibility: Visibility{"public"}, Fields: []string{"tags"}}, s.Visibility.DocParts[0])
}

func TestParseAssemblerDefaults(t *testing.T) {
	s, err := ParseAssembler([]byte("{}"))
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxBatchSize, s.MaxBatchSize)
	assert.Equal(t, Visibility{Public}, s.Visibility.DefaultVisibility)
	assert.Empty(t, s.Visibility.DocParts)
	assert.NotNil(t, s.FileSpecificAnnotations)
}

func TestParseAssemblerErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"zero batch size", "max_batch_size: 0\n"},
		{"unknown visibility key", "visibility:\n  default: public\n"},
		{"doc part without fields", "visibility:\n  doc_parts:\n    - id: x\n      visibility: public\n"},
		{"doc part empty fields", "visibility:\n  doc_parts:\n    - id: x\n      visibility: public\n      fields: []\n"},
		{"visibility mapping", "visibility:\n  default_visibility: {a: b}\n"},
		{"duplicate part ids", "visibility:\n  doc_parts:\n    - {id: x, visibility: public, fields: [a]}\n    - {id: x, visibility: public, fields: [b]}\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAssembler([]byte(tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrConfig)
			assert.True(t, models.IsUsageError(err))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadAssembler(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, models.ErrConfig)

	_, err = LoadExtractor(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, models.ErrConfig)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "assembler.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_batch_size: 7\n"), 0644))

	s, err := LoadAssembler(path)
	require.NoError(t, err)
	assert.Equal(t, 7, s.MaxBatchSize)
}
