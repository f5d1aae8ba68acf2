package settings

import (
	"fmt"
	"os"

	"github.com/pders01/searchable-files/internal/models"
)

// DefaultMaxBatchSize is used when max_batch_size is unset
const DefaultMaxBatchSize = 100

// DocPart carves a set of fields into a separately visible entry
type DocPart struct {
	ID         string     `yaml:"id"`
	Visibility Visibility `yaml:"visibility"`
	Fields     []string   `yaml:"fields"`
}

// VisibilityRules controls who can see the entries of each file
type VisibilityRules struct {
	DefaultVisibility Visibility            `yaml:"default_visibility"`
	FileRestrictions  map[string]Visibility `yaml:"file_restrictions"`
	DocParts          []DocPart             `yaml:"doc_parts"`
}

// Assembler holds the settings for the assemble stage
type Assembler struct {
	MaxBatchSize            int                       `yaml:"max_batch_size"`
	FileSpecificAnnotations map[string]map[string]any `yaml:"file_specific_annotations"`
	Visibility              VisibilityRules           `yaml:"visibility"`
}

// LoadAssembler reads and validates assembler settings from a YAML file
func LoadAssembler(path string) (*Assembler, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read assembler settings: %v", models.ErrConfig, err)
	}
	return ParseAssembler(data)
}

// ParseAssembler validates and decodes assembler settings, filling defaults
func ParseAssembler(data []byte) (*Assembler, error) {
	if err := validateYAML("assembler", assemblerSchema, data); err != nil {
		return nil, err
	}

	s := &Assembler{}
	if err := decodeStrict("assembler", data, s); err != nil {
		return nil, err
	}
	if err := s.applyDefaults(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Assembler) applyDefaults() error {
	if s.MaxBatchSize <= 0 {
		s.MaxBatchSize = DefaultMaxBatchSize
	}
	if len(s.Visibility.DefaultVisibility) == 0 {
		s.Visibility.DefaultVisibility = Visibility{Public}
	}
	if s.FileSpecificAnnotations == nil {
		s.FileSpecificAnnotations = map[string]map[string]any{}
	}
	if s.Visibility.FileRestrictions == nil {
		s.Visibility.FileRestrictions = map[string]Visibility{}
	}

	seen := make(map[string]bool, len(s.Visibility.DocParts))
	for _, part := range s.Visibility.DocParts {
		if seen[part.ID] {
			return fmt.Errorf("%w: duplicate doc part id %q", models.ErrConfig, part.ID)
		}
		seen[part.ID] = true
	}
	return nil
}

// DefaultVisibilityFor returns the visibility of relPath's default entry
func (s *Assembler) DefaultVisibilityFor(relPath string) Visibility {
	if v, ok := s.Visibility.FileRestrictions[relPath]; ok {
		return v
	}
	return s.Visibility.DefaultVisibility
}
