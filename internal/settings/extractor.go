package settings

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/gobwas/glob"

	"github.com/pders01/searchable-files/internal/models"
)

// DefaultHeadLength is the number of characters sampled when read_head.length is unset
const DefaultHeadLength = 100

// ReadHead selects which files get a content sample and how long it is
type ReadHead struct {
	Files  []string `yaml:"files"`
	Length int      `yaml:"length"`
}

// Extractor holds the settings for the extract stage
type Extractor struct {
	ReadHead             ReadHead `yaml:"read_head"`
	SkipPreamblePatterns []string `yaml:"skip_preamble_patterns"`

	globs []glob.Glob
	skip  []*regexp.Regexp
}

// LoadExtractor reads and validates extractor settings from a YAML file
func LoadExtractor(path string) (*Extractor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read extractor settings: %v", models.ErrConfig, err)
	}
	return ParseExtractor(data)
}

// ParseExtractor validates and decodes extractor settings
func ParseExtractor(data []byte) (*Extractor, error) {
	if err := validateYAML("extractor", extractorSchema, data); err != nil {
		return nil, err
	}

	s := &Extractor{}
	if err := decodeStrict("extractor", data, s); err != nil {
		return nil, err
	}
	if err := s.compile(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Extractor) compile() error {
	if s.ReadHead.Length <= 0 {
		s.ReadHead.Length = DefaultHeadLength
	}

	s.globs = make([]glob.Glob, 0, len(s.ReadHead.Files))
	for _, pattern := range s.ReadHead.Files {
		g, err := glob.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: read_head.files: bad glob %q: %v", models.ErrConfig, pattern, err)
		}
		s.globs = append(s.globs, g)
	}

	s.skip = make([]*regexp.Regexp, 0, len(s.SkipPreamblePatterns))
	for _, pattern := range s.SkipPreamblePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: skip_preamble_patterns: bad pattern %q: %v", models.ErrConfig, pattern, err)
		}
		s.skip = append(s.skip, re)
	}
	return nil
}

// WantsHead reports whether relPath matches any read_head glob.
// Globs follow fnmatch rules: '*' also matches '/'.
func (s *Extractor) WantsHead(relPath string) bool {
	for _, g := range s.globs {
		if g.Match(relPath) {
			return true
		}
	}
	return false
}

// SkipPatterns returns the compiled preamble patterns in configured order
func (s *Extractor) SkipPatterns() []*regexp.Regexp {
	return s.skip
}

// HeadLength returns the configured sample length in characters
func (s *Extractor) HeadLength() int {
	return s.ReadHead.Length
}

func isEmptyDocument(err error) bool {
	return errors.Is(err, io.EOF)
}
