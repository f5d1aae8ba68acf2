package settings

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/pders01/searchable-files/internal/models"
)

const extractorSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "read_head": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "files": {"type": "array", "items": {"type": "string", "minLength": 1}},
        "length": {"type": "integer", "minimum": 1}
      }
    },
    "skip_preamble_patterns": {"type": "array", "items": {"type": "string", "minLength": 1}}
  }
}`

const assemblerSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "max_batch_size": {"type": "integer", "minimum": 1},
    "file_specific_annotations": {
      "type": "object",
      "additionalProperties": {"type": "object"}
    },
    "visibility": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "default_visibility": {"$ref": "#/$defs/visibility"},
        "file_restrictions": {
          "type": "object",
          "additionalProperties": {"$ref": "#/$defs/visibility"}
        },
        "doc_parts": {
          "type": "array",
          "items": {
            "type": "object",
            "additionalProperties": false,
            "required": ["id", "visibility", "fields"],
            "properties": {
              "id": {"type": "string", "minLength": 1},
              "visibility": {"$ref": "#/$defs/visibility"},
              "fields": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
            }
          }
        }
      }
    }
  },
  "$defs": {
    "visibility": {
      "oneOf": [
        {"type": "string", "minLength": 1},
        {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}}
      ]
    }
  }
}`

var (
	schemaMu    sync.Mutex
	schemaCache = map[string]*jsonschema.Schema{}
)

func compiledSchema(name, src string) (*jsonschema.Schema, error) {
	schemaMu.Lock()
	defer schemaMu.Unlock()

	if s, ok := schemaCache[name]; ok {
		return s, nil
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	url := fmt.Sprintf("https://searchable-files.local/settings/%s.schema.json", name)
	if err := c.AddResource(url, strings.NewReader(src)); err != nil {
		return nil, fmt.Errorf("settings schema load failed: %w", err)
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("settings schema compile failed: %w", err)
	}
	schemaCache[name] = s
	return s, nil
}

// validateYAML checks a raw YAML document against the named schema.
// The document goes through JSON so numbers reach the validator as json.Number.
func validateYAML(name, src string, data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %s settings: %v", models.ErrConfig, name, err)
	}
	if raw == nil {
		raw = map[string]any{}
	}

	asJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("%w: %s settings: %v", models.ErrConfig, name, err)
	}
	dec := json.NewDecoder(bytes.NewReader(asJSON))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("%w: %s settings: %v", models.ErrConfig, name, err)
	}

	schema, err := compiledSchema(name, src)
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s settings: %v", models.ErrConfig, name, err)
	}
	return nil
}

// decodeStrict decodes data into out, rejecting unknown keys. An empty
// document leaves out untouched.
func decodeStrict(name string, data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if isEmptyDocument(err) {
			return nil
		}
		return fmt.Errorf("%w: %s settings: %v", models.ErrConfig, name, err)
	}
	return nil
}
