package submitter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const gmetaListSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["ingest_type", "ingest_data"],
  "properties": {
    "ingest_type": {"const": "GMetaList"},
    "ingest_data": {
      "type": "object",
      "required": ["gmeta"],
      "properties": {
        "gmeta": {"type": "array", "items": {"$ref": "#/$defs/entry"}}
      }
    }
  },
  "$defs": {
    "entry": {
      "type": "object",
      "required": ["subject", "visible_to", "content"],
      "properties": {
        "subject": {"type": "string", "minLength": 1},
        "visible_to": {
          "type": "array",
          "minItems": 1,
          "items": {"type": "string", "minLength": 1}
        },
        "content": {"type": "object"},
        "id": {"type": "string", "minLength": 1}
      }
    }
  }
}`

const schemaURL = "https://searchable-files.local/ingest/gmetalist.schema.json"

var loadSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(gmetaListSchema)); err != nil {
		return nil, fmt.Errorf("ingest schema load failed: %w", err)
	}
	return c.Compile(schemaURL)
})

// ValidateBatch checks that data is a well-formed GMetaList ingest document
func ValidateBatch(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("not a GMetaList document: %w", err)
	}
	return nil
}
