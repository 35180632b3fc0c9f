package itembank

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const documentSchemaURL = "schema://itembank.json"

const documentSchema = `{
  "type": "object",
  "required": ["format", "items"],
  "additionalProperties": false,
  "properties": {
    "format": {"type": "string"},
    "items": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "subject", "grade", "a", "b"],
        "additionalProperties": false,
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "subject": {"type": "string", "minLength": 1},
          "grade": {"type": "string", "minLength": 1},
          "skill": {"type": "string"},
          "content_area": {"type": "string"},
          "a": {"type": "number"},
          "b": {"type": "number"},
          "c": {"type": "number"},
          "d": {"type": "number"}
        }
      }
    }
  }
}`

var (
	compileOnce    sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func documentValidator() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		var def any
		if err := json.Unmarshal([]byte(documentSchema), &def); err != nil {
			compileErr = fmt.Errorf("parse item bank schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(documentSchemaURL, def); err != nil {
			compileErr = fmt.Errorf("add resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile(documentSchemaURL)
	})
	return compiledSchema, compileErr
}

// ValidateDocument checks the shape of a decoded item bank document.
func ValidateDocument(doc any) error {
	sch, err := documentValidator()
	if err != nil {
		return err
	}

	// The validator expects JSON-typed values; round-trip to normalize
	// YAML integers and maps.
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("normalize item bank document: %w", err)
	}
	var parsed any
	if err := json.Unmarshal(b, &parsed); err != nil {
		return fmt.Errorf("normalize item bank document: %w", err)
	}
	if err := sch.Validate(parsed); err != nil {
		return fmt.Errorf("item bank schema validation failed: %w", err)
	}
	return nil
}
