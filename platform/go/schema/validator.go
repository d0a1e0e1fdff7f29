package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidator validates json column payloads against JSON Schemas compiled via santhosh-tekuri/jsonschema.
type SchemaValidator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

var defaultValidator = NewSchemaValidator()

// NewSchemaValidator returns a validator with an empty schema cache.
func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		cache: make(map[string]*jsonschema.Schema),
	}
}

// Validate ensures the payload matches the schema registered under key, compiling it on first use.
func (v *SchemaValidator) Validate(key string, schemaDoc []byte, payload []byte) error {
	if len(payload) == 0 {
		return fmt.Errorf("payload is required for validation")
	}

	compiled, err := v.compile(key, schemaDoc)
	if err != nil {
		return err
	}

	var document any
	if err := json.Unmarshal(payload, &document); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	if err := compiled.Validate(document); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}

	return nil
}

func (v *SchemaValidator) compile(key string, schemaDoc []byte) (*jsonschema.Schema, error) {
	v.mu.RLock()
	compiled, ok := v.cache[key]
	v.mu.RUnlock()
	if ok {
		return compiled, nil
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if compiled, ok = v.cache[key]; ok {
		return compiled, nil
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(key, bytes.NewReader(schemaDoc)); err != nil {
		return nil, fmt.Errorf("register schema %s: %w", key, err)
	}

	newCompiled, err := compiler.Compile(key)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", key, err)
	}

	v.cache[key] = newCompiled
	return newCompiled, nil
}

// ValidateJSON checks a normalized json value against the column's schema. Columns without a schema accept any document.
func (c Column) ValidateJSON(value json.RawMessage) error {
	if len(c.JSONSchema) == 0 || value == nil {
		return nil
	}
	key := c.schemaKey
	if key == "" {
		digest, err := jsonHash(c.JSONSchema)
		if err != nil {
			return fmt.Errorf("json schema: %w", err)
		}
		key = "memory://columns/" + c.Name + "/" + digest
	}
	return defaultValidator.Validate(key, c.JSONSchema, value)
}
