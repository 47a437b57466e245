package events

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/memefactory/backend/internal/models"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// ErrInvalidDetails can be used with errors.Is to detect a details payload that does not
// match its event type.
var ErrInvalidDetails = errors.New("invalid event details")

// Validator checks event details against one compiled schema per event type.
type Validator struct {
	schemas map[models.EventType]*jsonschema.Schema
}

// NewValidator compiles every embedded schemas/<EVENT_TYPE>.json file.
func NewValidator() (*Validator, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("read schemas: %w", err)
	}
	schemas := make(map[models.EventType]*jsonschema.Schema)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		eventType := models.EventType(strings.TrimSuffix(e.Name(), ".json"))
		data, err := schemaFS.ReadFile(path.Join("schemas", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", e.Name(), err)
		}
		id := "https://memefactory.site/schemas/events/" + string(eventType)
		schemas[eventType], err = jsonschema.CompileString(id, string(data))
		if err != nil {
			return nil, fmt.Errorf("compile schema %q: %w", eventType, err)
		}
	}
	return &Validator{schemas: schemas}, nil
}

// MustValidator panics if the embedded schemas do not compile.
func MustValidator() *Validator {
	v, err := NewValidator()
	if err != nil {
		panic(err)
	}
	return v
}

// Validate returns ErrInvalidDetails when details do not fit the event type.
func (v *Validator) Validate(eventType models.EventType, details *models.EventDetails) error {
	schema, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("%w: unknown event type %q", ErrInvalidDetails, eventType)
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidDetails, eventType, err)
	}
	return nil
}
