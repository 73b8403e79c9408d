package validation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

type ValidationError struct {
	Violations []string
}

func (e ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return e.Violations[0]
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Violations), strings.Join(e.Violations, "; "))
}

type SchemaNotFoundError struct {
	Name string
}

func (e SchemaNotFoundError) Error() string {
	return fmt.Sprintf("no schema registered for %s", e.Name)
}

// Validator holds compiled JSON schemas keyed by action name. It is safe for
// concurrent use.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
}

func NewValidator() *Validator {
	return &Validator{schemas: make(map[string]*jsonschema.Schema)}
}

// Register compiles schema and stores it under name, replacing any previous
// schema with that name.
func (v *Validator) Register(name string, schema string) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(schema))
	if err != nil {
		return fmt.Errorf("unmarshal schema %s: %w", name, err)
	}
	url := "actionset://schemas/" + strings.TrimPrefix(name, "@")
	c := jsonschema.NewCompiler()
	c.AssertFormat()
	if err := c.AddResource(url, doc); err != nil {
		return fmt.Errorf("add schema %s: %w", name, err)
	}
	compiled, err := c.Compile(url)
	if err != nil {
		return fmt.Errorf("compile schema %s: %w", name, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.schemas[name] = compiled
	return nil
}

// Validate checks value against the schema registered under name. A failed
// check is returned as a ValidationError listing every violation.
func (v *Validator) Validate(name string, value any) error {
	v.mu.RLock()
	compiled, ok := v.schemas[name]
	v.mu.RUnlock()
	if !ok {
		return SchemaNotFoundError{Name: name}
	}
	doc, err := toJSONValue(value)
	if err != nil {
		return fmt.Errorf("serialize %s payload: %w", name, err)
	}
	if err := compiled.Validate(doc); err != nil {
		return toValidationError(err)
	}
	return nil
}

// toJSONValue round-trips through JSON so numbers become json.Number, which
// the schema library requires.
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

func toValidationError(err error) ValidationError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return ValidationError{Violations: []string{err.Error()}}
	}
	violations := collectViolations(verr)
	if len(violations) == 0 {
		violations = []string{verr.Error()}
	}
	return ValidationError{Violations: violations}
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
