// Package schema validates fit submissions against the request schema of
// the embedded OpenAPI document.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed api_spec.json
var document []byte

// requestSchemaPath locates the submission schema inside the document.
var requestSchemaPath = []string{
	"paths", "/run_mmm_async", "post", "requestBody", "content", "application/json", "schema",
}

const resourceURL = "mem://mmmqueue/run_mmm_async.request.json"

var (
	// ErrInvalid matches every *ValidationError.
	ErrInvalid = errors.New("request does not match schema")
	// ErrMalformed is returned for bodies that are not JSON.
	ErrMalformed = errors.New("request body is not valid JSON")
)

// FieldError is one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every violation found in a request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "invalid request: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// Document returns the embedded OpenAPI document.
func Document() []byte { return document }

// Validator checks request bodies against a compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

// Load compiles the request schema of the embedded document.
func Load() (*Validator, error) {
	return New(document)
}

// New compiles the request schema found in an OpenAPI document.
func New(doc []byte) (*Validator, error) {
	var root map[string]any
	if err := json.Unmarshal(doc, &root); err != nil {
		return nil, fmt.Errorf("parsing api document: %w", err)
	}

	var node any = root
	for _, key := range requestSchemaPath {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("api document has no %s", strings.Join(requestSchemaPath, "."))
		}
		if node, ok = m[key]; !ok {
			return nil, fmt.Errorf("api document has no %s", strings.Join(requestSchemaPath, "."))
		}
	}
	raw, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("extracting request schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	c.AssertFormat = true
	if err := c.AddResource(resourceURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("loading request schema: %w", err)
	}
	s, err := c.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compiling request schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Validate checks body. It returns ErrMalformed for non-JSON input and a
// *ValidationError for schema violations.
func (v *Validator) Validate(body []byte) error {
	inst, err := decodeInstance(body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	err = v.schema.Validate(inst)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return fmt.Errorf("validating request: %w", err)
	}
	return &ValidationError{Fields: flatten(ve)}
}

// decodeInstance decodes body with numbers kept as json.Number, the form
// Schema.Validate expects. Trailing data after the value is rejected.
func decodeInstance(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var inst any
	if err := dec.Decode(&inst); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after JSON value")
	}
	return inst, nil
}

// flatten collects the leaf causes of ve, which carry the specific
// messages; the root only says "doesn't validate".
func flatten(ve *jsonschema.ValidationError) []FieldError {
	seen := map[FieldError]bool{}
	var out []FieldError
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) > 0 {
			for _, c := range e.Causes {
				walk(c)
			}
			return
		}
		fe := FieldError{Field: e.InstanceLocation, Message: e.Message}
		if fe.Field == "" {
			fe.Field = "/"
		}
		if !seen[fe] {
			seen[fe] = true
			out = append(out, fe)
		}
	}
	walk(ve)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}
