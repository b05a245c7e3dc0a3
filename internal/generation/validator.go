package generation

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/generate_request.json
var generateRequestSchema string

// ErrValidation marks a request body that does not match the schema.
var ErrValidation = errors.New("validation failed")

type Request struct {
	ImageURL string `json:"imageUrl"`
}

// Validator checks request bodies against the embedded JSON schema.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	s, err := jsonschema.CompileString("https://aipainter.app/schemas/generate_request.json", generateRequestSchema)
	if err != nil {
		return nil, fmt.Errorf("compile generate request schema: %w", err)
	}
	return &Validator{schema: s}, nil
}

// Decode validates body and returns the parsed request.
func (v *Validator) Decode(body []byte) (Request, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return Request{}, fmt.Errorf("%w: invalid JSON: %v", ErrValidation, err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return req, nil
}
