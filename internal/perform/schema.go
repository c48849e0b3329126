package perform

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/oneclientcore/runtime/internal/hostvalue"
)

//go:embed schemas/parameters.schema.json
var parametersSchemaSource []byte

//go:embed schemas/security.schema.json
var securitySchemaSource []byte

var parametersSchema, securitySchema *jsonschema.Schema

func init() {
	parametersSchema = mustCompile("parameters.schema.json", parametersSchemaSource)
	securitySchema = mustCompile("security.schema.json", securitySchemaSource)
}

func mustCompile(name string, source []byte) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(source)); err != nil {
		panic(fmt.Sprintf("perform: add schema resource %s: %v", name, err))
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("perform: compile schema %s: %v", name, err))
	}
	return schema
}

// JsonSchemaValidationError carries the underlying jsonschema library's
// diagnostic for a failed schema validation, wrapped into the exception
// taxonomy by the orchestrator.
type JsonSchemaValidationError struct {
	Schema string
	Err    error
}

func (e *JsonSchemaValidationError) Error() string {
	return fmt.Sprintf("perform: %s schema validation failed: %v", e.Schema, e.Err)
}

func (e *JsonSchemaValidationError) Unwrap() error { return e.Err }

// toSchemaInterface converts a hostvalue.Value into the plain
// map[string]any/[]any/string/float64/bool/nil shape the jsonschema
// library validates against, via a JSON marshal/unmarshal round trip
// (hostvalue.Value's MarshalJSON already produces exactly that wire
// shape; this just hands it back as generic Go values instead of bytes).
func toSchemaInterface(v hostvalue.Value) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("perform: marshal value for schema validation: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("perform: unmarshal value for schema validation: %w", err)
	}
	return out, nil
}

// validateParameters validates v against the parameters schema.
func validateParameters(v hostvalue.Value) error {
	iface, err := toSchemaInterface(v)
	if err != nil {
		return err
	}
	if err := parametersSchema.Validate(iface); err != nil {
		return &JsonSchemaValidationError{Schema: "parameters", Err: err}
	}
	return nil
}

// validateSecurity validates v against the security schema.
func validateSecurity(v hostvalue.Value) error {
	iface, err := toSchemaInterface(v)
	if err != nil {
		return err
	}
	if err := securitySchema.Validate(iface); err != nil {
		return &JsonSchemaValidationError{Schema: "security", Err: err}
	}
	return nil
}
