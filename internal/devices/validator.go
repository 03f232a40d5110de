package devices

import (
	"encoding/json"
	"fmt"
	"strings"

	_ "embed"

	"github.com/KevinKickass/boardlink/internal/types"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/component-v1.json
var componentSchemaJSON string

//go:embed schema/board-profile-v1.json
var boardProfileSchemaJSON string

//go:embed schema/shield-v1.json
var shieldSchemaJSON string

type Validator struct {
	profile *jsonschema.Schema
	shield  *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()

	resources := map[string]string{
		"component-v1.json":     componentSchemaJSON,
		"board-profile-v1.json": boardProfileSchemaJSON,
		"shield-v1.json":        shieldSchemaJSON,
	}
	for name, doc := range resources {
		if err := compiler.AddResource(name, strings.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
		}
	}

	profile, err := compiler.Compile("board-profile-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile profile schema: %w", err)
	}
	shield, err := compiler.Compile("shield-v1.json")
	if err != nil {
		return nil, fmt.Errorf("failed to compile shield schema: %w", err)
	}

	return &Validator{profile: profile, shield: shield}, nil
}

// ValidateProfile checks a JSON encoded board profile
func (v *Validator) ValidateProfile(data []byte) error {
	return validate(v.profile, data)
}

// ValidateShield checks a JSON encoded shield module
func (v *Validator) ValidateShield(data []byte) error {
	return validate(v.shield, data)
}

func (v *Validator) ValidateProfileDefinition(profile *types.BoardProfileDefinition) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal profile: %w", err)
	}

	return v.ValidateProfile(data)
}

func validate(schema *jsonschema.Schema, data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}

	return nil
}
