// Package validation checks opaque application payloads against the optional
// JSON Schema a registry entry declares.
package validation

import (
	"fmt"
	"sort"

	apperrors "finserv-applications/internal/common/errors"

	"github.com/xeipuuv/gojsonschema"
)

// ValidationResult lists every schema violation found.
type ValidationResult struct {
	Valid  bool                   `json:"valid"`
	Errors []apperrors.FieldError `json:"errors,omitempty"`
}

// ValidateInput runs payload through schema. A nil or empty schema accepts
// anything.
func ValidateInput(payload map[string]interface{}, schema map[string]interface{}) (*ValidationResult, error) {
	if len(schema) == 0 {
		return &ValidationResult{Valid: true}, nil
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("schema validation: %w", err)
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, desc := range result.Errors() {
		out.Errors = append(out.Errors, apperrors.FieldError{
			Field:   desc.Field(),
			Message: desc.Description(),
			Code:    desc.Type(),
		})
	}
	sort.Slice(out.Errors, func(i, j int) bool {
		if out.Errors[i].Field == out.Errors[j].Field {
			return out.Errors[i].Code < out.Errors[j].Code
		}
		return out.Errors[i].Field < out.Errors[j].Field
	})
	return out, nil
}

// ValidatePayload returns a ValidationError describing every violation, or nil.
func ValidatePayload(payload map[string]interface{}, schema map[string]interface{}) error {
	result, err := ValidateInput(payload, schema)
	if err != nil {
		return apperrors.NewValidationError(err.Error())
	}
	if result.Valid {
		return nil
	}
	return apperrors.NewFieldValidationError(
		fmt.Sprintf("payload failed %d schema check(s)", len(result.Errors)),
		result.Errors,
	)
}
