// Package schema validates dynamic entity data against entity type
// definitions via a pluggable per-field-type validator registry.
package schema

import (
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"tenantcore/pkg/domain"
)

// FieldValueValidator normalizes and validates one raw value for a field.
type FieldValueValidator func(field domain.FieldDefinition, value any) (any, error)

// Registry maps field types to value validators.
type Registry struct {
	validators map[domain.FieldType]FieldValueValidator
}

// NewRegistry returns a registry preloaded with the built-in field types.
func NewRegistry() *Registry {
	r := &Registry{validators: make(map[domain.FieldType]FieldValueValidator)}
	r.Register(domain.FieldText, validateString)
	r.Register(domain.FieldRichText, validateString)
	r.Register(domain.FieldNumber, validateNumber)
	r.Register(domain.FieldBoolean, validateBoolean)
	r.Register(domain.FieldDate, validateDate)
	r.Register(domain.FieldSelect, validateSelect)
	r.Register(domain.FieldMultiSelect, validateMultiSelect)
	r.Register(domain.FieldEmail, validateEmail)
	r.Register(domain.FieldURL, validateURL)
	r.Register(domain.FieldImage, validateString)
	r.Register(domain.FieldReference, validateString)
	return r
}

// Register installs or replaces the validator for a field type.
func (r *Registry) Register(t domain.FieldType, v FieldValueValidator) {
	r.validators[t] = v
}

// Validator validates entity data maps against type schemas. It implements
// the schema-validator collaborator consumed by the entity store.
type Validator struct {
	registry *Registry
}

// NewValidator returns a validator backed by the default registry.
func NewValidator() *Validator { return &Validator{registry: NewRegistry()} }

// NewValidatorWithRegistry returns a validator using a caller-supplied registry.
func NewValidatorWithRegistry(r *Registry) *Validator { return &Validator{registry: r} }

// ValidateFields checks every provided value against its field definition and
// returns the normalized data map. Unknown field ids and per-field value
// errors are collected into a single domain.ValidationError.
func (v *Validator) ValidateFields(data map[string]any, t domain.EntityType) (map[string]any, error) {
	fieldErrs := map[string]string{}
	out := make(map[string]any, len(data))
	for id, raw := range data {
		field, ok := t.FieldByID(id)
		if !ok {
			fieldErrs[id] = "unknown field"
			continue
		}
		if raw == nil {
			out[id] = nil
			continue
		}
		validate, ok := v.registry.validators[field.Type]
		if !ok {
			fieldErrs[id] = fmt.Sprintf("no validator for field type %s", field.Type)
			continue
		}
		normalized, err := validate(field, raw)
		if err != nil {
			fieldErrs[id] = err.Error()
			continue
		}
		out[id] = normalized
	}
	if len(fieldErrs) > 0 {
		return nil, domain.ValidationError{Fields: fieldErrs}
	}
	return out, nil
}

// ValidateRequired verifies every required field of the type carries a
// non-empty value.
func (v *Validator) ValidateRequired(data map[string]any, t domain.EntityType) error {
	fieldErrs := map[string]string{}
	for _, field := range t.Fields {
		if !field.Required {
			continue
		}
		val, ok := data[field.ID]
		if !ok || val == nil || isEmptyString(val) {
			fieldErrs[field.ID] = "required"
		}
	}
	if len(fieldErrs) > 0 {
		return domain.ValidationError{Fields: fieldErrs}
	}
	return nil
}

func isEmptyString(v any) bool {
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func validateString(_ domain.FieldDefinition, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected string, got %T", value)
	}
	return s, nil
}

func validateNumber(_ domain.FieldDefinition, value any) (any, error) {
	switch n := value.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return nil, fmt.Errorf("expected number, got %T", value)
	}
}

func validateBoolean(_ domain.FieldDefinition, value any) (any, error) {
	b, ok := value.(bool)
	if !ok {
		return nil, fmt.Errorf("expected boolean, got %T", value)
	}
	return b, nil
}

func validateDate(_ domain.FieldDefinition, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected date string, got %T", value)
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if _, err := time.Parse(layout, s); err == nil {
			return s, nil
		}
	}
	return nil, fmt.Errorf("invalid date %q", s)
}

func validateSelect(field domain.FieldDefinition, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected string option, got %T", value)
	}
	if len(field.Options) == 0 {
		return s, nil
	}
	for _, opt := range field.Options {
		if opt == s {
			return s, nil
		}
	}
	return nil, fmt.Errorf("value %q not among options", s)
}

func validateMultiSelect(field domain.FieldDefinition, value any) (any, error) {
	raw, ok := value.([]any)
	if !ok {
		if ss, ok := value.([]string); ok {
			raw = make([]any, len(ss))
			for i, s := range ss {
				raw[i] = s
			}
		} else {
			return nil, fmt.Errorf("expected list of options, got %T", value)
		}
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		normalized, err := validateSelect(field, item)
		if err != nil {
			return nil, err
		}
		out = append(out, normalized.(string))
	}
	return out, nil
}

func validateEmail(_ domain.FieldDefinition, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected email string, got %T", value)
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return nil, fmt.Errorf("invalid email %q", s)
	}
	return s, nil
}

func validateURL(_ domain.FieldDefinition, value any) (any, error) {
	s, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("expected url string, got %T", value)
	}
	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid url %q", s)
	}
	return s, nil
}
