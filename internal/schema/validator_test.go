package schema

import (
	"errors"
	"testing"

	"tenantcore/pkg/domain"
)

func testType() domain.EntityType {
	return domain.EntityType{
		ID: "t1",
		Fields: []domain.FieldDefinition{
			{ID: "title", Type: domain.FieldText, Required: true},
			{ID: "count", Type: domain.FieldNumber},
			{ID: "live", Type: domain.FieldBoolean},
			{ID: "opened", Type: domain.FieldDate},
			{ID: "tier", Type: domain.FieldSelect, Options: []string{"gold", "silver"}},
			{ID: "tags", Type: domain.FieldMultiSelect, Options: []string{"a", "b"}},
			{ID: "contact", Type: domain.FieldEmail},
			{ID: "site", Type: domain.FieldURL},
		},
	}
}

func TestValidateFields_OK(t *testing.T) {
	v := NewValidator()
	data := map[string]any{
		"title":   "Acme",
		"count":   3,
		"live":    true,
		"opened":  "2024-06-01",
		"tier":    "gold",
		"tags":    []any{"a", "b"},
		"contact": "ops@example.com",
		"site":    "https://example.com/x",
	}
	out, err := v.ValidateFields(data, testType())
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if out["count"] != float64(3) {
		t.Fatalf("ints normalize to float64, got %T", out["count"])
	}
	tags, ok := out["tags"].([]string)
	if !ok || len(tags) != 2 {
		t.Fatalf("multiselect normalizes to []string, got %#v", out["tags"])
	}
}

func TestValidateFields_Errors(t *testing.T) {
	v := NewValidator()
	tests := []struct {
		name  string
		data  map[string]any
		field string
	}{
		{"unknown field", map[string]any{"bogus": "x"}, "bogus"},
		{"bad type", map[string]any{"title": 7}, "title"},
		{"bad number", map[string]any{"count": "seven"}, "count"},
		{"bad date", map[string]any{"opened": "June 1st"}, "opened"},
		{"option not listed", map[string]any{"tier": "bronze"}, "tier"},
		{"bad option in list", map[string]any{"tags": []any{"a", "c"}}, "tags"},
		{"bad email", map[string]any{"contact": "not-an-email"}, "contact"},
		{"bad url", map[string]any{"site": "://nope"}, "site"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := v.ValidateFields(tc.data, testType())
			var verr domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Fatalf("expected error on field %s, got %v", tc.field, verr.Fields)
			}
		})
	}
}

func TestValidateFields_CollectsAllErrors(t *testing.T) {
	v := NewValidator()
	_, err := v.ValidateFields(map[string]any{"title": 1, "count": "x", "ghost": "y"}, testType())
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %v", verr.Fields)
	}
}

func TestValidateRequired(t *testing.T) {
	v := NewValidator()
	typ := testType()
	tests := []struct {
		name string
		data map[string]any
		ok   bool
	}{
		{"present", map[string]any{"title": "Acme"}, true},
		{"missing", map[string]any{}, false},
		{"nil", map[string]any{"title": nil}, false},
		{"blank", map[string]any{"title": "   "}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := v.ValidateRequired(tc.data, typ)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				var verr domain.ValidationError
				if !errors.As(err, &verr) {
					t.Fatalf("expected ValidationError, got %v", err)
				}
				if verr.Fields["title"] != "required" {
					t.Fatalf("expected required error, got %v", verr.Fields)
				}
			}
		})
	}
}

func TestRegistry_CustomType(t *testing.T) {
	r := NewRegistry()
	r.Register(domain.FieldType("slugline"), func(_ domain.FieldDefinition, value any) (any, error) {
		return value, nil
	})
	v := NewValidatorWithRegistry(r)
	typ := domain.EntityType{Fields: []domain.FieldDefinition{{ID: "s", Type: domain.FieldType("slugline")}}}
	out, err := v.ValidateFields(map[string]any{"s": "anything"}, typ)
	if err != nil || out["s"] != "anything" {
		t.Fatalf("custom validator: %v %v", out, err)
	}
}
