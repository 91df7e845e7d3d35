package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Resource names the record kind a NotFoundError refers to. Distinguishing
// stub, pointer, and version misses keeps lookup failures diagnosable even
// though they all surface as not-found to the caller.
type Resource string

// Resource kinds used by NotFoundError.
const (
	ResourceEntity       Resource = "entity"
	ResourceStub         Resource = "entity stub"
	ResourcePointer      Resource = "latest pointer"
	ResourceVersion      Resource = "entity version"
	ResourceEntityType   Resource = "entity type"
	ResourceOrganization Resource = "organization"
	ResourceBundle       Resource = "bundle"
	ResourceManifest     Resource = "manifest"
)

// NotFoundError reports a missing record. Any missing intermediate lookup
// (stub, pointer, version) terminates as this error.
type NotFoundError struct {
	Resource Resource
	ID       string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ForbiddenError reports a failed role or ownership check.
type ForbiddenError struct {
	Operation string
	Reason    string
}

func (e ForbiddenError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s: forbidden", e.Operation)
	}
	return fmt.Sprintf("%s: forbidden: %s", e.Operation, e.Reason)
}

// ValidationError reports schema violations with per-field messages.
type ValidationError struct {
	Fields map[string]string
}

func (e ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for id, msg := range e.Fields {
		parts = append(parts, id+": "+msg)
	}
	sort.Strings(parts)
	return "validation failed: " + strings.Join(parts, "; ")
}

// InvalidStatusError reports an operation not legal for the entity's current
// lifecycle state, e.g. editing a non-draft entity.
type InvalidStatusError struct {
	Operation string
	Status    Status
}

func (e InvalidStatusError) Error() string {
	return fmt.Sprintf("%s not permitted while status is %s", e.Operation, e.Status)
}

// InvalidTransitionError reports a workflow action illegal from the current
// status. The message enumerates the legal actions.
type InvalidTransitionError struct {
	Status  Status
	Action  Action
	Allowed []Action
}

func (e InvalidTransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("action %s not valid from status %s; no actions available", e.Action, e.Status)
	}
	parts := make([]string, len(e.Allowed))
	for i, a := range e.Allowed {
		parts[i] = string(a)
	}
	return fmt.Sprintf("action %s not valid from status %s; allowed: %s", e.Action, e.Status, strings.Join(parts, ", "))
}

// ConflictError reports a uniqueness violation such as a duplicate slug.
type ConflictError struct {
	Resource Resource
	Field    string
	Value    string
}

func (e ConflictError) Error() string {
	return fmt.Sprintf("%s with %s %q already exists", e.Resource, e.Field, e.Value)
}
