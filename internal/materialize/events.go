// Package materialize recomputes the denormalized bundle and manifest
// read-models whenever upstream entity, type, or organization state changes.
package materialize

// Event classifies an upstream write. The write path produces these directly
// instead of pattern-matching storage keys, so dispatch never parses paths.
type Event interface{ event() }

// EntityWritten signals a new entity version, stub, or pointer write.
type EntityWritten struct {
	EntityID string
	TypeID   string
	OrgID    *string
}

// EntityTypeWritten signals a created, updated, or soft-deleted type
// definition.
type EntityTypeWritten struct {
	TypeID string
}

// OrgProfileWritten signals an organization profile write.
type OrgProfileWritten struct {
	OrgID string
}

// OrgPermissionsWritten signals an organization permissions write.
type OrgPermissionsWritten struct {
	OrgID string
}

func (EntityWritten) event()         {}
func (EntityTypeWritten) event()     {}
func (OrgProfileWritten) event()     {}
func (OrgPermissionsWritten) event() {}
