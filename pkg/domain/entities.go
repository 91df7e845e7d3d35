// Package domain defines the core persistent entities, value types, and
// error taxonomy used by tenantcore.
package domain

import "time"

// Status represents the entity approval workflow state.
type Status string

// Canonical entity lifecycle statuses. An entity's lifecycle ends only via
// soft delete; version history is never removed.
const (
	// StatusDraft identifies an entity still being edited by its organization.
	StatusDraft Status = "draft"
	// StatusPending identifies an entity submitted and awaiting approval.
	StatusPending Status = "pending"
	// StatusPublished identifies an approved, audience-visible entity.
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

// Visibility controls which storage scope and audiences an entity reaches.
type Visibility string

// Canonical entity visibilities.
const (
	// VisibilityPublic exposes published entities to unauthenticated viewers.
	VisibilityPublic Visibility = "public"
	// VisibilityAuthenticated exposes published entities to any platform user.
	VisibilityAuthenticated Visibility = "authenticated"
	// VisibilityMembers restricts an entity to its organization's members.
	// Never valid for a global entity.
	VisibilityMembers Visibility = "members"
)

// Action identifies a workflow transition request.
type Action string

// Workflow actions accepted by the transition engine.
const (
	ActionSubmitForApproval Action = "submitForApproval"
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionArchive           Action = "archive"
	ActionRestore           Action = "restore"
	ActionDelete            Action = "delete"
)

// Role identifies the privilege tier of an authenticated caller.
type Role string

// Caller roles as established by the external authentication layer.
const (
	RolePublic     Role = "public"
	RoleUser       Role = "user"
	RoleOrgMember  Role = "member"
	RoleOrgAdmin   Role = "org_admin"
	RoleSuperadmin Role = "superadmin"
)

// Caller carries already-authenticated request identity into service operations.
// The HTTP layer is responsible for populating it; tenantcore only checks it.
type Caller struct {
	UserID         string
	Role           Role
	OrganizationID *string
	// MembershipKey is the resolved access tier for field projection.
	// Empty means the public tier.
	MembershipKey string
}

// IsSuperadmin reports whether the caller holds platform-wide privilege.
func (c Caller) IsSuperadmin() bool { return c.Role == RoleSuperadmin }

// OwnsOrg reports whether the caller belongs to the given organization.
// A nil org (global entity) is owned only by superadmins.
func (c Caller) OwnsOrg(orgID *string) bool {
	if c.IsSuperadmin() {
		return true
	}
	if orgID == nil || c.OrganizationID == nil {
		return false
	}
	return *c.OrganizationID == *orgID
}

// Entity is a versioned, typed, tenant-scoped content record. Every write
// produces a new immutable version; no version is mutated in place.
type Entity struct {
	ID             string         `json:"id"`
	EntityTypeID   string         `json:"entity_type_id"`
	OrganizationID *string        `json:"organization_id"`
	Version        int            `json:"version"`
	Status         Status         `json:"status"`
	Visibility     Visibility     `json:"visibility"`
	Name           string         `json:"name"`
	Slug           string         `json:"slug"`
	Data           map[string]any `json:"data"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	CreatedBy      string         `json:"created_by"`
	UpdatedBy      string         `json:"updated_by"`

	ApprovalFeedback string     `json:"approval_feedback,omitempty"`
	ApprovalActionAt *time.Time `json:"approval_action_at,omitempty"`
	ApprovalActionBy string     `json:"approval_action_by,omitempty"`
}

// IsGlobal reports whether the entity is platform-owned rather than
// organization-owned.
func (e Entity) IsGlobal() bool { return e.OrganizationID == nil }

// LatestPointer is the small mutable record naming the current version of an
// entity. Exactly one pointer is authoritative at any instant; its storage key
// changes as status/visibility change.
type LatestPointer struct {
	Version    int        `json:"version"`
	Status     Status     `json:"status"`
	Visibility Visibility `json:"visibility"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// EntityStub is the immutable reverse-index record mapping an entity id to its
// owning organization and type. Exactly one stub exists per entity regardless
// of how many times the entity's storage location moves.
type EntityStub struct {
	EntityID       string    `json:"entity_id"`
	OrganizationID *string   `json:"organization_id"`
	EntityTypeID   string    `json:"entity_type_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// FieldType identifies the value validator applied to a dynamic field.
type FieldType string

// Supported dynamic field types.
const (
	FieldText        FieldType = "text"
	FieldRichText    FieldType = "richtext"
	FieldNumber      FieldType = "number"
	FieldBoolean     FieldType = "boolean"
	FieldDate        FieldType = "date"
	FieldSelect      FieldType = "select"
	FieldMultiSelect FieldType = "multiselect"
	FieldEmail       FieldType = "email"
	FieldURL         FieldType = "url"
	FieldImage       FieldType = "image"
	FieldReference   FieldType = "reference"
)

// FieldDefinition describes one dynamic field of an entity type.
type FieldDefinition struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      FieldType `json:"type"`
	SectionID string    `json:"section_id,omitempty"`
	Required  bool      `json:"required"`
	Order     int       `json:"order"`
	// Options constrains select/multiselect values.
	Options []string `json:"options,omitempty"`
}

// Section groups fields for display purposes.
type Section struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

// EntityType is the schema and visibility policy governing a class of
// entities. Managed by superadmins; soft-deleted via IsActive=false.
type EntityType struct {
	ID                string            `json:"id"`
	Name              string            `json:"name"`
	Slug              string            `json:"slug"`
	Fields            []FieldDefinition `json:"fields"`
	Sections          []Section         `json:"sections,omitempty"`
	DefaultVisibility Visibility        `json:"default_visibility"`
	// VisibleTo lists membership key ids allowed to view published entities
	// of this type.
	VisibleTo []string `json:"visible_to"`
	// FieldVisibility maps a field id to the membership keys allowed to see
	// that specific field. Fields absent from the map follow VisibleTo.
	FieldVisibility map[string][]string `json:"field_visibility,omitempty"`
	IsActive        bool                `json:"is_active"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

// FieldByID returns the field definition with the given id.
func (t EntityType) FieldByID(id string) (FieldDefinition, bool) {
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// VisibleToKey reports whether published entities of this type are visible to
// the given membership key at the type level.
func (t EntityType) VisibleToKey(key string) bool {
	for _, k := range t.VisibleTo {
		if k == key {
			return true
		}
	}
	return false
}

// Organization is the tenant record. MembershipKey names the access tier its
// members inherit; Tier is the legacy tier identifier kept for older configs.
type Organization struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	MembershipKey string    `json:"membership_key"`
	Tier          string    `json:"tier,omitempty"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// OrganizationPermissions captures per-org grants that affect which bundles
// the org's members may read.
type OrganizationPermissions struct {
	OrganizationID string    `json:"organization_id"`
	MembershipKey  string    `json:"membership_key"`
	GrantedKeys    []string  `json:"granted_keys,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
