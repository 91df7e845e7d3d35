// Package entitystore persists entities as append-only version chains plus
// mutable latest pointers across the multi-location storage scheme, and
// maintains the per-entity stub reverse index.
package entitystore

import (
	"context"
	"time"

	"tenantcore/internal/blob"
	"tenantcore/internal/ids"
	"tenantcore/internal/paths"
	"tenantcore/pkg/domain"
)

// FieldValidator is the schema-validation collaborator.
type FieldValidator interface {
	ValidateFields(data map[string]any, t domain.EntityType) (map[string]any, error)
	ValidateRequired(data map[string]any, t domain.EntityType) error
}

// TransitionTable is the workflow-table collaborator.
type TransitionTable interface {
	IsValidTransition(status domain.Status, action domain.Action) bool
	AllowedActions(status domain.Status) []domain.Action
	Target(action domain.Action) (domain.Status, bool)
}

// Store reads and writes entity records through the blob store.
type Store struct {
	blobs     blob.Store
	validator FieldValidator
	table     TransitionTable
	now       func() time.Time
	newID     func() string
}

// Option customizes a Store.
type Option func(*Store)

// WithClock overrides the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithIDFunc overrides entity id generation (tests).
func WithIDFunc(f func() string) Option {
	return func(s *Store) { s.newID = f }
}

// New constructs an entity store.
func New(blobs blob.Store, validator FieldValidator, table TransitionTable, opts ...Option) *Store {
	s := &Store{
		blobs:     blobs,
		validator: validator,
		table:     table,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     ids.NewEntityID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Blobs exposes the underlying blob store for collaborating components.
func (s *Store) Blobs() blob.Store { return s.blobs }

// CreateInput describes a new entity.
type CreateInput struct {
	TypeID         string
	OrganizationID *string
	Name           string
	Slug           string
	Data           map[string]any
	// Visibility defaults to the type's DefaultVisibility when empty.
	Visibility domain.Visibility
	Actor      string
}

// Create validates the input against the type schema and writes version 1,
// the stub, and the latest pointer at the placement-rule location.
func (s *Store) Create(ctx context.Context, input CreateInput) (domain.Entity, error) {
	t, err := s.GetType(ctx, input.TypeID)
	if err != nil {
		return domain.Entity{}, err
	}
	visibility := input.Visibility
	if visibility == "" {
		visibility = t.DefaultVisibility
	}
	// Global entities never use members visibility.
	if input.OrganizationID == nil && visibility == domain.VisibilityMembers {
		visibility = domain.VisibilityAuthenticated
	}
	data, err := s.validator.ValidateFields(input.Data, t)
	if err != nil {
		return domain.Entity{}, err
	}
	if err := s.validator.ValidateRequired(data, t); err != nil {
		return domain.Entity{}, err
	}

	now := s.now()
	entity := domain.Entity{
		ID:             s.newID(),
		EntityTypeID:   t.ID,
		OrganizationID: input.OrganizationID,
		Version:        1,
		Status:         domain.StatusDraft,
		Visibility:     visibility,
		Name:           input.Name,
		Slug:           input.Slug,
		Data:           data,
		CreatedAt:      now,
		UpdatedAt:      now,
		CreatedBy:      input.Actor,
		UpdatedBy:      input.Actor,
	}
	scope := paths.EntityScope(entity.OrganizationID, entity.Status, entity.Visibility)
	if err := blob.PutJSON(ctx, s.blobs, paths.EntityVersion(scope, entity.ID, entity.Version), entity); err != nil {
		return domain.Entity{}, err
	}
	stub := domain.EntityStub{
		EntityID:       entity.ID,
		OrganizationID: entity.OrganizationID,
		EntityTypeID:   entity.EntityTypeID,
		CreatedAt:      now,
	}
	if err := blob.PutJSON(ctx, s.blobs, paths.Stub(entity.ID), stub); err != nil {
		return domain.Entity{}, err
	}
	if err := s.writePointer(ctx, scope, entity); err != nil {
		return domain.Entity{}, err
	}
	return entity, nil
}

// UpdateInput patches a draft entity. Nil fields are left unchanged; Data
// entries are merged field-by-field.
type UpdateInput struct {
	Name       *string
	Slug       *string
	Data       map[string]any
	Visibility *domain.Visibility
	Actor      string
}

// Update writes version n+1 of a draft entity and rewrites the latest
// pointer, relocating it when a visibility change moved a global entity
// between scopes.
func (s *Store) Update(ctx context.Context, id string, patch UpdateInput) (domain.Entity, error) {
	stub, err := s.Stub(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	pointer, scope, err := s.resolvePointer(ctx, stub)
	if err != nil {
		return domain.Entity{}, err
	}
	if pointer.Status != domain.StatusDraft {
		return domain.Entity{}, domain.InvalidStatusError{Operation: "update", Status: pointer.Status}
	}
	current, err := s.readVersion(ctx, stub, scope, pointer.Version)
	if err != nil {
		return domain.Entity{}, err
	}
	t, err := s.GetType(ctx, stub.EntityTypeID)
	if err != nil {
		return domain.Entity{}, err
	}

	next := current
	next.Version = current.Version + 1
	next.UpdatedAt = s.now()
	next.UpdatedBy = patch.Actor
	if patch.Name != nil {
		next.Name = *patch.Name
	}
	if patch.Slug != nil {
		next.Slug = *patch.Slug
	}
	if patch.Visibility != nil {
		next.Visibility = *patch.Visibility
		if next.OrganizationID == nil && next.Visibility == domain.VisibilityMembers {
			next.Visibility = domain.VisibilityAuthenticated
		}
	}
	if len(patch.Data) > 0 {
		validated, err := s.validator.ValidateFields(patch.Data, t)
		if err != nil {
			return domain.Entity{}, err
		}
		merged := make(map[string]any, len(current.Data)+len(validated))
		for k, v := range current.Data {
			merged[k] = v
		}
		for k, v := range validated {
			merged[k] = v
		}
		next.Data = merged
	}
	if err := s.validator.ValidateRequired(next.Data, t); err != nil {
		return domain.Entity{}, err
	}

	newScope := paths.EntityScope(next.OrganizationID, next.Status, next.Visibility)
	if err := blob.PutJSON(ctx, s.blobs, paths.EntityVersion(newScope, next.ID, next.Version), next); err != nil {
		return domain.Entity{}, err
	}
	if err := s.writePointer(ctx, newScope, next); err != nil {
		return domain.Entity{}, err
	}
	if newScope != scope {
		if _, err := s.blobs.Delete(ctx, paths.EntityLatest(scope, next.ID)); err != nil {
			return domain.Entity{}, err
		}
	}
	return next, nil
}

// Get resolves the entity by id. Version 0 means the latest version per the
// authoritative pointer.
func (s *Store) Get(ctx context.Context, id string, version int) (domain.Entity, error) {
	stub, err := s.Stub(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	pointer, scope, err := s.resolvePointer(ctx, stub)
	if err != nil {
		return domain.Entity{}, err
	}
	if version == 0 {
		version = pointer.Version
	}
	return s.readVersion(ctx, stub, scope, version)
}

// Latest resolves the authoritative pointer for an entity.
func (s *Store) Latest(ctx context.Context, id string) (domain.LatestPointer, error) {
	stub, err := s.Stub(ctx, id)
	if err != nil {
		return domain.LatestPointer{}, err
	}
	pointer, _, err := s.resolvePointer(ctx, stub)
	return pointer, err
}

// Stub reads the reverse-index record for an entity.
func (s *Store) Stub(ctx context.Context, id string) (domain.EntityStub, error) {
	var stub domain.EntityStub
	found, err := blob.GetJSON(ctx, s.blobs, paths.Stub(id), &stub)
	if err != nil {
		return domain.EntityStub{}, err
	}
	if !found {
		return domain.EntityStub{}, domain.NotFoundError{Resource: domain.ResourceStub, ID: id}
	}
	return stub, nil
}

// StubFilter selects a subset of stubs.
type StubFilter struct {
	// EntityTypeID filters by type when non-empty.
	EntityTypeID string
	// OrganizationID filters by owning org when non-nil.
	OrganizationID *string
	// GlobalOnly keeps only platform-owned entities.
	GlobalOnly bool
}

// ListStubs scans the stub index. Listed stubs that disappear before they can
// be read are skipped: the listing is eventually consistent.
func (s *Store) ListStubs(ctx context.Context, filter StubFilter) ([]domain.EntityStub, error) {
	infos, err := s.blobs.List(ctx, paths.StubsPrefix)
	if err != nil {
		return nil, err
	}
	var out []domain.EntityStub
	for _, info := range infos {
		if _, ok := paths.ParseStubKey(info.Key); !ok {
			continue
		}
		var stub domain.EntityStub
		found, err := blob.FetchJSONVerified(ctx, s.blobs, info.Key, &stub)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if filter.EntityTypeID != "" && stub.EntityTypeID != filter.EntityTypeID {
			continue
		}
		if filter.GlobalOnly && stub.OrganizationID != nil {
			continue
		}
		if filter.OrganizationID != nil {
			if stub.OrganizationID == nil || *stub.OrganizationID != *filter.OrganizationID {
				continue
			}
		}
		out = append(out, stub)
	}
	return out, nil
}

// SlugInUse reports whether another live entity in the same (org, type) scope
// already uses the slug.
func (s *Store) SlugInUse(ctx context.Context, orgID *string, typeID, slug, excludeEntityID string) (bool, error) {
	if slug == "" {
		return false, nil
	}
	stubs, err := s.ListStubs(ctx, StubFilter{EntityTypeID: typeID, OrganizationID: orgID, GlobalOnly: orgID == nil})
	if err != nil {
		return false, err
	}
	for _, stub := range stubs {
		if stub.EntityID == excludeEntityID {
			continue
		}
		pointer, scope, err := s.resolvePointer(ctx, stub)
		if err != nil {
			// A half-written sibling must not block this write.
			continue
		}
		if pointer.Status == domain.StatusDeleted {
			continue
		}
		entity, err := s.readVersion(ctx, stub, scope, pointer.Version)
		if err != nil {
			continue
		}
		if entity.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

// writePointer rewrites the latest pointer for the entity at scope.
func (s *Store) writePointer(ctx context.Context, scope paths.Scope, e domain.Entity) error {
	pointer := domain.LatestPointer{
		Version:    e.Version,
		Status:     e.Status,
		Visibility: e.Visibility,
		UpdatedAt:  e.UpdatedAt,
	}
	return blob.PutJSON(ctx, s.blobs, paths.EntityLatest(scope, e.ID), pointer)
}
