// Package service exposes the caller-facing operations of the platform. It
// layers role and ownership checks, slug uniqueness, field projection, and
// read-model fan-out on top of the entity store. Callers arrive already
// authenticated; this package only authorizes.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tenantcore/internal/appconfig"
	"tenantcore/internal/blob"
	"tenantcore/internal/entitystore"
	"tenantcore/internal/materialize"
	"tenantcore/internal/obs"
	"tenantcore/internal/projection"
	"tenantcore/pkg/domain"
)

// Service orchestrates entity, type, organization, and config operations.
type Service struct {
	entities *entitystore.Store
	blobs    blob.Store
	config   *appconfig.Cache
	mat      *materialize.Materializer
	log      *zap.Logger
}

// New wires a service over the given collaborators.
func New(store *entitystore.Store, config *appconfig.Cache, mat *materialize.Materializer, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		entities: store,
		blobs:    store.Blobs(),
		config:   config,
		mat:      mat,
		log:      log,
	}
}

// CreateEntity creates a draft entity owned by the input's organization (nil
// for a platform-global entity, superadmin only). The actor is always the
// caller.
func (s *Service) CreateEntity(ctx context.Context, caller domain.Caller, input entitystore.CreateInput) (entity domain.Entity, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("entity.create", err, started) }()

	if err = s.requireOwner("create entity", caller, input.OrganizationID); err != nil {
		return domain.Entity{}, err
	}
	if input.Slug != "" {
		inUse, cerr := s.entities.SlugInUse(ctx, input.OrganizationID, input.TypeID, input.Slug, "")
		if cerr != nil {
			return domain.Entity{}, cerr
		}
		if inUse {
			err = domain.ConflictError{Resource: domain.ResourceEntity, Field: "slug", Value: input.Slug}
			return domain.Entity{}, err
		}
	}
	input.Actor = caller.UserID
	entity, err = s.entities.Create(ctx, input)
	if err != nil {
		return domain.Entity{}, err
	}
	s.fanOut(ctx, materialize.EntityWritten{
		EntityID: entity.ID,
		TypeID:   entity.EntityTypeID,
		OrgID:    entity.OrganizationID,
	})
	return entity, nil
}

// UpdateEntity patches a draft entity owned by the caller's organization.
func (s *Service) UpdateEntity(ctx context.Context, caller domain.Caller, id string, patch entitystore.UpdateInput) (entity domain.Entity, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("entity.update", err, started) }()

	stub, err := s.entities.Stub(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	if err = s.requireOwner("update entity", caller, stub.OrganizationID); err != nil {
		return domain.Entity{}, err
	}
	if patch.Slug != nil && *patch.Slug != "" {
		inUse, cerr := s.entities.SlugInUse(ctx, stub.OrganizationID, stub.EntityTypeID, *patch.Slug, id)
		if cerr != nil {
			return domain.Entity{}, cerr
		}
		if inUse {
			err = domain.ConflictError{Resource: domain.ResourceEntity, Field: "slug", Value: *patch.Slug}
			return domain.Entity{}, err
		}
	}
	patch.Actor = caller.UserID
	entity, err = s.entities.Update(ctx, id, patch)
	if err != nil {
		return domain.Entity{}, err
	}
	s.fanOut(ctx, materialize.EntityWritten{
		EntityID: entity.ID,
		TypeID:   entity.EntityTypeID,
		OrgID:    entity.OrganizationID,
	})
	return entity, nil
}

// GetEntity resolves an entity for the caller. Owners and superadmins read
// any version in full. Everyone else only reaches the latest version of a
// published, non-members entity of a type visible to one of their membership
// keys, with field projection applied; anything outside that surface reads as
// not found so unpublished work is not discoverable.
func (s *Service) GetEntity(ctx context.Context, caller domain.Caller, id string, version int) (entity domain.Entity, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("entity.get", err, started) }()

	stub, err := s.entities.Stub(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	if caller.IsSuperadmin() || caller.OwnsOrg(stub.OrganizationID) {
		return s.entities.Get(ctx, id, version)
	}

	notFound := domain.NotFoundError{Resource: domain.ResourceEntity, ID: id}
	if version != 0 {
		// Version history is owner-only.
		err = notFound
		return domain.Entity{}, err
	}
	entity, err = s.entities.Get(ctx, id, 0)
	if err != nil {
		return domain.Entity{}, err
	}
	if entity.Status != domain.StatusPublished || entity.Visibility == domain.VisibilityMembers {
		err = notFound
		return domain.Entity{}, err
	}
	if entity.Visibility == domain.VisibilityAuthenticated && caller.Role == domain.RolePublic {
		err = notFound
		return domain.Entity{}, err
	}
	t, err := s.entities.GetType(ctx, entity.EntityTypeID)
	if err != nil {
		return domain.Entity{}, err
	}
	keys, err := s.callerKeys(ctx, caller)
	if err != nil {
		return domain.Entity{}, err
	}
	if !anyKeyVisible(t, keys) {
		err = notFound
		return domain.Entity{}, err
	}
	return projection.ProjectAny(entity, t, keys), nil
}

// ListEntities lists the caller's reachable stubs: superadmins see all,
// org-affiliated callers see their organization's, everyone else sees none.
func (s *Service) ListEntities(ctx context.Context, caller domain.Caller, typeID string) (stubs []domain.EntityStub, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("entity.list", err, started) }()

	filter := entitystore.StubFilter{EntityTypeID: typeID}
	switch {
	case caller.IsSuperadmin():
	case caller.OrganizationID != nil:
		filter.OrganizationID = caller.OrganizationID
	default:
		return nil, nil
	}
	return s.entities.ListStubs(ctx, filter)
}

// TransitionEntity applies a workflow action. Approve and reject are
// superadmin-only; every other action requires ownership of the entity.
func (s *Service) TransitionEntity(ctx context.Context, caller domain.Caller, id string, action domain.Action, feedback string) (entity domain.Entity, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("entity.transition", err, started) }()

	stub, err := s.entities.Stub(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	switch action {
	case domain.ActionApprove, domain.ActionReject:
		if !caller.IsSuperadmin() {
			err = domain.ForbiddenError{Operation: string(action), Reason: "superadmin required"}
			return domain.Entity{}, err
		}
	default:
		if err = s.requireOwner(string(action), caller, stub.OrganizationID); err != nil {
			return domain.Entity{}, err
		}
	}
	if action == domain.ActionApprove {
		// Publication must not mint a second live entity under the same slug.
		current, gerr := s.entities.Get(ctx, id, 0)
		if gerr != nil {
			return domain.Entity{}, gerr
		}
		inUse, cerr := s.entities.SlugInUse(ctx, stub.OrganizationID, stub.EntityTypeID, current.Slug, id)
		if cerr != nil {
			return domain.Entity{}, cerr
		}
		if inUse {
			err = domain.ConflictError{Resource: domain.ResourceEntity, Field: "slug", Value: current.Slug}
			return domain.Entity{}, err
		}
	}
	entity, err = s.entities.Transition(ctx, id, entitystore.TransitionInput{
		Action:   action,
		Feedback: feedback,
		Actor:    caller.UserID,
	})
	if err != nil {
		return domain.Entity{}, err
	}
	s.fanOut(ctx, materialize.EntityWritten{
		EntityID: entity.ID,
		TypeID:   entity.EntityTypeID,
		OrgID:    entity.OrganizationID,
	})
	return entity, nil
}

// Rebuild regenerates every bundle and manifest from scratch. Superadmin only.
func (s *Service) Rebuild(ctx context.Context, caller domain.Caller) (err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("rebuild", err, started) }()

	if !caller.IsSuperadmin() {
		err = domain.ForbiddenError{Operation: "rebuild", Reason: "superadmin required"}
		return err
	}
	return s.mat.RebuildAll(ctx)
}

// fanOut regenerates the read-models affected by a write. Regeneration
// failures never fail the primary write; stale bundles are repaired by the
// next write or a rebuild.
func (s *Service) fanOut(ctx context.Context, ev materialize.Event) {
	if err := s.mat.Apply(ctx, ev); err != nil {
		s.log.Warn("materialization fan-out failed", zap.Error(err))
	}
}

// requireOwner authorizes an operation on records owned by orgID. A nil org
// means platform-owned, which only superadmins touch.
func (s *Service) requireOwner(op string, caller domain.Caller, orgID *string) error {
	if caller.OwnsOrg(orgID) {
		return nil
	}
	if orgID == nil {
		return domain.ForbiddenError{Operation: op, Reason: "superadmin required for global records"}
	}
	return domain.ForbiddenError{Operation: op, Reason: "caller is not a member of the owning organization"}
}

// callerKeys resolves the membership keys the caller holds: their own key
// plus every lower-order key it inherits. Callers without a key hold public.
func (s *Service) callerKeys(ctx context.Context, caller domain.Caller) ([]string, error) {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return nil, err
	}
	key := caller.MembershipKey
	if key == "" {
		key = domain.PublicMembershipKey
	}
	keys := cfg.GrantedKeys(key)
	if len(keys) == 0 {
		keys = []string{domain.PublicMembershipKey}
	}
	return keys, nil
}

func anyKeyVisible(t domain.EntityType, keys []string) bool {
	for _, k := range keys {
		if t.VisibleToKey(k) {
			return true
		}
	}
	return false
}
