package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"tenantcore/internal/ids"
	"tenantcore/internal/materialize"
	"tenantcore/internal/obs"
	"tenantcore/pkg/domain"
)

// EntityTypeInput describes an entity type create or update.
type EntityTypeInput struct {
	Name              string
	Slug              string
	Fields            []domain.FieldDefinition
	Sections          []domain.Section
	DefaultVisibility domain.Visibility
	VisibleTo         []string
	FieldVisibility   map[string][]string
}

// CreateEntityType registers a new entity type. Superadmin only.
func (s *Service) CreateEntityType(ctx context.Context, caller domain.Caller, input EntityTypeInput) (t domain.EntityType, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("type.create", err, started) }()

	if !caller.IsSuperadmin() {
		err = domain.ForbiddenError{Operation: "create entity type", Reason: "superadmin required"}
		return domain.EntityType{}, err
	}
	now := time.Now().UTC()
	t = domain.EntityType{
		ID:                ids.NewTypeID(),
		Name:              input.Name,
		Slug:              input.Slug,
		Fields:            input.Fields,
		Sections:          input.Sections,
		DefaultVisibility: defaultVisibility(input.DefaultVisibility),
		VisibleTo:         input.VisibleTo,
		FieldVisibility:   input.FieldVisibility,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err = s.entities.PutType(ctx, t); err != nil {
		return domain.EntityType{}, err
	}
	s.fanOut(ctx, materialize.EntityTypeWritten{TypeID: t.ID})
	return t, nil
}

// UpdateEntityType replaces the schema and visibility policy of an existing
// type. Superadmin only. Entities written under the old schema keep their
// stored data; validation applies on their next write.
func (s *Service) UpdateEntityType(ctx context.Context, caller domain.Caller, typeID string, input EntityTypeInput) (t domain.EntityType, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("type.update", err, started) }()

	if !caller.IsSuperadmin() {
		err = domain.ForbiddenError{Operation: "update entity type", Reason: "superadmin required"}
		return domain.EntityType{}, err
	}
	t, err = s.entities.GetType(ctx, typeID)
	if err != nil {
		return domain.EntityType{}, err
	}
	t.Name = input.Name
	t.Slug = input.Slug
	t.Fields = input.Fields
	t.Sections = input.Sections
	t.DefaultVisibility = defaultVisibility(input.DefaultVisibility)
	t.VisibleTo = input.VisibleTo
	t.FieldVisibility = input.FieldVisibility
	t.UpdatedAt = time.Now().UTC()
	if err = s.entities.PutType(ctx, t); err != nil {
		return domain.EntityType{}, err
	}
	s.fanOut(ctx, materialize.EntityTypeWritten{TypeID: t.ID})
	return t, nil
}

// DeactivateEntityType soft-deletes a type; its bundles and manifest entries
// are removed, its entities stay stored but unreachable through read models.
func (s *Service) DeactivateEntityType(ctx context.Context, caller domain.Caller, typeID string) (err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("type.deactivate", err, started) }()

	if !caller.IsSuperadmin() {
		err = domain.ForbiddenError{Operation: "deactivate entity type", Reason: "superadmin required"}
		return err
	}
	t, err := s.entities.GetType(ctx, typeID)
	if err != nil {
		return err
	}
	t.IsActive = false
	t.UpdatedAt = time.Now().UTC()
	if err = s.entities.PutType(ctx, t); err != nil {
		return err
	}
	s.fanOut(ctx, materialize.EntityTypeWritten{TypeID: t.ID})
	return nil
}

// GetEntityType reads a type definition.
func (s *Service) GetEntityType(ctx context.Context, typeID string) (domain.EntityType, error) {
	return s.entities.GetType(ctx, typeID)
}

// ListEntityTypes lists type definitions, active ones only unless the caller
// is a superadmin.
func (s *Service) ListEntityTypes(ctx context.Context, caller domain.Caller) ([]domain.EntityType, error) {
	types, err := s.entities.ListTypes(ctx)
	if err != nil {
		return nil, err
	}
	if caller.IsSuperadmin() {
		return types, nil
	}
	active := types[:0]
	for _, t := range types {
		if t.IsActive {
			active = append(active, t)
		}
	}
	return active, nil
}

// OrganizationInput describes an organization create or update.
type OrganizationInput struct {
	Name          string
	Slug          string
	MembershipKey string
	Tier          string
}

// CreateOrganization registers a tenant. Superadmin only. An empty
// MembershipKey falls back to the legacy tier mapping, then to public.
func (s *Service) CreateOrganization(ctx context.Context, caller domain.Caller, input OrganizationInput) (org domain.Organization, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("org.create", err, started) }()

	if !caller.IsSuperadmin() {
		err = domain.ForbiddenError{Operation: "create organization", Reason: "superadmin required"}
		return domain.Organization{}, err
	}
	key, err := s.resolveMembershipKey(ctx, input.MembershipKey, input.Tier)
	if err != nil {
		return domain.Organization{}, err
	}
	now := time.Now().UTC()
	org = domain.Organization{
		ID:            ids.NewOrgID(),
		Name:          input.Name,
		Slug:          input.Slug,
		MembershipKey: key,
		Tier:          input.Tier,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err = s.entities.PutOrganization(ctx, org); err != nil {
		return domain.Organization{}, err
	}
	s.fanOut(ctx, materialize.OrgProfileWritten{OrgID: org.ID})
	return org, nil
}

// UpdateOrganization rewrites a tenant profile. Superadmin or the org's own
// admin.
func (s *Service) UpdateOrganization(ctx context.Context, caller domain.Caller, orgID string, input OrganizationInput) (org domain.Organization, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("org.update", err, started) }()

	if !caller.IsSuperadmin() && !(caller.Role == domain.RoleOrgAdmin && caller.OwnsOrg(&orgID)) {
		err = domain.ForbiddenError{Operation: "update organization", Reason: "org admin required"}
		return domain.Organization{}, err
	}
	org, err = s.entities.GetOrganization(ctx, orgID)
	if err != nil {
		return domain.Organization{}, err
	}
	org.Name = input.Name
	org.Slug = input.Slug
	if caller.IsSuperadmin() {
		// Tier and key assignment are platform decisions.
		key, kerr := s.resolveMembershipKey(ctx, input.MembershipKey, input.Tier)
		if kerr != nil {
			return domain.Organization{}, kerr
		}
		org.MembershipKey = key
		org.Tier = input.Tier
	}
	org.UpdatedAt = time.Now().UTC()
	if err = s.entities.PutOrganization(ctx, org); err != nil {
		return domain.Organization{}, err
	}
	s.fanOut(ctx, materialize.OrgProfileWritten{OrgID: org.ID})
	return org, nil
}

// GetOrganization reads a tenant profile.
func (s *Service) GetOrganization(ctx context.Context, orgID string) (domain.Organization, error) {
	return s.entities.GetOrganization(ctx, orgID)
}

// GrantPermissions rewrites an organization's membership key grants.
// Superadmin only.
func (s *Service) GrantPermissions(ctx context.Context, caller domain.Caller, perms domain.OrganizationPermissions) (err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("org.grant", err, started) }()

	if !caller.IsSuperadmin() {
		err = domain.ForbiddenError{Operation: "grant permissions", Reason: "superadmin required"}
		return err
	}
	if _, err = s.entities.GetOrganization(ctx, perms.OrganizationID); err != nil {
		return err
	}
	perms.UpdatedAt = time.Now().UTC()
	if err = s.entities.PutPermissions(ctx, perms); err != nil {
		return err
	}
	s.fanOut(ctx, materialize.OrgPermissionsWritten{OrgID: perms.OrganizationID})
	return nil
}

// UpdateAppConfig replaces the platform configuration and rebuilds every
// read-model, since key catalog changes invalidate all per-key bundles.
// Superadmin only.
func (s *Service) UpdateAppConfig(ctx context.Context, caller domain.Caller, cfg domain.AppConfig) (out domain.AppConfig, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("config.update", err, started) }()

	if !caller.IsSuperadmin() {
		err = domain.ForbiddenError{Operation: "update config", Reason: "superadmin required"}
		return domain.AppConfig{}, err
	}
	out, err = s.config.Update(ctx, cfg)
	if err != nil {
		return domain.AppConfig{}, err
	}
	if rerr := s.mat.RebuildAll(ctx); rerr != nil {
		s.log.Warn("rebuild after config update failed", zap.Error(rerr))
	}
	return out, nil
}

// GetAppConfig returns the cached platform configuration.
func (s *Service) GetAppConfig(ctx context.Context) (domain.AppConfig, error) {
	return s.config.Load(ctx)
}

// resolveMembershipKey validates an explicit key against the catalog, or maps
// a legacy tier, defaulting to public.
func (s *Service) resolveMembershipKey(ctx context.Context, keyID, tier string) (string, error) {
	cfg, err := s.config.Load(ctx)
	if err != nil {
		return "", err
	}
	if keyID != "" {
		if _, ok := cfg.KeyByID(keyID); !ok {
			return "", domain.ValidationError{Fields: map[string]string{"membership_key": "unknown membership key " + keyID}}
		}
		return keyID, nil
	}
	return cfg.KeyForTier(tier), nil
}

func defaultVisibility(v domain.Visibility) domain.Visibility {
	if v == "" {
		return domain.VisibilityPublic
	}
	return v
}
