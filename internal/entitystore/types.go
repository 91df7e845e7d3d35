package entitystore

import (
	"context"

	"tenantcore/internal/blob"
	"tenantcore/internal/paths"
	"tenantcore/pkg/domain"
)

// GetType reads an entity type definition.
func (s *Store) GetType(ctx context.Context, typeID string) (domain.EntityType, error) {
	var t domain.EntityType
	found, err := blob.GetJSON(ctx, s.blobs, paths.EntityTypeDefinition(typeID), &t)
	if err != nil {
		return domain.EntityType{}, err
	}
	if !found {
		return domain.EntityType{}, domain.NotFoundError{Resource: domain.ResourceEntityType, ID: typeID}
	}
	return t, nil
}

// PutType writes an entity type definition.
func (s *Store) PutType(ctx context.Context, t domain.EntityType) error {
	return blob.PutJSON(ctx, s.blobs, paths.EntityTypeDefinition(t.ID), t)
}

// ListTypes scans all entity type definitions, skipping definitions that
// disappear between listing and reading.
func (s *Store) ListTypes(ctx context.Context) ([]domain.EntityType, error) {
	infos, err := s.blobs.List(ctx, paths.EntityTypesPrefix)
	if err != nil {
		return nil, err
	}
	var out []domain.EntityType
	for _, info := range infos {
		if _, ok := paths.ParseTypeDefinitionKey(info.Key); !ok {
			continue
		}
		var t domain.EntityType
		found, err := blob.FetchJSONVerified(ctx, s.blobs, info.Key, &t)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// GetOrganization reads an organization profile.
func (s *Store) GetOrganization(ctx context.Context, orgID string) (domain.Organization, error) {
	var org domain.Organization
	found, err := blob.GetJSON(ctx, s.blobs, paths.OrgProfile(orgID), &org)
	if err != nil {
		return domain.Organization{}, err
	}
	if !found {
		return domain.Organization{}, domain.NotFoundError{Resource: domain.ResourceOrganization, ID: orgID}
	}
	return org, nil
}

// PutOrganization writes an organization profile.
func (s *Store) PutOrganization(ctx context.Context, org domain.Organization) error {
	return blob.PutJSON(ctx, s.blobs, paths.OrgProfile(org.ID), org)
}

// ListOrganizations scans all org profiles, skipping profiles that disappear
// between listing and reading.
func (s *Store) ListOrganizations(ctx context.Context) ([]domain.Organization, error) {
	infos, err := s.blobs.List(ctx, paths.OrgsPrefix)
	if err != nil {
		return nil, err
	}
	var out []domain.Organization
	for _, info := range infos {
		if _, ok := paths.ParseOrgProfileKey(info.Key); !ok {
			continue
		}
		var org domain.Organization
		found, err := blob.FetchJSONVerified(ctx, s.blobs, info.Key, &org)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		out = append(out, org)
	}
	return out, nil
}

// GetPermissions reads an organization permissions record. A missing record
// yields a zero-value grant (public tier only).
func (s *Store) GetPermissions(ctx context.Context, orgID string) (domain.OrganizationPermissions, error) {
	var perms domain.OrganizationPermissions
	found, err := blob.GetJSON(ctx, s.blobs, paths.OrgPermissions(orgID), &perms)
	if err != nil {
		return domain.OrganizationPermissions{}, err
	}
	if !found {
		return domain.OrganizationPermissions{OrganizationID: orgID, MembershipKey: domain.PublicMembershipKey}, nil
	}
	return perms, nil
}

// PutPermissions writes an organization permissions record.
func (s *Store) PutPermissions(ctx context.Context, perms domain.OrganizationPermissions) error {
	return blob.PutJSON(ctx, s.blobs, paths.OrgPermissions(perms.OrganizationID), perms)
}
