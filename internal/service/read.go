package service

import (
	"context"
	"time"

	"tenantcore/internal/blob"
	"tenantcore/internal/obs"
	"tenantcore/internal/paths"
	"tenantcore/pkg/domain"
)

// GetBundle serves the audience bundle for one membership key and type. The
// caller must hold the key (directly or by inheritance); the public key is
// open to everyone.
func (s *Service) GetBundle(ctx context.Context, caller domain.Caller, keyID, typeID string) (bundle domain.EntityBundle, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("bundle.get", err, started) }()

	if err = s.requireKey(ctx, caller, keyID); err != nil {
		return domain.EntityBundle{}, err
	}
	return s.readBundle(ctx, paths.GlobalBundle(keyID, typeID), typeID)
}

// GetAdminBundle serves the moderation bundle for one membership key and
// type. Superadmin only.
func (s *Service) GetAdminBundle(ctx context.Context, caller domain.Caller, keyID, typeID string) (bundle domain.EntityBundle, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("bundle.admin.get", err, started) }()

	if !caller.IsSuperadmin() {
		err = domain.ForbiddenError{Operation: "read admin bundle", Reason: "superadmin required"}
		return domain.EntityBundle{}, err
	}
	return s.readBundle(ctx, paths.GlobalAdminBundle(keyID, typeID), typeID)
}

// GetOrgBundle serves an organization bundle. Members read the member
// bundle; the admin bundle requires the org admin role. Superadmins read
// both.
func (s *Service) GetOrgBundle(ctx context.Context, caller domain.Caller, orgID string, role paths.OrgRole, typeID string) (bundle domain.EntityBundle, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("bundle.org.get", err, started) }()

	if err = s.requireOrgRole(caller, orgID, role); err != nil {
		return domain.EntityBundle{}, err
	}
	return s.readBundle(ctx, paths.OrgBundle(orgID, role, typeID), typeID)
}

// GetManifest serves the site manifest for one membership key.
func (s *Service) GetManifest(ctx context.Context, caller domain.Caller, keyID string) (manifest domain.SiteManifest, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("manifest.get", err, started) }()

	if err = s.requireKey(ctx, caller, keyID); err != nil {
		return domain.SiteManifest{}, err
	}
	return s.readManifest(ctx, paths.GlobalManifest(keyID))
}

// GetOrgManifest serves an organization's site manifest.
func (s *Service) GetOrgManifest(ctx context.Context, caller domain.Caller, orgID string, role paths.OrgRole) (manifest domain.SiteManifest, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("manifest.org.get", err, started) }()

	if err = s.requireOrgRole(caller, orgID, role); err != nil {
		return domain.SiteManifest{}, err
	}
	return s.readManifest(ctx, paths.OrgManifest(orgID, role))
}

// BundleURL returns a time-limited direct download URL for a bundle, for
// backends that support presigning. The same authorization as GetBundle
// applies.
func (s *Service) BundleURL(ctx context.Context, caller domain.Caller, keyID, typeID string, expiry time.Duration) (url string, err error) {
	started := time.Now()
	defer func() { obs.ObserveOp("bundle.url", err, started) }()

	if err = s.requireKey(ctx, caller, keyID); err != nil {
		return "", err
	}
	return s.blobs.PresignURL(ctx, paths.GlobalBundle(keyID, typeID), blob.SignedURLOptions{
		Method: "GET",
		Expiry: expiry,
	})
}

func (s *Service) readBundle(ctx context.Context, key, typeID string) (domain.EntityBundle, error) {
	var bundle domain.EntityBundle
	found, err := blob.GetJSON(ctx, s.blobs, key, &bundle)
	if err != nil {
		return domain.EntityBundle{}, err
	}
	if !found {
		return domain.EntityBundle{}, domain.NotFoundError{Resource: domain.ResourceBundle, ID: typeID}
	}
	return bundle, nil
}

func (s *Service) readManifest(ctx context.Context, key string) (domain.SiteManifest, error) {
	var manifest domain.SiteManifest
	found, err := blob.GetJSON(ctx, s.blobs, key, &manifest)
	if err != nil {
		return domain.SiteManifest{}, err
	}
	if !found {
		return domain.SiteManifest{}, domain.NotFoundError{Resource: domain.ResourceManifest, ID: key}
	}
	return manifest, nil
}

// requireKey authorizes reading per-key artifacts: the key must be public or
// held by the caller directly or through key-order inheritance.
func (s *Service) requireKey(ctx context.Context, caller domain.Caller, keyID string) error {
	if keyID == domain.PublicMembershipKey || caller.IsSuperadmin() {
		return nil
	}
	keys, err := s.callerKeys(ctx, caller)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k == keyID {
			return nil
		}
	}
	return domain.ForbiddenError{Operation: "read " + keyID + " artifacts", Reason: "membership key not held"}
}

// requireOrgRole authorizes reading an org's bundles at the given role.
func (s *Service) requireOrgRole(caller domain.Caller, orgID string, role paths.OrgRole) error {
	if caller.IsSuperadmin() {
		return nil
	}
	if !caller.OwnsOrg(&orgID) {
		return domain.ForbiddenError{Operation: "read org artifacts", Reason: "caller is not a member of the organization"}
	}
	if role == paths.OrgRoleAdmin && caller.Role != domain.RoleOrgAdmin {
		return domain.ForbiddenError{Operation: "read org admin artifacts", Reason: "org admin role required"}
	}
	return nil
}
