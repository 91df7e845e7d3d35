package materialize

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"tenantcore/internal/blob"
	"tenantcore/internal/entitystore"
	"tenantcore/internal/obs"
	"tenantcore/internal/paths"
	"tenantcore/internal/projection"
	"tenantcore/pkg/domain"
)

// typeRecords holds every resolvable entity of one type, bucketed the way the
// bundle writers consume them.
type typeRecords struct {
	// published holds published entities with public or authenticated
	// visibility; these feed the audience bundles.
	published []domain.Entity
	// moderation holds every non-published entity regardless of ownership;
	// these feed the admin bundles.
	moderation []domain.Entity
	// byOrg holds each owning org's entities, all statuses, members
	// visibility included.
	byOrg map[string][]domain.Entity
}

// collectType resolves the current version of every entity of the type via
// the stub index. Stubs whose pointer or version record cannot be read are
// skipped: the index listing is eventually consistent and a concurrent write
// may not have landed everywhere yet.
func (m *Materializer) collectType(ctx context.Context, typeID string) (typeRecords, error) {
	stubs, err := m.entities.ListStubs(ctx, entitystore.StubFilter{EntityTypeID: typeID})
	if err != nil {
		return typeRecords{}, err
	}
	records := typeRecords{byOrg: map[string][]domain.Entity{}}
	for _, stub := range stubs {
		entity, err := m.entities.Get(ctx, stub.EntityID, 0)
		if err != nil {
			if isNotFound(err) || errors.Is(err, blob.ErrNotFound) {
				obs.CountSkippedObject()
				m.log.Debug("materialize: skipping unresolvable entity",
					zap.String("entity_id", stub.EntityID),
					zap.String("type_id", typeID),
					zap.Error(err))
				continue
			}
			return typeRecords{}, err
		}
		if stub.OrganizationID != nil {
			records.byOrg[*stub.OrganizationID] = append(records.byOrg[*stub.OrganizationID], entity)
		}
		if entity.Status == domain.StatusPublished {
			if entity.Visibility != domain.VisibilityMembers {
				records.published = append(records.published, entity)
			}
			continue
		}
		records.moderation = append(records.moderation, entity)
	}
	return records, nil
}

// regenerateType rewrites every bundle and manifest entry derived from one
// entity type. A missing or soft-deleted type removes its artifacts instead.
func (m *Materializer) regenerateType(ctx context.Context, typeID string) error {
	t, err := m.entities.GetType(ctx, typeID)
	if err != nil {
		if isNotFound(err) {
			return m.removeTypeArtifacts(ctx, typeID)
		}
		return err
	}
	if !t.IsActive {
		return m.removeTypeArtifacts(ctx, typeID)
	}
	cfg, err := m.config.Load(ctx)
	if err != nil {
		return err
	}
	records, err := m.collectType(ctx, typeID)
	if err != nil {
		return err
	}
	m.writeGlobalBundles(ctx, t, cfg, records)
	for orgID, owned := range records.byOrg {
		m.writeOrgBundles(ctx, orgID, t, owned)
	}
	return nil
}

// writeGlobalBundles rewrites the per-membership-key audience and admin
// bundles for one type, plus the matching manifest entries. Keys the type is
// not visible to get their artifacts removed.
func (m *Materializer) writeGlobalBundles(ctx context.Context, t domain.EntityType, cfg domain.AppConfig, records typeRecords) {
	for _, key := range cfg.SortedKeys() {
		if !t.VisibleToKey(key.ID) {
			m.dropGlobalArtifacts(ctx, key.ID, t.ID)
			continue
		}
		audience := make([]domain.Entity, 0, len(records.published))
		for _, e := range records.published {
			// Unauthenticated audiences only ever see public entities;
			// authenticated keys additionally see authenticated ones.
			if !key.RequiresAuth && e.Visibility != domain.VisibilityPublic {
				continue
			}
			audience = append(audience, projection.Project(e, t, key.ID))
		}
		bundle := buildBundle(t, audience, m.now())
		if err := blob.PutJSON(ctx, m.blobs, paths.GlobalBundle(key.ID, t.ID), bundle); err != nil {
			m.logUnit("global bundle", key.ID, t.ID, err)
		} else if err := m.upsertManifestEntry(ctx, paths.GlobalManifest(key.ID), entryFor(t, bundle), &cfg); err != nil {
			m.logUnit("global manifest", key.ID, t.ID, err)
		}

		admin := buildBundle(t, records.moderation, m.now())
		if err := blob.PutJSON(ctx, m.blobs, paths.GlobalAdminBundle(key.ID, t.ID), admin); err != nil {
			m.logUnit("admin bundle", key.ID, t.ID, err)
		} else if err := m.upsertManifestEntry(ctx, paths.GlobalAdminManifest(key.ID), entryFor(t, admin), nil); err != nil {
			m.logUnit("admin manifest", key.ID, t.ID, err)
		}
	}
}

// writeOrgBundles rewrites one organization's member and admin bundles for a
// type. Org audiences see their own entities without field projection.
func (m *Materializer) writeOrgBundles(ctx context.Context, orgID string, t domain.EntityType, owned []domain.Entity) {
	var published, rest []domain.Entity
	for _, e := range owned {
		if e.Status == domain.StatusPublished {
			published = append(published, e)
		} else {
			rest = append(rest, e)
		}
	}
	member := buildBundle(t, published, m.now())
	if err := blob.PutJSON(ctx, m.blobs, paths.OrgBundle(orgID, paths.OrgRoleMember, t.ID), member); err != nil {
		m.logUnit("org member bundle", orgID, t.ID, err)
	} else if err := m.upsertManifestEntry(ctx, paths.OrgManifest(orgID, paths.OrgRoleMember), entryFor(t, member), nil); err != nil {
		m.logUnit("org member manifest", orgID, t.ID, err)
	}

	admin := buildBundle(t, rest, m.now())
	if err := blob.PutJSON(ctx, m.blobs, paths.OrgBundle(orgID, paths.OrgRoleAdmin, t.ID), admin); err != nil {
		m.logUnit("org admin bundle", orgID, t.ID, err)
	} else if err := m.upsertManifestEntry(ctx, paths.OrgManifest(orgID, paths.OrgRoleAdmin), entryFor(t, admin), nil); err != nil {
		m.logUnit("org admin manifest", orgID, t.ID, err)
	}
}

// regenerateOrg rewrites every bundle owned by one organization. Profile and
// permission changes route here; the set of affected types comes from the
// org's stubs.
func (m *Materializer) regenerateOrg(ctx context.Context, orgID string) error {
	stubs, err := m.entities.ListStubs(ctx, entitystore.StubFilter{OrganizationID: &orgID})
	if err != nil {
		return err
	}
	typeIDs := map[string]struct{}{}
	for _, stub := range stubs {
		typeIDs[stub.EntityTypeID] = struct{}{}
	}
	for typeID := range typeIDs {
		t, err := m.entities.GetType(ctx, typeID)
		if err != nil || !t.IsActive {
			if err != nil && !isNotFound(err) {
				m.logUnit("org regenerate", orgID, typeID, err)
			}
			continue
		}
		records, err := m.collectType(ctx, typeID)
		if err != nil {
			m.logUnit("org regenerate", orgID, typeID, err)
			continue
		}
		m.writeOrgBundles(ctx, orgID, t, records.byOrg[orgID])
	}
	return nil
}

// removeTypeArtifacts deletes every bundle of a deleted or deactivated type
// and drops it from all manifests.
func (m *Materializer) removeTypeArtifacts(ctx context.Context, typeID string) error {
	cfg, err := m.config.Load(ctx)
	if err != nil {
		return err
	}
	for _, key := range cfg.SortedKeys() {
		m.dropGlobalArtifacts(ctx, key.ID, typeID)
	}
	orgIDs := map[string]struct{}{}
	orgs, err := m.entities.ListOrganizations(ctx)
	if err != nil {
		return err
	}
	for _, org := range orgs {
		orgIDs[org.ID] = struct{}{}
	}
	// Bundles can exist for orgs without a profile record; the type's stubs
	// name every org that ever wrote one.
	stubs, err := m.entities.ListStubs(ctx, entitystore.StubFilter{EntityTypeID: typeID})
	if err != nil {
		return err
	}
	for _, stub := range stubs {
		if stub.OrganizationID != nil {
			orgIDs[*stub.OrganizationID] = struct{}{}
		}
	}
	for orgID := range orgIDs {
		for _, role := range []paths.OrgRole{paths.OrgRoleMember, paths.OrgRoleAdmin} {
			m.deleteIgnoreMissing(ctx, paths.OrgBundle(orgID, role, typeID))
			if err := m.removeManifestEntry(ctx, paths.OrgManifest(orgID, role), typeID); err != nil {
				m.logUnit("org manifest prune", orgID, typeID, err)
			}
		}
	}
	return nil
}

// dropGlobalArtifacts removes one membership key's bundles and manifest
// entries for a type.
func (m *Materializer) dropGlobalArtifacts(ctx context.Context, keyID, typeID string) {
	m.deleteIgnoreMissing(ctx, paths.GlobalBundle(keyID, typeID))
	m.deleteIgnoreMissing(ctx, paths.GlobalAdminBundle(keyID, typeID))
	if err := m.removeManifestEntry(ctx, paths.GlobalManifest(keyID), typeID); err != nil {
		m.logUnit("global manifest prune", keyID, typeID, err)
	}
	if err := m.removeManifestEntry(ctx, paths.GlobalAdminManifest(keyID), typeID); err != nil {
		m.logUnit("admin manifest prune", keyID, typeID, err)
	}
}

func (m *Materializer) deleteIgnoreMissing(ctx context.Context, key string) {
	if _, err := m.blobs.Delete(ctx, key); err != nil && !errors.Is(err, blob.ErrNotFound) {
		m.log.Warn("materialize: delete failed", zap.String("key", key), zap.Error(err))
	}
}

func (m *Materializer) logUnit(unit, scope, typeID string, err error) {
	m.log.Warn("materialize: unit failed",
		zap.String("unit", unit),
		zap.String("scope", scope),
		zap.String("type_id", typeID),
		zap.Error(err))
}

// buildBundle assembles a deterministic bundle snapshot: entities sorted by
// name, then id.
func buildBundle(t domain.EntityType, entities []domain.Entity, now time.Time) domain.EntityBundle {
	items := make([]domain.BundleEntity, 0, len(entities))
	for _, e := range entities {
		items = append(items, domain.BundleEntity{
			ID:        e.ID,
			Status:    e.Status,
			Name:      e.Name,
			Slug:      e.Slug,
			Data:      e.Data,
			UpdatedAt: e.UpdatedAt,
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	return domain.EntityBundle{
		TypeID:      t.ID,
		TypeName:    t.Name,
		GeneratedAt: now,
		EntityCount: len(items),
		Entities:    items,
	}
}

// entryFor derives a manifest entry from a freshly written bundle.
func entryFor(t domain.EntityType, bundle domain.EntityBundle) domain.ManifestEntry {
	last := t.UpdatedAt
	for _, e := range bundle.Entities {
		if e.UpdatedAt.After(last) {
			last = e.UpdatedAt
		}
	}
	return domain.ManifestEntry{
		TypeID:      t.ID,
		Name:        t.Name,
		Slug:        t.Slug,
		EntityCount: bundle.EntityCount,
		LastUpdated: last,
	}
}
