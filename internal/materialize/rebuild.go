package materialize

import (
	"context"

	"go.uber.org/zap"

	"tenantcore/internal/obs"
	"tenantcore/internal/paths"
)

// RebuildAll re-derives every bundle and manifest from the authoritative
// records: each active type is fully regenerated, deactivated types have
// their artifacts removed, and manifest entries for unknown types are pruned.
// A failing type is logged and skipped so one bad definition cannot block the
// rest of the rebuild.
func (m *Materializer) RebuildAll(ctx context.Context) error {
	err := m.rebuildAll(ctx)
	obs.ObserveMaterialization("rebuild", err)
	return err
}

func (m *Materializer) rebuildAll(ctx context.Context) error {
	cfg, err := m.config.Load(ctx)
	if err != nil {
		return err
	}
	types, err := m.entities.ListTypes(ctx)
	if err != nil {
		return err
	}
	active := map[string]struct{}{}
	for _, t := range types {
		if t.IsActive {
			active[t.ID] = struct{}{}
		}
		if err := m.regenerateType(ctx, t.ID); err != nil {
			m.log.Warn("rebuild: type failed", zap.String("type_id", t.ID), zap.Error(err))
		}
	}

	for _, key := range cfg.SortedKeys() {
		if err := m.pruneManifest(ctx, paths.GlobalManifest(key.ID), active); err != nil {
			m.logUnit("rebuild manifest prune", key.ID, "", err)
		}
		if err := m.pruneManifest(ctx, paths.GlobalAdminManifest(key.ID), active); err != nil {
			m.logUnit("rebuild manifest prune", key.ID, "", err)
		}
	}
	orgs, err := m.entities.ListOrganizations(ctx)
	if err != nil {
		return err
	}
	for _, org := range orgs {
		for _, role := range []paths.OrgRole{paths.OrgRoleMember, paths.OrgRoleAdmin} {
			if err := m.pruneManifest(ctx, paths.OrgManifest(org.ID, role), active); err != nil {
				m.logUnit("rebuild manifest prune", org.ID, "", err)
			}
		}
	}
	return nil
}
