package materialize

import (
	"context"
	"sort"

	"tenantcore/internal/blob"
	"tenantcore/pkg/domain"
)

// upsertManifestEntry replaces (or appends) one type's entry in a manifest
// and bumps the manifest version. A non-nil cfg is embedded so clients obtain
// the membership key catalog alongside the directory.
func (m *Materializer) upsertManifestEntry(ctx context.Context, key string, entry domain.ManifestEntry, cfg *domain.AppConfig) error {
	var manifest domain.SiteManifest
	if _, err := blob.GetJSON(ctx, m.blobs, key, &manifest); err != nil {
		return err
	}
	replaced := false
	for i := range manifest.EntityTypes {
		if manifest.EntityTypes[i].TypeID == entry.TypeID {
			manifest.EntityTypes[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		manifest.EntityTypes = append(manifest.EntityTypes, entry)
	}
	sortEntries(manifest.EntityTypes)
	manifest.Version++
	manifest.GeneratedAt = m.now()
	if cfg != nil {
		manifest.Config = cfg
	}
	return blob.PutJSON(ctx, m.blobs, key, manifest)
}

// removeManifestEntry drops one type's entry from a manifest. A manifest that
// does not exist or does not list the type is left untouched.
func (m *Materializer) removeManifestEntry(ctx context.Context, key, typeID string) error {
	var manifest domain.SiteManifest
	found, err := blob.GetJSON(ctx, m.blobs, key, &manifest)
	if err != nil || !found {
		return err
	}
	kept := manifest.EntityTypes[:0]
	for _, e := range manifest.EntityTypes {
		if e.TypeID != typeID {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(manifest.EntityTypes) {
		return nil
	}
	manifest.EntityTypes = kept
	manifest.Version++
	manifest.GeneratedAt = m.now()
	return blob.PutJSON(ctx, m.blobs, key, manifest)
}

// pruneManifest removes every entry whose type id is not in keep.
func (m *Materializer) pruneManifest(ctx context.Context, key string, keep map[string]struct{}) error {
	var manifest domain.SiteManifest
	found, err := blob.GetJSON(ctx, m.blobs, key, &manifest)
	if err != nil || !found {
		return err
	}
	kept := manifest.EntityTypes[:0]
	for _, e := range manifest.EntityTypes {
		if _, ok := keep[e.TypeID]; ok {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(manifest.EntityTypes) {
		return nil
	}
	manifest.EntityTypes = kept
	manifest.Version++
	manifest.GeneratedAt = m.now()
	return blob.PutJSON(ctx, m.blobs, key, manifest)
}

func sortEntries(entries []domain.ManifestEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Name != entries[j].Name {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].TypeID < entries[j].TypeID
	})
}
