package domain

import "time"

// BundleEntity is the minimal entity projection carried inside a bundle.
type BundleEntity struct {
	ID        string         `json:"id"`
	Status    Status         `json:"status"`
	Name      string         `json:"name"`
	Slug      string         `json:"slug"`
	Data      map[string]any `json:"data"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// EntityBundle is a denormalized, audience-scoped snapshot of all entities of
// one type. Freshness is signaled purely via GeneratedAt; there is no internal
// version counter.
type EntityBundle struct {
	TypeID      string         `json:"type_id"`
	TypeName    string         `json:"type_name"`
	GeneratedAt time.Time      `json:"generated_at"`
	EntityCount int            `json:"entity_count"`
	Entities    []BundleEntity `json:"entities"`
}

// ManifestEntry summarizes one visible entity type inside a manifest.
type ManifestEntry struct {
	TypeID      string    `json:"type_id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	EntityCount int       `json:"entity_count"`
	LastUpdated time.Time `json:"last_updated"`
}

// SiteManifest is the directory of entity types visible to one audience,
// with bundle freshness metadata.
type SiteManifest struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Version     int             `json:"version"`
	EntityTypes []ManifestEntry `json:"entity_types"`
	Config      *AppConfig      `json:"config,omitempty"`
}

// Entry returns the manifest entry for the given type id.
func (m SiteManifest) Entry(typeID string) (ManifestEntry, bool) {
	for _, e := range m.EntityTypes {
		if e.TypeID == typeID {
			return e, true
		}
	}
	return ManifestEntry{}, false
}
