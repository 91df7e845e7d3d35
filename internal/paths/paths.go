// Package paths maps logical records to object store keys. All functions are
// pure; the placement rule here decides which physical location is canonical
// for a given entity status/visibility combination.
package paths

import (
	"fmt"
	"strings"

	"tenantcore/pkg/domain"
)

// Scope is a top-level storage namespace prefix (with trailing slash).
type Scope string

const (
	// ScopePublic holds records readable by unauthenticated clients.
	ScopePublic Scope = "public/"
	// ScopePlatform holds records readable by any authenticated platform user.
	ScopePlatform Scope = "platform/"
)

// OrgScope returns the private namespace of an organization.
func OrgScope(orgID string) Scope { return Scope("orgs/" + orgID + "/") }

// VisibilityScope maps a public/authenticated visibility to its global scope.
// Members visibility has no global scope; callers must not pass it.
func VisibilityScope(v domain.Visibility) Scope {
	if v == domain.VisibilityPublic {
		return ScopePublic
	}
	return ScopePlatform
}

// EntityScope applies the placement rule and returns the canonical scope for
// an entity in the given state:
//
//   - Global entities always live under their visibility scope; they never
//     use members visibility and never relocate on status changes.
//   - Org entities live in the org's private namespace while draft/pending or
//     while visibility is members; once published with public/authenticated
//     visibility the canonical records move to the visibility scope.
func EntityScope(orgID *string, status domain.Status, visibility domain.Visibility) Scope {
	if orgID == nil {
		return VisibilityScope(visibility)
	}
	if status == domain.StatusPublished && visibility != domain.VisibilityMembers {
		return VisibilityScope(visibility)
	}
	return OrgScope(*orgID)
}

// EntityVersion returns the key of an immutable version record.
func EntityVersion(scope Scope, entityID string, version int) string {
	return fmt.Sprintf("%sentities/%s/v%d.json", scope, entityID, version)
}

// EntityLatest returns the key of the mutable latest pointer.
func EntityLatest(scope Scope, entityID string) string {
	return string(scope) + "entities/" + entityID + "/latest.json"
}

// EntityDir returns the prefix holding all records of one entity in a scope.
func EntityDir(scope Scope, entityID string) string {
	return string(scope) + "entities/" + entityID + "/"
}

// EntitiesPrefix returns the prefix holding all entities of a scope.
func EntitiesPrefix(scope Scope) string { return string(scope) + "entities/" }

// Stub returns the reverse-index key of an entity.
func Stub(entityID string) string { return "stubs/" + entityID + ".json" }

// StubsPrefix is the prefix holding every entity stub.
const StubsPrefix = "stubs/"

// EntityTypeDefinition returns the key of an entity type schema.
func EntityTypeDefinition(typeID string) string {
	return "entity-types/" + typeID + "/definition.json"
}

// EntityTypesPrefix is the prefix holding every entity type definition.
const EntityTypesPrefix = "entity-types/"

// OrgProfile returns the key of an organization profile record.
func OrgProfile(orgID string) string { return "orgs/" + orgID + "/profile.json" }

// OrgPermissions returns the key of an organization permissions record.
func OrgPermissions(orgID string) string { return "orgs/" + orgID + "/permissions.json" }

// OrgsPrefix is the prefix holding all organization namespaces.
const OrgsPrefix = "orgs/"

// GlobalBundle returns the key of the per-key published bundle for a type.
func GlobalBundle(key, typeID string) string {
	return "bundles/" + key + "/" + typeID + ".json"
}

// GlobalAdminBundle returns the key of the per-key moderation bundle for a
// type (draft/pending/archived/deleted entities, unprojected).
func GlobalAdminBundle(key, typeID string) string {
	return "bundles/" + key + "/admin/" + typeID + ".json"
}

// OrgRole names an org bundle audience.
type OrgRole string

const (
	// OrgRoleMember is the org audience seeing published entities only.
	OrgRoleMember OrgRole = "member"
	// OrgRoleAdmin is the org audience seeing unpublished entities too.
	OrgRoleAdmin OrgRole = "admin"
)

// OrgBundle returns the key of an organization bundle for a type.
func OrgBundle(orgID string, role OrgRole, typeID string) string {
	return "bundles/org/" + orgID + "/" + string(role) + "/" + typeID + ".json"
}

// GlobalManifest returns the key of the per-key site manifest.
func GlobalManifest(key string) string { return "bundles/" + key + "/site.json" }

// GlobalAdminManifest returns the key of the per-key moderation manifest.
func GlobalAdminManifest(key string) string { return "bundles/" + key + "/admin/site.json" }

// OrgManifest returns the key of an organization site manifest.
func OrgManifest(orgID string, role OrgRole) string {
	return "bundles/org/" + orgID + "/" + string(role) + "/site.json"
}

// AppConfig is the well-known key of the platform configuration record.
const AppConfig = "config/app.json"

// ParseEntityKey extracts the entity id from a latest-pointer or version key
// such as "orgs/o1/entities/<id>/latest.json". Returns false for keys that do
// not address an entity record.
func ParseEntityKey(key string) (entityID string, ok bool) {
	idx := strings.Index(key, "entities/")
	if idx < 0 {
		return "", false
	}
	rest := key[idx+len("entities/"):]
	slash := strings.IndexByte(rest, '/')
	if slash <= 0 {
		return "", false
	}
	return rest[:slash], true
}

// IsLatestPointer reports whether the key addresses a latest pointer record.
func IsLatestPointer(key string) bool { return strings.HasSuffix(key, "/latest.json") }

// ParseStubKey extracts the entity id from a stub key. Returns false for keys
// outside the stubs namespace.
func ParseStubKey(key string) (entityID string, ok bool) {
	if !strings.HasPrefix(key, StubsPrefix) || !strings.HasSuffix(key, ".json") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, StubsPrefix), ".json")
	if id == "" || strings.ContainsRune(id, '/') {
		return "", false
	}
	return id, true
}

// ParseTypeDefinitionKey extracts the type id from a definition key.
func ParseTypeDefinitionKey(key string) (typeID string, ok bool) {
	if !strings.HasPrefix(key, EntityTypesPrefix) || !strings.HasSuffix(key, "/definition.json") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, EntityTypesPrefix), "/definition.json")
	if id == "" || strings.ContainsRune(id, '/') {
		return "", false
	}
	return id, true
}

// ParseOrgProfileKey extracts the org id from a profile key.
func ParseOrgProfileKey(key string) (orgID string, ok bool) {
	if !strings.HasPrefix(key, OrgsPrefix) || !strings.HasSuffix(key, "/profile.json") {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(key, OrgsPrefix), "/profile.json")
	if id == "" || strings.ContainsRune(id, '/') {
		return "", false
	}
	return id, true
}
