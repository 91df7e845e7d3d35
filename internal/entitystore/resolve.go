package entitystore

import (
	"context"

	"tenantcore/internal/blob"
	"tenantcore/internal/paths"
	"tenantcore/pkg/domain"
)

// resolvePointer finds the authoritative latest pointer for an entity and the
// scope it was resolved from.
//
// Org entities: the org-private pointer is checked first. When it indicates
// publication to a visibility scope, the visibility-scoped pointer is the
// authoritative record (it is written last on every relocation); the org copy
// only stands in when the visibility-scoped read misses.
//
// Global entities: the platform scope is tried before the public scope.
func (s *Store) resolvePointer(ctx context.Context, stub domain.EntityStub) (domain.LatestPointer, paths.Scope, error) {
	if stub.OrganizationID == nil {
		for _, scope := range []paths.Scope{paths.ScopePlatform, paths.ScopePublic} {
			var pointer domain.LatestPointer
			found, err := blob.GetJSON(ctx, s.blobs, paths.EntityLatest(scope, stub.EntityID), &pointer)
			if err != nil {
				return domain.LatestPointer{}, "", err
			}
			if found {
				return pointer, scope, nil
			}
		}
		return domain.LatestPointer{}, "", domain.NotFoundError{Resource: domain.ResourcePointer, ID: stub.EntityID}
	}

	orgScope := paths.OrgScope(*stub.OrganizationID)
	var orgPointer domain.LatestPointer
	found, err := blob.GetJSON(ctx, s.blobs, paths.EntityLatest(orgScope, stub.EntityID), &orgPointer)
	if err != nil {
		return domain.LatestPointer{}, "", err
	}
	if !found {
		return domain.LatestPointer{}, "", domain.NotFoundError{Resource: domain.ResourcePointer, ID: stub.EntityID}
	}
	if orgPointer.Status == domain.StatusPublished && orgPointer.Visibility != domain.VisibilityMembers {
		visScope := paths.VisibilityScope(orgPointer.Visibility)
		var visPointer domain.LatestPointer
		found, err := blob.GetJSON(ctx, s.blobs, paths.EntityLatest(visScope, stub.EntityID), &visPointer)
		if err != nil {
			return domain.LatestPointer{}, "", err
		}
		if found {
			return visPointer, visScope, nil
		}
		// Org copy says published but the canonical record is gone; the org
		// copy is the best remaining truth.
		return orgPointer, visScope, nil
	}
	return orgPointer, orgScope, nil
}

// readVersion loads a specific version record, trying the scope the pointer
// resolved from first and then every other scope the entity could have
// written to earlier in its life. Version records never move once written, so
// a version predating a relocation lives under the scope that was canonical
// at write time.
func (s *Store) readVersion(ctx context.Context, stub domain.EntityStub, scope paths.Scope, version int) (domain.Entity, error) {
	for _, candidate := range s.candidateScopes(stub, scope) {
		var entity domain.Entity
		found, err := blob.GetJSON(ctx, s.blobs, paths.EntityVersion(candidate, stub.EntityID, version), &entity)
		if err != nil {
			return domain.Entity{}, err
		}
		if found {
			return entity, nil
		}
	}
	return domain.Entity{}, domain.NotFoundError{Resource: domain.ResourceVersion, ID: stub.EntityID}
}

func (s *Store) candidateScopes(stub domain.EntityStub, first paths.Scope) []paths.Scope {
	candidates := []paths.Scope{first}
	add := func(scope paths.Scope) {
		for _, c := range candidates {
			if c == scope {
				return
			}
		}
		candidates = append(candidates, scope)
	}
	if stub.OrganizationID != nil {
		add(paths.OrgScope(*stub.OrganizationID))
	}
	add(paths.ScopePlatform)
	add(paths.ScopePublic)
	return candidates
}
