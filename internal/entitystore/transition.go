package entitystore

import (
	"context"

	"tenantcore/internal/blob"
	"tenantcore/internal/paths"
	"tenantcore/pkg/domain"
)

// TransitionInput carries the actor and optional moderation feedback.
type TransitionInput struct {
	Action   domain.Action
	Feedback string
	Actor    string
}

// Transition applies a workflow action, writing a new version and re-applying
// the placement rule. Publishing relocates an org entity's canonical records
// to the visibility scope (retaining an org-private pointer copy);
// unpublishing relocates them back and removes the stale visibility-scoped
// pointer.
func (s *Store) Transition(ctx context.Context, id string, input TransitionInput) (domain.Entity, error) {
	stub, err := s.Stub(ctx, id)
	if err != nil {
		return domain.Entity{}, err
	}
	pointer, oldScope, err := s.resolvePointer(ctx, stub)
	if err != nil {
		return domain.Entity{}, err
	}
	if !s.table.IsValidTransition(pointer.Status, input.Action) {
		return domain.Entity{}, domain.InvalidTransitionError{
			Status:  pointer.Status,
			Action:  input.Action,
			Allowed: s.table.AllowedActions(pointer.Status),
		}
	}
	target, ok := s.table.Target(input.Action)
	if !ok {
		return domain.Entity{}, domain.InvalidTransitionError{
			Status:  pointer.Status,
			Action:  input.Action,
			Allowed: s.table.AllowedActions(pointer.Status),
		}
	}
	current, err := s.readVersion(ctx, stub, oldScope, pointer.Version)
	if err != nil {
		return domain.Entity{}, err
	}

	now := s.now()
	next := current
	next.Version = current.Version + 1
	next.Status = target
	next.UpdatedAt = now
	next.UpdatedBy = input.Actor
	if input.Action == domain.ActionApprove || input.Action == domain.ActionReject {
		next.ApprovalFeedback = input.Feedback
		next.ApprovalActionAt = &now
		next.ApprovalActionBy = input.Actor
	}

	newScope := paths.EntityScope(next.OrganizationID, next.Status, next.Visibility)
	if err := blob.PutJSON(ctx, s.blobs, paths.EntityVersion(newScope, next.ID, next.Version), next); err != nil {
		return domain.Entity{}, err
	}

	if next.OrganizationID != nil {
		orgScope := paths.OrgScope(*next.OrganizationID)
		if newScope != orgScope {
			// Publishing: keep an org-private pointer copy for fast
			// org-scoped reference, then write the authoritative
			// visibility-scoped pointer last.
			if err := s.writePointer(ctx, orgScope, next); err != nil {
				return domain.Entity{}, err
			}
			if err := s.writePointer(ctx, newScope, next); err != nil {
				return domain.Entity{}, err
			}
		} else {
			if err := s.writePointer(ctx, orgScope, next); err != nil {
				return domain.Entity{}, err
			}
			if oldScope != orgScope {
				// Unpublishing: the visibility-scoped pointer is stale now.
				if _, err := s.blobs.Delete(ctx, paths.EntityLatest(oldScope, next.ID)); err != nil {
					return domain.Entity{}, err
				}
			}
		}
		return next, nil
	}

	// Global entities never relocate on transitions.
	if err := s.writePointer(ctx, newScope, next); err != nil {
		return domain.Entity{}, err
	}
	return next, nil
}
