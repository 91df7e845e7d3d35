// Package lifecycle defines the entity approval workflow state machine.
package lifecycle

import "tenantcore/pkg/domain"

type transition struct {
	from []domain.Status
	to   domain.Status
}

// transitions is the authoritative action table. delete is handled separately
// since it is legal from every non-deleted status.
var transitions = map[domain.Action]transition{
	domain.ActionSubmitForApproval: {from: []domain.Status{domain.StatusDraft}, to: domain.StatusPending},
	domain.ActionApprove:           {from: []domain.Status{domain.StatusPending}, to: domain.StatusPublished},
	domain.ActionReject:            {from: []domain.Status{domain.StatusPending}, to: domain.StatusDraft},
	domain.ActionArchive:           {from: []domain.Status{domain.StatusPublished}, to: domain.StatusArchived},
	domain.ActionRestore:           {from: []domain.Status{domain.StatusArchived, domain.StatusDraft}, to: domain.StatusDraft},
}

// Table implements the transition-table collaborator consumed by the entity
// store.
type Table struct{}

// NewTable returns the default workflow table.
func NewTable() Table { return Table{} }

// IsValidTransition reports whether action is legal from status.
func (Table) IsValidTransition(status domain.Status, action domain.Action) bool {
	if action == domain.ActionDelete {
		return status != domain.StatusDeleted
	}
	t, ok := transitions[action]
	if !ok {
		return false
	}
	for _, s := range t.from {
		if s == status {
			return true
		}
	}
	return false
}

// AllowedActions returns every action legal from status, in stable order.
func (Table) AllowedActions(status domain.Status) []domain.Action {
	order := []domain.Action{
		domain.ActionSubmitForApproval,
		domain.ActionApprove,
		domain.ActionReject,
		domain.ActionArchive,
		domain.ActionRestore,
		domain.ActionDelete,
	}
	var out []domain.Action
	for _, a := range order {
		if (Table{}).IsValidTransition(status, a) {
			out = append(out, a)
		}
	}
	return out
}

// Target returns the status an action leads to. The second return is false
// for unknown actions.
func (Table) Target(action domain.Action) (domain.Status, bool) {
	if action == domain.ActionDelete {
		return domain.StatusDeleted, true
	}
	t, ok := transitions[action]
	if !ok {
		return "", false
	}
	return t.to, true
}
