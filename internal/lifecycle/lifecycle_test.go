package lifecycle

import (
	"reflect"
	"testing"

	"tenantcore/pkg/domain"
)

func TestIsValidTransition(t *testing.T) {
	table := NewTable()
	tests := []struct {
		status domain.Status
		action domain.Action
		want   bool
	}{
		{domain.StatusDraft, domain.ActionSubmitForApproval, true},
		{domain.StatusDraft, domain.ActionApprove, false},
		{domain.StatusDraft, domain.ActionRestore, true},
		{domain.StatusPending, domain.ActionApprove, true},
		{domain.StatusPending, domain.ActionReject, true},
		{domain.StatusPending, domain.ActionSubmitForApproval, false},
		{domain.StatusPublished, domain.ActionArchive, true},
		{domain.StatusPublished, domain.ActionApprove, false},
		{domain.StatusArchived, domain.ActionRestore, true},
		{domain.StatusArchived, domain.ActionArchive, false},
		{domain.StatusDraft, domain.ActionDelete, true},
		{domain.StatusPending, domain.ActionDelete, true},
		{domain.StatusPublished, domain.ActionDelete, true},
		{domain.StatusArchived, domain.ActionDelete, true},
		{domain.StatusDeleted, domain.ActionDelete, false},
		{domain.StatusDeleted, domain.ActionRestore, false},
	}
	for _, tc := range tests {
		if got := table.IsValidTransition(tc.status, tc.action); got != tc.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tc.status, tc.action, got, tc.want)
		}
	}
}

func TestAllowedActions(t *testing.T) {
	table := NewTable()
	tests := []struct {
		status domain.Status
		want   []domain.Action
	}{
		{domain.StatusDraft, []domain.Action{domain.ActionSubmitForApproval, domain.ActionRestore, domain.ActionDelete}},
		{domain.StatusPending, []domain.Action{domain.ActionApprove, domain.ActionReject, domain.ActionDelete}},
		{domain.StatusPublished, []domain.Action{domain.ActionArchive, domain.ActionDelete}},
		{domain.StatusArchived, []domain.Action{domain.ActionRestore, domain.ActionDelete}},
		{domain.StatusDeleted, nil},
	}
	for _, tc := range tests {
		if got := table.AllowedActions(tc.status); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("AllowedActions(%s) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestTarget(t *testing.T) {
	table := NewTable()
	tests := []struct {
		action domain.Action
		want   domain.Status
		ok     bool
	}{
		{domain.ActionSubmitForApproval, domain.StatusPending, true},
		{domain.ActionApprove, domain.StatusPublished, true},
		{domain.ActionReject, domain.StatusDraft, true},
		{domain.ActionArchive, domain.StatusArchived, true},
		{domain.ActionRestore, domain.StatusDraft, true},
		{domain.ActionDelete, domain.StatusDeleted, true},
		{domain.Action("bogus"), "", false},
	}
	for _, tc := range tests {
		got, ok := table.Target(tc.action)
		if ok != tc.ok || got != tc.want {
			t.Errorf("Target(%s) = %s, %v; want %s, %v", tc.action, got, ok, tc.want, tc.ok)
		}
	}
}
