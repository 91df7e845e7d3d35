package entitystore

import (
	"context"
	"errors"
	"testing"

	"tenantcore/internal/blob"
	"tenantcore/internal/paths"
	"tenantcore/pkg/domain"
)

func createDraft(t *testing.T, s *Store, org *string, visibility domain.Visibility) domain.Entity {
	t.Helper()
	entity, err := s.Create(context.Background(), CreateInput{
		TypeID:         "listing",
		OrganizationID: org,
		Name:           "Acme",
		Data:           map[string]any{"title": "Acme"},
		Visibility:     visibility,
		Actor:          "u1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return entity
}

func TestTransition_InvalidActionListsAllowed(t *testing.T) {
	s, _ := newTestStore(t)
	entity := createDraft(t, s, strptr("org1"), domain.VisibilityPublic)

	_, err := s.Transition(context.Background(), entity.ID, TransitionInput{Action: domain.ActionApprove, Actor: "admin"})
	var terr domain.InvalidTransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if terr.Status != domain.StatusDraft || len(terr.Allowed) == 0 {
		t.Fatalf("error must carry current status and allowed actions: %+v", terr)
	}
}

func TestTransition_PublishRelocatesOrgEntity(t *testing.T) {
	s, bs := newTestStore(t)
	ctx := context.Background()
	entity := createDraft(t, s, strptr("org1"), domain.VisibilityPublic)

	if _, err := s.Transition(ctx, entity.ID, TransitionInput{Action: domain.ActionSubmitForApproval, Actor: "u1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// pending stays org-private
	if ok, _ := blob.Exists(ctx, bs, paths.EntityLatest(paths.ScopePublic, entity.ID)); ok {
		t.Fatalf("pending entity must not reach the public scope")
	}

	published, err := s.Transition(ctx, entity.ID, TransitionInput{Action: domain.ActionApprove, Feedback: "lgtm", Actor: "admin"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if published.Status != domain.StatusPublished || published.Version != 3 {
		t.Fatalf("approve result: %s v%d", published.Status, published.Version)
	}
	if published.ApprovalFeedback != "lgtm" || published.ApprovalActionBy != "admin" || published.ApprovalActionAt == nil {
		t.Fatalf("approval metadata not recorded: %+v", published)
	}

	// the canonical pointer now lives in the public scope, with an
	// org-private copy retained
	var visPointer, orgPointer domain.LatestPointer
	if found, err := blob.GetJSON(ctx, bs, paths.EntityLatest(paths.ScopePublic, entity.ID), &visPointer); err != nil || !found {
		t.Fatalf("public pointer missing: %v %v", found, err)
	}
	if found, err := blob.GetJSON(ctx, bs, paths.EntityLatest(paths.OrgScope("org1"), entity.ID), &orgPointer); err != nil || !found {
		t.Fatalf("org pointer copy missing: %v %v", found, err)
	}
	if visPointer.Version != 3 || orgPointer.Status != domain.StatusPublished {
		t.Fatalf("pointers disagree: vis=%+v org=%+v", visPointer, orgPointer)
	}
	// the published version record was written under the public scope
	if ok, _ := blob.Exists(ctx, bs, paths.EntityVersion(paths.ScopePublic, entity.ID, 3)); !ok {
		t.Fatalf("published version record missing from public scope")
	}

	// versions written before the relocation remain readable
	if v1, err := s.Get(ctx, entity.ID, 1); err != nil || v1.Status != domain.StatusDraft {
		t.Fatalf("pre-relocation version read: %v %+v", err, v1)
	}
	if latest, err := s.Get(ctx, entity.ID, 0); err != nil || latest.Version != 3 {
		t.Fatalf("latest read after relocation: %v", err)
	}
}

func TestTransition_ArchiveReturnsHomeAndDeletesStalePointer(t *testing.T) {
	s, bs := newTestStore(t)
	ctx := context.Background()
	entity := createDraft(t, s, strptr("org1"), domain.VisibilityAuthenticated)

	mustTransition(t, s, entity.ID, domain.ActionSubmitForApproval)
	mustTransition(t, s, entity.ID, domain.ActionApprove)
	archived := mustTransition(t, s, entity.ID, domain.ActionArchive)
	if archived.Status != domain.StatusArchived {
		t.Fatalf("status = %s", archived.Status)
	}

	// the visibility-scoped pointer is gone, the org pointer is current
	if ok, _ := blob.Exists(ctx, bs, paths.EntityLatest(paths.ScopePlatform, entity.ID)); ok {
		t.Fatalf("stale platform pointer must be deleted on unpublish")
	}
	var orgPointer domain.LatestPointer
	if found, err := blob.GetJSON(ctx, bs, paths.EntityLatest(paths.OrgScope("org1"), entity.ID), &orgPointer); err != nil || !found {
		t.Fatalf("org pointer missing: %v %v", found, err)
	}
	if orgPointer.Status != domain.StatusArchived || orgPointer.Version != archived.Version {
		t.Fatalf("org pointer stale: %+v", orgPointer)
	}
	// the published version record stays where it was written
	if ok, _ := blob.Exists(ctx, bs, paths.EntityVersion(paths.ScopePlatform, entity.ID, 3)); !ok {
		t.Fatalf("published version record must remain")
	}
	if got, err := s.Get(ctx, entity.ID, 3); err != nil || got.Status != domain.StatusPublished {
		t.Fatalf("historical published version: %v", err)
	}
}

func TestTransition_MembersVisibilityNeverLeavesOrg(t *testing.T) {
	s, bs := newTestStore(t)
	ctx := context.Background()
	entity := createDraft(t, s, strptr("org1"), domain.VisibilityMembers)

	mustTransition(t, s, entity.ID, domain.ActionSubmitForApproval)
	published := mustTransition(t, s, entity.ID, domain.ActionApprove)
	if published.Status != domain.StatusPublished {
		t.Fatalf("status = %s", published.Status)
	}
	for _, scope := range []paths.Scope{paths.ScopePublic, paths.ScopePlatform} {
		if ok, _ := blob.Exists(ctx, bs, paths.EntityLatest(scope, entity.ID)); ok {
			t.Fatalf("members entity must never reach %s", scope)
		}
	}
}

func TestTransition_GlobalEntityStaysPut(t *testing.T) {
	s, bs := newTestStore(t)
	ctx := context.Background()
	entity := createDraft(t, s, nil, domain.VisibilityPublic)

	mustTransition(t, s, entity.ID, domain.ActionSubmitForApproval)
	published := mustTransition(t, s, entity.ID, domain.ActionApprove)
	if published.Status != domain.StatusPublished {
		t.Fatalf("status = %s", published.Status)
	}
	// one pointer, updated in place, never an orgs/ record
	var pointer domain.LatestPointer
	if found, err := blob.GetJSON(ctx, bs, paths.EntityLatest(paths.ScopePublic, entity.ID), &pointer); err != nil || !found {
		t.Fatalf("public pointer missing: %v %v", found, err)
	}
	if pointer.Version != published.Version {
		t.Fatalf("pointer not updated in place: %+v", pointer)
	}
}

// A write that crashed after the org pointer but before the visibility-scoped
// pointer leaves the org copy as the best remaining truth.
func TestResolve_FallsBackToOrgCopy(t *testing.T) {
	s, bs := newTestStore(t)
	ctx := context.Background()
	entity := createDraft(t, s, strptr("org1"), domain.VisibilityPublic)

	mustTransition(t, s, entity.ID, domain.ActionSubmitForApproval)
	published := mustTransition(t, s, entity.ID, domain.ActionApprove)

	if _, err := bs.Delete(ctx, paths.EntityLatest(paths.ScopePublic, entity.ID)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := s.Get(ctx, entity.ID, 0)
	if err != nil {
		t.Fatalf("get with missing canonical pointer: %v", err)
	}
	if got.Version != published.Version || got.Status != domain.StatusPublished {
		t.Fatalf("org copy fallback returned %+v", got)
	}
}

func mustTransition(t *testing.T, s *Store, id string, action domain.Action) domain.Entity {
	t.Helper()
	entity, err := s.Transition(context.Background(), id, TransitionInput{Action: action, Actor: "admin"})
	if err != nil {
		t.Fatalf("%s: %v", action, err)
	}
	return entity
}
