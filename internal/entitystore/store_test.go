package entitystore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tenantcore/internal/blob"
	"tenantcore/internal/lifecycle"
	"tenantcore/internal/paths"
	"tenantcore/internal/schema"
	"tenantcore/pkg/domain"
)

func strptr(s string) *string { return &s }

func newTestStore(t *testing.T) (*Store, blob.Store) {
	t.Helper()
	bs := blob.NewMemory()
	seq := 0
	s := New(bs, schema.NewValidator(), lifecycle.NewTable(),
		WithClock(func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }),
		WithIDFunc(func() string { seq++; return fmt.Sprintf("e%d", seq) }),
	)
	typ := domain.EntityType{
		ID:   "listing",
		Name: "Listing",
		Fields: []domain.FieldDefinition{
			{ID: "title", Type: domain.FieldText, Required: true},
			{ID: "rank", Type: domain.FieldNumber},
		},
		DefaultVisibility: domain.VisibilityPublic,
		VisibleTo:         []string{"public"},
		IsActive:          true,
	}
	if err := s.PutType(context.Background(), typ); err != nil {
		t.Fatalf("seed type: %v", err)
	}
	return s, bs
}

func TestCreate_WritesVersionStubAndPointer(t *testing.T) {
	s, bs := newTestStore(t)
	ctx := context.Background()

	entity, err := s.Create(ctx, CreateInput{
		TypeID:         "listing",
		OrganizationID: strptr("org1"),
		Name:           "Acme",
		Slug:           "acme",
		Data:           map[string]any{"title": "Acme", "rank": 2},
		Actor:          "u1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entity.Version != 1 || entity.Status != domain.StatusDraft {
		t.Fatalf("new entity must be draft v1, got v%d %s", entity.Version, entity.Status)
	}
	if entity.Visibility != domain.VisibilityPublic {
		t.Fatalf("visibility should default from the type, got %s", entity.Visibility)
	}
	if entity.Data["rank"] != float64(2) {
		t.Fatalf("data not normalized: %#v", entity.Data)
	}

	// drafts live in the org's private scope
	scope := paths.OrgScope("org1")
	for _, key := range []string{
		paths.EntityVersion(scope, entity.ID, 1),
		paths.EntityLatest(scope, entity.ID),
		paths.Stub(entity.ID),
	} {
		ok, err := blob.Exists(ctx, bs, key)
		if err != nil || !ok {
			t.Fatalf("expected %s to exist: %v %v", key, ok, err)
		}
	}
	if ok, _ := blob.Exists(ctx, bs, paths.EntityLatest(paths.ScopePublic, entity.ID)); ok {
		t.Fatalf("draft must not have a public pointer")
	}
}

func TestCreate_GlobalMembersCoercion(t *testing.T) {
	s, _ := newTestStore(t)
	entity, err := s.Create(context.Background(), CreateInput{
		TypeID:     "listing",
		Name:       "Global",
		Data:       map[string]any{"title": "Global"},
		Visibility: domain.VisibilityMembers,
		Actor:      "admin",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entity.Visibility != domain.VisibilityAuthenticated {
		t.Fatalf("global members visibility must coerce to authenticated, got %s", entity.Visibility)
	}
}

func TestCreate_ValidationAndMissingType(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, CreateInput{TypeID: "listing", Name: "x", Data: map[string]any{"bogus": 1, "title": "x"}})
	var verr domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	_, err = s.Create(ctx, CreateInput{TypeID: "listing", Name: "x", Data: map[string]any{}})
	if !errors.As(err, &verr) || verr.Fields["title"] != "required" {
		t.Fatalf("expected required error, got %v", err)
	}

	_, err = s.Create(ctx, CreateInput{TypeID: "ghost", Name: "x"})
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Resource != domain.ResourceEntityType {
		t.Fatalf("expected type NotFoundError, got %v", err)
	}
}

func TestUpdate_VersionsAreMonotonic(t *testing.T) {
	s, bs := newTestStore(t)
	ctx := context.Background()
	entity, err := s.Create(ctx, CreateInput{
		TypeID:         "listing",
		OrganizationID: strptr("org1"),
		Name:           "Acme",
		Data:           map[string]any{"title": "Acme"},
		Actor:          "u1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("Acme %d", i)
		entity, err = s.Update(ctx, entity.ID, UpdateInput{Name: &name, Actor: "u1"})
		if err != nil {
			t.Fatalf("update %d: %v", i, err)
		}
		if entity.Version != i+2 {
			t.Fatalf("version = %d, want %d", entity.Version, i+2)
		}
	}
	// every version record remains readable
	scope := paths.OrgScope("org1")
	for v := 1; v <= 4; v++ {
		ok, err := blob.Exists(ctx, bs, paths.EntityVersion(scope, entity.ID, v))
		if err != nil || !ok {
			t.Fatalf("version %d record missing: %v %v", v, ok, err)
		}
	}
	got, err := s.Get(ctx, entity.ID, 2)
	if err != nil || got.Name != "Acme 0" {
		t.Fatalf("historical read: %v %q", err, got.Name)
	}
	latest, err := s.Get(ctx, entity.ID, 0)
	if err != nil || latest.Version != 4 {
		t.Fatalf("latest read: %v v%d", err, latest.Version)
	}
}

func TestUpdate_MergesDataAndRejectsNonDraft(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	entity, err := s.Create(ctx, CreateInput{
		TypeID:         "listing",
		OrganizationID: strptr("org1"),
		Name:           "Acme",
		Data:           map[string]any{"title": "Acme", "rank": 1},
		Actor:          "u1",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	entity, err = s.Update(ctx, entity.ID, UpdateInput{Data: map[string]any{"rank": 9}, Actor: "u1"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if entity.Data["title"] != "Acme" || entity.Data["rank"] != float64(9) {
		t.Fatalf("patch must merge field-by-field: %#v", entity.Data)
	}

	if _, err := s.Transition(ctx, entity.ID, TransitionInput{Action: domain.ActionSubmitForApproval, Actor: "u1"}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	_, err = s.Update(ctx, entity.ID, UpdateInput{Data: map[string]any{"rank": 10}, Actor: "u1"})
	var serr domain.InvalidStatusError
	if !errors.As(err, &serr) || serr.Status != domain.StatusPending {
		t.Fatalf("expected InvalidStatusError for pending entity, got %v", err)
	}
}

func TestGet_NotFoundResources(t *testing.T) {
	s, bs := newTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "ghost", 0)
	var nf domain.NotFoundError
	if !errors.As(err, &nf) || nf.Resource != domain.ResourceStub {
		t.Fatalf("expected stub NotFoundError, got %v", err)
	}

	entity, err := s.Create(ctx, CreateInput{
		TypeID:         "listing",
		OrganizationID: strptr("org1"),
		Name:           "Acme",
		Data:           map[string]any{"title": "Acme"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = s.Get(ctx, entity.ID, 42)
	if !errors.As(err, &nf) || nf.Resource != domain.ResourceVersion {
		t.Fatalf("expected version NotFoundError, got %v", err)
	}

	// a stub whose pointer vanished reports the pointer, not the stub
	if _, err := bs.Delete(ctx, paths.EntityLatest(paths.OrgScope("org1"), entity.ID)); err != nil {
		t.Fatalf("delete pointer: %v", err)
	}
	_, err = s.Get(ctx, entity.ID, 0)
	if !errors.As(err, &nf) || nf.Resource != domain.ResourcePointer {
		t.Fatalf("expected pointer NotFoundError, got %v", err)
	}
}

func TestListStubs_Filters(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	mk := func(org *string) string {
		e, err := s.Create(ctx, CreateInput{TypeID: "listing", OrganizationID: org, Name: "n", Data: map[string]any{"title": "n"}})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		return e.ID
	}
	a := mk(strptr("org1"))
	mk(strptr("org2"))
	g := mk(nil)

	all, err := s.ListStubs(ctx, StubFilter{EntityTypeID: "listing"})
	if err != nil || len(all) != 3 {
		t.Fatalf("all stubs: %v %d", err, len(all))
	}
	org1, err := s.ListStubs(ctx, StubFilter{OrganizationID: strptr("org1")})
	if err != nil || len(org1) != 1 || org1[0].EntityID != a {
		t.Fatalf("org filter: %v %+v", err, org1)
	}
	globals, err := s.ListStubs(ctx, StubFilter{GlobalOnly: true})
	if err != nil || len(globals) != 1 || globals[0].EntityID != g {
		t.Fatalf("global filter: %v %+v", err, globals)
	}
	none, err := s.ListStubs(ctx, StubFilter{EntityTypeID: "other"})
	if err != nil || len(none) != 0 {
		t.Fatalf("type filter: %v %+v", err, none)
	}
}

func TestSlugInUse(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	e, err := s.Create(ctx, CreateInput{
		TypeID:         "listing",
		OrganizationID: strptr("org1"),
		Name:           "Acme",
		Slug:           "acme",
		Data:           map[string]any{"title": "Acme"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	inUse, err := s.SlugInUse(ctx, strptr("org1"), "listing", "acme", "")
	if err != nil || !inUse {
		t.Fatalf("same-org duplicate should be in use: %v %v", inUse, err)
	}
	inUse, err = s.SlugInUse(ctx, strptr("org2"), "listing", "acme", "")
	if err != nil || inUse {
		t.Fatalf("other org is a separate slug namespace: %v %v", inUse, err)
	}
	inUse, err = s.SlugInUse(ctx, strptr("org1"), "listing", "acme", e.ID)
	if err != nil || inUse {
		t.Fatalf("excluding the entity itself: %v %v", inUse, err)
	}

	// deleted entities free their slug
	if _, err := s.Transition(ctx, e.ID, TransitionInput{Action: domain.ActionDelete, Actor: "u1"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	inUse, err = s.SlugInUse(ctx, strptr("org1"), "listing", "acme", "")
	if err != nil || inUse {
		t.Fatalf("deleted entity must not hold the slug: %v %v", inUse, err)
	}
}
