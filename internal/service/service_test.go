package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"

	"tenantcore/internal/appconfig"
	"tenantcore/internal/blob"
	"tenantcore/internal/entitystore"
	"tenantcore/internal/lifecycle"
	"tenantcore/internal/materialize"
	"tenantcore/internal/paths"
	"tenantcore/internal/schema"
	"tenantcore/pkg/domain"
)

func strptr(s string) *string { return &s }

var (
	superadmin = domain.Caller{UserID: "root", Role: domain.RoleSuperadmin}
	orgAdmin   = domain.Caller{UserID: "oa", Role: domain.RoleOrgAdmin, OrganizationID: strptr("org1"), MembershipKey: "member"}
	orgMember  = domain.Caller{UserID: "om", Role: domain.RoleOrgMember, OrganizationID: strptr("org1"), MembershipKey: "member"}
	outsider   = domain.Caller{UserID: "out", Role: domain.RoleUser, MembershipKey: "platform"}
	memberUser = domain.Caller{UserID: "mu", Role: domain.RoleUser, MembershipKey: "member"}
	anon       = domain.Caller{Role: domain.RolePublic}
)

func newService(t *testing.T) (*Service, blob.Store) {
	t.Helper()
	bs := blob.NewMemory()
	clock := func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	seq := 0
	store := entitystore.New(bs, schema.NewValidator(), lifecycle.NewTable(),
		entitystore.WithClock(clock),
		entitystore.WithIDFunc(func() string { seq++; return fmt.Sprintf("e%d", seq) }),
	)
	cfgCache := appconfig.New(bs)
	mat := materialize.New(store, cfgCache, zap.NewNop(), materialize.WithClock(clock))
	svc := New(store, cfgCache, mat, zap.NewNop())

	typ := domain.EntityType{
		ID:   "listing",
		Name: "Listing",
		Fields: []domain.FieldDefinition{
			{ID: "title", Type: domain.FieldText, Required: true},
			{ID: "phone", Type: domain.FieldText},
		},
		DefaultVisibility: domain.VisibilityPublic,
		VisibleTo:         []string{"public", "member"},
		FieldVisibility:   map[string][]string{"phone": {"member"}},
		IsActive:          true,
	}
	if err := store.PutType(context.Background(), typ); err != nil {
		t.Fatalf("seed type: %v", err)
	}
	return svc, bs
}

func isForbidden(err error) bool {
	var f domain.ForbiddenError
	return errors.As(err, &f)
}

func isNotFound(err error) bool {
	var nf domain.NotFoundError
	return errors.As(err, &nf)
}

func TestCreateEntity_Authorization(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	input := entitystore.CreateInput{
		TypeID:         "listing",
		OrganizationID: strptr("org1"),
		Name:           "Acme",
		Data:           map[string]any{"title": "Acme"},
	}

	if _, err := svc.CreateEntity(ctx, outsider, input); !isForbidden(err) {
		t.Fatalf("outsider must be forbidden, got %v", err)
	}
	global := input
	global.OrganizationID = nil
	if _, err := svc.CreateEntity(ctx, orgAdmin, global); !isForbidden(err) {
		t.Fatalf("org admin must not create global entities, got %v", err)
	}
	if _, err := svc.CreateEntity(ctx, orgMember, input); err != nil {
		t.Fatalf("org member create: %v", err)
	}
	if e, err := svc.CreateEntity(ctx, superadmin, global); err != nil || e.OrganizationID != nil {
		t.Fatalf("superadmin global create: %v %+v", err, e)
	}
}

func TestCreateEntity_SlugConflict(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	input := entitystore.CreateInput{
		TypeID:         "listing",
		OrganizationID: strptr("org1"),
		Name:           "Acme",
		Slug:           "acme",
		Data:           map[string]any{"title": "Acme"},
	}
	if _, err := svc.CreateEntity(ctx, orgAdmin, input); err != nil {
		t.Fatalf("first create: %v", err)
	}
	_, err := svc.CreateEntity(ctx, orgAdmin, input)
	var cerr domain.ConflictError
	if !errors.As(err, &cerr) || cerr.Field != "slug" {
		t.Fatalf("expected slug ConflictError, got %v", err)
	}
	// same slug in another tenant is fine
	other := input
	other.OrganizationID = nil
	if _, err := svc.CreateEntity(ctx, superadmin, other); err != nil {
		t.Fatalf("cross-tenant slug reuse: %v", err)
	}
}

func TestGetEntity_OwnershipAndProjection(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created, err := svc.CreateEntity(ctx, orgAdmin, entitystore.CreateInput{
		TypeID:         "listing",
		OrganizationID: strptr("org1"),
		Name:           "Acme",
		Data:           map[string]any{"title": "Acme", "phone": "555-0100"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// drafts are invisible to non-owners, as not-found
	if _, err := svc.GetEntity(ctx, outsider, created.ID, 0); !isNotFound(err) {
		t.Fatalf("draft must read as not found for outsiders, got %v", err)
	}
	if got, err := svc.GetEntity(ctx, orgMember, created.ID, 0); err != nil || got.Data["phone"] != "555-0100" {
		t.Fatalf("owner reads full data: %v %+v", err, got.Data)
	}

	if _, err := svc.TransitionEntity(ctx, orgAdmin, created.ID, domain.ActionSubmitForApproval, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.TransitionEntity(ctx, superadmin, created.ID, domain.ActionApprove, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// anonymous readers get the projected view
	got, err := svc.GetEntity(ctx, anon, created.ID, 0)
	if err != nil {
		t.Fatalf("anon read of published entity: %v", err)
	}
	if _, ok := got.Data["phone"]; ok {
		t.Fatalf("anon projection leaked phone: %+v", got.Data)
	}
	if got.Data["title"] != "Acme" {
		t.Fatalf("anon projection lost title: %+v", got.Data)
	}
	// a member-key reader sees the restricted field via key inheritance
	if got, err := svc.GetEntity(ctx, memberUser, created.ID, 0); err != nil || got.Data["phone"] != "555-0100" {
		t.Fatalf("member read: %v %+v", err, got.Data)
	}
	// version history stays owner-only
	if _, err := svc.GetEntity(ctx, memberUser, created.ID, 1); !isNotFound(err) {
		t.Fatalf("history must read as not found for non-owners, got %v", err)
	}
}

func TestTransitionEntity_Privileges(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created, err := svc.CreateEntity(ctx, orgAdmin, entitystore.CreateInput{
		TypeID:         "listing",
		OrganizationID: strptr("org1"),
		Name:           "Acme",
		Data:           map[string]any{"title": "Acme"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.TransitionEntity(ctx, outsider, created.ID, domain.ActionSubmitForApproval, ""); !isForbidden(err) {
		t.Fatalf("outsider submit must be forbidden, got %v", err)
	}
	if _, err := svc.TransitionEntity(ctx, orgAdmin, created.ID, domain.ActionSubmitForApproval, ""); err != nil {
		t.Fatalf("owner submit: %v", err)
	}
	if _, err := svc.TransitionEntity(ctx, orgAdmin, created.ID, domain.ActionApprove, ""); !isForbidden(err) {
		t.Fatalf("org admin approve must be forbidden, got %v", err)
	}
	rejected, err := svc.TransitionEntity(ctx, superadmin, created.ID, domain.ActionReject, "needs work")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.StatusDraft || rejected.ApprovalFeedback != "needs work" {
		t.Fatalf("reject result: %+v", rejected)
	}
}

// A global entity's full lifecycle: hidden while draft, readable by its
// audience once published, and served from the per-key bundles.
func TestGlobalEntityLifecycle(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created, err := svc.CreateEntity(ctx, superadmin, entitystore.CreateInput{
		TypeID:     "listing",
		Name:       "Platform Notice",
		Data:       map[string]any{"title": "Platform Notice"},
		Visibility: domain.VisibilityAuthenticated,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.GetEntity(ctx, outsider, created.ID, 0); !isNotFound(err) {
		t.Fatalf("draft global must be hidden, got %v", err)
	}

	if _, err := svc.TransitionEntity(ctx, superadmin, created.ID, domain.ActionSubmitForApproval, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.TransitionEntity(ctx, superadmin, created.ID, domain.ActionApprove, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// authenticated visibility excludes anonymous readers
	if _, err := svc.GetEntity(ctx, anon, created.ID, 0); !isNotFound(err) {
		t.Fatalf("anon must not read authenticated entities, got %v", err)
	}
	if got, err := svc.GetEntity(ctx, outsider, created.ID, 0); err != nil || got.Name != "Platform Notice" {
		t.Fatalf("authenticated read: %v %+v", err, got)
	}

	// the fan-out populated the bundles: absent from the public key's,
	// present in the member key's
	pubBundle, err := svc.GetBundle(ctx, anon, domain.PublicMembershipKey, "listing")
	if err != nil {
		t.Fatalf("public bundle: %v", err)
	}
	if pubBundle.EntityCount != 0 {
		t.Fatalf("authenticated entity leaked into the public bundle: %+v", pubBundle)
	}
	memBundle, err := svc.GetBundle(ctx, memberUser, "member", "listing")
	if err != nil {
		t.Fatalf("member bundle: %v", err)
	}
	if memBundle.EntityCount != 1 || memBundle.Entities[0].ID != created.ID {
		t.Fatalf("member bundle content: %+v", memBundle)
	}
}

func TestGetBundle_Authorization(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	created, err := svc.CreateEntity(ctx, orgAdmin, entitystore.CreateInput{
		TypeID:         "listing",
		OrganizationID: strptr("org1"),
		Name:           "Acme",
		Data:           map[string]any{"title": "Acme"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.TransitionEntity(ctx, orgAdmin, created.ID, domain.ActionSubmitForApproval, ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := svc.TransitionEntity(ctx, superadmin, created.ID, domain.ActionApprove, ""); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if _, err := svc.GetBundle(ctx, anon, "member", "listing"); !isForbidden(err) {
		t.Fatalf("anon reading a member-key bundle must be forbidden, got %v", err)
	}
	// platform key inherits public, not member
	if _, err := svc.GetBundle(ctx, outsider, "member", "listing"); !isForbidden(err) {
		t.Fatalf("platform key must not reach the member bundle, got %v", err)
	}
	if _, err := svc.GetBundle(ctx, outsider, domain.PublicMembershipKey, "listing"); err != nil {
		t.Fatalf("public bundle open to all: %v", err)
	}

	if _, err := svc.GetAdminBundle(ctx, orgAdmin, domain.PublicMembershipKey, "listing"); !isForbidden(err) {
		t.Fatalf("moderation bundles are superadmin-only, got %v", err)
	}

	if _, err := svc.GetOrgBundle(ctx, outsider, "org1", paths.OrgRoleMember, "listing"); !isForbidden(err) {
		t.Fatalf("outsider must not read org bundles, got %v", err)
	}
	if _, err := svc.GetOrgBundle(ctx, orgMember, "org1", paths.OrgRoleAdmin, "listing"); !isForbidden(err) {
		t.Fatalf("org member must not read the org admin bundle, got %v", err)
	}
	if bundle, err := svc.GetOrgBundle(ctx, orgMember, "org1", paths.OrgRoleMember, "listing"); err != nil || bundle.EntityCount != 1 {
		t.Fatalf("org member bundle: %v %+v", err, bundle)
	}
	if _, err := svc.GetOrgManifest(ctx, orgAdmin, "org1", paths.OrgRoleAdmin); err != nil {
		t.Fatalf("org admin manifest: %v", err)
	}
}

func TestEntityTypeAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.CreateEntityType(ctx, orgAdmin, EntityTypeInput{Name: "X"}); !isForbidden(err) {
		t.Fatalf("type create must be superadmin-only, got %v", err)
	}
	created, err := svc.CreateEntityType(ctx, superadmin, EntityTypeInput{
		Name:      "Event",
		Slug:      "event",
		Fields:    []domain.FieldDefinition{{ID: "when", Type: domain.FieldDate}},
		VisibleTo: []string{"public"},
	})
	if err != nil {
		t.Fatalf("type create: %v", err)
	}
	if created.ID == "" || !created.IsActive || created.DefaultVisibility != domain.VisibilityPublic {
		t.Fatalf("type defaults: %+v", created)
	}

	if err := svc.DeactivateEntityType(ctx, superadmin, created.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	types, err := svc.ListEntityTypes(ctx, anon)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, typ := range types {
		if typ.ID == created.ID {
			t.Fatalf("deactivated type visible to non-superadmins")
		}
	}
	all, err := svc.ListEntityTypes(ctx, superadmin)
	if err != nil || len(all) != len(types)+1 {
		t.Fatalf("superadmin sees inactive types: %v %d/%d", err, len(all), len(types))
	}
}

func TestOrganizationAdmin(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.CreateOrganization(ctx, orgAdmin, OrganizationInput{Name: "X"}); !isForbidden(err) {
		t.Fatalf("org create must be superadmin-only, got %v", err)
	}
	org, err := svc.CreateOrganization(ctx, superadmin, OrganizationInput{Name: "Acme", Slug: "acme", Tier: "premium"})
	if err != nil {
		t.Fatalf("org create: %v", err)
	}
	if org.MembershipKey != "member" {
		t.Fatalf("premium tier maps to the member key, got %q", org.MembershipKey)
	}
	if _, err := svc.CreateOrganization(ctx, superadmin, OrganizationInput{Name: "Bad", MembershipKey: "bogus"}); err == nil {
		t.Fatalf("unknown membership key must be rejected")
	}

	if err := svc.GrantPermissions(ctx, orgAdmin, domain.OrganizationPermissions{OrganizationID: org.ID}); !isForbidden(err) {
		t.Fatalf("grants are superadmin-only, got %v", err)
	}
	if err := svc.GrantPermissions(ctx, superadmin, domain.OrganizationPermissions{
		OrganizationID: org.ID,
		MembershipKey:  "member",
	}); err != nil {
		t.Fatalf("grant: %v", err)
	}
}

func TestUpdateAppConfig(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	if _, err := svc.UpdateAppConfig(ctx, orgAdmin, domain.AppConfig{}); !isForbidden(err) {
		t.Fatalf("config update must be superadmin-only, got %v", err)
	}
	cfg, err := svc.UpdateAppConfig(ctx, superadmin, domain.AppConfig{
		MembershipKeys: []domain.MembershipKeyDefinition{
			{ID: "gold", Name: "Gold", RequiresAuth: true, Order: 1},
		},
	})
	if err != nil {
		t.Fatalf("config update: %v", err)
	}
	if _, ok := cfg.KeyByID(domain.PublicMembershipKey); !ok {
		t.Fatalf("public key must be guaranteed: %+v", cfg.MembershipKeys)
	}
	got, err := svc.GetAppConfig(ctx)
	if err != nil {
		t.Fatalf("get config: %v", err)
	}
	if _, ok := got.KeyByID("gold"); !ok {
		t.Fatalf("update not visible through the cache")
	}
}

func TestRebuild_RequiresSuperadmin(t *testing.T) {
	svc, _ := newService(t)
	if err := svc.Rebuild(context.Background(), orgAdmin); !isForbidden(err) {
		t.Fatalf("rebuild must be superadmin-only, got %v", err)
	}
	if err := svc.Rebuild(context.Background(), superadmin); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
}
