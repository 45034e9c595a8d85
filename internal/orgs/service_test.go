package orgs

import (
	"context"
	"errors"
	"testing"

	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/authcache"
	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/identity"
	"lighthouse-crm/internal/tenancy"
)

type fixture struct {
	svc   *Service
	store *directory.MemoryStore
	cache *authcache.Memory
	repo  *audit.MemoryRepo
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := directory.NewMemoryStore()
	cache := authcache.NewMemory(0)
	repo := audit.NewMemoryRepo()
	return fixture{
		svc:   NewService(store, cache, audit.NewService(repo, nil), nil),
		store: store,
		cache: cache,
		repo:  repo,
	}
}

func (f fixture) org(t *testing.T, name string, admins ...string) directory.Organization {
	t.Helper()
	o := directory.Organization{Name: name, Domain: directory.DomainFromName(name) + ".test", Admins: admins}
	if err := f.store.Organizations().Create(context.Background(), &o); err != nil {
		t.Fatalf("org %s: %v", name, err)
	}
	return o
}

func (f fixture) account(t *testing.T, email string, orgIDs ...string) directory.Account {
	t.Helper()
	a := directory.Account{Email: email, Name: email, OrgIDs: orgIDs, RoleIDs: []string{}}
	if err := f.store.Accounts().Create(context.Background(), &a); err != nil {
		t.Fatalf("account %s: %v", email, err)
	}
	return a
}

func TestSwitchActiveOrg_MultiOrgMember(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o1 := f.org(t, "Alpha")
	o2 := f.org(t, "Beta")
	o3 := f.org(t, "Gamma")
	carol := f.account(t, "carol@alpha.test", o1.ID, o2.ID)

	f.cache.Store(ctx, "token-1", authcache.Entry{Identity: identity.Identity{SubjectID: "c"}, Account: carol}, 0)

	updated, err := f.svc.SwitchActiveOrg(ctx, carol, o2.ID)
	if err != nil {
		t.Fatalf("switch: %v", err)
	}
	if updated.ActiveOrgID != o2.ID {
		t.Fatalf("active = %q", updated.ActiveOrgID)
	}
	if _, ok := f.cache.Lookup(ctx, "token-1"); ok {
		t.Fatalf("cached entry must be invalidated after switch")
	}

	if _, err := f.svc.SwitchActiveOrg(ctx, updated, o3.ID); !errors.Is(err, tenancy.ErrNotAMember) {
		t.Fatalf("switch to foreign org: %v", err)
	}
	if _, err := f.svc.SwitchActiveOrg(ctx, updated, directory.NewID()); !errors.Is(err, tenancy.ErrNotAMember) {
		t.Fatalf("switch to unknown org: %v", err)
	}
	if _, err := f.svc.SwitchActiveOrg(ctx, updated, " "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("switch to empty: %v", err)
	}

	stored, _ := f.store.Accounts().FindByID(ctx, carol.ID)
	if stored.ActiveOrgID != o2.ID {
		t.Fatalf("failed switch changed active org: %q", stored.ActiveOrgID)
	}

	tenants, active, err := f.svc.Tenants(ctx, stored)
	if err != nil {
		t.Fatalf("tenants: %v", err)
	}
	if active != o2.ID || len(tenants) != 2 {
		t.Fatalf("tenants %+v active %q", tenants, active)
	}

	var switched int
	for _, e := range f.repo.Events() {
		if e.Type == audit.EventTenantSwitched {
			switched++
		}
	}
	if switched != 1 {
		t.Fatalf("switch events = %d", switched)
	}
}

func TestSwitchActiveOrg_AdminWithoutMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	own := f.org(t, "Home")
	dave := f.account(t, "dave@home.test", own.ID)
	managed := f.org(t, "Managed", dave.ID)

	updated, err := f.svc.SwitchActiveOrg(ctx, dave, managed.ID)
	if err != nil {
		t.Fatalf("admin switch: %v", err)
	}
	if updated.ActiveOrgID != managed.ID {
		t.Fatalf("active = %q", updated.ActiveOrgID)
	}
	if updated.OrgIDs.Contains(managed.ID) {
		t.Fatalf("switching must not add membership: %v", updated.OrgIDs)
	}

	tenants, active, err := f.svc.Tenants(ctx, updated)
	if err != nil {
		t.Fatalf("tenants: %v", err)
	}
	if active != managed.ID || len(tenants) != 2 {
		t.Fatalf("tenants %+v active %q", tenants, active)
	}
	for _, tn := range tenants {
		if tn.ID == managed.ID && (!tn.IsAdmin || tn.IsMember) {
			t.Fatalf("managed tenant flags: %+v", tn)
		}
	}
}

func TestTenants_NoOrganization(t *testing.T) {
	f := newFixture(t)
	loner := f.account(t, "loner@gmail.com")
	tenants, active, err := f.svc.Tenants(context.Background(), loner)
	if err != nil {
		t.Fatalf("tenants: %v", err)
	}
	if len(tenants) != 0 || active != "" {
		t.Fatalf("expected empty tenancy, got %+v %q", tenants, active)
	}
}

func TestCreateOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	erin := f.account(t, "erin@gmail.com")
	f.cache.Store(ctx, "token-e", authcache.Entry{Account: erin}, 0)

	org, updated, err := f.svc.CreateOrganization(ctx, erin, "Erin Consulting", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if org.Domain != "erin-consulting" || !org.IsAdmin(erin.ID) {
		t.Fatalf("org: %+v", org)
	}
	if !updated.OrgIDs.Contains(org.ID) {
		t.Fatalf("creator not a member: %v", updated.OrgIDs)
	}
	if _, ok := f.cache.Lookup(ctx, "token-e"); ok {
		t.Fatalf("creator cache entry not invalidated")
	}

	if _, _, err := f.svc.CreateOrganization(ctx, erin, "Erin_Consulting", ""); !errors.Is(err, directory.ErrConflict) {
		t.Fatalf("duplicate domain: %v", err)
	}
	if _, _, err := f.svc.CreateOrganization(ctx, erin, "  ", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("empty name: %v", err)
	}

	list, err := f.svc.ListOrganizations(ctx, updated)
	if err != nil || len(list) != 1 || list[0].ID != org.ID {
		t.Fatalf("list: %+v %v", list, err)
	}

	renamed, err := f.svc.RenameOrganization(ctx, erin.ID, org.ID, "Erin & Co")
	if err != nil || renamed.Name != "Erin & Co" {
		t.Fatalf("rename: %+v %v", renamed, err)
	}
}
