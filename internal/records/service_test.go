package records

import (
	"context"
	"errors"
	"testing"

	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/scope"
	"lighthouse-crm/internal/tenancy"
)

type user struct {
	id string
	m  tenancy.Membership
}

func (u user) SubjectID() string              { return u.id }
func (u user) Membership() tenancy.Membership { return u.m }

func newService(t *testing.T) (*Service, *directory.MemoryStore, *audit.MemoryRepo) {
	t.Helper()
	dir := directory.NewMemoryStore()
	repo := audit.NewMemoryRepo()
	return NewService(NewMemoryStore(), dir.Organizations(), audit.NewService(repo, nil)), dir, repo
}

func TestService_TenantIsolation(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	o1, o2 := directory.NewID(), directory.NewID()
	u1 := user{id: directory.NewID(), m: tenancy.Membership{OrgIDs: tenancy.OrgIDs{o1}}}
	u2 := user{id: directory.NewID(), m: tenancy.Membership{OrgIDs: tenancy.OrgIDs{o2}}}

	ids1, _ := scope.ExtractIDs(u1, "")
	ids2, _ := scope.ExtractIDs(u2, "")
	lead1, err := svc.Create(ctx, KindLeads, ids1, Input{Name: "Jane"})
	if err != nil {
		t.Fatalf("create o1: %v", err)
	}
	if _, err := svc.Create(ctx, KindLeads, ids2, Input{Name: "Jane"}); err != nil {
		t.Fatalf("create o2: %v", err)
	}

	f1, _ := scope.BuildFilter(u1, scope.Options{})
	got, err := svc.List(ctx, KindLeads, f1, scope.Page{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].ID != lead1.ID {
		t.Fatalf("expected only o1 lead, got %+v", got)
	}

	f2, _ := scope.BuildFilter(u2, scope.Options{})
	if _, err := svc.Get(ctx, KindLeads, f2, lead1.ID); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("cross-tenant get must be not found, got %v", err)
	}
	if _, err := svc.Update(ctx, KindLeads, f2, u2.id, lead1.ID, Patch{Status: strPtr("won")}); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("cross-tenant update must be not found, got %v", err)
	}
	if err := svc.Delete(ctx, KindLeads, f2, u2.id, lead1.ID); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("cross-tenant delete must be not found, got %v", err)
	}
}

func TestService_OwnerScopedView(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	org := directory.NewID()
	alice := user{id: directory.NewID(), m: tenancy.Membership{OrgIDs: tenancy.OrgIDs{org}}}
	bob := user{id: directory.NewID(), m: tenancy.Membership{OrgIDs: tenancy.OrgIDs{org}}}

	for _, u := range []user{alice, bob} {
		ids, _ := scope.ExtractIDs(u, "")
		if _, err := svc.Create(ctx, KindDeals, ids, Input{Name: "deal"}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, _ := scope.BuildFilter(alice, scope.Options{})
	mine, _ := scope.BuildFilter(alice, scope.Options{IncludeOwner: true})
	if got, _ := svc.List(ctx, KindDeals, all, scope.Page{}); len(got) != 2 {
		t.Fatalf("org view: %d", len(got))
	}
	got, _ := svc.List(ctx, KindDeals, mine, scope.Page{})
	if len(got) != 1 || got[0].OwnerID != alice.id {
		t.Fatalf("owner view: %+v", got)
	}
}

func TestService_CreateRecordsActivity(t *testing.T) {
	svc, _, repo := newService(t)
	org, owner := directory.NewID(), directory.NewID()
	r, err := svc.Create(context.Background(), KindContacts, scope.IDs{OrgID: org, OwnerID: owner}, Input{Name: "Ann", Fields: map[string]any{"phone": "1"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	evs := repo.Events()
	if len(evs) != 1 || evs[0].EntityID != r.ID || evs[0].OrgID != org || evs[0].Type != audit.EventRecordCreated {
		t.Fatalf("activity: %+v", evs)
	}
}

func TestService_RejectsBadInput(t *testing.T) {
	svc, _, _ := newService(t)
	ctx := context.Background()
	ids := scope.IDs{OrgID: directory.NewID(), OwnerID: directory.NewID()}

	if _, err := svc.Create(ctx, KindLeads, ids, Input{}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty name, got %v", err)
	}
	if _, err := svc.Create(ctx, KindLeads, ids, Input{Name: "x", Fields: map[string]any{"$where": 1}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for operator key, got %v", err)
	}
	if _, err := svc.Create(ctx, KindLeads, ids, Input{Name: "x", Fields: map[string]any{"orgId": "other"}}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for tenant key, got %v", err)
	}
	if _, err := svc.Create(ctx, KindLeads, scope.IDs{}, Input{Name: "x"}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected invalid input for missing org, got %v", err)
	}
}

func TestService_SubmitTicket(t *testing.T) {
	svc, dir, repo := newService(t)
	ctx := context.Background()

	if _, err := svc.SubmitTicket(ctx, directory.NewID(), Input{Name: "help"}); !errors.Is(err, directory.ErrNotFound) {
		t.Fatalf("expected not found for unknown org, got %v", err)
	}

	org := &directory.Organization{Name: "acme", Domain: "acme.com"}
	if err := dir.Organizations().Create(ctx, org); err != nil {
		t.Fatalf("org: %v", err)
	}
	r, err := svc.SubmitTicket(ctx, org.ID, Input{Name: "help"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if r.Status != "open" || r.OwnerID != "" || r.OrgID != org.ID {
		t.Fatalf("ticket: %+v", r)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected one event per submission, got %+v", evs)
	}
	if evs[0].Type != audit.EventTicketSubmitted || evs[0].EntityID != r.ID || evs[0].ActorID != "" {
		t.Fatalf("event: %+v", evs[0])
	}
}

func strPtr(s string) *string { return &s }
