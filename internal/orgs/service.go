// Package orgs holds the operations that change who belongs to which
// organization: tenant switching, organization lifecycle, employees and roles.
// Every mutation that changes an account's memberships, roles or admin status
// invalidates that account's cached authentications.
package orgs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/authcache"
	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/tenancy"
)

var ErrInvalidInput = errors.New("orgs: invalid input")

type Service struct {
	accounts directory.AccountStore
	orgs     directory.OrganizationStore
	roles    directory.RoleStore
	cache    authcache.Cache
	activity *audit.Service
	log      *slog.Logger
	clock    func() time.Time
}

func NewService(store directory.Store, cache authcache.Cache, activity *audit.Service, log *slog.Logger) *Service {
	if cache == nil {
		cache = authcache.Noop{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		accounts: store.Accounts(),
		orgs:     store.Organizations(),
		roles:    store.Roles(),
		cache:    cache,
		activity: activity,
		log:      log,
		clock:    time.Now,
	}
}

func (s *Service) now() time.Time { return s.clock().UTC() }

// membership loads the account's current tenancy view from the store.
func (s *Service) membership(ctx context.Context, acct directory.Account) (tenancy.Membership, error) {
	admin, err := s.orgs.ListAdministeredBy(ctx, acct.ID)
	if err != nil {
		return tenancy.Membership{}, err
	}
	ids := make([]string, 0, len(admin))
	for _, o := range admin {
		ids = append(ids, o.ID)
	}
	return acct.Membership(ids), nil
}

// Tenant is one selectable organization.
type Tenant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsAdmin  bool   `json:"isAdmin"`
	IsMember bool   `json:"isMember"`
}

// Tenants lists the organizations acct may operate in and the one currently
// active. An account with no organization gets an empty list and "".
func (s *Service) Tenants(ctx context.Context, acct directory.Account) ([]Tenant, string, error) {
	m, err := s.membership(ctx, acct)
	if err != nil {
		return nil, "", err
	}
	found, err := s.orgs.FindByIDs(ctx, m.Tenants())
	if err != nil {
		return nil, "", err
	}
	byID := make(map[string]directory.Organization, len(found))
	for _, o := range found {
		byID[o.ID] = o
	}
	out := []Tenant{}
	for _, id := range m.Tenants() {
		o, ok := byID[id]
		if !ok {
			continue
		}
		out = append(out, Tenant{ID: o.ID, Name: o.Name, IsAdmin: m.Administers(id), IsMember: m.IsMember(id)})
	}

	active, err := tenancy.ResolveActiveOrg(m, "")
	if errors.Is(err, tenancy.ErrNoOrganization) {
		return out, "", nil
	}
	if err != nil {
		return nil, "", err
	}
	return out, active, nil
}

// SwitchActiveOrg persists target as acct's active organization. The target
// must be a membership or an administered organization; switching never adds
// a membership.
func (s *Service) SwitchActiveOrg(ctx context.Context, acct directory.Account, target string) (directory.Account, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return directory.Account{}, fmt.Errorf("%w: tenant id is required", ErrInvalidInput)
	}
	if !acct.OrgIDs.Contains(target) {
		org, err := s.orgs.FindByID(ctx, target)
		if errors.Is(err, directory.ErrNotFound) {
			return directory.Account{}, tenancy.ErrNotAMember
		}
		if err != nil {
			return directory.Account{}, err
		}
		if !org.IsAdmin(acct.ID) {
			return directory.Account{}, tenancy.ErrNotAMember
		}
	}

	updated, err := s.accounts.SetActiveOrg(ctx, acct.ID, target, s.now())
	if err != nil {
		return directory.Account{}, err
	}
	s.cache.InvalidateAccount(ctx, acct.ID)
	s.activity.Record(ctx, audit.Event{
		OrgID:      target,
		Type:       audit.EventTenantSwitched,
		ActorID:    acct.ID,
		EntityType: "account",
		EntityID:   acct.ID,
		Summary:    "switched active tenant",
	})
	return updated, nil
}
