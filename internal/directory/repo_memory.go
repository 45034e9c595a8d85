package directory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"lighthouse-crm/internal/tenancy"
)

// MemoryStore is an in-memory Store used by tests and local runs.
// It enforces the same uniqueness rules as the Mongo store.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]Account
	orgs     map[string]Organization
	roles    map[string]Role
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: map[string]Account{},
		orgs:     map[string]Organization{},
		roles:    map[string]Role{},
	}
}

func (s *MemoryStore) Accounts() AccountStore           { return memAccounts{s} }
func (s *MemoryStore) Organizations() OrganizationStore { return memOrgs{s} }
func (s *MemoryStore) Roles() RoleStore                 { return memRoles{s} }

func cloneAccount(a Account) Account {
	a.OrgIDs = append(tenancy.OrgIDs{}, a.OrgIDs...)
	a.RoleIDs = append([]string{}, a.RoleIDs...)
	return a
}

func cloneOrg(o Organization) Organization {
	o.Admins = append([]string{}, o.Admins...)
	return o
}

func cloneRole(r Role) Role {
	r.Permissions = append([]string{}, r.Permissions...)
	return r
}

type memAccounts struct{ s *MemoryStore }

func (m memAccounts) FindByID(ctx context.Context, id string) (Account, error) {
	if !ValidID(id) {
		return Account{}, ErrInvalidID
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	return cloneAccount(a), nil
}

func (m memAccounts) FindByEmail(ctx context.Context, email string) (Account, error) {
	email = NormalizeEmail(email)
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, a := range m.s.accounts {
		if NormalizeEmail(a.Email) == email {
			return cloneAccount(a), nil
		}
	}
	return Account{}, ErrNotFound
}

func (m memAccounts) Create(ctx context.Context, a *Account) error {
	if a.ID == "" {
		a.ID = NewID()
	}
	a.OrgIDs = tenancy.NormalizeOrgIDs(a.OrgIDs)
	if a.RoleIDs == nil {
		a.RoleIDs = []string{}
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	email := NormalizeEmail(a.Email)
	for _, existing := range m.s.accounts {
		if NormalizeEmail(existing.Email) == email {
			return ErrConflict
		}
	}
	if _, ok := m.s.accounts[a.ID]; ok {
		return ErrConflict
	}
	m.s.accounts[a.ID] = cloneAccount(*a)
	return nil
}

// mutate applies fn to the stored account under the lock.
func (m memAccounts) mutate(id string, fn func(a *Account)) (Account, error) {
	if !ValidID(id) {
		return Account{}, ErrInvalidID
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	a, ok := m.s.accounts[id]
	if !ok {
		return Account{}, ErrNotFound
	}
	fn(&a)
	m.s.accounts[id] = a
	return cloneAccount(a), nil
}

func (m memAccounts) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (Account, error) {
	return m.mutate(id, func(a *Account) {
		if upd.Name != nil {
			a.Name = *upd.Name
		}
		if upd.Picture != nil {
			a.Picture = *upd.Picture
		}
		if upd.ExternalID != nil {
			a.ExternalID = *upd.ExternalID
		}
		a.LastSeenAt = upd.SeenAt
		a.UpdatedAt = upd.SeenAt
	})
}

func (m memAccounts) UpdateEmployee(ctx context.Context, id string, upd EmployeeUpdate, now time.Time) (Account, error) {
	return m.mutate(id, func(a *Account) {
		if upd.Name != nil {
			a.Name = *upd.Name
		}
		if upd.RoleIDs != nil {
			a.RoleIDs = append([]string{}, (*upd.RoleIDs)...)
		}
		a.UpdatedAt = now
	})
}

func (m memAccounts) AddMembership(ctx context.Context, id, orgID string, now time.Time) (Account, error) {
	return m.mutate(id, func(a *Account) {
		a.OrgIDs, _ = tenancy.AddMembership(a.OrgIDs, orgID)
		a.UpdatedAt = now
	})
}

func (m memAccounts) RemoveMembership(ctx context.Context, id, orgID string, now time.Time) (Account, error) {
	return m.mutate(id, func(a *Account) {
		a.OrgIDs, a.ActiveOrgID, _ = tenancy.RemoveMembership(a.OrgIDs, a.ActiveOrgID, orgID)
		a.UpdatedAt = now
	})
}

func (m memAccounts) SetActiveOrg(ctx context.Context, id, orgID string, now time.Time) (Account, error) {
	return m.mutate(id, func(a *Account) {
		a.ActiveOrgID = orgID
		a.UpdatedAt = now
	})
}

func (m memAccounts) ListByOrg(ctx context.Context, orgID string) ([]Account, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []Account{}
	for _, a := range m.s.accounts {
		if a.OrgIDs.Contains(orgID) {
			out = append(out, cloneAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Email < out[j].Email })
	return out, nil
}

type memOrgs struct{ s *MemoryStore }

func (m memOrgs) FindByID(ctx context.Context, id string) (Organization, error) {
	if !ValidID(id) {
		return Organization{}, ErrInvalidID
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return cloneOrg(o), nil
}

func (m memOrgs) FindByDomain(ctx context.Context, domain string) (Organization, error) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, o := range m.s.orgs {
		if o.Domain == domain {
			return cloneOrg(o), nil
		}
	}
	return Organization{}, ErrNotFound
}

func (m memOrgs) FindByIDs(ctx context.Context, ids []string) ([]Organization, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []Organization{}
	for _, id := range ids {
		if o, ok := m.s.orgs[id]; ok {
			out = append(out, cloneOrg(o))
		}
	}
	return out, nil
}

func (m memOrgs) ListAdministeredBy(ctx context.Context, accountID string) ([]Organization, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []Organization{}
	for _, o := range m.s.orgs {
		if o.IsAdmin(accountID) {
			out = append(out, cloneOrg(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m memOrgs) Create(ctx context.Context, o *Organization) error {
	if o.ID == "" {
		o.ID = NewID()
	}
	o.Domain = strings.ToLower(strings.TrimSpace(o.Domain))
	if o.Admins == nil {
		o.Admins = []string{}
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.orgs {
		if existing.Domain == o.Domain {
			return ErrConflict
		}
	}
	m.s.orgs[o.ID] = cloneOrg(*o)
	return nil
}

func (m memOrgs) Rename(ctx context.Context, id, name string, now time.Time) (Organization, error) {
	if !ValidID(id) {
		return Organization{}, ErrInvalidID
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.orgs[id]
	if !ok {
		return Organization{}, ErrNotFound
	}
	o.Name = name
	o.UpdatedAt = now
	m.s.orgs[id] = o
	return cloneOrg(o), nil
}

func (m memOrgs) AddAdminIfNone(ctx context.Context, id, accountID string, now time.Time) (bool, error) {
	if !ValidID(id) {
		return false, ErrInvalidID
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	o, ok := m.s.orgs[id]
	if !ok {
		return false, ErrNotFound
	}
	if len(o.Admins) == 0 {
		o.Admins = []string{accountID}
		o.UpdatedAt = now
		m.s.orgs[id] = o
	}
	return o.IsAdmin(accountID), nil
}

type memRoles struct{ s *MemoryStore }

func (m memRoles) FindInOrg(ctx context.Context, orgID, roleID string) (Role, error) {
	if !ValidID(roleID) {
		return Role{}, ErrInvalidID
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.roles[roleID]
	if !ok || r.OrgID != orgID {
		return Role{}, ErrNotFound
	}
	return cloneRole(r), nil
}

func (m memRoles) FindByIDsInOrg(ctx context.Context, orgID string, ids []string) ([]Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []Role{}
	for _, id := range ids {
		if r, ok := m.s.roles[id]; ok && r.OrgID == orgID {
			out = append(out, cloneRole(r))
		}
	}
	return out, nil
}

func (m memRoles) ListByOrg(ctx context.Context, orgID string) ([]Role, error) {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	out := []Role{}
	for _, r := range m.s.roles {
		if r.OrgID == orgID {
			out = append(out, cloneRole(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m memRoles) nameTaken(orgID, name, exceptID string) bool {
	for _, r := range m.s.roles {
		if r.OrgID == orgID && r.Name == name && r.ID != exceptID {
			return true
		}
	}
	return false
}

func (m memRoles) Create(ctx context.Context, r *Role) error {
	if r.ID == "" {
		r.ID = NewID()
	}
	if r.Permissions == nil {
		r.Permissions = []string{}
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if m.nameTaken(r.OrgID, r.Name, "") {
		return ErrConflict
	}
	m.s.roles[r.ID] = cloneRole(*r)
	return nil
}

func (m memRoles) Update(ctx context.Context, orgID, roleID string, upd RoleUpdate, now time.Time) (Role, error) {
	if !ValidID(roleID) {
		return Role{}, ErrInvalidID
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.roles[roleID]
	if !ok || r.OrgID != orgID {
		return Role{}, ErrNotFound
	}
	if upd.Name != nil {
		if m.nameTaken(orgID, *upd.Name, roleID) {
			return Role{}, ErrConflict
		}
		r.Name = *upd.Name
	}
	if upd.Permissions != nil {
		r.Permissions = append([]string{}, (*upd.Permissions)...)
	}
	r.UpdatedAt = now
	m.s.roles[roleID] = r
	return cloneRole(r), nil
}

func (m memRoles) Delete(ctx context.Context, orgID, roleID string) error {
	if !ValidID(roleID) {
		return ErrInvalidID
	}
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	r, ok := m.s.roles[roleID]
	if !ok || r.OrgID != orgID {
		return ErrNotFound
	}
	delete(m.s.roles, roleID)
	return nil
}
