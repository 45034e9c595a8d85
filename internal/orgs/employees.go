package orgs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lighthouse-crm/internal/audit"
	"lighthouse-crm/internal/directory"
)

// Employee is an account as seen from one organization.
type Employee struct {
	directory.Account
	IsAdmin bool `json:"isAdmin"`
}

type EmployeeInput struct {
	Email   string
	Name    string
	RoleIDs []string
}

func (s *Service) ListEmployees(ctx context.Context, orgID string) ([]Employee, error) {
	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		return nil, err
	}
	accts, err := s.accounts.ListByOrg(ctx, org.ID)
	if err != nil {
		return nil, err
	}
	out := make([]Employee, 0, len(accts))
	for _, a := range accts {
		out = append(out, Employee{Account: a, IsAdmin: org.IsAdmin(a.ID)})
	}
	return out, nil
}

// AddEmployee attaches the account with in.Email to orgID, creating a
// placeholder account for unknown addresses. Role ids outside the
// organization are dropped.
func (s *Service) AddEmployee(ctx context.Context, actorID, orgID string, in EmployeeInput) (Employee, error) {
	email := directory.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return Employee{}, fmt.Errorf("%w: a valid email is required", ErrInvalidInput)
	}
	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		return Employee{}, err
	}
	roleIDs, err := s.orgRoleIDs(ctx, org.ID, in.RoleIDs)
	if err != nil {
		return Employee{}, err
	}

	now := s.now()
	acct, err := s.accounts.FindByEmail(ctx, email)
	switch {
	case isNotFound(err):
		acct = directory.Account{
			ID:        directory.NewID(),
			Email:     email,
			Name:      strings.TrimSpace(in.Name),
			OrgIDs:    []string{org.ID},
			RoleIDs:   roleIDs,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if acct.Name == "" {
			acct.Name = email[:strings.Index(email, "@")]
		}
		err = s.accounts.Create(ctx, &acct)
		if errors.Is(err, directory.ErrConflict) {
			// Signed in concurrently; attach the account that won.
			if acct, err = s.accounts.FindByEmail(ctx, email); err != nil {
				return Employee{}, err
			}
			if acct, err = s.attach(ctx, acct, org.ID, roleIDs); err != nil {
				return Employee{}, err
			}
		} else if err != nil {
			return Employee{}, err
		}
	case err != nil:
		return Employee{}, err
	default:
		if acct.OrgIDs.Contains(org.ID) {
			return Employee{}, fmt.Errorf("%w: %s is already an employee", directory.ErrConflict, email)
		}
		if acct, err = s.attach(ctx, acct, org.ID, roleIDs); err != nil {
			return Employee{}, err
		}
	}

	s.cache.InvalidateAccount(ctx, acct.ID)
	s.activity.Record(ctx, audit.Event{
		OrgID:      org.ID,
		Type:       audit.EventEmployeeAdded,
		ActorID:    actorID,
		EntityType: "account",
		EntityID:   acct.ID,
		Summary:    "employee added: " + email,
	})
	return Employee{Account: acct, IsAdmin: org.IsAdmin(acct.ID)}, nil
}

func (s *Service) attach(ctx context.Context, acct directory.Account, orgID string, roleIDs []string) (directory.Account, error) {
	acct, err := s.accounts.AddMembership(ctx, acct.ID, orgID, s.now())
	if err != nil || len(roleIDs) == 0 {
		return acct, err
	}
	merged, err := s.mergeRoles(ctx, orgID, acct.RoleIDs, roleIDs)
	if err != nil {
		return directory.Account{}, err
	}
	return s.accounts.UpdateEmployee(ctx, acct.ID, directory.EmployeeUpdate{RoleIDs: &merged}, s.now())
}

type EmployeeUpdate struct {
	Name    *string
	RoleIDs *[]string
}

// UpdateEmployee edits the name and the organization's roles of a member.
// Roles the account holds in other organizations are left untouched.
func (s *Service) UpdateEmployee(ctx context.Context, actorID, orgID, accountID string, upd EmployeeUpdate) (Employee, error) {
	org, acct, err := s.member(ctx, orgID, accountID)
	if err != nil {
		return Employee{}, err
	}

	var edit directory.EmployeeUpdate
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return Employee{}, fmt.Errorf("%w: name cannot be empty", ErrInvalidInput)
		}
		edit.Name = &name
	}
	if upd.RoleIDs != nil {
		inOrg, err := s.orgRoleIDs(ctx, org.ID, *upd.RoleIDs)
		if err != nil {
			return Employee{}, err
		}
		merged, err := s.mergeRoles(ctx, org.ID, acct.RoleIDs, inOrg)
		if err != nil {
			return Employee{}, err
		}
		edit.RoleIDs = &merged
	}

	updated, err := s.accounts.UpdateEmployee(ctx, acct.ID, edit, s.now())
	if err != nil {
		return Employee{}, err
	}
	s.cache.InvalidateAccount(ctx, acct.ID)
	s.activity.Record(ctx, audit.Event{
		OrgID:      org.ID,
		Type:       audit.EventEmployeeUpdated,
		ActorID:    actorID,
		EntityType: "account",
		EntityID:   acct.ID,
		Summary:    "employee updated: " + acct.Email,
	})
	return Employee{Account: updated, IsAdmin: org.IsAdmin(updated.ID)}, nil
}

// RemoveEmployee detaches accountID from orgID and drops the organization's
// roles from it. Admin status is not touched.
func (s *Service) RemoveEmployee(ctx context.Context, actorID, orgID, accountID string) error {
	org, acct, err := s.member(ctx, orgID, accountID)
	if err != nil {
		return err
	}
	now := s.now()
	remaining, err := s.mergeRoles(ctx, org.ID, acct.RoleIDs, nil)
	if err != nil {
		return err
	}
	if len(remaining) != len(acct.RoleIDs) {
		if _, err := s.accounts.UpdateEmployee(ctx, acct.ID, directory.EmployeeUpdate{RoleIDs: &remaining}, now); err != nil {
			return err
		}
	}
	if _, err := s.accounts.RemoveMembership(ctx, acct.ID, org.ID, now); err != nil {
		return err
	}
	s.cache.InvalidateAccount(ctx, acct.ID)
	s.activity.Record(ctx, audit.Event{
		OrgID:      org.ID,
		Type:       audit.EventEmployeeRemoved,
		ActorID:    actorID,
		EntityType: "account",
		EntityID:   acct.ID,
		Summary:    "employee removed: " + acct.Email,
	})
	return nil
}

// member loads an account that belongs to orgID. Accounts of other
// organizations read as not found.
func (s *Service) member(ctx context.Context, orgID, accountID string) (directory.Organization, directory.Account, error) {
	org, err := s.orgs.FindByID(ctx, orgID)
	if err != nil {
		return directory.Organization{}, directory.Account{}, err
	}
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return directory.Organization{}, directory.Account{}, err
	}
	if !acct.OrgIDs.Contains(org.ID) {
		return directory.Organization{}, directory.Account{}, directory.ErrNotFound
	}
	return org, acct, nil
}

// orgRoleIDs keeps the ids among requested that name roles of orgID.
func (s *Service) orgRoleIDs(ctx context.Context, orgID string, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return []string{}, nil
	}
	roles, err := s.roles.FindByIDsInOrg(ctx, orgID, requested)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, r.ID)
	}
	return out, nil
}

// mergeRoles replaces the roles of orgID within current by next.
func (s *Service) mergeRoles(ctx context.Context, orgID string, current, next []string) ([]string, error) {
	orgRoles, err := s.roles.ListByOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	owned := make(map[string]struct{}, len(orgRoles))
	for _, r := range orgRoles {
		owned[r.ID] = struct{}{}
	}
	out := make([]string, 0, len(current)+len(next))
	seen := make(map[string]struct{}, len(current)+len(next))
	for _, id := range current {
		if _, ok := owned[id]; ok {
			continue
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	for _, id := range next {
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out, nil
}
