// Package rbac decides whether an account may act within an organization.
// Admins hold every permission in the organizations they administer; members
// hold the permissions of their roles in that organization.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/metrics"
	"lighthouse-crm/internal/tenancy"
)

// Ticket permissions. Role records carry arbitrary strings; these are the ones
// the service checks.
const (
	PermReadTickets  = "read:tickets"
	PermWriteTickets = "write:tickets"
	PermAdminTickets = "admin:tickets"
)

var (
	TicketReaders = []string{PermReadTickets, PermWriteTickets, PermAdminTickets}
	TicketWriters = []string{PermWriteTickets, PermAdminTickets}
)

var (
	ErrMissingOrgID = errors.New("rbac: organization id required")
	ErrForbidden    = errors.New("rbac: forbidden")
)

type Mode int

const (
	ModeMember Mode = iota
	ModeAdmin
	ModePermission
)

func (m Mode) String() string {
	switch m {
	case ModeAdmin:
		return "admin"
	case ModePermission:
		return "permission"
	default:
		return "member"
	}
}

// Requirement is what an endpoint demands of its caller.
type Requirement struct {
	Mode        Mode
	Permissions []string
}

func Member() Requirement { return Requirement{Mode: ModeMember} }
func Admin() Requirement  { return Requirement{Mode: ModeAdmin} }

// Permission requires any one of perms.
func Permission(perms ...string) Requirement {
	return Requirement{Mode: ModePermission, Permissions: perms}
}

type Gate struct {
	orgs    directory.OrganizationStore
	roles   directory.RoleStore
	metrics *metrics.Metrics
}

func NewGate(store directory.Store, m *metrics.Metrics) *Gate {
	return &Gate{orgs: store.Organizations(), roles: store.Roles(), metrics: m}
}

// IsAdmin reads the organization's admin set. An unknown organization has no
// admins.
func (g *Gate) IsAdmin(ctx context.Context, accountID, orgID string) (bool, error) {
	if strings.TrimSpace(orgID) == "" {
		return false, ErrMissingOrgID
	}
	org, err := g.orgs.FindByID(ctx, orgID)
	if errors.Is(err, directory.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return org.IsAdmin(accountID), nil
}

func IsMember(m tenancy.Membership, orgID string) (bool, error) {
	if strings.TrimSpace(orgID) == "" {
		return false, ErrMissingOrgID
	}
	return m.IsMember(orgID), nil
}

// HasPermission reports whether acct is an admin of orgID, or a member holding
// a role of orgID that grants any of perms.
func (g *Gate) HasPermission(ctx context.Context, acct directory.Account, orgID string, perms ...string) (bool, error) {
	admin, err := g.IsAdmin(ctx, acct.ID, orgID)
	if err != nil || admin {
		return admin, err
	}
	if !acct.OrgIDs.Contains(orgID) || len(acct.RoleIDs) == 0 {
		return false, nil
	}
	roles, err := g.roles.FindByIDsInOrg(ctx, orgID, acct.RoleIDs)
	if err != nil {
		return false, err
	}
	for _, r := range roles {
		if r.OrgID == orgID && r.Grants(perms...) {
			return true, nil
		}
	}
	return false, nil
}

// Check applies req. A denial is ErrForbidden; other errors are malformed
// input or store failures.
func (g *Gate) Check(ctx context.Context, acct directory.Account, orgID string, req Requirement) error {
	var (
		ok  bool
		err error
	)
	switch req.Mode {
	case ModeAdmin:
		ok, err = g.IsAdmin(ctx, acct.ID, orgID)
	case ModePermission:
		ok, err = g.HasPermission(ctx, acct, orgID, req.Permissions...)
	default:
		ok, err = IsMember(acct.Membership(nil), orgID)
		if err == nil && !ok {
			ok, err = g.IsAdmin(ctx, acct.ID, orgID)
		}
	}
	if err != nil {
		return err
	}
	if !ok {
		g.metrics.IncAuthzDenial(req.Mode.String())
		return fmt.Errorf("%w: %s required", ErrForbidden, req.Mode)
	}
	return nil
}
