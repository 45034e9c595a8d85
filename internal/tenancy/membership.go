package tenancy

import (
	"errors"
	"strings"
)

var (
	// ErrNoOrganization means the account belongs to no organization yet.
	ErrNoOrganization = errors.New("tenancy: account has no organization; create or join an organization first")
	// ErrNotAMember means an explicitly requested organization is outside the
	// account's memberships and administered organizations.
	ErrNotAMember = errors.New("tenancy: not a member of organization")
)

// Membership is the tenancy view of one account.
type Membership struct {
	OrgIDs      OrgIDs
	ActiveOrgID string
	AdminOrgIDs []string
}

func (m Membership) IsMember(orgID string) bool {
	return orgID != "" && m.OrgIDs.Contains(orgID)
}

func (m Membership) Administers(orgID string) bool {
	if orgID == "" {
		return false
	}
	for _, id := range m.AdminOrgIDs {
		if id == orgID {
			return true
		}
	}
	return false
}

// Allows reports whether orgID may become the active tenant: the account is a
// member of it or one of its admins.
func (m Membership) Allows(orgID string) bool {
	return m.IsMember(orgID) || m.Administers(orgID)
}

// Tenants returns memberships followed by administered organizations that are
// not also memberships.
func (m Membership) Tenants() []string {
	out := append([]string{}, m.OrgIDs...)
	for _, id := range m.AdminOrgIDs {
		if id != "" && !OrgIDs(out).Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// ResolveActiveOrg picks the organization a request operates in.
//
// An explicit request wins when allowed and fails with ErrNotAMember otherwise;
// it never silently falls back. Without one, the stored active organization is
// used while it is still allowed, then the first membership. An account with no
// memberships gets ErrNoOrganization.
func ResolveActiveOrg(m Membership, requested string) (string, error) {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		if !m.Allows(requested) {
			return "", ErrNotAMember
		}
		return requested, nil
	}
	if m.ActiveOrgID != "" && m.Allows(m.ActiveOrgID) {
		return m.ActiveOrgID, nil
	}
	if first := m.OrgIDs.First(); first != "" {
		return first, nil
	}
	return "", ErrNoOrganization
}

// AddMembership appends orgID when absent. The second result reports whether
// the list changed.
func AddMembership(ids OrgIDs, orgID string) (OrgIDs, bool) {
	ids = NormalizeOrgIDs(ids)
	orgID = strings.TrimSpace(orgID)
	if orgID == "" || ids.Contains(orgID) {
		return ids, false
	}
	return append(ids, orgID), true
}

// RemoveMembership drops orgID from ids and clears active when it pointed at
// the removed organization.
func RemoveMembership(ids OrgIDs, active, orgID string) (OrgIDs, string, bool) {
	ids = NormalizeOrgIDs(ids)
	out := OrgIDs{}
	for _, id := range ids {
		if id != orgID {
			out = append(out, id)
		}
	}
	if active == orgID {
		active = ""
	}
	return out, active, len(out) != len(ids)
}
