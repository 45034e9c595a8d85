package directory

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"lighthouse-crm/internal/tenancy"
)

// Account is a locally stored user, keyed by email.
type Account struct {
	ID          string         `json:"id"`
	Email       string         `json:"email"`
	Name        string         `json:"name"`
	Picture     string         `json:"picture,omitempty"`
	ExternalID  string         `json:"externalId,omitempty"`
	OrgIDs      tenancy.OrgIDs `json:"orgIds"`
	ActiveOrgID string         `json:"activeOrgId,omitempty"`
	RoleIDs     []string       `json:"roleIds"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
	LastSeenAt  time.Time      `json:"lastSeenAt"`
}

func (a Account) Membership(adminOrgIDs []string) tenancy.Membership {
	return tenancy.Membership{
		OrgIDs:      tenancy.NormalizeOrgIDs(a.OrgIDs),
		ActiveOrgID: a.ActiveOrgID,
		AdminOrgIDs: adminOrgIDs,
	}
}

// Organization is a tenant. Admins holds account ids.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	Admins    []string  `json:"admins"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (o Organization) IsAdmin(accountID string) bool {
	if accountID == "" {
		return false
	}
	for _, id := range o.Admins {
		if id == accountID {
			return true
		}
	}
	return false
}

// Role is a named permission set scoped to one organization.
type Role struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"orgId"`
	Name        string    `json:"name"`
	Permissions []string  `json:"permissions"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Grants reports whether the role carries any of perms.
func (r Role) Grants(perms ...string) bool {
	for _, have := range r.Permissions {
		for _, want := range perms {
			if have == want {
				return true
			}
		}
	}
	return false
}

// ProfileUpdate carries the fields a sign-in may refresh. Nil means unchanged.
type ProfileUpdate struct {
	Name       *string
	Picture    *string
	ExternalID *string
	SeenAt     time.Time
}

// EmployeeUpdate is an admin edit of another account.
type EmployeeUpdate struct {
	Name    *string
	RoleIDs *[]string
}

// RoleUpdate is a partial role edit.
type RoleUpdate struct {
	Name        *string
	Permissions *[]string
}

// NewID returns a fresh identifier in the store's native format.
func NewID() string {
	return primitive.NewObjectID().Hex()
}

// ValidID reports whether id has the store's identifier format.
func ValidID(id string) bool {
	return primitive.IsValidObjectID(id)
}

// NormalizeEmail is the canonical form used for account lookups.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EmailDomain returns the lowercased part after the last "@", or "" when the
// address is malformed.
func EmailDomain(email string) string {
	email = NormalizeEmail(email)
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	domain := email[at+1:]
	if !strings.Contains(domain, ".") || strings.ContainsAny(domain, " @") {
		return ""
	}
	return domain
}

// DomainFromName derives an organization domain from its display name.
func DomainFromName(name string) string {
	d := strings.ToLower(strings.TrimSpace(name))
	d = strings.ReplaceAll(d, " ", "-")
	return strings.ReplaceAll(d, "_", "-")
}
