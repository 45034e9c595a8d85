package directory

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound  = errors.New("directory: not found")
	ErrConflict  = errors.New("directory: already exists")
	ErrInvalidID = errors.New("directory: invalid id format")
)

// AccountStore persists accounts. Membership changes are single-document
// atomic operations and tolerate the legacy string form of the stored list.
type AccountStore interface {
	FindByID(ctx context.Context, id string) (Account, error)
	FindByEmail(ctx context.Context, email string) (Account, error)
	// Create fails with ErrConflict when the email is taken.
	Create(ctx context.Context, a *Account) error
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (Account, error)
	UpdateEmployee(ctx context.Context, id string, upd EmployeeUpdate, now time.Time) (Account, error)
	AddMembership(ctx context.Context, id, orgID string, now time.Time) (Account, error)
	// RemoveMembership also clears the active organization when it was orgID.
	RemoveMembership(ctx context.Context, id, orgID string, now time.Time) (Account, error)
	SetActiveOrg(ctx context.Context, id, orgID string, now time.Time) (Account, error)
	ListByOrg(ctx context.Context, orgID string) ([]Account, error)
}

type OrganizationStore interface {
	FindByID(ctx context.Context, id string) (Organization, error)
	FindByDomain(ctx context.Context, domain string) (Organization, error)
	FindByIDs(ctx context.Context, ids []string) ([]Organization, error)
	ListAdministeredBy(ctx context.Context, accountID string) ([]Organization, error)
	// Create fails with ErrConflict when the domain is taken.
	Create(ctx context.Context, o *Organization) error
	Rename(ctx context.Context, id, name string, now time.Time) (Organization, error)
	// AddAdminIfNone makes accountID the admin only while the admin list is
	// empty. It reports whether accountID is an admin afterwards.
	AddAdminIfNone(ctx context.Context, id, accountID string, now time.Time) (bool, error)
}

type RoleStore interface {
	FindInOrg(ctx context.Context, orgID, roleID string) (Role, error)
	// FindByIDsInOrg returns the roles among ids that belong to orgID.
	// Malformed ids are skipped.
	FindByIDsInOrg(ctx context.Context, orgID string, ids []string) ([]Role, error)
	ListByOrg(ctx context.Context, orgID string) ([]Role, error)
	// Create fails with ErrConflict when the name is taken within the org.
	Create(ctx context.Context, r *Role) error
	Update(ctx context.Context, orgID, roleID string, upd RoleUpdate, now time.Time) (Role, error)
	Delete(ctx context.Context, orgID, roleID string) error
}

// Store groups the three collections.
type Store interface {
	Accounts() AccountStore
	Organizations() OrganizationStore
	Roles() RoleStore
}
