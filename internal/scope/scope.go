// Package scope turns an authenticated subject into the tenant filter every
// data access must carry.
package scope

import (
	"errors"

	"go.mongodb.org/mongo-driver/bson"

	"lighthouse-crm/internal/tenancy"
)

// ErrMissingSubject is returned for a subject without an account id.
var ErrMissingSubject = errors.New("scope: subject has no account id")

// Subject is anything that can name an account and its memberships.
type Subject interface {
	SubjectID() string
	Membership() tenancy.Membership
}

// Options tunes BuildFilter. ActiveOrgID is an explicitly requested tenant.
type Options struct {
	IncludeOwner bool
	ActiveOrgID  string
}

// Filter is the exact store predicate for tenant-scoped records.
// OrgID is always set; OwnerID only for owner-restricted views.
type Filter struct {
	OrgID   string
	OwnerID string
}

// IDs is the (tenant, owner) pair stamped onto newly created records.
type IDs struct {
	OrgID   string
	OwnerID string
}

// BuildFilter resolves the tenant for subject and returns its filter.
// It fails with tenancy.ErrNoOrganization or tenancy.ErrNotAMember; there is
// no unscoped filter.
func BuildFilter(s Subject, opts Options) (Filter, error) {
	if s == nil || s.SubjectID() == "" {
		return Filter{}, ErrMissingSubject
	}
	orgID, err := tenancy.ResolveActiveOrg(s.Membership(), opts.ActiveOrgID)
	if err != nil {
		return Filter{}, err
	}
	f := Filter{OrgID: orgID}
	if opts.IncludeOwner {
		f.OwnerID = s.SubjectID()
	}
	return f, nil
}

// ExtractIDs returns the tenant and owner to stamp on a new record.
func ExtractIDs(s Subject, activeOrgID string) (IDs, error) {
	f, err := BuildFilter(s, Options{IncludeOwner: true, ActiveOrgID: activeOrgID})
	if err != nil {
		return IDs{}, err
	}
	return IDs{OrgID: f.OrgID, OwnerID: f.OwnerID}, nil
}

// BSON renders the filter for the document store.
func (f Filter) BSON() bson.D {
	d := bson.D{{Key: "orgId", Value: f.OrgID}}
	if f.OwnerID != "" {
		d = append(d, bson.E{Key: "ownerId", Value: f.OwnerID})
	}
	return d
}

// With returns the filter document extended with extra conditions. The tenant
// keys always win over anything in extra.
func (f Filter) With(extra bson.D) bson.D {
	d := f.BSON()
	for _, e := range extra {
		if e.Key == "orgId" || e.Key == "ownerId" {
			continue
		}
		d = append(d, e)
	}
	return d
}

// Matches reports whether a record with the given tenant and owner passes.
func (f Filter) Matches(orgID, ownerID string) bool {
	if f.OrgID == "" || orgID != f.OrgID {
		return false
	}
	return f.OwnerID == "" || ownerID == f.OwnerID
}

const (
	DefaultLimit = 100
	MaxLimit     = 500
)

// Page is a skip/limit window.
type Page struct {
	Skip  int
	Limit int
}

func (p Page) Normalize() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}
