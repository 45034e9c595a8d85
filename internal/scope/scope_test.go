package scope

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/bson"

	"lighthouse-crm/internal/tenancy"
)

type subject struct {
	id string
	m  tenancy.Membership
}

func (s subject) SubjectID() string              { return s.id }
func (s subject) Membership() tenancy.Membership { return s.m }

func TestBuildFilter(t *testing.T) {
	u := subject{id: "u1", m: tenancy.Membership{OrgIDs: tenancy.OrgIDs{"o1", "o2"}}}

	f, err := BuildFilter(u, Options{})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if f != (Filter{OrgID: "o1"}) {
		t.Fatalf("got %+v", f)
	}

	f, err = BuildFilter(u, Options{IncludeOwner: true, ActiveOrgID: "o2"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if f != (Filter{OrgID: "o2", OwnerID: "u1"}) {
		t.Fatalf("got %+v", f)
	}

	if _, err := BuildFilter(u, Options{ActiveOrgID: "o3"}); !errors.Is(err, tenancy.ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}

	lonely := subject{id: "u2", m: tenancy.Membership{OrgIDs: tenancy.OrgIDs{}}}
	if _, err := BuildFilter(lonely, Options{}); !errors.Is(err, tenancy.ErrNoOrganization) {
		t.Fatalf("expected ErrNoOrganization, got %v", err)
	}
	if _, err := BuildFilter(subject{}, Options{}); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestExtractIDs(t *testing.T) {
	u := subject{id: "u1", m: tenancy.Membership{OrgIDs: tenancy.OrgIDs{"o1"}, ActiveOrgID: "o1"}}
	ids, err := ExtractIDs(u, "")
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if ids != (IDs{OrgID: "o1", OwnerID: "u1"}) {
		t.Fatalf("got %+v", ids)
	}
}

func TestFilter_BSONAndWith(t *testing.T) {
	f := Filter{OrgID: "o1", OwnerID: "u1"}
	want := bson.D{{Key: "orgId", Value: "o1"}, {Key: "ownerId", Value: "u1"}}
	if got := f.BSON(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v", got)
	}

	d := Filter{OrgID: "o1"}.With(bson.D{{Key: "orgId", Value: "evil"}, {Key: "status", Value: "open"}})
	if len(d) != 2 || d[0].Value != "o1" || d[1].Key != "status" {
		t.Fatalf("tenant key overridden: %v", d)
	}
}

func TestFilter_Matches(t *testing.T) {
	f := Filter{OrgID: "o1"}
	if !f.Matches("o1", "anyone") || f.Matches("o2", "anyone") {
		t.Fatalf("org match wrong")
	}
	owned := Filter{OrgID: "o1", OwnerID: "u1"}
	if owned.Matches("o1", "u2") || !owned.Matches("o1", "u1") {
		t.Fatalf("owner match wrong")
	}
	if (Filter{}).Matches("", "") {
		t.Fatalf("empty filter must match nothing")
	}
}

func TestPage_Normalize(t *testing.T) {
	if p := (Page{Skip: -3}).Normalize(); p.Skip != 0 || p.Limit != DefaultLimit {
		t.Fatalf("got %+v", p)
	}
	if p := (Page{Limit: 10000}).Normalize(); p.Limit != MaxLimit {
		t.Fatalf("got %+v", p)
	}
}
