package tenancy

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestNormalizeOrgIDs_Shapes(t *testing.T) {
	oid := primitive.NewObjectID()
	cases := []struct {
		name string
		raw  any
		want OrgIDs
	}{
		{"nil", nil, OrgIDs{}},
		{"empty string", "", OrgIDs{}},
		{"bare string", "o1", OrgIDs{"o1"}},
		{"list", []string{"o1", "o2"}, OrgIDs{"o1", "o2"}},
		{"duplicates", []any{"o1", "o1", "", "o2"}, OrgIDs{"o1", "o2"}},
		{"bson array", primitive.A{"o2", oid}, OrgIDs{"o2", oid.Hex()}},
		{"unknown type", 42, OrgIDs{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NormalizeOrgIDs(tc.raw)
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("got %#v want %#v", got, tc.want)
			}
			again := NormalizeOrgIDs(got)
			if !reflect.DeepEqual(again, got) {
				t.Fatalf("not idempotent: %#v -> %#v", got, again)
			}
		})
	}
}

func TestOrgIDs_BSONLegacyShapes(t *testing.T) {
	type doc struct {
		OrgID OrgIDs `bson:"orgId"`
	}
	raws := map[string]bson.M{
		"string": {"orgId": "o1"},
		"array":  {"orgId": bson.A{"o1"}},
	}
	for name, in := range raws {
		b, err := bson.Marshal(in)
		if err != nil {
			t.Fatalf("%s marshal: %v", name, err)
		}
		var d doc
		if err := bson.Unmarshal(b, &d); err != nil {
			t.Fatalf("%s unmarshal: %v", name, err)
		}
		if !reflect.DeepEqual(d.OrgID, OrgIDs{"o1"}) {
			t.Fatalf("%s: got %#v", name, d.OrgID)
		}
	}

	b, err := bson.Marshal(bson.M{"orgId": nil})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var d doc
	if err := bson.Unmarshal(b, &d); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if len(d.OrgID) != 0 {
		t.Fatalf("expected empty, got %#v", d.OrgID)
	}
}

func TestOrgIDs_EncodesAsArray(t *testing.T) {
	type doc struct {
		OrgID OrgIDs `bson:"orgId"`
	}
	b, err := bson.Marshal(doc{})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw bson.M
	if err := bson.Unmarshal(b, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["orgId"].(bson.A); !ok {
		t.Fatalf("expected array, got %T", raw["orgId"])
	}

	out, err := json.Marshal(struct {
		OrgIDs OrgIDs `json:"orgIds"`
	}{})
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	if string(out) != `{"orgIds":[]}` {
		t.Fatalf("got %s", out)
	}
}

func TestOrgIDs_JSONAcceptsString(t *testing.T) {
	var v struct {
		OrgIDs OrgIDs `json:"orgIds"`
	}
	if err := json.Unmarshal([]byte(`{"orgIds":"o1"}`), &v); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(v.OrgIDs, OrgIDs{"o1"}) {
		t.Fatalf("got %#v", v.OrgIDs)
	}
	if err := json.Unmarshal([]byte(`{"orgIds":7}`), &v); err == nil {
		t.Fatalf("expected error for number")
	}
}

func TestResolveActiveOrg(t *testing.T) {
	m := Membership{OrgIDs: OrgIDs{"o1", "o2"}, AdminOrgIDs: []string{"o3"}}

	cases := []struct {
		name      string
		m         Membership
		requested string
		want      string
		err       error
	}{
		{"first membership", m, "", "o1", nil},
		{"explicit member", m, "o2", "o2", nil},
		{"explicit admin only", m, "o3", "o3", nil},
		{"explicit outsider", m, "o9", "", ErrNotAMember},
		{"stored active", Membership{OrgIDs: OrgIDs{"o1", "o2"}, ActiveOrgID: "o2"}, "", "o2", nil},
		{"stale active", Membership{OrgIDs: OrgIDs{"o1"}, ActiveOrgID: "gone"}, "", "o1", nil},
		{"no org", Membership{OrgIDs: OrgIDs{}}, "", "", ErrNoOrganization},
		{"no org explicit", Membership{}, "o1", "", ErrNotAMember},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ResolveActiveOrg(tc.m, tc.requested)
			if !errors.Is(err, tc.err) {
				t.Fatalf("err=%v want %v", err, tc.err)
			}
			if got != tc.want {
				t.Fatalf("got %q want %q", got, tc.want)
			}
		})
	}
}

func TestResolveActiveOrg_NeverOutsideMembership(t *testing.T) {
	m := Membership{OrgIDs: OrgIDs{"a", "b"}, ActiveOrgID: "z", AdminOrgIDs: []string{"c"}}
	for _, req := range []string{"", "a", "b", "c", "d", "z"} {
		got, err := ResolveActiveOrg(m, req)
		if err != nil {
			continue
		}
		if !m.Allows(got) {
			t.Fatalf("requested %q resolved to %q outside membership", req, got)
		}
	}
}

func TestAddRemoveMembership(t *testing.T) {
	ids, changed := AddMembership(nil, "o1")
	if !changed || !reflect.DeepEqual(ids, OrgIDs{"o1"}) {
		t.Fatalf("add: %#v %v", ids, changed)
	}
	ids, changed = AddMembership(ids, "o1")
	if changed || len(ids) != 1 {
		t.Fatalf("add should be idempotent: %#v", ids)
	}
	ids, _ = AddMembership(ids, "o2")

	ids, active, changed := RemoveMembership(ids, "o1", "o1")
	if !changed || active != "" || !reflect.DeepEqual(ids, OrgIDs{"o2"}) {
		t.Fatalf("remove: %#v %q %v", ids, active, changed)
	}
	_, active, changed = RemoveMembership(ids, "o2", "o9")
	if changed || active != "o2" {
		t.Fatalf("remove absent: %q %v", active, changed)
	}
}

func TestMembership_Tenants(t *testing.T) {
	m := Membership{OrgIDs: OrgIDs{"o1"}, AdminOrgIDs: []string{"o1", "o2"}}
	if got := m.Tenants(); !reflect.DeepEqual(got, []string{"o1", "o2"}) {
		t.Fatalf("got %v", got)
	}
}
