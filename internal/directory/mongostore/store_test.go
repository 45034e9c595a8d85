package mongostore

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/records"
	"lighthouse-crm/internal/scope"
	"lighthouse-crm/internal/tenancy"
)

func TestAccounts_LegacyStringOrgID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("string orgId decodes as list", func(mt *mtest.T) {
		oid := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "crm.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: oid},
			{Key: "email", Value: "alice@example.com"},
			{Key: "orgId", Value: "o1"},
		}))

		a, err := New(mt.DB).Accounts().FindByID(context.Background(), oid.Hex())
		if err != nil {
			t.Fatalf("FindByID: %v", err)
		}
		if !reflect.DeepEqual(a.OrgIDs, tenancy.OrgIDs{"o1"}) {
			t.Fatalf("orgIds: %#v", a.OrgIDs)
		}
		if a.RoleIDs == nil {
			t.Fatalf("roleIds should be empty, not nil")
		}
	})

	mt.Run("missing account", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "crm.users", mtest.FirstBatch))
		_, err := New(mt.DB).Accounts().FindByEmail(context.Background(), "nobody@example.com")
		if !errors.Is(err, directory.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	mt.Run("invalid id", func(mt *mtest.T) {
		_, err := New(mt.DB).Accounts().FindByID(context.Background(), "xyz")
		if !errors.Is(err, directory.ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
	})
}

func TestAccounts_CreateDuplicateEmail(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("duplicate key maps to conflict", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "E11000 duplicate key error",
		}))
		err := New(mt.DB).Accounts().Create(context.Background(), &directory.Account{Email: "Alice@Example.com"})
		if !errors.Is(err, directory.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})
}

func TestAccounts_AddMembershipUsesPipeline(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("pipeline update", func(mt *mtest.T) {
		oid := primitive.NewObjectID()
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: bson.D{
				{Key: "_id", Value: oid},
				{Key: "email", Value: "carol@x.io"},
				{Key: "orgId", Value: bson.A{"o1", "o2"}},
			}},
		})

		a, err := New(mt.DB).Accounts().AddMembership(context.Background(), oid.Hex(), "o2", time.Now())
		if err != nil {
			t.Fatalf("AddMembership: %v", err)
		}
		if !reflect.DeepEqual(a.OrgIDs, tenancy.OrgIDs{"o1", "o2"}) {
			t.Fatalf("orgIds: %#v", a.OrgIDs)
		}

		evt := mt.GetStartedEvent()
		if evt == nil || evt.CommandName != "findAndModify" {
			t.Fatalf("expected findAndModify, got %+v", evt)
		}
		if typ := evt.Command.Lookup("update").Type; typ != bsontype.Array {
			t.Fatalf("expected pipeline update, got %s", typ)
		}
	})
}

func TestAccounts_LegacyObjectIDOrgID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("remove membership normalizes objectId", func(mt *mtest.T) {
		oid := primitive.NewObjectID()
		mt.AddMockResponses(bson.D{
			{Key: "ok", Value: 1},
			{Key: "value", Value: bson.D{
				{Key: "_id", Value: oid},
				{Key: "email", Value: "carol@x.io"},
				{Key: "orgId", Value: bson.A{"o1"}},
			}},
		})

		if _, err := New(mt.DB).Accounts().RemoveMembership(context.Background(), oid.Hex(), "o2", time.Now()); err != nil {
			t.Fatalf("RemoveMembership: %v", err)
		}

		evt := mt.GetStartedEvent()
		if evt == nil || evt.CommandName != "findAndModify" {
			t.Fatalf("expected findAndModify, got %+v", evt)
		}
		norm := evt.Command.Lookup("update", "0", "$set", "orgId", "$map")
		if norm.Type != bsontype.EmbeddedDocument {
			t.Fatalf("orgId not mapped to strings: %s", evt.Command)
		}
		scalars, err := norm.Document().Lookup("input", "$switch", "branches", "1", "case", "$in", "1").Array().Values()
		if err != nil {
			t.Fatalf("scalar branch: %v", err)
		}
		var types []string
		for _, v := range scalars {
			types = append(types, v.StringValue())
		}
		if !reflect.DeepEqual(types, []string{"string", "objectId"}) {
			t.Fatalf("scalar types: %v", types)
		}
		if conv := norm.Document().Lookup("in", "$cond", "1", "$toString"); conv.StringValue() != "$$o" {
			t.Fatalf("objectId elements not converted: %s", norm)
		}
	})

	mt.Run("list by org matches objectId form", func(mt *mtest.T) {
		org := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "crm.users", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: primitive.NewObjectID()},
			{Key: "email", Value: "legacy@x.io"},
			{Key: "orgId", Value: org},
		}))

		got, err := New(mt.DB).Accounts().ListByOrg(context.Background(), org.Hex())
		if err != nil {
			t.Fatalf("ListByOrg: %v", err)
		}
		if len(got) != 1 || !reflect.DeepEqual(got[0].OrgIDs, tenancy.OrgIDs{org.Hex()}) {
			t.Fatalf("accounts: %+v", got)
		}

		evt := mt.GetStartedEvent()
		if evt == nil {
			t.Fatalf("no command captured")
		}
		values, err := evt.Command.Lookup("filter", "orgId", "$in").Array().Values()
		if err != nil || len(values) != 2 {
			t.Fatalf("filter: %s", evt.Command)
		}
		if values[0].StringValue() != org.Hex() || values[1].ObjectID() != org {
			t.Fatalf("filter values: %v", values)
		}
	})
}

func TestOrganizations_AddAdminIfNone(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	orgID := primitive.NewObjectID()
	first, second := primitive.NewObjectID().Hex(), primitive.NewObjectID().Hex()

	mt.Run("empty admin list", func(mt *mtest.T) {
		mt.AddMockResponses(bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 1}, {Key: "nModified", Value: 1}})
		ok, err := New(mt.DB).Organizations().AddAdminIfNone(context.Background(), orgID.Hex(), first, time.Now())
		if err != nil || !ok {
			t.Fatalf("expected admin, got %v %v", ok, err)
		}
	})

	mt.Run("admin already present", func(mt *mtest.T) {
		mt.AddMockResponses(
			bson.D{{Key: "ok", Value: 1}, {Key: "n", Value: 0}, {Key: "nModified", Value: 0}},
			mtest.CreateCursorResponse(0, "crm.organizations", mtest.FirstBatch, bson.D{
				{Key: "_id", Value: orgID},
				{Key: "domain", Value: "acme.com"},
				{Key: "admins", Value: bson.A{first}},
			}),
		)
		ok, err := New(mt.DB).Organizations().AddAdminIfNone(context.Background(), orgID.Hex(), second, time.Now())
		if err != nil || ok {
			t.Fatalf("second account must not become admin: %v %v", ok, err)
		}
	})
}

func TestRoles_FindByIDsInOrgSkipsMalformed(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("only malformed ids", func(mt *mtest.T) {
		got, err := New(mt.DB).Roles().FindByIDsInOrg(context.Background(), "o1", []string{"junk"})
		if err != nil || len(got) != 0 {
			t.Fatalf("expected empty result without a query, got %v %v", got, err)
		}
	})

	mt.Run("scoped find", func(mt *mtest.T) {
		rid := primitive.NewObjectID()
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "crm.roles", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: rid},
			{Key: "orgId", Value: "o1"},
			{Key: "name", Value: "Support"},
			{Key: "permissions", Value: bson.A{"read:tickets"}},
		}))
		got, err := New(mt.DB).Roles().FindByIDsInOrg(context.Background(), "o1", []string{rid.Hex(), "junk"})
		if err != nil {
			t.Fatalf("FindByIDsInOrg: %v", err)
		}
		if len(got) != 1 || !got[0].Grants("read:tickets") {
			t.Fatalf("roles: %+v", got)
		}
	})
}

func TestRecords_GetAppliesScope(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("cross-tenant get is not found", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCursorResponse(0, "crm.leads", mtest.FirstBatch))
		id := primitive.NewObjectID().Hex()
		_, err := New(mt.DB).Records().Get(context.Background(), records.KindLeads, scope.Filter{OrgID: "o2"}, id)
		if !errors.Is(err, directory.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}

		evt := mt.GetStartedEvent()
		if evt == nil {
			t.Fatalf("no command captured")
		}
		filter, ok := evt.Command.Lookup("filter").DocumentOK()
		if !ok {
			t.Fatalf("find without filter")
		}
		if org, _ := filter.Lookup("orgId").StringValueOK(); org != "o2" {
			t.Fatalf("filter missing tenant: %s", filter)
		}
	})
}
