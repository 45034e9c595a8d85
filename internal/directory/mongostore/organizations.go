package mongostore

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lighthouse-crm/internal/directory"
)

type organizationDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	Name      string             `bson:"name"`
	Domain    string             `bson:"domain"`
	Admins    []string           `bson:"admins"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d organizationDoc) toDomain() directory.Organization {
	return directory.Organization{
		ID:        d.ID.Hex(),
		Name:      d.Name,
		Domain:    d.Domain,
		Admins:    nonNil(d.Admins),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

type organizations struct {
	c *mongo.Collection
}

func (s organizations) findOne(ctx context.Context, filter bson.D) (directory.Organization, error) {
	var d organizationDoc
	if err := s.c.FindOne(ctx, filter).Decode(&d); err != nil {
		return directory.Organization{}, mapErr("find organization", err)
	}
	return d.toDomain(), nil
}

func (s organizations) find(ctx context.Context, filter bson.D) ([]directory.Organization, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, mapErr("list organizations", err)
	}
	var docs []organizationDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapErr("decode organizations", err)
	}
	out := make([]directory.Organization, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s organizations) FindByID(ctx context.Context, id string) (directory.Organization, error) {
	oid, err := objectID(id)
	if err != nil {
		return directory.Organization{}, err
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s organizations) FindByDomain(ctx context.Context, domain string) (directory.Organization, error) {
	return s.findOne(ctx, bson.D{{Key: "domain", Value: strings.ToLower(strings.TrimSpace(domain))}})
}

func (s organizations) FindByIDs(ctx context.Context, ids []string) ([]directory.Organization, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return []directory.Organization{}, nil
	}
	return s.find(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}}})
}

func (s organizations) ListAdministeredBy(ctx context.Context, accountID string) ([]directory.Organization, error) {
	return s.find(ctx, bson.D{{Key: "admins", Value: accountID}})
}

func (s organizations) Create(ctx context.Context, o *directory.Organization) error {
	if o.ID == "" {
		o.ID = directory.NewID()
	}
	oid, err := objectID(o.ID)
	if err != nil {
		return err
	}
	o.Domain = strings.ToLower(strings.TrimSpace(o.Domain))
	o.Admins = nonNil(o.Admins)
	_, err = s.c.InsertOne(ctx, organizationDoc{
		ID:        oid,
		Name:      o.Name,
		Domain:    o.Domain,
		Admins:    o.Admins,
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	})
	return mapErr("insert organization", err)
}

func (s organizations) Rename(ctx context.Context, id, name string, now time.Time) (directory.Organization, error) {
	oid, err := objectID(id)
	if err != nil {
		return directory.Organization{}, err
	}
	var d organizationDoc
	err = s.c.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "name", Value: name}, {Key: "updatedAt", Value: now}}}},
		afterUpdate(),
	).Decode(&d)
	if err != nil {
		return directory.Organization{}, mapErr("rename organization", err)
	}
	return d.toDomain(), nil
}

// AddAdminIfNone is a single conditional update: it only matches while the
// admin list is empty (or missing), so concurrent first logins cannot both win.
func (s organizations) AddAdminIfNone(ctx context.Context, id, accountID string, now time.Time) (bool, error) {
	oid, err := objectID(id)
	if err != nil {
		return false, err
	}
	filter := bson.D{
		{Key: "_id", Value: oid},
		{Key: "$or", Value: bson.A{
			bson.D{{Key: "admins", Value: bson.D{{Key: "$exists", Value: false}}}},
			bson.D{{Key: "admins", Value: bson.D{{Key: "$size", Value: 0}}}},
		}},
	}
	res, err := s.c.UpdateOne(ctx, filter, bson.D{{Key: "$set", Value: bson.D{
		{Key: "admins", Value: bson.A{accountID}},
		{Key: "updatedAt", Value: now},
	}}})
	if err != nil {
		return false, mapErr("bootstrap admin", err)
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	org, err := s.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	return org.IsAdmin(accountID), nil
}
