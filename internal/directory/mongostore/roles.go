package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lighthouse-crm/internal/directory"
)

type roleDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	OrgID       string             `bson:"orgId"`
	Name        string             `bson:"name"`
	Permissions []string           `bson:"permissions"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

func (d roleDoc) toDomain() directory.Role {
	return directory.Role{
		ID:          d.ID.Hex(),
		OrgID:       d.OrgID,
		Name:        d.Name,
		Permissions: nonNil(d.Permissions),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

type roles struct {
	c *mongo.Collection
}

func (s roles) find(ctx context.Context, filter bson.D) ([]directory.Role, error) {
	cur, err := s.c.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, mapErr("list roles", err)
	}
	var docs []roleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapErr("decode roles", err)
	}
	out := make([]directory.Role, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func (s roles) FindInOrg(ctx context.Context, orgID, roleID string) (directory.Role, error) {
	oid, err := objectID(roleID)
	if err != nil {
		return directory.Role{}, err
	}
	var d roleDoc
	if err := s.c.FindOne(ctx, bson.D{{Key: "_id", Value: oid}, {Key: "orgId", Value: orgID}}).Decode(&d); err != nil {
		return directory.Role{}, mapErr("find role", err)
	}
	return d.toDomain(), nil
}

func (s roles) FindByIDsInOrg(ctx context.Context, orgID string, ids []string) ([]directory.Role, error) {
	oids := objectIDs(ids)
	if len(oids) == 0 {
		return []directory.Role{}, nil
	}
	return s.find(ctx, bson.D{
		{Key: "_id", Value: bson.D{{Key: "$in", Value: oids}}},
		{Key: "orgId", Value: orgID},
	})
}

func (s roles) ListByOrg(ctx context.Context, orgID string) ([]directory.Role, error) {
	return s.find(ctx, bson.D{{Key: "orgId", Value: orgID}})
}

func (s roles) Create(ctx context.Context, r *directory.Role) error {
	if r.ID == "" {
		r.ID = directory.NewID()
	}
	oid, err := objectID(r.ID)
	if err != nil {
		return err
	}
	r.Permissions = nonNil(r.Permissions)
	_, err = s.c.InsertOne(ctx, roleDoc{
		ID:          oid,
		OrgID:       r.OrgID,
		Name:        r.Name,
		Permissions: r.Permissions,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	})
	return mapErr("insert role", err)
}

func (s roles) Update(ctx context.Context, orgID, roleID string, upd directory.RoleUpdate, now time.Time) (directory.Role, error) {
	oid, err := objectID(roleID)
	if err != nil {
		return directory.Role{}, err
	}
	set := bson.D{{Key: "updatedAt", Value: now}}
	if upd.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *upd.Name})
	}
	if upd.Permissions != nil {
		set = append(set, bson.E{Key: "permissions", Value: nonNil(*upd.Permissions)})
	}
	var d roleDoc
	err = s.c.FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: oid}, {Key: "orgId", Value: orgID}},
		bson.D{{Key: "$set", Value: set}},
		afterUpdate(),
	).Decode(&d)
	if err != nil {
		return directory.Role{}, mapErr("update role", err)
	}
	return d.toDomain(), nil
}

func (s roles) Delete(ctx context.Context, orgID, roleID string) error {
	oid, err := objectID(roleID)
	if err != nil {
		return err
	}
	res, err := s.c.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}, {Key: "orgId", Value: orgID}})
	if err != nil {
		return mapErr("delete role", err)
	}
	if res.DeletedCount == 0 {
		return directory.ErrNotFound
	}
	return nil
}
