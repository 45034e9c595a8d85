package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/tenancy"
)

type accountDoc struct {
	ID          primitive.ObjectID `bson:"_id"`
	Email       string             `bson:"email"`
	Name        string             `bson:"name"`
	Picture     string             `bson:"picture,omitempty"`
	ExternalID  string             `bson:"externalId,omitempty"`
	OrgIDs      tenancy.OrgIDs     `bson:"orgId"`
	ActiveOrgID string             `bson:"activeOrgId,omitempty"`
	RoleIDs     []string           `bson:"roleIds"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
	LastSeenAt  time.Time          `bson:"lastSeenAt"`
}

func (d accountDoc) toDomain() directory.Account {
	return directory.Account{
		ID:          d.ID.Hex(),
		Email:       d.Email,
		Name:        d.Name,
		Picture:     d.Picture,
		ExternalID:  d.ExternalID,
		OrgIDs:      tenancy.NormalizeOrgIDs(d.OrgIDs),
		ActiveOrgID: d.ActiveOrgID,
		RoleIDs:     nonNil(d.RoleIDs),
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		LastSeenAt:  d.LastSeenAt,
	}
}

type accounts struct {
	c *mongo.Collection
}

func (s accounts) findOne(ctx context.Context, filter bson.D) (directory.Account, error) {
	var d accountDoc
	if err := s.c.FindOne(ctx, filter).Decode(&d); err != nil {
		return directory.Account{}, mapErr("find account", err)
	}
	return d.toDomain(), nil
}

func (s accounts) FindByID(ctx context.Context, id string) (directory.Account, error) {
	oid, err := objectID(id)
	if err != nil {
		return directory.Account{}, err
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s accounts) FindByEmail(ctx context.Context, email string) (directory.Account, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: directory.NormalizeEmail(email)}})
}

func (s accounts) Create(ctx context.Context, a *directory.Account) error {
	if a.ID == "" {
		a.ID = directory.NewID()
	}
	oid, err := objectID(a.ID)
	if err != nil {
		return err
	}
	a.Email = directory.NormalizeEmail(a.Email)
	a.OrgIDs = tenancy.NormalizeOrgIDs(a.OrgIDs)
	a.RoleIDs = nonNil(a.RoleIDs)
	d := accountDoc{
		ID:          oid,
		Email:       a.Email,
		Name:        a.Name,
		Picture:     a.Picture,
		ExternalID:  a.ExternalID,
		OrgIDs:      a.OrgIDs,
		ActiveOrgID: a.ActiveOrgID,
		RoleIDs:     a.RoleIDs,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
		LastSeenAt:  a.LastSeenAt,
	}
	_, err = s.c.InsertOne(ctx, d)
	return mapErr("insert account", err)
}

func (s accounts) update(ctx context.Context, id string, update any) (directory.Account, error) {
	oid, err := objectID(id)
	if err != nil {
		return directory.Account{}, err
	}
	var d accountDoc
	err = s.c.FindOneAndUpdate(ctx, bson.D{{Key: "_id", Value: oid}}, update, afterUpdate()).Decode(&d)
	if err != nil {
		return directory.Account{}, mapErr("update account", err)
	}
	return d.toDomain(), nil
}

func (s accounts) UpdateProfile(ctx context.Context, id string, upd directory.ProfileUpdate) (directory.Account, error) {
	set := bson.D{
		{Key: "lastSeenAt", Value: upd.SeenAt},
		{Key: "updatedAt", Value: upd.SeenAt},
	}
	if upd.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *upd.Name})
	}
	if upd.Picture != nil {
		set = append(set, bson.E{Key: "picture", Value: *upd.Picture})
	}
	if upd.ExternalID != nil {
		set = append(set, bson.E{Key: "externalId", Value: *upd.ExternalID})
	}
	return s.update(ctx, id, bson.D{{Key: "$set", Value: set}})
}

func (s accounts) UpdateEmployee(ctx context.Context, id string, upd directory.EmployeeUpdate, now time.Time) (directory.Account, error) {
	set := bson.D{{Key: "updatedAt", Value: now}}
	if upd.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *upd.Name})
	}
	if upd.RoleIDs != nil {
		set = append(set, bson.E{Key: "roleIds", Value: nonNil(*upd.RoleIDs)})
	}
	return s.update(ctx, id, bson.D{{Key: "$set", Value: set}})
}

// normalizedOrgIDs is the aggregation expression that reads the stored
// membership in any legacy shape as an array of hex strings: a bare string or
// ObjectID becomes a one-element array and ObjectID elements are converted.
func normalizedOrgIDs() bson.D {
	asArray := bson.D{{Key: "$switch", Value: bson.D{
		{Key: "branches", Value: bson.A{
			bson.D{
				{Key: "case", Value: bson.D{{Key: "$isArray", Value: bson.A{"$orgId"}}}},
				{Key: "then", Value: "$orgId"},
			},
			bson.D{
				{Key: "case", Value: bson.D{{Key: "$in", Value: bson.A{
					bson.D{{Key: "$type", Value: "$orgId"}},
					bson.A{"string", "objectId"},
				}}}},
				{Key: "then", Value: bson.A{"$orgId"}},
			},
		}},
		{Key: "default", Value: bson.A{}},
	}}}
	return bson.D{{Key: "$map", Value: bson.D{
		{Key: "input", Value: asArray},
		{Key: "as", Value: "o"},
		{Key: "in", Value: bson.D{{Key: "$cond", Value: bson.A{
			bson.D{{Key: "$eq", Value: bson.A{bson.D{{Key: "$type", Value: "$$o"}}, "objectId"}}},
			bson.D{{Key: "$toString", Value: "$$o"}},
			"$$o",
		}}}},
	}}}
}

// AddMembership appends orgID with a pipeline update so the change is atomic
// on the single document even when the stored field is a bare string.
func (s accounts) AddMembership(ctx context.Context, id, orgID string, now time.Time) (directory.Account, error) {
	lit := bson.D{{Key: "$literal", Value: orgID}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "orgId", Value: normalizedOrgIDs()}}}},
		{{Key: "$set", Value: bson.D{
			{Key: "orgId", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$in", Value: bson.A{lit, "$orgId"}}},
				"$orgId",
				bson.D{{Key: "$concatArrays", Value: bson.A{"$orgId", bson.A{lit}}}},
			}}}},
			{Key: "updatedAt", Value: now},
		}}},
	}
	return s.update(ctx, id, pipeline)
}

func (s accounts) RemoveMembership(ctx context.Context, id, orgID string, now time.Time) (directory.Account, error) {
	lit := bson.D{{Key: "$literal", Value: orgID}}
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{{Key: "orgId", Value: normalizedOrgIDs()}}}},
		{{Key: "$set", Value: bson.D{
			{Key: "orgId", Value: bson.D{{Key: "$filter", Value: bson.D{
				{Key: "input", Value: "$orgId"},
				{Key: "as", Value: "id"},
				{Key: "cond", Value: bson.D{{Key: "$ne", Value: bson.A{"$$id", lit}}}},
			}}}},
			{Key: "activeOrgId", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$activeOrgId", lit}}},
				"$$REMOVE",
				"$activeOrgId",
			}}}},
			{Key: "updatedAt", Value: now},
		}}},
	}
	return s.update(ctx, id, pipeline)
}

func (s accounts) SetActiveOrg(ctx context.Context, id, orgID string, now time.Time) (directory.Account, error) {
	return s.update(ctx, id, bson.D{{Key: "$set", Value: bson.D{
		{Key: "activeOrgId", Value: orgID},
		{Key: "updatedAt", Value: now},
	}}})
}

// ListByOrg matches the array form of orgId and the legacy scalar forms,
// including ids stored as ObjectIDs.
func (s accounts) ListByOrg(ctx context.Context, orgID string) ([]directory.Account, error) {
	cur, err := s.c.Find(ctx, orgIDFilter(orgID), options.Find().SetSort(bson.D{{Key: "email", Value: 1}}))
	if err != nil {
		return nil, mapErr("list accounts", err)
	}
	var docs []accountDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapErr("decode accounts", err)
	}
	out := make([]directory.Account, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain())
	}
	return out, nil
}

func orgIDFilter(orgID string) bson.D {
	if oid, err := primitive.ObjectIDFromHex(orgID); err == nil {
		return bson.D{{Key: "orgId", Value: bson.D{{Key: "$in", Value: bson.A{orgID, oid}}}}}
	}
	return bson.D{{Key: "orgId", Value: orgID}}
}
