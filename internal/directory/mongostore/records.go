package mongostore

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/records"
	"lighthouse-crm/internal/scope"
)

type recordDoc struct {
	ID        primitive.ObjectID `bson:"_id"`
	OrgID     string             `bson:"orgId"`
	OwnerID   string             `bson:"ownerId,omitempty"`
	Name      string             `bson:"name"`
	Status    string             `bson:"status,omitempty"`
	Fields    bson.M             `bson:"fields,omitempty"`
	CreatedAt time.Time          `bson:"createdAt"`
	UpdatedAt time.Time          `bson:"updatedAt"`
}

func (d recordDoc) toDomain(kind records.Kind) records.Record {
	var fields map[string]any
	if len(d.Fields) > 0 {
		fields = make(map[string]any, len(d.Fields))
		for k, v := range d.Fields {
			fields[k] = v
		}
	}
	return records.Record{
		ID:        d.ID.Hex(),
		Kind:      kind,
		OrgID:     d.OrgID,
		OwnerID:   d.OwnerID,
		Name:      d.Name,
		Status:    d.Status,
		Fields:    fields,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
}

// recordStore keeps one collection per record kind. Every query starts from
// the scope filter.
type recordStore struct {
	db *mongo.Database
}

func (s recordStore) coll(kind records.Kind) *mongo.Collection {
	return s.db.Collection(string(kind))
}

func (s recordStore) byID(f scope.Filter, id string) (bson.D, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	return f.With(bson.D{{Key: "_id", Value: oid}}), nil
}

func (s recordStore) List(ctx context.Context, kind records.Kind, f scope.Filter, page scope.Page) ([]records.Record, error) {
	page = page.Normalize()
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(page.Skip)).
		SetLimit(int64(page.Limit))
	cur, err := s.coll(kind).Find(ctx, f.BSON(), opts)
	if err != nil {
		return nil, mapErr("list records", err)
	}
	var docs []recordDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, mapErr("decode records", err)
	}
	out := make([]records.Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toDomain(kind))
	}
	return out, nil
}

func (s recordStore) Get(ctx context.Context, kind records.Kind, f scope.Filter, id string) (records.Record, error) {
	filter, err := s.byID(f, id)
	if err != nil {
		return records.Record{}, err
	}
	var d recordDoc
	if err := s.coll(kind).FindOne(ctx, filter).Decode(&d); err != nil {
		return records.Record{}, mapErr("get record", err)
	}
	return d.toDomain(kind), nil
}

func (s recordStore) Insert(ctx context.Context, r *records.Record) error {
	if r.ID == "" {
		r.ID = directory.NewID()
	}
	oid, err := objectID(r.ID)
	if err != nil {
		return err
	}
	_, err = s.coll(r.Kind).InsertOne(ctx, recordDoc{
		ID:        oid,
		OrgID:     r.OrgID,
		OwnerID:   r.OwnerID,
		Name:      r.Name,
		Status:    r.Status,
		Fields:    bson.M(r.Fields),
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	})
	return mapErr("insert record", err)
}

func (s recordStore) Update(ctx context.Context, kind records.Kind, f scope.Filter, id string, p records.Patch, now time.Time) (records.Record, error) {
	filter, err := s.byID(f, id)
	if err != nil {
		return records.Record{}, err
	}
	set := bson.D{{Key: "updatedAt", Value: now}}
	if p.Name != nil {
		set = append(set, bson.E{Key: "name", Value: *p.Name})
	}
	if p.Status != nil {
		set = append(set, bson.E{Key: "status", Value: *p.Status})
	}
	for k, v := range p.Fields {
		set = append(set, bson.E{Key: "fields." + k, Value: v})
	}
	var d recordDoc
	err = s.coll(kind).FindOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: set}}, afterUpdate()).Decode(&d)
	if err != nil {
		return records.Record{}, mapErr("update record", err)
	}
	return d.toDomain(kind), nil
}

func (s recordStore) Delete(ctx context.Context, kind records.Kind, f scope.Filter, id string) error {
	filter, err := s.byID(f, id)
	if err != nil {
		return err
	}
	res, err := s.coll(kind).DeleteOne(ctx, filter)
	if err != nil {
		return mapErr("delete record", err)
	}
	if res.DeletedCount == 0 {
		return directory.ErrNotFound
	}
	return nil
}
