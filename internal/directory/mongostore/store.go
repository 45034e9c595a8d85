// Package mongostore implements the directory and record stores on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"lighthouse-crm/internal/directory"
	"lighthouse-crm/internal/records"
)

const (
	usersCollection = "users"
	orgsCollection  = "organizations"
	rolesCollection = "roles"
)

// Store is a directory.Store backed by one Mongo database.
type Store struct {
	db *mongo.Database
}

func New(db *mongo.Database) *Store { return &Store{db: db} }

func (s *Store) Accounts() directory.AccountStore {
	return accounts{c: s.db.Collection(usersCollection)}
}

func (s *Store) Organizations() directory.OrganizationStore {
	return organizations{c: s.db.Collection(orgsCollection)}
}

func (s *Store) Roles() directory.RoleStore {
	return roles{c: s.db.Collection(rolesCollection)}
}

// Records returns the tenant-scoped CRM record store on the same database.
func (s *Store) Records() records.Store {
	return recordStore{db: s.db}
}

// EnsureIndexes creates the unique indexes the directory relies on for
// race-free provisioning, plus the tenant indexes on record collections.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	specs := map[string][]mongo.IndexModel{
		usersCollection: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "orgId", Value: 1}}},
		},
		orgsCollection: {
			{Keys: bson.D{{Key: "domain", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "admins", Value: 1}}},
		},
		rolesCollection: {
			{Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "name", Value: 1}}, Options: unique},
		},
	}
	for _, k := range records.Kinds {
		specs[string(k)] = []mongo.IndexModel{
			{Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "orgId", Value: 1}, {Key: "ownerId", Value: 1}}},
		}
	}
	for coll, models := range specs {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongostore: indexes on %s: %w", coll, err)
		}
	}
	return nil
}

func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, directory.ErrInvalidID
	}
	return oid, nil
}

// objectIDs converts ids, skipping malformed ones.
func objectIDs(ids []string) []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if oid, err := primitive.ObjectIDFromHex(id); err == nil {
			out = append(out, oid)
		}
	}
	return out
}

func mapErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return directory.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return directory.ErrConflict
	default:
		return fmt.Errorf("mongostore: %s: %w", op, err)
	}
}

func afterUpdate() *options.FindOneAndUpdateOptions {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
