// Package mongo stores the auth data in MongoDB, one collection per
// repository: users, roles, usertokens, settings and auditlogs.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/store"
)

const (
	colUsers    = "users"
	colRoles    = "roles"
	colTokens   = "usertokens"
	colSettings = "settings"
	colAudit    = "auditlogs"
)

type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// Connect dials uri and pings within timeout.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return &Store{client: client, db: client.Database(database)}, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error { return s.client.Ping(ctx, nil) }

// ApplyMigrations creates the indexes the invariants rely on. Creating an
// index that already exists with the same spec is a no-op on the server.
func (s *Store) ApplyMigrations() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{
			Keys:    bson.D{{Key: field, Value: 1}},
			Options: options.Index().SetUnique(true),
		}
	}

	plan := map[string][]mongo.IndexModel{
		colUsers:  {unique("usernameKey"), unique("emailKey")},
		colTokens: {unique("userId"), unique("tokenHash"), {Keys: bson.D{{Key: "expiresAt", Value: 1}}}},
		colAudit:  {{Keys: bson.D{{Key: "createdAt", Value: -1}}}},
	}
	for col, models := range plan {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("mongo: indexes on %s: %w", col, err)
		}
	}
	return nil
}

// Tx hands back a store over the same database. Standalone servers have no
// multi-document transactions, so Commit and Rollback do nothing; the
// invariants are held by unique indexes and upserts instead.
func (s *Store) Tx(context.Context) (store.Tx, error) { return &txStore{Store: s}, nil }

func (s *Store) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}
	return fn(tx)
}

func (s *Store) Users() store.Users {
	return &usersRepo{col: s.db.Collection(colUsers), tokens: s.db.Collection(colTokens)}
}
func (s *Store) Roles() store.Roles { return &rolesRepo{col: s.db.Collection(colRoles)} }
func (s *Store) RefreshTokens() store.RefreshTokens {
	return &refreshTokensRepo{col: s.db.Collection(colTokens)}
}
func (s *Store) Settings() store.Settings   { return &settingsRepo{col: s.db.Collection(colSettings)} }
func (s *Store) AuditLogs() store.AuditLogs { return &auditLogsRepo{col: s.db.Collection(colAudit)} }

type txStore struct {
	*Store
}

func (t *txStore) Commit() error   { return nil }
func (t *txStore) Rollback() error { return nil }

func (t *txStore) Tx(context.Context) (store.Tx, error) {
	return nil, errors.New("mongo: nested transactions not supported")
}

func (t *txStore) WithTx(context.Context, func(store.Tx) error) error {
	return errors.New("mongo: nested transactions not supported")
}

func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return store.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return store.ErrAlreadyExists
	default:
		return err
	}
}

func expectMatched(res *mongo.UpdateResult, err error) error {
	if err != nil {
		return mapErr(err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func expectDeleted(res *mongo.DeleteResult, err error) error {
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}
