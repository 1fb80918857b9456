package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
)

type auditDoc struct {
	ID        string    `bson:"_id"`
	User      string    `bson:"user"`
	Level     string    `bson:"level"`
	Message   string    `bson:"message"`
	CreatedAt time.Time `bson:"createdAt"`
}

type auditLogsRepo struct {
	col *mongo.Collection
}

func (r *auditLogsRepo) CreateAuditEntry(ctx context.Context, e domain.AuditEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := r.col.InsertOne(ctx, auditDoc{
		ID:        e.ID,
		User:      e.User,
		Level:     string(e.Level),
		Message:   e.Message,
		CreatedAt: e.CreatedAt.UTC(),
	})
	return mapErr(err)
}

func (r *auditLogsRepo) ListAuditEntries(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := r.col.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var docs []auditDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]domain.AuditEntry, len(docs))
	for i, d := range docs {
		out[i] = domain.AuditEntry{
			ID:        d.ID,
			User:      d.User,
			Level:     domain.AuditLevel(d.Level),
			Message:   d.Message,
			CreatedAt: d.CreatedAt,
		}
	}
	return out, nil
}

func (r *auditLogsRepo) DeleteAuditEntriesBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"createdAt": bson.M{"$lt": before.UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
