package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
)

type settingDoc struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

type settingsRepo struct {
	col *mongo.Collection
}

func (r *settingsRepo) GetSetting(ctx context.Context, key string) (domain.Setting, error) {
	var d settingDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": key}).Decode(&d); err != nil {
		return domain.Setting{}, mapErr(err)
	}
	return domain.Setting(d), nil
}

func (r *settingsRepo) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []settingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Setting, len(docs))
	for i, d := range docs {
		out[i] = domain.Setting(d)
	}
	return out, nil
}

func (r *settingsRepo) PutSetting(ctx context.Context, s domain.Setting) error {
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now()
	}
	_, err := r.col.UpdateByID(ctx, s.Key,
		bson.M{"$set": bson.M{"value": s.Value, "updatedAt": s.UpdatedAt.UTC()}},
		options.Update().SetUpsert(true),
	)
	return mapErr(err)
}
