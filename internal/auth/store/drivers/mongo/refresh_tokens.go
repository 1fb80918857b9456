package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
)

type tokenDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	TokenHash string    `bson:"tokenHash"`
	CreatedAt time.Time `bson:"createdAt"`
	ExpiresAt time.Time `bson:"expiresAt"`
}

type refreshTokensRepo struct {
	col *mongo.Collection
}

// CreateRefreshToken replaces whatever record the user had, so concurrent
// issues leave exactly one document and the last writer wins. Two racing
// upserts can both miss and collide on the userId index; the loser retries
// once as a plain replace.
func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	filter := bson.M{"userId": t.UserID}
	// _id is immutable on replace, so the record keeps its first id.
	doc := bson.M{
		"userId":    t.UserID,
		"tokenHash": t.TokenHash,
		"createdAt": t.CreatedAt.UTC(),
		"expiresAt": t.ExpiresAt.UTC(),
	}
	update := bson.M{"$set": doc, "$setOnInsert": bson.M{"_id": t.ID}}
	opts := options.Update().SetUpsert(true)

	_, err := r.col.UpdateOne(ctx, filter, update, opts)
	if mongo.IsDuplicateKeyError(err) {
		_, err = r.col.UpdateOne(ctx, filter, update, opts)
	}
	return mapErr(err)
}

func (r *refreshTokensRepo) GetRefreshTokenByHash(ctx context.Context, hash string) (domain.RefreshToken, error) {
	var d tokenDoc
	if err := r.col.FindOne(ctx, bson.M{"tokenHash": hash}).Decode(&d); err != nil {
		return domain.RefreshToken{}, mapErr(err)
	}
	return domain.RefreshToken(d), nil
}

func (r *refreshTokensRepo) DeleteUserRefreshTokens(ctx context.Context, userID string) error {
	_, err := r.col.DeleteMany(ctx, bson.M{"userId": userID})
	return err
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.col.DeleteMany(ctx, bson.M{"expiresAt": bson.M{"$lte": now.UTC()}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (r *refreshTokensRepo) CountUserRefreshTokens(ctx context.Context, userID string) (int, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"userId": userID})
	return int(n), err
}
