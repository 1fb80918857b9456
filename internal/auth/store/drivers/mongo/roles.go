package mongo

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
)

// Role names are the document id.
type roleDoc struct {
	Name        string    `bson:"_id"`
	Description string    `bson:"description"`
	CreatedAt   time.Time `bson:"createdAt"`
}

type rolesRepo struct {
	col *mongo.Collection
}

func (r *rolesRepo) GetRoleByName(ctx context.Context, name string) (domain.Role, error) {
	var d roleDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": name}).Decode(&d); err != nil {
		return domain.Role{}, mapErr(err)
	}
	return domain.Role(d), nil
}

func (r *rolesRepo) ListRoles(ctx context.Context) ([]domain.Role, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []roleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.Role, len(docs))
	for i, d := range docs {
		out[i] = domain.Role(d)
	}
	return out, nil
}

func (r *rolesRepo) CreateRole(ctx context.Context, role domain.Role) error {
	if role.CreatedAt.IsZero() {
		role.CreatedAt = time.Now()
	}
	role.CreatedAt = role.CreatedAt.UTC()
	_, err := r.col.InsertOne(ctx, roleDoc(role))
	return mapErr(err)
}

func (r *rolesRepo) DeleteRole(ctx context.Context, name string) error {
	return expectDeleted(r.col.DeleteOne(ctx, bson.M{"_id": name}))
}

func (r *rolesRepo) IsEmpty(ctx context.Context) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{}, options.Count().SetLimit(1))
	return n == 0, err
}
