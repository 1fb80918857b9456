package mongo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aussiebroadwan/tenantadmin/internal/auth/domain"
)

// userDoc uses camelCase field names. usernameKey and emailKey are
// lowercased copies carrying the unique indexes.
type userDoc struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	Username      string    `bson:"username"`
	UsernameKey   string    `bson:"usernameKey"`
	Email         string    `bson:"email"`
	EmailKey      string    `bson:"emailKey"`
	Password      string    `bson:"password"`
	Roles         []string  `bson:"roles"`
	EmailVerified bool      `bson:"emailVerified"`
	AccountLocked bool      `bson:"accountLocked"`
	LDAPEnabled   bool      `bson:"ldapEnabled"`
	MFAState      string    `bson:"mfaState"`
	MFAEnforced   bool      `bson:"mfaEnforced"`
	MFAToken      string    `bson:"mfaToken"`
	MFALastStep   int64     `bson:"mfaLastStep"`
	MFAAccepted   int64     `bson:"mfaAcceptedStep"`
	CreatedAt     time.Time `bson:"createdAt"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

func toUserDoc(u domain.User) userDoc {
	return userDoc{
		ID:            u.ID,
		Name:          u.Name,
		Username:      u.Username,
		UsernameKey:   strings.ToLower(u.Username),
		Email:         u.Email,
		EmailKey:      strings.ToLower(u.Email),
		Password:      u.PasswordHash,
		Roles:         domain.NormalizeRoles(u.Roles),
		EmailVerified: u.EmailVerified,
		AccountLocked: u.AccountLocked,
		LDAPEnabled:   u.LDAPEnabled,
		MFAState:      string(u.MFAState),
		MFAEnforced:   u.MFAEnforced,
		MFAToken:      u.MFASecret,
		MFALastStep:   u.MFALastStep,
		MFAAccepted:   u.MFAAcceptedStep,
		CreatedAt:     u.CreatedAt.UTC(),
		UpdatedAt:     u.UpdatedAt.UTC(),
	}
}

func (d userDoc) toDomain() (domain.User, error) {
	state, err := domain.ParseMFAState(d.MFAState)
	if err != nil {
		return domain.User{}, fmt.Errorf("mongo: user %s: %w", d.ID, err)
	}
	return domain.User{
		ID:              d.ID,
		Name:            d.Name,
		Username:        d.Username,
		Email:           d.Email,
		PasswordHash:    d.Password,
		Roles:           domain.NormalizeRoles(d.Roles),
		EmailVerified:   d.EmailVerified,
		AccountLocked:   d.AccountLocked,
		LDAPEnabled:     d.LDAPEnabled,
		MFAState:        state,
		MFAEnforced:     d.MFAEnforced,
		MFASecret:       d.MFAToken,
		MFALastStep:     d.MFALastStep,
		MFAAcceptedStep: d.MFAAccepted,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

type usersRepo struct {
	col    *mongo.Collection
	tokens *mongo.Collection
}

func (r *usersRepo) findOne(ctx context.Context, filter bson.M) (domain.User, error) {
	var d userDoc
	if err := r.col.FindOne(ctx, filter).Decode(&d); err != nil {
		return domain.User{}, mapErr(err)
	}
	return d.toDomain()
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *usersRepo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.findOne(ctx, bson.M{"usernameKey": strings.ToLower(username)})
}

func (r *usersRepo) ListUsers(ctx context.Context) ([]domain.User, error) {
	cur, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "usernameKey", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []userDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]domain.User, 0, len(docs))
	for _, d := range docs {
		u, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	now := time.Now()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.MFAState == "" {
		u.MFAState = domain.MFADisabled
	}
	_, err := r.col.InsertOne(ctx, toUserDoc(u))
	return mapErr(err)
}

func (r *usersRepo) UpdateUser(ctx context.Context, u domain.User) error {
	return expectMatched(r.col.UpdateByID(ctx, u.ID, bson.M{"$set": bson.M{
		"name":          u.Name,
		"username":      u.Username,
		"usernameKey":   strings.ToLower(u.Username),
		"email":         u.Email,
		"emailKey":      strings.ToLower(u.Email),
		"roles":         domain.NormalizeRoles(u.Roles),
		"emailVerified": u.EmailVerified,
		"accountLocked": u.AccountLocked,
		"ldapEnabled":   u.LDAPEnabled,
		"mfaEnforced":   u.MFAEnforced,
		"updatedAt":     time.Now().UTC(),
	}}))
}

func (r *usersRepo) UpdateMFA(ctx context.Context, userID string, state domain.MFAState, secret string, last domain.OTPStep) error {
	return expectMatched(r.col.UpdateByID(ctx, userID, bson.M{"$set": bson.M{
		"mfaState":        string(state),
		"mfaToken":        secret,
		"mfaLastStep":     last.Matched,
		"mfaAcceptedStep": last.Accepted,
		"updatedAt":       time.Now().UTC(),
	}}))
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID string, newHash string) error {
	return expectMatched(r.col.UpdateByID(ctx, userID, bson.M{"$set": bson.M{
		"password":  newHash,
		"updatedAt": time.Now().UTC(),
	}}))
}

func (r *usersRepo) DeleteUser(ctx context.Context, userID string) error {
	if _, err := r.tokens.DeleteMany(ctx, bson.M{"userId": userID}); err != nil {
		return err
	}
	return expectDeleted(r.col.DeleteOne(ctx, bson.M{"_id": userID}))
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{}, options.Count().SetLimit(1))
	return n == 0, err
}
