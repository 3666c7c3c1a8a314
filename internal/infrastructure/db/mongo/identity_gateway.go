package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"golang.org/x/crypto/bcrypt"

	"github.com/eduadmin/student-lifecycle/internal/core/domain"
)

const accountsCollection = "accounts"

// TokenParser decodes a signed bearer token.
type TokenParser interface {
	Parse(token string) (*domain.Claims, error)
}

// IdentityGateway stores Accounts in MongoDB. Email uniqueness is enforced by
// a unique index, so concurrent creates or updates of the same email fail
// with domain.ErrEmailConflict.
type IdentityGateway struct {
	coll   *mongo.Collection
	tokens TokenParser
}

func NewIdentityGateway(db *mongo.Database, tokens TokenParser) *IdentityGateway {
	return &IdentityGateway{coll: db.Collection(accountsCollection), tokens: tokens}
}

type mongoAccount struct {
	ID           string `bson:"_id"`
	Email        string `bson:"email"`
	DisplayName  string `bson:"display_name"`
	Disabled     bool   `bson:"disabled"`
	Role         string `bson:"role"`
	PasswordHash string `bson:"password_hash"`
	CreatedAt    int64  `bson:"created_at"`
	UpdatedAt    int64  `bson:"updated_at"`
}

func (m mongoAccount) toDomain() *domain.Account {
	return &domain.Account{
		ID:          m.ID,
		Email:       m.Email,
		DisplayName: m.DisplayName,
		Disabled:    m.Disabled,
		Role:        m.Role,
		CreatedAt:   unixToTime(m.CreatedAt),
		UpdatedAt:   unixToTime(m.UpdatedAt),
	}
}

// EnsureIndexes creates the unique email index the gateway relies on.
func (g *IdentityGateway) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := g.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("email_unique"),
	})
	if err != nil {
		return fmt.Errorf("create accounts indexes: %w", err)
	}
	return nil
}

func (g *IdentityGateway) findOne(ctx context.Context, filter bson.M) (*mongoAccount, error) {
	var ma mongoAccount
	if err := g.coll.FindOne(ctx, filter).Decode(&ma); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrAccountNotFound
		}
		return nil, domain.Infrastructure("find account", err)
	}
	return &ma, nil
}

func (g *IdentityGateway) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	ma, err := g.findOne(ctx, bson.M{"email": email})
	if err != nil {
		return nil, err
	}
	return ma.toDomain(), nil
}

func (g *IdentityGateway) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	ma, err := g.findOne(ctx, bson.M{"_id": id})
	if err != nil {
		return nil, err
	}
	return ma.toDomain(), nil
}

func (g *IdentityGateway) CreateAccount(ctx context.Context, in domain.NewAccount) (*domain.Account, error) {
	if in.Password == "" {
		return nil, domain.NewValidationError("password", "is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now().UTC().Unix()
	doc := mongoAccount{
		ID:           uuid.NewString(),
		Email:        in.Email,
		DisplayName:  in.DisplayName,
		Disabled:     in.Disabled,
		Role:         in.Role,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := g.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrEmailConflict
		}
		return nil, domain.Infrastructure("insert account", err)
	}
	return doc.toDomain(), nil
}

func (g *IdentityGateway) UpdateAccount(ctx context.Context, id string, upd domain.AccountUpdate) error {
	set := bson.M{"updated_at": time.Now().UTC().Unix()}
	if upd.Email != nil {
		set["email"] = *upd.Email
	}
	if upd.DisplayName != nil {
		set["display_name"] = *upd.DisplayName
	}
	if upd.Disabled != nil {
		set["disabled"] = *upd.Disabled
	}

	res, err := g.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrEmailConflict
		}
		return domain.Infrastructure("update account", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

func (g *IdentityGateway) DeleteAccount(ctx context.Context, id string) error {
	res, err := g.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return domain.Infrastructure("delete account", err)
	}
	if res.DeletedCount == 0 {
		return domain.ErrAccountNotFound
	}
	return nil
}

// VerifyBearerToken checks the token signature and that its account still
// exists and is enabled. The role is taken from the stored account, so a
// role change takes effect without reissuing tokens.
func (g *IdentityGateway) VerifyBearerToken(ctx context.Context, token string) (*domain.Claims, error) {
	claims, err := g.tokens.Parse(token)
	if err != nil {
		return nil, domain.ErrInvalidToken
	}
	ma, err := g.findOne(ctx, bson.M{"_id": claims.UID})
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, domain.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if ma.Disabled {
		return nil, domain.ErrInvalidToken
	}
	return &domain.Claims{UID: ma.ID, Email: ma.Email, Role: ma.Role}, nil
}

// CheckPassword returns the enabled account registered under email when
// password matches its hash.
func (g *IdentityGateway) CheckPassword(ctx context.Context, email, password string) (*domain.Account, error) {
	ma, err := g.findOne(ctx, bson.M{"email": email})
	if errors.Is(err, domain.ErrAccountNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if ma.Disabled {
		return nil, domain.ErrInvalidCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(ma.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}
	return ma.toDomain(), nil
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
