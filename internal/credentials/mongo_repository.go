package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/khanghh/classmeet/internal/common"
	"github.com/khanghh/classmeet/model"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCollectionName = "calendar_credentials"

type credentialDocument struct {
	ID           uint      `bson:"_id"`
	UserID       string    `bson:"user_id"`
	Provider     string    `bson:"provider"`
	AccessToken  string    `bson:"access_token"`
	RefreshToken string    `bson:"refresh_token"`
	TokenType    string    `bson:"token_type"`
	Scope        string    `bson:"scope"`
	ExpiresAt    time.Time `bson:"expires_at"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

func (d *credentialDocument) toModel() *model.CalendarCredential {
	return &model.CalendarCredential{
		ID:           d.ID,
		UserID:       d.UserID,
		Provider:     d.Provider,
		AccessToken:  d.AccessToken,
		RefreshToken: d.RefreshToken,
		TokenType:    d.TokenType,
		Scope:        d.Scope,
		ExpiresAt:    d.ExpiresAt,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

type mongoRepository struct {
	credentials *mongo.Collection
	sealer      *common.Sealer
}

// EnsureIndexes creates the unique user_id index the upsert relies on.
func (r *mongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.credentials.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return err
}

func (r *mongoRepository) Find(ctx context.Context, userID string) (*model.CalendarCredential, error) {
	var doc credentialDocument
	err := r.credentials.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	cred := doc.toModel()
	if err := openCredential(r.sealer, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

func (r *mongoRepository) Upsert(ctx context.Context, cred *model.CalendarCredential) error {
	if cred.UserID == "" {
		return ErrUserIDEmpty
	}
	sealed, err := sealCredential(r.sealer, cred)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"provider":      sealed.Provider,
			"access_token":  sealed.AccessToken,
			"refresh_token": sealed.RefreshToken,
			"token_type":    sealed.TokenType,
			"scope":         sealed.Scope,
			"expires_at":    sealed.ExpiresAt,
			"updated_at":    now,
		},
		"$setOnInsert": bson.M{
			"_id":        model.GenerateID(),
			"created_at": now,
		},
	}
	_, err = r.credentials.UpdateOne(ctx, bson.M{"user_id": cred.UserID}, update, options.Update().SetUpsert(true))
	return err
}

func (r *mongoRepository) UpdateToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	sealedAccess, sealedRefresh, err := sealTokens(r.sealer, accessToken, refreshToken)
	if err != nil {
		return err
	}
	set := bson.M{
		"access_token": sealedAccess,
		"expires_at":   expiresAt,
		"updated_at":   time.Now().UTC(),
	}
	if refreshToken != "" {
		set["refresh_token"] = sealedRefresh
	}
	res, err := r.credentials.UpdateOne(ctx, bson.M{"user_id": userID}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (r *mongoRepository) Delete(ctx context.Context, userID string) error {
	_, err := r.credentials.DeleteOne(ctx, bson.M{"user_id": userID})
	return err
}

func NewMongoRepository(ctx context.Context, db *mongo.Database, sealer *common.Sealer) (Repository, error) {
	repo := &mongoRepository{
		credentials: db.Collection(mongoCollectionName),
		sealer:      sealer,
	}
	if err := repo.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}
