package credentials

import (
	"context"
	"encoding/json"
	"time"

	"github.com/khanghh/classmeet/internal/common"
	"github.com/khanghh/classmeet/model"
	bolt "go.etcd.io/bbolt"
)

var credentialsBucket = []byte("calendar_credentials")

// boltRepository stores one JSON document per user id. bbolt serializes
// writers, so each Update below is an atomic read-modify-write.
type boltRepository struct {
	db     *bolt.DB
	sealer *common.Sealer
}

func (r *boltRepository) Find(ctx context.Context, userID string) (*model.CalendarCredential, error) {
	var cred *model.CalendarCredential
	err := r.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(credentialsBucket).Get([]byte(userID))
		if v == nil {
			return ErrCredentialNotFound
		}
		cred = &model.CalendarCredential{}
		return json.Unmarshal(v, cred)
	})
	if err != nil {
		return nil, err
	}
	if err := openCredential(r.sealer, cred); err != nil {
		return nil, err
	}
	return cred, nil
}

func (r *boltRepository) Upsert(ctx context.Context, cred *model.CalendarCredential) error {
	if cred.UserID == "" {
		return ErrUserIDEmpty
	}
	sealed, err := sealCredential(r.sealer, cred)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		now := time.Now().UTC()
		sealed.ID, sealed.CreatedAt = model.GenerateID(), now
		if v := b.Get([]byte(cred.UserID)); v != nil {
			var existing model.CalendarCredential
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			sealed.ID, sealed.CreatedAt = existing.ID, existing.CreatedAt
		}
		sealed.UpdatedAt = now
		data, err := json.Marshal(sealed)
		if err != nil {
			return err
		}
		cred.ID = sealed.ID
		return b.Put([]byte(cred.UserID), data)
	})
}

func (r *boltRepository) UpdateToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	sealedAccess, sealedRefresh, err := sealTokens(r.sealer, accessToken, refreshToken)
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(credentialsBucket)
		v := b.Get([]byte(userID))
		if v == nil {
			return ErrCredentialNotFound
		}
		var cred model.CalendarCredential
		if err := json.Unmarshal(v, &cred); err != nil {
			return err
		}
		cred.AccessToken = sealedAccess
		cred.ExpiresAt = expiresAt
		cred.UpdatedAt = time.Now().UTC()
		if refreshToken != "" {
			cred.RefreshToken = sealedRefresh
		}
		data, err := json.Marshal(&cred)
		if err != nil {
			return err
		}
		return b.Put([]byte(userID), data)
	})
}

func (r *boltRepository) Delete(ctx context.Context, userID string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(credentialsBucket).Delete([]byte(userID))
	})
}

func NewBoltRepository(db *bolt.DB, sealer *common.Sealer) (Repository, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(credentialsBucket)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &boltRepository{
		db:     db,
		sealer: sealer,
	}, nil
}
