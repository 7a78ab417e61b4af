package credentials

import (
	"context"
	"errors"
	"time"

	"github.com/khanghh/classmeet/internal/common"
	"github.com/khanghh/classmeet/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormRepository struct {
	db     *gorm.DB
	sealer *common.Sealer
}

func (r *gormRepository) Find(ctx context.Context, userID string) (*model.CalendarCredential, error) {
	var cred model.CalendarCredential
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrCredentialNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := openCredential(r.sealer, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *gormRepository) Upsert(ctx context.Context, cred *model.CalendarCredential) error {
	if cred.UserID == "" {
		return ErrUserIDEmpty
	}
	sealed, err := sealCredential(r.sealer, cred)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"provider", "access_token", "refresh_token", "token_type", "scope", "expires_at", "updated_at",
			}),
		}).
		Create(sealed).Error
}

func (r *gormRepository) UpdateToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error {
	sealedAccess, sealedRefresh, err := sealTokens(r.sealer, accessToken, refreshToken)
	if err != nil {
		return err
	}
	columns := map[string]interface{}{
		"access_token": sealedAccess,
		"expires_at":   expiresAt,
		"updated_at":   time.Now(),
	}
	if refreshToken != "" {
		columns["refresh_token"] = sealedRefresh
	}
	result := r.db.WithContext(ctx).
		Model(&model.CalendarCredential{}).
		Where("user_id = ?", userID).
		Updates(columns)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}

func (r *gormRepository) Delete(ctx context.Context, userID string) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&model.CalendarCredential{}).Error
}

func NewGormRepository(db *gorm.DB, sealer *common.Sealer) Repository {
	return &gormRepository{
		db:     db,
		sealer: sealer,
	}
}
