package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/khanghh/classmeet/internal/common"
	"github.com/khanghh/classmeet/model"
)

var (
	ErrCredentialNotFound = errors.New("calendar credential not found")
	ErrUserIDEmpty        = errors.New("user id cannot be empty")
)

// Repository persists at most one calendar credential per user. Every method
// is keyed by user id; no method returns another user's row.
type Repository interface {
	Find(ctx context.Context, userID string) (*model.CalendarCredential, error)
	// Upsert inserts the credential or overwrites the user's existing row.
	Upsert(ctx context.Context, cred *model.CalendarCredential) error
	// UpdateToken replaces the access token and expiry in a single write. An
	// empty refreshToken keeps the stored one.
	UpdateToken(ctx context.Context, userID, accessToken, refreshToken string, expiresAt time.Time) error
	Delete(ctx context.Context, userID string) error
}

func sealCredential(sealer *common.Sealer, cred *model.CalendarCredential) (*model.CalendarCredential, error) {
	sealed := *cred
	var err error
	if sealed.AccessToken, err = sealer.Seal(cred.AccessToken); err != nil {
		return nil, fmt.Errorf("seal access token: %w", err)
	}
	if sealed.RefreshToken, err = sealer.Seal(cred.RefreshToken); err != nil {
		return nil, fmt.Errorf("seal refresh token: %w", err)
	}
	return &sealed, nil
}

func openCredential(sealer *common.Sealer, cred *model.CalendarCredential) error {
	var err error
	if cred.AccessToken, err = sealer.Open(cred.AccessToken); err != nil {
		return fmt.Errorf("open access token: %w", err)
	}
	if cred.RefreshToken, err = sealer.Open(cred.RefreshToken); err != nil {
		return fmt.Errorf("open refresh token: %w", err)
	}
	return nil
}

func sealTokens(sealer *common.Sealer, accessToken, refreshToken string) (string, string, error) {
	sealedAccess, err := sealer.Seal(accessToken)
	if err != nil {
		return "", "", fmt.Errorf("seal access token: %w", err)
	}
	sealedRefresh, err := sealer.Seal(refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("seal refresh token: %w", err)
	}
	return sealedAccess, sealedRefresh, nil
}
