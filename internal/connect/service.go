package connect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/khanghh/classmeet/internal/common"
	"github.com/khanghh/classmeet/internal/credentials"
	"github.com/khanghh/classmeet/internal/oauth"
	"github.com/khanghh/classmeet/internal/store"
	"github.com/khanghh/classmeet/model"
	"github.com/khanghh/classmeet/params"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

type CallbackResult struct {
	UserID    string    `json:"userId"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type ConnectionStatus struct {
	Connected   bool       `json:"connected"`
	Provider    string     `json:"provider,omitempty"`
	Scope       string     `json:"scope,omitempty"`
	ExpiresAt   *time.Time `json:"expiresAt,omitempty"`
	ExpiresSoon bool       `json:"expiresSoon"`
	ConnectedAt *time.Time `json:"connectedAt,omitempty"`
}

type Option func(*ConnectService)

// WithClock overrides time.Now, used by tests to move expiry around.
func WithClock(now func() time.Time) Option {
	return func(s *ConnectService) {
		s.now = now
	}
}

// WithFingerprintKey sets the HMAC key for token fingerprints in logs.
func WithFingerprintKey(key string) Option {
	return func(s *ConnectService) {
		s.fingerprintKey = key
	}
}

// ConnectService owns the lifecycle of a user's calendar credential: it is
// the only component that talks to both the provider and the repository.
type ConnectService struct {
	provider       oauth.Provider
	credRepo       credentials.Repository
	pendingStore   store.Store[PendingAuthorization]
	refreshGroup   singleflight.Group
	now            func() time.Time
	fingerprintKey string
}

func (s *ConnectService) fingerprint(token string) string {
	return common.TokenFingerprint(s.fingerprintKey, token)
}

func (s *ConnectService) InitiateAuthorization(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", ErrUserIDEmpty
	}
	nonce, err := common.GenerateSecret(params.AuthorizationNonceLength)
	if err != nil {
		return "", err
	}
	now := s.now()
	pending := PendingAuthorization{
		UserID:    userID,
		Nonce:     nonce,
		CreatedAt: now,
	}
	if err := s.pendingStore.Set(ctx, nonce, pending, params.AuthorizationStateExpiration); err != nil {
		return "", fmt.Errorf("save pending authorization: %w", err)
	}
	state, err := encodeState(authorizationState{
		UserID:    userID,
		Timestamp: now.UnixMilli(),
		Nonce:     nonce,
	})
	if err != nil {
		return "", err
	}
	return s.provider.AuthCodeURL(state), nil
}

// consumeState validates the callback state against the pending record and
// removes the record so the same state can never be accepted twice.
func (s *ConnectService) consumeState(ctx context.Context, rawState string) (string, error) {
	state, err := decodeState(rawState)
	if err != nil {
		return "", err
	}
	pending, err := s.pendingStore.Take(ctx, state.Nonce)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidState
	}
	if err != nil {
		return "", fmt.Errorf("load pending authorization: %w", err)
	}
	if pending.UserID != state.UserID {
		return "", ErrInvalidState
	}
	if s.now().After(pending.CreatedAt.Add(params.AuthorizationStateExpiration)) {
		return "", ErrInvalidState
	}
	return pending.UserID, nil
}

func (s *ConnectService) HandleCallback(ctx context.Context, code string, rawState string) (*CallbackResult, error) {
	userID, err := s.consumeState(ctx, rawState)
	if err != nil {
		return nil, err
	}
	if code == "" {
		return nil, ErrExchangeFailed
	}

	token, err := s.provider.ExchangeCode(ctx, code)
	if errors.Is(err, oauth.ErrInvalidGrant) {
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransientProviderFailure, err)
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		// the provider omits the refresh token on some repeat consents
		if existing, err := s.credRepo.Find(ctx, userID); err == nil {
			refreshToken = existing.RefreshToken
		}
	}

	cred := &model.CalendarCredential{
		UserID:       userID,
		Provider:     s.provider.Name(),
		AccessToken:  token.AccessToken,
		RefreshToken: refreshToken,
		TokenType:    token.Type(),
		Scope:        oauth.TokenScope(token),
		ExpiresAt:    token.Expiry,
	}
	if err := s.credRepo.Upsert(ctx, cred); err != nil {
		return nil, fmt.Errorf("save credential: %w", err)
	}
	slog.Info("Calendar connected",
		"userID", userID,
		"provider", cred.Provider,
		"token", s.fingerprint(cred.AccessToken),
		"expiresAt", cred.ExpiresAt,
	)
	return &CallbackResult{
		UserID:    userID,
		Scope:     cred.Scope,
		ExpiresAt: cred.ExpiresAt,
	}, nil
}

func (s *ConnectService) GetAccessToken(ctx context.Context, userID string) (string, error) {
	cred, err := s.findCredential(ctx, userID)
	if err != nil {
		return "", err
	}
	if !cred.IsExpired(s.now(), params.TokenExpiryLeeway) {
		return cred.AccessToken, nil
	}
	return s.refresh(ctx, userID, false)
}

// RefreshAccessToken obtains a new access token from the provider even if the
// stored one is still valid.
func (s *ConnectService) RefreshAccessToken(ctx context.Context, userID string) (string, error) {
	if _, err := s.findCredential(ctx, userID); err != nil {
		return "", err
	}
	return s.refresh(ctx, userID, true)
}

// refresh collapses concurrent refreshes for one user into a single provider
// call. The flight runs detached from the first caller's context so a
// cancelled request cannot abort the write other waiters depend on.
func (s *ConnectService) refresh(ctx context.Context, userID string, force bool) (string, error) {
	ch := s.refreshGroup.DoChan(userID, func() (interface{}, error) {
		return s.doRefresh(context.WithoutCancel(ctx), userID, force)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (s *ConnectService) doRefresh(ctx context.Context, userID string, force bool) (string, error) {
	// another instance may have refreshed while this one was waiting
	cred, err := s.findCredential(ctx, userID)
	if err != nil {
		return "", err
	}
	if !force && !cred.IsExpired(s.now(), params.TokenExpiryLeeway) {
		return cred.AccessToken, nil
	}
	if cred.RefreshToken == "" {
		return "", s.dropCredential(ctx, userID, "missing refresh token")
	}

	token, err := s.provider.RefreshToken(ctx, cred.RefreshToken)
	if errors.Is(err, oauth.ErrInvalidGrant) {
		return "", s.dropCredential(ctx, userID, err.Error())
	}
	if err != nil {
		slog.Warn("Calendar token refresh failed", "userID", userID, "error", err)
		return "", fmt.Errorf("%w: %w", ErrTransientProviderFailure, err)
	}

	if err := s.saveRefreshedToken(ctx, userID, token); err != nil {
		return "", err
	}
	slog.Debug("Calendar token refreshed",
		"userID", userID,
		"token", s.fingerprint(token.AccessToken),
		"rotated", token.RefreshToken != "" && token.RefreshToken != cred.RefreshToken,
		"expiresAt", token.Expiry,
	)
	return token.AccessToken, nil
}

func (s *ConnectService) saveRefreshedToken(ctx context.Context, userID string, token *oauth2.Token) error {
	err := s.credRepo.UpdateToken(ctx, userID, token.AccessToken, token.RefreshToken, token.Expiry)
	if errors.Is(err, credentials.ErrCredentialNotFound) {
		// revoked while the refresh was in flight
		return ErrNotConnected
	}
	if err != nil {
		return fmt.Errorf("save refreshed token: %w", err)
	}
	return nil
}

// dropCredential deletes a credential whose refresh token the provider no
// longer accepts and reports ErrReauthorizationRequired.
func (s *ConnectService) dropCredential(ctx context.Context, userID string, reason string) error {
	slog.Warn("Calendar credential rejected, reauthorization required", "userID", userID, "reason", reason)
	if err := s.credRepo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete rejected credential: %w", err)
	}
	return ErrReauthorizationRequired
}

// Revoke disconnects the user. Remote revocation is best effort; the local
// row is removed regardless of its outcome.
func (s *ConnectService) Revoke(ctx context.Context, userID string) error {
	cred, err := s.findCredential(ctx, userID)
	if errors.Is(err, ErrNotConnected) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.provider.RevokeToken(ctx, cred.AccessToken); err != nil {
		slog.Warn("Remote token revocation failed",
			"userID", userID,
			"token", s.fingerprint(cred.AccessToken),
			"error", err,
		)
	}
	if err := s.credRepo.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	slog.Info("Calendar disconnected", "userID", userID)
	return nil
}

func (s *ConnectService) IsConnected(ctx context.Context, userID string) (bool, error) {
	_, err := s.findCredential(ctx, userID)
	if errors.Is(err, ErrNotConnected) {
		return false, nil
	}
	return err == nil, err
}

func (s *ConnectService) Status(ctx context.Context, userID string) (*ConnectionStatus, error) {
	cred, err := s.findCredential(ctx, userID)
	if errors.Is(err, ErrNotConnected) {
		return &ConnectionStatus{Connected: false}, nil
	}
	if err != nil {
		return nil, err
	}
	status := &ConnectionStatus{
		Connected:   true,
		Provider:    cred.Provider,
		Scope:       cred.Scope,
		ConnectedAt: &cred.CreatedAt,
	}
	if !cred.ExpiresAt.IsZero() {
		status.ExpiresAt = &cred.ExpiresAt
		status.ExpiresSoon = cred.IsExpired(s.now(), params.TokenExpiresSoonWindow)
	}
	return status, nil
}

func (s *ConnectService) findCredential(ctx context.Context, userID string) (*model.CalendarCredential, error) {
	if userID == "" {
		return nil, ErrNotConnected
	}
	cred, err := s.credRepo.Find(ctx, userID)
	if errors.Is(err, credentials.ErrCredentialNotFound) {
		return nil, ErrNotConnected
	}
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}
	return cred, nil
}

func NewConnectService(provider oauth.Provider, credRepo credentials.Repository, storage store.Storage, opts ...Option) *ConnectService {
	s := &ConnectService{
		provider:     provider,
		credRepo:     credRepo,
		pendingStore: store.New[PendingAuthorization](storage, params.AuthorizationKeyPrefix),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
