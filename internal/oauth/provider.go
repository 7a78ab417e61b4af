package oauth

//go:generate mockgen -source=provider.go -destination=mock_provider.go -package=oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
)

var (
	// ErrInvalidGrant means the provider rejected the code or refresh token
	// itself. Retrying with the same input will not succeed.
	ErrInvalidGrant = errors.New("provider rejected grant")
	// ErrProviderUnavailable covers network failures, timeouts and 5xx/429
	// responses. The credential may still be valid.
	ErrProviderUnavailable = errors.New("provider unavailable")
)

// Provider is the calendar provider side of the authorization code grant.
type Provider interface {
	Name() string
	AuthCodeURL(state string) string
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
	RevokeToken(ctx context.Context, token string) error
}

var rejectionCodes = map[string]bool{
	"invalid_grant":          true,
	"invalid_client":         true,
	"unauthorized_client":    true,
	"unsupported_grant_type": true,
}

func isRejection(rErr *oauth2.RetrieveError) bool {
	if rejectionCodes[rErr.ErrorCode] {
		return true
	}
	if rErr.Response == nil {
		return false
	}
	switch rErr.Response.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized:
		return true
	}
	return false
}

// classifyError wraps a token endpoint error with ErrInvalidGrant or
// ErrProviderUnavailable.
func classifyError(err error) error {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && isRejection(rErr) {
		return fmt.Errorf("%w: %w", ErrInvalidGrant, err)
	}
	return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
}

// TokenScope returns the space-delimited scope the provider granted.
func TokenScope(token *oauth2.Token) string {
	if scope, ok := token.Extra("scope").(string); ok {
		return scope
	}
	return ""
}
