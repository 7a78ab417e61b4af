package oauth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/khanghh/classmeet/params"
	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	ScopeCalendar       = "https://www.googleapis.com/auth/calendar"
	ScopeCalendarEvents = "https://www.googleapis.com/auth/calendar.events"
	GoogleRevokeURL     = "https://oauth2.googleapis.com/revoke"
)

var DefaultGoogleScopes = []string{ScopeCalendar, ScopeCalendarEvents}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	// Endpoint overrides, empty means the public Google endpoints.
	AuthURL    string
	TokenURL   string
	RevokeURL  string
	HTTPClient *http.Client
}

type GoogleProvider struct {
	config     *oauth2.Config
	revokeURL  string
	httpClient *http.Client
}

func (p *GoogleProvider) Name() string {
	return "google"
}

func (p *GoogleProvider) withContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	return context.WithTimeout(ctx, params.ProviderRequestTimeout)
}

// AuthCodeURL always asks for offline access and forces the consent screen,
// otherwise Google omits the refresh token on repeat authorizations.
func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

func (p *GoogleProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx, cancel := p.withContext(ctx)
	defer cancel()

	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, classifyError(err)
	}
	return token, nil
}

func (p *GoogleProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, cancel := p.withContext(ctx)
	defer cancel()

	token, err := p.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, classifyError(err)
	}
	return token, nil
}

func (p *GoogleProvider) RevokeToken(ctx context.Context, token string) error {
	ctx, cancel := context.WithTimeout(ctx, params.ProviderRequestTimeout)
	defer cancel()

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<12))
	errorCode := gjson.GetBytes(body, "error").String()
	if resp.StatusCode == http.StatusBadRequest {
		return fmt.Errorf("%w: revoke rejected: %s", ErrInvalidGrant, errorCode)
	}
	return fmt.Errorf("%w: revoke returned status %d %s", ErrProviderUnavailable, resp.StatusCode, errorCode)
}

func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultGoogleScopes
	}
	revokeURL := cfg.RevokeURL
	if revokeURL == "" {
		revokeURL = GoogleRevokeURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: params.ProviderRequestTimeout}
	}
	return &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
		revokeURL:  revokeURL,
		httpClient: httpClient,
	}
}
