package calendar

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/khanghh/classmeet/internal/common"
	"github.com/khanghh/classmeet/internal/connect"
	"github.com/khanghh/classmeet/internal/credentials"
	"github.com/khanghh/classmeet/internal/oauth"
	"github.com/khanghh/classmeet/internal/store"
	"github.com/khanghh/classmeet/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/mock/gomock"
	"golang.org/x/oauth2"
)

type connectFixture struct {
	provider *oauth.MockProvider
	repo     credentials.Repository
	service  *connect.ConnectService
}

func newConnectFixture(t *testing.T) *connectFixture {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "credentials.db"), 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sealer, err := common.NewSealer("")
	require.NoError(t, err)
	repo, err := credentials.NewBoltRepository(db, sealer)
	require.NoError(t, err)
	storage := store.NewMemoryStorage()
	t.Cleanup(func() { storage.Close() })

	provider := oauth.NewMockProvider(gomock.NewController(t))
	provider.EXPECT().Name().Return("google").AnyTimes()
	return &connectFixture{
		provider: provider,
		repo:     repo,
		service:  connect.NewConnectService(provider, repo, storage),
	}
}

// newCalendarServer accepts only goodToken and counts insert attempts.
func newCalendarServer(t *testing.T, goodToken string, attempts *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		if r.Header.Get("Authorization") != "Bearer "+goodToken {
			w.WriteHeader(http.StatusUnauthorized)
			io.WriteString(w, `{"error":{"code":401,"message":"Invalid Credentials"}}`)
			return
		}
		io.WriteString(w, `{"id":"evt1","hangoutLink":"https://meet.google.com/abc"}`)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestCreateMeeting_UnauthorizedRefreshRecovers(t *testing.T) {
	fx := newConnectFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.repo.Upsert(ctx, &model.CalendarCredential{
		UserID:       "u1",
		Provider:     "google",
		AccessToken:  "revoked-early",
		RefreshToken: "valid",
		ExpiresAt:    time.Now().Add(50 * time.Minute),
	}))
	fx.provider.EXPECT().RefreshToken(gomock.Any(), "valid").
		Return(&oauth2.Token{AccessToken: "fresh", Expiry: time.Now().Add(time.Hour)}, nil).
		Times(1)

	var attempts atomic.Int32
	server := newCalendarServer(t, "fresh", &attempts)
	svc := NewCalendarService(fx.service, Config{BaseURL: server.URL})

	meeting, err := svc.CreateMeeting(ctx, "u1", newMeetingRequest())
	require.NoError(t, err)
	assert.Equal(t, "evt1", meeting.ID)
	assert.Equal(t, int32(2), attempts.Load())

	cred, err := fx.repo.Find(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "fresh", cred.AccessToken)
}

func TestCreateMeeting_UnauthorizedRefreshRejected(t *testing.T) {
	fx := newConnectFixture(t)
	ctx := context.Background()
	require.NoError(t, fx.repo.Upsert(ctx, &model.CalendarCredential{
		UserID:       "u1",
		Provider:     "google",
		AccessToken:  "revoked-early",
		RefreshToken: "revoked",
		ExpiresAt:    time.Now().Add(50 * time.Minute),
	}))
	fx.provider.EXPECT().RefreshToken(gomock.Any(), "revoked").
		Return(nil, oauth.ErrInvalidGrant).
		Times(1)

	var attempts atomic.Int32
	server := newCalendarServer(t, "never-issued", &attempts)
	svc := NewCalendarService(fx.service, Config{BaseURL: server.URL})

	_, err := svc.CreateMeeting(ctx, "u1", newMeetingRequest())
	assert.ErrorIs(t, err, connect.ErrReauthorizationRequired)

	connected, err := fx.service.IsConnected(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, connected)

	_, err = svc.CreateMeeting(ctx, "u1", newMeetingRequest())
	assert.ErrorIs(t, err, connect.ErrNotConnected)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestCreateMeeting_RetriesOnlyOnce(t *testing.T) {
	var refreshes atomic.Int32
	tokens := &countingTokens{refreshes: &refreshes}
	var attempts atomic.Int32
	server := newCalendarServer(t, "never-issued", &attempts)
	svc := NewCalendarService(tokens, Config{BaseURL: server.URL})

	_, err := svc.CreateMeeting(context.Background(), "u1", newMeetingRequest())
	assert.ErrorIs(t, err, ErrCalendarUnauthorized)
	assert.True(t, strings.Contains(err.Error(), "Invalid Credentials"))
	assert.Equal(t, int32(2), attempts.Load())
	assert.Equal(t, int32(1), refreshes.Load())
}

type countingTokens struct {
	refreshes *atomic.Int32
}

func (c *countingTokens) GetAccessToken(ctx context.Context, userID string) (string, error) {
	return "stale", nil
}

func (c *countingTokens) RefreshAccessToken(ctx context.Context, userID string) (string, error) {
	c.refreshes.Add(1)
	return "also-rejected", nil
}
