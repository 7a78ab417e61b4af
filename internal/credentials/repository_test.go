package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/khanghh/classmeet/internal/common"
	"github.com/khanghh/classmeet/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bolt "go.etcd.io/bbolt"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

func testSealer(t *testing.T) *common.Sealer {
	t.Helper()
	sealer, err := common.NewSealer("test-master-key")
	require.NoError(t, err)
	return sealer
}

func newCredential(userID, access, refresh string, expiresAt time.Time) *model.CalendarCredential {
	return &model.CalendarCredential{
		UserID:       userID,
		Provider:     "google",
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		Scope:        "https://www.googleapis.com/auth/calendar",
		ExpiresAt:    expiresAt,
	}
}

func newBoltTestRepository(t *testing.T) (Repository, *bolt.DB) {
	t.Helper()
	db, err := bolt.Open(filepath.Join(t.TempDir(), "credentials.db"), 0o600, &bolt.Options{Timeout: time.Second})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	repo, err := NewBoltRepository(db, testSealer(t))
	require.NoError(t, err)
	return repo, db
}

// testRepositoryContract runs the behaviour every backend must share.
func testRepositoryContract(t *testing.T, repo Repository) {
	ctx := context.Background()
	expiresAt := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	t.Run("find missing", func(t *testing.T) {
		_, err := repo.Find(ctx, "missing-user")
		assert.ErrorIs(t, err, ErrCredentialNotFound)
	})

	t.Run("upsert inserts then overwrites", func(t *testing.T) {
		t.Cleanup(func() { repo.Delete(ctx, "u1") })
		require.NoError(t, repo.Upsert(ctx, newCredential("u1", "access-1", "refresh-1", expiresAt)))
		got, err := repo.Find(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "access-1", got.AccessToken)
		assert.Equal(t, "refresh-1", got.RefreshToken)
		assert.True(t, got.ExpiresAt.Equal(expiresAt))

		require.NoError(t, repo.Upsert(ctx, newCredential("u1", "access-2", "refresh-2", expiresAt.Add(time.Hour))))
		got, err = repo.Find(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, "access-2", got.AccessToken)
		assert.Equal(t, "refresh-2", got.RefreshToken)
	})

	t.Run("update token keeps refresh token when empty", func(t *testing.T) {
		t.Cleanup(func() { repo.Delete(ctx, "u2") })
		require.NoError(t, repo.Upsert(ctx, newCredential("u2", "old-access", "keep-me", expiresAt)))

		newExpiry := expiresAt.Add(2 * time.Hour)
		require.NoError(t, repo.UpdateToken(ctx, "u2", "new-access", "", newExpiry))
		got, err := repo.Find(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, "new-access", got.AccessToken)
		assert.Equal(t, "keep-me", got.RefreshToken)
		assert.True(t, got.ExpiresAt.Equal(newExpiry))

		require.NoError(t, repo.UpdateToken(ctx, "u2", "newer-access", "rotated", newExpiry))
		got, err = repo.Find(ctx, "u2")
		require.NoError(t, err)
		assert.Equal(t, "rotated", got.RefreshToken)
	})

	t.Run("update token on missing row", func(t *testing.T) {
		err := repo.UpdateToken(ctx, "ghost", "access", "", expiresAt)
		assert.ErrorIs(t, err, ErrCredentialNotFound)
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		require.NoError(t, repo.Upsert(ctx, newCredential("u3", "access", "refresh", expiresAt)))
		require.NoError(t, repo.Delete(ctx, "u3"))
		require.NoError(t, repo.Delete(ctx, "u3"))
		_, err := repo.Find(ctx, "u3")
		assert.ErrorIs(t, err, ErrCredentialNotFound)
	})

	t.Run("rows are isolated per user", func(t *testing.T) {
		t.Cleanup(func() { repo.Delete(ctx, "alice") })
		require.NoError(t, repo.Upsert(ctx, newCredential("alice", "alice-access", "alice-refresh", expiresAt)))
		_, err := repo.Find(ctx, "bob")
		assert.ErrorIs(t, err, ErrCredentialNotFound)
		assert.ErrorIs(t, repo.UpdateToken(ctx, "bob", "bob-access", "", expiresAt), ErrCredentialNotFound)

		got, err := repo.Find(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice-access", got.AccessToken)
	})

	t.Run("empty user id rejected", func(t *testing.T) {
		assert.ErrorIs(t, repo.Upsert(ctx, newCredential("", "a", "r", expiresAt)), ErrUserIDEmpty)
	})
}

func TestBoltRepository(t *testing.T) {
	repo, _ := newBoltTestRepository(t)
	testRepositoryContract(t, repo)
}

func TestBoltRepository_TokensSealedAtRest(t *testing.T) {
	repo, db := newBoltTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, newCredential("u1", "plain-access", "plain-refresh", time.Now().Add(time.Hour))))

	var raw []byte
	require.NoError(t, db.View(func(tx *bolt.Tx) error {
		raw = append(raw, tx.Bucket(credentialsBucket).Get([]byte("u1"))...)
		return nil
	}))
	assert.NotContains(t, string(raw), "plain-access")
	assert.NotContains(t, string(raw), "plain-refresh")
}

func TestBoltRepository_UpsertKeepsIdentity(t *testing.T) {
	repo, _ := newBoltTestRepository(t)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, newCredential("u1", "a1", "r1", time.Now().Add(time.Hour))))
	first, err := repo.Find(ctx, "u1")
	require.NoError(t, err)

	require.NoError(t, repo.Upsert(ctx, newCredential("u1", "a2", "r2", time.Now().Add(time.Hour))))
	second, err := repo.Find(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CreatedAt.Equal(second.CreatedAt))
}

func TestGormRepository(t *testing.T) {
	dsn := os.Getenv("DB_URL")
	if dsn == "" {
		t.Skip("DB_URL not set")
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   "test_",
			SingularTable: true,
		},
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.CalendarCredential{}))
	testRepositoryContract(t, NewGormRepository(db, testSealer(t)))
}

func TestMongoRepository(t *testing.T) {
	uri := os.Getenv("MONGO_URL")
	if uri == "" {
		t.Skip("MONGO_URL not set")
	}
	ctx := context.Background()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	db := client.Database("classmeet_test")
	t.Cleanup(func() { db.Drop(context.Background()) })
	repo, err := NewMongoRepository(ctx, db, testSealer(t))
	require.NoError(t, err)
	testRepositoryContract(t, repo)
}
