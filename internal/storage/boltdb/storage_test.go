package boltdb

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.etcd.io/bbolt"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/storagetest"
)

func newTestStorage(t *testing.T) *Storage {
	dbPath := filepath.Join(t.TempDir(), "users.db")
	s, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestStorage_Contract(t *testing.T) {
	storagetest.RunUserBackendSuite(t, func(t *testing.T) storage.UserBackend {
		return newTestStorage(t)
	})
}

func TestNew_CreatesBuckets(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "users.db")

	s, err := New(context.Background(), dbPath)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, s.Close())
	}()

	info, err := os.Stat(dbPath)
	require.NoError(t, err)
	assert.False(t, info.IsDir())

	err = s.db.View(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketUsers, bucketByEmail} {
			if tx.Bucket(b) == nil {
				return os.ErrNotExist
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func TestNew_InvalidPath(t *testing.T) {
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "missing-dir", "users.db"))
	assert.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.Nil(t, s)
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "users.db")
	ctx := context.Background()

	s, err := New(ctx, dbPath)
	require.NoError(t, err)
	id, err := s.Insert(ctx, models.User{Email: "alice@example.com", PasswordHash: "h", Role: models.RoleUser})
	require.NoError(t, err)
	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetSubscriptionExpiry(ctx, id, &expiry))
	require.NoError(t, s.Close())

	reopened, err := New(ctx, dbPath)
	require.NoError(t, err)
	defer func() {
		_ = reopened.Close()
	}()

	u, err := reopened.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.UUID)
	assert.Equal(t, "h", u.PasswordHash)
	require.NotNil(t, u.SubscriptionExpiry)
	assert.True(t, expiry.Equal(*u.SubscriptionExpiry))
}

func TestStorage_ClosedIsUnavailable(t *testing.T) {
	s := newTestStorage(t)
	require.NoError(t, s.Close())

	_, err := s.GetByEmail(context.Background(), "alice@example.com")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}
