// Package storagetest содержит общий набор проверок для реализаций storage.UserBackend.
package storagetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
)

// RunUserBackendSuite прогоняет контракт UserBackend на свежем экземпляре из newBackend.
func RunUserBackendSuite(t *testing.T, newBackend func(t *testing.T) storage.UserBackend) {
	ctx := context.Background()

	t.Run("insert assigns id and reads back", func(t *testing.T) {
		b := newBackend(t)

		id, err := b.Insert(ctx, models.User{Email: "alice@example.com", PasswordHash: "h1", Role: models.RoleUser})
		require.NoError(t, err)
		require.NotEmpty(t, id)

		byID, err := b.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, byID.UUID)
		assert.Equal(t, "alice@example.com", byID.Email)
		assert.Equal(t, "h1", byID.PasswordHash)
		assert.Equal(t, models.RoleUser, byID.Role)
		assert.Nil(t, byID.SubscriptionExpiry)
		assert.False(t, byID.CreatedAt.IsZero())

		byEmail, err := b.GetByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, id, byEmail.UUID)
	})

	t.Run("duplicate email rejected", func(t *testing.T) {
		b := newBackend(t)

		_, err := b.Insert(ctx, models.User{Email: "alice@example.com", PasswordHash: "h1", Role: models.RoleUser})
		require.NoError(t, err)
		_, err = b.Insert(ctx, models.User{Email: "alice@example.com", PasswordHash: "h2", Role: models.RoleAdmin})
		assert.ErrorIs(t, err, storage.ErrUserExists)

		users, err := b.List(ctx)
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("ids are unique", func(t *testing.T) {
		b := newBackend(t)

		id1, err := b.Insert(ctx, models.User{Email: "a@example.com", PasswordHash: "h", Role: models.RoleUser})
		require.NoError(t, err)
		id2, err := b.Insert(ctx, models.User{Email: "b@example.com", PasswordHash: "h", Role: models.RoleUser})
		require.NoError(t, err)
		assert.NotEqual(t, id1, id2)
	})

	t.Run("not found", func(t *testing.T) {
		b := newBackend(t)

		_, err := b.GetByID(ctx, "missing")
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
		_, err = b.GetByEmail(ctx, "missing@example.com")
		assert.ErrorIs(t, err, storage.ErrUserNotFound)
	})

	t.Run("subscription expiry overwrite", func(t *testing.T) {
		b := newBackend(t)

		id, err := b.Insert(ctx, models.User{Email: "alice@example.com", PasswordHash: "h", Role: models.RoleUser})
		require.NoError(t, err)

		first := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		second := time.Date(2027, 6, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, b.SetSubscriptionExpiry(ctx, id, &first))
		require.NoError(t, b.SetSubscriptionExpiry(ctx, id, &second))

		u, err := b.GetByID(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, u.SubscriptionExpiry)
		assert.True(t, second.Equal(*u.SubscriptionExpiry))

		require.NoError(t, b.SetSubscriptionExpiry(ctx, id, nil))
		u, err = b.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, u.SubscriptionExpiry)
	})

	t.Run("subscription expiry for missing user creates nothing", func(t *testing.T) {
		b := newBackend(t)

		expiry := time.Now()
		err := b.SetSubscriptionExpiry(ctx, "missing", &expiry)
		assert.ErrorIs(t, err, storage.ErrUserNotFound)

		users, err := b.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, users)
	})

	t.Run("list returns every user", func(t *testing.T) {
		b := newBackend(t)

		for _, email := range []string{"c@example.com", "a@example.com", "b@example.com"} {
			_, err := b.Insert(ctx, models.User{Email: email, PasswordHash: "h", Role: models.RoleUser})
			require.NoError(t, err)
		}

		users, err := b.List(ctx)
		require.NoError(t, err)
		require.Len(t, users, 3)
		emails := make([]string, 0, len(users))
		for _, u := range users {
			emails = append(emails, u.Email)
		}
		assert.ElementsMatch(t, []string{"a@example.com", "b@example.com", "c@example.com"}, emails)
	})

	t.Run("returned users are copies", func(t *testing.T) {
		b := newBackend(t)

		id, err := b.Insert(ctx, models.User{Email: "alice@example.com", PasswordHash: "h", Role: models.RoleUser})
		require.NoError(t, err)

		u, err := b.GetByID(ctx, id)
		require.NoError(t, err)
		u.Role = models.RoleAdmin

		again, err := b.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.RoleUser, again.Role)
	})

	t.Run("concurrent inserts of same email", func(t *testing.T) {
		b := newBackend(t)

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := b.Insert(ctx, models.User{Email: "race@example.com", PasswordHash: "h", Role: models.RoleUser})
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
				continue
			}
			assert.ErrorIs(t, err, storage.ErrUserExists)
		}
		assert.Equal(t, 1, succeeded)
	})

	t.Run("cancelled context", func(t *testing.T) {
		b := newBackend(t)

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := b.GetByEmail(cctx, "alice@example.com")
		assert.Error(t, err)
	})
}
