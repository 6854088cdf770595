package directory

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/password"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/cache"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/memory"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

// CacheMock мок кеша пользователей
type CacheMock struct {
	mock.Mock
}

func (m *CacheMock) Get(ctx context.Context, key string, result any) (bool, error) {
	args := m.Called(ctx, key, result)
	return args.Bool(0), args.Error(1)
}

func (m *CacheMock) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *CacheMock) Invalidate(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// failingBackend отвечает ErrUnavailable на любой вызов
type failingBackend struct{}

func (failingBackend) Insert(context.Context, models.User) (string, error) {
	return "", storage.ErrUnavailable
}
func (failingBackend) GetByEmail(context.Context, string) (*models.User, error) {
	return nil, storage.ErrUnavailable
}
func (failingBackend) GetByID(context.Context, string) (*models.User, error) {
	return nil, storage.ErrUnavailable
}
func (failingBackend) List(context.Context) ([]*models.User, error) {
	return nil, storage.ErrUnavailable
}
func (failingBackend) SetSubscriptionExpiry(context.Context, string, *time.Time) error {
	return storage.ErrUnavailable
}
func (failingBackend) Close() error { return nil }

func newDirectory(t *testing.T) *Directory {
	t.Helper()
	return New(newNoopLogger(), memory.New(), nil, time.Minute)
}

func TestDirectory_Create(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		email    string
		password string
		role     models.Role
		wantErr  error
	}{
		{name: "user", email: "alice@example.com", password: "pw123", role: models.RoleUser},
		{name: "admin", email: "root@example.com", password: "rootpw", role: models.RoleAdmin},
		{name: "empty email", email: "   ", password: "pw", role: models.RoleUser, wantErr: ErrInvalidInput},
		{name: "unknown role", email: "x@example.com", password: "pw", role: models.Role("owner"), wantErr: ErrInvalidInput},
		{name: "empty password", email: "y@example.com", password: "", role: models.RoleUser, wantErr: ErrInvalidInput},
		{name: "password too long", email: "z@example.com", password: strings.Repeat("a", 73), role: models.RoleUser, wantErr: ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDirectory(t)

			id, err := d.Create(ctx, tt.email, tt.password, tt.role)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, id)
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, id)

			u, err := d.GetByID(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tt.role, u.Role)
			assert.NotEqual(t, tt.password, u.PasswordHash)
			assert.True(t, password.Verify(tt.password, u.PasswordHash))
		})
	}
}

func TestDirectory_CreateNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)

	id, err := d.Create(ctx, "  Alice@Example.COM ", "pw123", models.RoleUser)
	require.NoError(t, err)

	u, err := d.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, id, u.UUID)
	assert.Equal(t, "alice@example.com", u.Email)

	_, err = d.Create(ctx, "ALICE@example.com", "other", models.RoleUser)
	assert.ErrorIs(t, err, storage.ErrUserExists)
}

func TestDirectory_NotFound(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)

	_, err := d.GetByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	_, err = d.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	err = d.UpdateSubscription(ctx, "missing", nil)
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestDirectory_VerifyCredentials(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)

	id, err := d.Create(ctx, "alice@example.com", "pw123", models.RoleUser)
	require.NoError(t, err)

	u, err := d.VerifyCredentials(ctx, "Alice@Example.com", "pw123")
	require.NoError(t, err)
	assert.Equal(t, id, u.UUID)

	_, err = d.VerifyCredentials(ctx, "alice@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = d.VerifyCredentials(ctx, "nobody@example.com", "pw123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NotErrorIs(t, err, storage.ErrUserNotFound)
}

func TestDirectory_UpdateSubscriptionAndList(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)

	bobID, err := d.Create(ctx, "bob@example.com", "pw", models.RoleUser)
	require.NoError(t, err)
	_, err = d.Create(ctx, "alice@example.com", "pw", models.RoleUser)
	require.NoError(t, err)

	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, d.UpdateSubscription(ctx, bobID, &expiry))

	users, err := d.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	for _, u := range users {
		if u.UUID == bobID {
			require.NotNil(t, u.SubscriptionExpiry)
			assert.True(t, expiry.Equal(*u.SubscriptionExpiry))
		} else {
			assert.Nil(t, u.SubscriptionExpiry)
		}
	}
}

func TestDirectory_EnsureAdmin(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)

	id, created, err := d.EnsureAdmin(ctx, "root@example.com", "rootpw")
	require.NoError(t, err)
	assert.True(t, created)

	again, created, err := d.EnsureAdmin(ctx, "ROOT@example.com", "different")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, id, again)

	u, err := d.VerifyCredentials(ctx, "root@example.com", "rootpw")
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, u.Role)
}

func TestDirectory_EnsureAdminKeepsExistingUser(t *testing.T) {
	ctx := context.Background()
	d := newDirectory(t)

	userID, err := d.Create(ctx, "carol@example.com", "pw", models.RoleUser)
	require.NoError(t, err)

	id, created, err := d.EnsureAdmin(ctx, "carol@example.com", "rootpw")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, userID, id)

	u, err := d.GetByID(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleUser, u.Role)
}

func TestDirectory_BackendUnavailable(t *testing.T) {
	ctx := context.Background()
	d := New(newNoopLogger(), failingBackend{}, nil, time.Minute)

	_, err := d.Create(ctx, "alice@example.com", "pw", models.RoleUser)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	_, err = d.ListAll(ctx)
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	_, err = d.VerifyCredentials(ctx, "alice@example.com", "pw")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = d.EnsureAdmin(ctx, "root@example.com", "pw")
	assert.ErrorIs(t, err, storage.ErrUnavailable)
}

func TestDirectory_GetByIDUsesCache(t *testing.T) {
	ctx := context.Background()
	backend := memory.New()
	cacheMock := new(CacheMock)
	d := New(newNoopLogger(), backend, cacheMock, time.Minute)

	id, err := d.Create(ctx, "alice@example.com", "pw", models.RoleUser)
	require.NoError(t, err)

	cacheMock.On("Get", mock.Anything, "user:"+id, mock.Anything).Return(false, nil).Once()
	cacheMock.On("Set", mock.Anything, "user:"+id, mock.AnythingOfType("*models.User"), time.Minute).Return(nil).Once()

	u, err := d.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", u.Email)

	cacheMock.On("Get", mock.Anything, "user:"+id, mock.Anything).
		Run(func(args mock.Arguments) {
			out := args.Get(2).(*models.User)
			*out = models.User{UUID: id, Email: "cached@example.com", Role: models.RoleUser}
		}).
		Return(true, nil).Once()

	u, err = d.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "cached@example.com", u.Email)

	cacheMock.AssertExpectations(t)
}

func TestDirectory_CacheErrorsFallThrough(t *testing.T) {
	ctx := context.Background()
	cacheMock := new(CacheMock)
	d := New(newNoopLogger(), memory.New(), cacheMock, time.Minute)

	id, err := d.Create(ctx, "alice@example.com", "pw", models.RoleUser)
	require.NoError(t, err)

	cacheMock.On("Get", mock.Anything, mock.Anything, mock.Anything).Return(false, errors.New("redis down"))
	cacheMock.On("Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("redis down"))
	cacheMock.On("Invalidate", mock.Anything, mock.Anything).Return(errors.New("redis down"))

	u, err := d.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, u.UUID)

	expiry := time.Now().Add(time.Hour)
	assert.NoError(t, d.UpdateSubscription(ctx, id, &expiry))
}

func TestDirectory_UpdateInvalidatesRedisCache(t *testing.T) {
	ctx := context.Background()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	userCache, err := cache.InitServer(ctx, config.RedisConnection{AddressRedis: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = userCache.Close() })

	d := New(newNoopLogger(), memory.New(), userCache, time.Minute)

	id, err := d.Create(ctx, "alice@example.com", "pw", models.RoleUser)
	require.NoError(t, err)

	u, err := d.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, u.SubscriptionExpiry)
	assert.True(t, mr.Exists("user:"+id))

	cached, err := mr.Get("user:" + id)
	require.NoError(t, err)
	assert.NotContains(t, cached, "$2a$")

	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, d.UpdateSubscription(ctx, id, &expiry))
	assert.False(t, mr.Exists("user:"+id))

	u, err = d.GetByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, u.SubscriptionExpiry)
	assert.True(t, expiry.Equal(*u.SubscriptionExpiry))
}
