package subscription

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-manager/internal/metrics"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/services/directory"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/memory"
)

func newNoopLogger() *slog.Logger {
	h := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{})
	return slog.New(h)
}

// PublisherMock мок публикации событий
type PublisherMock struct {
	mock.Mock
}

func (m *PublisherMock) Publish(ctx context.Context, routingKey string, message any) error {
	args := m.Called(ctx, routingKey, message)
	return args.Error(0)
}

func setup(t *testing.T) (*SubscriptionService, *directory.Directory, *PublisherMock, *metrics.Metrics) {
	t.Helper()
	dir := directory.New(newNoopLogger(), memory.New(), nil, time.Minute)
	pub := new(PublisherMock)
	m := metrics.New()
	svc := NewSubscriptionService(newNoopLogger(), dir, pub, m)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	return svc, dir, pub, m
}

func TestSubscriptionService_Me(t *testing.T) {
	svc, dir, _, _ := setup(t)
	ctx := context.Background()

	id, err := dir.Create(ctx, "alice@example.com", "pw123", models.RoleUser)
	require.NoError(t, err)

	me, err := svc.Me(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PublicUser{ID: id, Email: "alice@example.com", Role: models.RoleUser}, me)

	_, err = svc.Me(ctx, "missing")
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
}

func TestSubscriptionService_ListUsers(t *testing.T) {
	svc, dir, _, _ := setup(t)
	ctx := context.Background()

	empty, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	_, err = dir.Create(ctx, "alice@example.com", "pw", models.RoleUser)
	require.NoError(t, err)
	_, err = dir.Create(ctx, "root@example.com", "pw", models.RoleAdmin)
	require.NoError(t, err)

	users, err := svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	emails := []string{users[0].Email, users[1].Email}
	assert.ElementsMatch(t, []string{"alice@example.com", "root@example.com"}, emails)
}

func TestSubscriptionService_UpdateSubscription(t *testing.T) {
	svc, dir, pub, m := setup(t)
	ctx := context.Background()

	bobID, err := dir.Create(ctx, "bob@example.com", "pw", models.RoleUser)
	require.NoError(t, err)

	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pub.On("Publish", mock.Anything, rabbitmq.RoutingKeySubscriptionUpdate, mock.MatchedBy(func(ev models.SubscriptionUpdated) bool {
		return ev.UserUID == bobID &&
			ev.Email == "bob@example.com" &&
			ev.UpdatedBy == "admin-1" &&
			ev.SubscriptionExpiry != nil && ev.SubscriptionExpiry.Equal(expiry)
	})).Return(nil).Once()

	require.NoError(t, svc.UpdateSubscription(ctx, "admin-1", bobID, expiry))

	me, err := svc.Me(ctx, bobID)
	require.NoError(t, err)
	require.NotNil(t, me.SubscriptionExpiry)
	assert.True(t, expiry.Equal(*me.SubscriptionExpiry))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionUpdates.WithLabelValues(metrics.ResultSuccess)))
	pub.AssertExpectations(t)
}

func TestSubscriptionService_UpdateSubscriptionNotFound(t *testing.T) {
	svc, _, pub, m := setup(t)

	err := svc.UpdateSubscription(context.Background(), "admin-1", "missing", time.Now())
	assert.ErrorIs(t, err, storage.ErrUserNotFound)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscriptionUpdates.WithLabelValues(metrics.ResultFailure)))
	pub.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubscriptionService_PublishFailureIsNotFatal(t *testing.T) {
	svc, dir, pub, _ := setup(t)
	ctx := context.Background()

	id, err := dir.Create(ctx, "bob@example.com", "pw", models.RoleUser)
	require.NoError(t, err)

	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	expiry := time.Date(2027, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, svc.UpdateSubscription(ctx, "admin-1", id, expiry))

	me, err := svc.Me(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, me.SubscriptionExpiry)
	assert.True(t, expiry.Equal(*me.SubscriptionExpiry))
}

func TestSubscriptionService_NoPublisher(t *testing.T) {
	dir := directory.New(newNoopLogger(), memory.New(), nil, time.Minute)
	svc := NewSubscriptionService(newNoopLogger(), dir, nil, nil)
	ctx := context.Background()

	id, err := dir.Create(ctx, "bob@example.com", "pw", models.RoleUser)
	require.NoError(t, err)
	assert.NoError(t, svc.UpdateSubscription(ctx, "admin-1", id, time.Now().Add(time.Hour)))
}
