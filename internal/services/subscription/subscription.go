// Package subscription содержит сценарии работы с профилем и сроком подписки.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/metrics"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Directory описывает операции справочника пользователей, нужные сценариям подписки.
type Directory interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	ListAll(ctx context.Context) ([]*models.User, error)
	UpdateSubscription(ctx context.Context, id string, expiry *time.Time) error
}

// EventPublisher публикует события об изменении подписки.
type EventPublisher interface {
	Publish(ctx context.Context, routingKey string, message any) error
}

// SubscriptionService реализует сценарии /user/me и /admin/*.
type SubscriptionService struct {
	log       *slog.Logger
	users     Directory
	publisher EventPublisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

// NewSubscriptionService создает сервис. publisher и m могут быть nil.
func NewSubscriptionService(log *slog.Logger, users Directory, publisher EventPublisher, m *metrics.Metrics) *SubscriptionService {
	return &SubscriptionService{
		log:       log,
		users:     users,
		publisher: publisher,
		metrics:   m,
		now:       time.Now,
	}
}

// Me возвращает профиль владельца токена.
func (s *SubscriptionService) Me(ctx context.Context, userUID string) (models.PublicUser, error) {
	const op = "subscription.Me"
	user, err := s.users.GetByID(ctx, userUID)
	if err != nil {
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}
	return user.Public(), nil
}

// ListUsers возвращает всех пользователей. Пустой справочник: пустой, но не nil срез.
func (s *SubscriptionService) ListUsers(ctx context.Context) ([]models.PublicUser, error) {
	const op = "subscription.ListUsers"
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	result := make([]models.PublicUser, 0, len(users))
	for _, u := range users {
		result = append(result, u.Public())
	}
	return result, nil
}

// UpdateSubscription перезаписывает срок подписки пользователя и публикует событие.
// Ошибка публикации только логируется: запись к этому моменту уже сохранена.
func (s *SubscriptionService) UpdateSubscription(ctx context.Context, updatedBy, userUID string, expiry time.Time) error {
	const op = "subscription.UpdateSubscription"
	log := s.log.With(sl.Op(op), slog.String("user_id", userUID))

	user, err := s.users.GetByID(ctx, userUID)
	if err != nil {
		s.metrics.ObserveSubscriptionUpdate(metrics.ResultFailure)
		return fmt.Errorf("%s: %w", op, err)
	}

	expiry = expiry.UTC()
	if err := s.users.UpdateSubscription(ctx, userUID, &expiry); err != nil {
		s.metrics.ObserveSubscriptionUpdate(metrics.ResultFailure)
		return fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.ObserveSubscriptionUpdate(metrics.ResultSuccess)
	log.Info("subscription updated", slog.Time("expiry", expiry), slog.String("updated_by", updatedBy))

	if s.publisher == nil {
		return nil
	}
	event := models.SubscriptionUpdated{
		UserUID:            userUID,
		Email:              user.Email,
		SubscriptionExpiry: &expiry,
		UpdatedBy:          updatedBy,
		UpdatedAt:          s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, rabbitmq.RoutingKeySubscriptionUpdate, event); err != nil {
		log.Error("failed to publish subscription event", sl.Err(err))
	}
	return nil
}
