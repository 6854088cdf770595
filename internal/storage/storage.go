// Package storage описывает контракт хранилища пользователей и общие ошибки,
// которые возвращают все его реализации (PostgreSQL, bbolt, in-memory).
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// Общие ошибки хранилища.
var (
	// ErrUserNotFound: пользователь с таким id или email отсутствует.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists: email уже занят.
	ErrUserExists = errors.New("user already exists")
	// ErrUnavailable: хранилище не ответило или вернуло непредвиденную ошибку.
	ErrUnavailable = errors.New("storage unavailable")
)

// Названия поддерживаемых бэкендов.
const (
	BackendPostgres = "postgres"
	BackendBolt     = "bolt"
	BackendMemory   = "memory"
)

// UserBackend: узкий интерфейс документного хранилища пользователей.
//
// Документ пользователя адресуется id, email: вторичный уникальный ключ.
// Email приходит уже нормализованным. Конкурентные записи в один документ
// разрешаются по принципу last-write-wins.
type UserBackend interface {
	// Insert сохраняет пользователя и возвращает назначенный id.
	// ErrUserExists, если email занят.
	Insert(ctx context.Context, user models.User) (string, error)
	// GetByEmail возвращает пользователя по email или ErrUserNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	// GetByID возвращает пользователя по id или ErrUserNotFound.
	GetByID(ctx context.Context, id string) (*models.User, error)
	// List возвращает всех пользователей. Порядок не гарантируется.
	List(ctx context.Context) ([]*models.User, error)
	// SetSubscriptionExpiry перезаписывает срок подписки или возвращает ErrUserNotFound.
	SetSubscriptionExpiry(ctx context.Context, id string, expiry *time.Time) error
	// Close освобождает ресурсы хранилища.
	Close() error
}
