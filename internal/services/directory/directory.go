// Package directory реализует справочник пользователей: создание, поиск, проверка
// учётных данных и обновление срока подписки поверх storage.UserBackend.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/password"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
)

var (
	// ErrInvalidCredentials: неизвестный email или неверный пароль, без различия.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidInput: пустой email, пароль вне допустимых границ или неизвестная роль.
	ErrInvalidInput = errors.New("invalid input")
)

// Cache: кеш пользователей по id. Ошибки кеша не прерывают запрос.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

// Directory работает с пользователями через выбранный бэкенд.
type Directory struct {
	log      *slog.Logger
	users    storage.UserBackend
	cache    Cache
	cacheTTL time.Duration
}

// New создает справочник. cache может быть nil.
func New(log *slog.Logger, users storage.UserBackend, cache Cache, cacheTTL time.Duration) *Directory {
	return &Directory{
		log:      log,
		users:    users,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

func cacheKey(id string) string {
	return "user:" + id
}

// Create нормализует email, хеширует пароль и сохраняет пользователя.
func (d *Directory) Create(ctx context.Context, email, rawPassword string, role models.Role) (string, error) {
	const op = "directory.Create"

	email = models.NormalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("%s: %w: empty email", op, ErrInvalidInput)
	}
	if !role.Valid() {
		return "", fmt.Errorf("%s: %w: unknown role %q", op, ErrInvalidInput, role)
	}

	hash, err := password.GetHash(rawPassword)
	if err != nil {
		return "", fmt.Errorf("%s: %w: %w", op, ErrInvalidInput, err)
	}

	id, err := d.users.Insert(ctx, models.User{
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}

// GetByEmail ищет пользователя по email.
func (d *Directory) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "directory.GetByEmail"
	user, err := d.users.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return user, nil
}

// GetByID ищет пользователя по id, сначала в кеше.
// Возвращённая из кеша запись не содержит хеша пароля.
func (d *Directory) GetByID(ctx context.Context, id string) (*models.User, error) {
	const op = "directory.GetByID"

	if d.cache != nil {
		var cached models.User
		found, err := d.cache.Get(ctx, cacheKey(id), &cached)
		if err != nil {
			d.log.Warn("cache read failed", sl.Op(op), sl.Err(err))
		} else if found {
			return &cached, nil
		}
	}

	user, err := d.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if d.cache != nil {
		if err := d.cache.Set(ctx, cacheKey(id), user, d.cacheTTL); err != nil {
			d.log.Warn("cache write failed", sl.Op(op), sl.Err(err))
		}
	}
	return user, nil
}

// ListAll возвращает всех пользователей.
func (d *Directory) ListAll(ctx context.Context) ([]*models.User, error) {
	const op = "directory.ListAll"
	users, err := d.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return users, nil
}

// UpdateSubscription перезаписывает срок подписки и сбрасывает запись в кеше.
func (d *Directory) UpdateSubscription(ctx context.Context, id string, expiry *time.Time) error {
	const op = "directory.UpdateSubscription"
	if err := d.users.SetSubscriptionExpiry(ctx, id, expiry); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if d.cache != nil {
		if err := d.cache.Invalidate(ctx, cacheKey(id)); err != nil {
			d.log.Warn("cache invalidate failed", sl.Op(op), slog.String("user_id", id), sl.Err(err))
		}
	}
	return nil
}

// VerifyCredentials проверяет пару email/пароль.
// Для неизвестного email выполняется холостое сравнение bcrypt, чтобы время ответа не выдавало наличие учётки.
func (d *Directory) VerifyCredentials(ctx context.Context, email, rawPassword string) (*models.User, error) {
	const op = "directory.VerifyCredentials"

	user, err := d.users.GetByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			password.CompareDummy(rawPassword)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !password.Verify(rawPassword, user.PasswordHash) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	return user, nil
}

// EnsureAdmin создаёт администратора, если email свободен.
// Существующая учётка не меняется; возвращается её id и created=false.
func (d *Directory) EnsureAdmin(ctx context.Context, email, rawPassword string) (id string, created bool, err error) {
	const op = "directory.EnsureAdmin"

	existing, err := d.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if existing.Role != models.RoleAdmin {
			d.log.Warn("seed email belongs to a non-admin account, leaving it unchanged",
				sl.Op(op), slog.String("user_id", existing.UUID))
		}
		return existing.UUID, false, nil
	case !errors.Is(err, storage.ErrUserNotFound):
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	id, err = d.Create(ctx, email, rawPassword, models.RoleAdmin)
	if errors.Is(err, storage.ErrUserExists) {
		existing, getErr := d.GetByEmail(ctx, email)
		if getErr != nil {
			return "", false, fmt.Errorf("%s: %w", op, getErr)
		}
		return existing.UUID, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}
	return id, true, nil
}
