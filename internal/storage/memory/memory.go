// Package memory реализует хранилище пользователей в памяти процесса.
//
// Включается только явно (storage.backend: memory) для тестов и локального запуска.
// Данные теряются при перезапуске.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
)

// Storage хранит пользователей в map под RWMutex.
type Storage struct {
	mu      sync.RWMutex
	byID    map[string]models.User
	byEmail map[string]string
	now     func() time.Time
}

var _ storage.UserBackend = (*Storage)(nil)

// New создает пустое хранилище.
func New() *Storage {
	return &Storage{
		byID:    make(map[string]models.User),
		byEmail: make(map[string]string),
		now:     time.Now,
	}
}

// Insert сохраняет копию пользователя под новым id.
func (s *Storage) Insert(ctx context.Context, user models.User) (string, error) {
	const op = "storage.memory.Insert"
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byEmail[user.Email]; ok {
		return "", fmt.Errorf("%s: %w", op, storage.ErrUserExists)
	}
	user.UUID = uuid.NewString()
	user.CreatedAt = s.now().UTC()
	user.SubscriptionExpiry = cloneTime(user.SubscriptionExpiry)
	s.byID[user.UUID] = user
	s.byEmail[user.Email] = user.UUID
	return user.UUID, nil
}

// GetByEmail возвращает копию пользователя по email.
func (s *Storage) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.memory.GetByEmail"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[email]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	u := s.byID[id]
	return copyUser(u), nil
}

// GetByID возвращает копию пользователя по id.
func (s *Storage) GetByID(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.memory.GetByID"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return copyUser(u), nil
}

// List возвращает копии всех пользователей, упорядоченные по email.
func (s *Storage) List(ctx context.Context) ([]*models.User, error) {
	const op = "storage.memory.List"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.mu.RLock()
	result := make([]*models.User, 0, len(s.byID))
	for _, u := range s.byID {
		result = append(result, copyUser(u))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	return result, nil
}

// SetSubscriptionExpiry перезаписывает срок подписки.
func (s *Storage) SetSubscriptionExpiry(ctx context.Context, id string, expiry *time.Time) error {
	const op = "storage.memory.SetSubscriptionExpiry"
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	u.SubscriptionExpiry = cloneTime(expiry)
	s.byID[id] = u
	return nil
}

// Close ничего не делает.
func (s *Storage) Close() error {
	return nil
}

func copyUser(u models.User) *models.User {
	u.SubscriptionExpiry = cloneTime(u.SubscriptionExpiry)
	return &u
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := t.UTC()
	return &c
}
