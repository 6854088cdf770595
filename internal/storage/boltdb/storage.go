// Package boltdb реализует документное хранилище пользователей на bbolt:
// один JSON-документ на пользователя плюс индекс email → id.
package boltdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/magabrotheeeer/subscription-manager/internal/storage"
)

var (
	bucketUsers   = []byte("users")
	bucketByEmail = []byte("users_by_email")
)

// Storage: bbolt-реализация storage.UserBackend.
type Storage struct {
	db  *bbolt.DB
	now func() time.Time
}

var _ storage.UserBackend = (*Storage)(nil)

// New открывает (или создаёт) файл базы и инициализирует бакеты.
func New(ctx context.Context, dbPath string) (*Storage, error) {
	const op = "storage.boltdb.New"
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
	}

	s := &Storage{db: db, now: time.Now}
	if err := s.initBuckets(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return s, nil
}

// Close закрывает файл базы.
func (s *Storage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) initBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketUsers, bucketByEmail} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
		}
		return nil
	})
}

// wrap оставляет доменные ошибки как есть, остальное считает недоступностью хранилища.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, storage.ErrUserNotFound) || errors.Is(err, storage.ErrUserExists) ||
		errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, storage.ErrUnavailable, err)
}
