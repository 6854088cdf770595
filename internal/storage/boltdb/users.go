package boltdb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.etcd.io/bbolt"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
)

// userDocument: формат хранения. В отличие от models.User сериализует хеш пароля.
type userDocument struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	PasswordHash       string     `json:"password_hash"`
	Role               string     `json:"role"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func toDocument(u models.User) userDocument {
	return userDocument{
		ID:                 u.UUID,
		Email:              u.Email,
		PasswordHash:       u.PasswordHash,
		Role:               string(u.Role),
		SubscriptionExpiry: u.SubscriptionExpiry,
		CreatedAt:          u.CreatedAt,
	}
}

func (d userDocument) model() *models.User {
	return &models.User{
		UUID:               d.ID,
		Email:              d.Email,
		PasswordHash:       d.PasswordHash,
		Role:               models.Role(d.Role),
		SubscriptionExpiry: d.SubscriptionExpiry,
		CreatedAt:          d.CreatedAt,
	}
}

func readDocument(b *bbolt.Bucket, id []byte) (*userDocument, error) {
	raw := b.Get(id)
	if raw == nil {
		return nil, storage.ErrUserNotFound
	}
	var doc userDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user %s: %w", id, err)
	}
	return &doc, nil
}

func writeDocument(b *bbolt.Bucket, doc userDocument) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal user %s: %w", doc.ID, err)
	}
	return b.Put([]byte(doc.ID), raw)
}

// Insert сохраняет пользователя; проверка email и запись идут в одной транзакции.
func (s *Storage) Insert(ctx context.Context, user models.User) (string, error) {
	const op = "storage.boltdb.Insert"
	if err := ctx.Err(); err != nil {
		return "", wrap(op, err)
	}

	doc := toDocument(user)
	doc.ID = uuid.NewString()
	doc.CreatedAt = s.now().UTC()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		byEmail := tx.Bucket(bucketByEmail)
		if byEmail.Get([]byte(doc.Email)) != nil {
			return storage.ErrUserExists
		}
		if err := writeDocument(tx.Bucket(bucketUsers), doc); err != nil {
			return err
		}
		return byEmail.Put([]byte(doc.Email), []byte(doc.ID))
	})
	if err != nil {
		return "", wrap(op, err)
	}
	return doc.ID, nil
}

// GetByEmail возвращает пользователя по email через индекс.
func (s *Storage) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.boltdb.GetByEmail"
	if err := ctx.Err(); err != nil {
		return nil, wrap(op, err)
	}

	var doc *userDocument
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(bucketByEmail).Get([]byte(email))
		if id == nil {
			return storage.ErrUserNotFound
		}
		var err error
		doc, err = readDocument(tx.Bucket(bucketUsers), id)
		return err
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return doc.model(), nil
}

// GetByID возвращает пользователя по id.
func (s *Storage) GetByID(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.boltdb.GetByID"
	if err := ctx.Err(); err != nil {
		return nil, wrap(op, err)
	}

	var doc *userDocument
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		doc, err = readDocument(tx.Bucket(bucketUsers), []byte(id))
		return err
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	return doc.model(), nil
}

// List возвращает всех пользователей, упорядоченных по email.
func (s *Storage) List(ctx context.Context) ([]*models.User, error) {
	const op = "storage.boltdb.List"
	if err := ctx.Err(); err != nil {
		return nil, wrap(op, err)
	}

	result := make([]*models.User, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketUsers).ForEach(func(_, v []byte) error {
			var doc userDocument
			if err := json.Unmarshal(v, &doc); err != nil {
				return fmt.Errorf("failed to unmarshal user: %w", err)
			}
			result = append(result, doc.model())
			return nil
		})
	})
	if err != nil {
		return nil, wrap(op, err)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Email < result[j].Email })
	return result, nil
}

// SetSubscriptionExpiry перезаписывает срок подписки в документе пользователя.
func (s *Storage) SetSubscriptionExpiry(ctx context.Context, id string, expiry *time.Time) error {
	const op = "storage.boltdb.SetSubscriptionExpiry"
	if err := ctx.Err(); err != nil {
		return wrap(op, err)
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		users := tx.Bucket(bucketUsers)
		doc, err := readDocument(users, []byte(id))
		if err != nil {
			return err
		}
		if expiry != nil {
			t := expiry.UTC()
			doc.SubscriptionExpiry = &t
		} else {
			doc.SubscriptionExpiry = nil
		}
		return writeDocument(users, *doc)
	})
	return wrap(op, err)
}
