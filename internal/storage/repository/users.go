package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
)

const userColumns = `uid, email, password_hash, role, subscription_expiry, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var role string
	var subscriptionExpiry sql.NullTime
	if err := row.Scan(&u.UUID, &u.Email, &u.PasswordHash, &role,
		&subscriptionExpiry, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	if subscriptionExpiry.Valid {
		t := subscriptionExpiry.Time.UTC()
		u.SubscriptionExpiry = &t
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

// Insert сохраняет нового пользователя в базу данных и возвращает его ID.
func (s *Storage) Insert(ctx context.Context, user models.User) (string, error) {
	const op = "storage.postgres.Insert"

	var newID string
	query := `INSERT INTO users (email, password_hash, role, subscription_expiry)
			  VALUES ($1, $2, $3, $4)
			  RETURNING uid;`
	if err := s.DB.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, string(user.Role), user.SubscriptionExpiry).Scan(&newID); err != nil {
		return "", mapError(op, err)
	}
	return newID, nil
}

// GetByEmail возвращает пользователя по email.
func (s *Storage) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "storage.postgres.GetByEmail"

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, mapError(op, err)
	}
	return u, nil
}

// GetByID возвращает пользователя по его UID.
func (s *Storage) GetByID(ctx context.Context, id string) (*models.User, error) {
	const op = "storage.postgres.GetByID"

	// Колонка uid имеет тип UUID: строка другого формата не может существовать в таблице.
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	query := `SELECT ` + userColumns + ` FROM users WHERE uid = $1`
	u, err := scanUser(s.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, mapError(op, err)
	}
	return u, nil
}

// List возвращает всех пользователей, упорядоченных по email.
func (s *Storage) List(ctx context.Context) ([]*models.User, error) {
	const op = "storage.postgres.List"

	query := `SELECT ` + userColumns + ` FROM users ORDER BY email`
	rows, err := s.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	result := make([]*models.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		result = append(result, u)
	}
	if err = rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return result, nil
}

// SetSubscriptionExpiry перезаписывает срок подписки пользователя.
func (s *Storage) SetSubscriptionExpiry(ctx context.Context, id string, expiry *time.Time) error {
	const op = "storage.postgres.SetSubscriptionExpiry"

	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}

	query := `UPDATE users
		      SET subscription_expiry = $1
			  WHERE uid = $2`
	res, err := s.DB.ExecContext(ctx, query, expiry, id)
	if err != nil {
		return mapError(op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return mapError(op, err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", op, storage.ErrUserNotFound)
	}
	return nil
}
