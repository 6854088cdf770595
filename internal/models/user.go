// Package models содержит доменную модель пользователя системы
// и её публичное представление, отдаваемое наружу через API.
package models

import (
	"strings"
	"time"
)

// Role: роль пользователя.
type Role string

const (
	// RoleUser: роль по умолчанию при регистрации.
	RoleUser Role = "user"
	// RoleAdmin назначается только вне API (seed-admin, admin_seed в конфиге).
	RoleAdmin Role = "admin"
)

// Valid сообщает, является ли роль одной из известных.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// User представляет зарегистрированного пользователя системы.
type User struct {
	UUID               string     `json:"id"`                            // Идентификатор, назначается хранилищем
	Email              string     `json:"email"`                         // Электронная почта в нижнем регистре
	PasswordHash       string     `json:"-"`                             // bcrypt-хеш, наружу не сериализуется
	Role               Role       `json:"role"`                          // admin или user
	SubscriptionExpiry *time.Time `json:"subscription_expiry,omitempty"` // nil, если подписки нет
	CreatedAt          time.Time  `json:"created_at"`
}

// PublicUser: представление пользователя для ответов API.
type PublicUser struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Role               Role       `json:"role"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry"`
}

// Public возвращает публичное представление без хеша пароля.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:                 u.UUID,
		Email:              u.Email,
		Role:               u.Role,
		SubscriptionExpiry: u.SubscriptionExpiry,
	}
}

// NormalizeEmail приводит адрес к виду, в котором он хранится и ищется.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
