// Package jwt реализует выпуск и проверку подписанных токенов доступа.
//
// Токен несёт идентификатор пользователя (claim sub), его роль и срок жизни.
// Подпись: HS256 с общим секретом процесса.
package jwt

import (
	"errors"
	"time"
)

// Ошибки проверки токена. Различаются внутри сервиса, на границе HTTP сводятся к 401.
var (
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenExpired   = errors.New("token is expired")
)

// Maker описывает интерфейс для генерации и парсинга токенов.
type Maker interface {
	// GenerateToken выпускает токен для пользователя с указанной ролью.
	GenerateToken(subject, role string) (string, error)
	// ParseToken проверяет подпись и срок жизни, возвращает claims.
	ParseToken(tokenStr string) (*CustomClaims, error)
	// TTL возвращает время жизни выпускаемых токенов.
	TTL() time.Duration
}

// MakerImpl реализует Maker с использованием секретного ключа и TTL.
type MakerImpl struct {
	secretKey []byte
	tokenTTL  time.Duration
	now       func() time.Time
}

// NewJWTMaker создаёт новый экземпляр MakerImpl на основе секретного ключа и TTL.
func NewJWTMaker(secretKey string, ttl time.Duration) *MakerImpl {
	return &MakerImpl{
		secretKey: []byte(secretKey),
		tokenTTL:  ttl,
		now:       time.Now,
	}
}

// TTL возвращает время жизни токенов.
func (j *MakerImpl) TTL() time.Duration {
	return j.tokenTTL
}
