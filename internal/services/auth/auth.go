// Package auth содержит логику регистрации, входа и проверки токенов доступа.
package auth

import (
	"context"
	"fmt"

	"github.com/magabrotheeeer/subscription-manager/internal/lib/jwt"
	"github.com/magabrotheeeer/subscription-manager/internal/metrics"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
)

// TokenTypeBearer: тип выдаваемого токена.
const TokenTypeBearer = "bearer"

// Directory описывает операции справочника пользователей, нужные аутентификации.
type Directory interface {
	// Create сохраняет нового пользователя и возвращает его ID.
	Create(ctx context.Context, email, password string, role models.Role) (string, error)
	// VerifyCredentials возвращает пользователя или directory.ErrInvalidCredentials.
	VerifyCredentials(ctx context.Context, email, password string) (*models.User, error)
}

// Token: ответ на успешный вход.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"` // секунды
}

// Identity: проверенная личность владельца токена.
type Identity struct {
	UserUID string
	Role    models.Role
}

// AuthService отвечает за регистрацию, авторизацию и валидацию JWT.
type AuthService struct {
	users    Directory
	jwtMaker jwt.Maker
	metrics  *metrics.Metrics
}

// NewAuthService создает новый экземпляр AuthService. m может быть nil.
func NewAuthService(users Directory, jwtMaker jwt.Maker, m *metrics.Metrics) *AuthService {
	return &AuthService{
		users:    users,
		jwtMaker: jwtMaker,
		metrics:  m,
	}
}

// Register создает пользователя с ролью user и без подписки.
func (s *AuthService) Register(ctx context.Context, email, rawPassword string) (models.PublicUser, error) {
	const op = "auth.Register"

	id, err := s.users.Create(ctx, email, rawPassword, models.RoleUser)
	if err != nil {
		s.metrics.ObserveAuth("register", metrics.ResultFailure)
		return models.PublicUser{}, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.ObserveAuth("register", metrics.ResultSuccess)

	return models.PublicUser{
		ID:    id,
		Email: models.NormalizeEmail(email),
		Role:  models.RoleUser,
	}, nil
}

// Login проверяет пароль пользователя и выпускает токен доступа.
func (s *AuthService) Login(ctx context.Context, email, rawPassword string) (*Token, error) {
	const op = "auth.Login"

	user, err := s.users.VerifyCredentials(ctx, email, rawPassword)
	if err != nil {
		s.metrics.ObserveAuth("login", metrics.ResultFailure)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	signed, err := s.jwtMaker.GenerateToken(user.UUID, string(user.Role))
	if err != nil {
		s.metrics.ObserveAuth("login", metrics.ResultFailure)
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.metrics.ObserveAuth("login", metrics.ResultSuccess)

	return &Token{
		AccessToken: signed,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(s.jwtMaker.TTL().Seconds()),
	}, nil
}

// ValidateToken проверяет JWT и возвращает личность владельца.
func (s *AuthService) ValidateToken(_ context.Context, token string) (*Identity, error) {
	const op = "auth.ValidateToken"

	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Identity{
		UserUID: claims.Subject,
		Role:    models.Role(claims.Role),
	}, nil
}

