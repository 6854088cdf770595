// Package middlewarectx содержит HTTP middleware аутентификации, проверки роли
// и ограничения частоты запросов.
//
// JWTMiddleware проверяет токен из заголовка Authorization и кладёт в контекст
// идентификатор пользователя и роль. Любая ошибка проверки даёт 401 до вызова обработчика.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"

	"github.com/magabrotheeeer/subscription-manager/internal/api/response"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/services/auth"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

const (
	// UserUID: ключ для идентификатора пользователя в контексте
	UserUID Key = "user_uid"
	// Role: ключ для роли пользователя в контексте
	Role Key = "role"
)

// TokenValidator описывает проверку токена доступа.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*auth.Identity, error)
}

// UserUIDFromContext возвращает идентификатор, положенный JWTMiddleware.
func UserUIDFromContext(ctx context.Context) (string, bool) {
	uid, ok := ctx.Value(UserUID).(string)
	return uid, ok && uid != ""
}

// RoleFromContext возвращает роль, положенную JWTMiddleware.
func RoleFromContext(ctx context.Context) (models.Role, bool) {
	role, ok := ctx.Value(Role).(models.Role)
	return role, ok
}

// JWTMiddleware возвращает HTTP middleware, который проверяет bearer-токен.
func JWTMiddleware(validator TokenValidator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"

			log := log.With(
				sl.Op(op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			scheme, tokenStr, found := strings.Cut(r.Header.Get("Authorization"), " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(tokenStr) == "" {
				log.Warn("missing or invalid authorization header")
				response.Unauthorized(w, r, "missing or invalid authorization header")
				return
			}

			identity, err := validator.ValidateToken(r.Context(), strings.TrimSpace(tokenStr))
			if err != nil {
				log.Warn("invalid or expired token", sl.Err(err))
				response.Unauthorized(w, r, "invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), UserUID, identity.UserUID)
			ctx = context.WithValue(ctx, Role, identity.Role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole пропускает только запросы с ролью role.
// Без личности в контексте отвечает 401, с другой ролью: 403.
func RequireRole(role models.Role, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.RequireRole"

			got, ok := RoleFromContext(r.Context())
			if !ok {
				log.Warn("identity missing in context", sl.Op(op))
				response.Unauthorized(w, r, "authentication required")
				return
			}
			if got != role {
				uid, _ := UserUIDFromContext(r.Context())
				log.Warn("access denied",
					sl.Op(op),
					slog.String("request_id", middleware.GetReqID(r.Context())),
					slog.String("user_id", uid),
					slog.String("role", string(got)),
				)
				response.WriteError(w, r, http.StatusForbidden, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
