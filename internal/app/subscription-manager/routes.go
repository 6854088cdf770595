package subscriptionmanager

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	httpSwagger "github.com/swaggo/http-swagger"

	// swagger-спецификация для /docs
	_ "github.com/magabrotheeeer/subscription-manager/docs"

	"github.com/magabrotheeeer/subscription-manager/internal/api/handlers/admin/subscription"
	"github.com/magabrotheeeer/subscription-manager/internal/api/handlers/admin/users"
	"github.com/magabrotheeeer/subscription-manager/internal/api/handlers/auth/login"
	"github.com/magabrotheeeer/subscription-manager/internal/api/handlers/auth/register"
	"github.com/magabrotheeeer/subscription-manager/internal/api/handlers/health"
	"github.com/magabrotheeeer/subscription-manager/internal/api/handlers/user/me"
	"github.com/magabrotheeeer/subscription-manager/internal/api/middlewarectx"
	"github.com/magabrotheeeer/subscription-manager/internal/api/response"
	"github.com/magabrotheeeer/subscription-manager/internal/metrics"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/services/auth"
	subservice "github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
)

// Services: зависимости маршрутов.
type Services struct {
	Auth          *auth.AuthService
	Subscriptions *subservice.SubscriptionService
	Limiter       *middlewarectx.IPRateLimiter
	Metrics       *metrics.Metrics
	Version       string
}

// RegisterRoutes регистрирует все маршруты приложения.
func RegisterRoutes(r chi.Router, logger *slog.Logger, s Services) {
	// Глобальные middleware. RealIP не подключён: лимитер считает запросы по адресу сокета,
	// а заголовки X-Forwarded-For и X-Real-IP задаёт сам клиент.
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		s.Metrics.Middleware,
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.WriteError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.WriteError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	// Открытые конечные точки под лимитом запросов
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.RateLimitMiddleware(logger, s.Limiter, s.Metrics))
		r.Post("/auth/register", register.New(logger, s.Auth).ServeHTTP)
		r.Post("/auth/login", login.New(logger, s.Auth).ServeHTTP)
		r.Get("/health", health.New(s.Version).ServeHTTP)
	})

	// Группа с JWT аутентификацией
	r.Group(func(r chi.Router) {
		r.Use(middlewarectx.JWTMiddleware(s.Auth, logger))
		r.Get("/user/me", me.New(logger, s.Subscriptions).ServeHTTP)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middlewarectx.RequireRole(models.RoleAdmin, logger))
			r.Get("/users", users.New(logger, s.Subscriptions).ServeHTTP)
			r.Patch("/subscription", subscription.New(logger, s.Subscriptions).ServeHTTP)
		})
	})

	r.Handle("/metrics", s.Metrics.Handler())
	// Swagger docs endpoint
	r.Get("/docs/*", httpSwagger.WrapHandler)
}
