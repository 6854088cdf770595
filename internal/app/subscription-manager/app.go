// Package subscriptionmanager собирает зависимости сервиса и запускает HTTP-сервер.
package subscriptionmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi"
	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/subscription-manager/internal/api/middlewarectx"
	"github.com/magabrotheeeer/subscription-manager/internal/config"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/jwt"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/metrics"
	"github.com/magabrotheeeer/subscription-manager/internal/migrations"
	"github.com/magabrotheeeer/subscription-manager/internal/services/auth"
	"github.com/magabrotheeeer/subscription-manager/internal/services/directory"
	subservice "github.com/magabrotheeeer/subscription-manager/internal/services/subscription"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/boltdb"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/cache"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/memory"
	"github.com/magabrotheeeer/subscription-manager/internal/storage/repository"
)

const shutdownTimeout = 15 * time.Second

type closer struct {
	name  string
	close func() error
}

// App держит HTTP-сервер и ресурсы, которые нужно закрыть при остановке.
type App struct {
	server  *http.Server
	logger  *slog.Logger
	closers []closer
}

// OpenStorage открывает бэкенд, выбранный в конфиге. Для postgres применяет миграции.
func OpenStorage(ctx context.Context, cfg *config.Config, logger *slog.Logger) (storage.UserBackend, error) {
	const op = "app.OpenStorage"

	switch cfg.Backend {
	case storage.BackendPostgres:
		db, err := repository.New(ctx, cfg.StorageConnectionString)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := repository.CheckDatabaseReady(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("storage ready", slog.String("backend", cfg.Backend))
		return db, nil
	case storage.BackendBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.BoltPath), 0o750); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		db, err := boltdb.New(ctx, cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		logger.Info("storage ready", slog.String("backend", cfg.Backend), slog.String("path", cfg.BoltPath))
		return db, nil
	case storage.BackendMemory:
		logger.Warn("using in-memory storage, data will be lost on restart")
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("%s: unknown storage backend %q", op, cfg.Backend)
	}
}

// New собирает приложение: хранилище, кеш, брокер, сервисы и маршруты.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	const op = "app.New"
	app := &App{logger: logger}

	backend, err := OpenStorage(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	app.closers = append(app.closers, closer{name: "storage", close: backend.Close})

	var userCache directory.Cache
	if cfg.AddressRedis != "" {
		redisCache, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		app.closers = append(app.closers, closer{name: "cache", close: redisCache.Close})
		userCache = redisCache
	} else {
		logger.Info("redis address is empty, user cache disabled")
	}

	var publisher subservice.EventPublisher
	if cfg.RabbitURL != "" {
		p, err := app.connectPublisher(ctx, cfg.RabbitMQ)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		publisher = p
	} else {
		logger.Info("rabbitmq url is empty, subscription events disabled")
	}

	m := metrics.New()
	users := directory.New(logger, backend, userCache, cfg.CacheTTL)

	if cfg.AdminEmail != "" {
		id, created, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("%s: seed admin: %w", op, err)
		}
		logger.Info("admin seed checked", slog.String("user_id", id), slog.Bool("created", created))
	}

	jwtMaker := jwt.NewJWTMaker(cfg.JWTSecretKey, cfg.TokenTTL)
	authService := auth.NewAuthService(users, jwtMaker, m)
	subscriptionService := subservice.NewSubscriptionService(logger, users, publisher, m)

	router := chi.NewRouter()
	RegisterRoutes(router, logger, Services{
		Auth:          authService,
		Subscriptions: subscriptionService,
		Limiter:       middlewarectx.NewIPRateLimiter(cfg.RPS, cfg.Burst),
		Metrics:       m,
		Version:       cfg.Version,
	})

	app.server = &http.Server{
		Addr:              cfg.AddressHTTP,
		Handler:           router,
		ReadTimeout:       cfg.TimeoutHTTP,
		ReadHeaderTimeout: cfg.TimeoutHTTP,
		WriteTimeout:      cfg.TimeoutHTTP,
		IdleTimeout:       cfg.IdleTimeout,
	}
	return app, nil
}

func (a *App) connectPublisher(ctx context.Context, cfg config.RabbitMQ) (*rabbitmq.Publisher, error) {
	conn, err := rabbitmq.Connect(ctx, cfg.RabbitURL, cfg.RabbitRetries, cfg.RabbitRetryDelay)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closer{name: "rabbitmq connection", close: conn.Close})

	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetSubscriptionQueues())
	if err != nil {
		return nil, err
	}
	publisher := rabbitmq.NewPublisher(ch, rabbitmq.ExchangeSubscriptions)
	a.closers = append(a.closers, closer{name: "rabbitmq channel", close: publisher.Close})

	go a.watchBroker(conn)
	return publisher, nil
}

func (a *App) watchBroker(conn *amqp.Connection) {
	if err := <-conn.NotifyClose(make(chan *amqp.Error, 1)); err != nil {
		a.logger.Error("rabbitmq connection closed, subscription events will not be published", sl.Err(err))
	}
}

// Handler возвращает корневой HTTP-обработчик.
func (a *App) Handler() http.Handler {
	return a.server.Handler
}

// Run запускает сервер и блокируется до ошибки или отмены ctx, после чего
// останавливает сервер и закрывает ресурсы.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("HTTP server starting on", slog.String("address", a.server.Addr))
		err := a.server.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errCh <- nil
		} else {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		a.Close()
		return err
	case <-ctx.Done():
		timeoutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("shutting down HTTP server gracefully")
		err := a.server.Shutdown(timeoutCtx)
		a.Close()
		return err
	}
}

// Close закрывает ресурсы в обратном порядке открытия.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.logger.Error("failed to close resource", slog.String("resource", c.name), sl.Err(err))
		}
	}
	a.closers = nil
}
