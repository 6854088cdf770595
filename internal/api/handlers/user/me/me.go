// Package me реализует HTTP-обработчик профиля текущего пользователя.
package me

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/subscription-manager/internal/api/middlewarectx"
	"github.com/magabrotheeeer/subscription-manager/internal/api/response"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/models"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
)

// Service возвращает профиль по id.
type Service interface {
	Me(ctx context.Context, userUID string) (models.PublicUser, error)
}

// Handler обрабатывает GET /user/me.
type Handler struct {
	log     *slog.Logger
	service Service
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:     log,
		service: service,
	}
}

// ServeHTTP godoc
// @Summary Профиль текущего пользователя
// @Tags User
// @Produce  json
// @Security BearerAuth
// @Success 200 {object} models.PublicUser "Профиль"
// @Failure 401 {object} response.ErrorResponse "Нет или неверный токен"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /user/me [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.user.me"

	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	userUID, ok := middlewarectx.UserUIDFromContext(r.Context())
	if !ok {
		log.Error("user identification missing")
		response.Unauthorized(w, r, "authentication required")
		return
	}

	user, err := h.service.Me(r.Context(), userUID)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		log.Warn("token subject not found", slog.String("user_id", userUID))
		response.WriteError(w, r, http.StatusNotFound, "user not found")
		return
	case err != nil:
		log.Error("failed to load profile", sl.Err(err))
		response.WriteError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	render.JSON(w, r, user)
}
