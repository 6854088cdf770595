// Package subscription реализует HTTP-обработчик изменения срока подписки.
package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/subscription-manager/internal/api/middlewarectx"
	"github.com/magabrotheeeer/subscription-manager/internal/api/response"
	"github.com/magabrotheeeer/subscription-manager/internal/lib/sl"
	"github.com/magabrotheeeer/subscription-manager/internal/storage"
)

// Request: новый срок подписки. ExpiryDate в RFC 3339.
type Request struct {
	UserID     string    `json:"user_id" validate:"required" example:"5f0c1b4e-7a43-4a8e-9a53-2b3c1d0e9f10"`
	ExpiryDate time.Time `json:"expiry_date" validate:"required" example:"2026-01-01T00:00:00Z"`
}

// Service обновляет срок подписки.
type Service interface {
	UpdateSubscription(ctx context.Context, updatedBy, userUID string, expiry time.Time) error
}

// Handler обрабатывает PATCH /admin/subscription.
type Handler struct {
	log      *slog.Logger
	service  Service
	validate *validator.Validate
}

// New создает новый экземпляр Handler.
func New(log *slog.Logger, service Service) *Handler {
	return &Handler{
		log:      log,
		service:  service,
		validate: validator.New(),
	}
}

// ServeHTTP godoc
// @Summary Изменение срока подписки
// @Description Перезаписывает срок подписки пользователя
// @Tags Admin
// @Accept  json
// @Produce  json
// @Security BearerAuth
// @Param request body Request true "Пользователь и новый срок"
// @Success 200 {object} response.MessageResponse "Срок обновлён"
// @Failure 400 {object} response.ErrorResponse "Некорректный JSON"
// @Failure 401 {object} response.ErrorResponse "Нет или неверный токен"
// @Failure 403 {object} response.ErrorResponse "Недостаточно прав"
// @Failure 404 {object} response.ErrorResponse "Пользователь не найден"
// @Failure 422 {object} response.ErrorResponse "Ошибка валидации данных"
// @Failure 500 {object} response.ErrorResponse "Ошибка сервера"
// @Router /admin/subscription [patch]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.admin.subscription"

	log := h.log.With(
		sl.Op(op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("failed to decode request body", sl.Err(err))
		response.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validate.Struct(req); err != nil {
		log.Warn("validation failed", sl.Err(err))
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			render.Status(r, http.StatusUnprocessableEntity)
			render.JSON(w, r, response.ValidationError(verrs))
			return
		}
		response.WriteError(w, r, http.StatusBadRequest, "invalid request")
		return
	}

	adminUID, _ := middlewarectx.UserUIDFromContext(r.Context())
	err := h.service.UpdateSubscription(r.Context(), adminUID, req.UserID, req.ExpiryDate)
	switch {
	case errors.Is(err, storage.ErrUserNotFound):
		log.Warn("user not found", slog.String("user_id", req.UserID))
		response.WriteError(w, r, http.StatusNotFound, "user not found")
		return
	case err != nil:
		log.Error("failed to update subscription", sl.Err(err))
		response.WriteError(w, r, http.StatusInternalServerError, "failed to update subscription")
		return
	}

	render.JSON(w, r, response.MessageResponse{Message: "subscription updated"})
}
