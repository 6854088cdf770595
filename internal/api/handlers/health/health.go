// Package health реализует простую проверку живости сервиса.
package health

import (
	"net/http"

	"github.com/go-chi/render"
)

// Response: ответ проверки живости.
type Response struct {
	Status  string `json:"status" example:"healthy"`
	Version string `json:"version" example:"1.0.0"`
}

// Handler отдаёт статус и версию сборки.
type Handler struct {
	version string
}

// New создает новый экземпляр Handler.
func New(version string) *Handler {
	return &Handler{version: version}
}

// ServeHTTP godoc
// @Summary Проверка живости
// @Tags Health
// @Produce  json
// @Success 200 {object} Response
// @Failure 429 {object} response.ErrorResponse "Слишком много запросов"
// @Router /health [get]
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, Response{Status: "healthy", Version: h.version})
}
