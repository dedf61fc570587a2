package handlers

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/adminsync/pkg/api"
)

// RoomLister список комнат хаба
type RoomLister interface {
	Rooms() []string
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger *slog.Logger
	rooms  RoomLister
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, rooms RoomLister) *HealthHandler {
	return &HealthHandler{
		logger: logger,
		rooms:  rooms,
	}
}

// Health обрабатывает GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, h.logger, api.HealthResponse{
		Status: "ok",
		Rooms:  len(h.rooms.Rooms()),
	}, http.StatusOK)
}
