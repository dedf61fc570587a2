package handlers

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/iudanet/adminsync/internal/validation"
)

// ClientIDHeader заголовок с идентификатором экземпляра клиента
const ClientIDHeader = "X-Client-ID"

// WSServer принимает websocket подключения
type WSServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, clientID, user string) error
}

// WSHandler подключает администраторов к хабу
type WSHandler struct {
	logger *slog.Logger
	hub    WSServer
}

// NewWSHandler создает handler websocket подключений
func NewWSHandler(logger *slog.Logger, hub WSServer) *WSHandler {
	return &WSHandler{logger: logger, hub: hub}
}

// Serve обрабатывает GET /api/v1/ws
// Токен проверяется AuthMiddleware до апгрейда соединения
func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username, ok := GetUsername(ctx)
	if !ok {
		h.logger.ErrorContext(ctx, "username not found in context")
		sendError(w, h.logger, "unauthorized", http.StatusUnauthorized)
		return
	}

	clientID := r.Header.Get(ClientIDHeader)
	if clientID == "" {
		clientID = uuid.NewString()
	} else if err := validation.ValidateEntityID(clientID); err != nil {
		sendError(w, h.logger, "invalid client id", http.StatusBadRequest)
		return
	}

	if err := h.hub.ServeWS(w, r, clientID, username); err != nil {
		h.logger.WarnContext(ctx, "websocket upgrade failed",
			slog.String("client_id", clientID),
			slog.Any("error", err))
	}
}
