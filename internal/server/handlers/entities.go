package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/registry"
	"github.com/iudanet/adminsync/internal/server/storage"
	"github.com/iudanet/adminsync/internal/validation"
	"github.com/iudanet/adminsync/pkg/api"
)

// Clock источник меток updatedAt
type Clock interface {
	Now() time.Time
	Observe(t time.Time)
}

// EntityHandler CRUD записей. Рассылку изменений выполняют сами клиенты
// через хаб после получения канонического ответа.
type EntityHandler struct {
	logger   *slog.Logger
	storage  storage.EntityStorage
	registry *registry.Registry
	clock    Clock
}

// NewEntityHandler создает handler записей
func NewEntityHandler(logger *slog.Logger, s storage.EntityStorage, reg *registry.Registry, clk Clock) *EntityHandler {
	return &EntityHandler{
		logger:   logger,
		storage:  s,
		registry: reg,
		clock:    clk,
	}
}

// entityType извлекает и проверяет тип из пути
func (h *EntityHandler) entityType(w http.ResponseWriter, r *http.Request) (models.EntityType, bool) {
	t := models.EntityType(r.PathValue("type"))
	if !h.registry.Has(t) {
		h.logger.WarnContext(r.Context(), "unknown entity type", slog.String("type", string(t)))
		sendError(w, h.logger, "unknown entity type", http.StatusBadRequest)
		return "", false
	}
	return t, true
}

// List обрабатывает GET /api/v1/entities/{type}
// Возвращает полный снимок записей типа
func (h *EntityHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	t, ok := h.entityType(w, r)
	if !ok {
		return
	}

	records, err := h.storage.ListEntities(ctx, t)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list entities", slog.String("type", string(t)), slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.ListResponse{Type: string(t), Records: make([]api.Record, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, rec.ToWire())
	}

	sendJSON(w, h.logger, resp, http.StatusOK)
}

// Get обрабатывает GET /api/v1/entities/{type}/{id}
func (h *EntityHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	t, ok := h.entityType(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	rec, err := h.storage.GetEntity(ctx, t, id)
	if err != nil {
		h.storageError(w, r, "get", t, id, err)
		return
	}

	sendJSON(w, h.logger, rec.ToWire(), http.StatusOK)
}

// Create обрабатывает POST /api/v1/entities/{type}
// Id генерируется сервером, если клиент его не передал
func (h *EntityHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	t, ok := h.entityType(w, r)
	if !ok {
		return
	}

	var req api.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode create request", slog.Any("error", err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	if err := validation.ValidateEntityID(id); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	attrs := req.Attributes
	if attrs == nil {
		attrs = map[string]any{}
	}

	now := h.clock.Now()
	rec := &models.EntityRecord{
		ID:         id,
		Type:       t,
		Attributes: attrs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.storage.CreateEntity(ctx, rec); err != nil {
		h.storageError(w, r, "create", t, id, err)
		return
	}

	h.logger.InfoContext(ctx, "entity created",
		slog.String("type", string(t)),
		slog.String("id", id),
		slog.String("admin", usernameOf(r)))

	sendJSON(w, h.logger, rec.ToWire(), http.StatusCreated)
}

// Update обрабатывает PATCH /api/v1/entities/{type}/{id}
// Атрибуты сливаются с сохраненными, null удаляет ключ
func (h *EntityHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	t, ok := h.entityType(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	var req api.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode update request", slog.Any("error", err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Attributes == nil {
		sendError(w, h.logger, "attributes are required", http.StatusBadRequest)
		return
	}

	rec, err := h.storage.UpdateEntity(ctx, t, id, req.Attributes, h.clock.Now())
	if err != nil {
		h.storageError(w, r, "update", t, id, err)
		return
	}
	// Хранилище могло сдвинуть метку вперед относительно наших часов
	h.clock.Observe(rec.UpdatedAt)

	h.logger.InfoContext(ctx, "entity updated",
		slog.String("type", string(t)),
		slog.String("id", id),
		slog.String("admin", usernameOf(r)))

	sendJSON(w, h.logger, rec.ToWire(), http.StatusOK)
}

// Delete обрабатывает DELETE /api/v1/entities/{type}/{id}
func (h *EntityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	t, ok := h.entityType(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")

	if err := h.storage.DeleteEntity(ctx, t, id); err != nil {
		h.storageError(w, r, "delete", t, id, err)
		return
	}

	h.logger.InfoContext(ctx, "entity deleted",
		slog.String("type", string(t)),
		slog.String("id", id),
		slog.String("admin", usernameOf(r)))

	w.WriteHeader(http.StatusNoContent)
}

func (h *EntityHandler) storageError(w http.ResponseWriter, r *http.Request, op string, t models.EntityType, id string, err error) {
	switch {
	case errors.Is(err, storage.ErrEntityNotFound):
		sendError(w, h.logger, "entity not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrEntityExists):
		sendError(w, h.logger, "entity already exists", http.StatusConflict)
	default:
		h.logger.ErrorContext(r.Context(), "entity storage failure",
			slog.String("op", op),
			slog.String("type", string(t)),
			slog.String("id", id),
			slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
	}
}

func usernameOf(r *http.Request) string {
	username, _ := GetUsername(r.Context())
	return username
}
