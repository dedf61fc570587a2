package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/server/storage"
	"github.com/iudanet/adminsync/pkg/api"
)

const (
	maxNameLen    = 200
	maxPhoneLen   = 40
	maxMessageLen = 5000

	// contactTopic тема уведомления о новой заявке
	contactTopic = "contacts"
)

// Publisher рассылает серверные кадры в комнаты хаба
type Publisher interface {
	Rooms() []string
	Publish(room string, env api.Envelope) (int, error)
}

// PublicHandler принимает заявки с публичного сайта.
// Заявка сохраняется как запись contacts, администраторы получают
// событие Create и уведомление во всех комнатах.
type PublicHandler struct {
	logger    *slog.Logger
	storage   storage.EntityStorage
	publisher Publisher
	clock     Clock
}

// NewPublicHandler создает handler публичных заявок
func NewPublicHandler(logger *slog.Logger, s storage.EntityStorage, publisher Publisher, clk Clock) *PublicHandler {
	return &PublicHandler{
		logger:    logger,
		storage:   s,
		publisher: publisher,
		clock:     clk,
	}
}

// SubmitContact обрабатывает POST /api/v1/public/contacts
func (h *PublicHandler) SubmitContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ContactSubmission
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode contact submission", slog.Any("error", err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validateContact(&req); err != nil {
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	now := h.clock.Now()
	attrs := map[string]any{
		"name":    req.Name,
		"email":   req.Email,
		"message": req.Message,
		"status":  "new",
		"source":  "public",
	}
	if req.Phone != "" {
		attrs["phone"] = req.Phone
	}
	rec := &models.EntityRecord{
		ID:         uuid.NewString(),
		Type:       models.EntityContacts,
		Attributes: attrs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := h.storage.CreateEntity(ctx, rec); err != nil {
		h.logger.ErrorContext(ctx, "failed to store contact", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.announce(r, rec)

	h.logger.InfoContext(ctx, "contact submitted", slog.String("id", rec.ID))

	sendJSON(w, h.logger, api.SubmissionResponse{ID: rec.ID}, http.StatusCreated)
}

// announce публикует событие Create и уведомление; ошибки рассылки не влияют на ответ
func (h *PublicHandler) announce(r *http.Request, rec *models.EntityRecord) {
	ev := models.SyncEvent{
		EntityType: rec.Type,
		Action:     models.ActionCreate,
		Record:     rec,
		EmittedAt:  rec.UpdatedAt,
	}
	entity := ev.ToEnvelope()

	notification := api.Envelope{
		Kind:       api.KindNotification,
		Topic:      contactTopic,
		Summary:    fmt.Sprintf("New contact from %s", rec.Attributes["name"]),
		EntityType: string(rec.Type),
		RecordID:   rec.ID,
		Timestamp:  rec.UpdatedAt,
	}

	for _, room := range h.publisher.Rooms() {
		for _, env := range []api.Envelope{entity, notification} {
			if _, err := h.publisher.Publish(room, env); err != nil {
				h.logger.WarnContext(r.Context(), "failed to publish contact",
					slog.String("room", room),
					slog.String("kind", env.Kind),
					slog.Any("error", err))
			}
		}
	}
}

func validateContact(req *api.ContactSubmission) error {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)
	req.Message = strings.TrimSpace(req.Message)

	if req.Name == "" {
		return fmt.Errorf("name is required")
	}
	if utf8.RuneCountInString(req.Name) > maxNameLen {
		return fmt.Errorf("name must not exceed %d characters", maxNameLen)
	}
	if req.Email == "" {
		return fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil || addr.Address != req.Email {
		return fmt.Errorf("email is invalid")
	}
	if utf8.RuneCountInString(req.Phone) > maxPhoneLen {
		return fmt.Errorf("phone must not exceed %d characters", maxPhoneLen)
	}
	if req.Message == "" {
		return fmt.Errorf("message is required")
	}
	if utf8.RuneCountInString(req.Message) > maxMessageLen {
		return fmt.Errorf("message must not exceed %d characters", maxMessageLen)
	}
	return nil
}
