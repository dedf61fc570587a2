package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/adminsync/internal/crypto"
	"github.com/iudanet/adminsync/internal/server/storage"
	"github.com/iudanet/adminsync/internal/validation"
	"github.com/iudanet/adminsync/pkg/api"
)

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger    *slog.Logger
	admins    storage.AdminStorage
	jwtConfig JWTConfig
}

// NewAuthHandler создает новый handler для авторизации
func NewAuthHandler(logger *slog.Logger, admins storage.AdminStorage, jwtConfig JWTConfig) *AuthHandler {
	return &AuthHandler{
		logger:    logger,
		admins:    admins,
		jwtConfig: jwtConfig,
	}
}

// Login обрабатывает POST /api/v1/auth/login
// Проверяет пароль администратора и выдает access token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.WarnContext(ctx, "failed to decode login request", slog.Any("error", err))
		sendError(w, h.logger, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := validation.ValidateUsername(req.Username); err != nil {
		h.logger.WarnContext(ctx, "invalid username", slog.String("username", req.Username), slog.Any("error", err))
		sendError(w, h.logger, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Password == "" {
		sendError(w, h.logger, "password is required", http.StatusBadRequest)
		return
	}

	admin, err := h.admins.GetAdminByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, storage.ErrAdminNotFound) {
			h.logger.WarnContext(ctx, "login failed: admin not found", slog.String("username", req.Username))
			sendError(w, h.logger, "invalid credentials", http.StatusUnauthorized)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get admin", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	if err := crypto.VerifyPassword(req.Password, admin.PasswordHash); err != nil {
		if !errors.Is(err, crypto.ErrPasswordMismatch) {
			h.logger.ErrorContext(ctx, "stored password hash is invalid",
				slog.String("username", req.Username), slog.Any("error", err))
		} else {
			h.logger.WarnContext(ctx, "login failed: invalid password", slog.String("username", req.Username))
		}
		sendError(w, h.logger, "invalid credentials", http.StatusUnauthorized)
		return
	}

	accessToken, expiresIn, err := GenerateAccessToken(h.jwtConfig, admin.ID, admin.Username)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to generate access token", slog.Any("error", err))
		sendError(w, h.logger, "internal server error", http.StatusInternalServerError)
		return
	}

	h.logger.InfoContext(ctx, "admin logged in successfully",
		slog.String("username", admin.Username),
		slog.String("admin_id", admin.ID))

	sendJSON(w, h.logger, api.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
	}, http.StatusOK)
}
