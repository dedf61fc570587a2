package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/adminsync/internal/server/handlers"
)

// AuthMiddleware создает middleware для проверки JWT токена администратора.
// Используется и для REST, и для рукопожатия websocket: токен всегда в заголовке Authorization.
func AuthMiddleware(logger *slog.Logger, jwtConfig handlers.JWTConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("Missing Authorization header", "path", r.URL.Path)
				writeError(w, "unauthorized: missing token", http.StatusUnauthorized)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			scheme, token, found := strings.Cut(authHeader, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
				logger.Warn("Invalid Authorization header format", "path", r.URL.Path)
				writeError(w, "unauthorized: invalid token format", http.StatusUnauthorized)
				return
			}

			claims, err := handlers.ValidateAccessToken(jwtConfig, strings.TrimSpace(token))
			if err != nil {
				logger.Warn("Invalid access token", "path", r.URL.Path, "error", err)
				writeError(w, "unauthorized: invalid token", http.StatusUnauthorized)
				return
			}

			logger.Debug("Admin authenticated", "admin_id", claims.AdminID, "username", claims.Username)

			ctx := handlers.WithAdmin(r.Context(), claims.AdminID, claims.Username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
