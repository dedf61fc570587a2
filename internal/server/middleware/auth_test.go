package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/adminsync/internal/server/handlers"
)

func TestAuthMiddleware(t *testing.T) {
	jwtConfig := handlers.JWTConfig{Secret: []byte("test-secret-key"), AccessTokenTTL: 15 * time.Minute}

	valid, _, err := handlers.GenerateAccessToken(jwtConfig, "admin-1", "root")
	require.NoError(t, err)
	expired, _, err := handlers.GenerateAccessToken(handlers.JWTConfig{Secret: jwtConfig.Secret, AccessTokenTTL: -time.Minute}, "admin-1", "root")
	require.NoError(t, err)
	foreign, _, err := handlers.GenerateAccessToken(handlers.JWTConfig{Secret: []byte("wrong"), AccessTokenTTL: time.Minute}, "admin-1", "root")
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{name: "valid", header: "Bearer " + valid, wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + valid, wantStatus: http.StatusOK},
		{name: "missing header", wantStatus: http.StatusUnauthorized},
		{name: "basic scheme", header: "Basic dXNlcjpwYXNz", wantStatus: http.StatusUnauthorized},
		{name: "no token", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "garbage token", header: "Bearer abc.def.ghi", wantStatus: http.StatusUnauthorized},
		{name: "expired", header: "Bearer " + expired, wantStatus: http.StatusUnauthorized},
		{name: "wrong secret", header: "Bearer " + foreign, wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true

				id, ok := handlers.GetAdminID(r.Context())
				assert.True(t, ok)
				assert.Equal(t, "admin-1", id)

				username, ok := handlers.GetUsername(r.Context())
				assert.True(t, ok)
				assert.Equal(t, "root", username)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/entities/orders", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()

			AuthMiddleware(setupTestLogger(), jwtConfig)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantStatus == http.StatusOK, called)
			if tt.wantStatus != http.StatusOK {
				assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			}
		})
	}
}
