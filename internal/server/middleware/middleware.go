// Package middleware HTTP middleware сервера: восстановление после паники,
// журнал запросов, проверка токена и ограничение частоты.
package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/iudanet/adminsync/pkg/api"
)

// Middleware оборачивает http.Handler
type Middleware func(http.Handler) http.Handler

// Chain применяет middleware так, что первый в списке выполняется первым
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// writeError отправляет JSON ответ с ошибкой
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: message})
}
