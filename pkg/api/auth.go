package api

// LoginRequest представляет запрос на аутентификацию администратора
type LoginRequest struct {
	Username string `json:"username"` // username администратора
	Password string `json:"password"` // пароль в открытом виде (только поверх TLS)
}

// TokenResponse представляет ответ с токеном доступа
type TokenResponse struct {
	AccessToken string `json:"access_token"` // JWT access token
	TokenType   string `json:"token_type"`   // всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`   // время жизни access token в секундах
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// HealthResponse ответ health check
type HealthResponse struct {
	Status string `json:"status"`
	Rooms  int    `json:"rooms"`
}
