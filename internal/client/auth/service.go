package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/adminsync/internal/client/storage"
	"github.com/iudanet/adminsync/internal/validation"
	pkgapi "github.com/iudanet/adminsync/pkg/api"
)

var (
	// ErrNotLoggedIn нет сохраненной сессии
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrSessionExpired срок действия access token истек
	ErrSessionExpired = errors.New("session expired, please login again")
)

// Authenticator выполняет вход на сервере
type Authenticator interface {
	Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error)
}

// Service предоставляет функции авторизации администратора
type Service struct {
	apiClient Authenticator
	sessions  storage.SessionStorage
	logger    *slog.Logger
	now       func() time.Time
	serverURL string
}

// NewService создает новый сервис авторизации
func NewService(apiClient Authenticator, sessions storage.SessionStorage, serverURL string, logger *slog.Logger) *Service {
	return &Service{
		apiClient: apiClient,
		sessions:  sessions,
		serverURL: serverURL,
		logger:    logger,
		now:       time.Now,
	}
}

// Login выполняет аутентификацию и сохраняет сессию локально
func (s *Service) Login(ctx context.Context, username, password string) (*storage.Session, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	resp, err := s.apiClient.Login(ctx, pkgapi.LoginRequest{Username: username, Password: password})
	if err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	session := &storage.Session{
		Username:    username,
		ServerURL:   s.serverURL,
		AccessToken: resp.AccessToken,
	}
	if resp.ExpiresIn > 0 {
		session.ExpiresAt = s.now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second)
	}

	if err := s.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	s.logger.Info("Logged in", "username", username, "server", s.serverURL)
	return session, nil
}

// Logout удаляет локальную сессию. JWT не отзывается на сервере и истечет сам.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.sessions.DeleteSession(ctx); err != nil {
		return fmt.Errorf("failed to delete local session: %w", err)
	}
	return nil
}

// Current возвращает действующую сессию
// ErrNotLoggedIn если входа не было, ErrSessionExpired если токен истек
func (s *Service) Current(ctx context.Context) (*storage.Session, error) {
	session, err := s.sessions.GetSession(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrNotLoggedIn
		}
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if session.Expired(s.now()) {
		return session, ErrSessionExpired
	}

	// Сессия от другого сервера не подходит
	if s.serverURL != "" && session.ServerURL != "" && session.ServerURL != s.serverURL {
		return session, fmt.Errorf("%w: session belongs to %s", ErrNotLoggedIn, session.ServerURL)
	}

	return session, nil
}
