package storage

import (
	"context"
	"time"
)

// SessionStorage defines interface for storing the admin session on client
type SessionStorage interface {
	// SaveSession replaces the stored session
	SaveSession(ctx context.Context, session *Session) error

	// GetSession returns the stored session
	// Returns ErrSessionNotFound if nobody is logged in
	GetSession(ctx context.Context) (*Session, error)

	// DeleteSession removes stored session (logout). Missing session is not an error.
	DeleteSession(ctx context.Context) error

	// ClientID returns the device identifier, generating it on first use.
	// The id survives logout and is used as originClientId of broadcasts.
	ClientID(ctx context.Context) (string, error)
}

// Session represents a logged in admin
type Session struct {
	ExpiresAt   time.Time `msgpack:"expires_at"`
	Username    string    `msgpack:"username"`
	ServerURL   string    `msgpack:"server_url"`
	AccessToken string    `msgpack:"access_token"`
}

// Expired reports whether the access token is past its expiry at now.
// Zero ExpiresAt means the server did not announce a lifetime.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}
