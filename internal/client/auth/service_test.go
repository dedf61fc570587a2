package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/adminsync/internal/client/storage"
	pkgapi "github.com/iudanet/adminsync/pkg/api"
)

const testServer = "http://localhost:8080"

var fixedNow = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

// mockSessionStorage implements storage.SessionStorage for testing
type mockSessionStorage struct {
	session   *storage.Session
	saveErr   error
	getErr    error
	deleteErr error
	clientID  string
}

func (m *mockSessionStorage) SaveSession(ctx context.Context, session *storage.Session) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	cp := *session
	m.session = &cp
	return nil
}

func (m *mockSessionStorage) GetSession(ctx context.Context) (*storage.Session, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.session == nil {
		return nil, storage.ErrSessionNotFound
	}
	cp := *m.session
	return &cp, nil
}

func (m *mockSessionStorage) DeleteSession(ctx context.Context) error {
	if m.deleteErr != nil {
		return m.deleteErr
	}
	m.session = nil
	return nil
}

func (m *mockSessionStorage) ClientID(ctx context.Context) (string, error) {
	return m.clientID, nil
}

// mockAuthenticator implements Authenticator for testing
type mockAuthenticator struct {
	resp  *pkgapi.TokenResponse
	err   error
	calls []pkgapi.LoginRequest
}

func (m *mockAuthenticator) Login(ctx context.Context, req pkgapi.LoginRequest) (*pkgapi.TokenResponse, error) {
	m.calls = append(m.calls, req)
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func newTestService(authn *mockAuthenticator, sessions *mockSessionStorage) *Service {
	s := NewService(authn, sessions, testServer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return fixedNow }
	return s
}

func TestService_Login(t *testing.T) {
	authn := &mockAuthenticator{resp: &pkgapi.TokenResponse{AccessToken: "jwt", TokenType: "Bearer", ExpiresIn: 3600}}
	sessions := &mockSessionStorage{}

	session, err := newTestService(authn, sessions).Login(context.Background(), "admin", "correct-horse-battery")

	require.NoError(t, err)
	assert.Equal(t, "jwt", session.AccessToken)
	assert.Equal(t, fixedNow.Add(time.Hour), session.ExpiresAt)
	assert.Equal(t, testServer, session.ServerURL)

	require.Len(t, authn.calls, 1)
	assert.Equal(t, "admin", authn.calls[0].Username)
	assert.Equal(t, "correct-horse-battery", authn.calls[0].Password)

	require.NotNil(t, sessions.session)
	assert.Equal(t, "admin", sessions.session.Username)
}

func TestService_Login_Errors(t *testing.T) {
	tests := []struct {
		name      string
		username  string
		password  string
		authErr   error
		saveErr   error
		wantErr   string
		wantCalls int
	}{
		{name: "invalid username", username: "a", password: "correct-horse-battery", wantErr: "invalid username"},
		{name: "short password", username: "admin", password: "short", wantErr: "invalid password"},
		{name: "server rejects", username: "admin", password: "correct-horse-battery", authErr: errors.New("401"), wantErr: "login failed", wantCalls: 1},
		{name: "storage fails", username: "admin", password: "correct-horse-battery", saveErr: errors.New("disk full"), wantErr: "failed to save session", wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			authn := &mockAuthenticator{resp: &pkgapi.TokenResponse{AccessToken: "jwt"}, err: tt.authErr}
			sessions := &mockSessionStorage{saveErr: tt.saveErr}

			_, err := newTestService(authn, sessions).Login(context.Background(), tt.username, tt.password)

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Len(t, authn.calls, tt.wantCalls)
			assert.Nil(t, sessions.session)
		})
	}
}

func TestService_Current(t *testing.T) {
	tests := []struct {
		name    string
		session *storage.Session
		getErr  error
		wantErr error
	}{
		{name: "valid", session: &storage.Session{Username: "admin", ServerURL: testServer, ExpiresAt: fixedNow.Add(time.Minute)}},
		{name: "no expiry", session: &storage.Session{Username: "admin", ServerURL: testServer}},
		{name: "not logged in", wantErr: ErrNotLoggedIn},
		{name: "expired", session: &storage.Session{Username: "admin", ServerURL: testServer, ExpiresAt: fixedNow.Add(-time.Minute)}, wantErr: ErrSessionExpired},
		{name: "other server", session: &storage.Session{Username: "admin", ServerURL: "https://other.example.com"}, wantErr: ErrNotLoggedIn},
		{name: "storage closed", getErr: storage.ErrStorageClosed, wantErr: storage.ErrStorageClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions := &mockSessionStorage{session: tt.session, getErr: tt.getErr}

			got, err := newTestService(&mockAuthenticator{}, sessions).Current(context.Background())

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "admin", got.Username)
		})
	}
}

func TestService_Logout(t *testing.T) {
	sessions := &mockSessionStorage{session: &storage.Session{Username: "admin"}}
	svc := newTestService(&mockAuthenticator{}, sessions)

	require.NoError(t, svc.Logout(context.Background()))
	assert.Nil(t, sessions.session)

	_, err := svc.Current(context.Background())
	assert.ErrorIs(t, err, ErrNotLoggedIn)

	sessions.deleteErr = storage.ErrStorageClosed
	assert.ErrorIs(t, svc.Logout(context.Background()), storage.ErrStorageClosed)
}
