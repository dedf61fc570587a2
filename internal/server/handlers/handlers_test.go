package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/server/storage"
	"github.com/iudanet/adminsync/pkg/api"
)

var testTime = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockAdminStorage is a mock implementation of AdminStorage for testing
type mockAdminStorage struct {
	admins map[string]*models.Admin // username -> Admin
	getErr error
}

func (m *mockAdminStorage) CreateAdmin(ctx context.Context, admin *models.Admin) error {
	if _, ok := m.admins[admin.Username]; ok {
		return storage.ErrAdminExists
	}
	m.admins[admin.Username] = admin
	return nil
}

func (m *mockAdminStorage) GetAdminByUsername(ctx context.Context, username string) (*models.Admin, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	admin, ok := m.admins[username]
	if !ok {
		return nil, storage.ErrAdminNotFound
	}
	return admin, nil
}

// mockEntityStorage is an in-memory EntityStorage for testing
type mockEntityStorage struct {
	records map[string]*models.EntityRecord // type/id -> record
	err     error
	mu      sync.Mutex
}

func newMockEntityStorage() *mockEntityStorage {
	return &mockEntityStorage{records: make(map[string]*models.EntityRecord)}
}

func entityKey(t models.EntityType, id string) string {
	return string(t) + "/" + id
}

func (m *mockEntityStorage) put(rec *models.EntityRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[entityKey(rec.Type, rec.ID)] = rec.Clone()
}

func (m *mockEntityStorage) ListEntities(ctx context.Context, t models.EntityType) ([]*models.EntityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*models.EntityRecord
	for _, rec := range m.records {
		if rec.Type == t {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

func (m *mockEntityStorage) GetEntity(ctx context.Context, t models.EntityType, id string) (*models.EntityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	rec, ok := m.records[entityKey(t, id)]
	if !ok {
		return nil, storage.ErrEntityNotFound
	}
	return rec.Clone(), nil
}

func (m *mockEntityStorage) CreateEntity(ctx context.Context, rec *models.EntityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	key := entityKey(rec.Type, rec.ID)
	if _, ok := m.records[key]; ok {
		return storage.ErrEntityExists
	}
	m.records[key] = rec.Clone()
	return nil
}

func (m *mockEntityStorage) UpdateEntity(ctx context.Context, t models.EntityType, id string, patch map[string]any, updatedAt time.Time) (*models.EntityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	rec, ok := m.records[entityKey(t, id)]
	if !ok {
		return nil, storage.ErrEntityNotFound
	}
	rec.Attributes = models.MergeAttributes(rec.Attributes, patch)
	rec.UpdatedAt = updatedAt
	return rec.Clone(), nil
}

func (m *mockEntityStorage) DeleteEntity(ctx context.Context, t models.EntityType, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	key := entityKey(t, id)
	if _, ok := m.records[key]; !ok {
		return storage.ErrEntityNotFound
	}
	delete(m.records, key)
	return nil
}

// stepClock выдает testTime, testTime+1s, ...
type stepClock struct {
	next     time.Time
	observed []time.Time
}

func newStepClock() *stepClock {
	return &stepClock{next: testTime}
}

func (c *stepClock) Now() time.Time {
	t := c.next
	c.next = c.next.Add(time.Second)
	return t
}

func (c *stepClock) Observe(t time.Time) {
	c.observed = append(c.observed, t)
}

// mockPublisher запоминает опубликованные кадры
type mockPublisher struct {
	rooms     []string
	published map[string][]api.Envelope
	err       error
}

func newMockPublisher(rooms ...string) *mockPublisher {
	return &mockPublisher{rooms: rooms, published: make(map[string][]api.Envelope)}
}

func (p *mockPublisher) Rooms() []string {
	return p.rooms
}

func (p *mockPublisher) Publish(room string, env api.Envelope) (int, error) {
	if p.err != nil {
		return 0, p.err
	}
	p.published[room] = append(p.published[room], env)
	return 1, nil
}

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()

	body, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(body)
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

// serve прогоняет запрос через mux, чтобы PathValue был заполнен
func serve(pattern string, h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}
