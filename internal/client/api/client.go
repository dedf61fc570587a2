package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/pkg/api"
)

const defaultTimeout = 30 * time.Second

// ErrNotFound запись или ресурс не найдены на сервере (404)
var ErrNotFound = errors.New("not found")

// StorageError ошибка удаленного хранилища: сетевой сбой или ответ не 2xx.
// Message - человекочитаемое описание для пользователя.
type StorageError struct {
	Err        error
	Op         string
	EntityType models.EntityType
	Message    string
	StatusCode int
}

func (e *StorageError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.EntityType != "" {
		b.WriteString(" ")
		b.WriteString(string(e.EntityType))
	}
	switch {
	case e.StatusCode != 0:
		fmt.Fprintf(&b, ": server error (%d): %s", e.StatusCode, e.Message)
	case e.Err != nil:
		fmt.Fprintf(&b, ": %v", e.Err)
	default:
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	return b.String()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Is сопоставляет 404 с ErrNotFound
func (e *StorageError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Retryable true для сетевых сбоев, таймаутов, 429 и 5xx
func (e *StorageError) Retryable() bool {
	if e.StatusCode == 0 {
		return e.Err != nil
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return NewClientWithTimeout(baseURL, defaultTimeout)
}

// NewClientWithTimeout создает клиент с заданным таймаутом запросов
func NewClientWithTimeout(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			// Настройка обработки редиректов
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Ограничиваем количество редиректов
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				// Копируем заголовки Authorization при редиректе
				if len(via) > 0 && via[0].Header.Get("Authorization") != "" {
					req.Header.Set("Authorization", via[0].Header.Get("Authorization"))
				}
				return nil
			},
		},
	}
}

// WithToken возвращает копию клиента, подписывающую запросы access token'ом
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// Token текущий access token
func (c *Client) Token() string {
	return c.token
}

// WebsocketURL адрес хаба: схема http(s) заменяется на ws(s)
func (c *Client) WebsocketURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http", "":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/ws"
	return u.String(), nil
}

// Login выполняет аутентификацию администратора
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", req, &resp); err != nil {
		return nil, wrap(err, "login", "")
	}
	return &resp, nil
}

// Fetch возвращает полный снимок записей типа t
func (c *Client) Fetch(ctx context.Context, t models.EntityType) ([]*models.EntityRecord, error) {
	var resp api.ListResponse
	if err := c.doRequest(ctx, http.MethodGet, entitiesPath(t), nil, &resp); err != nil {
		return nil, wrap(err, "fetch", t)
	}

	records := make([]*models.EntityRecord, 0, len(resp.Records))
	for _, r := range resp.Records {
		rec := models.RecordFromWire(r)
		rec.Type = t
		records = append(records, rec)
	}
	return records, nil
}

// Create создает запись и возвращает каноническую версию
func (c *Client) Create(ctx context.Context, t models.EntityType, payload models.Payload) (*models.EntityRecord, error) {
	var resp api.Record
	req := api.CreateRequest{ID: payload.ID, Attributes: payload.Attributes}
	if err := c.doRequest(ctx, http.MethodPost, entitiesPath(t), req, &resp); err != nil {
		return nil, wrap(err, "create", t)
	}
	return canonical(resp, t), nil
}

// Update накладывает патч атрибутов на запись и возвращает каноническую версию
func (c *Client) Update(ctx context.Context, t models.EntityType, id string, attributes map[string]any) (*models.EntityRecord, error) {
	var resp api.Record
	req := api.UpdateRequest{Attributes: attributes}
	if err := c.doRequest(ctx, http.MethodPatch, entityPath(t, id), req, &resp); err != nil {
		return nil, wrap(err, "update", t)
	}
	return canonical(resp, t), nil
}

// Delete удаляет запись
func (c *Client) Delete(ctx context.Context, t models.EntityType, id string) error {
	if err := c.doRequest(ctx, http.MethodDelete, entityPath(t, id), nil, nil); err != nil {
		return wrap(err, "delete", t)
	}
	return nil
}

// SubmitContact отправляет заявку с публичного сайта. Токен не требуется.
func (c *Client) SubmitContact(ctx context.Context, sub api.ContactSubmission) (string, error) {
	var resp api.SubmissionResponse
	if err := c.doRequest(ctx, http.MethodPost, "/api/v1/public/contacts", sub, &resp); err != nil {
		return "", wrap(err, "submit contact", "")
	}
	return resp.ID, nil
}

func canonical(r api.Record, t models.EntityType) *models.EntityRecord {
	rec := models.RecordFromWire(r)
	rec.Type = t
	return rec
}

func entitiesPath(t models.EntityType) string {
	return "/api/v1/entities/" + url.PathEscape(string(t))
}

func entityPath(t models.EntityType, id string) string {
	return entitiesPath(t) + "/" + url.PathEscape(id)
}

// wrap дополняет StorageError операцией и типом; сетевые ошибки превращает в StorageError
func wrap(err error, op string, t models.EntityType) error {
	var se *StorageError
	if errors.As(err, &se) {
		se.Op = op
		se.EntityType = t
		return se
	}
	return &StorageError{Op: op, EntityType: t, Err: err, Message: err.Error()}
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("request timed out: %w", context.DeadlineExceeded)
		}
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// Читаем тело ответа
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	// Проверяем статус код
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StorageError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
		var errResp api.ErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error != "" {
			se.Message = errResp.Error
			if errResp.Message != "" {
				se.Message += ": " + errResp.Message
			}
		}
		return se
	}

	// Декодируем успешный ответ
	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
