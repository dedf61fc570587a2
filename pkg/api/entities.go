package api

import "time"

// Record представляет запись сущности на проводе
type Record struct {
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
	Attributes map[string]any `json:"attributes"`
	ID         string         `json:"id"`
	Type       string         `json:"type,omitempty"`
}

// ListResponse полный снимок записей одного типа
type ListResponse struct {
	Type    string   `json:"type"`
	Records []Record `json:"records"`
}

// CreateRequest запрос на создание записи. ID опционален: клиент может
// сгенерировать его заранее, чтобы оптимистичная и каноническая записи совпали.
type CreateRequest struct {
	Attributes map[string]any `json:"attributes"`
	ID         string         `json:"id,omitempty"`
}

// UpdateRequest частичное обновление атрибутов; null удаляет ключ
type UpdateRequest struct {
	Attributes map[string]any `json:"attributes"`
}

// ContactSubmission заявка, оставленная на публичном сайте
type ContactSubmission struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Phone   string `json:"phone,omitempty"`
	Message string `json:"message"`
}

// SubmissionResponse ответ на публичную заявку
type SubmissionResponse struct {
	ID string `json:"id"`
}
