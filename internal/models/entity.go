package models

import (
	"fmt"
	"strings"
	"time"
)

// EntityType имя категории записей (products, orders, ...)
type EntityType string

// Известные типы сущностей админ-консоли
const (
	EntityProducts       EntityType = "products"
	EntityOrders         EntityType = "orders"
	EntityCategories     EntityType = "categories"
	EntityContacts       EntityType = "contacts"
	EntityUsers          EntityType = "users"
	EntityProfiles       EntityType = "profiles"
	EntityAdvertisements EntityType = "advertisements"
	EntityJobs           EntityType = "jobs"
)

// Action тип изменения записи
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ParseAction разбирает action без учета регистра
func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionCreate:
		return ActionCreate, nil
	case ActionUpdate:
		return ActionUpdate, nil
	case ActionDelete:
		return ActionDelete, nil
	default:
		return "", fmt.Errorf("unknown action %q", s)
	}
}

// EntityRecord представляет одну запись сущности в кеше клиента.
// Attributes свободная схема, своя для каждого типа, синхронизатор ее не интерпретирует
// (кроме поля сортировки для каталожных типов).
type EntityRecord struct {
	CreatedAt  time.Time      `json:"createdAt"`  // CreatedAt время создания (для упорядочивания newest-first)
	UpdatedAt  time.Time      `json:"updatedAt"`  // UpdatedAt время последнего изменения, монотонно по id
	Attributes map[string]any `json:"attributes"` // Attributes произвольные поля записи
	ID         string         `json:"id"`         // ID уникальный в пределах Type
	Type       EntityType     `json:"type"`       // Type тип сущности
	Pending    bool           `json:"-"`          // Pending оптимистичная запись, еще не подтвержденная сервером
}

// IsNewerThan возвращает true, если запись строго новее other.
// Равные UpdatedAt считаются не новее - повторное применение той же версии ничего не меняет.
func (r *EntityRecord) IsNewerThan(other *EntityRecord) bool {
	return r.UpdatedAt.After(other.UpdatedAt)
}

// Clone создает глубокую копию записи
func (r *EntityRecord) Clone() *EntityRecord {
	return &EntityRecord{
		ID:         r.ID,
		Type:       r.Type,
		Attributes: cloneAttributes(r.Attributes),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
		Pending:    r.Pending,
	}
}

// cloneAttributes копирует вложенные map/slice, чтобы кеш не разделял состояние с вызывающим
func cloneAttributes(src map[string]any) map[string]any {
	if src == nil {
		return map[string]any{}
	}
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneAttributes(val)
	case []any:
		out := make([]any, len(val))
		for i := range val {
			out[i] = cloneValue(val[i])
		}
		return out
	default:
		return val
	}
}

// MergeAttributes накладывает patch поверх base и возвращает новую map.
// Значение nil в patch удаляет ключ - так же ведет себя сервер при PATCH.
func MergeAttributes(base, patch map[string]any) map[string]any {
	out := cloneAttributes(base)
	for k, v := range patch {
		if v == nil {
			delete(out, k)
			continue
		}
		out[k] = cloneValue(v)
	}
	return out
}

// Payload входные данные мутации от UI
type Payload struct {
	Attributes map[string]any `json:"attributes"`
	ID         string         `json:"id,omitempty"`
}
