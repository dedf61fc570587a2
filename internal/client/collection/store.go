// Package collection хранит упорядоченные коллекции записей по типам сущностей.
//
// Store - единственный владелец кешированных записей сессии. Изменять его
// должен только reconcile.Engine: он решает, применять ли входящую версию,
// а Store лишь выполняет слияние по id и поддерживает порядок.
package collection

import (
	"encoding/json"
	"math"
	"strconv"
	"sync"

	"github.com/iudanet/adminsync/internal/models"
	"github.com/iudanet/adminsync/internal/registry"
)

// Collection упорядоченный набор записей одного типа
type Collection struct {
	byID  map[string]*models.EntityRecord
	spec  registry.TypeSpec
	order []string
}

func newCollection(spec registry.TypeSpec) *Collection {
	return &Collection{
		spec: spec,
		byID: make(map[string]*models.EntityRecord),
	}
}

// Store набор коллекций по всем известным типам.
// Все методы безопасны для конкурентного использования.
type Store struct {
	collections map[models.EntityType]*Collection
	types       []models.EntityType
	mu          sync.RWMutex
}

// New создает пустую коллекцию для каждого типа из реестра
func New(reg *registry.Registry) *Store {
	s := &Store{
		collections: make(map[models.EntityType]*Collection),
		types:       reg.Types(),
	}

	for _, t := range s.types {
		spec, _ := reg.Lookup(t)
		s.collections[t] = newCollection(spec)
	}

	return s
}

// Upsert вставляет запись или заменяет существующую с тем же id.
// Новая запись встает на место согласно политике типа, существующая
// заменяется на своей позиции - рутинное обновление не переставляет строки.
// Возвращает true, если запись была вставлена (а не заменена).
// Запись неизвестного типа игнорируется.
func (s *Store) Upsert(t models.EntityType, rec *models.EntityRecord) bool {
	if rec == nil || rec.ID == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[t]
	if !ok {
		return false
	}

	stored := rec.Clone()
	stored.Type = t

	if _, exists := c.byID[rec.ID]; exists {
		c.byID[rec.ID] = stored
		return false
	}

	idx := c.insertIndex(stored)
	c.order = append(c.order, "")
	copy(c.order[idx+1:], c.order[idx:])
	c.order[idx] = stored.ID
	c.byID[stored.ID] = stored

	return true
}

// Remove удаляет запись по id. Отсутствующий id - не ошибка.
// Возвращает true, если запись была удалена.
func (s *Store) Remove(t models.EntityType, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[t]
	if !ok {
		return false
	}

	if _, exists := c.byID[id]; !exists {
		return false
	}

	delete(c.byID, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}

	return true
}

// Snapshot возвращает копии записей в порядке коллекции
func (s *Store) Snapshot(t models.EntityType) []models.EntityRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[t]
	if !ok {
		return []models.EntityRecord{}
	}

	out := make([]models.EntityRecord, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, *c.byID[id].Clone())
	}

	return out
}

// Get возвращает копию записи по id
func (s *Store) Get(t models.EntityType, id string) (*models.EntityRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[t]
	if !ok {
		return nil, false
	}

	rec, exists := c.byID[id]
	if !exists {
		return nil, false
	}

	return rec.Clone(), true
}

// IDs возвращает id записей в порядке коллекции
func (s *Store) IDs(t models.EntityType) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[t]
	if !ok {
		return []string{}
	}

	out := make([]string, len(c.order))
	copy(out, c.order)
	return out
}

// Len количество записей в коллекции
func (s *Store) Len(t models.EntityType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[t]
	if !ok {
		return 0
	}
	return len(c.order)
}

// Types типы, для которых созданы коллекции
func (s *Store) Types() []models.EntityType {
	out := make([]models.EntityType, len(s.types))
	copy(out, s.types)
	return out
}

// Has проверяет, что для типа есть коллекция
func (s *Store) Has(t models.EntityType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.collections[t]
	return ok
}

// insertIndex позиция для новой записи согласно политике типа
func (c *Collection) insertIndex(rec *models.EntityRecord) int {
	switch c.spec.Ordering {
	case registry.OrderNewestFirst:
		// Запись без времени создания считаем самой свежей
		if rec.CreatedAt.IsZero() {
			return 0
		}
		for i, id := range c.order {
			if !c.byID[id].CreatedAt.After(rec.CreatedAt) {
				return i
			}
		}
		return len(c.order)

	case registry.OrderSortField:
		key := sortKey(rec, c.spec.SortField)
		for i, id := range c.order {
			// При равных ключах новая запись встает после существующих
			if sortKey(c.byID[id], c.spec.SortField) > key {
				return i
			}
		}
		return len(c.order)

	default:
		return len(c.order)
	}
}

// sortKey числовое значение поля сортировки; отсутствующее или нечисловое - в конец
func sortKey(rec *models.EntityRecord, field string) float64 {
	v, ok := rec.Attributes[field]
	if !ok {
		return math.Inf(1)
	}

	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		if f, err := n.Float64(); err == nil {
			return f
		}
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}

	return math.Inf(1)
}
