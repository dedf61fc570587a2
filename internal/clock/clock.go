// Package clock предоставляет монотонные часы для меток updatedAt.
package clock

import (
	"sync"
	"time"
)

// Resolution минимальный шаг между двумя метками одних часов.
// Микросекунды переживают round-trip через JSON и SQLite без потери точности.
const Resolution = time.Microsecond

// Clock выдает строго возрастающие метки времени.
// Метка никогда не меньше настенного времени и всегда больше предыдущей выданной,
// поэтому две последовательные записи одного id не получают одинаковый updatedAt.
type Clock struct {
	last time.Time
	now  func() time.Time
	mu   sync.Mutex
}

// New создает часы на основе time.Now
func New() *Clock {
	return &Clock{now: time.Now}
}

// NewWithSource создает часы с заданным источником времени.
// Используется для тестирования.
func NewWithSource(now func() time.Time) *Clock {
	return &Clock{now: now}
}

// Now возвращает следующую метку: max(wall, last+Resolution)
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Truncate(Resolution)
	if !t.After(c.last) {
		t = c.last.Add(Resolution)
	}
	c.last = t

	return t
}

// Observe учитывает метку, полученную извне (например, updatedAt предыдущей версии записи).
// Следующий вызов Now вернет значение строго больше observed.
func (c *Clock) Observe(observed time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if observed.After(c.last) {
		c.last = observed.UTC()
	}
}

// Last возвращает последнюю выданную метку без ее изменения
func (c *Clock) Last() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.last
}
