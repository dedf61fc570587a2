// Package reconcile реализует политику слияния записей в коллекции сессии.
//
// Engine - единственная точка, через которую меняется collection.Store.
// Им пользуются маршрутизатор событий (записи других клиентов), координатор
// мутаций (оптимистичные и канонические записи) и ресинк (снимки сервера).
// Правила применяются по порядку для ключа (тип, id):
//
//  1. свежесть: входящая версия не новее существующей - отбрасывается
//     (кроме собственных оптимистичных и канонических записей);
//  2. каноническая запись из ответа сервера на нашу мутацию перекрывает любую;
//  3. удаление имеет приоритет: после Delete обновления id не воскрешают,
//     вернуть id может только новый Create;
//  4. Create для существующего id - это Update.
package reconcile

import (
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/adminsync/internal/client/collection"
	"github.com/iudanet/adminsync/internal/models"
)

// Source происхождение применяемой записи
type Source int

const (
	// SourceBroadcast событие от другого клиента через хаб
	SourceBroadcast Source = iota
	// SourceFetch запись из полного снимка сервера (ресинк)
	SourceFetch
	// SourceOptimistic локальная неподтвержденная мутация
	SourceOptimistic
	// SourceCanonical ответ сервера на собственную успешную мутацию
	SourceCanonical
)

func (s Source) String() string {
	switch s {
	case SourceBroadcast:
		return "broadcast"
	case SourceFetch:
		return "fetch"
	case SourceOptimistic:
		return "optimistic"
	case SourceCanonical:
		return "canonical"
	default:
		return "unknown"
	}
}

// Outcome результат применения события
type Outcome int

const (
	// OutcomeIgnored событие не изменило коллекцию (удаленный id, удаление отсутствующего)
	OutcomeIgnored Outcome = iota
	// OutcomeInserted запись добавлена
	OutcomeInserted
	// OutcomeUpdated запись заменена на месте
	OutcomeUpdated
	// OutcomeRemoved запись удалена
	OutcomeRemoved
	// OutcomeStale входящая версия не новее существующей
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeIgnored:
		return "ignored"
	case OutcomeInserted:
		return "inserted"
	case OutcomeUpdated:
		return "updated"
	case OutcomeRemoved:
		return "removed"
	case OutcomeStale:
		return "stale"
	default:
		return "unknown"
	}
}

// Changed true, если коллекция изменилась
func (o Outcome) Changed() bool {
	return o == OutcomeInserted || o == OutcomeUpdated || o == OutcomeRemoved
}

// Change уведомление об изменении коллекции
type Change struct {
	Type    models.EntityType
	ID      string
	Outcome Outcome
	Source  Source
}

type key struct {
	t  models.EntityType
	id string
}

// tombstone след удаления id в пределах сессии.
// optimistic - удаление сделано нашей мутацией и еще не подтверждено.
type tombstone struct {
	at         time.Time
	optimistic bool
}

// Engine применяет события к коллекциям по правилам слияния.
// Проверка и изменение выполняются атомарно под одним мьютексом.
type Engine struct {
	store      *collection.Store
	tombstones map[key]tombstone
	touched    map[key]uint64
	logger     *slog.Logger
	listeners  []func(Change)
	seq        uint64
	mu         sync.Mutex
	listenerMu sync.RWMutex
}

// NewEngine создает движок поверх store
func NewEngine(store *collection.Store, logger *slog.Logger) *Engine {
	return &Engine{
		store:      store,
		tombstones: make(map[key]tombstone),
		touched:    make(map[key]uint64),
		logger:     logger,
	}
}

// Store возвращает коллекции движка (только для чтения снимков)
func (e *Engine) Store() *collection.Store {
	return e.store
}

// OnChange регистрирует обработчик изменений коллекций.
// Обработчик вызывается вне блокировки движка и может читать Store.
func (e *Engine) OnChange(fn func(Change)) {
	e.listenerMu.Lock()
	defer e.listenerMu.Unlock()

	e.listeners = append(e.listeners, fn)
}

// Apply применяет событие из указанного источника.
// Невалидное событие или неизвестный тип игнорируются - Apply никогда не паникует
// на отсутствии записи, т.к. дубли и перестановки доставки ожидаемы.
func (e *Engine) Apply(ev models.SyncEvent, src Source) Outcome {
	if err := ev.Validate(); err != nil {
		e.logger.Warn("Rejected invalid sync event", "source", src.String(), "error", err)
		return OutcomeIgnored
	}
	if !e.store.Has(ev.EntityType) {
		e.logger.Warn("Rejected event for unknown entity type", "entity_type", ev.EntityType, "source", src.String())
		return OutcomeIgnored
	}

	e.mu.Lock()
	var outcome Outcome
	if ev.Action == models.ActionDelete {
		outcome = e.remove(ev.EntityType, ev.ID(), ev.EmittedAt, src)
	} else {
		outcome = e.upsert(ev.EntityType, ev.Action, ev.Record, src)
	}
	e.mu.Unlock()

	e.logger.Debug("Applied sync event",
		"entity_type", ev.EntityType,
		"id", ev.ID(),
		"action", ev.Action,
		"source", src.String(),
		"outcome", outcome.String())

	if outcome.Changed() {
		e.emit(Change{Type: ev.EntityType, ID: ev.ID(), Outcome: outcome, Source: src})
	}

	return outcome
}

// upsert правила 1-4 для Create/Update; вызывается под e.mu
func (e *Engine) upsert(t models.EntityType, action models.Action, rec *models.EntityRecord, src Source) Outcome {
	k := key{t: t, id: rec.ID}

	incoming := rec.Clone()
	incoming.Type = t
	incoming.Pending = src == SourceOptimistic

	// Правило 3: удаленный id возвращает только новый Create (или снимок сервера,
	// где запись новее удаления - значит ее создали заново, пока нас не было).
	if ts, dead := e.tombstones[k]; dead {
		if !e.resurrects(action, incoming, ts, src) {
			return OutcomeIgnored
		}
		delete(e.tombstones, k)
	}

	existing, exists := e.store.Get(t, rec.ID)
	if !exists {
		e.store.Upsert(t, incoming)
		e.touch(k)
		return OutcomeInserted
	}

	// Правило 1: свежесть. Правило 2: собственные записи (оптимистичные
	// и канонические) проверку не проходят - они самые авторитетные.
	if src != SourceCanonical && src != SourceOptimistic && !incoming.IsNewerThan(existing) {
		return OutcomeStale
	}

	// Правило 4: Create для существующего id - обычное обновление на месте
	if incoming.CreatedAt.IsZero() {
		incoming.CreatedAt = existing.CreatedAt
	}

	e.store.Upsert(t, incoming)
	e.touch(k)
	return OutcomeUpdated
}

// resurrects решает, может ли запись вернуть удаленный id
func (e *Engine) resurrects(action models.Action, incoming *models.EntityRecord, ts tombstone, src Source) bool {
	switch src {
	case SourceOptimistic, SourceCanonical:
		// собственный Create - явное намерение пользователя
		return action == models.ActionCreate
	case SourceFetch:
		return incoming.UpdatedAt.After(ts.at)
	default:
		return action == models.ActionCreate && incoming.UpdatedAt.After(ts.at)
	}
}

// remove удаляет id и оставляет tombstone; вызывается под e.mu
func (e *Engine) remove(t models.EntityType, id string, at time.Time, src Source) Outcome {
	k := key{t: t, id: id}

	if existing, ok := e.store.Get(t, id); ok && existing.UpdatedAt.After(at) {
		at = existing.UpdatedAt
	}

	optimistic := src == SourceOptimistic
	if prev, had := e.tombstones[k]; had {
		if prev.at.After(at) {
			at = prev.at
		}
		// удаление, подтвержденное кем-то еще, перестает быть нашим
		optimistic = optimistic && prev.optimistic
	}
	e.tombstones[k] = tombstone{at: at, optimistic: optimistic}

	if !e.store.Remove(t, id) {
		return OutcomeIgnored
	}

	e.touch(k)
	return OutcomeRemoved
}

func (e *Engine) touch(k key) {
	e.seq++
	e.touched[k] = e.seq
}

func (e *Engine) emit(change Change) {
	e.listenerMu.RLock()
	listeners := make([]func(Change), len(e.listeners))
	copy(listeners, e.listeners)
	e.listenerMu.RUnlock()

	for _, fn := range listeners {
		fn(change)
	}
}

// Mark возвращает текущую позицию журнала изменений.
// Ресинк запоминает ее до запроса снимка, чтобы Prune не трогал записи,
// измененные событиями во время запроса.
func (e *Engine) Mark() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.seq
}

// Prune удаляет записи типа t, отсутствующие в полном снимке сервера.
// Не трогает оптимистичные записи и записи, измененные после mark.
// Возвращает удаленные id.
func (e *Engine) Prune(t models.EntityType, present map[string]struct{}, mark uint64) []string {
	e.mu.Lock()
	var removed []string
	for _, id := range e.store.IDs(t) {
		if _, ok := present[id]; ok {
			continue
		}

		k := key{t: t, id: id}
		if e.touched[k] > mark {
			continue
		}

		rec, ok := e.store.Get(t, id)
		if !ok || rec.Pending {
			continue
		}

		e.tombstones[k] = tombstone{at: rec.UpdatedAt}
		e.store.Remove(t, id)
		e.touch(k)
		removed = append(removed, id)
	}
	e.mu.Unlock()

	for _, id := range removed {
		e.emit(Change{Type: t, ID: id, Outcome: OutcomeRemoved, Source: SourceFetch})
	}

	return removed
}

// DiscardOptimistic откатывает неудачный Create: удаляет запись, если в коллекции
// все еще лежит именно оптимистичная версия с меткой at. Tombstone не ставится.
func (e *Engine) DiscardOptimistic(t models.EntityType, id string, at time.Time) bool {
	e.mu.Lock()
	cur, ok := e.store.Get(t, id)
	discarded := ok && cur.Pending && cur.UpdatedAt.Equal(at)
	if discarded {
		e.store.Remove(t, id)
		e.touch(key{t: t, id: id})
	}
	e.mu.Unlock()

	if discarded {
		e.emit(Change{Type: t, ID: id, Outcome: OutcomeRemoved, Source: SourceOptimistic})
	}
	return discarded
}

// RestorePrior откатывает неудачный Update: возвращает снимок prior, если текущая
// версия все еще наша оптимистичная (более новая запись другого клиента не затирается).
func (e *Engine) RestorePrior(prior *models.EntityRecord, at time.Time) bool {
	e.mu.Lock()
	cur, ok := e.store.Get(prior.Type, prior.ID)
	restored := ok && cur.Pending && cur.UpdatedAt.Equal(at)
	if restored {
		e.store.Upsert(prior.Type, prior)
		e.touch(key{t: prior.Type, id: prior.ID})
	}
	e.mu.Unlock()

	if restored {
		e.emit(Change{Type: prior.Type, ID: prior.ID, Outcome: OutcomeUpdated, Source: SourceOptimistic})
	}
	return restored
}

// ReinstateDeleted откатывает неудачный Delete: возвращает запись, если ее
// удаление все еще только наше (никто другой удаление не подтвердил).
func (e *Engine) ReinstateDeleted(prior *models.EntityRecord) bool {
	k := key{t: prior.Type, id: prior.ID}

	e.mu.Lock()
	ts, dead := e.tombstones[k]
	reinstated := dead && ts.optimistic
	if reinstated {
		delete(e.tombstones, k)
		if _, exists := e.store.Get(prior.Type, prior.ID); !exists {
			e.store.Upsert(prior.Type, prior)
			e.touch(k)
		} else {
			reinstated = false
		}
	}
	e.mu.Unlock()

	if reinstated {
		e.emit(Change{Type: prior.Type, ID: prior.ID, Outcome: OutcomeInserted, Source: SourceOptimistic})
	}
	return reinstated
}

// IsDeleted сообщает, удален ли id в текущей сессии
func (e *Engine) IsDeleted(t models.EntityType, id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, dead := e.tombstones[key{t: t, id: id}]
	return dead
}

// CancelDelete снимает неподтвержденный tombstone нашего удаления, когда
// восстанавливать нечего (удаляли id, которого не было в коллекции).
func (e *Engine) CancelDelete(t models.EntityType, id string) bool {
	k := key{t: t, id: id}

	e.mu.Lock()
	defer e.mu.Unlock()

	ts, dead := e.tombstones[k]
	if !dead || !ts.optimistic {
		return false
	}
	delete(e.tombstones, k)
	return true
}
