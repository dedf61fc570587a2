package models

import (
	"errors"
	"fmt"
	"time"
)

// SyncEvent описывает одно изменение записи, пришедшее от другого клиента,
// из оптимистичной мутации или из ответа сервера.
// Record заполнен для Create/Update, RecordID - для Delete.
type SyncEvent struct {
	EmittedAt      time.Time     `json:"emittedAt"`
	Record         *EntityRecord `json:"record,omitempty"`
	EntityType     EntityType    `json:"entityType"`
	Action         Action        `json:"action"`
	RecordID       string        `json:"recordId,omitempty"`
	OriginClientID string        `json:"originClientId"`
}

// ID возвращает идентификатор записи, к которой относится событие
func (e *SyncEvent) ID() string {
	if e.RecordID != "" {
		return e.RecordID
	}
	if e.Record != nil {
		return e.Record.ID
	}
	return ""
}

// Validate проверяет, что событие принадлежит закрытому набору вариантов
// {Create|Update с записью, Delete с id}.
func (e *SyncEvent) Validate() error {
	if e.EntityType == "" {
		return errors.New("entity type is required")
	}
	switch e.Action {
	case ActionCreate, ActionUpdate:
		if e.Record == nil {
			return fmt.Errorf("%s event requires a record", e.Action)
		}
		if e.Record.ID == "" {
			return fmt.Errorf("%s event record has empty id", e.Action)
		}
		if e.Record.Type != "" && e.Record.Type != e.EntityType {
			return fmt.Errorf("record type %q does not match event type %q", e.Record.Type, e.EntityType)
		}
		if e.RecordID != "" && e.RecordID != e.Record.ID {
			return fmt.Errorf("record id %q does not match recordId %q", e.Record.ID, e.RecordID)
		}
	case ActionDelete:
		if e.ID() == "" {
			return errors.New("delete event requires a record id")
		}
	default:
		return fmt.Errorf("unknown action %q", e.Action)
	}
	return nil
}

// ConnectionStatus стадия жизненного цикла канала к хабу
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusJoined
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusJoined:
		return "joined"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ConnectionState текущее состояние соединения; Room заполнен только для Joined
type ConnectionState struct {
	Room   string
	Status ConnectionStatus
}

// Disconnected, Connecting, Connected и Joined - конструкторы состояний
func Disconnected() ConnectionState { return ConnectionState{Status: StatusDisconnected} }
func Connecting() ConnectionState   { return ConnectionState{Status: StatusConnecting} }
func Connected() ConnectionState    { return ConnectionState{Status: StatusConnected} }
func Joined(room string) ConnectionState {
	return ConnectionState{Status: StatusJoined, Room: room}
}

// IsJoined true, если клиент подтвердил вход в комнату
func (s ConnectionState) IsJoined() bool {
	return s.Status == StatusJoined
}

func (s ConnectionState) String() string {
	if s.Status == StatusJoined {
		return fmt.Sprintf("joined(%s)", s.Room)
	}
	return s.Status.String()
}

// PendingMutation оптимистичное изменение, ожидающее ответа сервера.
// Prior - снимок записи до мутации (nil для Create), нужен для отката.
type PendingMutation struct {
	IssuedAt         time.Time
	OptimisticRecord *EntityRecord
	Prior            *EntityRecord
	EntityType       EntityType
	Action           Action
	RecordID         string
}
