package api

import "time"

// Виды кадров хаба
const (
	KindJoin         = "join"         // клиент -> хаб: вход в комнату
	KindJoined       = "joined"       // хаб -> клиент: вход подтвержден
	KindError        = "error"        // хаб -> клиент: ошибка обработки кадра
	KindEntity       = "entity"       // изменение записи
	KindNotification = "notification" // уведомление для администратора
)

// Envelope кадр хаба. Различается полем Kind; кадр без Kind, но с EntityType,
// считается изменением записи.
type Envelope struct {
	Timestamp      time.Time `json:"timestamp,omitzero"`
	Record         *Record   `json:"record,omitempty"`
	Kind           string    `json:"kind,omitempty"`
	Room           string    `json:"room,omitempty"`
	EntityType     string    `json:"entityType,omitempty"`
	Action         string    `json:"action,omitempty"`
	RecordID       string    `json:"recordId,omitempty"`
	OriginClientID string    `json:"originClientId,omitempty"`
	Topic          string    `json:"topic,omitempty"`
	Summary        string    `json:"summary,omitempty"`
	Message        string    `json:"message,omitempty"`
}
