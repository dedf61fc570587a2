package models

import "github.com/iudanet/adminsync/pkg/api"

// RecordFromWire преобразует запись из формата API
func RecordFromWire(r api.Record) *EntityRecord {
	return &EntityRecord{
		ID:         r.ID,
		Type:       EntityType(r.Type),
		Attributes: cloneAttributes(r.Attributes),
		CreatedAt:  r.CreatedAt.UTC(),
		UpdatedAt:  r.UpdatedAt.UTC(),
	}
}

// ToWire преобразует запись в формат API. Pending на провод не попадает.
func (r *EntityRecord) ToWire() api.Record {
	return api.Record{
		ID:         r.ID,
		Type:       string(r.Type),
		Attributes: cloneAttributes(r.Attributes),
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

// ToEnvelope собирает кадр хаба для события изменения записи
func (e *SyncEvent) ToEnvelope() api.Envelope {
	env := api.Envelope{
		Kind:           api.KindEntity,
		EntityType:     string(e.EntityType),
		Action:         string(e.Action),
		RecordID:       e.ID(),
		OriginClientID: e.OriginClientID,
		Timestamp:      e.EmittedAt,
	}
	if e.Record != nil && e.Action != ActionDelete {
		rec := e.Record.ToWire()
		env.Record = &rec
	}
	return env
}
