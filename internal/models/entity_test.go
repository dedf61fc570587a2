package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityRecord_IsNewerThan(t *testing.T) {
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	older := &EntityRecord{ID: "P1", UpdatedAt: base}
	newer := &EntityRecord{ID: "P1", UpdatedAt: base.Add(time.Second)}
	same := &EntityRecord{ID: "P1", UpdatedAt: base}

	assert.True(t, newer.IsNewerThan(older))
	assert.False(t, older.IsNewerThan(newer))
	// Одинаковые timestamps не считаются новее - это делает повторное применение идемпотентным
	assert.False(t, same.IsNewerThan(older))
}

func TestEntityRecord_Clone(t *testing.T) {
	original := &EntityRecord{
		ID:   "P1",
		Type: EntityProducts,
		Attributes: map[string]any{
			"name": "Widget",
			"tags": []any{"a", "b"},
			"dims": map[string]any{"w": 1.0},
		},
		Pending: true,
	}

	clone := original.Clone()
	require.Equal(t, original, clone)

	// Изменение копии не должно затрагивать оригинал
	clone.Attributes["name"] = "Gadget"
	clone.Attributes["tags"].([]any)[0] = "z"
	clone.Attributes["dims"].(map[string]any)["w"] = 2.0

	assert.Equal(t, "Widget", original.Attributes["name"])
	assert.Equal(t, "a", original.Attributes["tags"].([]any)[0])
	assert.Equal(t, 1.0, original.Attributes["dims"].(map[string]any)["w"])
}

func TestEntityRecord_Clone_NilAttributes(t *testing.T) {
	clone := (&EntityRecord{ID: "P1"}).Clone()
	assert.NotNil(t, clone.Attributes)
	assert.Empty(t, clone.Attributes)
}

func TestMergeAttributes(t *testing.T) {
	base := map[string]any{"name": "Widget", "price": 10.0, "stock": 3.0}
	patch := map[string]any{"price": 12.5, "stock": nil, "color": "red"}

	merged := MergeAttributes(base, patch)

	assert.Equal(t, map[string]any{"name": "Widget", "price": 12.5, "color": "red"}, merged)
	// base не изменился
	assert.Equal(t, 10.0, base["price"])
	assert.Contains(t, base, "stock")
}

func TestParseAction(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Action
		wantErr bool
	}{
		{name: "create", input: "create", want: ActionCreate},
		{name: "upper case update", input: "UPDATE", want: ActionUpdate},
		{name: "padded delete", input: " Delete ", want: ActionDelete},
		{name: "unknown", input: "upsert", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAction(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSyncEvent_Validate(t *testing.T) {
	rec := &EntityRecord{ID: "P1", Type: EntityProducts}

	tests := []struct {
		event   SyncEvent
		name    string
		wantErr bool
	}{
		{name: "valid create", event: SyncEvent{EntityType: EntityProducts, Action: ActionCreate, Record: rec}},
		{name: "valid update without record type", event: SyncEvent{EntityType: EntityProducts, Action: ActionUpdate, Record: &EntityRecord{ID: "P1"}}},
		{name: "valid delete", event: SyncEvent{EntityType: EntityProducts, Action: ActionDelete, RecordID: "P1"}},
		{name: "delete by record id", event: SyncEvent{EntityType: EntityProducts, Action: ActionDelete, Record: rec}},
		{name: "missing type", event: SyncEvent{Action: ActionCreate, Record: rec}, wantErr: true},
		{name: "create without record", event: SyncEvent{EntityType: EntityProducts, Action: ActionCreate}, wantErr: true},
		{name: "create with empty id", event: SyncEvent{EntityType: EntityProducts, Action: ActionCreate, Record: &EntityRecord{}}, wantErr: true},
		{name: "type mismatch", event: SyncEvent{EntityType: EntityOrders, Action: ActionUpdate, Record: rec}, wantErr: true},
		{name: "id mismatch", event: SyncEvent{EntityType: EntityProducts, Action: ActionUpdate, Record: rec, RecordID: "P2"}, wantErr: true},
		{name: "delete without id", event: SyncEvent{EntityType: EntityProducts, Action: ActionDelete}, wantErr: true},
		{name: "unknown action", event: SyncEvent{EntityType: EntityProducts, Action: "merge", Record: rec}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConnectionState_String(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected().String())
	assert.Equal(t, "connecting", Connecting().String())
	assert.Equal(t, "connected", Connected().String())
	assert.Equal(t, "joined(admin)", Joined("admin").String())
	assert.True(t, Joined("admin").IsJoined())
	assert.False(t, Connected().IsJoined())
}
