package asyncapi

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/pkg/cloudevents"
	"github.com/wms-platform/warehouse-core/pkg/kafka"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

func TestEmbeddedDocumentCoversEveryEventType(t *testing.T) {
	v, err := NewEventValidator()
	require.NoError(t, err)

	types := []string{
		cloudevents.InventoryChanged,
		cloudevents.OrderAllocated, cloudevents.OrderDeallocated, cloudevents.BackorderCreated, cloudevents.BackorderClosed,
		cloudevents.TaskCreated, cloudevents.TaskStepCompleted, cloudevents.TaskExceptionRaised, cloudevents.TaskCompleted, cloudevents.TaskCancelled,
		cloudevents.ExceptionRaised, cloudevents.ShortPickRecorded, cloudevents.ExceptionResolved,
		cloudevents.WaveCreated, cloudevents.WaveReleased,
		cloudevents.ShipmentPacked, cloudevents.ShipmentShipped,
		cloudevents.CountSubmitted, cloudevents.CountAdjustmentApproved, cloudevents.CountRejected,
		cloudevents.ScanSessionCompleted,
	}
	assert.ElementsMatch(t, types, v.SupportedEventTypes())
	for _, eventType := range types {
		_, ok := v.Channel(eventType)
		assert.True(t, ok, eventType)
	}

	topic, _ := v.Channel(cloudevents.WaveReleased)
	assert.Equal(t, kafka.Topics.WavesEvents, topic)
}

func encode(t *testing.T, eventType string, data any) []byte {
	t.Helper()
	ce := cloudevents.NewEventFactory(cloudevents.SourceLedger).
		CreateTenantEvent(context.Background(), tenant.New("", ""), eventType, "subject-1", data)
	b, err := json.Marshal(ce)
	require.NoError(t, err)
	return b
}

func TestValidateEventJSON(t *testing.T) {
	v, err := NewEventValidator()
	require.NoError(t, err)
	now := time.Now().UTC()

	good := map[string]any{
		"entryId": "e-1", "correlationId": "rcpt-1", "kind": "RECEIPT", "itemId": "item-1",
		"state": "AVAILABLE", "toState": "AVAILABLE",
		"quantity": decimal.NewFromInt(5), "unitCost": decimal.NewFromInt(2), "extendedCost": decimal.NewFromInt(10),
		"actor": "clerk", "changedAt": now,
	}
	assert.NoError(t, v.ValidateEventJSON(encode(t, cloudevents.InventoryChanged, good)))

	tests := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing item", func(m map[string]any) { delete(m, "itemId") }},
		{"bad kind", func(m map[string]any) { m["kind"] = "TELEPORT" }},
		{"numeric quantity", func(m map[string]any) { m["quantity"] = 5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := make(map[string]any, len(good))
			for k, val := range good {
				data[k] = val
			}
			tt.mutate(data)
			assert.Error(t, v.ValidateEventJSON(encode(t, cloudevents.InventoryChanged, data)))
		})
	}

	assert.Error(t, v.ValidateEventJSON(encode(t, "wms.unknown.event", good)))
	assert.Error(t, v.ValidateEventJSON([]byte(`{"type":"wms.inventory.changed","specversion":"0.3","id":"1","source":"x","data":{}}`)))
}

func TestNewEventValidatorFromBytes_RejectsUnnamedMessages(t *testing.T) {
	_, err := NewEventValidatorFromBytes([]byte(`
asyncapi: 3.0.0
components:
  messages:
    Broken:
      payload:
        $ref: '#/components/schemas/Thing'
  schemas:
    Thing:
      type: object
`))
	assert.Error(t, err)
}
