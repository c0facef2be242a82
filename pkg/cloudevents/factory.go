package cloudevents

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// EventFactory creates CloudEvents for one source
type EventFactory struct {
	source string
	now    func() time.Time
}

// NewEventFactory creates a new EventFactory for a specific source
func NewEventFactory(source string) *EventFactory {
	return &EventFactory{source: source, now: func() time.Time { return time.Now().UTC() }}
}

// Source returns the factory's source attribute
func (f *EventFactory) Source() string {
	return f.source
}

// CreateEvent creates a new WMSCloudEvent
func (f *EventFactory) CreateEvent(ctx context.Context, eventType, subject string, data interface{}) *WMSCloudEvent {
	return &WMSCloudEvent{
		SpecVersion:     "1.0",
		Type:            eventType,
		Source:          f.source,
		Subject:         subject,
		ID:              uuid.New().String(),
		Time:            f.now(),
		DataContentType: "application/json",
		Data:            data,
	}
}

// CreateTenantEvent creates an event stamped with the tenant extensions
func (f *EventFactory) CreateTenantEvent(ctx context.Context, tc tenant.Context, eventType, subject string, data interface{}) *WMSCloudEvent {
	event := f.CreateEvent(ctx, eventType, subject, data)
	event.TenantID = tc.TenantID
	event.FacilityID = tc.FacilityID
	return event
}

// WithCorrelation sets the correlation extension and returns the event
func (e *WMSCloudEvent) WithCorrelation(correlationID string) *WMSCloudEvent {
	e.CorrelationID = correlationID
	return e
}

// WithWave sets the wave extension and returns the event
func (e *WMSCloudEvent) WithWave(waveID string) *WMSCloudEvent {
	e.WaveNumber = waveID
	return e
}
