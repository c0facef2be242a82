package application

import (
	"context"
	"fmt"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/cloudevents"
	"github.com/wms-platform/warehouse-core/pkg/kafka"
	"github.com/wms-platform/warehouse-core/pkg/outbox"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// Aggregate types stamped on outbox rows
const (
	aggregateLedgerEntry = "LedgerEntry"
	aggregateOrder       = "Order"
	aggregateBackorder   = "Backorder"
	aggregateTask        = "Task"
	aggregateException   = "TaskException"
	aggregateWave        = "Wave"
	aggregateShipment    = "Shipment"
	aggregateCount       = "CountSubmission"
	aggregateScanSession = "ScanSession"
)

type eventRoute struct {
	topic  string
	source string
}

func routeFor(eventType string) (eventRoute, error) {
	switch eventType {
	case cloudevents.InventoryChanged:
		return eventRoute{kafka.Topics.InventoryEvents, cloudevents.SourceLedger}, nil
	case cloudevents.OrderAllocated, cloudevents.OrderDeallocated,
		cloudevents.BackorderCreated, cloudevents.BackorderClosed:
		return eventRoute{kafka.Topics.AllocationEvents, cloudevents.SourceAllocation}, nil
	case cloudevents.TaskCreated, cloudevents.TaskStepCompleted, cloudevents.TaskExceptionRaised,
		cloudevents.TaskCompleted, cloudevents.TaskCancelled:
		return eventRoute{kafka.Topics.TaskEvents, cloudevents.SourceTasks}, nil
	case cloudevents.ExceptionRaised, cloudevents.ShortPickRecorded, cloudevents.ExceptionResolved:
		return eventRoute{kafka.Topics.ExceptionEvents, cloudevents.SourceTasks}, nil
	case cloudevents.WaveCreated, cloudevents.WaveReleased:
		return eventRoute{kafka.Topics.WavesEvents, cloudevents.SourceWaves}, nil
	case cloudevents.ShipmentPacked, cloudevents.ShipmentShipped:
		return eventRoute{kafka.Topics.ShippingEvents, cloudevents.SourceCore}, nil
	case cloudevents.CountSubmitted, cloudevents.CountAdjustmentApproved, cloudevents.CountRejected:
		return eventRoute{kafka.Topics.CountEvents, cloudevents.SourceCounts}, nil
	case cloudevents.ScanSessionCompleted:
		return eventRoute{kafka.Topics.ScanEvents, cloudevents.SourceScan}, nil
	default:
		return eventRoute{}, fmt.Errorf("no route for event type %q", eventType)
	}
}

// eventRecorder turns domain events into outbox rows inside the caller's unit
// of work. The factory map is read-only after construction.
type eventRecorder struct {
	factories map[string]*cloudevents.EventFactory
}

func newEventRecorder() *eventRecorder {
	r := &eventRecorder{factories: make(map[string]*cloudevents.EventFactory)}
	for _, source := range []string{
		cloudevents.SourceLedger,
		cloudevents.SourceAllocation,
		cloudevents.SourceTasks,
		cloudevents.SourceWaves,
		cloudevents.SourceScan,
		cloudevents.SourceCounts,
		cloudevents.SourceCore,
	} {
		r.factories[source] = cloudevents.NewEventFactory(source)
	}
	return r
}

// record writes events for one aggregate. correlationID is optional.
func (r *eventRecorder) record(ctx context.Context, repos domain.Repositories, tc tenant.Context, aggregateID, aggregateType, correlationID string, events []domain.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}
	rows := make([]*outbox.OutboxEvent, 0, len(events))
	for _, event := range events {
		route, err := routeFor(event.EventType())
		if err != nil {
			return err
		}
		ce := r.factories[route.source].CreateTenantEvent(ctx, tc, event.EventType(), aggregateID, event)
		if correlationID != "" {
			ce.WithCorrelation(correlationID)
		}
		if aggregateType == aggregateWave {
			ce.WithWave(aggregateID)
		}
		row, err := outbox.NewOutboxEventFromCloudEvent(aggregateID, aggregateType, route.topic, ce)
		if err != nil {
			return fmt.Errorf("failed to build outbox event: %w", err)
		}
		rows = append(rows, row)
	}
	if err := repos.Outbox().SaveAll(ctx, rows); err != nil {
		return fmt.Errorf("failed to save outbox events: %w", err)
	}
	return nil
}
