package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DomainEvent is the interface for all domain events
type DomainEvent interface {
	EventType() string
	OccurredAt() time.Time
}

// InventoryChangedEvent is published for every applied ledger movement
type InventoryChangedEvent struct {
	EntryID        string          `json:"entryId"`
	CorrelationID  string          `json:"correlationId"`
	Kind           string          `json:"kind"`
	ItemID         string          `json:"itemId"`
	FromLocationID string          `json:"fromLocationId,omitempty"`
	ToLocationID   string          `json:"toLocationId,omitempty"`
	LotID          string          `json:"lotId,omitempty"`
	ContainerID    string          `json:"containerId,omitempty"`
	State          string          `json:"state"`
	ToState        string          `json:"toState"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitCost       decimal.Decimal `json:"unitCost"`
	ExtendedCost   decimal.Decimal `json:"extendedCost"`
	Actor          string          `json:"actor"`
	Reason         string          `json:"reason,omitempty"`
	ChangedAt      time.Time       `json:"changedAt"`
}

func (e *InventoryChangedEvent) EventType() string     { return "wms.inventory.changed" }
func (e *InventoryChangedEvent) OccurredAt() time.Time { return e.ChangedAt }

// OrderAllocatedEvent is published after an allocation run
type OrderAllocatedEvent struct {
	OrderID            string      `json:"orderId"`
	AllocationsCreated int         `json:"allocationsCreated"`
	Released           int         `json:"released"`
	Shortfalls         []Shortfall `json:"shortfalls"`
	AllocatedAt        time.Time   `json:"allocatedAt"`
}

func (e *OrderAllocatedEvent) EventType() string     { return "wms.allocation.order-allocated" }
func (e *OrderAllocatedEvent) OccurredAt() time.Time { return e.AllocatedAt }

// OrderDeallocatedEvent is published when an order's reservations are released
type OrderDeallocatedEvent struct {
	OrderID       string    `json:"orderId"`
	Released      int       `json:"released"`
	DeallocatedAt time.Time `json:"deallocatedAt"`
}

func (e *OrderDeallocatedEvent) EventType() string     { return "wms.allocation.order-deallocated" }
func (e *OrderDeallocatedEvent) OccurredAt() time.Time { return e.DeallocatedAt }

// BackorderCreatedEvent is published when demand cannot be covered
type BackorderCreatedEvent struct {
	BackorderID string          `json:"backorderId"`
	OrderID     string          `json:"orderId"`
	OrderLineID string          `json:"orderLineId"`
	ItemID      string          `json:"itemId"`
	Quantity    decimal.Decimal `json:"quantity"`
	Reason      string          `json:"reason"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func (e *BackorderCreatedEvent) EventType() string     { return "wms.allocation.backorder-created" }
func (e *BackorderCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// BackorderClosedEvent is published when a backorder is resolved or cancelled
type BackorderClosedEvent struct {
	BackorderID string    `json:"backorderId"`
	OrderID     string    `json:"orderId"`
	Status      string    `json:"status"`
	ClosedBy    string    `json:"closedBy"`
	ClosedAt    time.Time `json:"closedAt"`
}

func (e *BackorderClosedEvent) EventType() string     { return "wms.allocation.backorder-closed" }
func (e *BackorderClosedEvent) OccurredAt() time.Time { return e.ClosedAt }

// TaskCreatedEvent is published when a task is generated
type TaskCreatedEvent struct {
	TaskID     string    `json:"taskId"`
	Type       string    `json:"type"`
	SourceType string    `json:"sourceType"`
	SourceID   string    `json:"sourceId"`
	StepCount  int       `json:"stepCount"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (e *TaskCreatedEvent) EventType() string     { return "wms.task.created" }
func (e *TaskCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// TaskStepCompletedEvent is published for every accepted step
type TaskStepCompletedEvent struct {
	TaskID      string    `json:"taskId"`
	StepID      string    `json:"stepId"`
	Kind        string    `json:"kind"`
	Value       string    `json:"value"`
	Actor       string    `json:"actor"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e *TaskStepCompletedEvent) EventType() string     { return "wms.task.step-completed" }
func (e *TaskStepCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// TaskExceptionRaisedEvent is published when a step value is rejected
type TaskExceptionRaisedEvent struct {
	ExceptionID string    `json:"exceptionId"`
	TaskID      string    `json:"taskId"`
	StepID      string    `json:"stepId"`
	Kind        string    `json:"kind"`
	Expected    string    `json:"expected"`
	Got         string    `json:"got"`
	Actor       string    `json:"actor"`
	RaisedAt    time.Time `json:"raisedAt"`
}

func (e *TaskExceptionRaisedEvent) EventType() string     { return "wms.task.exception-raised" }
func (e *TaskExceptionRaisedEvent) OccurredAt() time.Time { return e.RaisedAt }

// TaskCompletedEvent is published after finalization
type TaskCompletedEvent struct {
	TaskID      string    `json:"taskId"`
	Type        string    `json:"type"`
	Actor       string    `json:"actor"`
	CompletedAt time.Time `json:"completedAt"`
}

func (e *TaskCompletedEvent) EventType() string     { return "wms.task.completed" }
func (e *TaskCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }

// TaskCancelledEvent is published when a task is abandoned
type TaskCancelledEvent struct {
	TaskID      string    `json:"taskId"`
	Type        string    `json:"type"`
	Actor       string    `json:"actor"`
	Reason      string    `json:"reason,omitempty"`
	CancelledAt time.Time `json:"cancelledAt"`
}

func (e *TaskCancelledEvent) EventType() string     { return "wms.task.cancelled" }
func (e *TaskCancelledEvent) OccurredAt() time.Time { return e.CancelledAt }

// ExceptionRaisedEvent is published for every new TaskException
type ExceptionRaisedEvent struct {
	ExceptionID string    `json:"exceptionId"`
	TaskID      string    `json:"taskId"`
	TaskType    string    `json:"taskType"`
	Kind        string    `json:"kind"`
	Message     string    `json:"message"`
	RaisedAt    time.Time `json:"raisedAt"`
}

func (e *ExceptionRaisedEvent) EventType() string     { return "wms.exception.raised" }
func (e *ExceptionRaisedEvent) OccurredAt() time.Time { return e.RaisedAt }

// ShortPickRecordedEvent is published when fewer units were picked than allocated
type ShortPickRecordedEvent struct {
	ExceptionID  string          `json:"exceptionId"`
	TaskID       string          `json:"taskId"`
	OrderID      string          `json:"orderId"`
	OrderLineID  string          `json:"orderLineId"`
	AllocationID string          `json:"allocationId"`
	ItemID       string          `json:"itemId"`
	LocationID   string          `json:"locationId"`
	ExpectedQty  decimal.Decimal `json:"expectedQty"`
	PickedQty    decimal.Decimal `json:"pickedQty"`
	RemainingQty decimal.Decimal `json:"remainingQty"`
	RecordedAt   time.Time       `json:"recordedAt"`
}

func (e *ShortPickRecordedEvent) EventType() string     { return "wms.exception.short-pick-recorded" }
func (e *ShortPickRecordedEvent) OccurredAt() time.Time { return e.RecordedAt }

// ExceptionResolvedEvent is published when an exception is closed
type ExceptionResolvedEvent struct {
	ExceptionID string    `json:"exceptionId"`
	TaskID      string    `json:"taskId"`
	Kind        string    `json:"kind"`
	ResolvedBy  string    `json:"resolvedBy"`
	Resolution  string    `json:"resolution,omitempty"`
	ResolvedAt  time.Time `json:"resolvedAt"`
}

func (e *ExceptionResolvedEvent) EventType() string     { return "wms.exception.resolved" }
func (e *ExceptionResolvedEvent) OccurredAt() time.Time { return e.ResolvedAt }

// WaveCreatedEvent is published when orders are batched into a wave
type WaveCreatedEvent struct {
	WaveID    string    `json:"waveId"`
	OrderIDs  []string  `json:"orderIds"`
	CreatedAt time.Time `json:"createdAt"`
}

func (e *WaveCreatedEvent) EventType() string     { return "wms.wave.created" }
func (e *WaveCreatedEvent) OccurredAt() time.Time { return e.CreatedAt }

// WaveReleasedEvent is published when a wave is released to the floor
type WaveReleasedEvent struct {
	WaveID     string            `json:"waveId"`
	PickTaskID string            `json:"pickTaskId"`
	OrderIDs   []string          `json:"orderIds"`
	Cart       string            `json:"cart"`
	Totes      map[string]string `json:"totes"`
	StopCount  int               `json:"stopCount"`
	ReleasedBy string            `json:"releasedBy"`
	ReleasedAt time.Time         `json:"releasedAt"`
}

func (e *WaveReleasedEvent) EventType() string     { return "wms.wave.released" }
func (e *WaveReleasedEvent) OccurredAt() time.Time { return e.ReleasedAt }

// ShipmentPackedEvent is published when a PACK task finalizes
type ShipmentPackedEvent struct {
	ShipmentID string    `json:"shipmentId"`
	OrderID    string    `json:"orderId"`
	LPN        string    `json:"lpn,omitempty"`
	PackedAt   time.Time `json:"packedAt"`
}

func (e *ShipmentPackedEvent) EventType() string     { return "wms.shipping.shipment-packed" }
func (e *ShipmentPackedEvent) OccurredAt() time.Time { return e.PackedAt }

// ShipmentShippedEvent is published when a SHIP task finalizes
type ShipmentShippedEvent struct {
	ShipmentID string    `json:"shipmentId"`
	OrderID    string    `json:"orderId"`
	LPN        string    `json:"lpn,omitempty"`
	ShippedAt  time.Time `json:"shippedAt"`
}

func (e *ShipmentShippedEvent) EventType() string     { return "wms.shipping.shipment-shipped" }
func (e *ShipmentShippedEvent) OccurredAt() time.Time { return e.ShippedAt }

// CountSubmittedEvent is published when a COUNT task finalizes. UnknownSKU is
// set, and no submission exists, when the scanned SKU is not in the catalog.
type CountSubmittedEvent struct {
	SubmissionID string          `json:"submissionId,omitempty"`
	TaskID       string          `json:"taskId"`
	LocationCode string          `json:"locationCode"`
	SKU          string          `json:"sku,omitempty"`
	UnknownSKU   string          `json:"unknownSku,omitempty"`
	Counted      decimal.Decimal `json:"counted"`
	Expected     decimal.Decimal `json:"expected"`
	Variance     decimal.Decimal `json:"variance"`
	Status       string          `json:"status,omitempty"`
	SubmittedAt  time.Time       `json:"submittedAt"`
}

func (e *CountSubmittedEvent) EventType() string     { return "wms.count.submitted" }
func (e *CountSubmittedEvent) OccurredAt() time.Time { return e.SubmittedAt }

// CountAdjustmentApprovedEvent is published when a variance is booked
type CountAdjustmentApprovedEvent struct {
	SubmissionID string          `json:"submissionId"`
	ItemID       string          `json:"itemId"`
	LocationID   string          `json:"locationId"`
	Variance     decimal.Decimal `json:"variance"`
	EntryID      string          `json:"entryId,omitempty"`
	ApprovedBy   string          `json:"approvedBy"`
	ApprovedAt   time.Time       `json:"approvedAt"`
}

func (e *CountAdjustmentApprovedEvent) EventType() string     { return "wms.count.adjustment-approved" }
func (e *CountAdjustmentApprovedEvent) OccurredAt() time.Time { return e.ApprovedAt }

// CountRejectedEvent is published when a count is discarded
type CountRejectedEvent struct {
	SubmissionID string    `json:"submissionId"`
	RejectedBy   string    `json:"rejectedBy"`
	Note         string    `json:"note,omitempty"`
	RejectedAt   time.Time `json:"rejectedAt"`
}

func (e *CountRejectedEvent) EventType() string     { return "wms.count.rejected" }
func (e *CountRejectedEvent) OccurredAt() time.Time { return e.RejectedAt }

// ScanSessionCompletedEvent is published when a scan session ends
type ScanSessionCompletedEvent struct {
	SessionID         string    `json:"sessionId"`
	Mode              string    `json:"mode"`
	Status            string    `json:"status"`
	Executed          string    `json:"executed,omitempty"`
	Operator          string    `json:"operator"`
	ProductionOrderID string    `json:"productionOrderId,omitempty"`
	CompletedAt       time.Time `json:"completedAt"`
}

func (e *ScanSessionCompletedEvent) EventType() string     { return "wms.scan.session-completed" }
func (e *ScanSessionCompletedEvent) OccurredAt() time.Time { return e.CompletedAt }
