package cloudevents

import "time"

// Event types emitted by warehouse-core
const (
	InventoryChanged = "wms.inventory.changed"

	OrderAllocated   = "wms.allocation.order-allocated"
	OrderDeallocated = "wms.allocation.order-deallocated"
	BackorderCreated = "wms.allocation.backorder-created"
	BackorderClosed  = "wms.allocation.backorder-closed"

	TaskCreated         = "wms.task.created"
	TaskStepCompleted   = "wms.task.step-completed"
	TaskExceptionRaised = "wms.task.exception-raised"
	TaskCompleted       = "wms.task.completed"
	TaskCancelled       = "wms.task.cancelled"

	ExceptionRaised   = "wms.exception.raised"
	ShortPickRecorded = "wms.exception.short-pick-recorded"
	ExceptionResolved = "wms.exception.resolved"

	WaveCreated  = "wms.wave.created"
	WaveReleased = "wms.wave.released"

	ShipmentPacked  = "wms.shipping.shipment-packed"
	ShipmentShipped = "wms.shipping.shipment-shipped"

	CountSubmitted          = "wms.count.submitted"
	CountAdjustmentApproved = "wms.count.adjustment-approved"
	CountRejected           = "wms.count.rejected"

	ScanSessionCompleted = "wms.scan.session-completed"
)

// Event sources
const (
	SourceLedger     = "/wms/warehouse-core/ledger"
	SourceAllocation = "/wms/warehouse-core/allocation"
	SourceTasks      = "/wms/warehouse-core/tasks"
	SourceWaves      = "/wms/warehouse-core/waves"
	SourceScan       = "/wms/warehouse-core/scan"
	SourceCounts     = "/wms/warehouse-core/counts"
	SourceCore       = "/wms/warehouse-core"
)

// WMSCloudEvent is a CloudEvents v1.0 envelope with WMS extensions
type WMSCloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	Type            string      `json:"type"`
	Source          string      `json:"source"`
	Subject         string      `json:"subject,omitempty"`
	ID              string      `json:"id"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            interface{} `json:"data"`

	CorrelationID string `json:"wmscorrelationid,omitempty"`
	WaveNumber    string `json:"wmswavenumber,omitempty"`
	WorkflowID    string `json:"wmsworkflowid,omitempty"`
	TenantID      string `json:"wmstenantid,omitempty"`
	FacilityID    string `json:"wmsfacilityid,omitempty"`
}
