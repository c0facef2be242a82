package kafka

import "time"

// Config holds Kafka producer configuration
type Config struct {
	Brokers      []string
	ClientID     string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int // 0: no ack, 1: leader ack, -1: all replicas ack
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Brokers:      []string{"localhost:9092"},
		ClientID:     "warehouse-core",
		BatchSize:    100,
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: -1,
		WriteTimeout: 10 * time.Second,
	}
}

// Topics contains the topics warehouse-core publishes to
var Topics = struct {
	InventoryEvents  string
	AllocationEvents string
	TaskEvents       string
	ExceptionEvents  string
	WavesEvents      string
	ShippingEvents   string
	CountEvents      string
	ScanEvents       string
}{
	InventoryEvents:  "wms.inventory.events",
	AllocationEvents: "wms.allocation.events",
	TaskEvents:       "wms.task.events",
	ExceptionEvents:  "wms.exception.events",
	WavesEvents:      "wms.waves.events",
	ShippingEvents:   "wms.shipping.events",
	CountEvents:      "wms.count.events",
	ScanEvents:       "wms.scan.events",
}
