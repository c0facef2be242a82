package mongodb

import (
	"context"
	"time"

	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/metrics"
)

// Observer records duration and outcome of store calls
type Observer struct {
	metrics *metrics.Metrics
	logger  *logging.Logger
}

func NewObserver(m *metrics.Metrics, logger *logging.Logger) *Observer {
	return &Observer{metrics: m, logger: logger}
}

// Observe runs fn and records it against collection/operation
func (o *Observer) Observe(ctx context.Context, collection, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	if o == nil {
		return err
	}
	d := time.Since(start)
	o.metrics.RecordStoreOperation(collection, operation, err == nil, d)
	if o.logger != nil {
		o.logger.DatabaseQuery(ctx, collection, operation, d, err == nil)
	}
	return err
}
