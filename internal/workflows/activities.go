package workflows

import (
	"context"
	stderrors "errors"

	"go.temporal.io/sdk/activity"
	sdktemporal "go.temporal.io/sdk/temporal"

	"github.com/wms-platform/warehouse-core/internal/application"
	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/metrics"
	"github.com/wms-platform/warehouse-core/pkg/temporal"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// WaveReleaser is the part of the wave service the activities drive
type WaveReleaser interface {
	ReleaseWave(ctx context.Context, tc tenant.Context, cmd application.ReleaseWaveCommand) (*application.WaveReleaseDTO, error)
	GetWave(ctx context.Context, tc tenant.Context, waveID string) (*domain.Wave, error)
}

// WaveActivities holds the wave release activities
type WaveActivities struct {
	waves   WaveReleaser
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// NewWaveActivities creates the activities over the wave service
func NewWaveActivities(waves WaveReleaser, m *metrics.Metrics, logger *logging.Logger) *WaveActivities {
	return &WaveActivities{waves: waves, metrics: m, logger: logger.WithComponent("wave-activities")}
}

// ReleaseWave releases the wave. A retry that finds the wave already released
// by an earlier attempt reports that release instead of failing.
func (a *WaveActivities) ReleaseWave(ctx context.Context, input WaveReleaseInput) (*WaveReleaseResult, error) {
	info := activity.GetInfo(ctx)
	tc := input.Tenant()
	logger := a.logger.WithTenant(tc.TenantID, tc.FacilityID)

	out, err := a.waves.ReleaseWave(ctx, tc, application.ReleaseWaveCommand{WaveID: input.WaveID, Actor: input.Actor})
	if err == nil {
		result := &WaveReleaseResult{
			WaveID:     out.Wave.ID,
			Status:     string(out.Wave.Status),
			PickTaskID: out.PickTask.ID,
			Orders:     len(out.Wave.Orders),
		}
		for _, r := range out.Allocations {
			result.Allocations += r.AllocationsCreated
			result.Shortfalls += len(r.Shortfalls)
		}
		a.metrics.RecordWorkflowCompleted(temporal.WorkflowNames.WaveRelease, true)
		logger.Event(ctx, "wave.released", map[string]any{
			"waveId":      result.WaveID,
			"pickTaskId":  result.PickTaskID,
			"allocations": result.Allocations,
			"shortfalls":  result.Shortfalls,
		})
		return result, nil
	}

	if info.Attempt > 1 && errors.HasCode(err, errors.CodeConflict) {
		if wave, getErr := a.waves.GetWave(ctx, tc, input.WaveID); getErr == nil && wave.PickTaskID != "" {
			logger.Info("Wave already released by an earlier attempt", "waveId", wave.ID, "attempt", info.Attempt)
			a.metrics.RecordWorkflowCompleted(temporal.WorkflowNames.WaveRelease, true)
			return &WaveReleaseResult{
				WaveID:          wave.ID,
				Status:          string(wave.Status),
				PickTaskID:      wave.PickTaskID,
				Orders:          len(wave.Orders),
				AlreadyReleased: true,
			}, nil
		}
	}

	logger.WithError(err).Warn("Wave release attempt failed", "waveId", input.WaveID, "attempt", info.Attempt)
	classified := classify(err)
	var appErr *sdktemporal.ApplicationError
	if stderrors.As(classified, &appErr) && appErr.NonRetryable() {
		a.metrics.RecordWorkflowCompleted(temporal.WorkflowNames.WaveRelease, false)
	}
	return nil, classified
}

// classify marks client errors non-retryable so the workflow fails fast
func classify(err error) error {
	appErr, ok := errors.AsAppError(err)
	if !ok {
		return err
	}
	switch appErr.Code {
	case errors.CodeConflict:
		return sdktemporal.NewNonRetryableApplicationError(appErr.Message, ErrTypeConflict, err)
	case errors.CodeNotFound:
		return sdktemporal.NewNonRetryableApplicationError(appErr.Message, ErrTypeNotFound, err)
	case errors.CodeValidationError, errors.CodeBadRequest:
		return sdktemporal.NewNonRetryableApplicationError(appErr.Message, ErrTypeValidation, err)
	}
	return err
}
