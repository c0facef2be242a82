// Package workflows runs long wave releases on Temporal so the API can answer
// before allocation and task generation finish.
package workflows

import (
	"fmt"

	"go.temporal.io/sdk/workflow"

	"github.com/wms-platform/warehouse-core/pkg/temporal"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// ActivityNames are the registered activity names
var ActivityNames = struct {
	ReleaseWave string
}{
	ReleaseWave: "ReleaseWave",
}

// Non-retryable application error types
const (
	ErrTypeConflict   = "ConflictError"
	ErrTypeNotFound   = "NotFoundError"
	ErrTypeValidation = "ValidationError"
)

// WaveReleaseInput starts a wave release
type WaveReleaseInput struct {
	TenantID   string `json:"tenantId"`
	FacilityID string `json:"facilityId"`
	WaveID     string `json:"waveId"`
	Actor      string `json:"actor"`
}

// Tenant returns the scope of the release
func (in WaveReleaseInput) Tenant() tenant.Context {
	return tenant.Context{TenantID: in.TenantID, FacilityID: in.FacilityID}
}

// WaveReleaseResult summarizes a completed release
type WaveReleaseResult struct {
	WaveID          string `json:"waveId"`
	Status          string `json:"status"`
	PickTaskID      string `json:"pickTaskId"`
	Orders          int    `json:"orders"`
	Allocations     int    `json:"allocations"`
	Shortfalls      int    `json:"shortfalls"`
	AlreadyReleased bool   `json:"alreadyReleased,omitempty"`
}

// WaveReleaseWorkflowID is one id per wave, so the server rejects a second
// concurrent release of the same wave.
func WaveReleaseWorkflowID(tc tenant.Context, waveID string) string {
	return fmt.Sprintf("wave-release-%s-%s-%s", tc.TenantID, tc.FacilityID, waveID)
}

// WaveReleaseWorkflow releases one wave through the ReleaseWave activity
func WaveReleaseWorkflow(ctx workflow.Context, input WaveReleaseInput) (*WaveReleaseResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting wave release workflow", "waveId", input.WaveID, "tenantId", input.TenantID)

	opts := temporal.DefaultActivityOptions()
	opts.RetryPolicy.MaximumAttempts = 5
	opts.RetryPolicy.NonRetryableErrorTypes = []string{ErrTypeConflict, ErrTypeNotFound, ErrTypeValidation}
	ctx = workflow.WithActivityOptions(ctx, opts)

	var result WaveReleaseResult
	if err := workflow.ExecuteActivity(ctx, ActivityNames.ReleaseWave, input).Get(ctx, &result); err != nil {
		logger.Error("Wave release failed", "waveId", input.WaveID, "error", err)
		return nil, err
	}

	logger.Info("Wave release completed", "waveId", input.WaveID, "pickTaskId", result.PickTaskID,
		"allocations", result.Allocations, "shortfalls", result.Shortfalls)
	return &result, nil
}
