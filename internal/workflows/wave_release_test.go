package workflows

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/wms-platform/warehouse-core/internal/application"
	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/metrics"
	wmstemporal "github.com/wms-platform/warehouse-core/pkg/temporal"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

var input = WaveReleaseInput{TenantID: "acme", FacilityID: "dc-1", WaveID: "wave-1", Actor: "planner"}

func completedReleases(m *metrics.Metrics, status string) float64 {
	return testutil.ToFloat64(m.WorkflowsCompleted.WithLabelValues("workflows-test", wmstemporal.WorkflowNames.WaveRelease, status))
}

func TestWaveReleaseWorkflow_Success(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.RegisterWorkflow(WaveReleaseWorkflow)
	env.RegisterActivity(NewWaveActivities(nil, nil, logging.Discard()))

	env.OnActivity(ActivityNames.ReleaseWave, mock.Anything, input).
		Return(&WaveReleaseResult{WaveID: "wave-1", Status: "RELEASED", PickTaskID: "task-9", Orders: 2, Allocations: 3}, nil).Once()

	env.ExecuteWorkflow(WaveReleaseWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	var result WaveReleaseResult
	require.NoError(t, env.GetWorkflowResult(&result))
	assert.Equal(t, "task-9", result.PickTaskID)
	assert.Equal(t, 3, result.Allocations)
	env.AssertExpectations(t)
}

func TestWaveReleaseWorkflow_RetriesTransientFailure(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.RegisterWorkflow(WaveReleaseWorkflow)
	env.RegisterActivity(NewWaveActivities(nil, nil, logging.Discard()))

	env.OnActivity(ActivityNames.ReleaseWave, mock.Anything, mock.Anything).
		Return(nil, stderrors.New("server selection timeout")).Once()
	env.OnActivity(ActivityNames.ReleaseWave, mock.Anything, mock.Anything).
		Return(&WaveReleaseResult{WaveID: "wave-1", Status: "RELEASED", PickTaskID: "task-9"}, nil).Once()

	env.ExecuteWorkflow(WaveReleaseWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())
	env.AssertExpectations(t)
}

func TestWaveReleaseWorkflow_ConflictFailsFast(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestWorkflowEnvironment()

	env.RegisterWorkflow(WaveReleaseWorkflow)
	env.RegisterActivity(NewWaveActivities(nil, nil, logging.Discard()))

	env.OnActivity(ActivityNames.ReleaseWave, mock.Anything, mock.Anything).
		Return(nil, temporal.NewNonRetryableApplicationError("wave is not planned", ErrTypeConflict, nil)).Once()

	env.ExecuteWorkflow(WaveReleaseWorkflow, input)

	require.True(t, env.IsWorkflowCompleted())
	err := env.GetWorkflowError()
	require.Error(t, err)
	var appErr *temporal.ApplicationError
	require.True(t, stderrors.As(err, &appErr))
	assert.Equal(t, ErrTypeConflict, appErr.Type())
	env.AssertExpectations(t)
}

func TestWaveReleaseWorkflowID(t *testing.T) {
	id := WaveReleaseWorkflowID(tenant.Context{TenantID: "acme", FacilityID: "dc-1"}, "wave-1")
	assert.Equal(t, "wave-release-acme-dc-1-wave-1", id)
}

// fakeReleaser stands in for the wave service
type fakeReleaser struct {
	out  *application.WaveReleaseDTO
	err  error
	wave *domain.Wave
	got  application.ReleaseWaveCommand
}

func (f *fakeReleaser) ReleaseWave(_ context.Context, _ tenant.Context, cmd application.ReleaseWaveCommand) (*application.WaveReleaseDTO, error) {
	f.got = cmd
	return f.out, f.err
}

func (f *fakeReleaser) GetWave(context.Context, tenant.Context, string) (*domain.Wave, error) {
	if f.wave == nil {
		return nil, errors.ErrNotFound("wave")
	}
	return f.wave, nil
}

func TestReleaseWaveActivity_Summarizes(t *testing.T) {
	testSuite := &testsuite.WorkflowTestSuite{}
	env := testSuite.NewTestActivityEnvironment()

	releaser := &fakeReleaser{out: &application.WaveReleaseDTO{
		Wave:     &domain.Wave{ID: "wave-1", Status: domain.WaveReleased, Orders: []domain.WaveOrder{{OrderID: "o-1"}, {OrderID: "o-2"}}},
		PickTask: &application.TaskDTO{ID: "task-9"},
		Allocations: map[string]*domain.AllocationResult{
			"o-1": {AllocationsCreated: 2},
			"o-2": {AllocationsCreated: 1, Shortfalls: []domain.Shortfall{{ItemID: "item-2"}}},
		},
	}}
	m := metrics.New(metrics.DefaultConfig("workflows-test"))
	activities := NewWaveActivities(releaser, m, logging.Discard())
	env.RegisterActivity(activities)

	val, err := env.ExecuteActivity(activities.ReleaseWave, input)
	require.NoError(t, err)

	var result WaveReleaseResult
	require.NoError(t, val.Get(&result))
	assert.Equal(t, "task-9", result.PickTaskID)
	assert.Equal(t, 2, result.Orders)
	assert.Equal(t, 3, result.Allocations)
	assert.Equal(t, 1, result.Shortfalls)
	assert.False(t, result.AlreadyReleased)
	assert.Equal(t, "planner", releaser.got.Actor)
	assert.Equal(t, float64(1), completedReleases(m, "success"))
}

func TestReleaseWaveActivity_ClassifiesClientErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		errType string
	}{
		{"conflict", errors.ErrConflict("wave is not planned"), ErrTypeConflict},
		{"not found", errors.ErrNotFound("wave"), ErrTypeNotFound},
		{"validation", errors.ErrValidation("missing actor"), ErrTypeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			testSuite := &testsuite.WorkflowTestSuite{}
			env := testSuite.NewTestActivityEnvironment()
			m := metrics.New(metrics.DefaultConfig("workflows-test"))
			activities := NewWaveActivities(&fakeReleaser{err: tc.err}, m, logging.Discard())
			env.RegisterActivity(activities)

			_, err := env.ExecuteActivity(activities.ReleaseWave, input)
			require.Error(t, err)
			var appErr *temporal.ApplicationError
			require.True(t, stderrors.As(err, &appErr))
			assert.Equal(t, tc.errType, appErr.Type())
			assert.True(t, appErr.NonRetryable())
			assert.Equal(t, float64(1), completedReleases(m, "error"))
		})
	}
}

func TestClassify_LeavesInfrastructureErrorsRetryable(t *testing.T) {
	err := stderrors.New("connection reset")
	assert.Same(t, err, classify(err))
	unavailable := errors.ErrServiceUnavailable("allocation lock")
	assert.Equal(t, error(unavailable), classify(unavailable))
}
