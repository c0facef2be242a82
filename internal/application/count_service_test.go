package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
)

func countAt(t *testing.T, f *fixture, countID, locationID, sku, qty string) {
	t.Helper()
	f.documents.PutCount(tc, countID, domain.CountLine{CountID: countID, LineID: "1", LocationID: locationID})
	tasks, err := f.tasks.GenerateCountTasks(context.Background(), tc, countID, "supervisor")
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	out := f.completeAll(t, tasks[0], map[domain.StepKind]string{
		domain.StepScanItem: sku,
		domain.StepEnterQty: qty,
	})
	require.True(t, out.Finalized)
}

func TestCount_DeficitApprovedIssuesStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "10", "1")

	countAt(t, f, "count-1", "loc-a1", "SKU-1", "7")

	pending, err := f.counts.ListSubmissions(ctx, tc, "")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].VarianceQty.Equal(dec("-3")))
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("10")), "nothing moves before review")

	approved, err := f.counts.Approve(ctx, tc, ReviewCountCommand{SubmissionID: pending[0].ID, Actor: "supervisor"})
	require.NoError(t, err)
	assert.Equal(t, domain.CountApproved, approved.Status)
	assert.NotEmpty(t, approved.AdjustmentEntryID)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("7")))

	_, err = f.counts.Approve(ctx, tc, ReviewCountCommand{SubmissionID: pending[0].ID, Actor: "supervisor"})
	assert.True(t, errors.HasCode(err, errors.CodeConflict))
}

func TestCount_SurplusRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "2", "1")

	countAt(t, f, "count-1", "loc-a1", "SKU-1", "5")
	pending, err := f.counts.ListSubmissions(ctx, tc, domain.CountPendingReview)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	rejected, err := f.counts.Reject(ctx, tc, ReviewCountCommand{SubmissionID: pending[0].ID, Actor: "supervisor", Note: "recount"})
	require.NoError(t, err)
	assert.Equal(t, domain.CountRejected, rejected.Status)
	assert.True(t, f.balance(t, "item-1", "loc-a1", domain.StateAvailable).Equal(dec("2")))
}

func TestCount_MatchingCountAutoApproves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.receive(t, "rcpt-1", "item-1", "loc-a1", "4", "1")

	countAt(t, f, "count-1", "loc-a1", "SKU-1", "4")

	approved, err := f.counts.ListSubmissions(ctx, tc, domain.CountApproved)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	assert.Empty(t, approved[0].AdjustmentEntryID)
}

func TestCount_UnknownSKUPublishesWithoutSubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.documents.PutCount(tc, "count-1", domain.CountLine{CountID: "count-1", LineID: "1", LocationID: "loc-a2"})
	tasks, err := f.tasks.GenerateCountTasks(ctx, tc, "count-1", "supervisor")
	require.NoError(t, err)
	f.completeAll(t, tasks[0], map[domain.StepKind]string{domain.StepScanItem: "NOT-A-SKU", domain.StepEnterQty: "1"})

	pending, err := f.counts.ListSubmissions(ctx, tc, "")
	require.NoError(t, err)
	assert.Empty(t, pending)

	events, err := f.store.Outbox().FindByAggregateID(ctx, tasks[0].ID)
	require.NoError(t, err)
	var types []string
	for _, e := range events {
		types = append(types, e.EventType)
	}
	assert.Contains(t, types, "wms.count.submitted")
}
