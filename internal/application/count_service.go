package application

import (
	"context"
	"fmt"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

// CountService reviews count submissions and books approved variances
type CountService struct {
	uow    domain.UnitOfWork
	ledger *LedgerService
	events *eventRecorder
	logger *logging.Logger
}

// NewCountService creates a new CountService
func NewCountService(uow domain.UnitOfWork, ledger *LedgerService, logger *logging.Logger) *CountService {
	return &CountService{
		uow:    uow,
		ledger: ledger,
		events: newEventRecorder(),
		logger: logger.WithComponent("counts"),
	}
}

// ListSubmissions returns submissions in a status, PENDING_REVIEW when empty
func (s *CountService) ListSubmissions(ctx context.Context, tc tenant.Context, status domain.CountStatus) ([]*domain.CountSubmission, error) {
	if status == "" {
		status = domain.CountPendingReview
	}
	var out []*domain.CountSubmission
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		out, err = repos.Counts().List(ctx, tc, status)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list count submissions: %w", err)
	}
	return out, nil
}

// Approve accepts a pending count: a surplus is received into the location, a
// deficit is issued from its AVAILABLE stock.
func (s *CountService) Approve(ctx context.Context, tc tenant.Context, cmd ReviewCountCommand) (*domain.CountSubmission, error) {
	if err := tc.Validate(); err != nil {
		return nil, toAppError(err)
	}
	var submission *domain.CountSubmission
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		submission, err = repos.Counts().Get(ctx, tc, cmd.SubmissionID)
		if err != nil {
			return err
		}
		if submission.Status != domain.CountPendingReview {
			return domain.ErrCountNotPending
		}

		entryID := ""
		if submission.HasVariance() {
			req := domain.MovementRequest{
				CorrelationID: submission.AdjustmentCorrelation(),
				ItemID:        submission.ItemID,
				Quantity:      submission.VarianceQty.Abs(),
				Actor:         cmd.Actor,
				Reason:        "count adjustment",
				Meta:          map[string]string{domain.MetaTaskType: string(domain.TaskCount), domain.MetaTaskID: submission.TaskID},
			}
			if submission.VarianceQty.IsPositive() {
				req.ToLocationID = submission.LocationID
			} else {
				req.FromLocationID = submission.LocationID
			}
			entry, err := s.ledger.applyMovementTx(ctx, repos, tc, req)
			if err != nil {
				return err
			}
			entryID = entry.ID
		}

		if err := submission.Approve(cmd.Actor, entryID); err != nil {
			return err
		}
		return s.saveTx(ctx, repos, tc, submission)
	})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to approve count", "submissionId", cmd.SubmissionID)
		return nil, toAppError(err)
	}

	s.logger.Audit(ctx, "approve", "count_submission", submission.ID, cmd.Actor, map[string]any{
		"variance": submission.VarianceQty.String(),
		"entryId":  submission.AdjustmentEntryID,
	})
	return submission, nil
}

// Reject discards a pending count
func (s *CountService) Reject(ctx context.Context, tc tenant.Context, cmd ReviewCountCommand) (*domain.CountSubmission, error) {
	var submission *domain.CountSubmission
	err := s.uow.WithinTransaction(ctx, func(ctx context.Context, repos domain.Repositories) error {
		var err error
		submission, err = repos.Counts().Get(ctx, tc, cmd.SubmissionID)
		if err != nil {
			return err
		}
		if err := submission.Reject(cmd.Actor, cmd.Note); err != nil {
			return err
		}
		return s.saveTx(ctx, repos, tc, submission)
	})
	if err != nil {
		return nil, toAppError(err)
	}
	s.logger.Audit(ctx, "reject", "count_submission", submission.ID, cmd.Actor, nil)
	return submission, nil
}

func (s *CountService) saveTx(ctx context.Context, repos domain.Repositories, tc tenant.Context, submission *domain.CountSubmission) error {
	if err := repos.Counts().Save(ctx, submission); err != nil {
		return fmt.Errorf("failed to save count submission: %w", err)
	}
	return s.events.record(ctx, repos, tc, submission.ID, aggregateCount, submission.CountID, submission.PullDomainEvents())
}
