package application

import (
	stderrors "errors"
	"net/http"

	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/errors"
	"github.com/wms-platform/warehouse-core/pkg/tenant"
)

var validationErrors = []error{
	domain.ErrInvalidQuantity,
	domain.ErrMissingCorrelationID,
	domain.ErrMissingItem,
	domain.ErrMissingLocation,
	domain.ErrInvalidStateTransfer,
	domain.ErrInvalidState,
	domain.ErrMissingActor,
	domain.ErrEmptyWave,
	domain.ErrInvalidScanMode,
	domain.ErrStepOutOfOrder,
	domain.ErrNoBinLocations,
	domain.ErrInvalidResolution,
	domain.ErrMissingReason,
	domain.ErrOverrideNotAllowed,
	domain.ErrInvalidHoldState,
	domain.ErrInvalidExpectedScan,
	tenant.ErrMissingTenantID,
	tenant.ErrMissingTenantContext,
}

var notFoundErrors = []error{
	domain.ErrUnknownItem,
	domain.ErrUnknownLocation,
	domain.ErrUnknownLot,
	domain.ErrTaskNotFound,
	domain.ErrStepNotFound,
	domain.ErrWaveNotFound,
	domain.ErrExceptionNotFound,
	domain.ErrBackorderNotFound,
	domain.ErrCountNotFound,
	domain.ErrScanSessionNotFound,
	domain.ErrOrderNotFound,
	domain.ErrReceiptNotFound,
	domain.ErrCountRequestNotFound,
	domain.ErrProductionOrderNotFound,
	domain.ErrHoldNotFound,
	domain.ErrHandoffNotFound,
}

var conflictErrors = []error{
	domain.ErrTaskClosed,
	domain.ErrTaskInException,
	domain.ErrTaskNotInException,
	domain.ErrWaveNotPlanned,
	domain.ErrExceptionClosed,
	domain.ErrBackorderClosed,
	domain.ErrCountNotPending,
	domain.ErrSessionNotActive,
	domain.ErrOrderAlreadyInWave,
	domain.ErrAllocationNotOpen,
	domain.ErrOrderWaveReleased,
	domain.ErrOverridePending,
	domain.ErrNoPendingOverride,
	domain.ErrHoldReleased,
	domain.ErrHandoffUsed,
	domain.ErrDuplicateMovement,
}

// toAppError maps domain failures onto the API error model. Errors that are
// already AppErrors, or that the domain does not know, pass through.
func toAppError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.AsAppError(err); ok {
		return err
	}

	var mismatch *domain.StepMismatch
	if stderrors.As(err, &mismatch) {
		return errors.ErrTaskException(mismatch.Error()).
			WithDetail("kind", string(mismatch.Kind)).
			WithDetail("expected", mismatch.Expected).
			WithDetail("got", mismatch.Got)
	}
	if stderrors.Is(err, domain.ErrInsufficientInventory) {
		return errors.ErrInsufficientInventory(err.Error()).Wrap(err)
	}
	if stderrors.Is(err, domain.ErrSessionNotOwned) {
		return errors.ErrForbidden(err.Error()).Wrap(err)
	}
	if matchesAny(err, validationErrors) {
		return errors.ErrValidation(err.Error()).Wrap(err)
	}
	if matchesAny(err, notFoundErrors) {
		return errors.NewAppError(errors.CodeNotFound, err.Error(), http.StatusNotFound).Wrap(err)
	}
	if matchesAny(err, conflictErrors) {
		return errors.ErrConflict(err.Error()).Wrap(err)
	}
	return err
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if stderrors.Is(err, target) {
			return true
		}
	}
	return false
}
