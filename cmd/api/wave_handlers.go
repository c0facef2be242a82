package main

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/warehouse-core/internal/application"
	"github.com/wms-platform/warehouse-core/internal/workflows"
	"github.com/wms-platform/warehouse-core/pkg/errors"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/metrics"
	"github.com/wms-platform/warehouse-core/pkg/middleware"
	"github.com/wms-platform/warehouse-core/pkg/temporal"
)

// releaseStarter hands a wave release to the worker
type releaseStarter interface {
	StartRelease(ctx context.Context, input workflows.WaveReleaseInput) (workflowID, runID string, err error)
}

// temporalStarter starts WaveReleaseWorkflow, one execution per wave
type temporalStarter struct {
	client  *temporal.Client
	metrics *metrics.Metrics
	logger  *logging.Logger
}

func (s temporalStarter) StartRelease(ctx context.Context, input workflows.WaveReleaseInput) (string, string, error) {
	run, err := s.client.StartWorkflow(ctx,
		workflows.WaveReleaseWorkflowID(input.Tenant(), input.WaveID),
		temporal.TaskQueues.Waves,
		temporal.WorkflowNames.WaveRelease,
		input,
	)
	if err != nil {
		return "", "", err
	}
	s.metrics.RecordWorkflowStarted(temporal.WorkflowNames.WaveRelease)
	s.logger.WithTenant(input.TenantID, input.FacilityID).WorkflowStart(ctx, temporal.WorkflowNames.WaveRelease, run.GetID())
	return run.GetID(), run.GetRunID(), nil
}

func createWaveHandler(service *application.WaveService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			OrderIDs []string `json:"orderIds" binding:"required,min=1,dive,required"`
			Actor    string   `json:"actor"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		wave, err := service.CreateWave(c.Request.Context(), middleware.TenantFrom(c), application.CreateWaveCommand{
			OrderIDs: req.OrderIDs,
			Actor:    actor(c, req.Actor),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusCreated, wave)
	}
}

func getWaveHandler(service *application.WaveService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		wave, err := service.GetWave(c.Request.Context(), middleware.TenantFrom(c), c.Param("waveId"))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, wave)
	}
}

// releaseWaveHandler releases inline, or with ?async=true checks the wave and
// starts the release workflow, answering 202.
func releaseWaveHandler(service *application.WaveService, starter releaseStarter, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)
		ctx := c.Request.Context()
		tc := middleware.TenantFrom(c)
		waveID := c.Param("waveId")

		async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
		if !async {
			result, err := service.ReleaseWave(ctx, tc, application.ReleaseWaveCommand{WaveID: waveID, Actor: actor(c, "")})
			if err != nil {
				responder.RespondWithError(err)
				return
			}
			c.JSON(http.StatusOK, result)
			return
		}

		if starter == nil {
			responder.RespondWithAppError(errors.ErrServiceUnavailable("wave release worker"))
			return
		}
		if err := service.CheckReleasable(ctx, tc, waveID); err != nil {
			responder.RespondWithError(err)
			return
		}
		workflowID, runID, err := starter.StartRelease(ctx, workflows.WaveReleaseInput{
			TenantID:   tc.TenantID,
			FacilityID: tc.FacilityID,
			WaveID:     waveID,
			Actor:      actor(c, ""),
		})
		if err != nil {
			responder.RespondWithAppError(errors.ErrServiceUnavailable("wave release worker").Wrap(err))
			return
		}
		logger.Info("Started wave release workflow", "waveId", waveID, "workflowId", workflowID)
		c.JSON(http.StatusAccepted, gin.H{"waveId": waveID, "workflowId": workflowID, "runId": runID})
	}
}
