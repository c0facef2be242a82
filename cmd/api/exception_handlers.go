package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/warehouse-core/internal/application"
	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/middleware"
)

type noteRequest struct {
	Note  string `json:"note"`
	Actor string `json:"actor"`
}

func listExceptionsHandler(service *application.ExceptionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.Query("limit"))
		exceptions, err := service.ListExceptions(c.Request.Context(), middleware.TenantFrom(c), domain.ExceptionFilter{
			Kind:   domain.ExceptionKind(c.Query("kind")),
			Status: domain.ExceptionStatus(c.Query("status")),
			Limit:  limit,
		})
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"exceptions": nonNil(exceptions)})
	}
}

func resolveExceptionHandler(service *application.ExceptionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Resolution string `json:"resolution"`
			Actor      string `json:"actor"`
		}
		if appErr := bindOptional(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		exc, err := service.ResolveException(c.Request.Context(), middleware.TenantFrom(c), application.ResolveExceptionCommand{
			ExceptionID: c.Param("id"),
			Actor:       actor(c, req.Actor),
			Resolution:  req.Resolution,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, exc)
	}
}

func listBackordersHandler(service *application.ExceptionService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		backorders, err := service.ListBackorders(c.Request.Context(), middleware.TenantFrom(c), domain.BackorderFilter{
			OrderID: c.Query("orderId"),
			Status:  domain.BackorderStatus(c.Query("status")),
		})
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"backorders": nonNil(backorders)})
	}
}

// closeBackorderHandler serves both resolve and cancel
func closeBackorderHandler(
	closeFn func(c *gin.Context, cmd application.CloseBackorderCommand) (*domain.Backorder, error),
	logger *logging.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req noteRequest
		if appErr := bindOptional(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		backorder, err := closeFn(c, application.CloseBackorderCommand{
			BackorderID: c.Param("id"),
			Actor:       actor(c, req.Actor),
			Note:        req.Note,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, backorder)
	}
}

func resolveBackorderHandler(service *application.ExceptionService, logger *logging.Logger) gin.HandlerFunc {
	return closeBackorderHandler(func(c *gin.Context, cmd application.CloseBackorderCommand) (*domain.Backorder, error) {
		return service.ResolveBackorder(c.Request.Context(), middleware.TenantFrom(c), cmd)
	}, logger)
}

func cancelBackorderHandler(service *application.ExceptionService, logger *logging.Logger) gin.HandlerFunc {
	return closeBackorderHandler(func(c *gin.Context, cmd application.CloseBackorderCommand) (*domain.Backorder, error) {
		return service.CancelBackorder(c.Request.Context(), middleware.TenantFrom(c), cmd)
	}, logger)
}

func listCountSubmissionsHandler(service *application.CountService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		submissions, err := service.ListSubmissions(c.Request.Context(), middleware.TenantFrom(c), domain.CountStatus(c.Query("status")))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"submissions": nonNil(submissions)})
	}
}

// reviewCountHandler serves both approve and reject
func reviewCountHandler(
	review func(c *gin.Context, cmd application.ReviewCountCommand) (*domain.CountSubmission, error),
	logger *logging.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req noteRequest
		if appErr := bindOptional(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		submission, err := review(c, application.ReviewCountCommand{
			SubmissionID: c.Param("id"),
			Actor:        actor(c, req.Actor),
			Note:         req.Note,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, submission)
	}
}

func approveCountHandler(service *application.CountService, logger *logging.Logger) gin.HandlerFunc {
	return reviewCountHandler(func(c *gin.Context, cmd application.ReviewCountCommand) (*domain.CountSubmission, error) {
		return service.Approve(c.Request.Context(), middleware.TenantFrom(c), cmd)
	}, logger)
}

func rejectCountHandler(service *application.CountService, logger *logging.Logger) gin.HandlerFunc {
	return reviewCountHandler(func(c *gin.Context, cmd application.ReviewCountCommand) (*domain.CountSubmission, error) {
		return service.Reject(c.Request.Context(), middleware.TenantFrom(c), cmd)
	}, logger)
}

// overrideHandler serves the override request, approve and reject calls
func overrideHandler(
	fn func(c *gin.Context, cmd application.OverrideCommand) (*domain.TaskException, error),
	logger *logging.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Reason string `json:"reason"`
			Actor  string `json:"actor"`
		}
		if appErr := bindOptional(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		exc, err := fn(c, application.OverrideCommand{
			ExceptionID: c.Param("id"),
			Actor:       actor(c, req.Actor),
			Reason:      req.Reason,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, exc)
	}
}

func requestOverrideHandler(service *application.ExceptionService, logger *logging.Logger) gin.HandlerFunc {
	return overrideHandler(func(c *gin.Context, cmd application.OverrideCommand) (*domain.TaskException, error) {
		return service.RequestOverride(c.Request.Context(), middleware.TenantFrom(c), cmd)
	}, logger)
}

func approveOverrideHandler(service *application.ExceptionService, logger *logging.Logger) gin.HandlerFunc {
	return overrideHandler(func(c *gin.Context, cmd application.OverrideCommand) (*domain.TaskException, error) {
		return service.ApproveOverride(c.Request.Context(), middleware.TenantFrom(c), cmd)
	}, logger)
}

func rejectOverrideHandler(service *application.ExceptionService, logger *logging.Logger) gin.HandlerFunc {
	return overrideHandler(func(c *gin.Context, cmd application.OverrideCommand) (*domain.TaskException, error) {
		return service.RejectOverride(c.Request.Context(), middleware.TenantFrom(c), cmd)
	}, logger)
}
