package main

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wms-platform/warehouse-core/internal/application"
	"github.com/wms-platform/warehouse-core/pkg/errors"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/middleware"
)

// operator is the scanning user; sessions belong to whoever opened them
func operator(c *gin.Context) (string, *errors.AppError) {
	user := middleware.UserFrom(c)
	if user == "" {
		return "", errors.ErrValidation(middleware.HeaderWMSUserID + " header is required")
	}
	return user, nil
}

func startSessionHandler(service *application.ScanService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		user, appErr := operator(c)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		var req struct {
			Mode string `json:"mode" binding:"required"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		session, err := service.StartSession(c.Request.Context(), middleware.TenantFrom(c), application.StartSessionCommand{
			Mode:     req.Mode,
			Operator: user,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusCreated, session)
	}
}

// submitScanHandler answers a rejected scan with 409; the rejection is still
// recorded in the session events.
func submitScanHandler(service *application.ScanService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		user, appErr := operator(c)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		var req struct {
			Raw string `json:"raw" binding:"required"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.SubmitScan(c.Request.Context(), middleware.TenantFrom(c), application.SubmitScanCommand{
			SessionID: c.Param("id"),
			Operator:  user,
			Raw:       req.Raw,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func cancelSessionHandler(service *application.ScanService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		user, appErr := operator(c)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		var req noteRequest
		if appErr := bindOptional(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		session, err := service.CancelSession(c.Request.Context(), middleware.TenantFrom(c), application.CancelSessionCommand{
			SessionID: c.Param("id"),
			Operator:  user,
			Note:      req.Note,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

func activeSessionsHandler(service *application.ScanService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		user, appErr := operator(c)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		sessions, err := service.ActiveSessions(c.Request.Context(), middleware.TenantFrom(c), user)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessions": nonNil(sessions)})
	}
}

func sessionEventsHandler(service *application.ScanService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		events, err := service.SessionEvents(c.Request.Context(), middleware.TenantFrom(c), c.Param("id"))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"events": nonNil(events)})
	}
}

// pinExpectedHandler is the supervisor call that sets the next scan a session
// must see; with hardLock any other value is rejected
func pinExpectedHandler(service *application.ScanService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Raw        string `json:"raw" binding:"required"`
			HardLock   bool   `json:"hardLock"`
			Supervisor string `json:"supervisor"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		session, err := service.PinExpectedScan(c.Request.Context(), middleware.TenantFrom(c), application.PinExpectedScanCommand{
			SessionID:  c.Param("id"),
			Supervisor: actor(c, req.Supervisor),
			Raw:        req.Raw,
			HardLock:   req.HardLock,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}

func issueHandoffHandler(service *application.ScanService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		user, appErr := operator(c)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		code, err := service.IssueHandoff(c.Request.Context(), middleware.TenantFrom(c), c.Param("id"), user)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"sessionId": c.Param("id"), "code": code})
	}
}

func resumeHandoffHandler(service *application.ScanService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		user, appErr := operator(c)
		if appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}
		var req struct {
			Code string `json:"code" binding:"required"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		session, err := service.ResumeHandoff(c.Request.Context(), middleware.TenantFrom(c), req.Code, user)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, session)
	}
}
