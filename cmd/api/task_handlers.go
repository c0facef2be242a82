package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/internal/application"
	"github.com/wms-platform/warehouse-core/pkg/errors"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/middleware"
)

// generateTasksHandler serves the three document-driven generators
func generateTasksHandler(
	generate func(c *gin.Context, documentID, actor string) ([]*application.TaskDTO, error),
	param string,
	logger *logging.Logger,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		tasks, err := generate(c, c.Param(param), actor(c, ""))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"tasks": nonNil(tasks)})
	}
}

func receiptTasksHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return generateTasksHandler(func(c *gin.Context, id, actor string) ([]*application.TaskDTO, error) {
		return service.GenerateReceiptTasks(c.Request.Context(), middleware.TenantFrom(c), id, actor)
	}, "receiptId", logger)
}

func orderTasksHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return generateTasksHandler(func(c *gin.Context, id, actor string) ([]*application.TaskDTO, error) {
		return service.GenerateOrderTasks(c.Request.Context(), middleware.TenantFrom(c), id, actor)
	}, "orderId", logger)
}

func countTasksHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return generateTasksHandler(func(c *gin.Context, id, actor string) ([]*application.TaskDTO, error) {
		return service.GenerateCountTasks(c.Request.Context(), middleware.TenantFrom(c), id, actor)
	}, "countId", logger)
}

func putawayHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			ItemID         string          `json:"itemId" binding:"required"`
			FromLocationID string          `json:"fromLocationId" binding:"required"`
			LotID          string          `json:"lotId"`
			Quantity       decimal.Decimal `json:"quantity" binding:"qty"`
			Actor          string          `json:"actor"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		task, err := service.CreatePutawayTask(c.Request.Context(), middleware.TenantFrom(c), application.CreatePutawayTaskCommand{
			ItemID:         req.ItemID,
			FromLocationID: req.FromLocationID,
			LotID:          req.LotID,
			Quantity:       req.Quantity,
			Actor:          actor(c, req.Actor),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusCreated, task)
	}
}

func myTasksHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		user := middleware.UserFrom(c)
		if user == "" {
			responder.RespondWithAppError(errors.ErrValidation(middleware.HeaderWMSUserID + " header is required"))
			return
		}
		tasks, err := service.MyTasks(c.Request.Context(), middleware.TenantFrom(c), user)
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"tasks": nonNil(tasks)})
	}
}

func getTaskHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := service.GetTask(c.Request.Context(), middleware.TenantFrom(c), c.Param("taskId"))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

func assignTaskHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Assignee string `json:"assignee"`
		}
		if appErr := bindOptional(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		task, err := service.AssignTask(c.Request.Context(), middleware.TenantFrom(c), c.Param("taskId"), actor(c, req.Assignee))
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

func cancelTaskHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
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

		task, err := service.CancelTask(c.Request.Context(), middleware.TenantFrom(c), application.CancelTaskCommand{
			TaskID: c.Param("taskId"),
			Actor:  actor(c, req.Actor),
			Reason: req.Reason,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

func resumeTaskHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		task, err := service.ResumeTask(c.Request.Context(), middleware.TenantFrom(c), c.Param("taskId"))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, task)
	}
}

// completeStepHandler answers a step mismatch with 422 TASK_EXCEPTION; the
// exception id is in the error details.
func completeStepHandler(service *application.TaskService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			Value string `json:"value"`
			Actor string `json:"actor"`
		}
		if appErr := bindOptional(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		result, err := service.CompleteStep(c.Request.Context(), middleware.TenantFrom(c), application.CompleteStepCommand{
			TaskID: c.Param("taskId"),
			StepID: c.Param("stepId"),
			Value:  req.Value,
			Actor:  actor(c, req.Actor),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// bindOptional binds a JSON body when one was sent
func bindOptional(c *gin.Context, obj any) *errors.AppError {
	if c.Request.ContentLength == 0 {
		return nil
	}
	return middleware.BindAndValidate(c, obj)
}
