package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wms-platform/warehouse-core/internal/application"
	"github.com/wms-platform/warehouse-core/internal/domain"
	"github.com/wms-platform/warehouse-core/pkg/logging"
	"github.com/wms-platform/warehouse-core/pkg/middleware"
)

func applyMovementHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			CorrelationID  string            `json:"correlationId" binding:"required"`
			ItemID         string            `json:"itemId" binding:"required"`
			Quantity       decimal.Decimal   `json:"quantity" binding:"qty"`
			FromLocationID string            `json:"fromLocationId"`
			ToLocationID   string            `json:"toLocationId"`
			State          string            `json:"state"`
			ToState        string            `json:"toState"`
			LotID          string            `json:"lotId"`
			ContainerID    string            `json:"containerId"`
			Reason         string            `json:"reason"`
			UnitCost       *decimal.Decimal  `json:"unitCost"`
			Actor          string            `json:"actor"`
			Meta           map[string]string `json:"meta"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		entry, err := service.ApplyMovement(c.Request.Context(), middleware.TenantFrom(c), application.ApplyMovementCommand{
			CorrelationID:  req.CorrelationID,
			ItemID:         req.ItemID,
			Quantity:       req.Quantity,
			FromLocationID: req.FromLocationID,
			ToLocationID:   req.ToLocationID,
			State:          domain.BalanceState(req.State),
			ToState:        domain.BalanceState(req.ToState),
			LotID:          req.LotID,
			ContainerID:    req.ContainerID,
			Actor:          actor(c, req.Actor),
			Reason:         req.Reason,
			UnitCost:       req.UnitCost,
			Meta:           req.Meta,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}

		c.JSON(http.StatusCreated, entry)
	}
}

type reservationRequest struct {
	CorrelationID string          `json:"correlationId" binding:"required"`
	ItemID        string          `json:"itemId" binding:"required"`
	LocationID    string          `json:"locationId" binding:"required"`
	LotID         string          `json:"lotId"`
	ContainerID   string          `json:"containerId"`
	Quantity      decimal.Decimal `json:"quantity" binding:"qty"`
	Reason        string          `json:"reason"`
	Actor         string          `json:"actor"`
}

func (r reservationRequest) command(c *gin.Context) application.ReservationCommand {
	return application.ReservationCommand{
		CorrelationID: r.CorrelationID,
		ItemID:        r.ItemID,
		LocationID:    r.LocationID,
		LotID:         r.LotID,
		ContainerID:   r.ContainerID,
		Quantity:      r.Quantity,
		Actor:         actor(c, r.Actor),
		Reason:        r.Reason,
	}
}

func reserveHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req reservationRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		entry, err := service.Reserve(c.Request.Context(), middleware.TenantFrom(c), req.command(c))
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func releaseReservationHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req reservationRequest
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		entry, err := service.ReleaseReservation(c.Request.Context(), middleware.TenantFrom(c), req.command(c))
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusCreated, entry)
	}
}

func balancesHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		balances, err := service.Balances(c.Request.Context(), middleware.TenantFrom(c), application.BalanceQuery{
			ItemID:     c.Query("itemId"),
			LocationID: c.Query("locationId"),
		})
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"balances": nonNil(balances)})
	}
}

func ledgerHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := service.LedgerEntries(c.Request.Context(), middleware.TenantFrom(c), application.LedgerQuery{
			CorrelationID: c.Query("correlationId"),
			ItemID:        c.Query("itemId"),
		})
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"entries": nonNil(entries)})
	}
}

func holdStockHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		responder := middleware.NewErrorResponder(c, logger.Logger)

		var req struct {
			HoldID      string          `json:"holdId"`
			ItemID      string          `json:"itemId" binding:"required"`
			LocationID  string          `json:"locationId" binding:"required"`
			LotID       string          `json:"lotId"`
			ContainerID string          `json:"containerId"`
			Quantity    decimal.Decimal `json:"quantity" binding:"qty"`
			State       string          `json:"state"`
			Reason      string          `json:"reason"`
			Actor       string          `json:"actor"`
		}
		if appErr := middleware.BindAndValidate(c, &req); appErr != nil {
			responder.RespondWithAppError(appErr)
			return
		}

		hold, err := service.HoldStock(c.Request.Context(), middleware.TenantFrom(c), application.HoldStockCommand{
			HoldID:      req.HoldID,
			ItemID:      req.ItemID,
			LocationID:  req.LocationID,
			LotID:       req.LotID,
			ContainerID: req.ContainerID,
			Quantity:    req.Quantity,
			State:       domain.BalanceState(req.State),
			Reason:      req.Reason,
			Actor:       actor(c, req.Actor),
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusCreated, hold)
	}
}

func getHoldHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		hold, err := service.GetHold(c.Request.Context(), middleware.TenantFrom(c), c.Param("holdId"))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, hold)
	}
}

func releaseHoldHandler(service *application.LedgerService, logger *logging.Logger) gin.HandlerFunc {
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

		hold, err := service.ReleaseHold(c.Request.Context(), middleware.TenantFrom(c), application.ReleaseHoldCommand{
			HoldID: c.Param("holdId"),
			Actor:  actor(c, req.Actor),
			Reason: req.Reason,
		})
		if err != nil {
			responder.RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, hold)
	}
}

func allocateOrderHandler(service *application.AllocationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := service.AllocateOrder(c.Request.Context(), middleware.TenantFrom(c), c.Param("orderId"), actor(c, ""))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

func deallocateOrderHandler(service *application.AllocationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		orderID := c.Param("orderId")
		released, err := service.DeallocateOrder(c.Request.Context(), middleware.TenantFrom(c), orderID, actor(c, ""))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"orderId": orderID, "released": released})
	}
}

func orderAllocationsHandler(service *application.AllocationService, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		allocations, err := service.Allocations(c.Request.Context(), middleware.TenantFrom(c), c.Param("orderId"))
		if err != nil {
			middleware.NewErrorResponder(c, logger.Logger).RespondWithError(err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"allocations": nonNil(allocations)})
	}
}

// actor is the explicit body actor, else the calling user
func actor(c *gin.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	return middleware.UserFrom(c)
}

// nonNil renders empty results as [] rather than null
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
