// Package handlers is the HTTP surface of the maintenance core.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/deve1070/cmms-sub000/internal/events"
	"github.com/deve1070/cmms-sub000/internal/inventory"
	"github.com/deve1070/cmms-sub000/internal/middleware"
	"github.com/deve1070/cmms-sub000/internal/models"
	"github.com/deve1070/cmms-sub000/internal/pm"
	"github.com/deve1070/cmms-sub000/internal/workorder"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Deps are the services the routes are wired to.
type Deps struct {
	WorkOrders *workorder.Service
	Ledger     *inventory.Ledger
	Schedules  *pm.Schedules
	Generator  *pm.Generator
	Hub        *events.Hub
	Auth       *middleware.AuthMiddleware
	Clock      func() time.Time
	Ping       func(ctx context.Context) error
	Log        logrus.FieldLogger
}

// Register installs the validator, the error handler and every route on e.
func Register(e *echo.Echo, d Deps) {
	e.Validator = NewValidator()
	e.HTTPErrorHandler = ErrorHandler(d.Log)

	e.GET("/health", health(d.Ping))

	api := e.Group("/api", echo.WrapMiddleware(d.Auth.Authenticate))
	perm := func(action string) echo.MiddlewareFunc {
		return echo.WrapMiddleware(d.Auth.RequirePermission(action))
	}

	wo := NewWorkOrderHandler(d.WorkOrders)
	api.POST("/work-orders", wo.Create, perm(models.PermCreateWorkOrder))
	api.GET("/work-orders", wo.List, perm(models.PermViewWorkOrders))
	api.GET("/work-orders/:id", wo.Get, perm(models.PermViewWorkOrders))
	api.PATCH("/work-orders/:id", wo.Update, perm(models.PermUpdateWorkOrder))
	api.POST("/work-orders/:id/parts", wo.LogPartUsage, perm(models.PermLogPartUsage))
	api.DELETE("/work-orders/:id", wo.Delete, perm(models.PermDeleteWorkOrder))

	sc := NewScheduleHandler(d.Schedules, d.Generator, d.Clock)
	api.POST("/pm-schedules", sc.Create, perm(models.PermManageSchedules))
	api.GET("/pm-schedules", sc.List, perm(models.PermViewSchedules))
	api.GET("/pm-schedules/:id", sc.Get, perm(models.PermViewSchedules))
	api.PATCH("/pm-schedules/:id", sc.Update, perm(models.PermManageSchedules))
	api.DELETE("/pm-schedules/:id", sc.Delete, perm(models.PermManageSchedules))
	api.POST("/pm/generate", sc.Generate, perm(models.PermGeneratePM))

	sp := NewSparePartHandler(d.Ledger)
	api.POST("/spare-parts", sp.Create, perm(models.PermManageSpareParts))
	api.GET("/spare-parts", sp.List, perm(models.PermViewSpareParts))
	api.GET("/spare-parts/:id", sp.Get, perm(models.PermViewSpareParts))
	api.PATCH("/spare-parts/:id", sp.Update, perm(models.PermManageSpareParts))
	api.DELETE("/spare-parts/:id", sp.Delete, perm(models.PermManageSpareParts))
	api.POST("/spare-parts/:id/restock", sp.Restock, perm(models.PermManageSpareParts))

	if d.Hub != nil {
		api.GET("/events/ws", echo.WrapHandler(d.Hub), perm(models.PermViewWorkOrders))
	}
}

func health(ping func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if ping != nil {
			if err := ping(c.Request().Context()); err != nil {
				return c.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unavailable",
					"error":  err.Error(),
				})
			}
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}
