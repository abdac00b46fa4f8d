package handlers

import (
	"net/http"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/deve1070/cmms-sub000/internal/middleware"
	"github.com/deve1070/cmms-sub000/internal/models"
	"github.com/deve1070/cmms-sub000/internal/workorder"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// WorkOrderHandler exposes the work order lifecycle engine.
type WorkOrderHandler struct {
	service *workorder.Service
}

// NewWorkOrderHandler creates a new work order handler.
func NewWorkOrderHandler(service *workorder.Service) *WorkOrderHandler {
	return &WorkOrderHandler{service: service}
}

type createWorkOrderRequest struct {
	EquipmentID      string                `json:"equipment_id" validate:"required"`
	Issue            string                `json:"issue" validate:"required"`
	Description      string                `json:"description"`
	Type             string                `json:"type" validate:"required"`
	Priority         string                `json:"priority"`
	AssignedTo       string                `json:"assigned_to"`
	CompletionDate   *time.Time            `json:"completion_date"`
	SparePartsNeeded []models.PartQuantity `json:"spare_parts_needed" validate:"dive"`
}

type updateWorkOrderRequest struct {
	Status           *string                `json:"status"`
	AssignedTo       *string                `json:"assigned_to"`
	Actions          *string                `json:"actions"`
	CompletionNotes  *string                `json:"completion_notes"`
	Description      *string                `json:"description"`
	Priority         *string                `json:"priority"`
	CompletionDate   *time.Time             `json:"completion_date"`
	SparePartsNeeded *[]models.PartQuantity `json:"spare_parts_needed" validate:"omitempty,dive"`
	PartsUsed        []models.PartQuantity  `json:"parts_used" validate:"dive"`
}

type logPartUsageRequest struct {
	PartID   string `json:"part_id" validate:"required"`
	Quantity int    `json:"quantity" validate:"gt=0"`
}

type workOrderResponse struct {
	*models.WorkOrder
	PartsCost decimal.Decimal `json:"parts_cost"`
}

func newWorkOrderResponse(wo *models.WorkOrder) workOrderResponse {
	return workOrderResponse{WorkOrder: wo, PartsCost: wo.PartsCost()}
}

// Create handles POST /api/work-orders.
func (h *WorkOrderHandler) Create(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req createWorkOrderRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	wo, err := h.service.Create(c.Request().Context(), actor, workorder.CreateInput{
		EquipmentID:      req.EquipmentID,
		Issue:            req.Issue,
		Description:      req.Description,
		Type:             req.Type,
		Priority:         req.Priority,
		AssignedTo:       req.AssignedTo,
		CompletionDate:   req.CompletionDate,
		SparePartsNeeded: req.SparePartsNeeded,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, newWorkOrderResponse(wo))
}

// List handles GET /api/work-orders.
func (h *WorkOrderHandler) List(c echo.Context) error {
	filter, err := workOrderFilterFrom(c)
	if err != nil {
		return err
	}
	orders, err := h.service.List(c.Request().Context(), filter)
	if err != nil {
		return err
	}
	resp := make([]workOrderResponse, 0, len(orders))
	for i := range orders {
		resp = append(resp, newWorkOrderResponse(&orders[i]))
	}
	return c.JSON(http.StatusOK, resp)
}

func workOrderFilterFrom(c echo.Context) (models.WorkOrderFilter, error) {
	filter := models.WorkOrderFilter{
		EquipmentID: c.QueryParam("equipment_id"),
		AssignedTo:  c.QueryParam("assigned_to"),
		ReportedBy:  c.QueryParam("reported_by"),
		ScheduleID:  c.QueryParam("schedule_id"),
	}
	if s := c.QueryParam("status"); s != "" {
		st, err := models.ParseStatus(s)
		if err != nil {
			return filter, apperrors.Validation("status", "unknown status %q", s)
		}
		filter.Status = st
	}
	if s := c.QueryParam("type"); s != "" {
		t, err := models.ParseWorkOrderType(s)
		if err != nil {
			return filter, err
		}
		filter.Type = t
	}
	if s := c.QueryParam("priority"); s != "" {
		p, err := models.ParsePriority(s)
		if err != nil {
			return filter, err
		}
		filter.Priority = p
	}
	return filter, nil
}

// Get handles GET /api/work-orders/:id.
func (h *WorkOrderHandler) Get(c echo.Context) error {
	wo, err := h.service.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newWorkOrderResponse(wo))
}

// Update handles PATCH /api/work-orders/:id.
func (h *WorkOrderHandler) Update(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req updateWorkOrderRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	wo, err := h.service.Update(c.Request().Context(), actor, c.Param("id"), workorder.UpdateInput{
		Status:           req.Status,
		AssignedTo:       req.AssignedTo,
		Actions:          req.Actions,
		CompletionNotes:  req.CompletionNotes,
		Description:      req.Description,
		Priority:         req.Priority,
		CompletionDate:   req.CompletionDate,
		SparePartsNeeded: req.SparePartsNeeded,
		PartsUsed:        req.PartsUsed,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newWorkOrderResponse(wo))
}

// LogPartUsage consumes stock for a work order.
func (h *WorkOrderHandler) LogPartUsage(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req logPartUsageRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	wo, err := h.service.LogPartUsage(c.Request().Context(), actor, c.Param("id"), req.PartID, req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, newWorkOrderResponse(wo))
}

// Delete handles DELETE /api/work-orders/:id.
func (h *WorkOrderHandler) Delete(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.service.Delete(c.Request().Context(), actor, c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func actorFrom(c echo.Context) (models.Actor, error) {
	actor, ok := middleware.ActorFromContext(c.Request().Context())
	if !ok {
		return models.Actor{}, echo.NewHTTPError(http.StatusUnauthorized, "user context not found")
	}
	return actor, nil
}

func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return err
	}
	return c.Validate(req)
}
