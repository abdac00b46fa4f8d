package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/deve1070/cmms-sub000/internal/pm"
	"github.com/labstack/echo/v4"
)

// ScheduleHandler exposes PM schedule CRUD and the generator trigger.
type ScheduleHandler struct {
	schedules *pm.Schedules
	generator *pm.Generator
	now       func() time.Time
}

// NewScheduleHandler creates a new PM schedule handler.
func NewScheduleHandler(schedules *pm.Schedules, generator *pm.Generator, now func() time.Time) *ScheduleHandler {
	if now == nil {
		now = time.Now
	}
	return &ScheduleHandler{schedules: schedules, generator: generator, now: now}
}

type scheduleRequest struct {
	EquipmentID      string    `json:"equipment_id" validate:"required"`
	TaskDescription  string    `json:"task_description" validate:"required"`
	Frequency        string    `json:"frequency" validate:"required"`
	NextDueDate      time.Time `json:"next_due_date"`
	AssignedToUserID string    `json:"assigned_to_user_id"`
	Priority         string    `json:"priority"`
	Notes            string    `json:"notes"`
	IsActive         *bool     `json:"is_active"`
}

type scheduleUpdateRequest struct {
	EquipmentID      *string    `json:"equipment_id" validate:"omitempty,min=1"`
	TaskDescription  *string    `json:"task_description" validate:"omitempty,min=1"`
	Frequency        *string    `json:"frequency"`
	NextDueDate      *time.Time `json:"next_due_date"`
	AssignedToUserID *string    `json:"assigned_to_user_id"`
	Priority         *string    `json:"priority"`
	Notes            *string    `json:"notes"`
	IsActive         *bool      `json:"is_active"`
}

type generateRequest struct {
	Now *time.Time `json:"now"`
}

// Create handles POST /api/pm-schedules.
func (h *ScheduleHandler) Create(c echo.Context) error {
	var req scheduleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sc, err := h.schedules.Create(c.Request().Context(), pm.ScheduleInput{
		EquipmentID:      req.EquipmentID,
		TaskDescription:  req.TaskDescription,
		Frequency:        req.Frequency,
		NextDueDate:      req.NextDueDate,
		AssignedToUserID: req.AssignedToUserID,
		Priority:         req.Priority,
		Notes:            req.Notes,
		IsActive:         req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, sc)
}

// List handles GET /api/pm-schedules.
func (h *ScheduleHandler) List(c echo.Context) error {
	activeOnly := false
	if s := c.QueryParam("active"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return apperrors.Validation("active", "must be a boolean")
		}
		activeOnly = v
	}
	list, err := h.schedules.List(c.Request().Context(), activeOnly)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, list)
}

// Get handles GET /api/pm-schedules/:id.
func (h *ScheduleHandler) Get(c echo.Context) error {
	sc, err := h.schedules.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sc)
}

// Update handles PATCH /api/pm-schedules/:id.
func (h *ScheduleHandler) Update(c echo.Context) error {
	var req scheduleUpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	sc, err := h.schedules.Update(c.Request().Context(), c.Param("id"), pm.ScheduleUpdate{
		EquipmentID:      req.EquipmentID,
		TaskDescription:  req.TaskDescription,
		Frequency:        req.Frequency,
		NextDueDate:      req.NextDueDate,
		AssignedToUserID: req.AssignedToUserID,
		Priority:         req.Priority,
		Notes:            req.Notes,
		IsActive:         req.IsActive,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, sc)
}

// Delete handles DELETE /api/pm-schedules/:id.
func (h *ScheduleHandler) Delete(c echo.Context) error {
	if err := h.schedules.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Generate runs the PM generator. The body may pin the run time with
// {"now": RFC3339}; otherwise the server clock is used.
func (h *ScheduleHandler) Generate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	now := h.now()
	if req.Now != nil {
		now = *req.Now
	}
	summary, err := h.generator.GenerateDueWorkOrders(c.Request().Context(), now)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, summary)
}
