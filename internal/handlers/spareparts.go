package handlers

import (
	"net/http"
	"strconv"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/deve1070/cmms-sub000/internal/inventory"
	"github.com/deve1070/cmms-sub000/internal/models"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

// SparePartHandler exposes the spare part ledger.
type SparePartHandler struct {
	ledger *inventory.Ledger
}

// NewSparePartHandler creates a new spare part handler.
func NewSparePartHandler(ledger *inventory.Ledger) *SparePartHandler {
	return &SparePartHandler{ledger: ledger}
}

type sparePartRequest struct {
	Name            string          `json:"name" validate:"required"`
	Quantity        int             `json:"quantity" validate:"min=0"`
	MinimumQuantity int             `json:"minimum_quantity" validate:"min=0"`
	Unit            string          `json:"unit"`
	Location        string          `json:"location"`
	Category        string          `json:"category"`
	Supplier        string          `json:"supplier"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

type sparePartUpdateRequest struct {
	Name            *string          `json:"name" validate:"omitempty,min=1"`
	Quantity        *int             `json:"quantity" validate:"omitempty,min=0"`
	MinimumQuantity *int             `json:"minimum_quantity" validate:"omitempty,min=0"`
	Unit            *string          `json:"unit"`
	Location        *string          `json:"location"`
	Category        *string          `json:"category"`
	Supplier        *string          `json:"supplier"`
	UnitCost        *decimal.Decimal `json:"unit_cost"`
}

type restockRequest struct {
	Quantity int `json:"quantity" validate:"gt=0"`
}

// Create handles POST /api/spare-parts.
func (h *SparePartHandler) Create(c echo.Context) error {
	var req sparePartRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	part, err := h.ledger.CreatePart(c.Request().Context(), inventory.PartInput{
		Name:            req.Name,
		Quantity:        req.Quantity,
		MinimumQuantity: req.MinimumQuantity,
		Unit:            req.Unit,
		Location:        req.Location,
		Category:        req.Category,
		Supplier:        req.Supplier,
		UnitCost:        req.UnitCost,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, part)
}

// List supports ?category= and ?low_stock=true.
func (h *SparePartHandler) List(c echo.Context) error {
	filter := models.SparePartFilter{Category: c.QueryParam("category")}
	if s := c.QueryParam("low_stock"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return apperrors.Validation("low_stock", "must be a boolean")
		}
		filter.LowStockOnly = v
	}
	var (
		parts []models.SparePart
		err   error
	)
	if filter.LowStockOnly && filter.Category == "" {
		parts, err = h.ledger.LowStock(c.Request().Context())
	} else {
		parts, err = h.ledger.ListParts(c.Request().Context(), filter)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, parts)
}

// Get handles GET /api/spare-parts/:id.
func (h *SparePartHandler) Get(c echo.Context) error {
	part, err := h.ledger.GetPart(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, part)
}

// Update handles PATCH /api/spare-parts/:id.
func (h *SparePartHandler) Update(c echo.Context) error {
	var req sparePartUpdateRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	part, err := h.ledger.UpdatePart(c.Request().Context(), c.Param("id"), inventory.PartUpdate{
		Name:            req.Name,
		Quantity:        req.Quantity,
		MinimumQuantity: req.MinimumQuantity,
		Unit:            req.Unit,
		Location:        req.Location,
		Category:        req.Category,
		Supplier:        req.Supplier,
		UnitCost:        req.UnitCost,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, part)
}

// Delete handles DELETE /api/spare-parts/:id.
func (h *SparePartHandler) Delete(c echo.Context) error {
	if err := h.ledger.DeletePart(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// Restock handles POST /api/spare-parts/:id/restock.
func (h *SparePartHandler) Restock(c echo.Context) error {
	var req restockRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	part, err := h.ledger.Restock(c.Request().Context(), c.Param("id"), req.Quantity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, part)
}
