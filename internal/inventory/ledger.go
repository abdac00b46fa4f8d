// Package inventory owns spare part stock: catalogue maintenance, restocking
// and the guarded decrement used when parts are consumed by work orders.
package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/deve1070/cmms-sub000/internal/db"
	"github.com/deve1070/cmms-sub000/internal/events"
	"github.com/deve1070/cmms-sub000/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Ledger guards spare part stock levels.
type Ledger struct {
	parts     db.SparePartCollection
	publisher events.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithPublisher sets where stock events go. The default drops them.
func WithPublisher(p events.Publisher) Option { return func(l *Ledger) { l.publisher = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(l *Ledger) { l.now = now } }

// NewLedger creates a ledger over parts.
func NewLedger(parts db.SparePartCollection, log logrus.FieldLogger, opts ...Option) *Ledger {
	l := &Ledger{parts: parts, publisher: events.Nop{}, log: log, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// PartInput carries the editable catalogue fields of a spare part.
type PartInput struct {
	Name            string
	Quantity        int
	MinimumQuantity int
	Unit            string
	Location        string
	Category        string
	Supplier        string
	UnitCost        decimal.Decimal
}

// PartUpdate is a partial update; nil fields are left unchanged.
type PartUpdate = models.SparePartPatch

// CreatePart validates in and adds it to the catalogue.
func (l *Ledger) CreatePart(ctx context.Context, in PartInput) (*models.SparePart, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperrors.Validation("name", "is required")
	}
	if err := validateLevels(in.Quantity, in.MinimumQuantity, in.UnitCost); err != nil {
		return nil, err
	}
	now := l.now().UTC()
	part := &models.SparePart{
		Name:            strings.TrimSpace(in.Name),
		Quantity:        in.Quantity,
		MinimumQuantity: in.MinimumQuantity,
		Unit:            in.Unit,
		Location:        in.Location,
		Category:        in.Category,
		Supplier:        in.Supplier,
		UnitCost:        in.UnitCost,
		LastUpdated:     now,
		CreatedAt:       now,
	}
	if err := l.parts.InsertSparePart(ctx, part); err != nil {
		return nil, err
	}
	l.log.WithFields(logrus.Fields{"part_id": part.ID.Hex(), "quantity": part.Quantity}).Info("spare part created")
	return part, nil
}

// GetPart returns the part with the given id.
func (l *Ledger) GetPart(ctx context.Context, id string) (*models.SparePart, error) {
	return l.parts.FindSparePartByID(ctx, id)
}

// ListParts returns the parts matching filter, ordered by name.
func (l *Ledger) ListParts(ctx context.Context, filter models.SparePartFilter) ([]models.SparePart, error) {
	return l.parts.FindSpareParts(ctx, filter)
}

// LowStock lists parts at or below their minimum quantity.
func (l *Ledger) LowStock(ctx context.Context) ([]models.SparePart, error) {
	return l.parts.FindSpareParts(ctx, models.SparePartFilter{LowStockOnly: true})
}

// UpdatePart writes only the fields set in in. Stock consumed or restocked
// meanwhile is kept unless in sets Quantity itself.
func (l *Ledger) UpdatePart(ctx context.Context, id string, in PartUpdate) (*models.SparePart, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperrors.Validation("name", "is required")
		}
		in.Name = &name
	}
	if in.Quantity != nil && *in.Quantity < 0 {
		return nil, apperrors.Validation("quantity", "cannot be negative")
	}
	if in.MinimumQuantity != nil && *in.MinimumQuantity < 0 {
		return nil, apperrors.Validation("minimum_quantity", "cannot be negative")
	}
	if in.UnitCost != nil && in.UnitCost.IsNegative() {
		return nil, apperrors.Validation("unit_cost", "cannot be negative")
	}
	return l.parts.PatchSparePart(ctx, id, in, l.now().UTC())
}

// DeletePart removes a part from the catalogue.
func (l *Ledger) DeletePart(ctx context.Context, id string) error {
	if err := l.parts.DeleteSparePart(ctx, id); err != nil {
		return err
	}
	l.log.WithField("part_id", id).Info("spare part deleted")
	return nil
}

// Restock adds qty units to a part.
func (l *Ledger) Restock(ctx context.Context, id string, qty int) (*models.SparePart, error) {
	if qty <= 0 {
		return nil, apperrors.Validation("quantity", "must be greater than zero")
	}
	part, err := l.parts.IncrementStock(ctx, id, qty, l.now().UTC())
	if err != nil {
		return nil, err
	}
	l.log.WithFields(logrus.Fields{"part_id": id, "added": qty, "quantity": part.Quantity}).Info("spare part restocked")
	events.Emit(ctx, l.publisher, l.log, events.New(events.PartRestocked, part.LastUpdated, StockEvent{
		PartID: id, Name: part.Name, Quantity: part.Quantity, MinimumQuantity: part.MinimumQuantity, Delta: qty,
	}))
	return part, nil
}

// Consume removes qty units without ever going below zero. It publishes
// nothing, so it is safe inside a transaction; call Announce after commit.
func (l *Ledger) Consume(ctx context.Context, partID string, qty int) (*models.SparePart, error) {
	if qty <= 0 {
		return nil, apperrors.Validation("quantity", "must be greater than zero")
	}
	return l.parts.DecrementStock(ctx, partID, qty, l.now().UTC())
}

// Release returns qty units taken by Consume whose work order write did not
// go through. Like Consume it publishes nothing.
func (l *Ledger) Release(ctx context.Context, partID string, qty int) error {
	if _, err := l.parts.IncrementStock(ctx, partID, qty, l.now().UTC()); err != nil {
		return err
	}
	l.log.WithFields(logrus.Fields{"part_id": partID, "quantity": qty}).Warn("released stock of an unrecorded consumption")
	return nil
}

// StockEvent is the payload of part events.
type StockEvent struct {
	PartID          string `json:"part_id"`
	Name            string `json:"name"`
	Quantity        int    `json:"quantity"`
	MinimumQuantity int    `json:"minimum_quantity"`
	Delta           int    `json:"delta"`
	WorkOrderID     string `json:"work_order_id,omitempty"`
}

// Announce publishes a committed consumption, plus a low stock warning when
// the part ended at or below its minimum.
func (l *Ledger) Announce(ctx context.Context, part *models.SparePart, qty int, workOrderID string) {
	payload := StockEvent{
		PartID:          part.ID.Hex(),
		Name:            part.Name,
		Quantity:        part.Quantity,
		MinimumQuantity: part.MinimumQuantity,
		Delta:           -qty,
		WorkOrderID:     workOrderID,
	}
	events.Emit(ctx, l.publisher, l.log, events.New(events.PartConsumed, part.LastUpdated, payload))
	if part.IsLowStock() {
		l.log.WithFields(logrus.Fields{
			"part_id":  payload.PartID,
			"quantity": part.Quantity,
			"minimum":  part.MinimumQuantity,
		}).Warn("spare part low on stock")
		events.Emit(ctx, l.publisher, l.log, events.New(events.PartLowStock, part.LastUpdated, payload))
	}
}

func validateLevels(qty, minimum int, cost decimal.Decimal) error {
	if qty < 0 {
		return apperrors.Validation("quantity", "cannot be negative")
	}
	if minimum < 0 {
		return apperrors.Validation("minimum_quantity", "cannot be negative")
	}
	if cost.IsNegative() {
		return apperrors.Validation("unit_cost", "cannot be negative")
	}
	return nil
}
