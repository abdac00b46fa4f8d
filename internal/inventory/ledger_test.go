package inventory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/deve1070/cmms-sub000/internal/db"
	"github.com/deve1070/cmms-sub000/internal/events"
	"github.com/deve1070/cmms-sub000/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, e events.Event) error {
	args := m.Called(ctx, e)
	return args.Error(0)
}

func (m *mockPublisher) types() []string {
	var out []string
	for _, c := range m.Calls {
		out = append(out, c.Arguments.Get(1).(events.Event).Type)
	}
	return out
}

var now = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

func newLedger(t *testing.T) (*Ledger, *mockPublisher) {
	t.Helper()
	log, _ := test.NewNullLogger()
	pub := &mockPublisher{}
	pub.On("Publish", mock.Anything, mock.Anything).Return(nil)
	store := db.NewMemoryStore()
	return NewLedger(store.SpareParts(), log, WithPublisher(pub), WithClock(func() time.Time { return now })), pub
}

func TestLedger_CreatePart(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()

	part, err := l.CreatePart(ctx, PartInput{Name: " O-ring ", Quantity: 10, MinimumQuantity: 2, UnitCost: decimal.RequireFromString("0.35")})
	require.NoError(t, err)
	assert.Equal(t, "O-ring", part.Name)
	assert.Equal(t, now, part.LastUpdated)
	assert.False(t, part.IsLowStock())

	tests := []struct {
		name  string
		in    PartInput
		field string
	}{
		{"missing name", PartInput{Quantity: 1}, "name"},
		{"negative quantity", PartInput{Name: "x", Quantity: -1}, "quantity"},
		{"negative minimum", PartInput{Name: "x", MinimumQuantity: -1}, "minimum_quantity"},
		{"negative cost", PartInput{Name: "x", UnitCost: decimal.NewFromInt(-1)}, "unit_cost"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.CreatePart(ctx, tt.in)
			var verr *apperrors.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestLedger_ConsumeNeverGoesNegative(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	part, err := l.CreatePart(ctx, PartInput{Name: "Filter", Quantity: 5, MinimumQuantity: 1})
	require.NoError(t, err)

	_, err = l.Consume(ctx, part.ID.Hex(), 6)
	assert.True(t, errors.Is(err, apperrors.ErrInsufficientStock))

	got, _ := l.GetPart(ctx, part.ID.Hex())
	assert.Equal(t, 5, got.Quantity, "failed consumption leaves stock unchanged")

	_, err = l.Consume(ctx, part.ID.Hex(), 0)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = l.Consume(ctx, primitive.NewObjectID().Hex(), 1)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))

	after, err := l.Consume(ctx, part.ID.Hex(), 5)
	require.NoError(t, err)
	assert.Equal(t, 0, after.Quantity)
}

func TestLedger_Restock(t *testing.T) {
	l, pub := newLedger(t)
	ctx := context.Background()
	part, _ := l.CreatePart(ctx, PartInput{Name: "Fuse", Quantity: 1, MinimumQuantity: 3})

	updated, err := l.Restock(ctx, part.ID.Hex(), 4)
	require.NoError(t, err)
	assert.Equal(t, 5, updated.Quantity)
	assert.False(t, updated.IsLowStock())
	assert.Equal(t, []string{events.PartRestocked}, pub.types())

	_, err = l.Restock(ctx, part.ID.Hex(), 0)
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = l.Restock(ctx, primitive.NewObjectID().Hex(), 1)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestLedger_AnnounceLowStock(t *testing.T) {
	l, pub := newLedger(t)

	healthy := &models.SparePart{ID: primitive.NewObjectID(), Name: "Belt", Quantity: 8, MinimumQuantity: 2}
	l.Announce(context.Background(), healthy, 1, "wo-1")
	assert.Equal(t, []string{events.PartConsumed}, pub.types())

	low := &models.SparePart{ID: primitive.NewObjectID(), Name: "Lamp", Quantity: 2, MinimumQuantity: 2}
	l.Announce(context.Background(), low, 3, "wo-2")
	assert.Equal(t, []string{events.PartConsumed, events.PartConsumed, events.PartLowStock}, pub.types())

	last := pub.Calls[2].Arguments.Get(1).(events.Event)
	payload := last.Data.(StockEvent)
	assert.Equal(t, -3, payload.Delta)
	assert.Equal(t, "wo-2", payload.WorkOrderID)
}

func TestLedger_UpdateAndLowStockListing(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	a, _ := l.CreatePart(ctx, PartInput{Name: "A", Quantity: 10, MinimumQuantity: 2, Category: "filters"})
	_, _ = l.CreatePart(ctx, PartInput{Name: "B", Quantity: 1, MinimumQuantity: 2, Category: "filters"})

	low, err := l.LowStock(ctx)
	require.NoError(t, err)
	require.Len(t, low, 1)
	assert.Equal(t, "B", low[0].Name)

	minimum := 20
	cat := "seals"
	updated, err := l.UpdatePart(ctx, a.ID.Hex(), PartUpdate{MinimumQuantity: &minimum, Category: &cat})
	require.NoError(t, err)
	assert.True(t, updated.IsLowStock())
	assert.Equal(t, "seals", updated.Category)

	low, _ = l.LowStock(ctx)
	assert.Len(t, low, 2)

	neg := -1
	_, err = l.UpdatePart(ctx, a.ID.Hex(), PartUpdate{Quantity: &neg})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	filtered, _ := l.ListParts(ctx, models.SparePartFilter{Category: "filters"})
	assert.Len(t, filtered, 1)

	require.NoError(t, l.DeletePart(ctx, a.ID.Hex()))
	_, err = l.GetPart(ctx, a.ID.Hex())
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

// interleavedParts runs before ahead of every patch, standing in for a
// request that commits between the edit being read and being written.
type interleavedParts struct {
	db.SparePartCollection
	before func()
}

func (p *interleavedParts) PatchSparePart(ctx context.Context, id string, patch models.SparePartPatch, at time.Time) (*models.SparePart, error) {
	p.before()
	return p.SparePartCollection.PatchSparePart(ctx, id, patch, at)
}

func TestLedger_UpdateKeepsConcurrentConsumption(t *testing.T) {
	ctx := context.Background()
	log, _ := test.NewNullLogger()
	store := db.NewMemoryStore()
	parts := &interleavedParts{SparePartCollection: store.SpareParts()}
	l := NewLedger(parts, log, WithClock(func() time.Time { return now }))

	part, err := l.CreatePart(ctx, PartInput{Name: "Gasket", Quantity: 10, MinimumQuantity: 2, Location: "B4"})
	require.NoError(t, err)

	parts.before = func() {
		_, err := l.Consume(ctx, part.ID.Hex(), 4)
		require.NoError(t, err)
	}
	name := "Pump gasket"
	updated, err := l.UpdatePart(ctx, part.ID.Hex(), PartUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Pump gasket", updated.Name)
	assert.Equal(t, 6, updated.Quantity)
	assert.Equal(t, "B4", updated.Location)

	got, err := l.GetPart(ctx, part.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 6, got.Quantity)
}

func TestLedger_UpdateValidatesBeforeWriting(t *testing.T) {
	l, _ := newLedger(t)
	ctx := context.Background()
	part, _ := l.CreatePart(ctx, PartInput{Name: "Valve", Quantity: 3})

	blank := "  "
	_, err := l.UpdatePart(ctx, part.ID.Hex(), PartUpdate{Name: &blank})
	var verr *apperrors.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "name", verr.Field)

	cost := decimal.NewFromInt(-2)
	_, err = l.UpdatePart(ctx, part.ID.Hex(), PartUpdate{UnitCost: &cost})
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "unit_cost", verr.Field)

	got, _ := l.GetPart(ctx, part.ID.Hex())
	assert.Equal(t, "Valve", got.Name)

	padded := " Check valve "
	updated, err := l.UpdatePart(ctx, part.ID.Hex(), PartUpdate{Name: &padded})
	require.NoError(t, err)
	assert.Equal(t, "Check valve", updated.Name)

	_, err = l.UpdatePart(ctx, primitive.NewObjectID().Hex(), PartUpdate{Name: &padded})
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestLedger_Release(t *testing.T) {
	l, pub := newLedger(t)
	ctx := context.Background()
	part, _ := l.CreatePart(ctx, PartInput{Name: "Bearing", Quantity: 5})

	_, err := l.Consume(ctx, part.ID.Hex(), 3)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, part.ID.Hex(), 3))

	got, _ := l.GetPart(ctx, part.ID.Hex())
	assert.Equal(t, 5, got.Quantity)
	assert.Empty(t, pub.types())

	err = l.Release(ctx, primitive.NewObjectID().Hex(), 1)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}
