package db

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/deve1070/cmms-sub000/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var t0 = time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)

// testStoreContract exercises behaviour every Store implementation must share.
// atomic is false for deployments that cannot roll back multi-record writes.
func testStoreContract(t *testing.T, atomic bool, newStore func(t *testing.T) Store) {
	t.Run("work order round trip", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		wo := &models.WorkOrder{
			EquipmentID: "eq-1", Issue: "noisy pump", Type: models.TypeCorrective,
			Priority: models.PriorityHigh, Status: models.StatusReported, ReportedBy: "u1",
			CreatedAt: t0, UpdatedAt: t0,
		}
		require.NoError(t, s.WorkOrders().InsertWorkOrder(ctx, wo))
		require.False(t, wo.ID.IsZero())

		got, err := s.WorkOrders().FindWorkOrderByID(ctx, wo.ID.Hex())
		require.NoError(t, err)
		assert.Equal(t, "noisy pump", got.Issue)
		assert.NotNil(t, got.PartsUsed)
		assert.Empty(t, got.PartsUsed)

		list, err := s.WorkOrders().FindWorkOrders(ctx, models.WorkOrderFilter{Status: models.StatusReported})
		require.NoError(t, err)
		assert.Len(t, list, 1)

		list, err = s.WorkOrders().FindWorkOrders(ctx, models.WorkOrderFilter{EquipmentID: "other"})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("work order lookups report not found", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		_, err := s.WorkOrders().FindWorkOrderByID(ctx, primitive.NewObjectID().Hex())
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))

		_, err = s.WorkOrders().FindWorkOrderByID(ctx, "not-an-object-id")
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))

		err = s.WorkOrders().DeleteWorkOrder(ctx, primitive.NewObjectID().Hex())
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("replace checks version", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		wo := &models.WorkOrder{EquipmentID: "eq-1", Status: models.StatusReported, CreatedAt: t0}
		require.NoError(t, s.WorkOrders().InsertWorkOrder(ctx, wo))

		first, _ := s.WorkOrders().FindWorkOrderByID(ctx, wo.ID.Hex())
		second, _ := s.WorkOrders().FindWorkOrderByID(ctx, wo.ID.Hex())

		first.Actions = "first"
		require.NoError(t, s.WorkOrders().ReplaceWorkOrder(ctx, first, 0))
		assert.Equal(t, int64(1), first.Version)

		second.Actions = "second"
		err := s.WorkOrders().ReplaceWorkOrder(ctx, second, 0)
		assert.True(t, errors.Is(err, apperrors.ErrConflict))

		got, _ := s.WorkOrders().FindWorkOrderByID(ctx, wo.ID.Hex())
		assert.Equal(t, "first", got.Actions)
	})

	t.Run("append part usage refuses closed orders", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		open := &models.WorkOrder{EquipmentID: "eq-1", Status: models.StatusInProgress, CreatedAt: t0}
		closed := &models.WorkOrder{EquipmentID: "eq-1", Status: models.StatusCompleted, CreatedAt: t0}
		require.NoError(t, s.WorkOrders().InsertWorkOrder(ctx, open))
		require.NoError(t, s.WorkOrders().InsertWorkOrder(ctx, closed))

		usage := models.PartUsage{PartID: "p1", Quantity: 2, UnitCost: decimal.NewFromInt(3), LoggedAt: t0}
		require.NoError(t, s.WorkOrders().AppendPartUsage(ctx, open.ID.Hex(), usage, t0))
		require.NoError(t, s.WorkOrders().AppendPartUsage(ctx, open.ID.Hex(), usage, t0))

		got, _ := s.WorkOrders().FindWorkOrderByID(ctx, open.ID.Hex())
		assert.Len(t, got.PartsUsed, 2)
		assert.Equal(t, int64(2), got.Version)
		assert.True(t, decimal.NewFromInt(12).Equal(got.PartsCost()))

		err := s.WorkOrders().AppendPartUsage(ctx, closed.ID.Hex(), usage, t0)
		assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
	})

	t.Run("stock decrement is conditional", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		part := &models.SparePart{Name: "Seal", Quantity: 5, MinimumQuantity: 2, UnitCost: decimal.RequireFromString("1.25")}
		require.NoError(t, s.SpareParts().InsertSparePart(ctx, part))

		_, err := s.SpareParts().DecrementStock(ctx, part.ID.Hex(), 6, t0)
		var stockErr *apperrors.InsufficientStockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, 5, stockErr.Available)

		updated, err := s.SpareParts().DecrementStock(ctx, part.ID.Hex(), 3, t0)
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Quantity)
		assert.True(t, updated.IsLowStock())
		assert.True(t, decimal.RequireFromString("1.25").Equal(updated.UnitCost))

		low, err := s.SpareParts().FindSpareParts(ctx, models.SparePartFilter{LowStockOnly: true})
		require.NoError(t, err)
		require.Len(t, low, 1)

		restocked, err := s.SpareParts().IncrementStock(ctx, part.ID.Hex(), 10, t0)
		require.NoError(t, err)
		assert.Equal(t, 12, restocked.Quantity)

		_, err = s.SpareParts().DecrementStock(ctx, primitive.NewObjectID().Hex(), 1, t0)
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("schedule advance is conditional on previous due date", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		sc := &models.PMSchedule{EquipmentID: "eq-1", TaskDescription: "calibrate", Frequency: models.FrequencyMonthly, NextDueDate: due, IsActive: true}
		inactive := &models.PMSchedule{EquipmentID: "eq-2", Frequency: models.FrequencyWeekly, NextDueDate: due, IsActive: false}
		require.NoError(t, s.Schedules().InsertSchedule(ctx, sc))
		require.NoError(t, s.Schedules().InsertSchedule(ctx, inactive))

		dueList, err := s.Schedules().FindDueSchedules(ctx, t0)
		require.NoError(t, err)
		require.Len(t, dueList, 1)
		assert.Equal(t, sc.ID, dueList[0].ID)

		next := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		ok, err := s.Schedules().AdvanceSchedule(ctx, sc.ID.Hex(), due, next, t0)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Schedules().AdvanceSchedule(ctx, sc.ID.Hex(), due, next, t0)
		require.NoError(t, err)
		assert.False(t, ok, "second advance from the same due date must not match")

		got, err := s.Schedules().FindScheduleByID(ctx, sc.ID.Hex())
		require.NoError(t, err)
		assert.True(t, next.Equal(got.NextDueDate))
		require.NotNil(t, got.LastGeneratedDate)
		assert.True(t, t0.Equal(*got.LastGeneratedDate))

		all, err := s.Schedules().FindSchedules(ctx, false)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})

	t.Run("failed transaction", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		part := &models.SparePart{Name: "Belt", Quantity: 4}
		require.NoError(t, s.SpareParts().InsertSparePart(ctx, part))

		boom := errors.New("boom")
		err := s.RunInTransaction(ctx, func(ctx context.Context) error {
			if _, err := s.SpareParts().DecrementStock(ctx, part.ID.Hex(), 3, t0); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := s.SpareParts().FindSparePartByID(ctx, part.ID.Hex())
		require.NoError(t, err)
		if atomic {
			assert.Equal(t, 4, got.Quantity, "writes roll back")
		} else {
			assert.Equal(t, 1, got.Quantity, "writes before the error stay, callers compensate")
		}
	})

	t.Run("patch writes only the set fields", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		part := &models.SparePart{Name: "Belt", Quantity: 10, MinimumQuantity: 2, Location: "C1", UnitCost: decimal.NewFromInt(4)}
		require.NoError(t, s.SpareParts().InsertSparePart(ctx, part))
		_, err := s.SpareParts().DecrementStock(ctx, part.ID.Hex(), 4, t0)
		require.NoError(t, err)

		name := "V-belt"
		later := t0.Add(time.Hour)
		patched, err := s.SpareParts().PatchSparePart(ctx, part.ID.Hex(), models.SparePartPatch{Name: &name}, later)
		require.NoError(t, err)
		assert.Equal(t, "V-belt", patched.Name)
		assert.Equal(t, 6, patched.Quantity)
		assert.Equal(t, "C1", patched.Location)
		assert.True(t, later.Equal(patched.LastUpdated))

		_, err = s.SpareParts().PatchSparePart(ctx, primitive.NewObjectID().Hex(), models.SparePartPatch{Name: &name}, later)
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))

		due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		sc := &models.PMSchedule{EquipmentID: "eq-1", TaskDescription: "inspect", Frequency: models.FrequencyMonthly, NextDueDate: due, IsActive: true}
		require.NoError(t, s.Schedules().InsertSchedule(ctx, sc))
		next := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		ok, err := s.Schedules().AdvanceSchedule(ctx, sc.ID.Hex(), due, next, t0)
		require.NoError(t, err)
		require.True(t, ok)

		notes := "use torque wrench"
		patchedSc, err := s.Schedules().PatchSchedule(ctx, sc.ID.Hex(), models.PMSchedulePatch{Notes: &notes}, later)
		require.NoError(t, err)
		assert.Equal(t, "use torque wrench", patchedSc.Notes)
		assert.True(t, next.Equal(patchedSc.NextDueDate))
		assert.Equal(t, "inspect", patchedSc.TaskDescription)
		assert.True(t, later.Equal(patchedSc.UpdatedAt))

		_, err = s.Schedules().PatchSchedule(ctx, primitive.NewObjectID().Hex(), models.PMSchedulePatch{Notes: &notes}, later)
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})

	t.Run("registry and directory", func(t *testing.T) {
		ctx := context.Background()
		s := newStore(t)

		require.NoError(t, s.Equipment().InsertEquipment(ctx, models.Equipment{ID: "eq-1", Name: "Centrifuge"}))
		require.NoError(t, s.Users().InsertUser(ctx, models.User{ID: "tech1", Role: models.RoleTechnician, IsActive: true}))

		e, err := s.Equipment().FindEquipmentByID(ctx, "eq-1")
		require.NoError(t, err)
		assert.Equal(t, "Centrifuge", e.Name)

		_, err = s.Equipment().FindEquipmentByID(ctx, "eq-404")
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))

		u, err := s.Users().FindUserByID(ctx, "tech1")
		require.NoError(t, err)
		assert.Equal(t, models.RoleTechnician, u.Role)

		_, err = s.Users().FindUserByID(ctx, "ghost")
		assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	})
}

func TestMemoryStore(t *testing.T) {
	testStoreContract(t, true, func(*testing.T) Store { return NewMemoryStore() })
}

func TestMemoryStore_WithoutTransactions(t *testing.T) {
	testStoreContract(t, false, func(*testing.T) Store { return WithoutTransactions(NewMemoryStore()) })
}

func TestMemoryStore_ConcurrentDecrementNeverNegative(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	part := &models.SparePart{Name: "Fuse", Quantity: 10}
	require.NoError(t, s.SpareParts().InsertSparePart(ctx, part))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.SpareParts().DecrementStock(ctx, part.ID.Hex(), 1, t0); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, err := s.SpareParts().FindSparePartByID(ctx, part.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, 0, got.Quantity)
	assert.Equal(t, 10, succeeded)
}

func TestMemoryStore_NestedTransactionJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	part := &models.SparePart{Name: "Lamp", Quantity: 3}
	require.NoError(t, s.SpareParts().InsertSparePart(ctx, part))

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := s.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := s.SpareParts().DecrementStock(ctx, part.ID.Hex(), 1, t0)
			return err
		}); err != nil {
			return err
		}
		return errors.New("outer failure")
	})
	require.Error(t, err)

	got, _ := s.SpareParts().FindSparePartByID(ctx, part.ID.Hex())
	assert.Equal(t, 3, got.Quantity, "inner writes roll back with the outer transaction")
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	wo := &models.WorkOrder{EquipmentID: "eq-1", Status: models.StatusReported}
	require.NoError(t, s.WorkOrders().InsertWorkOrder(ctx, wo))

	got, _ := s.WorkOrders().FindWorkOrderByID(ctx, wo.ID.Hex())
	got.Status = models.StatusCancelled

	again, _ := s.WorkOrders().FindWorkOrderByID(ctx, wo.ID.Hex())
	assert.Equal(t, models.StatusReported, again.Status)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewMemoryStore().RunInTransaction(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
