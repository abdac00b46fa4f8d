package db

import (
	"context"
	"time"

	"github.com/deve1070/cmms-sub000/internal/models"
)

// WorkOrderCollection defines the interface for work order persistence.
type WorkOrderCollection interface {
	InsertWorkOrder(ctx context.Context, wo *models.WorkOrder) error
	FindWorkOrderByID(ctx context.Context, id string) (*models.WorkOrder, error)
	FindWorkOrders(ctx context.Context, filter models.WorkOrderFilter) ([]models.WorkOrder, error)
	// ReplaceWorkOrder stores wo only if the stored version still equals
	// expectedVersion, and bumps wo.Version on success.
	ReplaceWorkOrder(ctx context.Context, wo *models.WorkOrder, expectedVersion int64) error
	// AppendPartUsage pushes a consumption entry onto a non-terminal work order.
	AppendPartUsage(ctx context.Context, id string, usage models.PartUsage, at time.Time) error
	DeleteWorkOrder(ctx context.Context, id string) error
}

// SparePartCollection defines the interface for spare part persistence.
type SparePartCollection interface {
	InsertSparePart(ctx context.Context, part *models.SparePart) error
	FindSparePartByID(ctx context.Context, id string) (*models.SparePart, error)
	FindSpareParts(ctx context.Context, filter models.SparePartFilter) ([]models.SparePart, error)
	// PatchSparePart writes only the fields set in patch and returns the part
	// as stored afterwards. Stock changes made concurrently are preserved.
	PatchSparePart(ctx context.Context, id string, patch models.SparePartPatch, at time.Time) (*models.SparePart, error)
	DeleteSparePart(ctx context.Context, id string) error
	// DecrementStock removes qty units only when at least qty are on hand and
	// returns the part as stored after the change.
	DecrementStock(ctx context.Context, id string, qty int, at time.Time) (*models.SparePart, error)
	IncrementStock(ctx context.Context, id string, qty int, at time.Time) (*models.SparePart, error)
}

// ScheduleCollection defines the interface for PM schedule persistence.
type ScheduleCollection interface {
	InsertSchedule(ctx context.Context, s *models.PMSchedule) error
	FindScheduleByID(ctx context.Context, id string) (*models.PMSchedule, error)
	FindSchedules(ctx context.Context, activeOnly bool) ([]models.PMSchedule, error)
	// FindDueSchedules returns active schedules due at or before now, oldest first.
	FindDueSchedules(ctx context.Context, now time.Time) ([]models.PMSchedule, error)
	// PatchSchedule writes only the fields set in patch and returns the
	// schedule as stored afterwards.
	PatchSchedule(ctx context.Context, id string, patch models.PMSchedulePatch, at time.Time) (*models.PMSchedule, error)
	DeleteSchedule(ctx context.Context, id string) error
	// AdvanceSchedule moves an active schedule from expectedDue to nextDue.
	// It reports false when the schedule no longer matches, e.g. because a
	// concurrent run advanced it first.
	AdvanceSchedule(ctx context.Context, id string, expectedDue, nextDue, generatedAt time.Time) (bool, error)
}

// EquipmentCollection is the read side of the equipment registry.
type EquipmentCollection interface {
	InsertEquipment(ctx context.Context, e models.Equipment) error
	FindEquipmentByID(ctx context.Context, id string) (*models.Equipment, error)
}

// UserCollection is the read side of the user directory.
type UserCollection interface {
	InsertUser(ctx context.Context, u models.User) error
	FindUserByID(ctx context.Context, id string) (*models.User, error)
}

// Store groups the collections and runs multi-record mutations atomically.
type Store interface {
	WorkOrders() WorkOrderCollection
	SpareParts() SparePartCollection
	Schedules() ScheduleCollection
	Equipment() EquipmentCollection
	Users() UserCollection
	// RunInTransaction runs fn so that all its writes commit together or not
	// at all. Calls nest: an inner call joins the outer transaction. A store
	// configured without transactions runs fn directly, so fn must undo its
	// own partial writes before returning an error.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
	Close(ctx context.Context) error
}
