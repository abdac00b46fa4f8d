package pm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/deve1070/cmms-sub000/internal/db"
	"github.com/deve1070/cmms-sub000/internal/events"
	"github.com/deve1070/cmms-sub000/internal/lock"
	"github.com/deve1070/cmms-sub000/internal/models"
	"github.com/deve1070/cmms-sub000/internal/workorder"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LockKey guards generator runs against each other.
const LockKey = "pm:generator"

// ErrRunInProgress is returned when another generator run holds the lock.
var ErrRunInProgress = fmt.Errorf("pm generation already running: %w", apperrors.ErrConflict)

// errAlreadyClaimed marks a schedule advanced by someone else since it was read.
var errAlreadyClaimed = errors.New("schedule already advanced")

// SystemActor is recorded as the reporter of generated work orders.
var SystemActor = models.Actor{UserID: "system:pm-generator", Role: models.RoleSystem}

// ScheduleError is a per-schedule failure collected into a run summary.
type ScheduleError struct {
	ScheduleID  string `json:"schedule_id"`
	EquipmentID string `json:"equipment_id"`
	Error       string `json:"error"`
}

// RunSummary reports the outcome of one generator run.
type RunSummary struct {
	RunID           string          `json:"run_id"`
	RunAt           time.Time       `json:"run_at"`
	GeneratedCount  int             `json:"generated_count"`
	ErrorCount      int             `json:"error_count"`
	SkippedCount    int             `json:"skipped_count"`
	MissedIntervals int             `json:"missed_intervals"`
	WorkOrderIDs    []string        `json:"work_order_ids"`
	Errors          []ScheduleError `json:"errors"`
}

// Generator turns due schedules into Preventive work orders.
type Generator struct {
	store     db.Store
	registry  db.EquipmentCollection
	engine    *workorder.Service
	locker    lock.Locker
	lockTTL   time.Duration
	publisher events.Publisher
	log       logrus.FieldLogger
}

// NewGenerator wires a generator. A nil publisher drops run events and a
// non-positive lockTTL defaults to five minutes.
func NewGenerator(store db.Store, registry db.EquipmentCollection, engine *workorder.Service, locker lock.Locker, lockTTL time.Duration, publisher events.Publisher, log logrus.FieldLogger) *Generator {
	if publisher == nil {
		publisher = events.Nop{}
	}
	if lockTTL <= 0 {
		lockTTL = 5 * time.Minute
	}
	return &Generator{
		store:     store,
		registry:  registry,
		engine:    engine,
		locker:    locker,
		lockTTL:   lockTTL,
		publisher: publisher,
		log:       log,
	}
}

// GenerateDueWorkOrders creates one work order per active schedule due at or
// before now and advances each schedule past now. Failures are recorded per
// schedule; the batch always runs to the end. Running it twice for the same
// now generates nothing the second time.
func (g *Generator) GenerateDueWorkOrders(ctx context.Context, now time.Time) (*RunSummary, error) {
	release, err := g.locker.Acquire(ctx, LockKey, g.lockTTL)
	if errors.Is(err, lock.ErrLocked) {
		return nil, ErrRunInProgress
	}
	if err != nil {
		return nil, fmt.Errorf("acquire generator lock: %w", err)
	}
	defer func() {
		if err := release(context.Background()); err != nil {
			g.log.WithError(err).Warn("failed to release generator lock")
		}
	}()

	now = now.UTC()
	summary := &RunSummary{
		RunID:        uuid.NewString(),
		RunAt:        now,
		WorkOrderIDs: []string{},
		Errors:       []ScheduleError{},
	}
	log := g.log.WithField("run_id", summary.RunID)

	due, err := g.store.Schedules().FindDueSchedules(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("load due schedules: %w", err)
	}
	log.WithField("due", len(due)).Info("pm generation started")

	for i := range due {
		sc := &due[i]
		slog := log.WithFields(logrus.Fields{"schedule_id": sc.ID.Hex(), "equipment_id": sc.EquipmentID})

		wo, missed, err := g.generateOne(ctx, sc, now)
		switch {
		case errors.Is(err, errAlreadyClaimed):
			summary.SkippedCount++
			slog.Info("schedule already handled by another run")
		case err != nil:
			summary.ErrorCount++
			summary.Errors = append(summary.Errors, ScheduleError{
				ScheduleID:  sc.ID.Hex(),
				EquipmentID: sc.EquipmentID,
				Error:       err.Error(),
			})
			slog.WithError(err).Warn("pm generation failed for schedule")
		default:
			summary.GeneratedCount++
			summary.MissedIntervals += missed
			summary.WorkOrderIDs = append(summary.WorkOrderIDs, wo.ID.Hex())
			if missed > 0 {
				slog.WithField("missed_intervals", missed).Warn("schedule was overdue, skipped intervals")
			}
			g.engine.Announce(ctx, events.WorkOrderCreated, wo)
		}
	}

	log.WithFields(logrus.Fields{
		"generated": summary.GeneratedCount,
		"errors":    summary.ErrorCount,
		"skipped":   summary.SkippedCount,
	}).Info("pm generation finished")
	events.Emit(ctx, g.publisher, log, events.New(events.PMRunCompleted, now, summary))
	return summary, nil
}

// generateOne claims sc and creates its work order in one transaction.
func (g *Generator) generateOne(ctx context.Context, sc *models.PMSchedule, now time.Time) (*models.WorkOrder, int, error) {
	if _, err := g.registry.FindEquipmentByID(ctx, sc.EquipmentID); err != nil {
		return nil, 0, err
	}
	next, missed, err := sc.NextDueAfter(now)
	if err != nil {
		return nil, 0, err
	}

	due := sc.NextDueDate
	wo, err := g.engine.Build(ctx, SystemActor, workorder.CreateInput{
		EquipmentID:    sc.EquipmentID,
		Issue:          sc.TaskDescription,
		Description:    sc.Notes,
		Type:           string(models.TypePreventive),
		Priority:       string(sc.Priority),
		AssignedTo:     sc.AssignedToUserID,
		ScheduleID:     sc.ID.Hex(),
		CompletionDate: &due,
	})
	if err != nil {
		return nil, 0, err
	}

	// Insert precedes the claim: without transactions a schedule must never be
	// advanced past a work order that was not stored.
	err = g.store.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := g.store.WorkOrders().InsertWorkOrder(ctx, wo); err != nil {
			return err
		}
		claimed, err := g.store.Schedules().AdvanceSchedule(ctx, sc.ID.Hex(), sc.NextDueDate, next, now)
		if err == nil && !claimed {
			err = errAlreadyClaimed
		}
		if err != nil {
			if derr := g.store.WorkOrders().DeleteWorkOrder(ctx, wo.ID.Hex()); derr != nil {
				g.log.WithError(derr).WithField("work_order_id", wo.ID.Hex()).Error("failed to remove unclaimed pm work order")
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return wo, missed, nil
}

// Run triggers GenerateDueWorkOrders every interval until ctx is cancelled.
// Overlapping runs from other processes are skipped through the lock.
func (g *Generator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	g.log.WithField("interval", interval.String()).Info("pm generator ticker started")
	for {
		select {
		case <-ctx.Done():
			g.log.Info("pm generator ticker stopped")
			return
		case t := <-ticker.C:
			if _, err := g.GenerateDueWorkOrders(ctx, t); err != nil {
				if errors.Is(err, ErrRunInProgress) {
					g.log.Debug("pm generation skipped, another run is active")
					continue
				}
				g.log.WithError(err).Error("scheduled pm generation failed")
			}
		}
	}
}
