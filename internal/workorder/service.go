// Package workorder implements the work order lifecycle: creation, the status
// state machine, assignment and part consumption.
package workorder

import (
	"context"
	"strings"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/deve1070/cmms-sub000/internal/db"
	"github.com/deve1070/cmms-sub000/internal/events"
	"github.com/deve1070/cmms-sub000/internal/inventory"
	"github.com/deve1070/cmms-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

// Service is the work order lifecycle engine.
type Service struct {
	store     db.Store
	ledger    *inventory.Ledger
	users     db.UserCollection
	publisher events.Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPublisher sets where work order events go. The default drops them.
func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.publisher = p } }

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithUserDirectory makes the engine reject assignees the directory does not know.
func WithUserDirectory(users db.UserCollection) Option {
	return func(s *Service) { s.users = users }
}

// NewService creates the engine. Part consumption goes through ledger.
func NewService(store db.Store, ledger *inventory.Ledger, log logrus.FieldLogger, opts ...Option) *Service {
	s := &Service{store: store, ledger: ledger, publisher: events.Nop{}, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateInput describes a new work order.
type CreateInput struct {
	EquipmentID      string
	Issue            string
	Description      string
	Type             string
	Priority         string
	AssignedTo       string
	ScheduleID       string
	CompletionDate   *time.Time
	SparePartsNeeded []models.PartQuantity
}

// Build validates in and returns the work order it would create without
// storing it. The PM generator uses it to insert inside its own transaction.
func (s *Service) Build(ctx context.Context, actor models.Actor, in CreateInput) (*models.WorkOrder, error) {
	if strings.TrimSpace(in.EquipmentID) == "" {
		return nil, apperrors.Validation("equipment_id", "is required")
	}
	if strings.TrimSpace(in.Issue) == "" {
		return nil, apperrors.Validation("issue", "is required")
	}
	woType, err := models.ParseWorkOrderType(in.Type)
	if err != nil {
		return nil, err
	}
	priority, err := models.ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	if err := validateNeeded(in.SparePartsNeeded); err != nil {
		return nil, err
	}
	assignee := strings.TrimSpace(in.AssignedTo)
	if err := s.checkAssignee(ctx, assignee); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	return &models.WorkOrder{
		EquipmentID:      strings.TrimSpace(in.EquipmentID),
		Issue:            strings.TrimSpace(in.Issue),
		Description:      in.Description,
		Type:             woType,
		Priority:         priority,
		Status:           models.InitialStatus(assignee),
		ReportedBy:       actor.UserID,
		AssignedTo:       assignee,
		ScheduleID:       in.ScheduleID,
		CompletionDate:   in.CompletionDate,
		SparePartsNeeded: append([]models.PartQuantity{}, in.SparePartsNeeded...),
		PartsUsed:        []models.PartUsage{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// Create stores a new work order in Reported, or Assigned when it names an assignee.
func (s *Service) Create(ctx context.Context, actor models.Actor, in CreateInput) (*models.WorkOrder, error) {
	wo, err := s.Build(ctx, actor, in)
	if err != nil {
		return nil, err
	}
	if err := s.store.WorkOrders().InsertWorkOrder(ctx, wo); err != nil {
		return nil, err
	}
	s.Announce(ctx, events.WorkOrderCreated, wo)
	return wo, nil
}

// Announce logs and publishes a committed change.
func (s *Service) Announce(ctx context.Context, eventType string, wo *models.WorkOrder) {
	s.log.WithFields(logrus.Fields{
		"work_order_id": wo.ID.Hex(),
		"equipment_id":  wo.EquipmentID,
		"status":        wo.Status,
		"event":         eventType,
	}).Info("work order changed")
	events.Emit(ctx, s.publisher, s.log, events.New(eventType, wo.UpdatedAt, wo))
}

// Get returns the work order with the given id.
func (s *Service) Get(ctx context.Context, id string) (*models.WorkOrder, error) {
	return s.store.WorkOrders().FindWorkOrderByID(ctx, id)
}

// List returns the work orders matching filter, newest first.
func (s *Service) List(ctx context.Context, filter models.WorkOrderFilter) ([]models.WorkOrder, error) {
	return s.store.WorkOrders().FindWorkOrders(ctx, filter)
}

// UpdateInput is a partial update. Nil fields are left alone; PartsUsed
// entries are consumed from stock, not written over the ledger.
type UpdateInput struct {
	Status           *string
	AssignedTo       *string
	Actions          *string
	CompletionNotes  *string
	Description      *string
	Priority         *string
	CompletionDate   *time.Time
	SparePartsNeeded *[]models.PartQuantity
	PartsUsed        []models.PartQuantity
}

type consumption struct {
	part *models.SparePart
	qty  int
}

// Update applies in to a work order. Assignment is applied before an explicit
// status change, so a Reported order can be assigned and started at once.
// Closed orders reject every update and nothing is written.
func (s *Service) Update(ctx context.Context, actor models.Actor, id string, in UpdateInput) (*models.WorkOrder, error) {
	var target *models.WorkOrderStatus
	if in.Status != nil {
		st, err := models.ParseStatus(*in.Status)
		if err != nil {
			return nil, err
		}
		target = &st
	}
	var priority models.Priority
	if in.Priority != nil {
		p, err := models.ParsePriority(*in.Priority)
		if err != nil {
			return nil, err
		}
		priority = p
	}
	if in.SparePartsNeeded != nil {
		if err := validateNeeded(*in.SparePartsNeeded); err != nil {
			return nil, err
		}
	}
	for _, pq := range in.PartsUsed {
		if err := validateUsage(pq.PartID, pq.Quantity); err != nil {
			return nil, err
		}
	}
	if in.AssignedTo != nil {
		if err := s.checkAssignee(ctx, *in.AssignedTo); err != nil {
			return nil, err
		}
	}

	var (
		updated  *models.WorkOrder
		consumed []consumption
	)
	err := s.store.RunInTransaction(ctx, func(ctx context.Context) (err error) {
		consumed = nil
		defer func() {
			if err != nil {
				s.release(ctx, id, consumed)
			}
		}()
		wo, err := s.store.WorkOrders().FindWorkOrderByID(ctx, id)
		if err != nil {
			return err
		}
		if wo.Status.IsTerminal() {
			to := wo.Status
			if target != nil {
				to = *target
			}
			return apperrors.InvalidTransition(string(wo.Status), string(to), "work order is closed")
		}
		expected := wo.Version
		now := s.now().UTC()

		if in.AssignedTo != nil {
			wo.AssignedTo = strings.TrimSpace(*in.AssignedTo)
			if wo.AssignedTo != "" && wo.Status.AwaitingAssignment() {
				wo.Status = models.StatusAssigned
			}
		}
		if target != nil {
			if err := applyStatus(wo, *target, now); err != nil {
				return err
			}
		}
		if in.Actions != nil {
			wo.Actions = *in.Actions
		}
		if in.CompletionNotes != nil {
			wo.CompletionNotes = *in.CompletionNotes
		}
		if in.Description != nil {
			wo.Description = *in.Description
		}
		if in.Priority != nil {
			wo.Priority = priority
		}
		if in.CompletionDate != nil {
			d := *in.CompletionDate
			wo.CompletionDate = &d
		}
		if in.SparePartsNeeded != nil {
			wo.SparePartsNeeded = append([]models.PartQuantity{}, (*in.SparePartsNeeded)...)
		}

		for _, pq := range in.PartsUsed {
			part, err := s.ledger.Consume(ctx, pq.PartID, pq.Quantity)
			if err != nil {
				return err
			}
			wo.PartsUsed = append(wo.PartsUsed, usageFor(part, pq.Quantity, actor, now))
			consumed = append(consumed, consumption{part: part, qty: pq.Quantity})
		}

		wo.UpdatedAt = now
		if err = s.store.WorkOrders().ReplaceWorkOrder(ctx, wo, expected); err != nil {
			return err
		}
		updated = wo
		return nil
	})
	if err != nil {
		s.log.WithError(err).WithField("work_order_id", id).Debug("work order update rejected")
		return nil, err
	}

	s.Announce(ctx, events.WorkOrderUpdated, updated)
	for _, c := range consumed {
		s.ledger.Announce(ctx, c.part, c.qty, id)
	}
	return updated, nil
}

// release returns stock consumed by a write that was not stored. Without a
// transaction nothing else undoes the decrements.
func (s *Service) release(ctx context.Context, workOrderID string, consumed []consumption) {
	ctx = context.WithoutCancel(ctx)
	for _, c := range consumed {
		if err := s.ledger.Release(ctx, c.part.ID.Hex(), c.qty); err != nil {
			s.log.WithError(err).WithFields(logrus.Fields{
				"work_order_id": workOrderID,
				"part_id":       c.part.ID.Hex(),
				"quantity":      c.qty,
			}).Error("failed to release consumed stock")
		}
	}
}

// applyStatus performs an explicit status change on a non-terminal order.
func applyStatus(wo *models.WorkOrder, target models.WorkOrderStatus, now time.Time) error {
	if !wo.Status.CanTransitionTo(target) {
		return apperrors.InvalidTransition(string(wo.Status), string(target), "")
	}
	if target == models.StatusAssigned && wo.AssignedTo == "" {
		return apperrors.Validation("assigned_to", "an assignee is required to enter %s", models.StatusAssigned)
	}
	if target == wo.Status {
		return nil
	}
	wo.Status = target
	switch target {
	case models.StatusCompleted:
		wo.CompletedAt = &now
		wo.ClosedAt = &now
	case models.StatusCancelled:
		wo.ClosedAt = &now
	}
	return nil
}

// LogPartUsage consumes qty units of a part against a work order. The stock
// decrement and the ledger entry commit together; on any failure neither
// is kept.
func (s *Service) LogPartUsage(ctx context.Context, actor models.Actor, workOrderID, partID string, qty int) (*models.WorkOrder, error) {
	if err := validateUsage(partID, qty); err != nil {
		return nil, err
	}

	var (
		wo   *models.WorkOrder
		part *models.SparePart
	)
	err := s.store.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.store.WorkOrders().FindWorkOrderByID(ctx, workOrderID)
		if err != nil {
			return err
		}
		if current.Status.IsTerminal() {
			return apperrors.InvalidTransition(string(current.Status), string(current.Status), "parts cannot be logged on a closed work order")
		}
		if part, err = s.ledger.Consume(ctx, partID, qty); err != nil {
			return err
		}
		now := s.now().UTC()
		if err := s.store.WorkOrders().AppendPartUsage(ctx, workOrderID, usageFor(part, qty, actor, now), now); err != nil {
			s.release(ctx, workOrderID, []consumption{{part: part, qty: qty}})
			return err
		}
		wo, err = s.store.WorkOrders().FindWorkOrderByID(ctx, workOrderID)
		return err
	})
	if err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"work_order_id": workOrderID,
			"part_id":       partID,
			"quantity":      qty,
		}).Debug("part usage rejected")
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"work_order_id": workOrderID,
		"part_id":       partID,
		"quantity":      qty,
		"remaining":     part.Quantity,
	}).Info("part usage logged")
	s.Announce(ctx, events.WorkOrderUpdated, wo)
	s.ledger.Announce(ctx, part, qty, workOrderID)
	return wo, nil
}

// Delete removes a work order outright. Consumed stock is not returned.
func (s *Service) Delete(ctx context.Context, actor models.Actor, id string) error {
	wo, err := s.store.WorkOrders().FindWorkOrderByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.WorkOrders().DeleteWorkOrder(ctx, id); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"work_order_id": id, "deleted_by": actor.UserID}).Warn("work order deleted")
	wo.UpdatedAt = s.now().UTC()
	events.Emit(ctx, s.publisher, s.log, events.New(events.WorkOrderDeleted, wo.UpdatedAt, wo))
	return nil
}

func (s *Service) checkAssignee(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" || s.users == nil {
		return nil
	}
	u, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !u.IsActive {
		return apperrors.Validation("assigned_to", "user %q is inactive", userID)
	}
	return nil
}

func usageFor(part *models.SparePart, qty int, actor models.Actor, at time.Time) models.PartUsage {
	return models.PartUsage{
		PartID:   part.ID.Hex(),
		Quantity: qty,
		UnitCost: part.UnitCost,
		LoggedBy: actor.UserID,
		LoggedAt: at,
	}
}

func validateUsage(partID string, qty int) error {
	if strings.TrimSpace(partID) == "" {
		return apperrors.Validation("part_id", "is required")
	}
	if qty <= 0 {
		return apperrors.Validation("quantity", "must be greater than zero")
	}
	return nil
}

func validateNeeded(needed []models.PartQuantity) error {
	for _, pq := range needed {
		if strings.TrimSpace(pq.PartID) == "" {
			return apperrors.Validation("spare_parts_needed", "part_id is required")
		}
		if pq.Quantity <= 0 {
			return apperrors.Validation("spare_parts_needed", "quantity for %s must be greater than zero", pq.PartID)
		}
	}
	return nil
}
