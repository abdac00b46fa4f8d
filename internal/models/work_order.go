package models

import (
	"strings"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WorkOrderStatus is the lifecycle state of a work order.
type WorkOrderStatus string

const (
	StatusReported   WorkOrderStatus = "Reported"
	StatusPending    WorkOrderStatus = "Pending" // legacy alias of Reported
	StatusAssigned   WorkOrderStatus = "Assigned"
	StatusInProgress WorkOrderStatus = "In Progress"
	StatusOnHold     WorkOrderStatus = "On Hold"
	StatusCompleted  WorkOrderStatus = "Completed"
	StatusCancelled  WorkOrderStatus = "Cancelled"
)

var allStatuses = []WorkOrderStatus{
	StatusReported, StatusPending, StatusAssigned, StatusInProgress,
	StatusOnHold, StatusCompleted, StatusCancelled,
}

// transitions lists, per state, the states an explicit status change may move to.
var transitions = map[WorkOrderStatus][]WorkOrderStatus{
	StatusReported:   {StatusAssigned, StatusCancelled},
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusOnHold, StatusCancelled},
	StatusInProgress: {StatusOnHold, StatusCompleted, StatusCancelled},
	StatusOnHold:     {StatusInProgress, StatusCancelled},
}

// ParseStatus converts a client supplied value into a known status.
// Matching ignores case and surrounding space; anything else is rejected.
func ParseStatus(s string) (WorkOrderStatus, error) {
	v := strings.TrimSpace(s)
	for _, st := range allStatuses {
		if strings.EqualFold(v, string(st)) {
			return st, nil
		}
	}
	return "", apperrors.InvalidTransition("", s, "unrecognised status")
}

// IsTerminal reports whether no further changes are accepted.
func (s WorkOrderStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// AwaitingAssignment is true for Reported and its legacy alias Pending.
func (s WorkOrderStatus) AwaitingAssignment() bool {
	return s == StatusReported || s == StatusPending
}

// CanTransitionTo reports whether an explicit change from s to next is allowed.
// Writing the current status again is a no-op and allowed unless s is terminal.
func (s WorkOrderStatus) CanTransitionTo(next WorkOrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if s == next {
		return true
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InitialStatus is the status a new work order starts in.
func InitialStatus(assignedTo string) WorkOrderStatus {
	if assignedTo != "" {
		return StatusAssigned
	}
	return StatusReported
}

// WorkOrderType classifies the maintenance work.
type WorkOrderType string

const (
	TypePreventive  WorkOrderType = "Preventive"
	TypeCorrective  WorkOrderType = "Corrective"
	TypeCalibration WorkOrderType = "Calibration"
	TypeInspection  WorkOrderType = "Inspection"
)

// ParseWorkOrderType matches s case-insensitively against the known types.
func ParseWorkOrderType(s string) (WorkOrderType, error) {
	for _, t := range []WorkOrderType{TypePreventive, TypeCorrective, TypeCalibration, TypeInspection} {
		if strings.EqualFold(strings.TrimSpace(s), string(t)) {
			return t, nil
		}
	}
	return "", apperrors.Validation("type", "unknown work order type %q", s)
}

// Priority of a work order.
type Priority string

const (
	PriorityLow      Priority = "Low"
	PriorityMedium   Priority = "Medium"
	PriorityHigh     Priority = "High"
	PriorityCritical Priority = "Critical"
)

// ParsePriority accepts an empty value as Medium.
func ParsePriority(s string) (Priority, error) {
	if strings.TrimSpace(s) == "" {
		return PriorityMedium, nil
	}
	for _, p := range []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical} {
		if strings.EqualFold(strings.TrimSpace(s), string(p)) {
			return p, nil
		}
	}
	return "", apperrors.Validation("priority", "unknown priority %q", s)
}

// PartQuantity is an advisory line of parts a job is expected to need.
type PartQuantity struct {
	PartID   string `json:"part_id" bson:"part_id" validate:"required"`
	Quantity int    `json:"quantity" bson:"quantity" validate:"gt=0"`
}

// PartUsage records stock actually consumed by a work order.
type PartUsage struct {
	PartID   string          `json:"part_id" bson:"part_id"`
	Quantity int             `json:"quantity" bson:"quantity"`
	UnitCost decimal.Decimal `json:"unit_cost" bson:"unit_cost"`
	LoggedBy string          `json:"logged_by,omitempty" bson:"logged_by,omitempty"`
	LoggedAt time.Time       `json:"logged_at" bson:"logged_at"`
}

// WorkOrder is a unit of maintenance work against one piece of equipment.
type WorkOrder struct {
	ID               primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	EquipmentID      string             `json:"equipment_id" bson:"equipment_id"`
	Issue            string             `json:"issue" bson:"issue"`
	Description      string             `json:"description,omitempty" bson:"description,omitempty"`
	Type             WorkOrderType      `json:"type" bson:"type"`
	Priority         Priority           `json:"priority" bson:"priority"`
	Status           WorkOrderStatus    `json:"status" bson:"status"`
	ReportedBy       string             `json:"reported_by" bson:"reported_by"`
	AssignedTo       string             `json:"assigned_to,omitempty" bson:"assigned_to,omitempty"`
	ScheduleID       string             `json:"schedule_id,omitempty" bson:"schedule_id,omitempty"`
	CompletionDate   *time.Time         `json:"completion_date,omitempty" bson:"completion_date,omitempty"`
	CompletedAt      *time.Time         `json:"completed_at,omitempty" bson:"completed_at,omitempty"`
	ClosedAt         *time.Time         `json:"closed_at,omitempty" bson:"closed_at,omitempty"`
	Actions          string             `json:"actions,omitempty" bson:"actions,omitempty"`
	CompletionNotes  string             `json:"completion_notes,omitempty" bson:"completion_notes,omitempty"`
	SparePartsNeeded []PartQuantity     `json:"spare_parts_needed" bson:"spare_parts_needed"`
	PartsUsed        []PartUsage        `json:"parts_used" bson:"parts_used"`
	Version          int64              `json:"version" bson:"version"`
	CreatedAt        time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time          `json:"updated_at" bson:"updated_at"`
}

// PartsCost sums unit cost times quantity over the consumption ledger.
func (w *WorkOrder) PartsCost() decimal.Decimal {
	total := decimal.Zero
	for _, u := range w.PartsUsed {
		total = total.Add(u.UnitCost.Mul(decimal.NewFromInt(int64(u.Quantity))))
	}
	return total
}

// Clone returns a deep copy.
func (w *WorkOrder) Clone() *WorkOrder {
	c := *w
	c.SparePartsNeeded = append([]PartQuantity(nil), w.SparePartsNeeded...)
	c.PartsUsed = append([]PartUsage(nil), w.PartsUsed...)
	c.CompletionDate = cloneTime(w.CompletionDate)
	c.CompletedAt = cloneTime(w.CompletedAt)
	c.ClosedAt = cloneTime(w.ClosedAt)
	return &c
}

// WorkOrderFilter narrows a work order listing. Zero fields match everything.
type WorkOrderFilter struct {
	Status      WorkOrderStatus
	EquipmentID string
	AssignedTo  string
	ReportedBy  string
	ScheduleID  string
	Type        WorkOrderType
	Priority    Priority
}

// Statuses expands the status filter; Reported also matches legacy Pending records.
func (f WorkOrderFilter) Statuses() []WorkOrderStatus {
	switch f.Status {
	case "":
		return nil
	case StatusReported, StatusPending:
		return []WorkOrderStatus{StatusReported, StatusPending}
	default:
		return []WorkOrderStatus{f.Status}
	}
}

// Matches applies the filter to a single record.
func (f WorkOrderFilter) Matches(w *WorkOrder) bool {
	if statuses := f.Statuses(); statuses != nil {
		found := false
		for _, s := range statuses {
			if w.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.EquipmentID != "" && w.EquipmentID != f.EquipmentID {
		return false
	}
	if f.AssignedTo != "" && w.AssignedTo != f.AssignedTo {
		return false
	}
	if f.ReportedBy != "" && w.ReportedBy != f.ReportedBy {
		return false
	}
	if f.ScheduleID != "" && w.ScheduleID != f.ScheduleID {
		return false
	}
	if f.Type != "" && w.Type != f.Type {
		return false
	}
	if f.Priority != "" && w.Priority != f.Priority {
		return false
	}
	return true
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
