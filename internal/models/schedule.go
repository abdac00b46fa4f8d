package models

import (
	"strings"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Frequency is the recurrence interval of a PM schedule.
type Frequency string

const (
	FrequencyDaily     Frequency = "Daily"
	FrequencyWeekly    Frequency = "Weekly"
	FrequencyMonthly   Frequency = "Monthly"
	FrequencyQuarterly Frequency = "Quarterly"
	FrequencyAnnually  Frequency = "Annually"
)

// ParseFrequency matches s case-insensitively against the known frequencies.
func ParseFrequency(s string) (Frequency, error) {
	for _, f := range []Frequency{FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencyAnnually} {
		if strings.EqualFold(strings.TrimSpace(s), string(f)) {
			return f, nil
		}
	}
	return "", apperrors.Validation("frequency", "unknown frequency %q", s)
}

// IsValid reports whether f is one of the known frequencies.
func (f Frequency) IsValid() bool {
	_, err := ParseFrequency(string(f))
	return err == nil
}

// Advance moves t forward by one interval, keeping t's day of month.
func (f Frequency) Advance(t time.Time) time.Time {
	return f.AdvanceOn(t, 0)
}

// AdvanceOn moves t forward by one interval. Month based intervals land on
// anchorDay, clamped to the last day of the target month, so a schedule
// anchored on the 31st runs Jan 31, Feb 29, Mar 31. anchorDay 0 uses t's day.
func (f Frequency) AdvanceOn(t time.Time, anchorDay int) time.Time {
	switch f {
	case FrequencyDaily:
		return t.AddDate(0, 0, 1)
	case FrequencyWeekly:
		return t.AddDate(0, 0, 7)
	case FrequencyMonthly:
		return addMonths(t, 1, anchorDay)
	case FrequencyQuarterly:
		return addMonths(t, 3, anchorDay)
	case FrequencyAnnually:
		return addMonths(t, 12, anchorDay)
	default:
		return t
	}
}

// NextDueAfter advances prev one interval at a time until the result is strictly
// after now. missed counts the whole intervals that were passed over without a
// work order being generated for them.
func (f Frequency) NextDueAfter(prev, now time.Time, anchorDay int) (next time.Time, missed int, err error) {
	if !f.IsValid() {
		return time.Time{}, 0, apperrors.Validation("frequency", "unknown frequency %q", string(f))
	}
	next = f.AdvanceOn(prev, anchorDay)
	for !next.After(now) {
		next = f.AdvanceOn(next, anchorDay)
		missed++
	}
	return next, missed, nil
}

func addMonths(t time.Time, n, anchorDay int) time.Time {
	y, m, d := t.Date()
	if anchorDay > 0 {
		d = anchorDay
	}
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := first.AddDate(0, 1, -1).Day(); d > last {
		d = last
	}
	return time.Date(first.Year(), first.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// PMSchedule is a recurring preventive maintenance task definition.
type PMSchedule struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	EquipmentID       string             `json:"equipment_id" bson:"equipment_id"`
	TaskDescription   string             `json:"task_description" bson:"task_description"`
	Frequency         Frequency          `json:"frequency" bson:"frequency"`
	NextDueDate       time.Time          `json:"next_due_date" bson:"next_due_date"`
	AnchorDay         int                `json:"anchor_day,omitempty" bson:"anchor_day,omitempty"`
	LastGeneratedDate *time.Time         `json:"last_generated_date,omitempty" bson:"last_generated_date,omitempty"`
	IsActive          bool               `json:"is_active" bson:"is_active"`
	AssignedToUserID  string             `json:"assigned_to_user_id,omitempty" bson:"assigned_to_user_id,omitempty"`
	Priority          Priority           `json:"priority,omitempty" bson:"priority,omitempty"`
	Notes             string             `json:"notes,omitempty" bson:"notes,omitempty"`
	CreatedAt         time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt         time.Time          `json:"updated_at" bson:"updated_at"`
}

// IsDue reports whether the schedule is eligible for generation at now.
func (s *PMSchedule) IsDue(now time.Time) bool {
	return s.IsActive && !s.NextDueDate.After(now)
}

// NextDueAfter returns the first due date strictly after now, counting the
// intervals skipped on the way.
func (s *PMSchedule) NextDueAfter(now time.Time) (time.Time, int, error) {
	anchor := s.AnchorDay
	if anchor == 0 {
		anchor = s.NextDueDate.Day()
	}
	return s.Frequency.NextDueAfter(s.NextDueDate, now, anchor)
}

// Clone returns a deep copy of s.
func (s *PMSchedule) Clone() *PMSchedule {
	c := *s
	c.LastGeneratedDate = cloneTime(s.LastGeneratedDate)
	return &c
}

// PMSchedulePatch is a partial schedule update; nil fields are left unchanged.
type PMSchedulePatch struct {
	EquipmentID      *string
	TaskDescription  *string
	Frequency        *Frequency
	NextDueDate      *time.Time
	AnchorDay        *int
	AssignedToUserID *string
	Priority         *Priority
	Notes            *string
	IsActive         *bool
}

// Apply copies the set fields of p onto s.
func (p PMSchedulePatch) Apply(s *PMSchedule) {
	if p.EquipmentID != nil {
		s.EquipmentID = *p.EquipmentID
	}
	if p.TaskDescription != nil {
		s.TaskDescription = *p.TaskDescription
	}
	if p.Frequency != nil {
		s.Frequency = *p.Frequency
	}
	if p.NextDueDate != nil {
		s.NextDueDate = *p.NextDueDate
	}
	if p.AnchorDay != nil {
		s.AnchorDay = *p.AnchorDay
	}
	if p.AssignedToUserID != nil {
		s.AssignedToUserID = *p.AssignedToUserID
	}
	if p.Priority != nil {
		s.Priority = *p.Priority
	}
	if p.Notes != nil {
		s.Notes = *p.Notes
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
}
