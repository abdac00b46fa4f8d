// Package pm manages preventive maintenance schedules and turns the due ones
// into work orders.
package pm

import (
	"context"
	"strings"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/deve1070/cmms-sub000/internal/db"
	"github.com/deve1070/cmms-sub000/internal/models"
	"github.com/sirupsen/logrus"
)

// Schedules is the CRUD surface of the PM schedule store.
type Schedules struct {
	schedules db.ScheduleCollection
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewSchedules creates the schedule CRUD surface. A nil now uses time.Now.
func NewSchedules(schedules db.ScheduleCollection, log logrus.FieldLogger, now func() time.Time) *Schedules {
	if now == nil {
		now = time.Now
	}
	return &Schedules{schedules: schedules, log: log, now: now}
}

// ScheduleInput describes a new schedule.
type ScheduleInput struct {
	EquipmentID      string
	TaskDescription  string
	Frequency        string
	NextDueDate      time.Time
	AssignedToUserID string
	Priority         string
	Notes            string
	IsActive         *bool
}

// ScheduleUpdate is a partial update; nil fields are left unchanged.
type ScheduleUpdate struct {
	EquipmentID      *string
	TaskDescription  *string
	Frequency        *string
	NextDueDate      *time.Time
	AssignedToUserID *string
	Priority         *string
	Notes            *string
	IsActive         *bool
}

// Create validates in and stores a new schedule, active unless in says otherwise.
func (s *Schedules) Create(ctx context.Context, in ScheduleInput) (*models.PMSchedule, error) {
	if strings.TrimSpace(in.EquipmentID) == "" {
		return nil, apperrors.Validation("equipment_id", "is required")
	}
	if strings.TrimSpace(in.TaskDescription) == "" {
		return nil, apperrors.Validation("task_description", "is required")
	}
	freq, err := models.ParseFrequency(in.Frequency)
	if err != nil {
		return nil, err
	}
	if in.NextDueDate.IsZero() {
		return nil, apperrors.Validation("next_due_date", "is required")
	}
	priority, err := models.ParsePriority(in.Priority)
	if err != nil {
		return nil, err
	}
	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	now := s.now().UTC()
	sc := &models.PMSchedule{
		EquipmentID:      strings.TrimSpace(in.EquipmentID),
		TaskDescription:  strings.TrimSpace(in.TaskDescription),
		Frequency:        freq,
		NextDueDate:      in.NextDueDate.UTC(),
		AnchorDay:        in.NextDueDate.UTC().Day(),
		IsActive:         active,
		AssignedToUserID: strings.TrimSpace(in.AssignedToUserID),
		Priority:         priority,
		Notes:            in.Notes,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.schedules.InsertSchedule(ctx, sc); err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"schedule_id":  sc.ID.Hex(),
		"equipment_id": sc.EquipmentID,
		"frequency":    sc.Frequency,
	}).Info("pm schedule created")
	return sc, nil
}

// Get returns the schedule with the given id.
func (s *Schedules) Get(ctx context.Context, id string) (*models.PMSchedule, error) {
	return s.schedules.FindScheduleByID(ctx, id)
}

// List returns schedules ordered by next due date.
func (s *Schedules) List(ctx context.Context, activeOnly bool) ([]models.PMSchedule, error) {
	return s.schedules.FindSchedules(ctx, activeOnly)
}

// Update writes only the fields set in in, so it never rolls back a due date
// the generator advanced meanwhile. Setting NextDueDate also re-anchors
// month based schedules on its day of month.
func (s *Schedules) Update(ctx context.Context, id string, in ScheduleUpdate) (*models.PMSchedule, error) {
	var patch models.PMSchedulePatch
	if in.EquipmentID != nil {
		v := strings.TrimSpace(*in.EquipmentID)
		if v == "" {
			return nil, apperrors.Validation("equipment_id", "is required")
		}
		patch.EquipmentID = &v
	}
	if in.TaskDescription != nil {
		v := strings.TrimSpace(*in.TaskDescription)
		if v == "" {
			return nil, apperrors.Validation("task_description", "is required")
		}
		patch.TaskDescription = &v
	}
	if in.Frequency != nil {
		freq, err := models.ParseFrequency(*in.Frequency)
		if err != nil {
			return nil, err
		}
		patch.Frequency = &freq
	}
	if in.NextDueDate != nil {
		if in.NextDueDate.IsZero() {
			return nil, apperrors.Validation("next_due_date", "is required")
		}
		due := in.NextDueDate.UTC()
		anchor := due.Day()
		patch.NextDueDate = &due
		patch.AnchorDay = &anchor
	}
	if in.Priority != nil {
		priority, err := models.ParsePriority(*in.Priority)
		if err != nil {
			return nil, err
		}
		patch.Priority = &priority
	}
	if in.AssignedToUserID != nil {
		v := strings.TrimSpace(*in.AssignedToUserID)
		patch.AssignedToUserID = &v
	}
	patch.Notes = in.Notes
	patch.IsActive = in.IsActive

	return s.schedules.PatchSchedule(ctx, id, patch, s.now().UTC())
}

// Delete removes a schedule. Work orders it generated are kept.
func (s *Schedules) Delete(ctx context.Context, id string) error {
	if err := s.schedules.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.log.WithField("schedule_id", id).Info("pm schedule deleted")
	return nil
}
