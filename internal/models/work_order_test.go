package models

import (
	"errors"
	"testing"
	"time"

	"github.com/deve1070/cmms-sub000/internal/apperrors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    WorkOrderStatus
		wantErr bool
	}{
		{"Reported", StatusReported, false},
		{"pending", StatusPending, false},
		{"in progress", StatusInProgress, false},
		{" On Hold ", StatusOnHold, false},
		{"COMPLETED", StatusCompleted, false},
		{"Cancelled", StatusCancelled, false},
		{"in_progress", "", true},
		{"Done", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseStatus(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, apperrors.ErrInvalidTransition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWorkOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to WorkOrderStatus
		want     bool
	}{
		{StatusReported, StatusAssigned, true},
		{StatusPending, StatusAssigned, true},
		{StatusReported, StatusCancelled, true},
		{StatusReported, StatusInProgress, false},
		{StatusReported, StatusCompleted, false},
		{StatusAssigned, StatusInProgress, true},
		{StatusAssigned, StatusOnHold, true},
		{StatusAssigned, StatusReported, false},
		{StatusAssigned, StatusCompleted, false},
		{StatusInProgress, StatusOnHold, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusInProgress, StatusAssigned, false},
		{StatusOnHold, StatusInProgress, true},
		{StatusOnHold, StatusCompleted, false},
		{StatusOnHold, StatusCancelled, true},
		{StatusInProgress, StatusInProgress, true},
		{StatusCompleted, StatusCompleted, false},
		{StatusCompleted, StatusInProgress, false},
		{StatusCancelled, StatusReported, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestInitialStatus(t *testing.T) {
	assert.Equal(t, StatusReported, InitialStatus(""))
	assert.Equal(t, StatusAssigned, InitialStatus("tech1"))
}

func TestParsePriority(t *testing.T) {
	p, err := ParsePriority("")
	require.NoError(t, err)
	assert.Equal(t, PriorityMedium, p)

	p, err = ParsePriority("critical")
	require.NoError(t, err)
	assert.Equal(t, PriorityCritical, p)

	_, err = ParsePriority("urgent")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestParseWorkOrderType(t *testing.T) {
	wt, err := ParseWorkOrderType("calibration")
	require.NoError(t, err)
	assert.Equal(t, TypeCalibration, wt)

	_, err = ParseWorkOrderType("")
	assert.True(t, errors.Is(err, apperrors.ErrValidation))
}

func TestWorkOrder_PartsCost(t *testing.T) {
	wo := &WorkOrder{PartsUsed: []PartUsage{
		{PartID: "a", Quantity: 2, UnitCost: decimal.RequireFromString("12.50")},
		{PartID: "b", Quantity: 3, UnitCost: decimal.RequireFromString("0.10")},
	}}
	assert.True(t, decimal.RequireFromString("25.30").Equal(wo.PartsCost()))
	assert.True(t, (&WorkOrder{}).PartsCost().IsZero())
}

func TestWorkOrder_CloneIsDeep(t *testing.T) {
	due := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	wo := &WorkOrder{
		CompletionDate: &due,
		PartsUsed:      []PartUsage{{PartID: "a", Quantity: 1}},
	}
	c := wo.Clone()
	c.PartsUsed[0].Quantity = 99
	*c.CompletionDate = due.AddDate(1, 0, 0)

	assert.Equal(t, 1, wo.PartsUsed[0].Quantity)
	assert.Equal(t, due, *wo.CompletionDate)
}

func TestWorkOrderFilter_Matches(t *testing.T) {
	legacy := &WorkOrder{Status: StatusPending, EquipmentID: "eq-1"}
	assigned := &WorkOrder{Status: StatusAssigned, EquipmentID: "eq-1", AssignedTo: "tech1"}

	reported := WorkOrderFilter{Status: StatusReported}
	assert.True(t, reported.Matches(legacy), "reported filter includes legacy pending")
	assert.False(t, reported.Matches(assigned))

	byTech := WorkOrderFilter{AssignedTo: "tech1", EquipmentID: "eq-1"}
	assert.True(t, byTech.Matches(assigned))
	assert.False(t, byTech.Matches(legacy))

	assert.True(t, WorkOrderFilter{}.Matches(legacy))
}
