package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/events"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/models"
	"github.com/AshAI-Sys/Ash-AI-sub011/pkg/service"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkUnitLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.createOrder(t, models.MethodSilkscreen, 10*24*time.Hour)

	unit, err := h.engine.CreateWorkUnit(ctx, service.WorkUnitRequest{OrderID: plan.Order.ID, ScanCode: "BND-001", Quantity: 50, Actor: "cutter"})
	require.NoError(t, err)
	assert.Equal(t, models.CreatedWorkUnitStatus, unit.Status)
	assert.Equal(t, 1, unit.Version)

	_, err = h.engine.UpdateWorkUnitStatus(ctx, service.WorkUnitUpdate{ScanCode: "BND-001", To: models.DoneWorkUnitStatus, Actor: "op-1"})
	var illegal *models.IllegalTransitionError
	require.True(t, errors.As(err, &illegal))
	assert.ElementsMatch(t, []string{string(models.InProgressWorkUnitStatus), string(models.RejectedWorkUnitStatus)}, illegal.Allowed)

	_, err = h.engine.UpdateWorkUnitStatus(ctx, service.WorkUnitUpdate{ScanCode: "BND-001", To: models.InProgressWorkUnitStatus, Actor: "op-1"})
	require.NoError(t, err)
	h.advance(time.Hour)
	done, err := h.engine.UpdateWorkUnitStatus(ctx, service.WorkUnitUpdate{ScanCode: "BND-001", To: models.DoneWorkUnitStatus, Actor: "op-1", ExpectedVersion: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, done.Version)
	assert.Equal(t, 50, done.Quantity)
	require.Len(t, done.History, 2)
	assert.Equal(t, models.CreatedWorkUnitStatus, done.History[0].From)
	assert.Equal(t, models.DoneWorkUnitStatus, done.History[1].To)

	detail, err := h.engine.GetOrder(ctx, plan.Order.ID)
	require.NoError(t, err)
	require.Len(t, detail.WorkUnits, 1)
	assert.Len(t, detail.WorkUnits[0].History, 2)

	// terminal
	_, err = h.engine.UpdateWorkUnitStatus(ctx, service.WorkUnitUpdate{ScanCode: "BND-001", To: models.RejectedWorkUnitStatus, Actor: "qc"})
	assert.True(t, errors.Is(err, models.ErrIllegalTransition))
	assert.Len(t, h.events.byKey(events.WorkUnitChanged), 3)
	assert.Empty(t, h.events.byKey(events.WorkUnitCompleted))
}

func TestCreateWorkUnitValidation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.createOrder(t, models.MethodSilkscreen, 10*24*time.Hour)
	other := h.createOrder(t, models.MethodDTF, 10*24*time.Hour)

	_, err := h.engine.CreateWorkUnit(ctx, service.WorkUnitRequest{OrderID: plan.Order.ID, ScanCode: "BND-1", Quantity: 10, Actor: "cutter"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  service.WorkUnitRequest
		want error
	}{
		{"DuplicateScanCode", service.WorkUnitRequest{OrderID: plan.Order.ID, ScanCode: "BND-1", Quantity: 10, Actor: "cutter"}, models.ErrDuplicateScanCode},
		{"ZeroQuantity", service.WorkUnitRequest{OrderID: plan.Order.ID, ScanCode: "BND-2", Actor: "cutter"}, models.ErrInvalidInput},
		{"NoScanCode", service.WorkUnitRequest{OrderID: plan.Order.ID, Quantity: 10, Actor: "cutter"}, models.ErrInvalidInput},
		{"UnknownOrder", service.WorkUnitRequest{OrderID: "nope", ScanCode: "BND-3", Quantity: 10, Actor: "cutter"}, models.ErrNotFound},
		{"ForeignStep", service.WorkUnitRequest{OrderID: plan.Order.ID, StepID: other.Steps[0].ID, ScanCode: "BND-4", Quantity: 10, Actor: "cutter"}, models.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateWorkUnit(ctx, tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestUpdateWorkUnitConcurrent(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.createOrder(t, models.MethodSilkscreen, 10*24*time.Hour)
	_, err := h.engine.CreateWorkUnit(ctx, service.WorkUnitRequest{OrderID: plan.Order.ID, ScanCode: "BND-9", Quantity: 12, Actor: "cutter"})
	require.NoError(t, err)

	const writers = 5
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.engine.UpdateWorkUnitStatus(ctx, service.WorkUnitUpdate{
				ScanCode:        "BND-9",
				To:              models.InProgressWorkUnitStatus,
				Actor:           "op-1",
				ExpectedVersion: 1,
			})
		}(i)
	}
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrConflictingUpdate):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, writers-1, conflicts)
	assert.Equal(t, float64(writers-1), h.engine.Metrics().Counter(service.ConflictsTotal).Value())

	detail, err := h.engine.GetOrder(ctx, plan.Order.ID)
	require.NoError(t, err)
	require.Len(t, detail.WorkUnits, 1)
	assert.Len(t, detail.WorkUnits[0].History, 1)
	assert.Equal(t, 2, detail.WorkUnits[0].Version)
}

func TestWorkUnitGatedByStep(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.createOrder(t, models.MethodSilkscreen, 10*24*time.Hour)
	frames := plan.Steps[1]
	_, err := h.engine.CreateWorkUnit(ctx, service.WorkUnitRequest{OrderID: plan.Order.ID, StepID: frames.ID, ScanCode: "SCR-1", Quantity: 30, Actor: "cutter"})
	require.NoError(t, err)
	move := func(to models.WorkUnitStatus) error {
		_, err := h.engine.UpdateWorkUnitStatus(ctx, service.WorkUnitUpdate{ScanCode: "SCR-1", To: to, Actor: "op-1"})
		return err
	}

	var illegal *models.IllegalTransitionError
	require.True(t, errors.As(move(models.InProgressWorkUnitStatus), &illegal), "step still PLANNED")
	assert.Equal(t, []string{string(models.RejectedWorkUnitStatus)}, illegal.Allowed)

	h.run(t, plan.Steps[0].ID)
	require.NoError(t, move(models.InProgressWorkUnitStatus))
	assert.True(t, errors.Is(move(models.DoneWorkUnitStatus), models.ErrIllegalTransition), "step only READY")

	_, err = h.engine.StartStep(ctx, frames.ID, "op-1")
	require.NoError(t, err)
	_, err = h.engine.BlockStep(ctx, frames.ID, "op-1", "torn mesh")
	require.NoError(t, err)
	assert.True(t, errors.Is(move(models.DoneWorkUnitStatus), models.ErrIllegalTransition), "step BLOCKED")

	_, err = h.engine.UnblockStep(ctx, frames.ID, "op-1")
	require.NoError(t, err)
	_, err = h.engine.StartStep(ctx, frames.ID, "op-1")
	require.NoError(t, err)
	require.NoError(t, move(models.DoneWorkUnitStatus))

	detail, err := h.engine.GetOrder(ctx, plan.Order.ID)
	require.NoError(t, err)
	require.Len(t, detail.WorkUnits, 1)
	assert.Len(t, detail.WorkUnits[0].History, 2)
	assert.Equal(t, float64(2), h.engine.Metrics().Counter(service.UnitTransitionsTotal).Value())
}

func TestWorkUnitCompletedOnFinalStep(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	plan := h.createOrder(t, models.MethodSilkscreen, 10*24*time.Hour)
	sewing, last := plan.Steps[3], plan.Steps[len(plan.Steps)-1]

	for _, u := range []service.WorkUnitRequest{
		{OrderID: plan.Order.ID, StepID: sewing.ID, ScanCode: "SEW-1", Quantity: 20, Actor: "cutter"},
		{OrderID: plan.Order.ID, StepID: last.ID, ScanCode: "FIN-1", Quantity: 20, Actor: "cutter"},
	} {
		_, err := h.engine.CreateWorkUnit(ctx, u)
		require.NoError(t, err)
	}
	finish := func(scanCode string) {
		for _, to := range []models.WorkUnitStatus{models.InProgressWorkUnitStatus, models.DoneWorkUnitStatus} {
			_, err := h.engine.UpdateWorkUnitStatus(ctx, service.WorkUnitUpdate{ScanCode: scanCode, To: to, Actor: "op-1"})
			require.NoError(t, err, "%s -> %s", scanCode, to)
		}
	}

	for _, s := range plan.Steps[:3] {
		h.run(t, s.ID)
	}
	_, err := h.engine.StartStep(ctx, sewing.ID, "op-1")
	require.NoError(t, err)
	finish("SEW-1")
	_, err = h.engine.CompleteStep(ctx, sewing.ID, "op-1")
	require.NoError(t, err)
	h.run(t, plan.Steps[4].ID)
	_, err = h.engine.StartStep(ctx, last.ID, "op-1")
	require.NoError(t, err)
	finish("FIN-1")

	completed := h.events.byKey(events.WorkUnitCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "FIN-1", completed[0].ScanCode)
	assert.Equal(t, []string{last.ID}, completed[0].StepIDs)
	assert.Equal(t, "plant-a", completed[0].Workspace)
}
