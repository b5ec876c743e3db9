package workspace

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/apperr"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store/storetest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvictor struct {
	mu    sync.Mutex
	calls []string
	days  [][]string
	err   error
}

func (f *fakeEvictor) Evict(_ context.Context, workspaceID string, planDayIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, workspaceID)
	f.days = append(f.days, planDayIDs)
	return f.err
}

func newTestManager(t *testing.T) (*Manager, *storetest.Memory, *fakeEvictor) {
	t.Helper()
	mem := storetest.NewMemory()
	mem.AddProposal(store.Proposal{ID: "proposal-1", Title: "Jeju trip", StartDate: date(2026, 5, 1), EndDate: date(2026, 5, 3)})
	mem.AddProposal(store.Proposal{ID: "proposal-undated", Title: "Someday"})
	ev := &fakeEvictor{}
	return NewManager(mem, ev), mem, ev
}

func TestCreateOrGetCreatesWorkspaceWithPlanDays(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	ws, days, created, err := m.CreateOrGet(ctx, "proposal-1", "Jeju")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "proposal-1", ws.ProposalID)
	assert.Equal(t, "Jeju", ws.Name)
	require.Len(t, days, 3)
	for i, day := range days {
		assert.Equal(t, ws.ID, day.WorkspaceID)
		assert.Equal(t, i+1, day.DayNo)
	}
}

func TestCreateOrGetIsIdempotent(t *testing.T) {
	m, _, _ := newTestManager(t)
	ctx := context.Background()

	first, firstDays, created, err := m.CreateOrGet(ctx, "proposal-1", "Jeju")
	require.NoError(t, err)
	require.True(t, created)

	second, secondDays, created, err := m.CreateOrGet(ctx, "proposal-1", "Another name")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Jeju", second.Name)
	require.Len(t, secondDays, len(firstDays))
	for i := range firstDays {
		assert.Equal(t, firstDays[i].ID, secondDays[i].ID)
	}
}

func TestCreateOrGetConcurrentCallersShareOneWorkspace(t *testing.T) {
	m, mem, _ := newTestManager(t)
	ctx := context.Background()

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ws, _, _, err := m.CreateOrGet(ctx, "proposal-1", "Jeju")
			if err == nil {
				ids[i] = ws.ID
			}
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	days, err := mem.ListPlanDays(ctx, ids[0])
	require.NoError(t, err)
	assert.Len(t, days, 3)
}

func TestCreateOrGetUsesProposalTitleWhenNameBlank(t *testing.T) {
	m, _, _ := newTestManager(t)
	ws, days, _, err := m.CreateOrGet(context.Background(), "proposal-undated", "  ")
	require.NoError(t, err)
	assert.Equal(t, "Someday", ws.Name)
	assert.Empty(t, days)
}

func TestCreateOrGetUnknownProposal(t *testing.T) {
	m, mem, _ := newTestManager(t)
	_, _, _, err := m.CreateOrGet(context.Background(), "missing", "x")
	require.Error(t, err)
	assert.True(t, apperr.IsNotFound(err))
	assert.Zero(t, mem.CallCount("CreateWorkspace"))
}

func TestCreateOrGetRequiresProposalID(t *testing.T) {
	m, _, _ := newTestManager(t)
	_, _, _, err := m.CreateOrGet(context.Background(), "", "x")
	assert.True(t, apperr.IsValidation(err))
}

func TestGetUnknownWorkspace(t *testing.T) {
	m, mem, _ := newTestManager(t)
	_, _, err := m.Get(context.Background(), uuid.NewString())
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, 1, mem.CallCount("GetWorkspace"))
}

func TestGetMalformedWorkspaceIDIsNotFound(t *testing.T) {
	m, mem, _ := newTestManager(t)
	for _, id := range []string{"nope", "ws-1", "", "6F1C2A9E-3B4D-4C5E-8F70-1A2B3C4D5E6F"} {
		_, _, err := m.Get(context.Background(), id)
		assert.True(t, apperr.IsNotFound(err), "id %q: %v", id, err)
	}
	assert.Zero(t, mem.CallCount("GetWorkspace"))

	err := m.Delete(context.Background(), "nope")
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteCascadesAndEvicts(t *testing.T) {
	m, mem, ev := newTestManager(t)
	ctx := context.Background()

	ws, days, _, err := m.CreateOrGet(ctx, "proposal-1", "Jeju")
	require.NoError(t, err)
	dayID := days[0].ID
	poiID := uuid.NewString()
	mem.SeedPOIs(store.POI{ID: poiID, WorkspaceID: ws.ID, CreatedBy: "u1", Status: store.StatusScheduled, Sequence: 1, PlanDayID: &dayID})

	require.NoError(t, m.Delete(ctx, ws.ID))

	_, _, err = m.Get(ctx, ws.ID)
	assert.True(t, apperr.IsNotFound(err))
	_, ok := mem.POI(poiID)
	assert.False(t, ok)

	require.Equal(t, []string{ws.ID}, ev.calls)
	assert.Len(t, ev.days[0], 3)
	assert.Contains(t, ev.days[0], dayID)

	err = m.Delete(ctx, ws.ID)
	assert.True(t, apperr.IsNotFound(err))
}

func TestDeleteIgnoresEvictionFailure(t *testing.T) {
	m, _, ev := newTestManager(t)
	ev.err = errors.New("redis down")
	ws, _, _, err := m.CreateOrGet(context.Background(), "proposal-1", "Jeju")
	require.NoError(t, err)
	assert.NoError(t, m.Delete(context.Background(), ws.ID))
}
