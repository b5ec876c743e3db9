package cache

import (
	"context"
	"testing"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/apperr"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intptr(n int) *int { return &n }

// edge builds a connection from readable names; a blank id stays blank.
func edge(id, prev, next, day string) store.POIConnection {
	ref := func(name string) string {
		if name == "" {
			return ""
		}
		return uid(name)
	}
	return store.POIConnection{ID: ref(id), PrevPOIID: ref(prev), NextPOIID: ref(next), PlanDayID: day, Distance: intptr(1200), Duration: intptr(300)}
}

func TestHydrateAllLoadsColdDaysInOneQuery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.SeedConnections(edge("c1", "a", "b", day1), edge("c2", "x", "y", day2))

	all, err := f.conns.HydrateAll(ctx, testWorkspace)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 1, f.mem.CallCount("ListConnections"))

	all, err = f.conns.HydrateAll(ctx, testWorkspace)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, 1, f.mem.CallCount("ListConnections"))

	first, err := f.conns.GetAll(ctx, day1)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, uid("c1"), first[0].ID)
	assert.Equal(t, 1200, *first[0].Distance)
}

func TestHydrateAllMixesWarmAndColdDays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.SeedConnections(edge("c1", "a", "b", day1), edge("c2", "x", "y", day2))

	_, err := f.conns.GetAll(ctx, day1)
	require.NoError(t, err)
	_, err = f.conns.Upsert(ctx, edge("c3", "b", "a", day1))
	require.NoError(t, err)

	all, err := f.conns.HydrateAll(ctx, testWorkspace)
	require.NoError(t, err)
	ids := make([]string, 0, len(all))
	for _, c := range all {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{uid("c1"), uid("c2"), uid("c3")}, ids)
	assert.Equal(t, 2, f.mem.CallCount("ListConnections"))
}

func TestConnectionUpsertValidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.conns.Upsert(ctx, edge("c1", "a", "a", day1))
	assert.True(t, apperr.IsValidation(err))

	_, err = f.conns.Upsert(ctx, edge("", "a", "b", day1))
	assert.True(t, apperr.IsValidation(err))

	for _, bad := range []store.POIConnection{
		{ID: "c1", PrevPOIID: uid("a"), NextPOIID: uid("b"), PlanDayID: day1},
		{ID: uid("c1"), PrevPOIID: "a", NextPOIID: uid("b"), PlanDayID: day1},
		{ID: uid("c1"), PrevPOIID: uid("a"), NextPOIID: "b", PlanDayID: day1},
		{ID: uid("c1"), PrevPOIID: uid("a"), NextPOIID: uid("b"), PlanDayID: "d1"},
	} {
		_, err = f.conns.Upsert(ctx, bad)
		assert.True(t, apperr.IsValidation(err), "%+v: %v", bad, err)
	}

	bad := edge("c1", "a", "b", day1)
	bad.Distance = intptr(-5)
	_, err = f.conns.Upsert(ctx, bad)
	assert.True(t, apperr.IsValidation(err))
}

func TestConnectionRemoveAndTombstone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.SeedConnections(edge("c1", "a", "b", day1))

	prior, err := f.conns.Remove(ctx, day1, uid("c1"))
	require.NoError(t, err)
	assert.Equal(t, uid("a"), prior.PrevPOIID)

	_, err = f.conns.Remove(ctx, day1, uid("c1"))
	assert.True(t, apperr.IsNotFound(err))

	// The emptied day stays loaded and the tombstone keeps c1 out.
	items, err := f.conns.GetAll(ctx, day1)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 1, f.mem.CallCount("ListConnections"))
	members, err := f.mr.Members(connectionRemovedKey(day1))
	require.NoError(t, err)
	assert.Equal(t, []string{uid("c1")}, members)
}

func TestRemoveByPOICascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, c := range []store.POIConnection{edge("c1", "a", "b", day1), edge("c2", "b", "c", day1), edge("c3", "c", "d", day1)} {
		_, err := f.conns.Upsert(ctx, c)
		require.NoError(t, err)
	}

	removed, err := f.conns.RemoveByPOI(ctx, day1, uid("b"))
	require.NoError(t, err)
	ids := []string{}
	for _, c := range removed {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{uid("c1"), uid("c2")}, ids)

	left, err := f.conns.GetAll(ctx, day1)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, uid("c3"), left[0].ID)

	none, err := f.conns.RemoveByPOI(ctx, day1, "zzz")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestConnectionFlushAfterPOIFlush(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mark(t, "a", "b", "c")
	f.schedule(t, day1, "a", "b", "c")
	_, err := f.conns.Upsert(ctx, edge("c1", "a", "b", day1))
	require.NoError(t, err)
	_, err = f.conns.Upsert(ctx, edge("c2", "b", "c", day1))
	require.NoError(t, err)

	_, err = f.pois.Flush(ctx, testWorkspace)
	require.NoError(t, err)
	result, err := f.conns.Flush(ctx, testWorkspace)
	require.NoError(t, err)
	assert.Len(t, result.Committed, 2)
	assert.Equal(t, 2, result.NewlyPersisted)
	assert.True(t, result.Evicted)
	_, ok := f.mem.Connection(uid("c1"))
	assert.True(t, ok)

	_, err = f.conns.Remove(ctx, day1, uid("c2"))
	require.NoError(t, err)
	result, err = f.conns.Flush(ctx, testWorkspace)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.Zero(t, result.NewlyPersisted)
	_, ok = f.mem.Connection(uid("c2"))
	assert.False(t, ok)
	assert.False(t, f.mr.Exists(connectionLoadedKey(day1)))

	empty, err := f.conns.Flush(ctx, testWorkspace)
	require.NoError(t, err)
	assert.Empty(t, empty.Committed)
	assert.Zero(t, empty.Removed)
}

func TestConnectionEvict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.conns.Upsert(ctx, edge("c1", "a", "b", day1))
	require.NoError(t, err)
	require.NoError(t, f.conns.Evict(ctx, testWorkspace, []string{day1, day2}))
	assert.False(t, f.mr.Exists(connectionHashKey(day1)))
}

func TestEmptyDayIsLoadedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		items, err := f.conns.GetAll(ctx, day1)
		require.NoError(t, err)
		assert.Empty(t, items)
	}
	_, err := f.conns.HydrateAll(ctx, testWorkspace)
	require.NoError(t, err)
	// day2 was still cold; both days are loaded after a single query each.
	assert.Equal(t, 2, f.mem.CallCount("ListConnections"))
	assert.True(t, f.mr.Exists(connectionLoadedKey(day1)))
	assert.True(t, f.mr.Exists(connectionLoadedKey(day2)))

	_, err = f.conns.HydrateAll(ctx, testWorkspace)
	require.NoError(t, err)
	assert.Equal(t, 2, f.mem.CallCount("ListConnections"))

	// Nothing to commit, so the days stay loaded.
	result, err := f.conns.Flush(ctx, testWorkspace)
	require.NoError(t, err)
	assert.False(t, result.Evicted)
	assert.True(t, f.mr.Exists(connectionLoadedKey(day1)))

	require.NoError(t, f.conns.Evict(ctx, testWorkspace, []string{day1, day2}))
	assert.False(t, f.mr.Exists(connectionLoadedKey(day1)))
	assert.False(t, f.mr.Exists(connectionLoadedKey(day2)))
	_, err = f.conns.GetAll(ctx, day1)
	require.NoError(t, err)
	assert.Equal(t, 3, f.mem.CallCount("ListConnections"))
}
