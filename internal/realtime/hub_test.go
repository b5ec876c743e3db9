package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
)

func TestHubMembership(t *testing.T) {
	hub := NewHub()
	a, b := newConn("a"), newConn("b")

	assert.True(t, hub.Join("ws-1", a))
	assert.False(t, hub.Join("ws-1", a))
	assert.True(t, hub.Join("ws-1", b))
	assert.True(t, hub.Join(chatRoom("ws-1"), a))
	assert.True(t, hub.Join("ws-2", b))

	assert.Equal(t, []string{"ws-1", "ws-2"}, hub.ActiveWorkspaces())
	assert.Equal(t, 2, hub.Broadcast("ws-1", []byte(`{}`), ""))
	assert.Equal(t, 1, hub.Broadcast("ws-1", []byte(`{}`), "a"))

	assert.Equal(t, []string{chatRoom("ws-1"), "ws-1"}, hub.LeaveAll("a"))
	assert.False(t, hub.Leave("ws-1", "a"))
	assert.True(t, hub.Leave("ws-2", "b"))
	assert.Equal(t, []string{"ws-1"}, hub.ActiveWorkspaces())

	hub.CloseAll()
	assert.True(t, b.closed)
	assert.False(t, a.closed)
}

func TestFlushActiveOnlyTouchesJoinedWorkspaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.AddProposal(store.Proposal{ID: "proposal-2"})
	_, _, _, err := f.mem.CreateWorkspace(ctx, store.Workspace{ID: uid("ws-2"), ProposalID: "proposal-2"}, nil)
	require.NoError(t, err)

	_, err = f.pois.Upsert(ctx, testWorkspace, store.POI{ID: uid("p1"), CreatedBy: "u"})
	require.NoError(t, err)
	_, err = f.pois.Upsert(ctx, uid("ws-2"), store.POI{ID: uid("p2"), CreatedBy: "u"})
	require.NoError(t, err)

	f.hub.Join(workspaceRoom(testWorkspace), newConn("a"))
	flusher := NewFlusher(f.pois, f.conns, nil, f.hub)
	flusher.flushActive(ctx, time.Second)

	_, ok := f.mem.POI(uid("p1"))
	assert.True(t, ok)
	_, ok = f.mem.POI(uid("p2"))
	assert.False(t, ok)
}

func TestFlusherRunStopsWithContext(t *testing.T) {
	f := newFixture(t)
	flusher := NewFlusher(f.pois, f.conns, nil, f.hub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		flusher.Run(ctx, 10*time.Millisecond, time.Second)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	// Disabled flusher returns immediately.
	flusher.Run(context.Background(), 0, time.Second)
}

func TestFlushReportsStoreFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.pois.Upsert(ctx, testWorkspace, store.POI{ID: uid("p1"), CreatedBy: "u"})
	require.NoError(t, err)
	f.mem.FlushPOIsErr = func(string) error { return assert.AnError }

	_, err = NewFlusher(f.pois, f.conns, nil, f.hub).Flush(ctx, testWorkspace)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}
