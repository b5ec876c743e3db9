package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
)

type fakeSearcher struct {
	healthy bool
	results []Result
	err     error
	calls   int
}

func (f *fakeSearcher) Search(_ context.Context, _ Query) ([]Result, int, error) {
	f.calls++
	return f.results, len(f.results), f.err
}

func (f *fakeSearcher) Healthy() bool { return f.healthy }

type fakeIndexer struct {
	indexed chan []POIRecord
	deleted chan []string
}

func (f *fakeIndexer) IndexPOIs(records []POIRecord) error {
	f.indexed <- records
	return nil
}

func (f *fakeIndexer) DeletePOIs(ids []string) error {
	f.deleted <- ids
	return nil
}

func (f *fakeIndexer) Healthy() bool { return true }

func TestNormalizeComposesAndCollapses(t *testing.T) {
	decomposed := "\u1112\u1161\u11ab  \ub77c\uc0b0\n"
	assert.Equal(t, "\ud55c \ub77c\uc0b0", Normalize(decomposed))
	assert.Equal(t, "", Normalize("   "))
}

func TestRecordFromPOINormalizesText(t *testing.T) {
	day := "d1"
	rec := RecordFromPOI(store.POI{ID: "p1", WorkspaceID: "ws", PlaceName: " Seongsan \t Ilchulbong ", Address: "Jeju", Status: store.StatusScheduled, PlanDayID: &day})
	assert.Equal(t, "Seongsan Ilchulbong", rec.PlaceName)
	assert.Equal(t, "SCHEDULED", rec.Status)
}

func TestSearchPrefersPrimary(t *testing.T) {
	primary := &fakeSearcher{healthy: true, results: []Result{{ID: "p1"}}}
	fallback := &fakeSearcher{healthy: true}
	s := &Service{primary: primary, fallback: fallback}

	resp := s.Search(context.Background(), Query{WorkspaceID: "ws", Text: "beach"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "beach", resp.Query)
	assert.Zero(t, fallback.calls)
}

func TestSearchFallsBackOnError(t *testing.T) {
	primary := &fakeSearcher{healthy: true, err: errors.New("boom")}
	fallback := &fakeSearcher{healthy: true, results: []Result{{ID: "p2"}}}
	s := &Service{primary: primary, fallback: fallback}

	resp := s.Search(context.Background(), Query{WorkspaceID: "ws", Text: "beach"})
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "p2", resp.Results[0].ID)
}

func TestSearchSkipsUnhealthyPrimary(t *testing.T) {
	primary := &fakeSearcher{healthy: false}
	fallback := &fakeSearcher{healthy: true}
	s := &Service{primary: primary, fallback: fallback}

	resp := s.Search(context.Background(), Query{WorkspaceID: "ws", Text: "beach"})
	assert.NotNil(t, resp.Results)
	assert.Empty(t, resp.Results)
	assert.Zero(t, primary.calls)
	assert.Equal(t, 1, fallback.calls)
}

func TestSearchWithoutBackends(t *testing.T) {
	s := NewService(nil, nil)
	resp := s.Search(context.Background(), Query{WorkspaceID: "ws", Text: "x"})
	assert.NotNil(t, resp.Results)
	s.Sync([]POIRecord{{ID: "p1"}}, nil)
	s.ReindexAllFromPG(context.Background())
}

func TestSyncIndexesAndDeletes(t *testing.T) {
	idx := &fakeIndexer{indexed: make(chan []POIRecord, 1), deleted: make(chan []string, 1)}
	s := &Service{index: idx}

	s.Sync([]POIRecord{{ID: "p1"}}, []string{"p9"})
	select {
	case got := <-idx.indexed:
		assert.Equal(t, "p1", got[0].ID)
	case <-time.After(time.Second):
		t.Fatal("index was not called")
	}
	select {
	case got := <-idx.deleted:
		assert.Equal(t, []string{"p9"}, got)
	case <-time.After(time.Second):
		t.Fatal("delete was not called")
	}
}

func TestPgFTSBlankQueryShortCircuits(t *testing.T) {
	p := NewPgFTS(nil)
	results, total, err := p.Search(context.Background(), Query{WorkspaceID: "ws", Text: "  "})
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Zero(t, total)

	results, _, err = p.Search(context.Background(), Query{Text: "beach"})
	require.NoError(t, err)
	assert.Nil(t, results)
}

func TestSearchRequestScopesWorkspace(t *testing.T) {
	req := searchRequest(Query{WorkspaceID: "ws-1", Text: "  sea  side "})
	assert.Equal(t, idxPOIs, req.IndexUID)
	assert.Equal(t, "sea side", req.Query)
	assert.Equal(t, int64(20), req.Limit)
	assert.Equal(t, []string{`workspaceId = "ws-1"`}, req.Filter)
}

func TestHitToResultPrefersFormatted(t *testing.T) {
	raw := func(v any) json.RawMessage {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return b
	}
	hit := meili.Hit{
		"id":          raw("p1"),
		"workspaceId": raw("ws-1"),
		"placeName":   raw("Hallasan"),
		"address":     raw("Jeju-si"),
		"status":      raw("MARKED"),
		"latitude":    raw(33.36),
		"_formatted":  raw(map[string]string{"placeName": "<mark>Halla</mark>san"}),
	}
	r := hitToResult(hit)
	assert.Equal(t, "p1", r.ID)
	assert.Equal(t, "<mark>Halla</mark>san", r.PlaceName)
	assert.Equal(t, "Jeju-si", r.Snippet)
	assert.InDelta(t, 33.36, r.Latitude, 1e-9)
	assert.Zero(t, r.Longitude)
}
