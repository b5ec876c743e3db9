// Package search finds persisted POIs of a workspace by name or address.
// Meilisearch serves queries when reachable; Postgres full-text search is
// the fallback.
package search

import (
	"context"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
)

// Result is a single search hit returned to the caller.
type Result struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspaceId"`
	PlaceName   string  `json:"placeName"`
	Address     string  `json:"address"`
	Snippet     string  `json:"snippet"`
	Status      string  `json:"status"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Query describes a search request. WorkspaceID is mandatory.
type Query struct {
	WorkspaceID string
	Text        string
	Limit       int
	Offset      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

type Indexer interface {
	IndexPOIs(records []POIRecord) error
	DeletePOIs(ids []string) error
	Healthy() bool
}

// POIRecord is the data we index for a POI.
type POIRecord struct {
	ID          string  `json:"id"`
	WorkspaceID string  `json:"workspaceId"`
	PlaceName   string  `json:"placeName"`
	Address     string  `json:"address"`
	Status      string  `json:"status"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

func RecordFromPOI(p store.POI) POIRecord {
	return POIRecord{
		ID:          p.ID,
		WorkspaceID: p.WorkspaceID,
		PlaceName:   Normalize(p.PlaceName),
		Address:     Normalize(p.Address),
		Status:      string(p.Status),
		Latitude:    p.Latitude,
		Longitude:   p.Longitude,
	}
}
