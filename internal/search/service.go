package search

import (
	"context"
	"log"
)

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  Searcher
	fallback Searcher
	index    Indexer
	pgfts    *PgFTS
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS) *Service {
	s := &Service{pgfts: pgfts}
	if meili != nil {
		s.primary = meili
		s.index = meili
	}
	if pgfts != nil {
		s.fallback = pgfts
	}
	return s
}

// Search tries the primary backend if healthy, otherwise falls back to PG FTS.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to pgfts: %v", err)
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: pgfts error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// Sync pushes the outcome of a flush to the index (fire-and-forget).
func (s *Service) Sync(upserts []POIRecord, deleted []string) {
	if s.index == nil || !s.index.Healthy() || (len(upserts) == 0 && len(deleted) == 0) {
		return
	}
	go func() {
		if err := s.index.IndexPOIs(upserts); err != nil {
			log.Printf("search: index %d pois: %v", len(upserts), err)
		}
		if len(deleted) == 0 {
			return
		}
		if err := s.index.DeletePOIs(deleted); err != nil {
			log.Printf("search: delete %d pois: %v", len(deleted), err)
		}
	}()
}

// ReindexAllFromPG pushes every persisted POI into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if s.index == nil || !s.index.Healthy() || s.pgfts == nil {
		return
	}
	records, err := s.pgfts.LoadAllRecords(ctx)
	if err != nil {
		log.Printf("search: reindex load failed: %v", err)
		return
	}
	if err := s.index.IndexPOIs(records); err != nil {
		log.Printf("search: reindex pois: %v", err)
	}
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
