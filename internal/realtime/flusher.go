package realtime

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/cache"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/search"
)

// FlushReport is the outcome of flushing one workspace.
type FlushReport struct {
	POIs        cache.FlushResult           `json:"pois"`
	Connections cache.ConnectionFlushResult `json:"connections"`
}

// Flusher commits a workspace's cached state to Postgres. POIs go first
// because connections reference them.
type Flusher struct {
	pois   *cache.POICoordinator
	conns  *cache.ConnectionCoordinator
	search *search.Service
	hub    *Hub
}

// NewFlusher builds a flusher. search may be nil.
func NewFlusher(pois *cache.POICoordinator, conns *cache.ConnectionCoordinator, searchSvc *search.Service, hub *Hub) *Flusher {
	return &Flusher{pois: pois, conns: conns, search: searchSvc, hub: hub}
}

func (f *Flusher) Flush(ctx context.Context, workspaceID string) (FlushReport, error) {
	var report FlushReport
	poiResult, err := f.pois.Flush(ctx, workspaceID)
	if err != nil {
		return report, fmt.Errorf("flush workspace %s pois: %w", workspaceID, err)
	}
	report.POIs = poiResult

	connResult, err := f.conns.Flush(ctx, workspaceID)
	if err != nil {
		return report, fmt.Errorf("flush workspace %s connections: %w", workspaceID, err)
	}
	report.Connections = connResult

	if f.search != nil {
		records := make([]search.POIRecord, 0, len(poiResult.Committed))
		for _, poi := range poiResult.Committed {
			records = append(records, search.RecordFromPOI(poi))
		}
		f.search.Sync(records, poiResult.RemovedIDs)
	}

	log.Printf("realtime: flushed workspace %s: pois=%d new=%d removed=%d connections=%d new=%d removed=%d",
		workspaceID,
		len(poiResult.Committed), poiResult.NewlyPersisted, poiResult.Removed,
		len(connResult.Committed), connResult.NewlyPersisted, connResult.Removed,
	)
	return report, nil
}

// Run flushes every workspace with connected members each interval until ctx
// ends. A non-positive interval disables it.
func (f *Flusher) Run(ctx context.Context, interval, perWorkspace time.Duration) {
	if interval <= 0 {
		log.Println("realtime: periodic flush disabled")
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.flushActive(ctx, perWorkspace)
		}
	}
}

func (f *Flusher) flushActive(ctx context.Context, perWorkspace time.Duration) {
	if perWorkspace <= 0 {
		perWorkspace = 30 * time.Second
	}
	for _, workspaceID := range f.hub.ActiveWorkspaces() {
		if ctx.Err() != nil {
			return
		}
		flushCtx, cancel := context.WithTimeout(ctx, perWorkspace)
		if _, err := f.Flush(flushCtx, workspaceID); err != nil {
			log.Printf("realtime: periodic flush: %v", err)
		}
		cancel()
	}
}
