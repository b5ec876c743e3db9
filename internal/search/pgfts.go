package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true; if Postgres is down, the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

const ftsWhere = `p.workspace_id = $2 AND p.fts @@ plainto_tsquery('simple', $1)`

// Search ranks the persisted POIs of one workspace against the generated
// fts column, with ts_headline over the address as the snippet.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	text := Normalize(q.Text)
	if text == "" || strings.TrimSpace(q.WorkspaceID) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	args := []any{text, q.WorkspaceID}

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM pois p WHERE `+ftsWhere, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT p.id::text, p.workspace_id::text, p.place_name, p.address, p.status, p.latitude, p.longitude,
			ts_headline('simple', p.address, plainto_tsquery('simple', $1), 'MaxFragments=1,MaxWords=30') AS snippet
		FROM pois p
		WHERE %s
		ORDER BY ts_rank(p.fts, plainto_tsquery('simple', $1)) DESC, p.place_name
		LIMIT %d OFFSET %d`, ftsWhere, limit, offset), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		if err := rows.Scan(&r.ID, &r.WorkspaceID, &r.PlaceName, &r.Address, &r.Status, &r.Latitude, &r.Longitude, &r.Snippet); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		results = append(results, r)
	}
	return results, total, rows.Err()
}

// LoadAllRecords returns every persisted POI for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]POIRecord, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id::text, workspace_id::text, place_name, address, status, latitude, longitude
		FROM pois
	`)
	if err != nil {
		return nil, fmt.Errorf("load pois: %w", err)
	}
	defer rows.Close()

	records := make([]POIRecord, 0)
	for rows.Next() {
		var r POIRecord
		if err := rows.Scan(&r.ID, &r.WorkspaceID, &r.PlaceName, &r.Address, &r.Status, &r.Latitude, &r.Longitude); err != nil {
			return nil, fmt.Errorf("scan poi: %w", err)
		}
		r.PlaceName = Normalize(r.PlaceName)
		r.Address = Normalize(r.Address)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pois: %w", err)
	}
	return records, nil
}
