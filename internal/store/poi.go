package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ListPOIs loads every POI of the workspace: the ones scheduled on its plan
// days plus the MARKED ones owned by the workspace directly.
func (s *PostgresStore) ListPOIs(ctx context.Context, workspaceID string) ([]POI, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, plan_day_id, place_id, created_by, latitude, longitude, place_name, address, status, sequence
		FROM pois
		WHERE workspace_id=$1
		   OR plan_day_id IN (SELECT id FROM plan_days WHERE workspace_id=$1)
		ORDER BY plan_day_id NULLS FIRST, sequence ASC, created_at ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list pois: %w", err)
	}
	defer rows.Close()

	items := make([]POI, 0)
	for rows.Next() {
		var (
			item    POI
			planDay sql.NullString
			placeID sql.NullString
			status  string
		)
		if err := rows.Scan(
			&item.ID,
			&item.WorkspaceID,
			&planDay,
			&placeID,
			&item.CreatedBy,
			&item.Latitude,
			&item.Longitude,
			&item.PlaceName,
			&item.Address,
			&status,
			&item.Sequence,
		); err != nil {
			return nil, fmt.Errorf("scan poi: %w", err)
		}
		item.PlanDayID = nullStringPtr(planDay)
		item.PlaceID = nullStringPtr(placeID)
		item.Status = POIStatus(status)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pois: %w", err)
	}
	return items, nil
}

// FlushPOIs deletes the removed ids and upserts every given record keyed by id
// inside one transaction. A record whose id already belongs to another
// workspace aborts the flush with ErrForeignID.
func (s *PostgresStore) FlushPOIs(ctx context.Context, workspaceID string, upserts []POI, deletes []string) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin poi flush: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(deletes) > 0 {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM pois WHERE workspace_id=$1 AND id = ANY($2::uuid[])
		`, workspaceID, deletes); err != nil {
			return fmt.Errorf("delete removed pois: %w", err)
		}
	}

	if len(upserts) > 0 {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO pois (id, workspace_id, plan_day_id, place_id, created_by, latitude, longitude, place_name, address, status, sequence)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			ON CONFLICT (id) DO UPDATE SET
				plan_day_id=EXCLUDED.plan_day_id,
				place_id=EXCLUDED.place_id,
				latitude=EXCLUDED.latitude,
				longitude=EXCLUDED.longitude,
				place_name=EXCLUDED.place_name,
				address=EXCLUDED.address,
				status=EXCLUDED.status,
				sequence=EXCLUDED.sequence,
				updated_at=NOW()
			WHERE pois.workspace_id=EXCLUDED.workspace_id
		`)
		if err != nil {
			return fmt.Errorf("prepare poi upsert: %w", err)
		}
		defer stmt.Close()

		for _, item := range upserts {
			res, err := stmt.ExecContext(ctx,
				item.ID,
				workspaceID,
				item.PlanDayID,
				item.PlaceID,
				item.CreatedBy,
				item.Latitude,
				item.Longitude,
				item.PlaceName,
				item.Address,
				string(item.Status),
				item.Sequence,
			)
			if err != nil {
				return fmt.Errorf("upsert poi %s: %w", item.ID, err)
			}
			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("upsert poi %s: %w", item.ID, err)
			}
			if affected == 0 {
				return fmt.Errorf("upsert poi %s: %w", item.ID, ErrForeignID)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit poi flush: %w", err)
	}
	return nil
}

// ListConnections loads the persisted connections of every given plan day in
// one query.
func (s *PostgresStore) ListConnections(ctx context.Context, planDayIDs []string) ([]POIConnection, error) {
	if len(planDayIDs) == 0 {
		return []POIConnection{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, c.prev_poi_id, c.next_poi_id, c.plan_day_id, c.distance, c.duration
		FROM poi_connections c
		JOIN plan_days d ON d.id = c.plan_day_id
		WHERE d.id = ANY($1::uuid[])
		ORDER BY d.day_no ASC, c.created_at ASC
	`, planDayIDs)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	items := make([]POIConnection, 0)
	for rows.Next() {
		var (
			item               POIConnection
			distance, duration sql.NullInt64
		)
		if err := rows.Scan(&item.ID, &item.PrevPOIID, &item.NextPOIID, &item.PlanDayID, &distance, &duration); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		item.Distance = nullIntPtr(distance)
		item.Duration = nullIntPtr(duration)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate connections: %w", err)
	}
	return items, nil
}

// FlushConnections mirrors FlushPOIs for itinerary edges.
func (s *PostgresStore) FlushConnections(ctx context.Context, upserts []POIConnection, deletes []string) error {
	if len(upserts) == 0 && len(deletes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin connection flush: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if len(deletes) > 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM poi_connections WHERE id = ANY($1::uuid[])`, deletes); err != nil {
			return fmt.Errorf("delete removed connections: %w", err)
		}
	}

	for _, item := range upserts {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO poi_connections (id, prev_poi_id, next_poi_id, plan_day_id, distance, duration)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE SET
				prev_poi_id=EXCLUDED.prev_poi_id,
				next_poi_id=EXCLUDED.next_poi_id,
				plan_day_id=EXCLUDED.plan_day_id,
				distance=EXCLUDED.distance,
				duration=EXCLUDED.duration
		`, item.ID, item.PrevPOIID, item.NextPOIID, item.PlanDayID, item.Distance, item.Duration); err != nil {
			return fmt.Errorf("upsert connection %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit connection flush: %w", err)
	}
	return nil
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	s := value.String
	return &s
}

func nullIntPtr(value sql.NullInt64) *int {
	if !value.Valid {
		return nil
	}
	n := int(value.Int64)
	return &n
}
