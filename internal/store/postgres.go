package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetProposal returns sql.ErrNoRows (wrapped) when the proposal does not exist.
func (s *PostgresStore) GetProposal(ctx context.Context, proposalID string) (Proposal, error) {
	var (
		item       Proposal
		start, end sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, start_date, end_date
		FROM proposals
		WHERE id=$1
	`, proposalID).Scan(&item.ID, &item.Title, &start, &end)
	if err != nil {
		return Proposal{}, fmt.Errorf("get proposal: %w", err)
	}
	item.StartDate = nullTimePtr(start)
	item.EndDate = nullTimePtr(end)
	return item, nil
}

// FindWorkspaceByProposal returns nil when no workspace plans the proposal yet.
func (s *PostgresStore) FindWorkspaceByProposal(ctx context.Context, proposalID string) (*Workspace, error) {
	item, err := scanWorkspace(s.db.QueryRowContext(ctx, `
		SELECT id, proposal_id, name, created_at
		FROM workspaces
		WHERE proposal_id=$1
	`, proposalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find workspace by proposal: %w", err)
	}
	return &item, nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	item, err := scanWorkspace(s.db.QueryRowContext(ctx, `
		SELECT id, proposal_id, name, created_at
		FROM workspaces
		WHERE id=$1
	`, workspaceID))
	if err != nil {
		return Workspace{}, fmt.Errorf("get workspace: %w", err)
	}
	return item, nil
}

// CreateWorkspace inserts the workspace and its plan days in one transaction.
// When another caller already created a workspace for the same proposal the
// existing one is returned with created=false and nothing is written.
func (s *PostgresStore) CreateWorkspace(ctx context.Context, workspace Workspace, days []PlanDay) (Workspace, []PlanDay, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Workspace{}, nil, false, fmt.Errorf("begin create workspace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := scanWorkspace(tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (id, proposal_id, name)
		VALUES ($1, $2, $3)
		ON CONFLICT (proposal_id) DO NOTHING
		RETURNING id, proposal_id, name, created_at
	`, workspace.ID, workspace.ProposalID, workspace.Name))
	if errors.Is(err, sql.ErrNoRows) {
		existing, err := scanWorkspace(tx.QueryRowContext(ctx, `
			SELECT id, proposal_id, name, created_at
			FROM workspaces
			WHERE proposal_id=$1
		`, workspace.ProposalID))
		if err != nil {
			return Workspace{}, nil, false, fmt.Errorf("read existing workspace: %w", err)
		}
		existingDays, err := listPlanDays(ctx, tx, existing.ID)
		if err != nil {
			return Workspace{}, nil, false, err
		}
		if err := tx.Commit(); err != nil {
			return Workspace{}, nil, false, fmt.Errorf("commit create workspace: %w", err)
		}
		return existing, existingDays, false, nil
	}
	if err != nil {
		return Workspace{}, nil, false, fmt.Errorf("insert workspace: %w", err)
	}

	insertedDays := make([]PlanDay, 0, len(days))
	for _, day := range days {
		day.WorkspaceID = created.ID
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO plan_days (id, workspace_id, day_no, plan_date)
			VALUES ($1, $2, $3, $4)
		`, day.ID, day.WorkspaceID, day.DayNo, day.PlanDate); err != nil {
			return Workspace{}, nil, false, fmt.Errorf("insert plan day %d: %w", day.DayNo, err)
		}
		insertedDays = append(insertedDays, day)
	}

	if err := tx.Commit(); err != nil {
		return Workspace{}, nil, false, fmt.Errorf("commit create workspace: %w", err)
	}
	return created, insertedDays, true, nil
}

// DeleteWorkspace removes the workspace; plan days, POIs, connections and
// chat messages go with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id=$1`, workspaceID)
	if err != nil {
		return false, fmt.Errorf("delete workspace: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete workspace rows: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListPlanDays(ctx context.Context, workspaceID string) ([]PlanDay, error) {
	return listPlanDays(ctx, s.db, workspaceID)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func listPlanDays(ctx context.Context, q queryer, workspaceID string) ([]PlanDay, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, workspace_id, day_no, plan_date
		FROM plan_days
		WHERE workspace_id=$1
		ORDER BY day_no ASC
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list plan days: %w", err)
	}
	defer rows.Close()

	items := make([]PlanDay, 0)
	for rows.Next() {
		var (
			item PlanDay
			date sql.NullTime
		)
		if err := rows.Scan(&item.ID, &item.WorkspaceID, &item.DayNo, &date); err != nil {
			return nil, fmt.Errorf("scan plan day: %w", err)
		}
		item.PlanDate = nullTimePtr(date)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan days: %w", err)
	}
	return items, nil
}

func scanWorkspace(row *sql.Row) (Workspace, error) {
	var item Workspace
	err := row.Scan(&item.ID, &item.ProposalID, &item.Name, &item.CreatedAt)
	return item, err
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time
	return &t
}
