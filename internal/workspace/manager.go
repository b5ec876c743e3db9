// Package workspace creates, looks up and removes collaborative workspaces
// together with their plan days.
package workspace

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/apperr"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
	"github.com/google/uuid"
)

type Store interface {
	GetProposal(ctx context.Context, proposalID string) (store.Proposal, error)
	FindWorkspaceByProposal(ctx context.Context, proposalID string) (*store.Workspace, error)
	CreateWorkspace(ctx context.Context, workspace store.Workspace, days []store.PlanDay) (store.Workspace, []store.PlanDay, bool, error)
	GetWorkspace(ctx context.Context, workspaceID string) (store.Workspace, error)
	ListPlanDays(ctx context.Context, workspaceID string) ([]store.PlanDay, error)
	DeleteWorkspace(ctx context.Context, workspaceID string) (bool, error)
}

// Evictor drops cached state of a workspace.
type Evictor interface {
	Evict(ctx context.Context, workspaceID string, planDayIDs []string) error
}

type Manager struct {
	store    Store
	evictors []Evictor
}

func NewManager(s Store, evictors ...Evictor) *Manager {
	return &Manager{store: s, evictors: evictors}
}

// CreateOrGet returns the workspace planning proposalID, creating it and its
// plan days when none exists yet. created reports whether this call wrote it.
func (m *Manager) CreateOrGet(ctx context.Context, proposalID, name string) (store.Workspace, []store.PlanDay, bool, error) {
	proposalID = strings.TrimSpace(proposalID)
	if proposalID == "" {
		return store.Workspace{}, nil, false, apperr.Validation("proposalId is required", nil)
	}

	existing, err := m.store.FindWorkspaceByProposal(ctx, proposalID)
	if err != nil {
		return store.Workspace{}, nil, false, err
	}
	if existing != nil {
		days, err := m.store.ListPlanDays(ctx, existing.ID)
		if err != nil {
			return store.Workspace{}, nil, false, err
		}
		return *existing, days, false, nil
	}

	proposal, err := m.store.GetProposal(ctx, proposalID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Workspace{}, nil, false, apperr.NotFound("proposal", proposalID)
	}
	if err != nil {
		return store.Workspace{}, nil, false, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = proposal.Title
	}
	ws, days, created, err := m.store.CreateWorkspace(ctx, store.Workspace{
		ID:         uuid.NewString(),
		ProposalID: proposalID,
		Name:       name,
	}, Partition(proposal.StartDate, proposal.EndDate))
	if err != nil {
		return store.Workspace{}, nil, false, fmt.Errorf("create workspace for proposal %s: %w", proposalID, err)
	}
	if created {
		log.Printf("workspace: created %s for proposal %s with %d plan days", ws.ID, proposalID, len(days))
	}
	return ws, days, created, nil
}

// Get returns the workspace with its plan days. Ids that are not uuids can
// never match a row and are reported as NotFound.
func (m *Manager) Get(ctx context.Context, workspaceID string) (store.Workspace, []store.PlanDay, error) {
	if !store.IsID(workspaceID) {
		return store.Workspace{}, nil, apperr.NotFound("workspace", workspaceID)
	}
	ws, err := m.store.GetWorkspace(ctx, workspaceID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Workspace{}, nil, apperr.NotFound("workspace", workspaceID)
	}
	if err != nil {
		return store.Workspace{}, nil, err
	}
	days, err := m.store.ListPlanDays(ctx, workspaceID)
	if err != nil {
		return store.Workspace{}, nil, err
	}
	return ws, days, nil
}

// Delete removes the workspace with everything it owns and drops its cache.
func (m *Manager) Delete(ctx context.Context, workspaceID string) error {
	_, days, err := m.Get(ctx, workspaceID)
	if err != nil {
		return err
	}
	deleted, err := m.store.DeleteWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}
	if !deleted {
		return apperr.NotFound("workspace", workspaceID)
	}

	dayIDs := make([]string, 0, len(days))
	for _, day := range days {
		dayIDs = append(dayIDs, day.ID)
	}
	for _, evictor := range m.evictors {
		if err := evictor.Evict(ctx, workspaceID, dayIDs); err != nil {
			log.Printf("workspace: evict cache for %s failed: %v", workspaceID, err)
		}
	}
	log.Printf("workspace: deleted %s", workspaceID)
	return nil
}
