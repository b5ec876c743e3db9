package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/apperr"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/cache"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/chat"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/realtime"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/search"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/workspace"
)

// PingFunc reports whether a backing service is reachable.
type PingFunc func(ctx context.Context) error

// Deps are the components the HTTP surface is wired to.
type Deps struct {
	PingDatabase PingFunc
	PingRedis    PingFunc
	Workspaces   *workspace.Manager
	POIs         *cache.POICoordinator
	Connections  *cache.ConnectionCoordinator
	Flusher      *realtime.Flusher
	Search       *search.Service
	Chat         *chat.Service
	Realtime     http.Handler
}

// Service is the REST-facing facade over the workspace engine.
type Service struct {
	deps Deps
}

func NewService(deps Deps) *Service {
	return &Service{deps: deps}
}

type WorkspaceView struct {
	Workspace store.Workspace `json:"workspace"`
	PlanDays  []store.PlanDay `json:"planDays"`
}

type Snapshot struct {
	POIs        []store.POI           `json:"pois"`
	Connections []store.POIConnection `json:"connections"`
}

// Ready runs every configured dependency check and returns the per-check
// error, nil for healthy ones.
func (s *Service) Ready(ctx context.Context) map[string]error {
	checks := map[string]error{}
	if s.deps.PingDatabase != nil {
		checks["database"] = s.deps.PingDatabase(ctx)
	}
	if s.deps.PingRedis != nil {
		checks["redis"] = s.deps.PingRedis(ctx)
	}
	return checks
}

func (s *Service) CreateWorkspace(ctx context.Context, proposalID, name string) (WorkspaceView, bool, error) {
	ws, days, created, err := s.deps.Workspaces.CreateOrGet(ctx, proposalID, name)
	if err != nil {
		return WorkspaceView{}, false, err
	}
	return WorkspaceView{Workspace: ws, PlanDays: days}, created, nil
}

func (s *Service) GetWorkspace(ctx context.Context, workspaceID string) (WorkspaceView, error) {
	ws, days, err := s.deps.Workspaces.Get(ctx, workspaceID)
	if err != nil {
		return WorkspaceView{}, err
	}
	return WorkspaceView{Workspace: ws, PlanDays: days}, nil
}

func (s *Service) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	return s.deps.Workspaces.Delete(ctx, workspaceID)
}

func (s *Service) Snapshot(ctx context.Context, workspaceID string) (Snapshot, error) {
	if _, _, err := s.deps.Workspaces.Get(ctx, workspaceID); err != nil {
		return Snapshot{}, err
	}
	pois, err := s.deps.POIs.GetAll(ctx, workspaceID)
	if err != nil {
		return Snapshot{}, err
	}
	connections, err := s.deps.Connections.HydrateAll(ctx, workspaceID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{POIs: pois, Connections: connections}, nil
}

func (s *Service) Flush(ctx context.Context, workspaceID string) (realtime.FlushReport, error) {
	if _, _, err := s.deps.Workspaces.Get(ctx, workspaceID); err != nil {
		return realtime.FlushReport{}, err
	}
	return s.deps.Flusher.Flush(ctx, workspaceID)
}

func (s *Service) Search(ctx context.Context, q search.Query) (search.Response, error) {
	if strings.TrimSpace(q.Text) == "" {
		return search.Response{}, apperr.Validation("query parameter q is required", nil)
	}
	if _, _, err := s.deps.Workspaces.Get(ctx, q.WorkspaceID); err != nil {
		return search.Response{}, err
	}
	if s.deps.Search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.deps.Search.Search(ctx, q), nil
}

func (s *Service) Messages(ctx context.Context, workspaceID string, limit int) ([]store.ChatMessage, error) {
	if _, _, err := s.deps.Workspaces.Get(ctx, workspaceID); err != nil {
		return nil, err
	}
	items, err := s.deps.Chat.History(ctx, workspaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return items, nil
}
