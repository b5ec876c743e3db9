// Package storetest provides an in-memory stand-in for the Postgres store,
// used by tests of the packages built on top of it.
package storetest

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
)

// Memory mirrors PostgresStore semantics closely enough for unit tests:
// uuid columns, unique workspace per proposal, cascading deletes,
// transactional flushes and the POI status CHECK constraint.
type Memory struct {
	mu sync.Mutex

	proposals   map[string]store.Proposal
	workspaces  map[string]store.Workspace
	planDays    map[string]store.PlanDay
	pois        map[string]store.POI
	connections map[string]store.POIConnection
	messages    []store.ChatMessage

	// Optional hooks; a non-nil return aborts the call before any write.
	FlushPOIsErr        func(workspaceID string) error
	FlushConnectionsErr func() error

	Calls map[string]int
	clock time.Time
}

func NewMemory() *Memory {
	return &Memory{
		proposals:   map[string]store.Proposal{},
		workspaces:  map[string]store.Workspace{},
		planDays:    map[string]store.PlanDay{},
		pois:        map[string]store.POI{},
		connections: map[string]store.POIConnection{},
		Calls:       map[string]int{},
		clock:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *Memory) called(name string) {
	m.Calls[name]++
}

// CallCount reports how many times the named store method ran.
func (m *Memory) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

func (m *Memory) now() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *Memory) AddProposal(p store.Proposal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.proposals[p.ID] = p
}

// SeedPOIs writes records directly, bypassing flush.
func (m *Memory) SeedPOIs(items ...store.POI) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.pois[item.ID] = item
	}
}

func (m *Memory) SeedConnections(items ...store.POIConnection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, item := range items {
		m.connections[item.ID] = item
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) GetProposal(_ context.Context, proposalID string) (store.Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("GetProposal")
	p, ok := m.proposals[proposalID]
	if !ok {
		return store.Proposal{}, fmt.Errorf("get proposal: %w", sql.ErrNoRows)
	}
	return p, nil
}

func (m *Memory) FindWorkspaceByProposal(_ context.Context, proposalID string) (*store.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("FindWorkspaceByProposal")
	for _, ws := range m.workspaces {
		if ws.ProposalID == proposalID {
			found := ws
			return &found, nil
		}
	}
	return nil, nil
}

func (m *Memory) GetWorkspace(_ context.Context, workspaceID string) (store.Workspace, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("GetWorkspace")
	if err := checkID("get workspace", workspaceID); err != nil {
		return store.Workspace{}, err
	}
	ws, ok := m.workspaces[workspaceID]
	if !ok {
		return store.Workspace{}, fmt.Errorf("get workspace: %w", sql.ErrNoRows)
	}
	return ws, nil
}

func (m *Memory) CreateWorkspace(_ context.Context, workspace store.Workspace, days []store.PlanDay) (store.Workspace, []store.PlanDay, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("CreateWorkspace")
	if err := checkID("insert workspace", workspace.ID); err != nil {
		return store.Workspace{}, nil, false, err
	}
	for _, day := range days {
		if err := checkID("insert plan day", day.ID); err != nil {
			return store.Workspace{}, nil, false, err
		}
	}
	if _, ok := m.proposals[workspace.ProposalID]; !ok {
		return store.Workspace{}, nil, false, fmt.Errorf("insert workspace: proposal %s violates foreign key", workspace.ProposalID)
	}
	for _, ws := range m.workspaces {
		if ws.ProposalID == workspace.ProposalID {
			return ws, m.listPlanDays(ws.ID), false, nil
		}
	}
	workspace.CreatedAt = m.now()
	m.workspaces[workspace.ID] = workspace
	inserted := make([]store.PlanDay, 0, len(days))
	for _, day := range days {
		day.WorkspaceID = workspace.ID
		m.planDays[day.ID] = day
		inserted = append(inserted, day)
	}
	return workspace, inserted, true, nil
}

func (m *Memory) DeleteWorkspace(_ context.Context, workspaceID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("DeleteWorkspace")
	if err := checkID("delete workspace", workspaceID); err != nil {
		return false, err
	}
	if _, ok := m.workspaces[workspaceID]; !ok {
		return false, nil
	}
	delete(m.workspaces, workspaceID)
	for id, day := range m.planDays {
		if day.WorkspaceID != workspaceID {
			continue
		}
		delete(m.planDays, id)
		for cid, c := range m.connections {
			if c.PlanDayID == id {
				delete(m.connections, cid)
			}
		}
	}
	for id, poi := range m.pois {
		if poi.WorkspaceID == workspaceID {
			m.deletePOI(id)
		}
	}
	kept := m.messages[:0]
	for _, msg := range m.messages {
		if msg.WorkspaceID != workspaceID {
			kept = append(kept, msg)
		}
	}
	m.messages = kept
	return true, nil
}

func (m *Memory) ListPlanDays(_ context.Context, workspaceID string) ([]store.PlanDay, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("ListPlanDays")
	if err := checkID("list plan days", workspaceID); err != nil {
		return nil, err
	}
	return m.listPlanDays(workspaceID), nil
}

func (m *Memory) listPlanDays(workspaceID string) []store.PlanDay {
	items := make([]store.PlanDay, 0)
	for _, day := range m.planDays {
		if day.WorkspaceID == workspaceID {
			items = append(items, day)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].DayNo < items[j].DayNo })
	return items
}

func (m *Memory) ListPOIs(_ context.Context, workspaceID string) ([]store.POI, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("ListPOIs")
	if err := checkID("list pois", workspaceID); err != nil {
		return nil, err
	}
	items := make([]store.POI, 0)
	for _, poi := range m.pois {
		if poi.WorkspaceID == workspaceID {
			items = append(items, poi)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		di, dj := deref(items[i].PlanDayID), deref(items[j].PlanDayID)
		if di != dj {
			return di < dj
		}
		if items[i].Sequence != items[j].Sequence {
			return items[i].Sequence < items[j].Sequence
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// POI returns the persisted record, if any.
func (m *Memory) POI(id string) (store.POI, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	poi, ok := m.pois[id]
	return poi, ok
}

func (m *Memory) FlushPOIs(_ context.Context, workspaceID string, upserts []store.POI, deletes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("FlushPOIs")
	if m.FlushPOIsErr != nil {
		if err := m.FlushPOIsErr(workspaceID); err != nil {
			return err
		}
	}
	if err := checkID("flush pois", workspaceID); err != nil {
		return err
	}
	for _, id := range deletes {
		if err := checkID("delete removed pois", id); err != nil {
			return err
		}
	}
	for _, item := range upserts {
		if err := checkID("upsert poi", item.ID); err != nil {
			return err
		}
		if !item.Valid() {
			return fmt.Errorf("upsert poi %s: violates check constraint pois_status_shape", item.ID)
		}
		if item.PlanDayID != nil {
			if err := checkID("upsert poi", *item.PlanDayID); err != nil {
				return err
			}
			if _, ok := m.planDays[*item.PlanDayID]; !ok {
				return fmt.Errorf("upsert poi %s: plan day %s violates foreign key", item.ID, *item.PlanDayID)
			}
		}
		if existing, ok := m.pois[item.ID]; ok && existing.WorkspaceID != workspaceID {
			return fmt.Errorf("upsert poi %s: %w", item.ID, store.ErrForeignID)
		}
	}

	for _, id := range deletes {
		if poi, ok := m.pois[id]; ok && poi.WorkspaceID == workspaceID {
			m.deletePOI(id)
		}
	}
	for _, item := range upserts {
		item.WorkspaceID = workspaceID
		m.pois[item.ID] = item
	}
	return nil
}

func (m *Memory) deletePOI(id string) {
	delete(m.pois, id)
	for cid, c := range m.connections {
		if c.PrevPOIID == id || c.NextPOIID == id {
			delete(m.connections, cid)
		}
	}
}

func (m *Memory) ListConnections(_ context.Context, planDayIDs []string) ([]store.POIConnection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("ListConnections")
	for _, id := range planDayIDs {
		if err := checkID("list connections", id); err != nil {
			return nil, err
		}
	}
	wanted := make(map[string]bool, len(planDayIDs))
	for _, id := range planDayIDs {
		wanted[id] = true
	}
	items := make([]store.POIConnection, 0)
	for _, c := range m.connections {
		if wanted[c.PlanDayID] {
			items = append(items, c)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].ID < items[j].ID })
	return items, nil
}

func (m *Memory) Connection(id string) (store.POIConnection, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.connections[id]
	return c, ok
}

func (m *Memory) FlushConnections(_ context.Context, upserts []store.POIConnection, deletes []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("FlushConnections")
	if m.FlushConnectionsErr != nil {
		if err := m.FlushConnectionsErr(); err != nil {
			return err
		}
	}
	for _, id := range deletes {
		if err := checkID("delete removed connections", id); err != nil {
			return err
		}
	}
	for _, item := range upserts {
		for _, id := range []string{item.ID, item.PrevPOIID, item.NextPOIID, item.PlanDayID} {
			if err := checkID("upsert connection", id); err != nil {
				return err
			}
		}
		if _, ok := m.pois[item.PrevPOIID]; !ok {
			return fmt.Errorf("upsert connection %s: prev poi violates foreign key", item.ID)
		}
		if _, ok := m.pois[item.NextPOIID]; !ok {
			return fmt.Errorf("upsert connection %s: next poi violates foreign key", item.ID)
		}
	}
	for _, id := range deletes {
		delete(m.connections, id)
	}
	for _, item := range upserts {
		m.connections[item.ID] = item
	}
	return nil
}

func (m *Memory) InsertChatMessage(_ context.Context, message store.ChatMessage) (store.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("InsertChatMessage")
	if err := checkID("insert chat message", message.ID); err != nil {
		return store.ChatMessage{}, err
	}
	if err := checkID("insert chat message", message.WorkspaceID); err != nil {
		return store.ChatMessage{}, err
	}
	if _, ok := m.workspaces[message.WorkspaceID]; !ok {
		return store.ChatMessage{}, fmt.Errorf("insert chat message: workspace %s violates foreign key", message.WorkspaceID)
	}
	if message.Role == "" {
		message.Role = store.ChatRoleUser
	}
	message.CreatedAt = m.now()
	m.messages = append(m.messages, message)
	return message, nil
}

func (m *Memory) ListChatMessages(_ context.Context, workspaceID string, limit int) ([]store.ChatMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.called("ListChatMessages")
	if err := checkID("list chat messages", workspaceID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	items := make([]store.ChatMessage, 0)
	for _, msg := range m.messages {
		if msg.WorkspaceID == workspaceID {
			items = append(items, msg)
		}
	}
	if len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// checkID fails the way Postgres does when a non-uuid reaches a uuid column.
func checkID(op, id string) error {
	if !store.IsID(id) {
		return fmt.Errorf("%s: invalid input syntax for type uuid: %q", op, id)
	}
	return nil
}
