package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/apperr"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/cache"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/chat"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/metrics"
	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
)

// Workspaces resolves a workspace and its plan days.
type Workspaces interface {
	Get(ctx context.Context, workspaceID string) (store.Workspace, []store.PlanDay, error)
}

type RouterConfig struct {
	Hub         *Hub
	Workspaces  Workspaces
	POIs        *cache.POICoordinator
	Connections *cache.ConnectionCoordinator
	Chat        *chat.Service
	Flusher     *Flusher
	// CommandTimeout bounds the cache and store work of one command.
	CommandTimeout time.Duration
	// AgentTimeout bounds an @AI round trip, which runs after the command returns.
	AgentTimeout time.Duration
}

// Router dispatches websocket commands to the workspace engine and fans the
// results out to rooms.
type Router struct {
	cfg      RouterConfig
	handlers map[string]handler
}

type handler struct {
	// room returns the room the sender must belong to; nil means no check.
	room func(workspaceID string) string
	fn   func(ctx context.Context, c Conn, f Frame) error
}

func NewRouter(cfg RouterConfig) *Router {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 5 * time.Second
	}
	if cfg.AgentTimeout <= 0 {
		cfg.AgentTimeout = 60 * time.Second
	}
	r := &Router{cfg: cfg}
	r.handlers = map[string]handler{
		EventJoin:        {fn: r.join},
		EventLeave:       {fn: r.leave},
		EventMark:        {room: workspaceRoom, fn: r.mark},
		EventUnmark:      {room: workspaceRoom, fn: r.unmark},
		EventSchedule:    {room: workspaceRoom, fn: r.schedule},
		EventUnschedule:  {room: workspaceRoom, fn: r.unschedule},
		EventReorder:     {room: workspaceRoom, fn: r.reorder},
		EventConnect:     {room: workspaceRoom, fn: r.connect},
		EventDisconnect:  {room: workspaceRoom, fn: r.disconnect},
		EventFlush:       {room: workspaceRoom, fn: r.flush},
		EventChatJoin:    {fn: r.chatJoin},
		EventChatLeave:   {fn: r.chatLeave},
		EventChatMessage: {room: chatRoom, fn: r.chatMessage},
	}
	return r
}

// Handle runs one inbound frame. Failures are reported to the sender only and
// never escape to the caller.
func (r *Router) Handle(ctx context.Context, c Conn, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil || strings.TrimSpace(frame.Event) == "" {
		r.sendError(c, "", apperr.New(400, "BAD_FRAME", "frame must be a JSON object with an event", nil))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("realtime: panic handling %s from %s: %v", frame.Event, c.ID(), rec)
			metrics.Commands.WithLabelValues(frame.Event, "panic").Inc()
			r.sendError(c, frame.Event, fmt.Errorf("panic: %v", rec))
		}
	}()

	h, ok := r.handlers[frame.Event]
	if !ok {
		metrics.Commands.WithLabelValues("unknown", "error").Inc()
		r.sendError(c, frame.Event, apperr.New(400, "UNKNOWN_EVENT", fmt.Sprintf("unknown event %q", frame.Event), nil))
		return
	}
	if strings.TrimSpace(frame.WorkspaceID) == "" {
		r.sendError(c, frame.Event, apperr.Validation("workspaceId is required", nil))
		return
	}
	if h.room != nil && !r.cfg.Hub.IsMember(h.room(frame.WorkspaceID), c.ID()) {
		log.Printf("realtime: dropping %s from %s (user %s): not a member of %s",
			frame.Event, c.ID(), c.Identity().UserID, h.room(frame.WorkspaceID))
		metrics.DroppedCommands.WithLabelValues(frame.Event).Inc()
		return
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.CommandTimeout)
	defer cancel()
	if err := h.fn(ctx, c, frame); err != nil {
		metrics.Commands.WithLabelValues(frame.Event, "error").Inc()
		r.sendError(c, frame.Event, err)
		return
	}
	metrics.Commands.WithLabelValues(frame.Event, "ok").Inc()
}

// Disconnect removes the connection from every room it joined.
func (r *Router) Disconnect(c Conn) {
	for _, room := range r.cfg.Hub.LeaveAll(c.ID()) {
		if workspaceID, ok := strings.CutPrefix(room, chatRoomPrefix); ok {
			r.broadcast(room, EventChatLeft, workspaceID, chatMemberPayload{UserID: c.Identity().UserID, Username: c.Identity().Username}, c.ID())
		}
	}
}

func (r *Router) join(ctx context.Context, c Conn, f Frame) error {
	workspace, days, err := r.cfg.Workspaces.Get(ctx, f.WorkspaceID)
	if err != nil {
		return err
	}
	pois, err := r.cfg.POIs.GetAll(ctx, f.WorkspaceID)
	if err != nil {
		return err
	}
	connections, err := r.cfg.Connections.HydrateAll(ctx, f.WorkspaceID)
	if err != nil {
		return err
	}

	r.cfg.Hub.Join(workspaceRoom(f.WorkspaceID), c)
	r.send(c, EventJoined, f.WorkspaceID, joinedPayload{Workspace: workspace, PlanDays: days})
	r.send(c, EventSync, f.WorkspaceID, syncPayload{POIs: pois, Connections: connections})
	return nil
}

func (r *Router) leave(_ context.Context, c Conn, f Frame) error {
	r.cfg.Hub.Leave(workspaceRoom(f.WorkspaceID), c.ID())
	r.send(c, EventLeft, f.WorkspaceID, struct{}{})
	return nil
}

func (r *Router) mark(ctx context.Context, c Conn, f Frame) error {
	var in markData
	if err := decodeData(f, &in); err != nil {
		return err
	}
	// New POIs always get a server id; a client id may only name one of
	// this workspace's existing POIs.
	id := strings.TrimSpace(in.POI.ID)
	if id == "" {
		id = uuid.NewString()
	} else if _, err := r.cfg.POIs.Get(ctx, f.WorkspaceID, id); err != nil {
		return err
	}
	saved, err := r.cfg.POIs.Upsert(ctx, f.WorkspaceID, store.POI{
		ID:        id,
		PlaceID:   in.POI.PlaceID,
		CreatedBy: c.Identity().UserID,
		Latitude:  in.POI.Latitude,
		Longitude: in.POI.Longitude,
		PlaceName: strings.TrimSpace(in.POI.PlaceName),
		Address:   strings.TrimSpace(in.POI.Address),
	})
	if err != nil {
		return err
	}
	r.broadcast(workspaceRoom(f.WorkspaceID), EventMarked, f.WorkspaceID, poiPayload{POI: saved}, "")
	return nil
}

func (r *Router) unmark(ctx context.Context, _ Conn, f Frame) error {
	var in poiRef
	if err := decodeData(f, &in); err != nil {
		return err
	}
	removed, err := r.cfg.POIs.Remove(ctx, f.WorkspaceID, in.POIID)
	if err != nil {
		return err
	}
	r.broadcast(workspaceRoom(f.WorkspaceID), EventUnmarked, f.WorkspaceID, poiPayload{POI: removed}, "")
	if removed.PlanDayID != nil {
		r.cascade(ctx, f.WorkspaceID, *removed.PlanDayID, removed.ID)
	}
	return nil
}

func (r *Router) schedule(ctx context.Context, _ Conn, f Frame) error {
	var in poiRef
	if err := decodeData(f, &in); err != nil {
		return err
	}
	prior, err := r.cfg.POIs.Get(ctx, f.WorkspaceID, in.POIID)
	if err != nil {
		return err
	}
	poi, order, err := r.cfg.POIs.TransitionToScheduled(ctx, f.WorkspaceID, in.PlanDayID, in.POIID)
	if err != nil {
		return err
	}
	r.broadcast(workspaceRoom(f.WorkspaceID), EventScheduled, f.WorkspaceID, orderPayload{POI: poi, Order: order}, "")

	if prior.PlanDayID != nil && *prior.PlanDayID != in.PlanDayID {
		source := *prior.PlanDayID
		r.cascade(ctx, f.WorkspaceID, source, in.POIID)
		if remaining, err := r.dayPOIs(ctx, f.WorkspaceID, source); err != nil {
			log.Printf("realtime: read order of plan day %s after move: %v", source, err)
		} else {
			r.broadcast(workspaceRoom(f.WorkspaceID), EventReordered, f.WorkspaceID, reorderedPayload{
				PlanDayID: source,
				POIIDs:    poiIDs(remaining),
				POIs:      remaining,
			}, "")
		}
	}
	return nil
}

func (r *Router) unschedule(ctx context.Context, _ Conn, f Frame) error {
	var in poiRef
	if err := decodeData(f, &in); err != nil {
		return err
	}
	poi, order, err := r.cfg.POIs.TransitionToMarked(ctx, f.WorkspaceID, in.PlanDayID, in.POIID)
	if err != nil {
		return err
	}
	r.broadcast(workspaceRoom(f.WorkspaceID), EventUnscheduled, f.WorkspaceID, orderPayload{POI: poi, Order: order}, "")
	r.cascade(ctx, f.WorkspaceID, in.PlanDayID, in.POIID)
	return nil
}

func (r *Router) reorder(ctx context.Context, _ Conn, f Frame) error {
	var in reorderData
	if err := decodeData(f, &in); err != nil {
		return err
	}
	pois, err := r.cfg.POIs.Reorder(ctx, f.WorkspaceID, in.PlanDayID, in.POIIDs)
	if err != nil {
		return err
	}
	r.broadcast(workspaceRoom(f.WorkspaceID), EventReordered, f.WorkspaceID, reorderedPayload{
		PlanDayID: in.PlanDayID,
		POIIDs:    poiIDs(pois),
		POIs:      pois,
	}, "")
	return nil
}

func (r *Router) connect(ctx context.Context, _ Conn, f Frame) error {
	var in connectData
	if err := decodeData(f, &in); err != nil {
		return err
	}
	for _, id := range []string{in.PrevPOIID, in.NextPOIID} {
		poi, err := r.cfg.POIs.Get(ctx, f.WorkspaceID, id)
		if err != nil {
			return err
		}
		if poi.Status != store.StatusScheduled || poi.PlanDayID == nil || *poi.PlanDayID != in.PlanDayID {
			return apperr.Validation(fmt.Sprintf("poi %s is not scheduled on plan day %s", id, in.PlanDayID), map[string]any{
				"poiId":     id,
				"planDayId": in.PlanDayID,
			})
		}
	}
	saved, err := r.cfg.Connections.Upsert(ctx, store.POIConnection{
		ID:        uuid.NewString(),
		PrevPOIID: in.PrevPOIID,
		NextPOIID: in.NextPOIID,
		PlanDayID: in.PlanDayID,
		Distance:  in.Distance,
		Duration:  in.Duration,
	})
	if err != nil {
		return err
	}
	r.broadcast(workspaceRoom(f.WorkspaceID), EventConnected, f.WorkspaceID, connectionPayload{Connection: saved}, "")
	return nil
}

func (r *Router) disconnect(ctx context.Context, _ Conn, f Frame) error {
	var in disconnectData
	if err := decodeData(f, &in); err != nil {
		return err
	}
	if err := r.cfg.POIs.HasPlanDay(ctx, f.WorkspaceID, in.PlanDayID); err != nil {
		return err
	}
	if _, err := r.cfg.Connections.Remove(ctx, in.PlanDayID, in.ConnectionID); err != nil {
		return err
	}
	r.broadcast(workspaceRoom(f.WorkspaceID), EventDisconnected, f.WorkspaceID, disconnectData{
		ConnectionID: in.ConnectionID,
		PlanDayID:    in.PlanDayID,
	}, "")
	return nil
}

func (r *Router) flush(ctx context.Context, c Conn, f Frame) error {
	report, err := r.cfg.Flusher.Flush(ctx, f.WorkspaceID)
	if err != nil {
		return err
	}
	log.Printf("realtime: flush requested by %s for workspace %s (evicted pois=%v connections=%v)",
		c.Identity().UserID, f.WorkspaceID, report.POIs.Evicted, report.Connections.Evicted)
	return nil
}

func (r *Router) chatJoin(ctx context.Context, c Conn, f Frame) error {
	if _, _, err := r.cfg.Workspaces.Get(ctx, f.WorkspaceID); err != nil {
		return err
	}
	room := chatRoom(f.WorkspaceID)
	if r.cfg.Hub.Join(room, c) {
		r.broadcast(room, EventChatJoined, f.WorkspaceID, chatMemberPayload{UserID: c.Identity().UserID, Username: c.Identity().Username}, c.ID())
	}
	return nil
}

func (r *Router) chatLeave(_ context.Context, c Conn, f Frame) error {
	room := chatRoom(f.WorkspaceID)
	if r.cfg.Hub.Leave(room, c.ID()) {
		r.broadcast(room, EventChatLeft, f.WorkspaceID, chatMemberPayload{UserID: c.Identity().UserID, Username: c.Identity().Username}, c.ID())
	}
	return nil
}

func (r *Router) chatMessage(ctx context.Context, c Conn, f Frame) error {
	var in chatData
	if err := decodeData(f, &in); err != nil {
		return err
	}
	msg, err := r.cfg.Chat.Post(ctx, f.WorkspaceID, c.Identity().UserID, c.Identity().Username, in.Content)
	if err != nil {
		return err
	}
	room := chatRoom(f.WorkspaceID)
	r.broadcast(room, EventChatMessage, f.WorkspaceID, chatMessagePayload{Message: msg}, "")

	if r.cfg.Chat.Mentions(msg) {
		go r.answer(room, msg)
	}
	return nil
}

func (r *Router) answer(room string, msg store.ChatMessage) {
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.AgentTimeout)
	defer cancel()
	reply, err := r.cfg.Chat.Answer(ctx, msg)
	if err != nil {
		log.Printf("realtime: agent reply for message %s in workspace %s: %v", msg.ID, msg.WorkspaceID, err)
		return
	}
	r.broadcast(room, EventChatMessage, msg.WorkspaceID, chatMessagePayload{Message: reply}, "")
}

// cascade drops the connections of a POI that left a plan day.
func (r *Router) cascade(ctx context.Context, workspaceID, planDayID, poiID string) {
	removed, err := r.cfg.Connections.RemoveByPOI(ctx, planDayID, poiID)
	if err != nil {
		log.Printf("realtime: remove connections of poi %s on plan day %s: %v", poiID, planDayID, err)
		return
	}
	for _, conn := range removed {
		r.broadcast(workspaceRoom(workspaceID), EventDisconnected, workspaceID, disconnectData{
			ConnectionID: conn.ID,
			PlanDayID:    conn.PlanDayID,
		}, "")
	}
}

func (r *Router) dayPOIs(ctx context.Context, workspaceID, planDayID string) ([]store.POI, error) {
	all, err := r.cfg.POIs.GetAll(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	out := make([]store.POI, 0)
	for _, poi := range all {
		if poi.PlanDayID != nil && *poi.PlanDayID == planDayID {
			out = append(out, poi)
		}
	}
	return out, nil
}

func (r *Router) send(c Conn, event, workspaceID string, data any) {
	payload, err := encodeFrame(event, workspaceID, data)
	if err != nil {
		log.Printf("realtime: encode %s: %v", event, err)
		return
	}
	if !c.Send(payload) {
		log.Printf("realtime: dropped %s for %s", event, c.ID())
	}
}

func (r *Router) broadcast(room, event, workspaceID string, data any, exceptID string) {
	payload, err := encodeFrame(event, workspaceID, data)
	if err != nil {
		log.Printf("realtime: encode %s: %v", event, err)
		return
	}
	r.cfg.Hub.Broadcast(room, payload, exceptID)
}

func (r *Router) sendError(c Conn, command string, err error) {
	out := errorPayload{Command: command, Code: "SERVER_ERROR", Message: "internal error"}
	var domainErr *apperr.Error
	switch {
	case errors.As(err, &domainErr):
		out.Code, out.Message = domainErr.Code, domainErr.Message
	case errors.Is(err, context.DeadlineExceeded):
		out.Code, out.Message = "TIMEOUT", "command timed out"
	default:
		log.Printf("realtime: %s from %s failed: %v", command, c.ID(), err)
	}
	r.send(c, EventError, "", out)
}

func decodeData(f Frame, target any) error {
	if len(f.Data) == 0 {
		return apperr.Validation("data is required", nil)
	}
	if err := json.Unmarshal(f.Data, target); err != nil {
		return apperr.Validation("invalid data payload", map[string]any{"event": f.Event})
	}
	return nil
}

func poiIDs(items []store.POI) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}
