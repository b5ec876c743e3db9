package realtime

import (
	"encoding/json"

	"github.com/NaManMu-10th-team7/matetrip-backend-sub000/internal/store"
)

// Inbound events.
const (
	EventJoin        = "join"
	EventLeave       = "leave"
	EventMark        = "mark"
	EventUnmark      = "unmark"
	EventSchedule    = "schedule"
	EventUnschedule  = "unschedule"
	EventReorder     = "reorder"
	EventConnect     = "connect"
	EventDisconnect  = "disconnect"
	EventFlush       = "flush"
	EventChatJoin    = "chat:join"
	EventChatLeave   = "chat:leave"
	EventChatMessage = "chat:message"
)

// Outbound events. chat:message is used in both directions.
const (
	EventJoined       = "joined"
	EventSync         = "sync"
	EventLeft         = "left"
	EventMarked       = "marked"
	EventUnmarked     = "unmarked"
	EventScheduled    = "scheduled"
	EventUnscheduled  = "unscheduled"
	EventReordered    = "reordered"
	EventConnected    = "connected"
	EventDisconnected = "disconnected"
	EventChatJoined   = "chat:joined"
	EventChatLeft     = "chat:left"
	EventError        = "error"
)

// Frame is the envelope of every websocket message.
type Frame struct {
	Event       string          `json:"event"`
	WorkspaceID string          `json:"workspaceId,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
}

type poiInput struct {
	ID        string  `json:"id"`
	PlaceID   *string `json:"placeId"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	PlaceName string  `json:"placeName"`
	Address   string  `json:"address"`
}

type markData struct {
	POI poiInput `json:"poi"`
}

type poiRef struct {
	POIID     string `json:"poiId"`
	PlanDayID string `json:"planDayId"`
}

type reorderData struct {
	PlanDayID string   `json:"planDayId"`
	POIIDs    []string `json:"poiIds"`
}

type connectData struct {
	PrevPOIID string `json:"prevPoiId"`
	NextPOIID string `json:"nextPoiId"`
	PlanDayID string `json:"planDayId"`
	Distance  *int   `json:"distance"`
	Duration  *int   `json:"duration"`
}

type disconnectData struct {
	ConnectionID string `json:"connectionId"`
	PlanDayID    string `json:"planDayId"`
}

type chatData struct {
	Content string `json:"content"`
}

type joinedPayload struct {
	Workspace store.Workspace `json:"workspace"`
	PlanDays  []store.PlanDay `json:"planDays"`
}

type syncPayload struct {
	POIs        []store.POI           `json:"pois"`
	Connections []store.POIConnection `json:"connections"`
}

type poiPayload struct {
	POI store.POI `json:"poi"`
}

type orderPayload struct {
	POI   store.POI `json:"poi"`
	Order []string  `json:"order"`
}

type reorderedPayload struct {
	PlanDayID string      `json:"planDayId"`
	POIIDs    []string    `json:"poiIds"`
	POIs      []store.POI `json:"pois"`
}

type connectionPayload struct {
	Connection store.POIConnection `json:"connection"`
}

type chatMemberPayload struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type chatMessagePayload struct {
	Message store.ChatMessage `json:"message"`
}

type errorPayload struct {
	Command string `json:"command"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func encodeFrame(event, workspaceID string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, WorkspaceID: workspaceID, Data: raw})
}
