package store

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrForeignID is returned by a flush when a record id is already owned by
// another workspace.
var ErrForeignID = errors.New("id belongs to another workspace")

// IsID reports whether id is a canonical lowercase uuid, the only form the
// engine stores and caches records under.
func IsID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

type POIStatus string

const (
	StatusMarked    POIStatus = "MARKED"
	StatusScheduled POIStatus = "SCHEDULED"
)

// Proposal is the trip proposal a workspace plans. It is owned by the wider
// product; the engine only reads its date range.
type Proposal struct {
	ID        string
	Title     string
	StartDate *time.Time
	EndDate   *time.Time
}

type Workspace struct {
	ID         string    `json:"id"`
	ProposalID string    `json:"proposalId"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"createdAt"`
}

type PlanDay struct {
	ID          string     `json:"id"`
	WorkspaceID string     `json:"workspaceId"`
	DayNo       int        `json:"dayNo"`
	PlanDate    *time.Time `json:"planDate"`
}

type POI struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	PlanDayID   *string   `json:"planDayId"`
	PlaceID     *string   `json:"placeId"`
	CreatedBy   string    `json:"createdBy"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	PlaceName   string    `json:"placeName"`
	Address     string    `json:"address"`
	Status      POIStatus `json:"status"`
	Sequence    int       `json:"sequence"`
}

// Valid reports whether status, sequence and plan day agree:
// MARKED has sequence 0 and no plan day, SCHEDULED has both.
func (p POI) Valid() bool {
	switch p.Status {
	case StatusMarked:
		return p.Sequence == 0 && p.PlanDayID == nil
	case StatusScheduled:
		return p.Sequence >= 1 && p.PlanDayID != nil && *p.PlanDayID != ""
	default:
		return false
	}
}

type POIConnection struct {
	ID        string `json:"id"`
	PrevPOIID string `json:"prevPoiId"`
	NextPOIID string `json:"nextPoiId"`
	PlanDayID string `json:"planDayId"`
	Distance  *int   `json:"distance"`
	Duration  *int   `json:"duration"`
}

type ChatRole string

const (
	ChatRoleUser ChatRole = "USER"
	ChatRoleAI   ChatRole = "AI"
)

type ChatMessage struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	Content     string    `json:"content"`
	Role        ChatRole  `json:"role"`
	CreatedAt   time.Time `json:"createdAt"`
}
