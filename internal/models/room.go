package models

import "time"

// RoomStatus is the lifecycle state of a support room.
type RoomStatus string

const (
	RoomOpen   RoomStatus = "open"
	RoomClosed RoomStatus = "closed"
)

// Room is a support conversation between one customer and at most one agent.
type Room struct {
	ID             string     `db:"id" json:"id"`
	CustomerID     string     `db:"customer_id" json:"customerId"`
	AgentID        *string    `db:"agent_id" json:"agentId,omitempty"`
	Status         RoomStatus `db:"status" json:"status"`
	LastActivityAt time.Time  `db:"last_activity_at" json:"lastActivityAt"`
	CreatedAt      time.Time  `db:"created_at" json:"createdAt"`
}

// Assigned reports whether an agent owns the room.
func (r Room) Assigned() bool {
	return r.AgentID != nil && *r.AgentID != ""
}

// AssignedTo reports whether agentID is the room's assignee.
func (r Room) AssignedTo(agentID string) bool {
	return r.Assigned() && *r.AgentID == agentID
}

// RoomSummary is a room resolved with its participants' display identities.
type RoomSummary struct {
	Room
	Customer UserSummary  `json:"customer"`
	Agent    *UserSummary `json:"agent,omitempty"`
}
