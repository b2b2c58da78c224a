package models

import "time"

const (
	ActivityJoined   = "joined"
	ActivityCalled   = "called"
	ActivityRecalled = "recalled"
	ActivityServed   = "served"
	ActivitySkipped  = "skipped"
	ActivityDeleted  = "deleted"
)

type Activity struct {
	ID        string    `json:"_id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	TicketID  string    `json:"ticketId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
