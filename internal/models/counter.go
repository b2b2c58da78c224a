package models

import "time"

const DefaultAvgSecondsPerTicket = 240

type Counter struct {
	ID                  string    `json:"_id"`
	Name                string    `json:"name"`
	NowServingToken     *int      `json:"nowServingToken"`
	WaitingCount        int       `json:"waitingCount"`
	AvgSecondsPerTicket int       `json:"avgSecondsPerTicket"`
	Online              *bool     `json:"online,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`
}

// IsOnline treats a counter without an explicit flag as online.
func (c Counter) IsOnline() bool {
	return c.Online == nil || *c.Online
}
