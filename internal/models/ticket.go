package models

import "time"

type Ticket struct {
	ID               string     `json:"_id"`
	FullName         string     `json:"fullName"`
	Phone            string     `json:"phone,omitempty"`
	TokenNumber      int        `json:"tokenNumber"`
	TokenDay         string     `json:"-"`
	Status           string     `json:"status"`
	CounterID        string     `json:"counterId,omitempty"`
	CounterName      string     `json:"counterName,omitempty"`
	LastCounterID    string     `json:"lastCounterId,omitempty"`
	LastCounterName  string     `json:"lastCounterName,omitempty"`
	ServiceKey       string     `json:"serviceKey,omitempty"`
	ServiceLabel     string     `json:"serviceLabel,omitempty"`
	ServiceNote      string     `json:"serviceNote,omitempty"`
	DeviceToken      string     `json:"-"`
	UpcomingNotified bool       `json:"upcomingNotified"`
	JoinedAt         time.Time  `json:"joinedAt"`
	CalledAt         *time.Time `json:"calledAt,omitempty"`
	CallSeq          int64      `json:"-"`
	ServedAt         *time.Time `json:"servedAt,omitempty"`
	SkippedAt        *time.Time `json:"skippedAt,omitempty"`
	ExpiresAt        time.Time  `json:"expiresAt"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

const (
	StatusWaiting   = "waiting"
	StatusCalled    = "called"
	StatusServing   = "serving"
	StatusServed    = "served"
	StatusSkipped   = "skipped"
	StatusCancelled = "cancelled"
)

// Statuses lists every ticket status in lifecycle order.
var Statuses = []string{
	StatusWaiting,
	StatusCalled,
	StatusServing,
	StatusServed,
	StatusSkipped,
	StatusCancelled,
}

func ValidStatus(status string) bool {
	for _, s := range Statuses {
		if s == status {
			return true
		}
	}
	return false
}

// Active reports whether the ticket currently occupies a counter.
func (t Ticket) Active() bool {
	return t.Status == StatusCalled || t.Status == StatusServing
}

// BoundTo reports whether the ticket is bound to the counter by id or by name.
func (t Ticket) BoundTo(c Counter) bool {
	if t.CounterID != "" && t.CounterID == c.ID {
		return true
	}
	return t.CounterName != "" && t.CounterName == c.Name
}
