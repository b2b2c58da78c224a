package store

import (
	"context"
	"time"

	"smartq/internal/models"
)

// TicketFilter selects tickets. Zero-valued fields do not constrain the match.
type TicketFilter struct {
	ID              string
	ExcludeID       string
	Statuses        []string
	ExcludeStatuses []string
	// CounterID and CounterName match a binding by id OR by name.
	CounterID    string
	CounterName  string
	JoinedBefore *time.Time
	JoinedFrom   *time.Time
	// CalledBeforeSeq matches tickets whose call sequence is lower. Zero disables it.
	CalledBeforeSeq  int64
	HasDeviceToken   bool
	UpcomingNotified *bool
	ExpiresBefore    *time.Time
	// Search matches name or phone case-insensitively, or the token number when numeric.
	Search string
}

type TicketSort int

const (
	SortJoinedAsc TicketSort = iota
	SortTokenDesc
)

// TicketUpdate describes the fields written by an update. Nil pointers are left
// unchanged. Setting CalledAt also stamps the ticket with the next call sequence.
type TicketUpdate struct {
	Status           *string
	CounterID        *string
	CounterName      *string
	ClearCounter     bool
	// LastCounterID and LastCounterName remember where a skipped ticket was called.
	LastCounterID    *string
	LastCounterName  *string
	CalledAt         *time.Time
	ClearCalledAt    bool
	ServedAt         *time.Time
	SkippedAt        *time.Time
	UpcomingNotified *bool
	UpdatedAt        time.Time
}

type CounterFilter struct {
	ID         string
	OnlineOnly bool
}

type CounterUpdate struct {
	NowServingToken *int
	ClearNowServing bool
	WaitingCount    *int
	Online          *bool
	UpdatedAt       time.Time
}

type ActivityFilter struct {
	Types []string
}

type TicketStore interface {
	CreateTicket(ctx context.Context, ticket models.Ticket) (models.Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (models.Ticket, error)
	FindTicket(ctx context.Context, filter TicketFilter, sort TicketSort) (models.Ticket, error)
	ListTickets(ctx context.Context, filter TicketFilter, sort TicketSort, limit int) ([]models.Ticket, error)
	CountTickets(ctx context.Context, filter TicketFilter) (int, error)
	// FindAndUpdateTicket atomically updates the first ticket matching filter in sort
	// order and returns it after the update. Concurrent callers never receive the same
	// ticket while the filter still excludes the updated state.
	FindAndUpdateTicket(ctx context.Context, filter TicketFilter, sort TicketSort, update TicketUpdate) (models.Ticket, error)
	UpdateTickets(ctx context.Context, filter TicketFilter, update TicketUpdate) ([]models.Ticket, error)
	DeleteTicket(ctx context.Context, filter TicketFilter) (models.Ticket, error)
	DeleteTickets(ctx context.Context, filter TicketFilter) (int64, error)
}

type CounterStore interface {
	ListCounters(ctx context.Context, filter CounterFilter) ([]models.Counter, error)
	GetCounter(ctx context.Context, counterID string) (models.Counter, error)
	InsertCounters(ctx context.Context, counters []models.Counter) error
	UpdateCounter(ctx context.Context, counterID string, update CounterUpdate) (models.Counter, error)
	UpdateCounters(ctx context.Context, filter CounterFilter, update CounterUpdate) (int64, error)
}

type ActivityStore interface {
	CreateActivity(ctx context.Context, activity models.Activity) (models.Activity, error)
	ListActivities(ctx context.Context, filter ActivityFilter, limit int) ([]models.Activity, error)
	DeleteActivities(ctx context.Context, before time.Time) (int64, error)
}

type AdminStore interface {
	CountAdmins(ctx context.Context) (int, error)
	CreateAdmin(ctx context.Context, admin models.Admin) (models.Admin, error)
	GetAdmin(ctx context.Context, adminID string) (models.Admin, error)
	GetAdminByUsername(ctx context.Context, username string) (models.Admin, error)
}

type Store interface {
	TicketStore
	CounterStore
	ActivityStore
	AdminStore
	Ping(ctx context.Context) error
}
