package queue

import (
	"context"
	"strings"

	"smartq/internal/models"
	"smartq/internal/store"
)

const (
	adminListLimit       = 200
	defaultActivityLimit = 10
	maxActivityLimit     = 100
	displayFeedSize      = 10
)

type TicketQuery struct {
	Status string
	Search string
}

type DisplayFeed struct {
	Counters       []models.Counter  `json:"counters"`
	RecentActivity []models.Activity `json:"recentActivity"`
}

// ListTickets returns tickets for the admin dashboard, oldest join first.
func (e *Engine) ListTickets(ctx context.Context, q TicketQuery) (tickets []models.Ticket, err error) {
	ctx, span := e.startSpan(ctx, "ListTickets")
	defer func() { e.finish(span, "list_tickets", err) }()

	filter := store.TicketFilter{Search: strings.TrimSpace(q.Search)}
	status := strings.ToLower(strings.TrimSpace(q.Status))
	if status != "" && status != "all" {
		if !models.ValidStatus(status) {
			return nil, validationError("Unknown ticket status: " + q.Status)
		}
		filter.Statuses = []string{status}
	}
	tickets, err = e.store.ListTickets(ctx, filter, store.SortJoinedAsc, adminListLimit)
	if err != nil {
		return nil, unavailable("list tickets", err)
	}
	return tickets, nil
}

// Activity returns the newest activity records. Non-positive limits use the default.
func (e *Engine) Activity(ctx context.Context, limit int) (activities []models.Activity, err error) {
	ctx, span := e.startSpan(ctx, "Activity")
	defer func() { e.finish(span, "activity", err) }()

	if limit <= 0 {
		limit = defaultActivityLimit
	}
	if limit > maxActivityLimit {
		limit = maxActivityLimit
	}
	activities, err = e.store.ListActivities(ctx, store.ActivityFilter{}, limit)
	if err != nil {
		return nil, unavailable("list activity", err)
	}
	return activities, nil
}

// DisplayFeed is what the public screen polls: counters and the latest calls.
func (e *Engine) DisplayFeed(ctx context.Context) (feed DisplayFeed, err error) {
	ctx, span := e.startSpan(ctx, "DisplayFeed")
	defer func() { e.finish(span, "display_feed", err) }()

	counters, err := e.refreshCounters(ctx, false)
	if err != nil {
		return DisplayFeed{}, unavailable("list counters", err)
	}
	recent, err := e.store.ListActivities(ctx, store.ActivityFilter{Types: []string{models.ActivityCalled}}, displayFeedSize)
	if err != nil {
		return DisplayFeed{}, unavailable("list activity", err)
	}
	return DisplayFeed{Counters: counters, RecentActivity: recent}, nil
}

func (e *Engine) Services() []models.Service {
	out := make([]models.Service, len(models.ServiceCatalog))
	copy(out, models.ServiceCatalog)
	return out
}
