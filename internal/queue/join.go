package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"smartq/internal/models"
	"smartq/internal/store"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

type JoinInput struct {
	FullName     string
	Phone        string
	DeviceToken  string
	ServiceKey   string
	ServiceLabel string
	ServiceNote  string
}

type JoinResult struct {
	Ticket   models.Ticket
	Position int
	Activity models.Activity
}

type StatusResult struct {
	Ticket   models.Ticket
	Position int
}

// Join issues the next token of the day and places the visitor at the back of the queue.
func (e *Engine) Join(ctx context.Context, in JoinInput) (res JoinResult, err error) {
	ctx, span := e.startSpan(ctx, "Join")
	defer func() { e.finish(span, "join", err) }()

	name := strings.TrimSpace(in.FullName)
	if name == "" {
		return JoinResult{}, validationError("Full name is required to join the queue.")
	}

	now := e.now()
	ticket := models.Ticket{
		ID:           uuid.NewString(),
		FullName:     name,
		Phone:        strings.TrimSpace(in.Phone),
		TokenDay:     e.dayKey(now),
		Status:       models.StatusWaiting,
		ServiceKey:   strings.TrimSpace(in.ServiceKey),
		ServiceLabel: strings.TrimSpace(in.ServiceLabel),
		ServiceNote:  strings.TrimSpace(in.ServiceNote),
		DeviceToken:  strings.TrimSpace(in.DeviceToken),
		JoinedAt:     now,
		ExpiresAt:    now.Add(e.retention),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if ticket.ServiceKey != "" && ticket.ServiceLabel == "" {
		if service, ok := models.LookupService(ticket.ServiceKey); ok {
			ticket.ServiceLabel = service.Label
		}
	}

	created, err := e.createWithToken(ctx, ticket)
	if err != nil {
		return JoinResult{}, err
	}
	span.SetAttributes(attribute.Int("token", created.TokenNumber))

	position, err := e.position(ctx, created)
	if err != nil {
		return JoinResult{}, unavailable("compute position", err)
	}
	if _, err := e.syncWaiting(ctx); err != nil {
		e.logger.Error().Err(err).Msg("sync waiting count after join")
	}

	activity := e.record(ctx, models.ActivityJoined, fmt.Sprintf("%s joined the queue", tokenLabel(created.TokenNumber)), created.ID)
	e.emit(EventTicketJoined, map[string]any{"ticket": created, "activity": activity})
	if counters, err := e.refreshCounters(ctx, false); err == nil {
		e.emitCounters(counters)
	}
	e.emitActivity(activity)

	e.logger.Info().Str("ticket_id", created.ID).Int("token", created.TokenNumber).Int("position", position).Msg("ticket joined")
	return JoinResult{Ticket: created, Position: position, Activity: activity}, nil
}

// createWithToken assigns max(today)+1 and retries when a concurrent join took the same number.
func (e *Engine) createWithToken(ctx context.Context, ticket models.Ticket) (models.Ticket, error) {
	start := e.dayStart(ticket.JoinedAt)
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		last, err := e.store.FindTicket(ctx, store.TicketFilter{JoinedFrom: &start}, store.SortTokenDesc)
		switch {
		case errors.Is(err, store.ErrNoMatch):
			ticket.TokenNumber = 1
		case err != nil:
			return models.Ticket{}, unavailable("read last token", err)
		default:
			ticket.TokenNumber = last.TokenNumber + 1
		}

		created, err := e.store.CreateTicket(ctx, ticket)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, store.ErrDuplicate) {
			return models.Ticket{}, unavailable("create ticket", err)
		}
		e.logger.Debug().Int("token", ticket.TokenNumber).Int("attempt", attempt+1).Msg("token taken, retrying")
	}
	return models.Ticket{}, conflict("Could not allocate a token number, please try again.")
}

// position is 1 + the number of waiting tickets that joined strictly earlier.
func (e *Engine) position(ctx context.Context, ticket models.Ticket) (int, error) {
	joined := ticket.JoinedAt
	ahead, err := e.store.CountTickets(ctx, store.TicketFilter{
		Statuses:     []string{models.StatusWaiting},
		JoinedBefore: &joined,
	})
	if err != nil {
		return 0, err
	}
	return ahead + 1, nil
}

// Status returns the ticket and its queue position (0 unless waiting).
func (e *Engine) Status(ctx context.Context, ticketID string) (res StatusResult, err error) {
	ctx, span := e.startSpan(ctx, "Status", attribute.String("ticket_id", ticketID))
	defer func() { e.finish(span, "status", err) }()

	ticket, err := e.getTicket(ctx, ticketID)
	if err != nil {
		return StatusResult{}, err
	}
	position := 0
	if ticket.Status == models.StatusWaiting {
		if position, err = e.position(ctx, ticket); err != nil {
			return StatusResult{}, unavailable("compute position", err)
		}
	}
	return StatusResult{Ticket: ticket, Position: position}, nil
}
