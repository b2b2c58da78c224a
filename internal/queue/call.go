package queue

import (
	"context"
	"errors"
	"fmt"

	"smartq/internal/models"
	"smartq/internal/notify"
	"smartq/internal/store"

	"go.opentelemetry.io/otel/attribute"
)

type CallResult struct {
	Ticket   models.Ticket
	Counter  models.Counter
	Counters []models.Counter
	Activity models.Activity
}

// CallNext claims the oldest waiting ticket for the preferred counter, or for the
// oldest online counter when the preferred one is unavailable.
// A ticket the counter was already calling is moved to skipped, unlike CallTicket
// which returns it to waiting.
func (e *Engine) CallNext(ctx context.Context, preferredCounterID string) (res CallResult, err error) {
	ctx, span := e.startSpan(ctx, "CallNext", attribute.String("counter_id", preferredCounterID))
	defer func() { e.finish(span, "call_next", err) }()

	counter, err := e.selectCounter(ctx, preferredCounterID)
	if errors.Is(err, errNoOnlineCounter) {
		waiting, cerr := e.store.CountTickets(ctx, store.TicketFilter{Statuses: []string{models.StatusWaiting}})
		if cerr != nil {
			return CallResult{}, unavailable("count waiting", cerr)
		}
		if waiting == 0 {
			return CallResult{}, notFound("No waiting tickets.", nil)
		}
		return CallResult{}, conflict("No online counters available.")
	}
	if err != nil {
		return CallResult{}, unavailable("select counter", err)
	}

	ticket, err := e.store.FindAndUpdateTicket(ctx,
		store.TicketFilter{Statuses: store.AllowedFrom(store.ActionCall)},
		store.SortJoinedAsc,
		e.bindUpdate(counter),
	)
	if err != nil {
		if errors.Is(err, store.ErrNoMatch) {
			return CallResult{}, notFound("No waiting tickets.", err)
		}
		return CallResult{}, unavailable("claim next ticket", err)
	}
	return e.completeCall(ctx, ticket, counter)
}

// CallTicket calls a specific waiting ticket, demoting whatever the chosen counter
// was calling before.
func (e *Engine) CallTicket(ctx context.Context, ticketID, preferredCounterID string) (res CallResult, err error) {
	ctx, span := e.startSpan(ctx, "CallTicket", attribute.String("ticket_id", ticketID), attribute.String("counter_id", preferredCounterID))
	defer func() { e.finish(span, "call_ticket", err) }()

	existing, err := e.getTicket(ctx, ticketID)
	if err != nil {
		return CallResult{}, err
	}
	if !store.ValidTransition(store.ActionCall, existing.Status) {
		return CallResult{}, notWaiting(existing)
	}

	counter, err := e.selectCounter(ctx, preferredCounterID)
	if errors.Is(err, errNoOnlineCounter) {
		return CallResult{}, conflict("No online counters available.")
	}
	if err != nil {
		return CallResult{}, unavailable("select counter", err)
	}

	demoted, err := e.demote(ctx, counter, store.TicketFilter{ExcludeID: ticketID})
	if err != nil {
		return CallResult{}, unavailable("demote called tickets", err)
	}
	for _, t := range demoted {
		e.emit(EventTicketUpdated, map[string]any{"ticketId": t.ID, "status": t.Status, "ticket": t})
	}

	ticket, err := e.store.FindAndUpdateTicket(ctx,
		store.TicketFilter{ID: ticketID, Statuses: store.AllowedFrom(store.ActionCall)},
		store.SortJoinedAsc,
		e.bindUpdate(counter),
	)
	if err != nil {
		if errors.Is(err, store.ErrNoMatch) {
			return CallResult{}, e.loadForError(ctx, ticketID, notWaiting)
		}
		return CallResult{}, unavailable("call ticket", err)
	}
	return e.completeCall(ctx, ticket, counter)
}

func notWaiting(ticket models.Ticket) error {
	return conflict(fmt.Sprintf("Ticket is not waiting (current: %s)", ticket.Status))
}

func (e *Engine) bindUpdate(counter models.Counter) store.TicketUpdate {
	now := e.now()
	status := models.StatusCalled
	return store.TicketUpdate{
		Status:      &status,
		CounterID:   &counter.ID,
		CounterName: &counter.Name,
		CalledAt:    &now,
		UpdatedAt:   now,
	}
}

// completeCall runs after a ticket has been bound to counter. The counter is checked
// again; if it went offline in the meantime the ticket goes back to waiting.
func (e *Engine) completeCall(ctx context.Context, ticket models.Ticket, counter models.Counter) (CallResult, error) {
	current, err := e.store.GetCounter(ctx, counter.ID)
	if err != nil || !current.IsOnline() {
		if rbErr := e.rollbackCall(ctx, ticket); rbErr != nil {
			e.logger.Error().Err(rbErr).Str("ticket_id", ticket.ID).Msg("roll back call")
		}
		if err != nil && !errors.Is(err, store.ErrCounterNotFound) {
			return CallResult{}, unavailable("load counter", err)
		}
		return CallResult{}, conflict("No online counters available.")
	}

	displaced, err := e.displaceEarlier(ctx, ticket, current)
	if err != nil {
		e.logger.Error().Err(err).Str("counter_id", current.ID).Msg("displace earlier calls")
	}

	token := ticket.TokenNumber
	if _, err := e.store.UpdateCounter(ctx, current.ID, store.CounterUpdate{NowServingToken: &token, UpdatedAt: e.now()}); err != nil {
		e.logger.Error().Err(err).Str("counter_id", current.ID).Msg("set now serving token")
	}
	if _, err := e.syncWaiting(ctx); err != nil {
		e.logger.Error().Err(err).Msg("sync waiting count after call")
	}

	activity := e.record(ctx, models.ActivityCalled,
		fmt.Sprintf("%s called to %s", tokenLabel(ticket.TokenNumber), counterLabel(current.Name)), ticket.ID)
	counters, err := e.refreshCounters(ctx, true)
	if err != nil {
		e.logger.Error().Err(err).Msg("refresh counters after call")
	}
	for _, c := range counters {
		if c.ID == current.ID {
			current = c
		}
	}

	e.notifier.SendTurnNotification(ticket, notify.EventCalled, current.Name, nil)
	e.emit(EventTicketCalled, map[string]any{"ticket": ticket, "counter": current, "activity": activity})
	for _, t := range displaced {
		e.emit(EventTicketUpdated, map[string]any{"ticketId": t.ID, "status": t.Status, "ticket": t})
	}
	if counters != nil {
		e.emitCounters(counters)
	}
	e.emitActivity(activity)
	e.notifyUpcoming(ctx)

	e.logger.Info().Str("ticket_id", ticket.ID).Int("token", ticket.TokenNumber).Str("counter", current.Name).Msg("ticket called")
	return CallResult{Ticket: ticket, Counter: current, Counters: counters, Activity: activity}, nil
}

func (e *Engine) rollbackCall(ctx context.Context, ticket models.Ticket) error {
	status := models.StatusWaiting
	_, err := e.store.FindAndUpdateTicket(ctx,
		store.TicketFilter{ID: ticket.ID, Statuses: []string{models.StatusCalled}},
		store.SortJoinedAsc,
		store.TicketUpdate{Status: &status, ClearCounter: true, ClearCalledAt: true, UpdatedAt: e.now()},
	)
	if errors.Is(err, store.ErrNoMatch) {
		return nil
	}
	return err
}

// demote returns called tickets on counter matching extra back to waiting.
func (e *Engine) demote(ctx context.Context, counter models.Counter, extra store.TicketFilter) ([]models.Ticket, error) {
	filter := extra
	filter.Statuses = []string{models.StatusCalled}
	filter.CounterID = counter.ID
	filter.CounterName = counter.Name
	status := models.StatusWaiting
	demoted, err := e.store.UpdateTickets(ctx, filter, store.TicketUpdate{
		Status:        &status,
		ClearCounter:  true,
		ClearCalledAt: true,
		UpdatedAt:     e.now(),
	})
	if err != nil {
		return nil, err
	}
	for _, t := range demoted {
		e.logger.Warn().Str("ticket_id", t.ID).Int("token", t.TokenNumber).Str("counter", counter.Name).
			Msg("returned previously called ticket to waiting")
	}
	return demoted, nil
}

// displaceEarlier skips tickets called on counter before ticket. Skipped tickets stay
// recallable but are never handed out again by CallNext, and concurrent calls that
// land on one counter settle on the latest call.
func (e *Engine) displaceEarlier(ctx context.Context, ticket models.Ticket, counter models.Counter) ([]models.Ticket, error) {
	if ticket.CallSeq == 0 {
		return nil, nil
	}
	now := e.now()
	status := models.StatusSkipped
	displaced, err := e.store.UpdateTickets(ctx, store.TicketFilter{
		Statuses:        []string{models.StatusCalled},
		CounterID:       counter.ID,
		CounterName:     counter.Name,
		ExcludeID:       ticket.ID,
		CalledBeforeSeq: ticket.CallSeq,
	}, store.TicketUpdate{
		Status:          &status,
		SkippedAt:       &now,
		ClearCounter:    true,
		LastCounterID:   &counter.ID,
		LastCounterName: &counter.Name,
		UpdatedAt:       now,
	})
	if err != nil {
		return nil, err
	}
	for _, t := range displaced {
		e.logger.Warn().Str("ticket_id", t.ID).Int("token", t.TokenNumber).Str("counter", counter.Name).
			Msg("skipped ticket displaced by a newer call")
		activity := e.record(ctx, models.ActivitySkipped,
			fmt.Sprintf("%s skipped at %s", tokenLabel(t.TokenNumber), counterLabel(counter.Name)), t.ID)
		e.emitActivity(activity)
	}
	return displaced, nil
}
