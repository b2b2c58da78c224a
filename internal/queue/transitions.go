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

type TransitionResult struct {
	Ticket   models.Ticket
	Counters []models.Counter
	Activity *models.Activity
}

// Start marks a called ticket as being served at its counter.
func (e *Engine) Start(ctx context.Context, ticketID string) (res TransitionResult, err error) {
	ctx, span := e.startSpan(ctx, "Start", attribute.String("ticket_id", ticketID))
	defer func() { e.finish(span, "start", err) }()

	status := models.StatusServing
	ticket, err := e.store.FindAndUpdateTicket(ctx,
		store.TicketFilter{ID: ticketID, Statuses: store.AllowedFrom(store.ActionStart)},
		store.SortJoinedAsc,
		store.TicketUpdate{Status: &status, UpdatedAt: e.now()},
	)
	if err != nil {
		if errors.Is(err, store.ErrNoMatch) {
			return TransitionResult{}, e.loadForError(ctx, ticketID, func(models.Ticket) error {
				return invalidState("Only called tickets can be started.")
			})
		}
		return TransitionResult{}, unavailable("start ticket", err)
	}
	e.emit(EventTicketUpdated, map[string]any{"ticketId": ticket.ID, "status": ticket.Status, "ticket": ticket})
	return TransitionResult{Ticket: ticket}, nil
}

// Serve completes a called or serving ticket and frees its counter.
func (e *Engine) Serve(ctx context.Context, ticketID string) (res TransitionResult, err error) {
	ctx, span := e.startSpan(ctx, "Serve", attribute.String("ticket_id", ticketID))
	defer func() { e.finish(span, "serve", err) }()

	existing, err := e.getTicket(ctx, ticketID)
	if err != nil {
		return TransitionResult{}, err
	}
	serveErr := func(models.Ticket) error {
		return invalidState("Only called or serving tickets can be served.")
	}
	if !store.ValidTransition(store.ActionServe, existing.Status) {
		return TransitionResult{}, serveErr(existing)
	}

	now := e.now()
	status := models.StatusServed
	ticket, err := e.store.FindAndUpdateTicket(ctx,
		store.TicketFilter{ID: ticketID, Statuses: store.AllowedFrom(store.ActionServe)},
		store.SortJoinedAsc,
		store.TicketUpdate{Status: &status, ServedAt: &now, ClearCounter: true, UpdatedAt: now},
	)
	if err != nil {
		if errors.Is(err, store.ErrNoMatch) {
			return TransitionResult{}, e.loadForError(ctx, ticketID, serveErr)
		}
		return TransitionResult{}, unavailable("serve ticket", err)
	}

	counter, bound, err := e.counterFor(ctx, existing)
	if err != nil {
		e.logger.Error().Err(err).Str("ticket_id", ticket.ID).Msg("resolve counter for served ticket")
	}
	if bound {
		if _, err := e.store.UpdateCounter(ctx, counter.ID, store.CounterUpdate{ClearNowServing: true, UpdatedAt: now}); err != nil {
			e.logger.Error().Err(err).Str("counter_id", counter.ID).Msg("clear now serving token")
		}
	}

	label := existing.CounterName
	if label == "" {
		label = counter.Name
	}
	return e.finishTransition(ctx, ticket, models.ActivityServed,
		fmt.Sprintf("%s served at %s", tokenLabel(ticket.TokenNumber), counterLabel(label)))
}

// Skip moves a waiting or called ticket aside. The counter binding is cleared and
// remembered as the last counter, which Recall returns the ticket to.
func (e *Engine) Skip(ctx context.Context, ticketID string) (res TransitionResult, err error) {
	ctx, span := e.startSpan(ctx, "Skip", attribute.String("ticket_id", ticketID))
	defer func() { e.finish(span, "skip", err) }()

	existing, err := e.getTicket(ctx, ticketID)
	if err != nil {
		return TransitionResult{}, err
	}
	skipErr := func(models.Ticket) error {
		return invalidState("Only waiting or called tickets can be skipped.")
	}
	if !store.ValidTransition(store.ActionSkip, existing.Status) {
		return TransitionResult{}, skipErr(existing)
	}

	now := e.now()
	status := models.StatusSkipped
	update := store.TicketUpdate{Status: &status, SkippedAt: &now, ClearCounter: true, UpdatedAt: now}
	if existing.CounterID != "" || existing.CounterName != "" {
		update.LastCounterID = &existing.CounterID
		update.LastCounterName = &existing.CounterName
	}
	ticket, err := e.store.FindAndUpdateTicket(ctx,
		store.TicketFilter{ID: ticketID, Statuses: store.AllowedFrom(store.ActionSkip)},
		store.SortJoinedAsc,
		update,
	)
	if err != nil {
		if errors.Is(err, store.ErrNoMatch) {
			return TransitionResult{}, e.loadForError(ctx, ticketID, skipErr)
		}
		return TransitionResult{}, unavailable("skip ticket", err)
	}

	message := fmt.Sprintf("%s skipped", tokenLabel(ticket.TokenNumber))
	if existing.CounterName != "" {
		message += " at " + existing.CounterName
	}
	return e.finishTransition(ctx, ticket, models.ActivitySkipped, message)
}

// finishTransition appends the activity, re-syncs counters and broadcasts the change.
func (e *Engine) finishTransition(ctx context.Context, ticket models.Ticket, kind, message string) (TransitionResult, error) {
	if _, err := e.syncWaiting(ctx); err != nil {
		e.logger.Error().Err(err).Str("op", kind).Msg("sync waiting count")
	}
	activity := e.record(ctx, kind, message, ticket.ID)
	counters, err := e.refreshCounters(ctx, true)
	if err != nil {
		e.logger.Error().Err(err).Str("op", kind).Msg("refresh counters")
	}

	e.emit(EventTicketUpdated, map[string]any{"ticketId": ticket.ID, "status": ticket.Status, "ticket": ticket})
	if counters != nil {
		e.emitCounters(counters)
	}
	e.emitActivity(activity)
	e.logger.Info().Str("ticket_id", ticket.ID).Int("token", ticket.TokenNumber).Str("status", ticket.Status).Msg("ticket updated")
	return TransitionResult{Ticket: ticket, Counters: counters, Activity: &activity}, nil
}

// Recall re-announces a called ticket at its counter, or brings a skipped ticket back
// to the counter it was last called at. An explicit counter, or the CallNext policy
// when the last counter is gone or offline, is used otherwise. Any other ticket called
// at that counter returns to waiting, as with CallTicket.
func (e *Engine) Recall(ctx context.Context, ticketID, preferredCounterID string) (res TransitionResult, err error) {
	ctx, span := e.startSpan(ctx, "Recall", attribute.String("ticket_id", ticketID))
	defer func() { e.finish(span, "recall", err) }()

	existing, err := e.getTicket(ctx, ticketID)
	if err != nil {
		return TransitionResult{}, err
	}
	recallErr := func(models.Ticket) error {
		return invalidState("Only skipped or already called tickets can be recalled.")
	}
	if !store.ValidTransition(store.ActionRecall, existing.Status) {
		return TransitionResult{}, recallErr(existing)
	}

	var counter models.Counter
	bound := false
	if existing.Status == models.StatusCalled {
		if counter, bound, err = e.counterFor(ctx, existing); err != nil {
			return TransitionResult{}, unavailable("resolve counter", err)
		}
	}

	var update store.TicketUpdate
	var filter store.TicketFilter
	var demoted []models.Ticket
	if bound {
		now := e.now()
		update = store.TicketUpdate{CalledAt: &now, UpdatedAt: now}
		filter = store.TicketFilter{ID: ticketID, Statuses: []string{models.StatusCalled}}
	} else {
		counter, err = e.recallCounter(ctx, existing, preferredCounterID)
		if errors.Is(err, errNoOnlineCounter) {
			return TransitionResult{}, conflict("No online counters available.")
		}
		if err != nil {
			return TransitionResult{}, unavailable("select counter", err)
		}
		if demoted, err = e.demote(ctx, counter, store.TicketFilter{ExcludeID: ticketID}); err != nil {
			return TransitionResult{}, unavailable("demote called tickets", err)
		}
		update = e.bindUpdate(counter)
		filter = store.TicketFilter{ID: ticketID, Statuses: []string{existing.Status}}
	}

	ticket, err := e.store.FindAndUpdateTicket(ctx, filter, store.SortJoinedAsc, update)
	if err != nil {
		if errors.Is(err, store.ErrNoMatch) {
			return TransitionResult{}, e.loadForError(ctx, ticketID, func(current models.Ticket) error {
				if store.ValidTransition(store.ActionRecall, current.Status) {
					return conflict("Ticket changed while recalling, please retry.")
				}
				return recallErr(current)
			})
		}
		return TransitionResult{}, unavailable("recall ticket", err)
	}

	displaced, err := e.displaceEarlier(ctx, ticket, counter)
	if err != nil {
		e.logger.Error().Err(err).Str("counter_id", counter.ID).Msg("displace earlier calls")
	}
	if existing.Status != models.StatusCalled || len(demoted) > 0 {
		if _, err := e.syncWaiting(ctx); err != nil {
			e.logger.Error().Err(err).Msg("sync waiting count after recall")
		}
	}

	label := ticket.CounterName
	activity := e.record(ctx, models.ActivityRecalled,
		fmt.Sprintf("%s recalled to %s", tokenLabel(ticket.TokenNumber), counterLabel(label)), ticket.ID)
	counters, err := e.refreshCounters(ctx, true)
	if err != nil {
		e.logger.Error().Err(err).Msg("refresh counters after recall")
	}

	e.notifier.SendTurnNotification(ticket, notify.EventRecalled, label, nil)
	e.emit(EventTicketRecalled, map[string]any{"ticket": ticket, "activity": activity})
	for _, t := range append(demoted, displaced...) {
		e.emit(EventTicketUpdated, map[string]any{"ticketId": t.ID, "status": t.Status, "ticket": t})
	}
	if counters != nil {
		e.emitCounters(counters)
	}
	e.emitActivity(activity)

	e.logger.Info().Str("ticket_id", ticket.ID).Int("token", ticket.TokenNumber).Str("counter", label).Msg("ticket recalled")
	return TransitionResult{Ticket: ticket, Counters: counters, Activity: &activity}, nil
}

// recallCounter picks the counter for a ticket that has no live binding.
func (e *Engine) recallCounter(ctx context.Context, ticket models.Ticket, preferredID string) (models.Counter, error) {
	if preferredID == "" && (ticket.LastCounterID != "" || ticket.LastCounterName != "") {
		last, found, err := e.counterFor(ctx, models.Ticket{CounterID: ticket.LastCounterID, CounterName: ticket.LastCounterName})
		if err != nil {
			return models.Counter{}, err
		}
		if found && last.IsOnline() {
			return last, nil
		}
		e.logger.Debug().Str("ticket_id", ticket.ID).Str("counter", ticket.LastCounterName).
			Msg("last counter unavailable, selecting another")
	}
	return e.selectCounter(ctx, preferredID)
}

// Delete removes a ticket that has not been served.
func (e *Engine) Delete(ctx context.Context, ticketID string) (res TransitionResult, err error) {
	ctx, span := e.startSpan(ctx, "Delete", attribute.String("ticket_id", ticketID))
	defer func() { e.finish(span, "delete", err) }()

	deleted, err := e.store.DeleteTicket(ctx, store.TicketFilter{ID: ticketID, Statuses: store.AllowedFrom(store.ActionDelete)})
	if err != nil {
		if errors.Is(err, store.ErrNoMatch) {
			return TransitionResult{}, e.loadForError(ctx, ticketID, func(models.Ticket) error {
				return conflict("Served tickets cannot be deleted.")
			})
		}
		return TransitionResult{}, unavailable("delete ticket", err)
	}

	if _, err := e.syncWaiting(ctx); err != nil {
		e.logger.Error().Err(err).Msg("sync waiting count after delete")
	}
	activity := e.record(ctx, models.ActivityDeleted, fmt.Sprintf("%s left the queue", tokenLabel(deleted.TokenNumber)), deleted.ID)
	counters, err := e.refreshCounters(ctx, true)
	if err != nil {
		e.logger.Error().Err(err).Msg("refresh counters after delete")
	}

	e.emit(EventTicketDeleted, map[string]any{"ticketId": deleted.ID, "tokenNumber": deleted.TokenNumber})
	if counters != nil {
		e.emitCounters(counters)
	}
	e.emitActivity(activity)

	e.logger.Info().Str("ticket_id", deleted.ID).Int("token", deleted.TokenNumber).Msg("ticket deleted")
	return TransitionResult{Ticket: deleted, Counters: counters, Activity: &activity}, nil
}
