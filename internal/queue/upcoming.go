package queue

import (
	"context"
	"errors"
	"strconv"

	"smartq/internal/models"
	"smartq/internal/notify"
	"smartq/internal/store"
)

// notifyUpcoming warns the first few waiting visitors with a device token that their
// turn is near. Each ticket's flag is claimed before sending, so a ticket is
// notified at most once even when calls race.
func (e *Engine) notifyUpcoming(ctx context.Context) {
	notified := false
	candidates, err := e.store.ListTickets(ctx, store.TicketFilter{
		Statuses:         []string{models.StatusWaiting},
		HasDeviceToken:   true,
		UpcomingNotified: &notified,
	}, store.SortJoinedAsc, e.upcoming)
	if err != nil {
		e.logger.Warn().Err(err).Msg("list upcoming tickets")
		return
	}

	flag := true
	for i, candidate := range candidates {
		claimed, err := e.store.FindAndUpdateTicket(ctx,
			store.TicketFilter{ID: candidate.ID, Statuses: []string{models.StatusWaiting}, UpcomingNotified: &notified},
			store.SortJoinedAsc,
			store.TicketUpdate{UpcomingNotified: &flag, UpdatedAt: e.now()},
		)
		if errors.Is(err, store.ErrNoMatch) {
			continue
		}
		if err != nil {
			e.logger.Warn().Err(err).Str("ticket_id", candidate.ID).Msg("claim upcoming notification")
			continue
		}
		eta := (i + 1) * e.avgMinutes
		e.notifier.SendTurnNotification(claimed, notify.EventUpcoming, "", map[string]string{
			"etaMinutes": strconv.Itoa(eta),
		})
	}
}
