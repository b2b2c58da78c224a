package queue

import (
	"context"

	"smartq/internal/metrics"
	"smartq/internal/store"
)

type PurgeResult struct {
	Tickets    int64
	Activities int64
}

// PurgeExpired drops tickets past their expiry and activity older than the
// retention window.
func (e *Engine) PurgeExpired(ctx context.Context) (res PurgeResult, err error) {
	ctx, span := e.startSpan(ctx, "PurgeExpired")
	defer func() { e.finish(span, "purge", err) }()

	now := e.now()
	res.Tickets, err = e.store.DeleteTickets(ctx, store.TicketFilter{ExpiresBefore: &now})
	if err != nil {
		return PurgeResult{}, unavailable("purge tickets", err)
	}
	res.Activities, err = e.store.DeleteActivities(ctx, now.Add(-e.retention))
	if err != nil {
		return res, unavailable("purge activity", err)
	}
	metrics.PurgedRecords.WithLabelValues("tickets").Add(float64(res.Tickets))
	metrics.PurgedRecords.WithLabelValues("activities").Add(float64(res.Activities))

	if res.Tickets > 0 {
		if _, err := e.syncWaiting(ctx); err != nil {
			e.logger.Error().Err(err).Msg("sync waiting count after purge")
		}
		if counters, err := e.refreshCounters(ctx, true); err == nil {
			e.emitCounters(counters)
		}
		e.logger.Info().Int64("tickets", res.Tickets).Int64("activities", res.Activities).Msg("purged expired records")
	}
	return res, nil
}
