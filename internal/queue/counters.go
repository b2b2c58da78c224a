package queue

import (
	"context"
	"errors"
	"time"

	"smartq/internal/models"
	"smartq/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

var errNoOnlineCounter = errors.New("no online counter")

// ensureCounters returns all counters, inserting the default set when none exist.
func (e *Engine) ensureCounters(ctx context.Context) ([]models.Counter, error) {
	counters, err := e.store.ListCounters(ctx, store.CounterFilter{})
	if err != nil || len(counters) > 0 {
		return counters, err
	}

	e.bootstrapMu.Lock()
	defer e.bootstrapMu.Unlock()
	counters, err = e.store.ListCounters(ctx, store.CounterFilter{})
	if err != nil || len(counters) > 0 {
		return counters, err
	}

	now := e.now()
	online := true
	seed := make([]models.Counter, 0, len(e.defaults))
	for i, name := range e.defaults {
		// Distinct creation times keep the configured order as the "oldest" order.
		createdAt := now.Add(time.Duration(i) * time.Millisecond)
		seed = append(seed, models.Counter{
			ID:                  uuid.NewString(),
			Name:                name,
			AvgSecondsPerTicket: models.DefaultAvgSecondsPerTicket,
			Online:              &online,
			CreatedAt:           createdAt,
			UpdatedAt:           createdAt,
		})
	}
	if err := e.store.InsertCounters(ctx, seed); err != nil && !errors.Is(err, store.ErrDuplicate) {
		return nil, err
	}
	e.logger.Info().Int("count", len(seed)).Msg("bootstrapped default counters")
	return e.store.ListCounters(ctx, store.CounterFilter{})
}

// selectCounter returns the preferred counter when it is online, otherwise the
// oldest online counter.
func (e *Engine) selectCounter(ctx context.Context, preferredID string) (models.Counter, error) {
	if _, err := e.ensureCounters(ctx); err != nil {
		return models.Counter{}, err
	}
	online, err := e.store.ListCounters(ctx, store.CounterFilter{OnlineOnly: true})
	if err != nil {
		return models.Counter{}, err
	}
	if len(online) == 0 {
		return models.Counter{}, errNoOnlineCounter
	}
	if preferredID != "" {
		for _, counter := range online {
			if counter.ID == preferredID {
				return counter, nil
			}
		}
		e.logger.Debug().Str("counter_id", preferredID).Msg("preferred counter unavailable, using oldest online")
	}
	return online[0], nil
}

// counterFor finds the counter a ticket is bound to, by id or by name.
func (e *Engine) counterFor(ctx context.Context, ticket models.Ticket) (models.Counter, bool, error) {
	if ticket.CounterID == "" && ticket.CounterName == "" {
		return models.Counter{}, false, nil
	}
	counters, err := e.store.ListCounters(ctx, store.CounterFilter{})
	if err != nil {
		return models.Counter{}, false, err
	}
	for _, counter := range counters {
		if ticket.BoundTo(counter) {
			return counter, true, nil
		}
	}
	return models.Counter{}, false, nil
}

// deriveCounters computes each counter's now-serving token from the active tickets
// bound to it. When several tickets claim one counter the most recently called wins.
func deriveCounters(counters []models.Counter, active []models.Ticket, logger zerolog.Logger) []models.Counter {
	out := make([]models.Counter, 0, len(counters))
	for _, counter := range counters {
		var current *models.Ticket
		var tokens []int
		for i := range active {
			ticket := active[i]
			if !ticket.Active() || !ticket.BoundTo(counter) {
				continue
			}
			tokens = append(tokens, ticket.TokenNumber)
			if current == nil || calledLater(ticket, *current) {
				current = &active[i]
			}
		}
		if len(tokens) > 1 {
			logger.Warn().Str("counter_id", counter.ID).Str("counter", counter.Name).Ints("tokens", tokens).
				Msg("multiple active tickets bound to one counter")
		}
		counter.NowServingToken = nil
		if current != nil {
			token := current.TokenNumber
			counter.NowServingToken = &token
		}
		out = append(out, counter)
	}
	return out
}

func calledLater(a, b models.Ticket) bool {
	if a.CallSeq > 0 && b.CallSeq > 0 {
		return a.CallSeq > b.CallSeq
	}
	switch {
	case a.CalledAt == nil && b.CalledAt == nil:
		return a.TokenNumber > b.TokenNumber
	case a.CalledAt == nil:
		return false
	case b.CalledAt == nil:
		return true
	case a.CalledAt.Equal(*b.CalledAt):
		return a.TokenNumber > b.TokenNumber
	default:
		return a.CalledAt.After(*b.CalledAt)
	}
}

// refreshCounters derives the counter view. With reconcile set, cached
// nowServingToken values that disagree with the derived view are rewritten.
func (e *Engine) refreshCounters(ctx context.Context, reconcile bool) ([]models.Counter, error) {
	counters, err := e.ensureCounters(ctx)
	if err != nil {
		return nil, err
	}
	active, err := e.store.ListTickets(ctx, store.TicketFilter{
		Statuses: []string{models.StatusCalled, models.StatusServing},
	}, store.SortJoinedAsc, 0)
	if err != nil {
		return nil, err
	}
	derived := deriveCounters(counters, active, e.logger)
	if !reconcile {
		return derived, nil
	}
	for i, counter := range derived {
		if sameToken(counter.NowServingToken, counters[i].NowServingToken) {
			continue
		}
		update := store.CounterUpdate{UpdatedAt: e.now()}
		if counter.NowServingToken == nil {
			update.ClearNowServing = true
		} else {
			update.NowServingToken = counter.NowServingToken
		}
		if _, err := e.store.UpdateCounter(ctx, counter.ID, update); err != nil {
			e.logger.Warn().Err(err).Str("counter_id", counter.ID).Msg("reconcile now serving token")
		}
	}
	return derived, nil
}

func sameToken(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Counters returns every counter with its derived now-serving token.
func (e *Engine) Counters(ctx context.Context) (counters []models.Counter, err error) {
	ctx, span := e.startSpan(ctx, "Counters")
	defer func() { e.finish(span, "counters", err) }()

	counters, err = e.refreshCounters(ctx, false)
	if err != nil {
		return nil, unavailable("list counters", err)
	}
	return counters, nil
}

// SetCounterOnline toggles whether call operations may select the counter.
func (e *Engine) SetCounterOnline(ctx context.Context, counterID string, online bool) (counter models.Counter, err error) {
	ctx, span := e.startSpan(ctx, "SetCounterOnline", attribute.String("counter_id", counterID), attribute.Bool("online", online))
	defer func() { e.finish(span, "set_counter_online", err) }()

	updated, err := e.store.UpdateCounter(ctx, counterID, store.CounterUpdate{Online: &online, UpdatedAt: e.now()})
	if err != nil {
		if errors.Is(err, store.ErrCounterNotFound) {
			return models.Counter{}, notFound("Counter not found", err)
		}
		return models.Counter{}, unavailable("update counter", err)
	}
	counters, err := e.refreshCounters(ctx, true)
	if err != nil {
		return models.Counter{}, unavailable("list counters", err)
	}
	for _, c := range counters {
		if c.ID == updated.ID {
			updated = c
		}
	}
	e.emitCounters(counters)
	e.logger.Info().Str("counter_id", counterID).Bool("online", online).Msg("counter availability changed")
	return updated, nil
}
