// Package queue implements the ticket state machine: token issuance, counter
// assignment, status transitions and the fan-out that follows each change.
package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"smartq/internal/metrics"
	"smartq/internal/models"
	"smartq/internal/notify"
	"smartq/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultRetention           = 48 * time.Hour
	defaultAvgMinutesPerTicket = 4
	defaultUpcomingLimit       = 3
	maxTokenAttempts           = 5
)

var DefaultCounterNames = []string{"Counter 1", "Counter 2", "Counter 3"}

// Store is the persistence the engine needs.
type Store interface {
	store.TicketStore
	store.CounterStore
	store.ActivityStore
}

// Notifier delivers push notifications. Implementations must not block.
type Notifier interface {
	SendTurnNotification(ticket models.Ticket, event notify.Event, counterLabel string, extra map[string]string)
}

// Broadcaster fans events out to connected real-time clients. Implementations must not block.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

type Options struct {
	Now                 func() time.Time
	Location            *time.Location
	Retention           time.Duration
	AvgMinutesPerTicket int
	UpcomingLimit       int
	DefaultCounters     []string
	Logger              zerolog.Logger
	Tracer              trace.Tracer
}

type Engine struct {
	store       Store
	notifier    Notifier
	broadcaster Broadcaster
	now         func() time.Time
	location    *time.Location
	retention   time.Duration
	avgMinutes  int
	upcoming    int
	defaults    []string
	logger      zerolog.Logger
	tracer      trace.Tracer

	bootstrapMu sync.Mutex
}

func NewEngine(st Store, notifier Notifier, broadcaster Broadcaster, opts Options) (*Engine, error) {
	if st == nil {
		return nil, errors.New("queue: store is required")
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if broadcaster == nil {
		broadcaster = noopBroadcaster{}
	}
	e := &Engine{
		store:       st,
		notifier:    notifier,
		broadcaster: broadcaster,
		now:         opts.Now,
		location:    opts.Location,
		retention:   opts.Retention,
		avgMinutes:  opts.AvgMinutesPerTicket,
		upcoming:    opts.UpcomingLimit,
		defaults:    opts.DefaultCounters,
		logger:      opts.Logger,
		tracer:      opts.Tracer,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.location == nil {
		e.location = time.Local
	}
	if e.retention <= 0 {
		e.retention = defaultRetention
	}
	if e.avgMinutes <= 0 {
		e.avgMinutes = defaultAvgMinutesPerTicket
	}
	if e.upcoming <= 0 {
		e.upcoming = defaultUpcomingLimit
	}
	if len(e.defaults) == 0 {
		e.defaults = DefaultCounterNames
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("smartq/queue")
	}
	return e, nil
}

func (e *Engine) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "queue."+op, trace.WithAttributes(attrs...))
}

func (e *Engine) finish(span trace.Span, op string, err error) {
	result := "ok"
	if err != nil {
		result = KindOf(err).String()
		span.RecordError(err)
		span.SetStatus(codes.Error, MessageOf(err))
	}
	metrics.QueueTransitions.WithLabelValues(op, result).Inc()
	span.End()
}

func (e *Engine) dayStart(t time.Time) time.Time {
	local := t.In(e.location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, e.location)
}

func (e *Engine) dayKey(t time.Time) string {
	return t.In(e.location).Format("2006-01-02")
}

// syncWaiting writes the global waiting count onto every counter.
func (e *Engine) syncWaiting(ctx context.Context) (int, error) {
	if _, err := e.ensureCounters(ctx); err != nil {
		return 0, err
	}
	waiting, err := e.store.CountTickets(ctx, store.TicketFilter{Statuses: []string{models.StatusWaiting}})
	if err != nil {
		return 0, err
	}
	if _, err := e.store.UpdateCounters(ctx, store.CounterFilter{}, store.CounterUpdate{WaitingCount: &waiting, UpdatedAt: e.now()}); err != nil {
		return 0, err
	}
	metrics.QueueWaiting.Set(float64(waiting))
	return waiting, nil
}

// record appends an activity. The transition it describes is already committed, so a
// failure here is logged rather than returned.
func (e *Engine) record(ctx context.Context, kind, message, ticketID string) models.Activity {
	activity := models.Activity{
		ID:        uuid.NewString(),
		Type:      kind,
		Message:   message,
		TicketID:  ticketID,
		CreatedAt: e.now(),
	}
	created, err := e.store.CreateActivity(ctx, activity)
	if err != nil {
		e.logger.Error().Err(err).Str("type", kind).Str("ticket_id", ticketID).Msg("append activity")
		return activity
	}
	return created
}

func (e *Engine) emit(event string, payload any) {
	e.broadcaster.Broadcast(event, payload)
}

func (e *Engine) emitActivity(activity models.Activity) {
	e.emit(EventActivityCreated, map[string]any{"activity": activity})
}

func (e *Engine) emitCounters(counters []models.Counter) {
	e.emit(EventCountersUpdated, map[string]any{"counters": counters})
}

// loadForError explains why a conditional update on ticketID matched nothing.
func (e *Engine) loadForError(ctx context.Context, ticketID string, stateErr func(models.Ticket) error) error {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, store.ErrTicketNotFound) {
			return notFound("Ticket not found", err)
		}
		return unavailable("load ticket", err)
	}
	return stateErr(ticket)
}

func (e *Engine) getTicket(ctx context.Context, ticketID string) (models.Ticket, error) {
	ticket, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, store.ErrTicketNotFound) {
			return models.Ticket{}, notFound("Ticket not found", err)
		}
		return models.Ticket{}, unavailable("load ticket", err)
	}
	return ticket, nil
}

func counterLabel(name string) string {
	if name == "" {
		return "counter"
	}
	return name
}

func tokenLabel(token int) string {
	return fmt.Sprintf("Token #%d", token)
}

type noopNotifier struct{}

func (noopNotifier) SendTurnNotification(models.Ticket, notify.Event, string, map[string]string) {}

type noopBroadcaster struct{}

func (noopBroadcaster) Broadcast(string, any) {}
