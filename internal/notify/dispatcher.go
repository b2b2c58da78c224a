// Package notify sends push notifications for ticket events. Delivery is best
// effort: failures are logged and counted, never returned to queue operations.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"smartq/internal/metrics"
	"smartq/internal/models"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	ErrNoDeviceToken = errors.New("ticket has no device token")
	ErrUnavailable   = errors.New("push delivery unavailable")
)

type Options struct {
	Timeout          time.Duration
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Logger           zerolog.Logger
}

type Dispatcher struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker[struct{}]
	timeout  time.Duration
	logger   zerolog.Logger
	wg       sync.WaitGroup
}

func NewDispatcher(provider Provider, opts Options) *Dispatcher {
	if provider == nil {
		provider = noopProvider{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	threshold := opts.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}
	openTimeout := opts.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	logger := opts.Logger
	d := &Dispatcher{
		provider: provider,
		timeout:  timeout,
		logger:   logger,
	}
	d.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "push",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("push circuit breaker state changed")
		},
	})
	return d
}

// SendTurnNotification delivers a ticket event in the background. Tickets without a
// device token are ignored.
func (d *Dispatcher) SendTurnNotification(ticket models.Ticket, event Event, counterLabel string, extra map[string]string) {
	if ticket.DeviceToken == "" {
		return
	}
	msg := BuildTurnMessage(ticket, event, counterLabel, extra)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.SendRawNotification(ctx, ticket.DeviceToken, msg); err != nil {
			d.logger.Warn().Err(err).
				Str("ticket_id", ticket.ID).
				Int("token", ticket.TokenNumber).
				Str("event", string(event)).
				Msg("push notification failed")
		}
	}()
}

// SendRawNotification delivers msg synchronously and reports the outcome. The
// eventType entry of msg.Data labels the delivery metric.
func (d *Dispatcher) SendRawNotification(ctx context.Context, deviceToken string, msg Message) error {
	if deviceToken == "" {
		return ErrNoDeviceToken
	}
	event := Event(msg.Data["eventType"])
	if event == "" {
		event = "raw"
	}
	return d.deliver(ctx, deviceToken, event, msg)
}

// Wait blocks until background deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, deviceToken string, event Event, msg Message) error {
	_, err := d.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, d.provider.Send(ctx, deviceToken, msg)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = errors.Join(ErrUnavailable, err)
	}
	metrics.PushNotifications.WithLabelValues(string(event), metrics.Result(err)).Inc()
	return err
}
