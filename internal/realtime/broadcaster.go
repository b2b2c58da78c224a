package realtime

import (
	"encoding/json"
	"errors"
	"time"

	"smartq/internal/metrics"

	"github.com/rs/zerolog"
)

// Publisher forwards encoded events to another process.
type Publisher interface {
	Publish(event string, data []byte) error
}

type Envelope struct {
	Event  string    `json:"event"`
	Data   any       `json:"data"`
	SentAt time.Time `json:"sentAt"`
}

// Broadcaster encodes queue events once and hands them to the hub and, when set, the
// publisher. Delivery failures are logged and never returned.
type Broadcaster struct {
	hub       *Hub
	publisher Publisher
	now       func() time.Time
	logger    zerolog.Logger
}

func NewBroadcaster(h *Hub, publisher Publisher, logger zerolog.Logger) (*Broadcaster, error) {
	if h == nil {
		return nil, errors.New("realtime: hub is required")
	}
	return &Broadcaster{hub: h, publisher: publisher, now: time.Now, logger: logger}, nil
}

func (b *Broadcaster) Broadcast(event string, payload any) {
	data, err := json.Marshal(Envelope{Event: event, Data: payload, SentAt: b.now().UTC()})
	if err != nil {
		b.logger.Error().Err(err).Str("event", event).Msg("encode broadcast")
		return
	}
	metrics.BroadcastEvents.WithLabelValues(event).Inc()
	b.hub.Broadcast(data, event)
	if b.publisher == nil {
		return
	}
	if err := b.publisher.Publish(event, data); err != nil {
		b.logger.Warn().Err(err).Str("event", event).Msg("publish event")
	}
}
