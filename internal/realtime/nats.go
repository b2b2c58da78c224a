package realtime

import (
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSPublisher mirrors broadcast events onto NATS subjects named <prefix>.<event>,
// with ':' in event names mapped to '.' (ticket:called -> smartq.ticket.called).
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
}

func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("smartq"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if prefix == "" {
		prefix = "smartq"
	}
	return &NATSPublisher{conn: conn, prefix: prefix}, nil
}

func (p *NATSPublisher) Publish(event string, data []byte) error {
	return p.conn.Publish(Subject(p.prefix, event), data)
}

// Close flushes pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

func Subject(prefix, event string) string {
	return prefix + "." + strings.ReplaceAll(event, ":", ".")
}
