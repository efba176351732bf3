package alert

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/icwatch/icwatch/pkg/protocol"
)

// NATSConfig holds settings for publishing alerts on a NATS bus.
type NATSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
}

// NATSNotifier publishes every event as JSON on icwatch.alerts.<code>.
type NATSNotifier struct {
	nc *nats.Conn
}

// NewNATSNotifier creates a notifier on an established connection.
// The caller owns nc.
func NewNATSNotifier(nc *nats.Conn) *NATSNotifier {
	return &NATSNotifier{nc: nc}
}

// Send implements Notifier.
func (n *NATSNotifier) Send(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := n.nc.Publish(protocol.SubjectAlerts(ev.Code.String()), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		return n.nc.Flush()
	}
	return n.nc.FlushWithContext(ctx)
}
