package event

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DialOptions configure the NATS connection used for event publishing
type DialOptions struct {
	Name          string
	Timeout       time.Duration
	ReconnectWait time.Duration
	MaxReconnects int
}

// DefaultDialOptions returns dial options tuned for an embedded publisher:
// indefinite reconnection, modest waits.
func DefaultDialOptions() DialOptions {
	return DialOptions{
		Name:          "brooklyn-events",
		Timeout:       5 * time.Second,
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
	}
}

// Dial connects to NATS for event publishing. Connection lifecycle events
// are logged, never surfaced; the publisher tolerates disconnected periods
// and its retry layer absorbs transient publish failures.
func Dial(url string, opts DialOptions, logger *slog.Logger) (*nats.Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}

	nc, err := nats.Connect(url,
		nats.Name(opts.Name),
		nats.Timeout(opts.Timeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("event transport disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("event transport reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("event transport closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect event transport: %w", err)
	}
	return nc, nil
}
