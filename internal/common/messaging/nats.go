// internal/common/messaging/nats.go
package messaging

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"salesforce-workers/internal/common/config"
)

// Connect opens a NATS connection that keeps retrying in the background when
// the server is not up yet.
func Connect(cfg config.EventsConfig, clientName string) (*nats.Conn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats url is required")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(clientName),
		nats.Timeout(10*time.Second),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats at %s: %w", cfg.URL, err)
	}
	return conn, nil
}
