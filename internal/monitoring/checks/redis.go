package checks

import (
	"context"
	"errors"

	"github.com/charlesng35/shopapp/internal/monitoring"
)

// Pinger is the slice of a Redis client the probe needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Redis probes the shared cache. Sessions and rate limits fall back to the
// database without it, so a failure only degrades the service. A nil pinger
// means the connection was never established.
func Redis(client Pinger) monitoring.Check {
	return monitoring.Check{
		Name:     "redis",
		Optional: true,
		Probe: func(ctx context.Context) error {
			if client == nil {
				return errors.New("redis unavailable")
			}
			return client.Ping(ctx)
		},
	}
}
