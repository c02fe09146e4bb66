package store

import (
	"context"
	"errors"
	"strings"

	"github.com/nats-io/nats.go"

	logx "gozo/pkg/logx"
)

// Open initializes the configured store. It returns (nil, nil) if
// durability is disabled, in which case every admission the scheduler sees
// is treated as ephemeral regardless of whether the request carried an id.
func Open(ctx context.Context, cfg Config, nc *nats.Conn, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	switch driver {
	case "jetstream":
		if nc == nil {
			return nil, errors.New("store: jetstream driver requires a bus connection")
		}
		return OpenJetStream(ctx, nc, cfg, log)
	case "memory":
		return OpenMemory(), nil
	default:
		return nil, errors.New("store: unknown driver: " + driver)
	}
}
