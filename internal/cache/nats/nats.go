// Package nats connects the service to NATS, either to external servers or to an embedded one.
package nats

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/johbar/tesspipe/internal/config"
	"github.com/nats-io/nats.go"
)

var (
	errNatsNotEmbedded = errors.New("NATS has not been embedded in this build")
	// ErrNoNats is returned by Connect when neither an URL is configured nor a server embedded
	ErrNoNats = errors.New("no NATS URL configured and NATS not embedded")
)

// Connect returns a connection to the configured NATS server(s). Without an URL an embedded server
// is started, if this build includes one. The returned function drains the connection and stops
// the embedded server.
func Connect(ctx context.Context, conf config.TesConfig, log *slog.Logger) (*nats.Conn, func(), error) {
	if conf.NatsUrl != "" {
		nc, err := SetupNatsConnection(ctx, conf, log)
		if err != nil {
			return nil, nil, err
		}
		return nc, func() { _ = nc.Drain() }, nil
	}
	if !NatsEmbedded {
		return nil, nil, ErrNoNats
	}
	log.Info("Starting embedded NATS server", "exposed", conf.ExposeNats, "storeDir", conf.NatsStoreDir)
	return ConnectToEmbeddedNatsServer(conf)
}

// SetupNatsConnection connects the service to external NATS servers,
// retrying up to NatsConnectRetries times.
func SetupNatsConnection(ctx context.Context, conf config.TesConfig, log *slog.Logger) (*nats.Conn, error) {
	var attempts int
	log.Info("Try connecting to NATS", "url", conf.NatsUrl, "timeoutSecs", conf.NatsTimeout.Seconds())
	for {
		attempts++
		nc, err := nats.Connect(conf.NatsUrl, nats.Name("tesspipe"), nats.Timeout(conf.NatsTimeout))
		if err == nil {
			return nc, nil
		}
		log.Error("Connecting to NATS failed",
			"url", conf.NatsUrl,
			"err", err,
			"count", attempts,
			"maxRetries", conf.NatsConnectRetries)
		if attempts > conf.NatsConnectRetries {
			log.Error("Connecting to NATS failed. Retry count exceeded", "err", err, "maxRetries", conf.NatsConnectRetries)
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
