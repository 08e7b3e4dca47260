//go:build embed_nats

package nats

import (
	"errors"
	"time"

	tesconfig "github.com/johbar/tesspipe/internal/config"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

const NatsEmbedded bool = true

// ConnectToEmbeddedNatsServer starts a NATS server with JetStream in this process
// and returns an in-process connection to it.
func ConnectToEmbeddedNatsServer(conf tesconfig.TesConfig) (*nats.Conn, func(), error) {
	ns, err := server.NewServer(
		&server.Options{
			ServerName: "tesspipe",
			JetStream:  true,
			MaxPayload: conf.NatsMaxPayload,
			DontListen: !conf.ExposeNats,
			Host:       conf.NatsHost,
			Port:       conf.NatsPort,
			StoreDir:   conf.NatsStoreDir,
		})
	if err != nil {
		return nil, nil, err
	}
	ns.ConfigureLogger()
	ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, nil, errors.New("embedded NATS not ready")
	}
	nc, err := nats.Connect("", nats.InProcessServer(ns), nats.Name("tesspipe"))
	if err != nil {
		ns.Shutdown()
		return nil, nil, err
	}
	return nc, func() {
		_ = nc.Drain()
		ns.Shutdown()
		ns.WaitForShutdown()
	}, nil
}
