//go:build !embed_nats

package nats

import (
	tesconfig "github.com/johbar/tesspipe/internal/config"
	"github.com/nats-io/nats.go"
)

const NatsEmbedded bool = false

func ConnectToEmbeddedNatsServer(_ tesconfig.TesConfig) (*nats.Conn, func(), error) {
	return nil, nil, errNatsNotEmbedded
}
