package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
	"strconv"

	"github.com/johbar/tesspipe/pkg/tesswrap"
	"github.com/nats-io/nats.go/jetstream"
)

// Result is a recognition result as served to clients and kept in the cache
type Result struct {
	Mode     string            `json:"mode"`
	Info     string            `json:"info,omitempty"`
	Text     string            `json:"text,omitempty"`
	Glyphs   []tesswrap.Glyph  `json:"glyphs,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type Cache interface {
	// Get returns the result saved under key and false if there is none
	Get(ctx context.Context, key string) (*Result, bool, error)
	Save(ctx context.Context, key string, res *Result) (*jetstream.ObjectInfo, error)
}

// Key derives the cache key of a payload recognized in mode with opts.
// The output stem does not influence the result and is ignored.
func Key(data []byte, mode string, opts tesswrap.Options) string {
	h := sha256.New()
	h.Write(data)
	h.Write([]byte{0})
	h.Write([]byte(mode))
	h.Write([]byte{0})
	h.Write([]byte(opts.Lang))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(opts.DPI)))
	keys := make([]string, 0, len(opts.Config))
	for k := range opts.Config {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(opts.Config[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

type NopCache struct{}

func (c *NopCache) Get(ctx context.Context, key string) (*Result, bool, error) {
	return nil, false, nil
}

func (c *NopCache) Save(ctx context.Context, key string, res *Result) (*jetstream.ObjectInfo, error) {
	return &jetstream.ObjectInfo{}, nil
}
