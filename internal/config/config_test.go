package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/johbar/tesspipe/pkg/tesswrap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := NewTesConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "system", cfg.TesseractStrategy)
	assert.Equal(t, "eng", cfg.TesseractLangs)
	assert.Equal(t, 150, cfg.Dpi)
	assert.True(t, cfg.Isolate)
	assert.True(t, cfg.TsvPass)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)
	assert.Equal(t, "cli", cfg.Backend)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, uint64(50*1024*1024), cfg.MaxFileSizeBytes)
	assert.NotEmpty(t, cfg.WorkDir)
}

func TestFromEnv(t *testing.T) {
	t.Setenv("TES_TESSERACT_STRATEGY", "explicit")
	t.Setenv("TES_TESSERACT_PATH", "/opt/tesseract/bin/tesseract")
	t.Setenv("TES_TESSERACT_LANGS", "deu+eng")
	t.Setenv("TES_DPI", "300")
	t.Setenv("TES_PSM", "6")
	t.Setenv("TES_MAX_FILE_SIZE", "2MB")
	t.Setenv("TES_LOG_LEVEL", "debug")
	t.Setenv("TES_TIMEOUT", "5s")

	cfg, err := NewTesConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, uint64(2_000_000), cfg.MaxFileSizeBytes)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	loc, err := cfg.Locator()
	require.NoError(t, err)
	path, ok := loc.Location()
	assert.True(t, ok)
	assert.Equal(t, "/opt/tesseract/bin/tesseract", path)

	opts := cfg.BaseOptions()
	assert.Equal(t, "deu+eng", opts.Lang)
	assert.Equal(t, 300, opts.DPI)
	assert.Equal(t, []string{"img.png", tesswrap.DefaultStem, "-l", "deu+eng", "--dpi", "300", "--psm", "6", "--oem", "3", "-c", tesswrap.DefaultExtra},
		tesswrap.BuildArgs("img.png", opts))
}

func TestInvalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown strategy", "TES_TESSERACT_STRATEGY", "guess"},
		{"explicit without path", "TES_TESSERACT_STRATEGY", "explicit"},
		{"unknown backend", "TES_BACKEND", "wasm"},
		{"dpi out of range", "TES_DPI", "0"},
		{"psm not numeric", "TES_PSM", "auto"},
		{"bad size", "TES_MAX_FILE_SIZE", "a lot"},
		{"bad level", "TES_LOG_LEVEL", "LOUD"},
		{"bad nats url", "TES_NATS_URL", "not a url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := NewTesConfigFromEnv()
			assert.Error(t, err)
		})
	}
}
