package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-playground/validator/v10"
	"github.com/johbar/tesspipe/pkg/tesswrap"
	"go-simpler.org/env"
)

var validate = validator.New()

// TesConfig represents the configuration of this service
type TesConfig struct {
	// How to find the tesseract executable: explicit, workdir or system. Default: system
	TesseractStrategy string `env:"TES_TESSERACT_STRATEGY" default:"system" validate:"oneof=explicit workdir system"`
	// Path of the tesseract executable, used by the explicit strategy
	TesseractPath string `env:"TES_TESSERACT_PATH" validate:"required_if=TesseractStrategy explicit"`
	// List of 3-letter language codes, separated by `+` to be passed to Tesseract.
	// Default: eng. NOTE: The languages need to be installed.
	TesseractLangs string `env:"TES_TESSERACT_LANGS" default:"eng" validate:"required"`
	// Resolution of input images, if they don't state it themselves
	Dpi int `env:"TES_DPI" default:"150" validate:"min=1,max=2400"`
	// Page segmentation mode (0-13)
	Psm string `env:"TES_PSM" default:"3" validate:"numeric"`
	// OCR engine mode (0-3)
	Oem string `env:"TES_OEM" default:"3" validate:"numeric"`
	// Directory for images and result files. Default: the system's temp dir
	WorkDir string `env:"TES_WORK_DIR"`
	// Run every invocation in its own directory below WorkDir. Default: true
	Isolate bool `env:"TES_ISOLATE" default:"true"`
	// Don't remove invocation directories. Default: false
	KeepArtifacts bool `env:"TES_KEEP_ARTIFACTS" default:"false"`
	// Run the additional TSV pass for table recognition. Default: true
	TsvPass bool `env:"TES_TSV_PASS" default:"true"`
	// Maximum runtime of a single tesseract process
	Timeout time.Duration `env:"TES_TIMEOUT" default:"2m"`
	// cli runs the tesseract executable, gosseract uses libtesseract (build tag gosseract)
	Backend string `env:"TES_BACKEND" default:"cli" validate:"oneof=cli gosseract"`
	// Join hyphenated words at line ends in recognized text. Default: false
	Dehyphenate bool `env:"TES_DEHYPHENATE" default:"false"`
	// if true, dehyphenated text will be compacted by replacing newlines with whitespace
	RemoveNewlines bool `env:"TES_REMOVE_NEWLINES" default:"false"`
	// Render PDF pages with PDFium instead of extracting the embedded images. Default: false
	RenderPdf bool `env:"TES_RENDER_PDF" default:"false"`
	// Path of libpdfium. Default: search the usual library locations
	PdfiumPath string `env:"TES_PDFIUM_PATH"`

	// Name of the object store bucket in NATS to use. Default: TES_OCR
	Bucket string `env:"TES_BUCKET" default:"TES_OCR" validate:"required"`
	// wether to expose embedded NATS server to other clients. Default: false
	ExposeNats bool `env:"TES_EXPOSE_NATS" default:"false"`
	// Add source info to log statement. Default: false
	Debug bool `env:"TES_DEBUG" default:"false"`
	// If true the service will exit with an error if NATS or JetStream can't be connected
	FailWithoutJetstream bool `env:"TES_FAIL_WITHOUT_JS" default:"false"`
	// Log level (DEBUG, INFO, WARN, ERROR)
	LogLevelStr string `env:"TES_LOG_LEVEL" default:"INFO"`
	LogLevel    slog.Level
	// Maximum size an uploaded file may have; processing is aborted if it is bigger
	MaxFileSize      string `env:"TES_MAX_FILE_SIZE" default:"50MiB"`
	MaxFileSizeBytes uint64
	// NATS max msg size (embedded server only)
	NatsMaxPayload int32 `env:"TES_MAX_PAYLOAD" default:"8388608"`
	// embedded NATS server storage location. Default: /tmp/nats
	NatsStoreDir string `env:"TES_NATS_STORE_DIR"`
	// embedded NATS server host/ip address, if exposed. Default: localhost
	NatsHost string `env:"TES_NATS_HOST" default:"localhost"`
	// embedded NATS server port, if exposed. Default: 4222
	NatsPort int `env:"TES_NATS_PORT" default:"4222"`
	// External NATS URL, e.g. nats://localhost:4222
	NatsUrl string `env:"TES_NATS_URL" validate:"omitempty,url"`
	// Timeout for the external NATS connection
	NatsTimeout time.Duration `env:"TES_NATS_TIMEOUT" default:"15s"`
	// NatsConnectRetries is the number of attempts to connect to external NATS server(s)
	NatsConnectRetries int `env:"TES_NATS_CONNECT_RETRIES" default:"10" validate:"min=0"`
	// if true, disable HTTP Server in favor of NATS Microservice interface
	NoHttp bool `env:"TES_NO_HTTP" default:"false"`
	// How many replicas of the bucket to create. Default: 1
	Replicas int `env:"TES_REPLICAS" default:"1" validate:"min=1,max=5"`
	// HTTP listen address and/or port. Default: ':8080'
	SrvAddr string `env:"TES_HOST_PORT" default:":8080" validate:"required"`
}

// NewTesConfigFromEnv returns a service config object
// populated with defaults and values from environment vars
func NewTesConfigFromEnv() (*TesConfig, error) {
	var cfg TesConfig
	if err := env.Load(&cfg, nil); err != nil {
		return nil, err
	}
	if err := cfg.Finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Finish parses derived fields and validates the config.
// It has to be called again after fields have been changed, e.g. by command line flags.
func (cfg *TesConfig) Finish() error {
	err := cfg.LogLevel.UnmarshalText([]byte(cfg.LogLevelStr))
	if err != nil {
		return fmt.Errorf("parsing log level from env: %w", err)
	}
	maxSize, err := humanize.ParseBytes(cfg.MaxFileSize)
	if err != nil {
		return fmt.Errorf("parsing max file size from env: %w", err)
	}
	cfg.MaxFileSizeBytes = maxSize
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Locator resolves the tesseract location according to the configured strategy.
func (cfg *TesConfig) Locator() (*tesswrap.Locator, error) {
	return tesswrap.NewLocatorFromStrategy(tesswrap.Strategy(cfg.TesseractStrategy), cfg.TesseractPath)
}

// BaseOptions returns the invocation options requests start with.
func (cfg *TesConfig) BaseOptions() tesswrap.Options {
	opts := tesswrap.NewOptions()
	opts.Lang = cfg.TesseractLangs
	opts.DPI = cfg.Dpi
	opts.Set(tesswrap.KeyPSM, cfg.Psm)
	opts.Set(tesswrap.KeyOEM, cfg.Oem)
	return opts
}

// NewClient returns a tesseract client set up with loc and the configured options.
func (cfg *TesConfig) NewClient(loc *tesswrap.Locator, log *slog.Logger) *tesswrap.Client {
	return tesswrap.NewClient(loc,
		tesswrap.WithWorkDir(cfg.WorkDir),
		tesswrap.WithIsolation(cfg.Isolate, cfg.KeepArtifacts),
		tesswrap.WithTSVPass(cfg.TsvPass),
		tesswrap.WithTimeout(cfg.Timeout),
		tesswrap.WithLogger(log),
	)
}

// NewLogger returns a JSON logger writing to w, configured by LogLevel and Debug.
func (cfg *TesConfig) NewLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.LogLevel, AddSource: cfg.Debug}))
}
