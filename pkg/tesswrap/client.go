package tesswrap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Recognizer is implemented by [Client] and the in-process backend.
type Recognizer interface {
	RecognizeText(ctx context.Context, img Image, opts Options) (Output, error)
	RecognizeBoxes(ctx context.Context, img Image, opts Options) (Output, error)
	RecognizeTable(ctx context.Context, img Image, opts Options) (Output, error)
}

// Client runs invocations of the tesseract CLI.
type Client struct {
	Locator *Locator
	// WorkDir is where artifacts and materialized images are written. Empty means the working directory.
	WorkDir string
	// Isolate runs every invocation in its own directory below WorkDir, named by a random UUID.
	// Relative output stems are placed in there.
	Isolate bool
	// KeepArtifacts disables removal of isolated invocation directories.
	KeepArtifacts bool
	// ReserveTSVPass makes RecognizeTable run an additional pass creating a .tsv file.
	// The file is not parsed.
	ReserveTSVPass bool
	// Timeout bounds each child process. Zero means no limit.
	Timeout time.Duration
	Log     *slog.Logger
}

type ClientOption func(*Client)

func WithWorkDir(dir string) ClientOption {
	return func(c *Client) { c.WorkDir = dir }
}

func WithIsolation(isolate, keepArtifacts bool) ClientOption {
	return func(c *Client) {
		c.Isolate = isolate
		c.KeepArtifacts = keepArtifacts
	}
}

func WithTSVPass(enabled bool) ClientOption {
	return func(c *Client) { c.ReserveTSVPass = enabled }
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.Timeout = d }
}

func WithLogger(log *slog.Logger) ClientOption {
	return func(c *Client) { c.Log = log }
}

// NewClient returns a client for the engine at loc, or at [Default] if loc is nil.
// The reserved TSV pass is enabled by default.
func NewClient(loc *Locator, opts ...ClientOption) *Client {
	if loc == nil {
		loc = Default
	}
	c := &Client{Locator: loc, ReserveTSVPass: true}
	for _, opt := range opts {
		opt(c)
	}
	if c.Log == nil {
		c.Log = slog.New(slog.DiscardHandler)
	}
	return c
}

// IsInstalled reports whether the engine can be started.
func (c *Client) IsInstalled(ctx context.Context) bool {
	return c.Locator.IsInstalled(ctx)
}

// Version returns the output of tesseract --version.
func (c *Client) Version(ctx context.Context) (string, error) {
	return c.Locator.Version(ctx)
}

// RecognizeText returns the text tesseract recognized in img.
func (c *Client) RecognizeText(ctx context.Context, img Image, opts Options) (Output, error) {
	opts = opts.Clone()
	opts.BoxFile = false
	return c.invoke(ctx, img, opts, true)
}

// RecognizeBoxes returns the boxes of all glyphs tesseract recognized in img.
func (c *Client) RecognizeBoxes(ctx context.Context, img Image, opts Options) (Output, error) {
	opts = opts.Clone()
	opts.BoxFile = true
	return c.invoke(ctx, img, opts, true)
}

// RecognizeTable runs a text and a box pass on img and merges their results.
// If ReserveTSVPass is set, a third pass creates a .tsv file which is currently not consumed.
func (c *Client) RecognizeTable(ctx context.Context, img Image, opts Options) (Output, error) {
	text, err := c.RecognizeText(ctx, img, opts)
	if err != nil {
		return Output{}, err
	}
	boxes, err := c.RecognizeBoxes(ctx, img, opts)
	if err != nil {
		return Output{}, err
	}
	out := Output{
		Info:    text.Info,
		Bytes:   text.Bytes,
		Text:    text.Text,
		Boxes:   boxes.Boxes,
		Columns: boxes.Columns,
	}
	if c.ReserveTSVPass {
		tsvOpts := opts.Clone()
		tsvOpts.BoxFile = false
		tsvOpts.Set(KeyExtra, TSVExtra)
		if _, err := c.invoke(ctx, img, tsvOpts, false); err != nil {
			c.Log.Warn("TSV pass failed", "image", img.Path, "err", err)
		}
	}
	return out, nil
}

// invoke runs the engine once. If parse is false, the artifact is left unread.
func (c *Client) invoke(ctx context.Context, img Image, opts Options, parse bool) (Output, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if err := img.Validate(); err != nil {
		c.Log.Error("Invalid image", "image", img.Path, "err", err)
		return Output{}, err
	}
	loc, ok := c.Locator.Location()
	if !ok || !c.Locator.IsInstalled(ctx) {
		c.Log.Error("Tesseract not installed", "location", loc)
		return Output{}, ErrEngineNotInstalled
	}
	opts = opts.withDefaults()

	dir, cleanup, err := c.invocationDir()
	if err != nil {
		return Output{}, err
	}
	defer cleanup()

	imageArg, err := prepareImageArg(img, dir, c.Log)
	if err != nil {
		return Output{}, err
	}
	for k, v := range opts.Config {
		c.Log.Debug("Configuration", "key", k, "value", v)
	}
	if dir != "" && !filepath.IsAbs(opts.OutputStem) {
		opts.OutputStem = filepath.Join(dir, opts.OutputStem)
	}

	runner := &Runner{Log: c.Log}
	inv, err := runner.Run(ctx, loc, BuildArgs(imageArg, opts)...)
	if err != nil {
		return Output{}, err
	}
	if !parse {
		return Output{Info: inv.Diagnostic()}, nil
	}
	out, err := ReadArtifact(opts.OutputStem, opts.BoxFile)
	if err != nil {
		c.Log.Error("Reading result failed", "stem", opts.OutputStem, "exitCode", inv.ExitCode, "info", inv.Diagnostic(), "err", err)
		return Output{}, err
	}
	out.Info = inv.Diagnostic()
	return out, nil
}

// invocationDir returns the directory an invocation writes its files to and a function
// removing it, if it was created for this invocation only.
func (c *Client) invocationDir() (string, func(), error) {
	if !c.Isolate {
		return c.WorkDir, func() {}, nil
	}
	dir := filepath.Join(c.WorkDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("creating invocation directory: %w", err)
	}
	return dir, func() {
		if c.KeepArtifacts {
			return
		}
		if err := os.RemoveAll(dir); err != nil {
			c.Log.Warn("Could not remove invocation directory", "dir", dir, "err", err)
		}
	}, nil
}

// RecognizeText runs a text pass with the [Default] locator.
func RecognizeText(ctx context.Context, img Image, opts Options) (Output, error) {
	return NewClient(Default).RecognizeText(ctx, img, opts)
}

// RecognizeBoxes runs a box pass with the [Default] locator.
func RecognizeBoxes(ctx context.Context, img Image, opts Options) (Output, error) {
	return NewClient(Default).RecognizeBoxes(ctx, img, opts)
}

// RecognizeTable runs a text and a box pass with the [Default] locator.
func RecognizeTable(ctx context.Context, img Image, opts Options) (Output, error) {
	return NewClient(Default).RecognizeTable(ctx, img, opts)
}

// IsInstalled reports whether the engine of the [Default] locator can be started.
func IsInstalled(ctx context.Context) bool {
	return Default.IsInstalled(ctx)
}

// Version returns the version output of the engine of the [Default] locator.
func Version(ctx context.Context) (string, error) {
	return Default.Version(ctx)
}
