package extractor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/johbar/tesspipe/internal/cache"
	"github.com/johbar/tesspipe/internal/config"
	"github.com/johbar/tesspipe/internal/docfactory"
	"github.com/johbar/tesspipe/pkg/tesswrap"
	"github.com/nats-io/nats.go/jetstream"
	pdfcpuapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const fakeBoxes = "h 1 2 3 4 0\ni 5 6 7 8 0\n"

// fakeEngine records its invocations and returns canned results.
type fakeEngine struct {
	mu        sync.Mutex
	opts      []tesswrap.Options
	text      string
	err       error
	installed bool
}

func (f *fakeEngine) record(img tesswrap.Image, opts tesswrap.Options) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opts = append(f.opts, opts)
	if f.err != nil {
		return f.err
	}
	if err := img.Validate(); err != nil {
		return err
	}
	if img.Path != "" {
		if _, err := os.Stat(img.Path); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opts)
}

func (f *fakeEngine) lastOptions() tesswrap.Options {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opts[len(f.opts)-1]
}

func (f *fakeEngine) RecognizeText(ctx context.Context, img tesswrap.Image, opts tesswrap.Options) (tesswrap.Output, error) {
	if err := f.record(img, opts); err != nil {
		return tesswrap.Output{}, err
	}
	out, err := tesswrap.ParseArtifact([]byte(f.text), false)
	out.Info = "\nfake"
	return out, err
}

func (f *fakeEngine) RecognizeBoxes(ctx context.Context, img tesswrap.Image, opts tesswrap.Options) (tesswrap.Output, error) {
	if err := f.record(img, opts); err != nil {
		return tesswrap.Output{}, err
	}
	out, err := tesswrap.ParseArtifact([]byte(fakeBoxes), true)
	out.Info = "\nfake"
	return out, err
}

func (f *fakeEngine) RecognizeTable(ctx context.Context, img tesswrap.Image, opts tesswrap.Options) (tesswrap.Output, error) {
	if err := f.record(img, opts); err != nil {
		return tesswrap.Output{}, err
	}
	out, err := tesswrap.ParseArtifact([]byte(fakeBoxes), true)
	out.Text = f.text
	out.Info = "\nfake"
	return out, err
}

func (f *fakeEngine) IsInstalled(context.Context) bool {
	return f.installed
}

func (f *fakeEngine) Version(context.Context) (string, error) {
	if !f.installed {
		return "", tesswrap.ErrEngineNotInstalled
	}
	return "\ntesseract 5.3.0\n leptonica-1.82.0", nil
}

type memCache struct {
	mu sync.Mutex
	m  map[string]*cache.Result
}

func (c *memCache) Get(ctx context.Context, key string) (*cache.Result, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, ok := c.m[key]
	return res, ok, nil
}

func (c *memCache) Save(ctx context.Context, key string, res *cache.Result) (*jetstream.ObjectInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = res
	return &jetstream.ObjectInfo{}, nil
}

func (c *memCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.m)
}

func testConfig(t *testing.T) *config.TesConfig {
	t.Helper()
	return &config.TesConfig{
		TesseractLangs:   "eng",
		Dpi:              150,
		Psm:              "3",
		Oem:              "3",
		MaxFileSizeBytes: 1 << 20,
		WorkDir:          t.TempDir(),
	}
}

func newTestExtractor(t *testing.T, conf *config.TesConfig, engine Engine, c cache.Cache) *Extractor {
	t.Helper()
	e := New(conf, engine, docfactory.New(conf, nil), c, nil)
	t.Cleanup(e.Close)
	return e
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func pdfBytes(t *testing.T, pages int) []byte {
	t.Helper()
	var imgs []io.Reader
	for i := range pages {
		imgs = append(imgs, bytes.NewReader(pngBytes(t, 10+i, 10)))
	}
	var out bytes.Buffer
	require.NoError(t, pdfcpuapi.ImportImages(nil, &out, imgs, pdfcpu.DefaultImportConfig(), nil))
	return out.Bytes()
}

func TestProcessImage(t *testing.T) {
	engine := &fakeEngine{text: "hello world", installed: true}
	e := newTestExtractor(t, testConfig(t), engine, nil)

	res, err := e.Process(context.Background(), pngBytes(t, 4, 4), ModeTable, e.BaseOptions(), "test")
	require.NoError(t, err)
	assert.Equal(t, "table", res.Mode)
	assert.Equal(t, "hello world", res.Text)
	assert.Equal(t, "\nfake", res.Info)
	assert.Equal(t, []tesswrap.Glyph{
		{Char: "h", Left: 1, Bottom: 2, Right: 3, Top: 4},
		{Char: "i", Left: 5, Bottom: 6, Right: 7, Top: 8},
	}, res.Glyphs)
	assert.Equal(t, "png", res.Metadata["x-doctype"])
}

func TestProcessPdf(t *testing.T) {
	engine := &fakeEngine{text: "hello world", installed: true}
	e := newTestExtractor(t, testConfig(t), engine, nil)
	data := pdfBytes(t, 2)

	res, err := e.Process(context.Background(), data, ModeText, e.BaseOptions(), "test.pdf")
	require.NoError(t, err)
	assert.Equal(t, "hello world\nhello world\n", res.Text)
	assert.Equal(t, "2", res.Metadata["x-document-pages"])

	res, err = e.Process(context.Background(), data, ModeBoxes, e.BaseOptions(), "test.pdf")
	require.NoError(t, err)
	require.Len(t, res.Glyphs, 4)
	assert.Equal(t, 1, res.Glyphs[0].Page)
	assert.Equal(t, 2, res.Glyphs[3].Page)
	assert.Empty(t, res.Text)
	assert.Equal(t, 4, engine.calls())
}

func TestProcessPdfPageFailures(t *testing.T) {
	engine := &fakeEngine{err: errors.New("segfault"), installed: true}
	e := newTestExtractor(t, testConfig(t), engine, nil)
	data := pdfBytes(t, 2)

	res, err := e.Process(context.Background(), data, ModeText, e.BaseOptions(), "test.pdf")
	require.NoError(t, err, "failing pages are skipped")
	assert.Empty(t, res.Text)
	assert.Equal(t, 2, engine.calls())

	engine.err = tesswrap.ErrEngineNotInstalled
	_, err = e.Process(context.Background(), data, ModeText, e.BaseOptions(), "test.pdf")
	assert.ErrorIs(t, err, tesswrap.ErrEngineNotInstalled)
	assert.Equal(t, 3, engine.calls(), "processing stops at the first page")
}

func TestProcessCache(t *testing.T) {
	engine := &fakeEngine{text: "cached", installed: true}
	mc := &memCache{m: map[string]*cache.Result{}}
	e := newTestExtractor(t, testConfig(t), engine, mc)
	data := pngBytes(t, 4, 4)

	_, err := e.Process(context.Background(), data, ModeText, e.BaseOptions(), "test")
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return mc.len() == 1 }, 2*time.Second, 10*time.Millisecond)

	res, err := e.Process(context.Background(), data, ModeText, e.BaseOptions(), "test")
	require.NoError(t, err)
	assert.Equal(t, "cached", res.Text)
	assert.Equal(t, 1, engine.calls())

	_, err = e.Process(context.Background(), data, ModeBoxes, e.BaseOptions(), "test")
	require.NoError(t, err)
	assert.Equal(t, 2, engine.calls())
}

func TestDehyphenate(t *testing.T) {
	conf := testConfig(t)
	conf.Dehyphenate = true
	engine := &fakeEngine{text: "Zei-\nlen\n", installed: true}
	e := newTestExtractor(t, conf, engine, nil)

	res, err := e.Process(context.Background(), pngBytes(t, 4, 4), ModeText, e.BaseOptions(), "test")
	require.NoError(t, err)
	assert.Equal(t, "Zeilen\n", res.Text)
}

func TestProcessErrors(t *testing.T) {
	engine := &fakeEngine{installed: true}
	e := newTestExtractor(t, testConfig(t), engine, nil)

	_, err := e.Process(context.Background(), nil, ModeText, e.BaseOptions(), "test")
	assert.ErrorIs(t, err, docfactory.ErrZeroSize)
	_, err = e.Process(context.Background(), []byte("plain text"), ModeText, e.BaseOptions(), "test")
	assert.ErrorIs(t, err, docfactory.ErrUnsupportedType)
	assert.Equal(t, 0, engine.calls())

	engine.err = &tesswrap.BoxParseError{Line: 1, Token: "x", Err: errors.New("bad")}
	_, err = e.Process(context.Background(), pngBytes(t, 4, 4), ModeBoxes, e.BaseOptions(), "test")
	assert.ErrorIs(t, err, tesswrap.ErrCoordinateParse)
}

func TestProcessAfterClose(t *testing.T) {
	engine := &fakeEngine{text: "late", installed: true}
	mc := &memCache{m: map[string]*cache.Result{}}
	e := newTestExtractor(t, testConfig(t), engine, mc)
	e.Close()

	res, err := e.Process(context.Background(), pngBytes(t, 4, 4), ModeText, e.BaseOptions(), "test")
	require.NoError(t, err)
	assert.Equal(t, "late", res.Text)
	assert.Equal(t, 0, mc.len(), "nothing is cached after Close")
	e.Close()
}
