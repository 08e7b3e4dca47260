package extractor

import (
	"context"
	"errors"
	"expvar"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/johbar/tesspipe/internal/cache"
	"github.com/johbar/tesspipe/internal/config"
	"github.com/johbar/tesspipe/internal/docfactory"
	"github.com/johbar/tesspipe/pkg/dehyphenator"
	"github.com/johbar/tesspipe/pkg/tesswrap"
)

// Mode selects what is recognized
type Mode string

const (
	ModeText  Mode = "text"
	ModeBoxes Mode = "boxes"
	ModeTable Mode = "table"
)

var Modes = []Mode{ModeText, ModeBoxes, ModeTable}

var (
	requests  = expvar.NewMap("ocr_requests")
	failures  = expvar.NewMap("ocr_failures")
	cacheHits = expvar.NewInt("ocr_cache_hits")
	pages     = expvar.NewInt("ocr_pages")
)

// Engine is a tesseract backend
type Engine interface {
	tesswrap.Recognizer
	IsInstalled(ctx context.Context) bool
	Version(ctx context.Context) (string, error)
}

type savedResult struct {
	key string
	res *cache.Result
}

type Extractor struct {
	engine    Engine
	tesCache  cache.Cache
	df        *docfactory.DocFactory
	log       *slog.Logger
	cacheNop  bool
	saveChan  chan savedResult
	saverDone sync.WaitGroup
	// guards closed and sends on saveChan
	saveMu    sync.RWMutex
	closed    bool
	tesConfig *config.TesConfig
}

func New(conf *config.TesConfig, engine Engine, df *docfactory.DocFactory, tesCache cache.Cache, logger *slog.Logger) *Extractor {
	extract := &Extractor{
		engine:    engine,
		tesCache:  tesCache,
		df:        df,
		log:       logger,
		saveChan:  make(chan savedResult, 100),
		tesConfig: conf,
	}
	if logger == nil {
		extract.log = slog.New(slog.DiscardHandler)
	}
	if tesCache == nil {
		extract.tesCache = &cache.NopCache{}
	}
	_, extract.cacheNop = extract.tesCache.(*cache.NopCache)
	extract.saverDone.Add(1)
	go extract.saveResults()
	return extract
}

// Close waits until all pending results have been saved. Results recognized afterwards
// are returned but not cached.
func (e *Extractor) Close() {
	e.saveMu.Lock()
	if e.closed {
		e.saveMu.Unlock()
		return
	}
	e.closed = true
	close(e.saveChan)
	e.saveMu.Unlock()
	e.saverDone.Wait()
}

func (e *Extractor) save(key string, res *cache.Result) {
	e.saveMu.RLock()
	defer e.saveMu.RUnlock()
	if e.closed {
		e.log.Debug("Extractor closed, result not cached", "key", key)
		return
	}
	e.saveChan <- savedResult{key: key, res: res}
}

func (e *Extractor) saveResults() {
	defer e.saverDone.Done()
	for r := range e.saveChan {
		if e.cacheNop {
			continue
		}
		for i := 0; i <= 5; i++ {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			info, err := e.tesCache.Save(ctx, r.key, r.res)
			cancel()
			if err == nil {
				e.log.Info("Saved result in NATS object store bucket", "key", r.key, "mode", r.res.Mode, "size", info.Size)
				break
			}
			e.log.Warn("Could not save result to cache", "retries", i, "key", r.key, "err", err)
		}
	}
}

// BaseOptions returns the configured defaults for a request.
func (e *Extractor) BaseOptions() tesswrap.Options {
	return e.tesConfig.BaseOptions()
}

// Process recognizes the image or PDF in data. Results are served from and saved to the cache.
func (e *Extractor) Process(ctx context.Context, data []byte, mode Mode, opts tesswrap.Options, origin string) (*cache.Result, error) {
	requests.Add(string(mode), 1)
	key := cache.Key(data, string(mode), opts)
	if !e.cacheNop {
		res, ok, err := e.tesCache.Get(ctx, key)
		if err != nil {
			e.log.Error("Could not get result from NATS object store", "key", key, "err", err)
		} else if ok {
			cacheHits.Add(1)
			e.log.Debug("Result served from cache", "key", key, "origin", origin)
			return res, nil
		}
	}
	doc, err := e.df.NewFromBytes(data, origin)
	if err != nil {
		failures.Add(string(mode), 1)
		e.log.Error("Parsing failed", "err", err, "origin", origin)
		return nil, err
	}
	defer doc.Close()
	res, err := e.RecognizeDoc(ctx, doc, mode, opts, origin)
	if err != nil {
		failures.Add(string(mode), 1)
		return nil, err
	}
	e.save(key, res)
	return res, nil
}

// RecognizeDoc runs the engine on every page of doc and merges the results.
// Failing PDF pages are logged and skipped, unless the engine is unusable.
func (e *Extractor) RecognizeDoc(ctx context.Context, doc *docfactory.Doc, mode Mode, opts tesswrap.Options, origin string) (*cache.Result, error) {
	res := &cache.Result{Mode: string(mode), Metadata: doc.Metadata}
	var text, info strings.Builder
	for _, page := range doc.Pages {
		out, err := e.recognize(ctx, page.Image, mode, opts)
		if err != nil {
			if !doc.IsPdf || fatal(ctx, err) {
				e.log.Error("Tesseract failed", "err", err, "origin", origin, "page", page.Number)
				return nil, err
			}
			// we don't return that error, because we don't want to abort the processing of the other pages
			e.log.Error("Tesseract failed", "err", err, "origin", origin, "page", page.Number)
			continue
		}
		pages.Add(1)
		info.WriteString(out.Info)
		text.WriteString(out.Text)
		// ensure there is a newline at the end of every page
		if doc.IsPdf && out.Text != "" && !strings.HasSuffix(out.Text, "\n") {
			text.WriteByte('\n')
		}
		for _, g := range out.Glyphs() {
			if doc.IsPdf {
				g.Page = page.Number
			}
			res.Glyphs = append(res.Glyphs, g)
		}
	}
	res.Info = info.String()
	if mode != ModeBoxes {
		res.Text = e.postprocess(text.String(), origin)
	}
	return res, nil
}

func (e *Extractor) recognize(ctx context.Context, img tesswrap.Image, mode Mode, opts tesswrap.Options) (tesswrap.Output, error) {
	switch mode {
	case ModeBoxes:
		return e.engine.RecognizeBoxes(ctx, img, opts)
	case ModeTable:
		return e.engine.RecognizeTable(ctx, img, opts)
	}
	return e.engine.RecognizeText(ctx, img, opts)
}

func (e *Extractor) postprocess(text, origin string) string {
	if !e.tesConfig.Dehyphenate {
		return text
	}
	dehyphenated, err := dehyphenator.DehyphenateString(text, e.tesConfig.RemoveNewlines)
	if err != nil {
		// If the dehyphenator failed, we proceed with the raw text
		e.log.Warn("Dehyphenator failed", "err", err, "origin", origin)
		return text
	}
	return dehyphenated
}

// fatal reports errors that will make every further invocation fail as well.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, tesswrap.ErrEngineNotInstalled) ||
		errors.Is(err, tesswrap.ErrInProcessUnavailable) ||
		errors.Is(err, tesswrap.ErrEngineStart)
}
