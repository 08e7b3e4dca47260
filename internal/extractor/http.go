package extractor

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-contrib/expvar"
	"github.com/gin-gonic/gin"
	"github.com/johbar/tesspipe/internal/cache"
	"github.com/johbar/tesspipe/internal/docfactory"
	"github.com/johbar/tesspipe/pkg/tesswrap"
	sloggin "github.com/samber/slog-gin"
)

// Router returns the HTTP API:
//
//	POST /text, /boxes, /table   recognize the image or PDF in the request body
//	GET  /version                version of the engine
//	GET  /healthz                503 if the engine is not available
//	GET  /debug/vars             counters
func (e *Extractor) Router() *gin.Engine {
	router := gin.New()
	router.Use(sloggin.New(e.log), gin.Recovery())
	for _, mode := range Modes {
		router.POST("/"+string(mode), e.ExtractBody(mode))
	}
	router.GET("/version", e.Version)
	router.GET("/healthz", e.Healthz)
	router.GET("/debug/vars", expvar.Handler())
	return router
}

// ExtractBody returns a handler recognizing the request body's content in mode.
// The text mode responds with plain text, the others with JSON.
func (e *Extractor) ExtractBody(mode Mode) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params RequestParams
		if err := c.ShouldBindQuery(&params); err != nil {
			e.abort(c, fmt.Errorf("%w: %w", ErrInvalidParams, err))
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, int64(e.df.MaxFileSizeBytes))
		data, err := e.df.ReadAll(c.Request.Body)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				err = fmt.Errorf("%w: %w", docfactory.ErrTooLarge, err)
			}
			e.abort(c, err)
			return
		}
		res, err := e.Process(c.Request.Context(), data, mode, params.Apply(e.BaseOptions()), "POST request")
		if err != nil {
			e.abort(c, err)
			return
		}
		addMetadataAsHeaders(c.Writer.Header(), res.Metadata)
		if mode == ModeText {
			c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(res.Text))
			return
		}
		c.JSON(http.StatusOK, Reply(mode, res))
	}
}

// BoxesReply is the response of the boxes mode
type BoxesReply struct {
	Info   string           `json:"info"`
	Glyphs []tesswrap.Glyph `json:"glyphs"`
}

// TableReply is the response of the table mode
type TableReply struct {
	Text   string           `json:"text"`
	Glyphs []tesswrap.Glyph `json:"glyphs"`
}

// Reply returns the JSON body for a result, which is the plain text in text mode.
func Reply(mode Mode, res *cache.Result) any {
	glyphs := res.Glyphs
	if glyphs == nil {
		glyphs = []tesswrap.Glyph{}
	}
	switch mode {
	case ModeBoxes:
		return BoxesReply{Info: res.Info, Glyphs: glyphs}
	case ModeTable:
		return TableReply{Text: res.Text, Glyphs: glyphs}
	}
	return res.Text
}

func (e *Extractor) Version(c *gin.Context) {
	v, err := e.engine.Version(c.Request.Context())
	if err != nil {
		e.abort(c, err)
		return
	}
	c.String(http.StatusOK, strings.TrimSpace(v))
}

func (e *Extractor) Healthz(c *gin.Context) {
	if !e.engine.IsInstalled(c.Request.Context()) {
		c.String(http.StatusServiceUnavailable, tesswrap.ErrEngineNotInstalled.Error())
		return
	}
	c.String(http.StatusOK, "ok")
}

func (e *Extractor) abort(c *gin.Context, err error) {
	status := StatusFor(err)
	e.log.Error("Request failed", "status", status, "err", err)
	c.String(status, err.Error())
	c.Abort()
}

func addMetadataAsHeaders(header http.Header, metadata map[string]string) {
	for k, v := range metadata {
		header.Add(k, v)
	}
}
