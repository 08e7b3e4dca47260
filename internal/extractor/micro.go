package extractor

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
)

const queueGroup = "tesspipe"

// RegisterNatsService adds the NATS micro service "ocr" with one endpoint per mode,
// reachable at ocr.text, ocr.boxes and ocr.table. The request payload is the file, options
// are passed as headers.
func (e *Extractor) RegisterNatsService(nc *nats.Conn) (micro.Service, error) {
	ocrService, err := micro.AddService(nc, micro.Config{
		Name:        "ocr",
		Version:     "1.0.0",
		Description: "Recognizes text in images and PDFs with Tesseract",
	})
	if err != nil {
		return nil, err
	}
	g := ocrService.AddGroup("ocr")
	for _, mode := range Modes {
		err := g.AddEndpoint(string(mode),
			e.handleRequest(mode),
			micro.WithEndpointQueueGroup(queueGroup))
		if err != nil {
			return nil, fmt.Errorf("adding endpoint %s: %w", mode, err)
		}
	}
	return ocrService, nil
}

func paramsFromHeaders(h micro.Headers) (RequestParams, error) {
	params := RequestParams{
		Lang: h.Get(HeaderLang),
		Psm:  h.Get(HeaderPsm),
		Oem:  h.Get(HeaderOem),
		Var:  h.Get(HeaderVar),
	}
	if dpi := h.Get(HeaderDpi); dpi != "" {
		n, err := strconv.Atoi(dpi)
		if err != nil {
			return params, fmt.Errorf("%w: %s: %w", ErrInvalidParams, HeaderDpi, err)
		}
		params.Dpi = n
	}
	return params, params.Validate()
}

// handleRequest replies to a NATS request
func (e *Extractor) handleRequest(mode Mode) micro.HandlerFunc {
	return func(req micro.Request) {
		params, err := paramsFromHeaders(req.Headers())
		if err != nil {
			e.replyError(req, err)
			return
		}
		e.log.Info("Received NATS request", "mode", mode, "params", params, "size", len(req.Data()))
		res, err := e.Process(context.Background(), req.Data(), mode, params.Apply(e.BaseOptions()), "NATS request")
		if err != nil {
			e.replyError(req, err)
			return
		}
		headers := micro.Headers{}
		for k, v := range res.Metadata {
			headers[k] = []string{v}
		}
		if mode == ModeText {
			_ = req.Respond([]byte(res.Text), micro.WithHeaders(headers))
			return
		}
		data, err := json.Marshal(Reply(mode, res))
		if err != nil {
			e.replyError(req, err)
			return
		}
		_ = req.Respond(data, micro.WithHeaders(headers))
	}
}

func (e *Extractor) replyError(req micro.Request, err error) {
	code := strconv.Itoa(StatusFor(err))
	e.log.Error("NATS request failed", "code", code, "err", err)
	_ = req.Error(code, err.Error(), nil)
}
