package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/johbar/tesspipe/internal/docfactory"
	"github.com/johbar/tesspipe/pkg/tesswrap"
)

// Headers carrying options in NATS requests
const (
	HeaderLang = "Tes-Lang"
	HeaderDpi  = "Tes-Dpi"
	HeaderPsm  = "Tes-Psm"
	HeaderOem  = "Tes-Oem"
	HeaderVar  = "Tes-Config"
)

// ErrInvalidParams is returned for request parameters that failed validation
var ErrInvalidParams = errors.New("invalid parameters")

var validate *validator.Validate

func init() {
	validate = validator.New()
	// same tag as gin's binding
	validate.SetTagName("binding")
}

// RequestParams override the configured options for a single request
type RequestParams struct {
	Lang string `form:"lang" json:"lang" binding:"omitempty,max=128,excludesall=/ "`
	Dpi  int    `form:"dpi" json:"dpi" binding:"omitempty,min=1,max=2400"`
	Psm  string `form:"psm" json:"psm" binding:"omitempty,numeric"`
	Oem  string `form:"oem" json:"oem" binding:"omitempty,numeric"`
	// Var is passed to tesseract's -c flag, e.g. preserve_interword_spaces=1
	Var string `form:"c" json:"c" binding:"omitempty,contains=="`
}

// Validate checks the params the way gin's binding does.
func (p RequestParams) Validate() error {
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidParams, err)
	}
	return nil
}

// Apply returns a copy of base with the params set.
func (p RequestParams) Apply(base tesswrap.Options) tesswrap.Options {
	opts := base.Clone()
	if p.Lang != "" {
		opts.Lang = p.Lang
	}
	if p.Dpi > 0 {
		opts.DPI = p.Dpi
	}
	if p.Psm != "" {
		opts.Set(tesswrap.KeyPSM, p.Psm)
	}
	if p.Oem != "" {
		opts.Set(tesswrap.KeyOEM, p.Oem)
	}
	if p.Var != "" {
		opts.Set(tesswrap.KeyExtra, p.Var)
	}
	return opts
}

// StatusFor maps errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidParams), errors.Is(err, docfactory.ErrZeroSize), errors.Is(err, tesswrap.ErrImageNotFound):
		return http.StatusBadRequest
	case errors.Is(err, docfactory.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, docfactory.ErrUnsupportedType), errors.Is(err, tesswrap.ErrImageFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, tesswrap.ErrEngineNotInstalled), errors.Is(err, tesswrap.ErrInProcessUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, tesswrap.ErrCoordinateParse), errors.Is(err, tesswrap.ErrArtifactRead):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
