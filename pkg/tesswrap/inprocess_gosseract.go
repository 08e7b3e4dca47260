//go:build gosseract

package tesswrap

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"strconv"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// InProcessAvailable indicates if this build links libtesseract.
const InProcessAvailable = true

// InProcess recognizes text with libtesseract via cgo instead of running the CLI.
// It produces the same [Output] as [Client]; box output is synthesized from symbol level
// bounding boxes.
type InProcess struct{}

// NewInProcess returns the cgo based recognizer.
func NewInProcess() (*InProcess, error) {
	return &InProcess{}, nil
}

// LibraryVersion returns the version of the linked libtesseract.
func LibraryVersion() string {
	return gosseract.Version()
}

// IsInstalled always reports true, libtesseract is linked into this build.
func (ip *InProcess) IsInstalled(context.Context) bool {
	return true
}

// Version returns the version of libtesseract in the format of the CLI's --version output.
func (ip *InProcess) Version(context.Context) (string, error) {
	return "\ntesseract " + LibraryVersion(), nil
}

func (ip *InProcess) RecognizeText(ctx context.Context, img Image, opts Options) (Output, error) {
	opts = opts.Clone()
	opts.BoxFile = false
	return ip.recognize(ctx, img, opts)
}

func (ip *InProcess) RecognizeBoxes(ctx context.Context, img Image, opts Options) (Output, error) {
	opts = opts.Clone()
	opts.BoxFile = true
	return ip.recognize(ctx, img, opts)
}

func (ip *InProcess) RecognizeTable(ctx context.Context, img Image, opts Options) (Output, error) {
	text, err := ip.RecognizeText(ctx, img, opts)
	if err != nil {
		return Output{}, err
	}
	boxes, err := ip.RecognizeBoxes(ctx, img, opts)
	if err != nil {
		return Output{}, err
	}
	text.Boxes = boxes.Boxes
	text.Columns = boxes.Columns
	return text, nil
}

func (ip *InProcess) recognize(ctx context.Context, img Image, opts Options) (Output, error) {
	if err := img.Validate(); err != nil {
		return Output{}, err
	}
	if err := ctx.Err(); err != nil {
		return Output{}, err
	}
	opts = opts.withDefaults()
	goss := gosseract.NewClient()
	defer goss.Close()
	goss.DisableOutput()

	height, err := ip.setImage(goss, img)
	if err != nil {
		return Output{}, err
	}
	if err := goss.SetLanguage(strings.Split(opts.Lang, "+")...); err != nil {
		return Output{}, fmt.Errorf("set languages: %w", err)
	}
	psm, err := strconv.Atoi(opts.get(KeyPSM, DefaultPSM))
	if err != nil {
		return Output{}, fmt.Errorf("invalid psm: %w", err)
	}
	if err := goss.SetPageSegMode(gosseract.PageSegMode(psm)); err != nil {
		return Output{}, fmt.Errorf("set psm: %w", err)
	}
	if err := goss.SetVariable("user_defined_dpi", strconv.Itoa(opts.DPI)); err != nil {
		return Output{}, fmt.Errorf("set dpi: %w", err)
	}
	if !opts.BoxFile {
		text, err := goss.Text()
		if err != nil {
			return Output{}, fmt.Errorf("recognize text: %w", err)
		}
		return ParseArtifact([]byte(text), false)
	}
	boxes, err := goss.GetBoundingBoxes(gosseract.RIL_SYMBOL)
	if err != nil {
		return Output{}, fmt.Errorf("recognize boxes: %w", err)
	}
	var sb strings.Builder
	for _, b := range boxes {
		if strings.TrimSpace(b.Word) == "" {
			continue
		}
		// box files have their origin in the bottom left corner
		fmt.Fprintf(&sb, "%s %d %d %d %d 0\n", b.Word, b.Box.Min.X, height-b.Box.Max.Y, b.Box.Max.X, height-b.Box.Min.Y)
	}
	return ParseArtifact([]byte(sb.String()), true)
}

// setImage hands img to the client and returns its height.
func (ip *InProcess) setImage(goss *gosseract.Client, img Image) (int, error) {
	if img.Path != "" {
		f, err := os.Open(img.Path)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", ErrImageNotFound, err)
		}
		cfg, _, err := image.DecodeConfig(f)
		f.Close()
		if err != nil {
			return 0, fmt.Errorf("decode %s: %w", img.Path, err)
		}
		return cfg.Height, goss.SetImage(img.Path)
	}
	rgb, err := img.Pixels.RGB()
	if err != nil {
		return 0, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, rgb); err != nil {
		return 0, fmt.Errorf("encode pixels: %w", err)
	}
	return img.Pixels.Height, goss.SetImageFromBytes(buf.Bytes())
}
