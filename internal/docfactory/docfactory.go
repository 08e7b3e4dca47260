// Package docfactory turns uploaded files into images tesseract can read.
package docfactory

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/johbar/tesspipe/internal/config"
	"github.com/johbar/tesspipe/internal/pdfproc"
	"github.com/johbar/tesspipe/pkg/tesswrap"
)

var (
	ErrZeroSize        = errors.New("zero-length data can not be parsed")
	ErrTooLarge        = errors.New("file too large")
	ErrUnsupportedType = errors.New("no suitable parser available")
)

// Page is an image to be recognized. Number is the 1-based PDF page or 0 for single images.
type Page struct {
	Number int
	Image  tesswrap.Image
}

// Doc is an image or a PDF prepared for OCR. Close removes temporary files.
type Doc struct {
	MimeType string
	IsPdf    bool
	Metadata map[string]string
	Pages    []Page
	temp     []string
	log      *slog.Logger
}

func (d *Doc) Close() {
	for _, path := range d.temp {
		if err := os.Remove(path); err != nil {
			d.log.Error("could not remove temporary file", "err", err)
		} else {
			d.log.Debug("temporary file removed", "path", path)
		}
	}
	d.temp = nil
}

// PageRenderer rasterizes the pages of a PDF
type PageRenderer interface {
	Name() string
	RenderPages(data []byte, dpi int, fn func(pageNr int, img image.Image) error) error
}

type DocFactory struct {
	MaxFileSizeBytes uint64
	// TempDir receives uploaded images. Empty means the system's temp dir
	TempDir string
	// Renderer, if set, replaces the extraction of embedded images from PDFs
	Renderer PageRenderer
	// Dpi is the resolution pages are rendered at
	Dpi int
	log *slog.Logger
}

func New(tesconfig *config.TesConfig, logger *slog.Logger) *DocFactory {
	df := &DocFactory{
		MaxFileSizeBytes: tesconfig.MaxFileSizeBytes,
		TempDir:          tesconfig.WorkDir,
		Dpi:              tesconfig.Dpi,
		log:              logger,
	}
	if logger == nil {
		df.log = slog.New(slog.DiscardHandler)
	}
	return df
}

// ReadAll reads r completely, failing with ErrTooLarge as soon as MaxFileSizeBytes is exceeded.
func (df *DocFactory) ReadAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, int64(df.MaxFileSizeBytes)+1))
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > df.MaxFileSizeBytes {
		return nil, fmt.Errorf("%w: more than %s", ErrTooLarge, humanize.IBytes(df.MaxFileSizeBytes))
	}
	return data, nil
}

func (df *DocFactory) NewFromBytes(data []byte, origin string) (*Doc, error) {
	if len(data) == 0 {
		return nil, ErrZeroSize
	}
	if uint64(len(data)) > df.MaxFileSizeBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, humanize.IBytes(uint64(len(data))))
	}
	mtype := mimetype.Detect(data)
	df.log.Debug("Detected", "mimetype", mtype.String(), "ext", mtype.Extension(), "origin", origin)
	doc := &Doc{MimeType: mtype.String(), log: df.log}
	switch {
	case mtype.Extension() == ".pdf":
		return df.addPdf(doc, data, origin)
	case strings.HasPrefix(mtype.String(), "image/"):
		page, err := df.newImage(doc, data, mtype.Extension())
		if err != nil {
			doc.Close()
			return nil, err
		}
		doc.Pages = []Page{page}
		doc.Metadata = imageMetadata(data, mtype.Extension())
		return doc, nil
	}
	// returning a part of the content in case of errors helps with debugging clients that send an error message instead of a file
	return nil, fmt.Errorf("%w for mimetype %s. content started with: %q", ErrUnsupportedType, mtype.String(), data[:min(len(data), 70)])
}

// NewFromPath returns a Doc for a file on disk. Images in a supported format are used in place.
func (df *DocFactory) NewFromPath(path, origin string) (*Doc, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, err
	}
	df.log.Debug("Detected", "mimetype", mtype.String(), "ext", mtype.Extension(), "origin", origin)
	if strings.HasPrefix(mtype.String(), "image/") && tesswrap.FormatRecognized(path) {
		doc := &Doc{MimeType: mtype.String(), log: df.log}
		doc.Pages = []Page{{Image: tesswrap.ImageFromPath(path)}}
		doc.Metadata = map[string]string{"x-doctype": strings.TrimPrefix(mtype.Extension(), ".")}
		return doc, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := df.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return df.NewFromBytes(data, origin)
}

func (df *DocFactory) addPdf(doc *Doc, data []byte, origin string) (*Doc, error) {
	doc.IsPdf = true
	meta, err := pdfproc.GetPdfInfos(bytes.NewReader(data))
	if err != nil {
		df.log.Warn("Reading PDF metadata failed", "err", err, "origin", origin)
		doc.Metadata = map[string]string{"x-doctype": "pdf"}
	} else {
		doc.Metadata = meta.Map()
	}
	if df.Renderer != nil {
		return df.renderPdf(doc, data, origin)
	}
	doc.Metadata["x-parsed-by"] = "pdfcpu"
	err = pdfproc.ExtractImages(bytes.NewReader(data), func(img pdfproc.PageImage) error {
		page, err := df.newImage(doc, img.Data, img.Ext())
		if err != nil {
			df.log.Warn("Skipping image", "err", err, "origin", origin, "page", img.Page, "name", img.Name, "type", img.FileType)
			return nil
		}
		page.Number = img.Page
		df.log.Debug("Image found", "origin", origin, "page", img.Page, "type", img.FileType, "name", img.Name)
		doc.Pages = append(doc.Pages, page)
		return nil
	})
	if err != nil {
		doc.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedType, err)
	}
	if len(doc.Pages) == 0 {
		df.log.Warn("No image found.", "origin", origin)
	}
	return doc, nil
}

// renderPdf adds one page image per PDF page.
func (df *DocFactory) renderPdf(doc *Doc, data []byte, origin string) (*Doc, error) {
	doc.Metadata["x-parsed-by"] = df.Renderer.Name()
	err := df.Renderer.RenderPages(data, df.Dpi, func(pageNr int, img image.Image) error {
		df.log.Debug("Page rendered", "origin", origin, "page", pageNr, "size", img.Bounds().Size())
		doc.Pages = append(doc.Pages, Page{Number: pageNr, Image: tesswrap.ImageFromPixels(tesswrap.PixelsFromImage(img))})
		return nil
	})
	if err != nil {
		doc.Close()
		return nil, fmt.Errorf("%w: rendering with %s: %w", ErrUnsupportedType, df.Renderer.Name(), err)
	}
	return doc, nil
}

// newImage saves data to a temporary file, if tesseract can read its format,
// or decodes it into a pixel buffer otherwise.
func (df *DocFactory) newImage(doc *Doc, data []byte, ext string) (Page, error) {
	if tesswrap.FormatRecognized(ext) {
		f, err := os.CreateTemp(df.TempDir, "*-upload"+ext)
		if err != nil {
			return Page{}, fmt.Errorf("creating temp file: %w", err)
		}
		doc.temp = append(doc.temp, f.Name())
		_, err = f.Write(data)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return Page{}, fmt.Errorf("saving image: %w", err)
		}
		df.log.Debug("Image saved", "path", f.Name(), "size", humanize.Bytes(uint64(len(data))))
		return Page{Image: tesswrap.ImageFromPath(filepath.Clean(f.Name()))}, nil
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return Page{}, fmt.Errorf("%w: decoding %s image: %w", ErrUnsupportedType, ext, err)
	}
	return Page{Image: tesswrap.ImageFromPixels(tesswrap.PixelsFromImage(img))}, nil
}

func imageMetadata(data []byte, ext string) map[string]string {
	meta := map[string]string{"x-doctype": strings.TrimPrefix(ext, ".")}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		meta["x-image-dimensions"] = strconv.Itoa(cfg.Width) + "x" + strconv.Itoa(cfg.Height)
	}
	return meta
}
