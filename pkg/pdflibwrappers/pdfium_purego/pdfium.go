// Package pdfium_purego loads the PDFium shared library and renders PDF pages to images.
package pdfium_purego

import (
	"errors"
	"fmt"
	"image"
	"math"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
	"github.com/johbar/tesspipe/pkg/pdflibwrappers"
)

type document uintptr
type page uintptr
type bitmap uintptr

const (
	pointsPerInch = 72
	// FPDF_ANNOT
	renderAnnotations = 0x01
	white             = 0xFFFFFFFF
)

var (
	lib        uintptr
	loadedFrom string

	FPDF_InitLibrary    func()
	FPDF_DestroyLibrary func()

	FPDF_LoadMemDocument func(data []byte, length uint64, password *byte) document
	FPDF_GetLastError    func() uint32
	// document
	FPDF_GetPageCount  func(docHandle document) int32
	FPDF_CloseDocument func(docHandle document)

	// page
	FPDF_LoadPage       func(docHandle document, index int32) page
	FPDF_ClosePage      func(pageHandle page)
	FPDF_GetPageWidthF  func(pageHandle page) float32
	FPDF_GetPageHeightF func(pageHandle page) float32

	// bitmap, 4 bytes per pixel in BGRx order
	FPDFBitmap_Create     func(width, height, alpha int32) bitmap
	FPDFBitmap_FillRect   func(bm bitmap, left, top, width, height int32, color uint32)
	FPDFBitmap_GetBuffer  func(bm bitmap) unsafe.Pointer
	FPDFBitmap_GetStride  func(bm bitmap) int32
	FPDFBitmap_Destroy    func(bm bitmap)
	FPDF_RenderPageBitmap func(bm bitmap, pageHandle page, startX, startY, sizeX, sizeY, rotate, flags int32)

	// PDFium is not thread-safe. This lock guards every call into the lib
	Lock sync.Mutex
)

var ErrNotLoaded = errors.New("pdfium has not been loaded")

func defaultLibNames() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{"pdfium.dll", "libpdfium.dll"}
	case "darwin":
		return []string{"libpdfium.dylib", "/usr/local/lib/libpdfium.dylib", "/opt/homebrew/lib/libpdfium.dylib"}
	}
	return []string{"libpdfium.so", "/usr/lib/libpdfium.so", "/usr/local/lib/libpdfium.so", "/opt/pdfium/lib/libpdfium.so"}
}

// InitLib loads libpdfium from path, or from the usual locations if path is empty,
// and returns where it was found. Later calls return the first result.
func InitLib(path string) (string, error) {
	Lock.Lock()
	defer Lock.Unlock()
	if lib != 0 {
		return loadedFrom, nil
	}
	paths := defaultLibNames()
	if len(path) > 0 {
		paths = []string{path}
	}
	handle, path, err := pdflibwrappers.TryLoadLib(paths...)
	if err != nil {
		return "", err
	}
	purego.RegisterLibFunc(&FPDF_InitLibrary, handle, "FPDF_InitLibrary")
	purego.RegisterLibFunc(&FPDF_DestroyLibrary, handle, "FPDF_DestroyLibrary")
	purego.RegisterLibFunc(&FPDF_LoadMemDocument, handle, "FPDF_LoadMemDocument")
	purego.RegisterLibFunc(&FPDF_GetLastError, handle, "FPDF_GetLastError")
	purego.RegisterLibFunc(&FPDF_CloseDocument, handle, "FPDF_CloseDocument")
	purego.RegisterLibFunc(&FPDF_GetPageCount, handle, "FPDF_GetPageCount")
	purego.RegisterLibFunc(&FPDF_LoadPage, handle, "FPDF_LoadPage")
	purego.RegisterLibFunc(&FPDF_ClosePage, handle, "FPDF_ClosePage")
	purego.RegisterLibFunc(&FPDF_GetPageWidthF, handle, "FPDF_GetPageWidthF")
	purego.RegisterLibFunc(&FPDF_GetPageHeightF, handle, "FPDF_GetPageHeightF")

	purego.RegisterLibFunc(&FPDFBitmap_Create, handle, "FPDFBitmap_Create")
	purego.RegisterLibFunc(&FPDFBitmap_FillRect, handle, "FPDFBitmap_FillRect")
	purego.RegisterLibFunc(&FPDFBitmap_GetBuffer, handle, "FPDFBitmap_GetBuffer")
	purego.RegisterLibFunc(&FPDFBitmap_GetStride, handle, "FPDFBitmap_GetStride")
	purego.RegisterLibFunc(&FPDFBitmap_Destroy, handle, "FPDFBitmap_Destroy")
	purego.RegisterLibFunc(&FPDF_RenderPageBitmap, handle, "FPDF_RenderPageBitmap")

	FPDF_InitLibrary()
	lib, loadedFrom = handle, path
	return path, nil
}

// CloseLib releases PDFium and unloads the library. Open documents must be closed before.
func CloseLib() {
	Lock.Lock()
	defer Lock.Unlock()
	if lib == 0 {
		return
	}
	FPDF_DestroyLibrary()
	pdflibwrappers.CloseLib()
	lib, loadedFrom = 0, ""
}

// Loaded reports whether InitLib succeeded.
func Loaded() bool {
	Lock.Lock()
	defer Lock.Unlock()
	return lib != 0
}

type Document struct {
	handle document
	// PDFium reads from this buffer until the document is closed
	data  []byte
	pages int
}

func Load(data []byte) (*Document, error) {
	if !Loaded() {
		return nil, ErrNotLoaded
	}
	Lock.Lock()
	defer Lock.Unlock()
	handle := FPDF_LoadMemDocument(data, uint64(len(data)), nil)
	if handle == 0 {
		return nil, fmt.Errorf("pdfium: cannot load document, error code %d", FPDF_GetLastError())
	}
	return &Document{data: data, handle: handle, pages: int(FPDF_GetPageCount(handle))}, nil
}

func (d *Document) Close() {
	Lock.Lock()
	defer Lock.Unlock()
	if d.handle != 0 {
		FPDF_CloseDocument(d.handle)
		d.handle = 0
	}
}

func (d *Document) Pages() int {
	return d.pages
}

// RenderPage rasterizes page i (0-based) at dpi on a white background.
func (d *Document) RenderPage(i, dpi int) (*image.NRGBA, error) {
	Lock.Lock()
	defer Lock.Unlock()
	p := FPDF_LoadPage(d.handle, int32(i))
	if p == 0 {
		return nil, fmt.Errorf("pdfium: cannot load page %d", i)
	}
	defer FPDF_ClosePage(p)

	scale := float64(dpi) / pointsPerInch
	w := int32(math.Round(float64(FPDF_GetPageWidthF(p)) * scale))
	h := int32(math.Round(float64(FPDF_GetPageHeightF(p)) * scale))
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("pdfium: page %d has no area", i)
	}
	bm := FPDFBitmap_Create(w, h, 0)
	if bm == 0 {
		return nil, fmt.Errorf("pdfium: cannot create %dx%d bitmap", w, h)
	}
	defer FPDFBitmap_Destroy(bm)
	FPDFBitmap_FillRect(bm, 0, 0, w, h, white)
	FPDF_RenderPageBitmap(bm, p, 0, 0, w, h, 0, renderAnnotations)

	stride := int(FPDFBitmap_GetStride(bm))
	buf := unsafe.Slice((*byte)(FPDFBitmap_GetBuffer(bm)), stride*int(h))
	return bgrxToNRGBA(buf, int(w), int(h), stride), nil
}

// bgrxToNRGBA copies a PDFium bitmap buffer into an opaque image.
func bgrxToNRGBA(buf []byte, w, h, stride int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := range h {
		src := buf[y*stride : y*stride+4*w]
		dst := img.Pix[y*img.Stride : y*img.Stride+4*w]
		for x := 0; x < len(src); x += 4 {
			dst[x], dst[x+1], dst[x+2], dst[x+3] = src[x+2], src[x+1], src[x], 0xFF
		}
	}
	return img
}

// Renderer rasterizes every page of a PDF with PDFium. InitLib must have been called before.
type Renderer struct{}

func (Renderer) Name() string {
	return "pdfium"
}

// RenderPages calls fn with the 1-based page number and image of every page, in order.
func (Renderer) RenderPages(data []byte, dpi int, fn func(pageNr int, img image.Image) error) error {
	d, err := Load(data)
	if err != nil {
		return err
	}
	defer d.Close()
	for i := range d.Pages() {
		img, err := d.RenderPage(i, dpi)
		if err != nil {
			return err
		}
		if err := fn(i+1, img); err != nil {
			return err
		}
	}
	return nil
}
