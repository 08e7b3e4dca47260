package pdfium_purego

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"io"
	"testing"

	pdfcpuapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBgrxToNRGBA(t *testing.T) {
	// 2x2 pixels, stride padded to 12 bytes
	buf := []byte{
		0, 0, 255, 0, 0, 255, 0, 0, 9, 9, 9, 9,
		255, 0, 0, 0, 10, 20, 30, 0, 9, 9, 9, 9,
	}
	img := bgrxToNRGBA(buf, 2, 2, 12)
	assert.Equal(t, image.Rect(0, 0, 2, 2), img.Bounds())
	assert.Equal(t, color.NRGBA{R: 255, A: 255}, img.NRGBAAt(0, 0))
	assert.Equal(t, color.NRGBA{G: 255, A: 255}, img.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{B: 255, A: 255}, img.NRGBAAt(0, 1))
	assert.Equal(t, color.NRGBA{R: 30, G: 20, B: 10, A: 255}, img.NRGBAAt(1, 1))
}

func TestLoadWithoutLib(t *testing.T) {
	if Loaded() {
		t.Skip("pdfium already loaded")
	}
	_, err := Load([]byte("%PDF-1.7"))
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestRenderPages(t *testing.T) {
	if _, err := InitLib(""); err != nil {
		t.Skipf("pdfium could not be loaded: %v", err)
	}
	var pdf bytes.Buffer
	var imgs []io.Reader
	for range 2 {
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 72, 36))))
		imgs = append(imgs, &buf)
	}
	require.NoError(t, pdfcpuapi.ImportImages(nil, &pdf, imgs, pdfcpu.DefaultImportConfig(), nil))

	var pages []int
	err := Renderer{}.RenderPages(pdf.Bytes(), 144, func(pageNr int, img image.Image) error {
		pages = append(pages, pageNr)
		assert.False(t, img.Bounds().Empty())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, pages)

	d, err := Load(pdf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, 2, d.Pages())
	d.Close()

	CloseLib()
	assert.False(t, Loaded())
	_, err = Load(pdf.Bytes())
	assert.ErrorIs(t, err, ErrNotLoaded)
	CloseLib()
}
