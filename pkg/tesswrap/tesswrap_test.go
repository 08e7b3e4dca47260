package tesswrap

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/draw"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func newTestClient(t *testing.T, opts ...ClientOption) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	opts = append([]ClientOption{WithWorkDir(dir)}, opts...)
	return NewClient(NewLocator(fakeEngine(t)), opts...), dir
}

func TestRecognizeText(t *testing.T) {
	c, dir := newTestClient(t)
	img := touch(t, dir, "page.PNG")

	out, err := c.RecognizeText(context.Background(), ImageFromPath(img), NewOptions())
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Text)
	assert.Equal(t, []byte("hello world"), out.Bytes)
	assert.Equal(t, 0, out.Boxes.Len())
	assert.Empty(t, out.Columns)
	assert.Contains(t, out.Info, "Estimating resolution")
	assert.Equal(t, "hello world", out.String())
}

func TestRecognizeBoxes(t *testing.T) {
	c, dir := newTestClient(t)
	img := touch(t, dir, "page.jpg")

	out, err := c.RecognizeBoxes(context.Background(), ImageFromPath(img), NewOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"10 20 30 40", "12 22 32 42"}, out.Boxes.GetAll("A"))
	assert.Equal(t, []string{"11 21 31 41"}, out.Boxes.GetAll("B"))
	require.Len(t, out.Columns, 3)
	assert.Equal(t, Column{Name: "B", Values: []int{11, 21, 31, 41}}, out.Columns[1])
	args := recordedArgs(t, filepath.Join(dir, DefaultStem))
	assert.Equal(t, "makebox", args[len(args)-1])
}

func TestInvocationArguments(t *testing.T) {
	c, dir := newTestClient(t)
	img := touch(t, dir, `scan".tiff`)
	opts := NewOptions()
	opts.Lang = "deu"
	opts.DPI = 300
	opts.Set(KeyPSM, "6")
	opts.Set(KeyPSM, "7")

	_, err := c.RecognizeText(context.Background(), ImageFromPath(img), opts)
	require.NoError(t, err)
	stem := filepath.Join(dir, DefaultStem)
	want := []string{filepath.Join(dir, "scan.tiff"), stem, "-l", "deu", "--dpi", "300", "--psm", "7", "--oem", "3", "-c", DefaultExtra}
	assert.Equal(t, want, recordedArgs(t, stem))
}

func TestImageNotFoundDoesNotSpawn(t *testing.T) {
	c, dir := newTestClient(t)
	_, err := c.RecognizeText(context.Background(), Image{Pixels: &PixelBuffer{}}, NewOptions())
	assert.ErrorIs(t, err, ErrImageNotFound)
	assert.Equal(t, 0, calls(t, dir))
}

func TestImageFormatDoesNotSpawn(t *testing.T) {
	c, dir := newTestClient(t)
	img := touch(t, dir, "document.pdf")
	_, err := c.RecognizeBoxes(context.Background(), ImageFromPath(img), NewOptions())
	assert.ErrorIs(t, err, ErrImageFormat)
	assert.Equal(t, 0, calls(t, dir))
}

func TestEngineNotInstalled(t *testing.T) {
	c := NewClient(NewLocator(filepath.Join(t.TempDir(), "no-such-tesseract")))
	_, err := c.RecognizeText(context.Background(), ImageFromPath("a.png"), NewOptions())
	assert.ErrorIs(t, err, ErrEngineNotInstalled)

	_, err = NewClient(NewLocator("")).RecognizeText(context.Background(), ImageFromPath("a.png"), NewOptions())
	assert.ErrorIs(t, err, ErrEngineNotInstalled)
}

func TestArtifactReadFailure(t *testing.T) {
	c, dir := newTestClient(t)
	img := touch(t, dir, "missing.png")
	_, err := c.RecognizeText(context.Background(), ImageFromPath(img), NewOptions())
	assert.ErrorIs(t, err, ErrArtifactRead)
}

func TestCoordinateParseFailure(t *testing.T) {
	c, dir := newTestClient(t)
	img := touch(t, dir, "broken.png")
	_, err := c.RecognizeBoxes(context.Background(), ImageFromPath(img), NewOptions())
	require.ErrorIs(t, err, ErrCoordinateParse)
	var perr *BoxParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, 1, perr.Line)
	assert.Equal(t, "2x", perr.Token)
}

func TestPixelsAreMaterialized(t *testing.T) {
	c, dir := newTestClient(t)
	pixels := &PixelBuffer{Height: 2, Width: 3, Channels: 3, Data: make([]uint8, 18)}
	pixels.Data[0] = 0xff

	_, err := c.RecognizeText(context.Background(), ImageFromPixels(pixels), NewOptions())
	require.NoError(t, err)

	pngs, err := filepath.Glob(filepath.Join(dir, "*.png"))
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, MaterializedName)}, pngs)
	img, err := imaging.Open(pngs[0])
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	r, _, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, pngs[0], recordedArgs(t, filepath.Join(dir, DefaultStem))[0])
}

func TestPixelsThatCannotBeSaved(t *testing.T) {
	c, dir := newTestClient(t)
	for _, pixels := range []*PixelBuffer{
		{Height: 2, Width: 2, Channels: 2, Data: make([]uint8, 8)},
		{Height: 2, Width: 2, Channels: 3, Data: make([]uint8, 5)},
	} {
		_, err := c.RecognizeText(context.Background(), ImageFromPixels(pixels), NewOptions())
		assert.ErrorIs(t, err, ErrArtifactRead)
		assert.NoFileExists(t, filepath.Join(dir, MaterializedName))
		assert.Equal(t, "", recordedArgs(t, filepath.Join(dir, DefaultStem))[0], "the engine gets the empty path")
	}
}

func TestRecognizeTable(t *testing.T) {
	for _, tsv := range []bool{true, false} {
		c, dir := newTestClient(t, WithTSVPass(tsv))
		img := ImageFromPath(touch(t, dir, "page.png"))
		ctx := context.Background()

		table, err := c.RecognizeTable(ctx, img, NewOptions())
		require.NoError(t, err)
		text, err := c.RecognizeText(ctx, img, NewOptions())
		require.NoError(t, err)
		boxes, err := c.RecognizeBoxes(ctx, img, NewOptions())
		require.NoError(t, err)

		assert.Equal(t, text.Text, table.Text)
		assert.Equal(t, boxes.Boxes.Map(), table.Boxes.Map())
		assert.Equal(t, boxes.Columns, table.Columns)

		want := 4
		if tsv {
			want = 5
		}
		assert.Equal(t, want, calls(t, dir), "tsv pass %v", tsv)
	}
}

func TestTSVPassArguments(t *testing.T) {
	c, dir := newTestClient(t)
	_, err := c.RecognizeTable(context.Background(), ImageFromPath(touch(t, dir, "page.png")), NewOptions())
	require.NoError(t, err)
	args := recordedArgs(t, filepath.Join(dir, DefaultStem))
	assert.Equal(t, TSVExtra, args[len(args)-1])
}

func TestIsolatedInvocations(t *testing.T) {
	c, dir := newTestClient(t, WithIsolation(true, false))
	pixels := &PixelBuffer{Height: 1, Width: 1, Channels: 1, Data: []uint8{7}}

	out, err := c.RecognizeText(context.Background(), ImageFromPixels(pixels), NewOptions())
	require.NoError(t, err)
	assert.Equal(t, "hello world", out.Text)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "invocation directory should have been removed")
}

func TestIsolatedInvocationsKeepArtifacts(t *testing.T) {
	c, dir := newTestClient(t, WithIsolation(true, true))
	img := touch(t, dir, "page.png")
	_, err := c.RecognizeText(context.Background(), ImageFromPath(img), NewOptions())
	require.NoError(t, err)
	_, err = c.RecognizeText(context.Background(), ImageFromPath(img), NewOptions())
	require.NoError(t, err)

	artifacts, err := filepath.Glob(filepath.Join(dir, "*", DefaultStem+".txt"))
	require.NoError(t, err)
	assert.Len(t, artifacts, 2)
}

func TestVersion(t *testing.T) {
	loc := NewLocator(fakeEngine(t))
	v, err := loc.Version(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "\ntesseract 5.3.0\n leptonica-1.82.0", v)

	_, err = NewLocator("").Version(context.Background())
	assert.ErrorIs(t, err, ErrEngineNotInstalled)
}

func TestCheckLanguages(t *testing.T) {
	loc := NewLocator(fakeEngine(t))
	langs, err := loc.Languages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"deu", "eng", "osd"}, langs)

	ok, reason := loc.CheckLanguages(context.Background(), "eng+deu")
	assert.True(t, ok)
	assert.Empty(t, reason)
	ok, reason = loc.CheckLanguages(context.Background(), "eng+chi_sim")
	assert.False(t, ok)
	assert.Contains(t, reason, "chi_sim")
}

func TestInProcessBackend(t *testing.T) {
	ip, err := NewInProcess()
	if !InProcessAvailable {
		assert.ErrorIs(t, err, ErrInProcessUnavailable)
		return
	}
	require.NoError(t, err)
	_, err = ip.RecognizeText(context.Background(), Image{}, NewOptions())
	assert.ErrorIs(t, err, ErrImageNotFound)
}

// TestRealEngine runs the installed tesseract, if there is one.
func TestRealEngine(t *testing.T) {
	if _, err := exec.LookPath(SystemLocation()); err != nil {
		t.Skip("tesseract not installed in PATH")
	}
	img := image.NewRGBA(image.Rect(0, 0, 240, 80))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	d := &font.Drawer{Dst: img, Src: image.Black, Face: basicfont.Face7x13, Dot: fixed.P(10, 50)}
	d.DrawString("Hello OCR")
	scaled := imaging.Resize(img, 720, 240, imaging.Lanczos)

	c := NewClient(NewLocator(SystemLocation()), WithWorkDir(t.TempDir()), WithIsolation(true, false))
	out, err := c.RecognizeTable(context.Background(), ImageFromPixels(PixelsFromImage(scaled)), NewOptions())
	require.NoError(t, err)
	t.Log(out.Text)
	assert.NotEmpty(t, strings.TrimSpace(out.Text))
	assert.NotEmpty(t, out.Columns)
}
