package tesswrap

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"

	"github.com/disintegration/imaging"

	// decoders for PixelsFromFile
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// MaterializedName is the file name pixel buffers are written to before invoking the engine.
const MaterializedName = "ndarray_converted.png"

var formats = []string{"JPEG", "JPG", "PNG", "PBM", "PGM", "PPM", "TIFF", "BMP", "GIF", "WEBP"}

// PixelBuffer is a Height x Width x Channels array of 8 bit samples in row-major order.
type PixelBuffer struct {
	Height   int
	Width    int
	Channels int
	Data     []uint8
}

// Len returns the number of samples.
func (p *PixelBuffer) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Data)
}

// Dims returns height, width and channels.
func (p *PixelBuffer) Dims() (int, int, int) {
	return p.Height, p.Width, p.Channels
}

// RGB converts the buffer to an opaque image. Gray (1), RGB (3) and RGBA (4) buffers are supported.
func (p *PixelBuffer) RGB() (*image.NRGBA, error) {
	switch p.Channels {
	case 1, 3, 4:
	default:
		return nil, fmt.Errorf("unsupported number of channels: %d", p.Channels)
	}
	if p.Height <= 0 || p.Width <= 0 || len(p.Data) != p.Height*p.Width*p.Channels {
		return nil, fmt.Errorf("pixel data of length %d does not match dimensions %dx%dx%d",
			len(p.Data), p.Height, p.Width, p.Channels)
	}
	img := image.NewNRGBA(image.Rect(0, 0, p.Width, p.Height))
	for y := range p.Height {
		for x := range p.Width {
			i := (y*p.Width + x) * p.Channels
			var c color.NRGBA
			if p.Channels == 1 {
				c = color.NRGBA{p.Data[i], p.Data[i], p.Data[i], 0xff}
			} else {
				c = color.NRGBA{p.Data[i], p.Data[i+1], p.Data[i+2], 0xff}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img, nil
}

// PixelsFromImage copies img into an RGB pixel buffer.
func PixelsFromImage(img image.Image) *PixelBuffer {
	b := img.Bounds()
	p := &PixelBuffer{Height: b.Dy(), Width: b.Dx(), Channels: 3, Data: make([]uint8, 0, b.Dx()*b.Dy()*3)}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			p.Data = append(p.Data, c.R, c.G, c.B)
		}
	}
	return p
}

// PixelsFromFile decodes the image file at path into a pixel buffer.
func PixelsFromFile(path string) (*PixelBuffer, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	return PixelsFromImage(img), nil
}

// Image is either the path of an image file or a buffer of pixels.
type Image struct {
	Path   string
	Pixels *PixelBuffer
}

// ImageFromPath returns an Image referring to a file.
func ImageFromPath(path string) Image {
	return Image{Path: path}
}

// ImageFromPixels returns an Image backed by an in-memory buffer.
func ImageFromPixels(p *PixelBuffer) Image {
	return Image{Pixels: p}
}

func (img Image) String() string {
	return img.Path
}

// HasPixels reports whether the pixel buffer holds at least one sample.
func (img Image) HasPixels() bool {
	return img.Pixels.Len() > 0
}

// FormatRecognized reports whether the extension of img's path is a supported image format.
func (img Image) FormatRecognized() bool {
	return FormatRecognized(img.Path)
}

// FormatRecognized reports whether path ends with the extension of a supported image format.
// The comparison is case-insensitive.
func FormatRecognized(path string) bool {
	i := strings.LastIndexByte(path, '.')
	if i < 0 {
		return false
	}
	return slices.Contains(formats, strings.ToUpper(path[i+1:]))
}

// prepareImageArg returns the image argument for the engine.
// Pixels are written to dir/ndarray_converted.png when no path is set. A failure to do so is
// logged, and the argument stays the (empty) path.
func prepareImageArg(img Image, dir string, log *slog.Logger) (string, error) {
	if err := img.Validate(); err != nil {
		return "", err
	}
	if img.Path == "" {
		path := filepath.Join(dir, MaterializedName)
		if err := materialize(img.Pixels, path); err != nil {
			log.Error("Error while saving image", "path", path, "err", err)
			return img.Path, nil
		}
		log.Debug("Image saved", "path", path)
		return path, nil
	}
	return strings.ReplaceAll(img.Path, `"`, ""), nil
}

// Validate returns [ErrImageNotFound] if img has neither path nor pixels
// and [ErrImageFormat] if the path has an unsupported extension.
func (img Image) Validate() error {
	switch {
	case img.Path == "" && img.HasPixels():
		return nil
	case img.Path == "":
		return ErrImageNotFound
	case !img.FormatRecognized():
		return fmt.Errorf("%w: %s", ErrImageFormat, img.Path)
	}
	return nil
}

func materialize(p *PixelBuffer, path string) error {
	if p == nil {
		return errors.New("no pixels")
	}
	rgb, err := p.RGB()
	if err != nil {
		return err
	}
	return imaging.Save(rgb, path)
}
