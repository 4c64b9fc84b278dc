package datasets

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/image/draw"
)

// Frame geometry produced by the simulator cameras.
const (
	FrameHeight   = 160
	FrameWidth    = 320
	FrameChannels = 3
)

// Camera identifies one of the three cameras mounted on the car.
type Camera int

const (
	Center Camera = iota
	Left
	Right
)

// Cameras lists the cameras in the order the builder visits them.
var Cameras = [...]Camera{Center, Left, Right}

func (c Camera) String() string {
	switch c {
	case Center:
		return "center"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "unknown"
}

// Image is a decoded frame stored as height x width x channel bytes (RGB).
type Image struct {
	Height int
	Width  int
	Pix    []uint8
}

// NewImage allocates a black image.
func NewImage(height, width int) Image {
	return Image{Height: height, Width: width, Pix: make([]uint8, height*width*FrameChannels)}
}

// At returns the value of channel c of the pixel at row y, column x.
func (im Image) At(y, x, c int) uint8 {
	return im.Pix[(y*im.Width+x)*FrameChannels+c]
}

// Set sets channel c of the pixel at row y, column x.
func (im Image) Set(y, x, c int, v uint8) {
	im.Pix[(y*im.Width+x)*FrameChannels+c] = v
}

// Flip returns the horizontal mirror of the image: every row has its pixel
// columns reversed. The receiver is left untouched.
func (im Image) Flip() Image {
	out := Image{Height: im.Height, Width: im.Width, Pix: make([]uint8, len(im.Pix))}
	rowLen := im.Width * FrameChannels
	for y := 0; y < im.Height; y++ {
		row := im.Pix[y*rowLen : (y+1)*rowLen]
		dst := out.Pix[y*rowLen : (y+1)*rowLen]
		for x := 0; x < im.Width; x++ {
			copy(dst[x*FrameChannels:(x+1)*FrameChannels], row[(im.Width-1-x)*FrameChannels:(im.Width-x)*FrameChannels])
		}
	}
	return out
}

// FromImage converts any decoded image into an Image, dropping alpha.
func FromImage(src image.Image) Image {
	b := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if !ok || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	}
	out := NewImage(b.Dy(), b.Dx())
	for y := 0; y < out.Height; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < out.Width; x++ {
			o := (y*out.Width + x) * FrameChannels
			copy(out.Pix[o:o+FrameChannels], row[x*4:x*4+3])
		}
	}
	return out
}

// ResolveImagePath discards the directory part of a path stored in the
// driving log and re-roots the file name under imageDir. Logs recorded on
// Windows use backslashes, so both separators are accepted.
func ResolveImagePath(imageDir, stored string) string {
	stored = strings.TrimSpace(stored)
	if i := strings.LastIndexAny(stored, `/\`); i >= 0 {
		stored = stored[i+1:]
	}
	return filepath.Join(imageDir, stored)
}

// FrameLoader turns a path stored in the driving log into a decoded frame.
type FrameLoader interface {
	Load(stored string) (Image, error)
}

// ImageLoader loads frames from ImageDir using the registered image codecs.
type ImageLoader struct {
	ImageDir string

	// Height and Width are the expected frame size. Zero means the
	// simulator's 160x320.
	Height int
	Width  int

	// Resize rescales frames of any other size instead of rejecting them.
	Resize bool
}

// Load resolves, opens and decodes one frame.
func (l *ImageLoader) Load(stored string) (Image, error) {
	path := ResolveImagePath(l.ImageDir, stored)
	f, err := os.Open(path)
	if err != nil {
		return Image{}, errors.Wrap(err, "failed to open image")
	}
	defer f.Close()

	src, format, err := image.Decode(f)
	if err != nil {
		return Image{}, errors.Wrapf(err, "failed to decode image %s", path)
	}

	h, w := l.Height, l.Width
	if h == 0 {
		h = FrameHeight
	}
	if w == 0 {
		w = FrameWidth
	}
	b := src.Bounds()
	if b.Dx() != w || b.Dy() != h {
		if !l.Resize {
			return Image{}, errors.Errorf("%s image %s is %dx%d, expected %dx%d", format, path, b.Dy(), b.Dx(), h, w)
		}
		dst := image.NewRGBA(image.Rect(0, 0, w, h))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
		src = dst
	}
	return FromImage(src), nil
}
