package datasets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
)

// writeCSV writes a header-less CSV file with the given rows to path.
func writeCSV(t *testing.T, path string, rows []string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create csv %s: %v", path, err)
	}
	defer f.Close()

	for _, r := range rows {
		if _, err := f.WriteString(r + "\n"); err != nil {
			t.Fatalf("failed to write row: %v", err)
		}
	}
}

// patternImage returns a deterministic, asymmetric test frame.
func patternImage(height, width int, seed int) Image {
	img := NewImage(height, width)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < FrameChannels; c++ {
				img.Set(y, x, c, uint8((y*7+x*3+c*11+seed*31)%256))
			}
		}
	}
	return img
}

// writePNG encodes img as a PNG file at path.
func writePNG(t *testing.T, path string, img Image) {
	t.Helper()
	rgba := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			rgba.Set(x, y, color.RGBA{R: img.At(y, x, 0), G: img.At(y, x, 1), B: img.At(y, x, 2), A: 255})
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("failed to create image dir: %v", err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create image %s: %v", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, rgba); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
}

// memLoader serves frames from memory keyed by stored path.
type memLoader map[string]Image

func (m memLoader) Load(stored string) (Image, error) {
	img, ok := m[stored]
	if !ok {
		return Image{}, errors.Errorf("no such frame %q", stored)
	}
	return img, nil
}
