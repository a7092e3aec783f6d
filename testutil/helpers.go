package testutil

import (
	"image"
	"image/color"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

// SkipIfNoDevice skips the test if no DRM card node is present
func SkipIfNoDevice(t *testing.T) string {
	t.Helper()

	devices := []string{"/dev/dri/card0", "/dev/dri/card1"}
	for _, path := range devices {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	t.Skip("No DRM device available")
	return ""
}

// TempFile creates a temporary file with given content
func TempFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	err := os.WriteFile(path, content, 0644)
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

// MakeTestImage creates a premultiplied RGBA image with a deterministic
// gradient. A zero alpha gives a fully transparent image.
func MakeTestImage(width, height int, alpha uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if alpha == 0 {
				continue
			}
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * int(alpha) / max(width, 1)),
				G: uint8(y * int(alpha) / max(height, 1)),
				B: uint8((x + y) % (int(alpha) + 1)),
				A: alpha,
			})
		}
	}
	return img
}

// QuietLogger returns a logger that discards everything
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
