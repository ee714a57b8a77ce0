package attachments

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func setupTest(t *testing.T, maxBytes int64) string {
	t.Helper()
	dir := t.TempDir()
	Setup(zap.NewNop().Sugar(), dir, maxBytes)
	return dir
}

func pngBytes(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestIngestStoresImageAndThumbnail(t *testing.T) {
	dir := setupTest(t, 1<<20)

	attachment, err := Ingest(bytes.NewReader(pngBytes(t, 20, 10)), "cat.png", 77)
	if err != nil {
		t.Fatal(err)
	}

	if attachment.Width != 20 || attachment.Height != 10 {
		t.Errorf("dimensions = %dx%d, expected 20x10", attachment.Width, attachment.Height)
	}
	if !strings.HasPrefix(attachment.Path, "77/") || !strings.HasSuffix(attachment.Path, ".png") {
		t.Errorf("unexpected path %q", attachment.Path)
	}

	stored := filepath.Join(dir, filepath.FromSlash(attachment.Path))
	if _, err := os.Stat(stored); err != nil {
		t.Errorf("stored file missing: %v", err)
	}

	thumb := strings.TrimSuffix(stored, ".png") + ".thumb.webp"
	if _, err := os.Stat(thumb); err != nil {
		t.Errorf("thumbnail missing: %v", err)
	}
}

func TestIngestRejectsNonImage(t *testing.T) {
	dir := setupTest(t, 1<<20)

	_, err := Ingest(strings.NewReader("definitely not an image"), "notes.txt", 77)
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("err = %v, expected ErrInvalidImage", err)
	}

	// nothing may be left behind
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("%d entries left in attachment dir after failed ingest", len(entries))
	}
}

func TestIngestRejectsOversizedUpload(t *testing.T) {
	setupTest(t, 64)

	_, err := Ingest(bytes.NewReader(pngBytes(t, 64, 64)), "big.png", 77)
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("err = %v, expected ErrTooLarge", err)
	}
}
