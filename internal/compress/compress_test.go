package compress

import (
	"archive/zip"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/convertify/convertify/internal/staging"
)

func newTestEngine(t *testing.T) (*Engine, *staging.Stager) {
	t.Helper()
	root := t.TempDir()
	s, err := staging.New(filepath.Join(root, "uploads"), filepath.Join(root, "converted"))
	if err != nil {
		t.Fatalf("staging.New: %v", err)
	}
	return NewEngine(s), s
}

func stageContent(t *testing.T, s *staging.Stager, name, content string) *staging.StagedFile {
	t.Helper()
	staged, err := s.Stage(strings.NewReader(content), name)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	return staged
}

func TestCompress_TextToZip(t *testing.T) {
	engine, s := newTestEngine(t)

	// Highly repetitive content deflates well.
	content := strings.Repeat("convertify compresses text files into archives\n", 200)
	staged := stageContent(t, s, "notes.txt", content)

	result, err := engine.Compress(context.Background(), staged, 70)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if !result.Reduced {
		t.Errorf("Reduced = false for highly compressible input (%d → %d bytes)",
			result.OriginalSize, result.FinalSize)
	}
	if result.FinalSize >= result.OriginalSize {
		t.Errorf("FinalSize %d not smaller than OriginalSize %d", result.FinalSize, result.OriginalSize)
	}
	if !strings.HasSuffix(result.Path, "-compressed.zip") {
		t.Errorf("output %q missing -compressed.zip suffix", result.Path)
	}

	// The archive must contain a single entry named after the original file.
	zr, err := zip.OpenReader(result.Path)
	if err != nil {
		t.Fatalf("output is not a readable zip: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 {
		t.Fatalf("zip entries = %d, want 1", len(zr.File))
	}
	if zr.File[0].Name != "notes.txt" {
		t.Errorf("entry name = %q, want notes.txt", zr.File[0].Name)
	}
}

func TestCompress_Image(t *testing.T) {
	engine, s := newTestEngine(t)

	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	tmp := filepath.Join(t.TempDir(), "in.png")
	f, err := os.Create(tmp)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	f.Close()

	in, err := os.Open(tmp)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer in.Close()
	staged, err := s.Stage(in, "photo.png")
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}

	result, err := engine.Compress(context.Background(), staged, 40)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	if !strings.HasSuffix(result.Path, "-compressed.jpg") {
		t.Errorf("output %q missing -compressed.jpg suffix", result.Path)
	}

	out, err := os.Open(result.Path)
	if err != nil {
		t.Fatalf("Open output: %v", err)
	}
	defer out.Close()
	if _, err := jpeg.Decode(out); err != nil {
		t.Errorf("output is not a decodable JPEG: %v", err)
	}
}

func TestCompress_CorruptPDF_DegradesToCopy(t *testing.T) {
	engine, s := newTestEngine(t)

	// A .pdf that is not a PDF: pdfcpu fails, the engine copies through.
	content := "this is definitely not a pdf"
	staged := stageContent(t, s, "broken.pdf", content)

	result, err := engine.Compress(context.Background(), staged, 70)
	if err != nil {
		t.Fatalf("Compress: %v (soft failure must not surface)", err)
	}
	if result.Reduced {
		t.Error("Reduced = true for degraded copy")
	}

	data, err := os.ReadFile(result.Path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data) != content {
		t.Errorf("degraded output differs from input: %q", data)
	}
	if result.FinalSize != result.OriginalSize {
		t.Errorf("FinalSize %d != OriginalSize %d for copy", result.FinalSize, result.OriginalSize)
	}
}

func TestCompress_RateZeroStillWorks(t *testing.T) {
	engine, s := newTestEngine(t)
	staged := stageContent(t, s, "notes.txt", strings.Repeat("abc", 500))

	result, err := engine.Compress(context.Background(), staged, 0)
	if err != nil {
		t.Fatalf("Compress with rate 0: %v", err)
	}
	if _, err := zip.OpenReader(result.Path); err != nil {
		t.Errorf("output is not a readable zip: %v", err)
	}
}

func TestCompress_RateOutOfRangeClamped(t *testing.T) {
	engine, s := newTestEngine(t)
	staged := stageContent(t, s, "notes.txt", strings.Repeat("abc", 500))

	if _, err := engine.Compress(context.Background(), staged, 500); err != nil {
		t.Errorf("Compress with rate 500: %v", err)
	}
	staged2 := stageContent(t, s, "more.txt", strings.Repeat("xyz", 500))
	if _, err := engine.Compress(context.Background(), staged2, -5); err != nil {
		t.Errorf("Compress with rate -5: %v", err)
	}
}

func TestCompress_CancelledContext(t *testing.T) {
	engine, s := newTestEngine(t)
	staged := stageContent(t, s, "notes.txt", "content")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Compress(ctx, staged, 70); err == nil {
		t.Error("expected error for cancelled context")
	}
}
