package attachments

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"famfinance/internal/core"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, 0, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), "/files/")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	s.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestFileStore_Save(t *testing.T) {
	s := newTestStore(t)

	stored, err := s.Save(context.Background(), "fam-1", pngBytes(t, 800, 400))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if !strings.HasPrefix(stored.URL, "/files/fam-1/2026/03/") || !strings.HasSuffix(stored.URL, ".png") {
		t.Errorf("URL = %q", stored.URL)
	}
	if !strings.HasSuffix(stored.ThumbnailURL, "_thumb.jpg") {
		t.Errorf("ThumbnailURL = %q", stored.ThumbnailURL)
	}

	rel := strings.TrimPrefix(stored.ThumbnailURL, "/files/")
	thumb, err := os.ReadFile(filepath.Join(s.Dir(), filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read thumbnail: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("decode thumbnail: %v", err)
	}
	if got := img.Bounds(); got.Dx() != 200 || got.Dy() != 100 {
		t.Errorf("thumbnail size = %dx%d, want 200x100", got.Dx(), got.Dy())
	}
}

func TestFileStore_SaveRejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmpty},
		{"text", []byte("hello, this is not an image"), ErrUnsupportedType},
		{"pdf", []byte("%PDF-1.4 fake"), ErrUnsupportedType},
		{"too large", append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, MaxSize)...), ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			_, err := s.Save(context.Background(), "fam-1", tt.data)
			if !errors.Is(err, tt.want) {
				t.Fatalf("Save() error = %v, want %v", err, tt.want)
			}
			if core.KindOf(err) != core.KindValidation {
				t.Errorf("kind = %v, want validation", core.KindOf(err))
			}
		})
	}
}

func TestFileStore_CorruptImage(t *testing.T) {
	s := newTestStore(t)
	data := pngBytes(t, 10, 10)[:30]

	_, err := s.Save(context.Background(), "fam-1", data)
	if core.KindOf(err) != core.KindValidation {
		t.Fatalf("Save() error = %v, want validation error", err)
	}
}

func TestThumbnail_SmallImageKeepsSize(t *testing.T) {
	thumb, err := Thumbnail(pngBytes(t, 50, 120), ThumbnailSize)
	if err != nil {
		t.Fatalf("Thumbnail() error = %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(thumb))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := img.Bounds(); got.Dx() != 50 || got.Dy() != 120 {
		t.Errorf("size = %dx%d, want 50x120", got.Dx(), got.Dy())
	}
}

func TestFamilyOf(t *testing.T) {
	tests := map[string]string{
		"fam-1/2026/03/a.png":    "fam-1",
		"/fam-1/2026/03/a.png":   "fam-1",
		"../fam-2/2026/03/a.png": "fam-2",
		"fam-1/../fam-2/x.png":   "fam-2",
		"":                       "",
	}
	for in, want := range tests {
		if got := FamilyOf(in); got != want {
			t.Errorf("FamilyOf(%q) = %q, want %q", in, got, want)
		}
	}
}
