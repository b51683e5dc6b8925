// Package attachments stores receipt images for ledger rows on the local
// filesystem and renders a small JPEG thumbnail next to each one.
//
// Files live under {dir}/{family_id}/{YYYY}/{MM}/{uuid}.{ext} and are served
// back under the configured base URL with the same relative path.
package attachments

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"famfinance/internal/core"
)

const (
	// MaxSize is the largest accepted upload.
	MaxSize = 10 << 20

	ThumbnailSize    = 200
	thumbnailQuality = 70
)

var (
	ErrEmpty           = &core.Error{Kind: core.KindValidation, Message: "attachment is empty"}
	ErrTooLarge        = &core.Error{Kind: core.KindValidation, Message: fmt.Sprintf("attachment exceeds %d bytes", MaxSize)}
	ErrUnsupportedType = &core.Error{Kind: core.KindValidation, Message: "attachment must be a JPEG, PNG, GIF or WebP image"}
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// Stored is where an attachment and its thumbnail can be fetched.
type Stored struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url"`
}

// Store persists attachment bytes.
type Store interface {
	Save(ctx context.Context, familyID string, data []byte) (Stored, error)
}

// FileStore is a Store backed by a local directory.
type FileStore struct {
	dir     string
	baseURL string
	now     func() time.Time
}

// NewFileStore creates dir if needed.
func NewFileStore(dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachments directory: %w", err)
	}
	return &FileStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// Dir is the root directory files are written under.
func (s *FileStore) Dir() string {
	return s.dir
}

// DetectType sniffs data and returns its image content type, or
// ErrUnsupportedType.
func DetectType(data []byte) (string, error) {
	ct := http.DetectContentType(data)
	if _, ok := extensions[ct]; !ok {
		return "", ErrUnsupportedType
	}
	return ct, nil
}

// Save writes data and its thumbnail. The content type is sniffed from the
// bytes, never taken from the client.
func (s *FileStore) Save(ctx context.Context, familyID string, data []byte) (Stored, error) {
	if len(data) == 0 {
		return Stored{}, ErrEmpty
	}
	if len(data) > MaxSize {
		return Stored{}, ErrTooLarge
	}
	contentType, err := DetectType(data)
	if err != nil {
		return Stored{}, err
	}

	thumb, err := Thumbnail(data, ThumbnailSize)
	if err != nil {
		return Stored{}, err
	}

	now := s.now().UTC()
	id := uuid.NewString()
	rel := path.Join(familyID, fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())))
	name := id + extensions[contentType]
	thumbName := id + "_thumb.jpg"

	dir := filepath.Join(s.dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Stored{}, fmt.Errorf("create attachment directory: %w", err)
	}
	if err := writeFile(filepath.Join(dir, name), data); err != nil {
		return Stored{}, err
	}
	if err := writeFile(filepath.Join(dir, thumbName), thumb); err != nil {
		_ = os.Remove(filepath.Join(dir, name))
		return Stored{}, err
	}

	slog.InfoContext(ctx, "Attachment stored",
		"family_id", familyID,
		"content_type", contentType,
		"bytes", len(data),
		"path", path.Join(rel, name))

	return Stored{
		URL:          s.baseURL + "/" + path.Join(rel, name),
		ThumbnailURL: s.baseURL + "/" + path.Join(rel, thumbName),
	}, nil
}

// writeFile writes through a temp file so readers never see a partial image.
func writeFile(name string, data []byte) error {
	tmp := name + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write attachment: %w", err)
	}
	if err := os.Rename(tmp, name); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write attachment: %w", err)
	}
	return nil
}

// Thumbnail decodes data and scales it so the longer side is at most size
// pixels, encoded as JPEG. Smaller images are re-encoded at their own size.
func Thumbnail(data []byte, size int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedType
		}
		return nil, &core.Error{Kind: core.KindValidation, Message: "attachment image is corrupt", Err: err}
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > size || h > size {
		if w >= h {
			h = max(1, h*size/w)
			w = size
		} else {
			w = max(1, w*size/h)
			h = size
		}
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbnailQuality}); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// FamilyOf returns the family directory of a path relative to the base URL,
// so the file server can check it against the caller.
func FamilyOf(rel string) string {
	rel = strings.TrimPrefix(path.Clean("/"+rel), "/")
	family, _, _ := strings.Cut(rel, "/")
	return family
}
