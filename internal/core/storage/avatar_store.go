// Package storage keeps uploaded avatar images on disk.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif" // register gif
	"image/jpeg"
	_ "image/png" // register png
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"golang.org/x/image/draw"

	"github.com/duynhne/onboarding-service/config"
	"github.com/duynhne/onboarding-service/internal/core/domain"
)

const refPrefix = "avatar_"

// FileAvatarStore implements domain.AvatarStore. Uploads are center-cropped,
// scaled to a square and re-encoded as JPEG; the draft only ever sees the ref.
type FileAvatarStore struct {
	dir      string
	size     int
	quality  int
	maxBytes int64
}

// NewFileAvatarStore creates the storage directory if needed.
func NewFileAvatarStore(cfg config.AvatarConfig) (*FileAvatarStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create avatar dir %q: %w", cfg.Dir, err)
	}
	return &FileAvatarStore{
		dir:      cfg.Dir,
		size:     cfg.Size,
		quality:  cfg.Quality,
		maxBytes: cfg.MaxBytes,
	}, nil
}

func (s *FileAvatarStore) Store(ctx context.Context, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > s.maxBytes {
		return "", fmt.Errorf("upload exceeds %d bytes: %w", s.maxBytes, domain.ErrImageTooLarge)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode upload: %w", domain.ErrInvalidImage)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := image.NewRGBA(image.Rect(0, 0, s.size, s.size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, centerSquare(src.Bounds()), draw.Over, nil)

	ref := refPrefix + ulid.Make().String()
	if err := s.write(ref, dst); err != nil {
		return "", err
	}
	return ref, nil
}

// Path resolves a reference to its file. Malformed refs never touch the filesystem.
func (s *FileAvatarStore) Path(ref string) (string, error) {
	id, ok := strings.CutPrefix(ref, refPrefix)
	if !ok {
		return "", domain.ErrAvatarNotFound
	}
	if _, err := ulid.ParseStrict(id); err != nil {
		return "", domain.ErrAvatarNotFound
	}

	path := filepath.Join(s.dir, ref+".jpg")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("stat avatar %q: %w", ref, domain.ErrAvatarNotFound)
	}
	return path, nil
}

// write encodes to a temp file and renames it so readers never see partial files.
func (s *FileAvatarStore) write(ref string, img image.Image) error {
	tmp, err := os.CreateTemp(s.dir, ref+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp avatar: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := jpeg.Encode(tmp, img, &jpeg.Options{Quality: s.quality}); err != nil {
		tmp.Close()
		return fmt.Errorf("encode avatar: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp avatar: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, ref+".jpg")); err != nil {
		return fmt.Errorf("store avatar: %w", err)
	}
	return nil
}

func centerSquare(b image.Rectangle) image.Rectangle {
	side := min(b.Dx(), b.Dy())
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}
