// Package storage reads user uploads and writes generated artworks.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/afero"
)

var (
	ErrInvalidReference = errors.New("storage: invalid object reference")
	ErrNotFound         = errors.New("storage: object not found")
	ErrTooLarge         = errors.New("storage: object too large")
	ErrUnsupportedMedia = errors.New("storage: unsupported media type")
)

// AllowedInputTypes are the media types accepted as transform input.
var AllowedInputTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic", "image/heif"}

// Object is a fetched input image.
type Object struct {
	Key         string
	Data        []byte
	ContentType string
}

// Store is the object store seen by the generation gate.
type Store interface {
	Fetch(ctx context.Context, ref string) (*Object, error)
	Put(ctx context.Context, key string, data []byte) error
}

// Bucket is a Store over an afero filesystem. Keys are slash-separated paths
// relative to the filesystem root.
type Bucket struct {
	fs       afero.Fs
	name     string
	maxBytes int64
}

func NewBucket(fs afero.Fs, name string, maxBytes int64) *Bucket {
	return &Bucket{fs: fs, name: name, maxBytes: maxBytes}
}

// NewOSBucket roots a Bucket at dir on the local disk.
func NewOSBucket(dir, name string, maxBytes int64) (*Bucket, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root %q: %w", dir, err)
	}
	return NewBucket(afero.NewBasePathFs(afero.NewOsFs(), dir), name, maxBytes), nil
}

var _ Store = (*Bucket)(nil)

func (b *Bucket) Name() string { return b.name }

// ParseReference resolves ref to a key in this bucket. Accepted forms are
// gs://<bucket>/<key>, https://storage.googleapis.com/<bucket>/<key> and a
// bare key.
func (b *Bucket) ParseReference(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidReference)
	}

	key := ref
	switch {
	case strings.HasPrefix(ref, "gs://"):
		bucket, rest, ok := strings.Cut(strings.TrimPrefix(ref, "gs://"), "/")
		if !ok {
			return "", fmt.Errorf("%w: missing key", ErrInvalidReference)
		}
		if bucket != b.name {
			return "", fmt.Errorf("%w: foreign bucket %q", ErrInvalidReference, bucket)
		}
		key = rest
	case strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://"):
		u, err := url.Parse(ref)
		if err != nil || u.Host != "storage.googleapis.com" {
			return "", fmt.Errorf("%w: unsupported url", ErrInvalidReference)
		}
		bucket, rest, ok := strings.Cut(strings.TrimPrefix(u.Path, "/"), "/")
		if !ok {
			return "", fmt.Errorf("%w: missing key", ErrInvalidReference)
		}
		if bucket != b.name {
			return "", fmt.Errorf("%w: foreign bucket %q", ErrInvalidReference, bucket)
		}
		key = rest
	case strings.Contains(ref, "://"):
		return "", fmt.Errorf("%w: unsupported scheme", ErrInvalidReference)
	}

	if err := validateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidReference)
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: absolute key", ErrInvalidReference)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." {
			return fmt.Errorf("%w: parent segment", ErrInvalidReference)
		}
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: non-canonical key", ErrInvalidReference)
	}
	return nil
}

// Fetch reads the object named by ref and checks its size and media type.
func (b *Bucket) Fetch(ctx context.Context, ref string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key, err := b.ParseReference(ref)
	if err != nil {
		return nil, err
	}

	f, err := b.fs.Open(key)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if b.maxBytes > 0 && info.Size() > b.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrTooLarge, info.Size())
	}

	r := io.Reader(f)
	if b.maxBytes > 0 {
		r = io.LimitReader(f, b.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	if b.maxBytes > 0 && int64(len(data)) > b.maxBytes {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, key)
	}

	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), AllowedInputTypes...) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMedia, mt.String())
	}
	return &Object{Key: key, Data: data, ContentType: mt.String()}, nil
}

// Put writes data under key, creating parent directories.
func (b *Bucket) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateKey(key); err != nil {
		return err
	}
	if dir := path.Dir(key); dir != "." {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
	}
	if err := afero.WriteFile(b.fs, key, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return nil
}

// ArtworkKey is where a generated image for userID is stored.
func ArtworkKey(userID, artworkID string) string {
	return "artworks/" + userID + "/" + artworkID + ".png"
}
