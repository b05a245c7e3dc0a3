package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

const testBucket = "painter-uploads"

var (
	pngBytes  = append([]byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), make([]byte, 32)...)
	jpegBytes = append([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}, make([]byte, 32)...)
	webpBytes = append([]byte("RIFF\x24\x00\x00\x00WEBPVP8 "), make([]byte, 32)...)
	heicBytes = append([]byte("\x00\x00\x00\x10ftypheic\x00\x00\x00\x00"), make([]byte, 32)...)
	heifBytes = append([]byte("\x00\x00\x00\x10ftypmif1\x00\x00\x00\x00"), make([]byte, 32)...)
)

func newTestBucket(t *testing.T, maxBytes int64, files map[string][]byte) *Bucket {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, data := range files {
		if err := afero.WriteFile(fs, name, data, 0o644); err != nil {
			t.Fatalf("seed %s: %v", name, err)
		}
	}
	return NewBucket(fs, testBucket, maxBytes)
}

func TestParseReference(t *testing.T) {
	b := newTestBucket(t, 0, nil)

	ok := map[string]string{
		"uploads/u1/cat.png":                                      "uploads/u1/cat.png",
		"gs://painter-uploads/uploads/u1/cat.png":                 "uploads/u1/cat.png",
		"https://storage.googleapis.com/painter-uploads/a/b.jpeg": "a/b.jpeg",
	}
	for ref, want := range ok {
		got, err := b.ParseReference(ref)
		if err != nil || got != want {
			t.Errorf("ParseReference(%q) = %q, %v; want %q", ref, got, err, want)
		}
	}

	bad := []string{
		"",
		"gs://other-bucket/uploads/cat.png",
		"gs://painter-uploads",
		"../etc/passwd",
		"uploads/../../secret",
		"/etc/passwd",
		"uploads//cat.png",
		"ftp://painter-uploads/cat.png",
		"https://example.com/painter-uploads/cat.png",
	}
	for _, ref := range bad {
		if _, err := b.ParseReference(ref); !errors.Is(err, ErrInvalidReference) {
			t.Errorf("ParseReference(%q): expected ErrInvalidReference, got %v", ref, err)
		}
	}
}

func TestFetch_MediaTypes(t *testing.T) {
	b := newTestBucket(t, 1<<20, map[string][]byte{
		"in/a.png":  pngBytes,
		"in/b.jpg":  jpegBytes,
		"in/c.webp": webpBytes,
		"in/d.txt":  []byte("just some text, not an image"),
		"in/e.heic": heicBytes,
		"in/f.heif": heifBytes,
	})

	for key, want := range map[string]string{"in/a.png": "image/png", "in/b.jpg": "image/jpeg", "in/c.webp": "image/webp"} {
		obj, err := b.Fetch(context.Background(), key)
		if err != nil {
			t.Fatalf("Fetch(%s): %v", key, err)
		}
		if obj.ContentType != want {
			t.Errorf("Fetch(%s): content type %q, want %q", key, obj.ContentType, want)
		}
	}

	for _, key := range []string{"in/e.heic", "in/f.heif"} {
		obj, err := b.Fetch(context.Background(), key)
		if err != nil {
			t.Fatalf("Fetch(%s): %v", key, err)
		}
		if !strings.HasPrefix(obj.ContentType, "image/hei") {
			t.Errorf("Fetch(%s): content type %q, want heic or heif", key, obj.ContentType)
		}
	}

	if _, err := b.Fetch(context.Background(), "in/d.txt"); !errors.Is(err, ErrUnsupportedMedia) {
		t.Errorf("expected ErrUnsupportedMedia, got %v", err)
	}
}

func TestFetch_Errors(t *testing.T) {
	big := append(append([]byte{}, pngBytes...), bytes.Repeat([]byte{0}, 128)...)
	b := newTestBucket(t, 64, map[string][]byte{"in/big.png": big})

	if _, err := b.Fetch(context.Background(), "in/missing.png"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := b.Fetch(context.Background(), "in/big.png"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
	if _, err := b.Fetch(context.Background(), "gs://elsewhere/in/big.png"); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("expected ErrInvalidReference, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Fetch(ctx, "in/big.png"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPut(t *testing.T) {
	b := newTestBucket(t, 1<<20, nil)
	key := ArtworkKey("user-1", "art-1")
	if key != "artworks/user-1/art-1.png" {
		t.Fatalf("unexpected artwork key %q", key)
	}

	if err := b.Put(context.Background(), key, pngBytes); err != nil {
		t.Fatalf("Put: %v", err)
	}
	obj, err := b.Fetch(context.Background(), key)
	if err != nil {
		t.Fatalf("Fetch after Put: %v", err)
	}
	if !bytes.Equal(obj.Data, pngBytes) {
		t.Error("round trip changed the bytes")
	}

	if err := b.Put(context.Background(), "../escape.png", pngBytes); !errors.Is(err, ErrInvalidReference) {
		t.Errorf("expected ErrInvalidReference, got %v", err)
	}
}
