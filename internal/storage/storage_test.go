package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTemp(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLocalUpload(t *testing.T) {
	src := writeTemp(t, "lesson 1.mp3", "audio")
	dir := filepath.Join(t.TempDir(), "out")

	u, err := Local{Dir: dir, BaseURL: "https://cdn.example.com/audio/"}.Upload(context.Background(), src, "audio/mpeg")
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if u != "https://cdn.example.com/audio/lesson%201.mp3" {
		t.Errorf("url = %q", u)
	}
	got, err := os.ReadFile(filepath.Join(dir, "lesson 1.mp3"))
	if err != nil || string(got) != "audio" {
		t.Errorf("copied file = %q, %v", got, err)
	}

	u, err = Local{Dir: dir}.Upload(context.Background(), src, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(u, "file://") {
		t.Errorf("url = %q, want file://", u)
	}
}

func TestLocalUpload_MissingSource(t *testing.T) {
	_, err := Local{Dir: t.TempDir()}.Upload(context.Background(), "/does/not/exist.mp3", "")
	if err == nil {
		t.Fatal("expected error")
	}
}

type bufWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (w *bufWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func TestGCSUpload(t *testing.T) {
	tests := []struct {
		name    string
		cfg     GCSConfig
		wantKey string
		wantURL string
	}{
		{
			name:    "default public url",
			cfg:     GCSConfig{Bucket: "lessons", Prefix: "audio"},
			wantKey: "audio/l1.mp3",
			wantURL: "https://storage.googleapis.com/lessons/audio/l1.mp3",
		},
		{
			name:    "cdn base",
			cfg:     GCSConfig{Bucket: "lessons", PublicBaseURL: "https://cdn.example.com/"},
			wantKey: "l1.mp3",
			wantURL: "https://cdn.example.com/l1.mp3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := writeTemp(t, "l1.mp3", "mp3 bytes")
			w := &bufWriter{}
			var gotKey, gotType string
			g := &GCS{cfg: tt.cfg, newWriter: func(_ context.Context, key, ct string) io.WriteCloser {
				gotKey, gotType = key, ct
				return w
			}}

			u, err := g.Upload(context.Background(), src, ContentType(src))
			if err != nil {
				t.Fatalf("Upload: %v", err)
			}
			if u != tt.wantURL || gotKey != tt.wantKey {
				t.Errorf("url=%q key=%q", u, gotKey)
			}
			if gotType != "audio/mpeg" || w.String() != "mp3 bytes" || !w.closed {
				t.Errorf("writer: type=%q body=%q closed=%v", gotType, w.String(), w.closed)
			}
		})
	}
}

func TestGCSUpload_FinalizeError(t *testing.T) {
	src := writeTemp(t, "l1.mp3", "x")
	boom := errors.New("precondition failed")
	g := &GCS{cfg: GCSConfig{Bucket: "b"}, newWriter: func(context.Context, string, string) io.WriteCloser {
		return &bufWriter{closeErr: boom}
	}}
	if _, err := g.Upload(context.Background(), src, "audio/mpeg"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}

func TestNewGCS_RequiresBucket(t *testing.T) {
	if _, err := NewGCS(context.Background(), GCSConfig{}); !errors.Is(err, ErrNoBucket) {
		t.Errorf("err = %v", err)
	}
}

func TestContentType(t *testing.T) {
	for in, want := range map[string]string{
		"a.mp3": "audio/mpeg", "b.WAV": "audio/wav", "c.opus": "audio/ogg", "d.bin": "application/octet-stream",
	} {
		if got := ContentType(in); got != want {
			t.Errorf("ContentType(%q) = %q, want %q", in, got, want)
		}
	}
}
