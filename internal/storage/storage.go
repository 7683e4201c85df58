// Package storage publishes finished lesson files and returns their URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Uploader is the object storage sink.
type Uploader interface {
	Upload(ctx context.Context, localPath, contentType string) (string, error)
}

// ErrNoBucket is returned by NewGCS when no bucket is configured.
var ErrNoBucket = errors.New("no bucket configured")

// Local copies files into a directory. URLs are BaseURL/<name>, or file://
// URLs when BaseURL is empty.
type Local struct {
	Dir     string
	BaseURL string
}

func (l Local) Upload(ctx context.Context, localPath, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create storage dir: %w", err)
	}
	name := filepath.Base(localPath)
	dst := filepath.Join(l.Dir, name)

	if err := copyFile(localPath, dst); err != nil {
		return "", err
	}
	if l.BaseURL != "" {
		return strings.TrimRight(l.BaseURL, "/") + "/" + url.PathEscape(name), nil
	}
	abs, err := filepath.Abs(dst)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open upload source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	return out.Close()
}

// GCSConfig selects the bucket and how object URLs are formed.
type GCSConfig struct {
	Bucket          string
	Prefix          string
	PublicBaseURL   string
	CredentialsFile string
}

// GCS uploads to a Cloud Storage bucket.
type GCS struct {
	client *storage.Client
	cfg    GCSConfig
	// newWriter is replaced in tests.
	newWriter func(ctx context.Context, key, contentType string) io.WriteCloser
}

// NewGCS creates a client with application default credentials, or the
// configured credentials file.
func NewGCS(ctx context.Context, cfg GCSConfig) (*GCS, error) {
	if cfg.Bucket == "" {
		return nil, ErrNoBucket
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	g := &GCS{client: client, cfg: cfg}
	g.newWriter = func(ctx context.Context, key, contentType string) io.WriteCloser {
		w := client.Bucket(cfg.Bucket).Object(key).NewWriter(ctx)
		w.ContentType = contentType
		return w
	}
	return g, nil
}

// Key is the object name used for localPath.
func (g *GCS) Key(localPath string) string {
	return path.Join(g.cfg.Prefix, filepath.Base(localPath))
}

// URL is the public URL of an object.
func (g *GCS) URL(key string) string {
	base := g.cfg.PublicBaseURL
	if base == "" {
		base = "https://storage.googleapis.com/" + g.cfg.Bucket
	}
	return strings.TrimRight(base, "/") + "/" + key
}

func (g *GCS) Upload(ctx context.Context, localPath, contentType string) (string, error) {
	in, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open upload source: %w", err)
	}
	defer in.Close()

	key := g.Key(localPath)
	w := g.newWriter(ctx, key, contentType)
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload gs://%s/%s: %w", g.cfg.Bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize gs://%s/%s: %w", g.cfg.Bucket, key, err)
	}
	return g.URL(key), nil
}

func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

// ContentType maps an output extension to its MIME type.
func ContentType(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	case ".ogg", ".opus":
		return "audio/ogg"
	case ".m4a", ".aac":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}
