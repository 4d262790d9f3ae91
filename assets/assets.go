// Package assets stores uploaded tenant images such as logos and banners.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/option"
)

const (
	objectPrefix = "banners"

	DefaultSignedURLTTL = 60 * time.Minute
)

// ErrNoBucket is returned when uploads are requested without a bucket.
var ErrNoBucket = errors.New("GCP_STORAGE_BUCKET environment variable not set")

// Uploader persists an uploaded file and returns the URL it is served from.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, filename, contentType string) (string, error)
	SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error)
}

// ObjectName builds a collision free object name for filename.
func ObjectName(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '_'
		case r < 0x20 || r == '/' || r == '?' || r == '#':
			return -1
		}
		return r
	}, base)
	if base == "" || base == "." || base == ".." {
		base = "upload"
	}
	return path.Join(objectPrefix, uuid.NewString()+"-"+base)
}

// ValidObjectName reports whether name could have come from ObjectName.
func ValidObjectName(name string) bool {
	if !strings.HasPrefix(name, objectPrefix+"/") || path.Clean(name) != name {
		return false
	}
	base := strings.TrimPrefix(name, objectPrefix+"/")
	return base != "" && base != ".." && !strings.Contains(base, "/")
}

func signedURLOptions(ttl time.Duration, now time.Time) *storage.SignedURLOptions {
	if ttl <= 0 {
		ttl = DefaultSignedURLTTL
	}
	return &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: now.Add(ttl),
	}
}

// GCS uploads to a Google Cloud Storage bucket.
type GCS struct {
	Client *storage.Client
	Bucket string
	Logger *logrus.Logger
}

// NewGCS creates a storage client. An empty credentialsFile uses the
// ambient application default credentials.
func NewGCS(ctx context.Context, bucket, credentialsFile string, logger *logrus.Logger) (*GCS, error) {
	if bucket == "" {
		return nil, ErrNoBucket
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("storage client: %w", err)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &GCS{Client: client, Bucket: bucket, Logger: logger}, nil
}

func (g *GCS) Upload(ctx context.Context, r io.Reader, filename, contentType string) (string, error) {
	if g == nil || g.Bucket == "" {
		return "", ErrNoBucket
	}
	name := ObjectName(filename)
	obj := g.Client.Bucket(g.Bucket).Object(name)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	// fails on buckets with uniform bucket-level access; those are public as a whole
	if err := obj.ACL().Set(ctx, storage.AllUsers, storage.RoleReader); err != nil {
		g.Logger.WithFields(logrus.Fields{"object": name, "error": err.Error()}).Debug("make public skipped")
	}
	return PublicURL(g.Bucket, name), nil
}

func (g *GCS) SignedURL(_ context.Context, name string, ttl time.Duration) (string, error) {
	if g == nil || g.Bucket == "" {
		return "", ErrNoBucket
	}
	return g.Client.Bucket(g.Bucket).SignedURL(name, signedURLOptions(ttl, time.Now()))
}

func (g *GCS) Close() error {
	return g.Client.Close()
}

// PublicURL is the anonymous URL of a public object.
func PublicURL(bucket, name string) string {
	return "https://storage.googleapis.com/" + bucket + "/" + name
}

// LocalDisk writes uploads below Dir/uploads for development setups.
type LocalDisk struct {
	Dir       string
	URLPrefix string
}

func NewLocalDisk(staticDir string) *LocalDisk {
	return &LocalDisk{Dir: filepath.Join(staticDir, "uploads"), URLPrefix: "/static/uploads"}
}

func (l *LocalDisk) Upload(_ context.Context, r io.Reader, filename, _ string) (string, error) {
	name := ObjectName(filename)
	dst := filepath.Join(l.Dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return l.URLPrefix + "/" + name, nil
}

// SignedURL has nothing to sign on disk and returns the plain URL.
func (l *LocalDisk) SignedURL(_ context.Context, name string, _ time.Duration) (string, error) {
	return l.URLPrefix + "/" + strings.TrimPrefix(name, "/"), nil
}

// Unconfigured rejects every upload with ErrNoBucket.
type Unconfigured struct{}

func (Unconfigured) Upload(context.Context, io.Reader, string, string) (string, error) {
	return "", ErrNoBucket
}

func (Unconfigured) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", ErrNoBucket
}
