package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/lemurdu20escalade/LeSite-sub001/internal/config"
)

// ErrTemplateNotFound means the theme bucket has no override for a template.
var ErrTemplateNotFound = errors.New("theme template not found")

const maxTemplateSize = 512 << 10

// ThemeStore reads theme overrides (error pages, login view) from the theme bucket.
type ThemeStore struct {
	client *minio.Client
	cfg    config.StorageConfig
}

func NewThemeStore(cfg config.StorageConfig) (*ThemeStore, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("parse endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init minio: %w", err)
	}

	return &ThemeStore{
		client: client,
		cfg:    cfg,
	}, nil
}

func (s *ThemeStore) EnsureBucket(ctx context.Context) error {
	bucket := s.cfg.BucketTheme
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("bucket exists %s: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", bucket, err)
		}
	}
	return nil
}

// Template returns the raw template stored under templates/<name>.
func (s *ThemeStore) Template(ctx context.Context, name string) (string, error) {
	obj, err := s.client.GetObject(ctx, s.cfg.BucketTheme, "templates/"+name, minio.GetObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("get template %s: %w", name, err)
	}
	defer obj.Close()

	body, err := io.ReadAll(io.LimitReader(obj, maxTemplateSize))
	if err != nil {
		var resp minio.ErrorResponse
		if errors.As(err, &resp) && resp.Code == "NoSuchKey" {
			return "", ErrTemplateNotFound
		}
		return "", fmt.Errorf("read template %s: %w", name, err)
	}
	return string(body), nil
}

// PutTemplate installs or replaces a theme template.
func (s *ThemeStore) PutTemplate(ctx context.Context, name string, body string) error {
	_, err := s.client.PutObject(ctx, s.cfg.BucketTheme, "templates/"+name,
		strings.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{ContentType: "text/html; charset=utf-8"})
	if err != nil {
		return fmt.Errorf("put template %s: %w", name, err)
	}
	return nil
}
