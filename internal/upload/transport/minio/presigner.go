// Package minio presigns single-use PUT locations on an S3-compatible bucket.
package minio

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/aifuun/yorutsuke-v2-sub006/internal/platform/config"
	"github.com/aifuun/yorutsuke-v2-sub006/internal/upload/transport"
	id "github.com/aifuun/yorutsuke-v2-sub006/pkg/domain"
)

const defaultExpiry = 15 * time.Minute

type Presigner struct {
	client *minio.Client
	bucket string
	expiry time.Duration
	clock  func() time.Time
}

func New(cfg config.MinIO) (*Presigner, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		bucket = "yoru-uploads"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	expiry := cfg.URLExpiry
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	return &Presigner{client: client, bucket: bucket, expiry: expiry, clock: time.Now}, nil
}

// EnsureBucket creates the bucket if it does not exist.
func (p *Presigner) EnsureBucket(ctx context.Context) error {
	exists, err := p.client.BucketExists(ctx, p.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := p.client.MakeBucket(ctx, p.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket: %w", err)
	}
	return nil
}

// RequestLocation presigns a PUT for the object derived from subject and
// intent. The same intent always maps to the same key, so a repeated write
// overwrites rather than duplicates.
func (p *Presigner) RequestLocation(ctx context.Context, subject id.SubjectID, fileName string, intent id.IntentID) (transport.Location, error) {
	key := ObjectKey(subject, fileName, intent)
	u, err := p.client.PresignedPutObject(ctx, p.bucket, key, p.expiry)
	if err != nil {
		return transport.Location{}, fmt.Errorf("presign put: %w", err)
	}
	return transport.Location{
		URL:       u.String(),
		Token:     intent.String(),
		ObjectKey: key,
		ExpiresAt: p.clock().Add(p.expiry),
	}, nil
}

// ObjectKey is uploads/<subject>/<intent>/<file name>.
func ObjectKey(subject id.SubjectID, fileName string, intent id.IntentID) string {
	token := strings.NewReplacer(":", "-", "/", "-").Replace(intent.String())
	return path.Join("uploads", subject.String(), token, path.Base(fileName))
}
