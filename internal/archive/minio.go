// Package archive ships pruned activity entries to S3-compatible object
// storage so the bounded journal does not mean losing the audit trail.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"inkwell/api/internal/activity"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioArchiver implements activity.Archiver against MinIO or any
// S3-compatible backend.
type MinioArchiver struct {
	client *minio.Client
	bucket string
}

// NewMinioArchiver validates connectivity and ensures the bucket exists.
func NewMinioArchiver(cfg Config) (*MinioArchiver, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("archive endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("archive credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create archive client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check archive bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create archive bucket: %w", err)
		}
	}

	return &MinioArchiver{client: client, bucket: cfg.Bucket}, nil
}

// Archive writes one batch of pruned entries as a JSON object named by
// document and upload instant, so successive prunes never overwrite.
func (a *MinioArchiver) Archive(ctx context.Context, documentID string, entries []activity.Entry) error {
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal archive batch: %w", err)
	}

	objectName := fmt.Sprintf("activity/%s/%s.json", documentID, time.Now().UTC().Format("20060102T150405.000000000"))
	_, err = a.client.PutObject(ctx, a.bucket, objectName, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put archive object %s: %w", objectName, err)
	}
	return nil
}
