package minio

import (
	"context"
	"fmt"
	"io"

	"github.com/ishaamahadeva-India/pompomm/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client", fx.Provide(registerClient, NewStore))

func registerClient(c *config.Config) (*minio.Client, error) {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}
	zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint))
	return client, nil
}

// Store writes objects into the configured bucket.
type Store struct {
	client *minio.Client
	bucket string
}

// NewStore makes sure the bucket exists when the app starts.
func NewStore(lc fx.Lifecycle, client *minio.Client, c *config.Config) *Store {
	s := &Store{client: client, bucket: c.Minio.BucketName}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return s.ensureBucket(ctx)
		},
	})
	return s
}

func (s *Store) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	zap.L().Info("MinIO bucket created", zap.String("bucket", s.bucket))
	return nil
}

// Put uploads body under key and returns the object location.
func (s *Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	info, err := s.client.PutObject(ctx, s.bucket, key, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	zap.L().Info("object uploaded",
		zap.String("bucket", info.Bucket),
		zap.String("key", info.Key),
		zap.Int64("size", info.Size),
	)
	return info.Bucket + "/" + info.Key, nil
}
