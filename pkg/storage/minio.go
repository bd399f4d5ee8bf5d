package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/example/eshop/pkg/config"
)

type MinioStore struct {
	client *minio.Client
	config *config.MinioConfig
	now    func() time.Time
}

func NewMinioStore(ctx context.Context, cfg *config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return &MinioStore{client: client, config: cfg, now: time.Now}, nil
}

func (s *MinioStore) Put(ctx context.Context, u Upload) (string, error) {
	name, err := ObjectName(u.Filename, u.ContentType, s.now())
	if err != nil {
		return "", err
	}

	objectName := "products/" + name
	_, err = s.client.PutObject(ctx, s.config.Bucket, objectName, u.Body, u.Size,
		minio.PutObjectOptions{ContentType: u.ContentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", objectName, err)
	}

	return s.client.EndpointURL().JoinPath(s.config.Bucket, objectName).String(), nil
}
