package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aivisio/platform/pkg/common/config"
	"github.com/aivisio/platform/pkg/common/logger"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrObjectNotFound means the requested key does not exist in the bucket.
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore wraps the S3-compatible client used for staged training
// archives and generated images.
type ObjectStore struct {
	client *minio.Client
}

func NewObjectStore(cfg *config.Config) (*ObjectStore, error) {
	client, err := minio.New(cfg.StorageEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		Secure: cfg.StorageUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object storage client: %w", err)
	}

	logger.Log.WithField("endpoint", cfg.StorageEndpoint).Info("Object storage client initialized")
	return &ObjectStore{client: client}, nil
}

// EnsureBucket creates a bucket if it doesn't exist.
func (s *ObjectStore) EnsureBucket(ctx context.Context, bucket string) error {
	exists, err := s.client.BucketExists(ctx, bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
		}
		logger.Log.WithField("bucket", bucket).Info("Bucket created")
	}
	return nil
}

// SignedDownloadURL issues a time-bounded GET URL for an existing
// object. A missing object surfaces as ErrObjectNotFound rather than a
// presign error, since presigning does not touch the backend.
func (s *ObjectStore) SignedDownloadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	if _, err := s.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{}); err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NoSuchBucket" {
			return "", ErrObjectNotFound
		}
		return "", fmt.Errorf("failed to stat object %s/%s: %w", bucket, key, err)
	}

	signed, err := s.client.PresignedGetObject(ctx, bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign object %s/%s: %w", bucket, key, err)
	}
	return signed.String(), nil
}

// SignedUploadURL issues a time-bounded PUT URL used by clients to
// stage training archives directly.
func (s *ObjectStore) SignedUploadURL(ctx context.Context, bucket, key string, ttl time.Duration) (string, error) {
	signed, err := s.client.PresignedPutObject(ctx, bucket, key, ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload %s/%s: %w", bucket, key, err)
	}
	return signed.String(), nil
}

// Put uploads an object.
func (s *ObjectStore) Put(ctx context.Context, bucket, key string, reader io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s/%s: %w", bucket, key, err)
	}
	return nil
}

// Remove deletes an object. Removal of an already-absent key is not an
// error; cleanup paths call this unconditionally.
func (s *ObjectStore) Remove(ctx context.Context, bucket, key string) error {
	if err := s.client.RemoveObject(ctx, bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", bucket, key, err)
	}
	logger.Log.WithFields(map[string]interface{}{
		"bucket": bucket,
		"key":    key,
	}).Info("Object deleted")
	return nil
}

// UserKey scopes a storage key under the owning user's prefix, unless
// it is already prefixed.
func UserKey(userID, key string) string {
	if strings.HasPrefix(key, userID+"/") {
		return key
	}
	return userID + "/" + key
}
