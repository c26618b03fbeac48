// Package minio implements the artifact blob store on any S3-compatible
// object store. Artifacts are served exclusively through presigned URLs;
// bytes never transit the API surface.
package minio

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/craftlab/cardsmith/internal/domain"
)

// Store implements domain.BlobStore on a MinIO client.
type Store struct {
	client *minio.Client
	bucket string
}

// Config carries the connection settings for the object store.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New connects to the object store and ensures the artifact bucket exists.
func New(ctx domain.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("op=blob.connect: %w", err)
	}
	s := &Store{client: client, bucket: cfg.Bucket}
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureBucket(ctx domain.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("op=blob.bucket_exists: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("op=blob.make_bucket: %w", err)
	}
	return nil
}

// Put stores an artifact under the given key. An empty content type is
// sniffed from the payload.
func (s *Store) Put(ctx domain.Context, key string, data []byte, contentType string) error {
	if contentType == "" {
		contentType = mimetype.Detect(data).String()
	}
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("op=blob.put key=%s: %w", key, err)
	}
	return nil
}

// Get reads an artifact back in full. Used by readiness probes and tests, not
// by the serving path.
func (s *Store) Get(ctx domain.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("op=blob.get key=%s: %w", key, err)
	}
	defer func() { _ = obj.Close() }()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("op=blob.get read key=%s: %w", key, err)
	}
	return data, nil
}

// PresignGet returns a time-limited GET URL for an artifact.
func (s *Store) PresignGet(ctx domain.Context, key string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("op=blob.presign key=%s: %w", key, err)
	}
	return u.String(), nil
}

// Ping verifies the bucket is reachable for readiness checks.
func (s *Store) Ping(ctx domain.Context) error {
	if _, err := s.client.BucketExists(ctx, s.bucket); err != nil {
		return fmt.Errorf("op=blob.ping: %w", err)
	}
	return nil
}
