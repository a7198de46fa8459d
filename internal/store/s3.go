package store

import (
	"bytes"
	"context"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bimmerbailey/sift/internal/errors"
)

// S3Config selects an S3-compatible bucket.
type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
}

// S3 writes objects into a bucket, creating the bucket on first use.
type S3 struct {
	client *minio.Client
	bucket string
	region string
	prefix string
	logger *slog.Logger

	initOnce sync.Once
	initErr  error
}

// NewS3 validates cfg and builds the client. No request is made until the
// first Put.
func NewS3(cfg S3Config, logger *slog.Logger) (*S3, error) {
	if logger == nil {
		return nil, errors.New("store: logger is required")
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.WithHint(errors.New("s3 endpoint is required"), "set store.s3.endpoint or SIFT_STORE_S3_ENDPOINT")
	}
	access, secret := strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, errors.WithHint(errors.New("s3 access key and secret key are required"),
			"set SIFT_STORE_S3_ACCESS_KEY and SIFT_STORE_S3_SECRET_KEY, for example in .env")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init s3 client")
	}

	return &S3{
		client: client,
		bucket: bucket,
		region: region,
		prefix: strings.Trim(cfg.Prefix, "/"),
		logger: logger,
	}, nil
}

func (s *S3) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucket)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.logger.Info("creating bucket", "bucket", s.bucket, "region", s.region)
		s.initErr = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

func (s *S3) key(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return path.Join(s.prefix, rel)
}

func (s *S3) Location(rel string) string {
	return "s3://" + s.bucket + "/" + s.key(rel)
}

func (s *S3) Put(ctx context.Context, rel string, data []byte) error {
	cleaned, err := Clean(rel)
	if err != nil {
		return errors.Mark(err, errors.ErrFilesystem)
	}
	if err := s.ensureBucket(ctx); err != nil {
		return errors.Filesystem(err, "ensure bucket %s", s.bucket)
	}
	if data == nil {
		data = []byte{}
	}

	_, err = s.client.PutObject(ctx, s.bucket, s.key(cleaned), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return errors.Filesystem(err, "put %s", s.Location(cleaned))
	}
	return nil
}
