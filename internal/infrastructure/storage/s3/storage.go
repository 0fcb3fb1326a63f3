package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
	"github.com/kirillkom/knowledge-ingest/internal/infrastructure/storage/localfs"
)

type Config struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	// Endpoint points at an S3-compatible service such as MinIO.
	Endpoint      string
	UploadTimeout time.Duration
}

type uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type Storage struct {
	uploader uploader
	bucket   string
	region   string
	timeout  time.Duration
}

func New(ctx context.Context, cfg Config) (*Storage, error) {
	if cfg.Region == "" {
		return nil, errors.New("s3 region not set")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket not set")
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newWithUploader(manager.NewUploader(client), cfg), nil
}

func newWithUploader(up uploader, cfg Config) *Storage {
	timeout := cfg.UploadTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Storage{
		uploader: up,
		bucket:   cfg.Bucket,
		region:   cfg.Region,
		timeout:  timeout,
	}
}

func (s *Storage) Upload(ctx context.Context, data []byte, filename, contentType, collectionID string) (domain.BlobLocation, error) {
	key := localfs.ObjectKey(collectionID, filename)
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	out, err := s.uploader.Upload(uploadCtx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return domain.BlobLocation{}, domain.WrapError(domain.ErrTemporary, "s3 upload", err)
	}

	location := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	if out != nil && out.Location != "" {
		location = out.Location
	}
	return domain.BlobLocation{
		StoragePath: key,
		Bucket:      s.bucket,
		FilePath:    location,
	}, nil
}
