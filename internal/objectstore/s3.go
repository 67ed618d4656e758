// Package objectstore adapts AWS SDK Go v2 into the narrow PresignedUploader
// contract the estimate worker consumes: resolve a stored photo's file id to
// a time-limited GET URL. It supports AWS S3 and S3-compatible services like
// MinIO via a custom endpoint and path-style addressing.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"caloriebot/internal/config"
)

// ErrNotFound indicates the requested object does not exist in the bucket.
var ErrNotFound = errors.New("objectstore: object not found")

// PresignedUploader is the interface the estimate worker depends on; the
// core treats photo storage as opaque and only ever asks for a GET URL.
type PresignedUploader interface {
	Get(ctx context.Context, fileID string) (string, error)
}

// S3Uploader implements PresignedUploader using AWS SDK Go v2.
type S3Uploader struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	prefix   string
	ttl      time.Duration
}

// New builds an S3Uploader from the resolved environment configuration.
func New(ctx context.Context, cfg config.Config) (*S3Uploader, error) {
	if cfg.BucketName == "" {
		return nil, errors.New("objectstore: BUCKET_NAME is required")
	}

	awsOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.AWSRegion),
	}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		awsOpts = append(awsOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.AWSEndpointURLS3 != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURLS3)
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)
	return &S3Uploader{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.BucketName,
		prefix:  strings.Trim(cfg.BucketPrefix, "/"),
		ttl:     15 * time.Minute,
	}, nil
}

func (u *S3Uploader) fullKey(fileID string) string {
	if u.prefix == "" {
		return fileID
	}
	return u.prefix + "/" + fileID
}

// Get returns a presigned GET URL for fileID, valid for a short TTL. Workers
// call this once per photo right before invoking the estimator.
func (u *S3Uploader) Get(ctx context.Context, fileID string) (string, error) {
	req, err := u.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(u.fullKey(fileID)),
	}, s3.WithPresignExpires(u.ttl))
	if err != nil {
		if isNotFoundError(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("presign get %q: %w", fileID, err)
	}
	return req.URL, nil
}

// Ping verifies connectivity and bucket access at startup.
func (u *S3Uploader) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := u.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(u.bucket)})
	if err != nil {
		return fmt.Errorf("s3 ping: %w", err)
	}
	return nil
}

func isNotFoundError(err error) bool {
	var notFound *s3types.NotFound
	var noSuchKey *s3types.NoSuchKey
	var noSuchBucket *s3types.NoSuchBucket
	return errors.As(err, &notFound) ||
		errors.As(err, &noSuchKey) ||
		errors.As(err, &noSuchBucket) ||
		strings.Contains(err.Error(), "NotFound") ||
		strings.Contains(err.Error(), "NoSuchKey")
}
