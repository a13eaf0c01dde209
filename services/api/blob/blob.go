package blob

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ImageStore persists uploaded images and returns their public URI.
type ImageStore interface {
	PutImage(ctx context.Context, deviceID string, data []byte, contentType string) (string, error)
}

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store writes images to a single bucket.
type S3Store struct {
	client objectPutter
	bucket string
	log    *slog.Logger
}

// Options configures NewS3Store. Empty credentials fall back to the default
// AWS credential chain.
type Options struct {
	Bucket    string
	Region    string
	AccessID  string
	AccessKey string
}

func NewS3Store(ctx context.Context, opts Options, log *slog.Logger) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	loaders := []func(*awsconfig.LoadOptions) error{}
	if opts.Region != "" {
		loaders = append(loaders, awsconfig.WithRegion(opts.Region))
	}
	if opts.AccessID != "" && opts.AccessKey != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessID, opts.AccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return newS3Store(s3.NewFromConfig(cfg), opts.Bucket, log), nil
}

func newS3Store(client objectPutter, bucket string, log *slog.Logger) *S3Store {
	return &S3Store{client: client, bucket: bucket, log: log}
}

// PutImage uploads data under a fresh key and returns its https URI.
func (s *S3Store) PutImage(ctx context.Context, deviceID string, data []byte, contentType string) (string, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := objectKey(deviceID, contentType)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}

	uri := fmt.Sprintf("https://%s.s3.amazonaws.com/%s", s.bucket, key)
	if s.log != nil {
		s.log.Info("image stored", "device", deviceID, "uri", uri, "bytes", len(data))
	}
	return uri, nil
}

func objectKey(deviceID, contentType string) string {
	ext := ".jpg"
	switch strings.ToLower(contentType) {
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	}

	dir := strings.Trim(strings.ReplaceAll(deviceID, "/", "_"), ".")
	if dir == "" {
		dir = "unknown"
	}
	return path.Join(dir, uuid.NewString()+ext)
}
