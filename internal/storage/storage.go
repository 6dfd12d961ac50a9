// Package storage puts uploaded images (task evidence, chest artwork) in an
// S3-compatible bucket and returns their public URLs.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/dukerupert/chorequest/internal/config"
)

// MaxUploadBytes caps a single image.
const MaxUploadBytes = 8 << 20

var (
	ErrTooLarge    = errors.New("file exceeds upload limit")
	ErrUnsupported = errors.New("only JPEG, PNG, GIF and WebP images are accepted")
)

var extensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// s3Client is the subset of *s3.Client used here.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Object is a stored upload.
type Object struct {
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

type Bucket struct {
	client  s3Client
	bucket  string
	baseURL string
	logger  *slog.Logger
}

// New returns a Bucket for cfg. Callers check cfg.Enabled first.
func New(cfg config.S3Config, logger *slog.Logger) *Bucket {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return newBucket(s3.New(opts), cfg, logger)
}

func newBucket(client s3Client, cfg config.S3Config, logger *slog.Logger) *Bucket {
	base := cfg.PublicBaseURL
	if base == "" {
		endpoint := strings.TrimRight(cfg.Endpoint, "/")
		if endpoint == "" {
			endpoint = fmt.Sprintf("https://s3.%s.amazonaws.com", cfg.Region)
		}
		base = endpoint + "/" + cfg.Bucket
	}
	return &Bucket{
		client:  client,
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(base, "/"),
		logger:  logger.With("component", "storage"),
	}
}

// Upload stores an image under prefix/familyID/ with a random name. The
// content type is sniffed from the bytes, not trusted from the client.
func (b *Bucket) Upload(ctx context.Context, prefix string, familyID int64, r io.Reader) (*Object, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > MaxUploadBytes {
		return nil, ErrTooLarge
	}

	contentType := http.DetectContentType(data)
	ext, ok := extensions[contentType]
	if !ok {
		return nil, ErrUnsupported
	}

	key := fmt.Sprintf("%s/%d/%s%s", prefix, familyID, uuid.NewString(), ext)
	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return nil, fmt.Errorf("upload to s3: %w", err)
	}

	b.logger.Info("object stored", "key", key, "size", len(data))
	return &Object{
		Key:         key,
		URL:         b.baseURL + "/" + key,
		ContentType: contentType,
		Size:        int64(len(data)),
	}, nil
}

func (b *Bucket) Delete(ctx context.Context, key string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete from s3: %w", err)
	}
	return nil
}
