package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of *s3.Client used by S3Backend.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Backend stores each key as one JSON object in an S3 bucket.
type S3Backend struct {
	client S3API
	bucket string
	prefix string
	closed atomic.Bool
}

// S3Option configures S3Backend behavior.
type S3Option func(*S3Backend)

// WithS3Prefix sets the object key prefix.
// Default: "homepage/kv/".
func WithS3Prefix(prefix string) S3Option {
	return func(b *S3Backend) {
		b.prefix = prefix
	}
}

// NewS3Backend creates an S3-backed Backend for bucket.
func NewS3Backend(client S3API, bucket string, opts ...S3Option) *S3Backend {
	b := &S3Backend{
		client: client,
		bucket: bucket,
		prefix: "homepage/kv/",
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *S3Backend) objectKey(key string) string {
	return b.prefix + key + ".json"
}

// Save uploads data as the object for key.
func (b *S3Backend) Save(ctx context.Context, key string, data []byte) error {
	if b.closed.Load() {
		return ErrClosed
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(b.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("kv: s3 put %q: %w", key, err)
	}
	return nil
}

// Load downloads the object for key.
func (b *S3Backend) Load(ctx context.Context, key string) ([]byte, error) {
	if b.closed.Load() {
		return nil, ErrClosed
	}

	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, nil
		}
		return nil, fmt.Errorf("kv: s3 get %q: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("kv: s3 read %q: %w", key, err)
	}
	return data, nil
}

// Delete removes the object for key.
func (b *S3Backend) Delete(ctx context.Context, key string) error {
	if b.closed.Load() {
		return ErrClosed
	}

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("kv: s3 delete %q: %w", key, err)
	}
	return nil
}

// Close marks the backend closed. The S3 client is left untouched.
func (b *S3Backend) Close() error {
	b.closed.Store(true)
	return nil
}
