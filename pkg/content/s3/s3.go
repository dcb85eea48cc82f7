// Package s3 implements a content resolver serving objects from an S3 (or
// S3-compatible) bucket. Request URIs map to object keys under an optional
// key prefix; bodies are streamed straight from GetObject so large objects
// never sit in memory.
package s3

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/dhttpd/internal/logger"
	"github.com/marmos91/dhttpd/pkg/content"
)

// Resolver serves bucket objects as response bodies.
type Resolver struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	index     string
}

// Config holds S3 resolver settings.
type Config struct {
	// Region is the AWS region. Required.
	Region string `mapstructure:"region"`

	// Bucket is the bucket name. Required; must already exist.
	Bucket string `mapstructure:"bucket"`

	// KeyPrefix is prepended to every object key.
	// Example: "site/" turns URI "/a.html" into key "site/a.html".
	KeyPrefix string `mapstructure:"key_prefix"`

	// Index is the object name substituted for a trailing "/".
	// Defaults to "index.html".
	Index string `mapstructure:"index"`

	// Endpoint overrides the S3 endpoint, for MinIO or Localstack.
	Endpoint string `mapstructure:"endpoint"`

	// AccessKeyID and SecretAccessKey configure static credentials.
	// When empty the default AWS credential chain is used.
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
}

// New builds the S3 client and verifies bucket access. The bucket must
// already exist.
func New(ctx context.Context, cfg Config) (*Resolver, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 resolver: bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 resolver: region is required")
	}

	var options []func(*awsConfig.LoadOptions) error
	options = append(options, awsConfig.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		options = append(options, awsConfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Path-style addressing is required for MinIO and Localstack
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	index := cfg.Index
	if index == "" {
		index = "index.html"
	}

	logger.Debug("S3 resolver serving bucket %s (prefix %q)", cfg.Bucket, cfg.KeyPrefix)

	return &Resolver{
		client:    client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		index:     index,
	}, nil
}

// Data implements content.Resolver. Objects are streamed, never buffered.
func (r *Resolver) Data(context.Context, string) ([]byte, bool) {
	return nil, false
}

// Size implements content.Resolver via HeadObject. A missing object (or
// any lookup failure) reports 0, which takes the 404 path.
func (r *Resolver) Size(ctx context.Context, uri string) int64 {
	if ctx.Err() != nil {
		return 0
	}

	head, err := r.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.objectKey(uri)),
	})
	if err != nil {
		return 0
	}
	return aws.ToInt64(head.ContentLength)
}

// Open implements content.Resolver via GetObject. The returned body is the
// SDK's streaming reader; closing it releases the HTTP response.
func (r *Resolver) Open(ctx context.Context, uri string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	key := r.objectKey(uri)
	result, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("object %s: %w", key, content.ErrNotFound)
	}

	return result.Body, aws.ToInt64(result.ContentLength), nil
}

// objectKey maps a request URI to a bucket key: query stripped, leading
// "/" removed, trailing "/" replaced by the index object, prefix applied.
func (r *Resolver) objectKey(uri string) string {
	if i := strings.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}
	if uri == "" || strings.HasSuffix(uri, "/") {
		uri += r.index
	}
	return r.keyPrefix + strings.TrimPrefix(uri, "/")
}
