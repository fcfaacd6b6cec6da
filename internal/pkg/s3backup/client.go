package s3backup

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gofiber/fiber/v2/log"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
)

// bucketAPI is the part of *s3.Client the archive needs.
type bucketAPI interface {
	HeadBucket(ctx context.Context, in *s3.HeadBucketInput, opts ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, in *s3.CreateBucketInput, opts ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Client stores rendered invoices in an S3-compatible bucket (AWS or
// Supabase Storage).
type Client struct {
	api    bucketAPI
	config *Config
}

// NewClient connects to the bucket and makes sure it exists.
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("invoice archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	api := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// Supabase and most S3-compatible stores need path-style URLs
			o.UsePathStyle = true
		}
	})

	c := newClient(api, cfg)
	if err := c.ensureBucket(ctx); err != nil {
		return nil, err
	}
	log.Infof("[S3Archive] Archiving invoices to bucket %s", cfg.Bucket())
	return c, nil
}

func newClient(api bucketAPI, cfg *Config) *Client {
	return &Client{api: api, config: cfg}
}

// NewClientFromEnv returns nil without error when archiving is disabled.
func NewClientFromEnv(ctx context.Context) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	if !cfg.IsEnabled() {
		return nil, nil
	}
	return NewClient(ctx, cfg)
}

func (c *Client) Config() *Config {
	return c.config
}

// ensureBucket creates a missing bucket in development. Elsewhere a missing
// bucket is a configuration error.
func (c *Client) ensureBucket(ctx context.Context) error {
	bucket := c.config.Bucket()
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		return nil
	}
	if !env.IsDev() {
		return fmt.Errorf("bucket %s not accessible: %w", bucket, err)
	}

	log.Warnf("[S3Archive] Bucket %s not found, creating it", bucket)
	in := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// AWS regions other than us-east-1 need a location constraint, S3-compatible stores don't
	if c.config.EndpointURL == "" && c.config.Region != "us-east-1" {
		in.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(c.config.Region),
		}
	}
	if _, err := c.api.CreateBucket(ctx, in); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	return nil
}

// Put uploads body under key.
func (c *Client) Put(ctx context.Context, key, contentType string, body []byte) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.config.Bucket()),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
		CacheControl:  aws.String("private, no-store"),
		Metadata:      map[string]string{"source": "comptalyze-invoices"},
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	log.Debugf("[S3Archive] Stored %s (%d bytes)", key, len(body))
	return nil
}

// Get downloads an archived object.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.config.Bucket()),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
