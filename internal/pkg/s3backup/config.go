package s3backup

import (
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aarontmr/comptalyze-sub003/internal/pkg/env"
)

// Config locates the bucket that keeps the issued copy of every invoice.
// EndpointURL is set for S3-compatible stores such as Supabase Storage and
// left empty for AWS.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string
	Prefix          string
	Enabled         bool
}

// LoadConfig reads the S3_* variables. Credentials are only checked when
// S3_ARCHIVE_ENABLED is set.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "eu-west-3"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Prefix:          strings.Trim(env.GetEnv("S3_PREFIX", "invoices"), "/"),
		Enabled:         env.GetEnvBool("S3_ARCHIVE_ENABLED", false),
	}
	if !cfg.Enabled {
		return cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every missing setting at once.
func (c *Config) Validate() error {
	var errs []error
	for name, value := range map[string]string{
		"S3_ACCESS_KEY_ID":     c.AccessKeyID,
		"S3_SECRET_ACCESS_KEY": c.SecretAccessKey,
		"S3_BUCKET_NAME":       c.BucketName,
	} {
		if strings.TrimSpace(value) == "" {
			errs = append(errs, fmt.Errorf("%s is required when the invoice archive is enabled", name))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// Bucket returns the configured bucket name unchanged.
func (c *Config) Bucket() string {
	return c.BucketName
}

// InvoiceObjectKey returns <prefix>/<user>/<year>/<number>.html. Path
// separators in user ids or numbers cannot escape the user's folder.
func (c *Config) InvoiceObjectKey(userID, number string, issued time.Time) string {
	name := fmt.Sprintf("%s/%04d/%s.html", safeSegment(userID), issued.Year(), safeSegment(number))
	if c.Prefix == "" {
		return name
	}
	return path.Join(c.Prefix, name)
}

func safeSegment(s string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(strings.TrimSpace(s))
}
