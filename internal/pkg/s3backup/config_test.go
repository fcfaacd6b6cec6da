package s3backup

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvoiceObjectKey(t *testing.T) {
	issued := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)

	c := &Config{Prefix: "invoices"}
	assert.Equal(t, "invoices/user-1/2025/F2025-0001.html", c.InvoiceObjectKey("user-1", "F2025-0001", issued))

	c.Prefix = ""
	assert.Equal(t, "a_b/2025/F_1.html", c.InvoiceObjectKey("a/b", "F/1", issued))
}

func TestLoadConfigValidatesWhenEnabled(t *testing.T) {
	t.Setenv("S3_ARCHIVE_ENABLED", "true")
	t.Setenv("S3_ACCESS_KEY_ID", "key")
	t.Setenv("S3_SECRET_ACCESS_KEY", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("S3_SECRET_ACCESS_KEY", "secret")
	t.Setenv("S3_BUCKET_NAME", "archive")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "invoices", cfg.Prefix)
}

func TestLoadConfigDisabled(t *testing.T) {
	t.Setenv("S3_ARCHIVE_ENABLED", "false")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.False(t, cfg.IsEnabled())
}

func TestValidateNamesEveryMissingSetting(t *testing.T) {
	err := (&Config{Enabled: true, AccessKeyID: "key"}).Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_SECRET_ACCESS_KEY")
	assert.Contains(t, err.Error(), "S3_BUCKET_NAME")
	assert.NotContains(t, err.Error(), "S3_ACCESS_KEY_ID")
}
