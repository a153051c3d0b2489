package archive

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/Sermonario/internal/pkg/env"
)

// Config holds S3 archive configuration
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Prefix          string
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "us-east-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Prefix:          strings.Trim(env.GetEnv("S3_ARCHIVE_PREFIX", "webhook-events"), "/"),
		Enabled:         env.GetBool("S3_ARCHIVE_ENABLED", false),
	}

	// Validate required fields if the archive is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 archive is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 archive is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 archive is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if the archive is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// ObjectKey generates the object key for an archived event.
// Format: <prefix>/YYYY/MM/DD/<delivery-id>.json
func (c *Config) ObjectKey(deliveryID string, createdAt time.Time) string {
	t := createdAt.UTC()
	key := fmt.Sprintf("%04d/%02d/%02d/%s.json", t.Year(), int(t.Month()), t.Day(), deliveryID)
	if c.Prefix == "" {
		return key
	}
	return c.Prefix + "/" + key
}
