package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Sermonario/app/models"
	"github.com/ManuelReschke/Sermonario/internal/pkg/env"
)

// ObjectAPI is the subset of the S3 client used by the archive.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
}

// Client stores finalized webhook events as JSON documents in a bucket.
type Client struct {
	api    ObjectAPI
	config *Config
}

// Document is the archived form of a webhook event. Payload is kept verbatim.
type Document struct {
	ID          uint       `json:"id"`
	DeliveryID  string     `json:"delivery_id"`
	Source      string     `json:"source"`
	EventType   string     `json:"event_type"`
	Processed   bool       `json:"processed"`
	Error       *string    `json:"error"`
	Attempts    int        `json:"attempts"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	Payload     string     `json:"payload"`
}

// NewClient creates a new S3 archive client
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if !cfg.IsEnabled() {
		return nil, fmt.Errorf("S3 archive is disabled")
	}

	awsConfig, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// S3-compatible services (MinIO, Backblaze B2) need path-style URLs
			o.UsePathStyle = true
		}
	})

	client := NewClientWithAPI(s3Client, cfg)
	if err := client.testConnection(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to S3: %w", err)
	}

	log.Infof("[Archive] Successfully initialized S3 client for bucket: %s", cfg.BucketName)
	return client, nil
}

// NewClientWithAPI wraps an existing S3 API implementation.
func NewClientWithAPI(api ObjectAPI, cfg *Config) *Client {
	return &Client{api: api, config: cfg}
}

// testConnection checks that the bucket exists, creating it outside prod.
func (c *Client) testConnection(ctx context.Context) error {
	bucketName := c.config.BucketName
	_, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(bucketName),
	})
	if err == nil {
		return nil
	}
	if env.GetEnv("APP_ENV", "dev") == "prod" {
		return fmt.Errorf("bucket %s not accessible: %w", bucketName, err)
	}

	log.Warnf("[Archive] Bucket %s not found, attempting to create it", bucketName)
	if _, err := c.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(bucketName)}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}
	return nil
}

// Archive uploads event and returns the object key it was stored under.
func (c *Client) Archive(ctx context.Context, event *models.WebhookEvent) (string, error) {
	doc := Document{
		ID:          event.ID,
		DeliveryID:  event.DeliveryID,
		Source:      event.Source,
		EventType:   event.EventType,
		Processed:   event.Processed,
		Error:       event.Error,
		Attempts:    event.Attempts,
		CreatedAt:   event.CreatedAt,
		ProcessedAt: event.ProcessedAt,
		Payload:     event.Payload,
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode event %d: %w", event.ID, err)
	}

	key := c.config.ObjectKey(event.DeliveryID, event.CreatedAt)
	_, err = c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.config.BucketName),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata: map[string]string{
			"delivery-id":   event.DeliveryID,
			"source":        event.Source,
			"upload-source": "sermonario-archive",
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	log.Infof("[Archive] Archived event %d: s3://%s/%s", event.ID, c.config.BucketName, key)
	return key, nil
}
