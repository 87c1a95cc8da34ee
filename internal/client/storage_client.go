package client

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"

	"github.com/medcast/podcast-tracker/internal/config"
)

// StorageClient turns podcast audio object keys into playable URLs. It
// reads from an S3-compatible bucket (Cloudflare R2 by default).
type StorageClient struct {
	presigner  *s3.PresignClient
	bucketName string
	publicURL  string
	ttl        time.Duration
	logger     logrus.FieldLogger
}

// NewStorageClient creates a storage client for the configured bucket
func NewStorageClient(cfg *config.StorageConfig, logger logrus.FieldLogger) (*StorageClient, error) {
	if cfg.AccountID == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" || cfg.BucketName == "" {
		return nil, fmt.Errorf("storage configuration incomplete")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})

	ttl := cfg.SignedURLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &StorageClient{
		presigner:  s3.NewPresignClient(s3Client),
		bucketName: cfg.BucketName,
		publicURL:  strings.TrimRight(cfg.PublicURL, "/"),
		ttl:        ttl,
		logger:     logger.WithField("component", "storage_client"),
	}, nil
}

// ResolveAudioURL presigns a GET for key. When presigning fails and a public
// URL is configured, the public URL is returned instead.
func (c *StorageClient) ResolveAudioURL(ctx context.Context, key string) (string, error) {
	key = strings.TrimLeft(key, "/")
	signed, err := c.GetSignedURL(ctx, key, c.ttl)
	if err == nil {
		return signed, nil
	}
	if c.publicURL == "" {
		return "", err
	}
	c.logger.WithError(err).WithField("key", key).Warn("presign failed, using public url")
	return c.GetPublicURL(key), nil
}

// GetSignedURL generates a presigned URL for temporary access
func (c *StorageClient) GetSignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucketName),
		Key:    aws.String(key),
	}

	presignedReq, err := c.presigner.PresignGetObject(ctx, input, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return presignedReq.URL, nil
}

// GetPublicURL returns the public CDN URL for a key
func (c *StorageClient) GetPublicURL(key string) string {
	if c.publicURL != "" {
		return fmt.Sprintf("%s/%s", c.publicURL, key)
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com/%s", c.bucketName, key)
}
