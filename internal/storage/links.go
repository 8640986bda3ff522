// Package storage signs download links for delivered reproductions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
	"github.com/socialhistoryservices/delivery/internal/models"
)

// DefaultLinkTTL is how long a presigned download link stays valid.
const DefaultLinkTTL = 7 * 24 * time.Hour

// S3Config describes the bucket holding the finished copies. Objects are
// stored under Prefix + reproduction id + ".zip".
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	LinkTTL         time.Duration
}

// Validate checks if the configuration is valid.
func (c S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("s3: bucket is required")
	}
	if (c.AccessKeyID == "") != (c.SecretAccessKey == "") {
		return errors.New("s3: access key id and secret access key go together")
	}
	return nil
}

// S3Signer presigns GET requests for reproduction downloads. It implements
// delivery.LinkSigner.
type S3Signer struct {
	config  S3Config
	presign *s3.PresignClient
	logger  zerolog.Logger
}

// NewS3Signer creates a signer for cfg. Without static keys the default AWS
// credential chain is used.
func NewS3Signer(ctx context.Context, cfg S3Config, logger zerolog.Logger) (*S3Signer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = DefaultLinkTTL
	}

	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Signer{
		config:  cfg,
		presign: s3.NewPresignClient(s3.NewFromConfig(awsCfg, clientOpts...)),
		logger:  logger.With().Str("component", "s3_links").Logger(),
	}, nil
}

// ObjectKey returns the key of the archive for r.
func (s *S3Signer) ObjectKey(r *models.Reproduction) string {
	return s.config.Prefix + r.ID.String() + ".zip"
}

// DownloadURL presigns a link to the archive of r.
func (s *S3Signer) DownloadURL(ctx context.Context, r *models.Reproduction) (string, error) {
	key := s.ObjectKey(r)
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket:                     aws.String(s.config.Bucket),
		Key:                        aws.String(key),
		ResponseContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", "reproduction-"+r.ID.String()[:8]+".zip")),
	}, s3.WithPresignExpires(s.config.LinkTTL))
	if err != nil {
		return "", fmt.Errorf("s3: presign %s: %w", key, err)
	}

	s.logger.Debug().
		Str("reproduction_id", r.ID.String()).
		Str("key", key).
		Dur("ttl", s.config.LinkTTL).
		Msg("presigned download link")

	return req.URL, nil
}

// OrderPageSigner links the customer to the public order page when no
// object store is configured.
type OrderPageSigner struct {
	BaseURL string
}

// DownloadURL returns the public order page of r.
func (s OrderPageSigner) DownloadURL(_ context.Context, r *models.Reproduction) (string, error) {
	if r.Token == "" {
		return "", errors.New("reproduction has no public token")
	}
	return s.BaseURL + "/api/v1/public/reproductions/" + r.Token, nil
}
