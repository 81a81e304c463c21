// Package proofs issues presigned S3 URLs for delivery proof uploads. The
// storage key returned with an upload URL is what representatives pass as
// delivery_proof.
package proofs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}
)

var ErrInvalidKey = errors.New("proofs: invalid storage key")

const keyPrefix = "deliveries/"

type Config struct {
	Region    string
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	Expiry    time.Duration
}

// Enabled reports whether enough is configured to presign.
func (c Config) Enabled() bool {
	return c.Bucket != "" && c.Region != ""
}

// Upload is a presigned PUT target.
type Upload struct {
	Key       string    `json:"key"`
	URL       string    `json:"url"`
	Method    string    `json:"method"`
	ExpiresAt time.Time `json:"expires_at"`
}

type Service struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) *Service {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 15 * time.Minute
	}
	return &Service{cfg: cfg, now: time.Now}
}

// StorageKey places a proof under its donation with a random suffix.
func StorageKey(donationID string, at time.Time) string {
	return fmt.Sprintf("%s%s/%d/%02d/%02d/%s", keyPrefix, donationID, at.Year(), at.Month(), at.Day(), uuid.NewString())
}

func (s *Service) presignClient(ctx context.Context) (*s3.PresignClient, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(s.cfg.Region)}
	if s.cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.cfg.AccessKey,
			s.cfg.SecretKey,
			"",
		)))
	}
	cfg, err := loadDefaultAWSConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3PresignClient(client), nil
}

// UploadURL presigns a PUT for a new proof of the given donation.
func (s *Service) UploadURL(ctx context.Context, donationID string) (Upload, error) {
	donationID = strings.TrimSpace(donationID)
	if donationID == "" || strings.Contains(donationID, "/") {
		return Upload{}, fmt.Errorf("%w: donation id %q", ErrInvalidKey, donationID)
	}
	pc, err := s.presignClient(ctx)
	if err != nil {
		return Upload{}, err
	}

	now := s.now().UTC()
	bucket := s.cfg.Bucket
	key := StorageKey(donationID, now)
	req, err := presignPutObject(pc, ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.cfg.Expiry))
	if err != nil {
		return Upload{}, err
	}
	return Upload{Key: key, URL: req.URL, Method: req.Method, ExpiresAt: now.Add(s.cfg.Expiry)}, nil
}

// DownloadURL presigns a GET for a stored proof.
func (s *Service) DownloadURL(ctx context.Context, key string) (string, error) {
	if !strings.HasPrefix(key, keyPrefix) || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	pc, err := s.presignClient(ctx)
	if err != nil {
		return "", err
	}

	bucket := s.cfg.Bucket
	req, err := presignGetObject(pc, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.cfg.Expiry))
	if err != nil {
		return "", err
	}
	return req.URL, nil
}
