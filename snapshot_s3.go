package homepulse

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3SnapshotConfig configures the S3 snapshot backend.
type S3SnapshotConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // for S3-compatible services (MinIO, etc.)
	// AccessKeyID and SecretAccessKey authenticate explicitly. Prefer IAM
	// roles, instance profiles, or environment variables; never commit
	// credentials to source control.
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	Prefix          string `yaml:"prefix"`         // key prefix for all objects
	UsePathStyle    bool   `yaml:"use_path_style"` // path-style addressing
	MaxRetries      int    `yaml:"max_retries"`    // default: 3
}

// S3SnapshotBackend stores snapshots in S3 or S3-compatible object storage.
type S3SnapshotBackend struct {
	client  *s3.Client
	config  S3SnapshotConfig
	retryer *Retryer
}

// NewS3SnapshotBackend creates an S3-backed snapshot store.
func NewS3SnapshotBackend(cfg S3SnapshotConfig) (*S3SnapshotBackend, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &S3SnapshotBackend{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		config: cfg,
		retryer: NewRetryer(RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			RetryIf:     func(error) bool { return true },
		}),
	}, nil
}

// Read reads a snapshot object.
func (s *S3SnapshotBackend) Read(ctx context.Context, key string) ([]byte, error) {
	fullKey := s.config.Prefix + key

	var data []byte
	err := s.retryer.Do(ctx, func(ctx context.Context) error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(fullKey),
		})
		if err != nil {
			var noKey *s3types.NoSuchKey
			if errors.As(err, &noKey) {
				return ErrSnapshotNotFound
			}
			return fmt.Errorf("S3 get object failed: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("S3 read body failed: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Write stores a snapshot object.
func (s *S3SnapshotBackend) Write(ctx context.Context, key string, data []byte) error {
	fullKey := s.config.Prefix + key

	return s.retryer.Do(ctx, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(fullKey),
			Body:   bytes.NewReader(data),
		})
		if err != nil {
			return fmt.Errorf("S3 put object failed: %w", err)
		}
		return nil
	})
}

// Delete removes a snapshot object.
func (s *S3SnapshotBackend) Delete(ctx context.Context, key string) error {
	fullKey := s.config.Prefix + key

	return s.retryer.Do(ctx, func(ctx context.Context) error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(fullKey),
		})
		if err != nil {
			return fmt.Errorf("S3 delete object failed: %w", err)
		}
		return nil
	})
}

// List returns all snapshot keys matching a prefix, sorted ascending by the
// object store.
func (s *S3SnapshotBackend) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.config.Prefix + prefix

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(fullPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("S3 list objects failed: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			keys = append(keys, strings.TrimPrefix(key, s.config.Prefix))
		}
	}
	return keys, nil
}

// Close is a no-op; the S3 client holds no persistent connections.
func (s *S3SnapshotBackend) Close() error { return nil }
