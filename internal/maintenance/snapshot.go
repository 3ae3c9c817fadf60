// Package maintenance implements the background jobs that keep long-running
// serve-mode deployments tidy: chat-history trim and world-state
// off-box snapshotting, both driven by cron expressions rather than by a
// turn (§4.21). Neither job sits on a turn's critical path.
package maintenance

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SnapshotConfig configures the world-state S3 archiver.
type SnapshotConfig struct {
	Bucket          string
	Region          string
	Endpoint        string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// Snapshotter copies a world-state file to S3 under a timestamped key,
// grounded on the teacher's S3-backed artifact store (same config shape,
// same endpoint/path-style override for S3-compatible backends).
type Snapshotter struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewSnapshotter builds an S3 client from cfg.
func NewSnapshotter(ctx context.Context, cfg SnapshotConfig) (*Snapshotter, error) {
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("maintenance: s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	loadOptions := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOptions = append(loadOptions, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOptions...)
	if err != nil {
		return nil, fmt.Errorf("maintenance: load aws config: %w", err)
	}

	endpoint := strings.TrimSpace(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		if cfg.UsePathStyle {
			o.UsePathStyle = true
		}
	})

	return &Snapshotter{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Snapshot uploads the file at worldStatePath under a key timestamped with
// at, returning the s3:// URI of the stored object. A failed upload is
// returned as an error for the caller to log; the scheduler never retries
// within the same cycle (§4.21).
func (s *Snapshotter) Snapshot(ctx context.Context, worldStatePath string, at time.Time) (string, error) {
	data, err := os.ReadFile(worldStatePath)
	if err != nil {
		return "", fmt.Errorf("maintenance: read world state: %w", err)
	}

	key := s.objectKey(at)
	if _, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return "", fmt.Errorf("maintenance: s3 put object: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

func (s *Snapshotter) objectKey(at time.Time) string {
	name := fmt.Sprintf("world-state-%s.json", at.UTC().Format("20060102T150405Z"))
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}
