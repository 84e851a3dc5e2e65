// Package reliability carries the operational durability concerns that sit
// beside the decision pipeline: off-box archival of the audit trail and
// health log so a lost or corrupted data directory does not also lose the
// record of what the system decided and why.
package reliability

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// S3ArchiveConfig controls the optional off-box mirror of audit and health
// logs. Archival is disabled whenever Bucket is empty.
type S3ArchiveConfig struct {
	Bucket          string
	Region          string
	Endpoint        string // non-empty for R2/MinIO-style S3-compatible endpoints
	AccessKeyID     string
	SecretAccessKey string
}

// Enabled reports whether a bucket was configured.
func (c S3ArchiveConfig) Enabled() bool { return c.Bucket != "" }

// ArchiveUploader mirrors append-only run artifacts (health log lines,
// closed-trade snapshots) to S3-compatible object storage. It never blocks a
// run: callers treat upload failures as warnings, not run failures.
type ArchiveUploader struct {
	uploader *manager.Uploader
	bucket   string
	log      zerolog.Logger
}

// NewArchiveUploader builds an ArchiveUploader from the given config, or
// returns (nil, nil) when archival is disabled, so callers can treat a nil
// uploader as a no-op rather than branching on a config flag everywhere.
func NewArchiveUploader(ctx context.Context, cfg S3ArchiveConfig, log zerolog.Logger) (*ArchiveUploader, error) {
	if !cfg.Enabled() {
		return nil, nil
	}

	optFns := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &ArchiveUploader{
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		log:      log.With().Str("component", "s3_archive").Logger(),
	}, nil
}

// UploadRunArtifact uploads a single run's audit or health log file under a
// date-prefixed key, best-effort: it logs and returns an error but never
// panics, so the orchestrator can fire this off without gating the run on it.
func (u *ArchiveUploader) UploadRunArtifact(ctx context.Context, kind, runID string, content []byte) error {
	if u == nil {
		return nil
	}
	key := fmt.Sprintf("%s/%s/%s.json", kind, time.Now().UTC().Format("2006-01-02"), runID)

	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		u.log.Warn().Err(err).Str("key", key).Msg("run artifact archive upload failed")
		return fmt.Errorf("upload %s to s3: %w", key, err)
	}
	u.log.Debug().Str("key", key).Int("bytes", len(content)).Msg("run artifact archived")
	return nil
}
