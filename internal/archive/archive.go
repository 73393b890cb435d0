// Package archive mirrors run digests into an S3-compatible bucket
// (CloudFlare R2). It is optional: without credentials configured the
// pipeline runs with archiving disabled, and an upload failure only logs.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/regionbrief/regionbrief/internal/config"
	"github.com/regionbrief/regionbrief/internal/storage"
)

type Uploader struct {
	client *s3.Client
	bucket string
}

// New builds an uploader from the R2 configuration block. It returns
// (nil, nil) when no endpoint or credentials are configured.
func New(ctx context.Context, cfg *config.Config) (*Uploader, error) {
	if cfg.R2Endpoint == "" || cfg.R2AccessKey == "" || cfg.R2SecretKey == "" {
		return nil, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.R2AccessKey, cfg.R2SecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load R2 credentials: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.R2Endpoint)
		o.UsePathStyle = true
	})

	return &Uploader{client: client, bucket: cfg.R2Bucket}, nil
}

// UploadDigest stores one digest as digests/<region>/<id>.json.
func (u *Uploader) UploadDigest(ctx context.Context, digest *storage.Digest) error {
	data, err := json.Marshal(digest)
	if err != nil {
		return fmt.Errorf("failed to marshal digest %s: %w", digest.ID, err)
	}

	key := fmt.Sprintf("digests/%s/%s.json", digest.Region, digest.ID)
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload digest %s: %w", digest.ID, err)
	}
	return nil
}
