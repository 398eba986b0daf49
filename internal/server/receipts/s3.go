// Package receipts archives raw purchase receipts in S3-compatible storage
// so validations can be audited after the fact.
package receipts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	srvconfig "github.com/dmitrijs2005/wellkeeper/internal/server/config"
)

// Indirections for tests.
var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

var ErrNoBucket = errors.New("receipts: no bucket configured")

type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive writes one object per validated receipt.
type S3Archive struct {
	bucket string
	client objectPutter
	now    func() time.Time
}

// NewS3Archive builds an archive from the server's S3 settings using static
// credentials and an explicit endpoint, which is how MinIO is reached in
// development.
func NewS3Archive(ctx context.Context, cfg *srvconfig.Config) (*S3Archive, error) {
	if cfg.S3Bucket == "" {
		return nil, ErrNoBucket
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(cfg.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.S3RootUser,
			cfg.S3RootPassword,
			"",
		)),
	)
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3BaseEndpoint)
		}
		o.UsePathStyle = true
	})

	return &S3Archive{bucket: cfg.S3Bucket, client: client, now: time.Now}, nil
}

// Key returns the object key for a receipt stored at t.
func Key(accountID, platform string, t time.Time) string {
	return fmt.Sprintf("receipts/%s/%s-%s", accountID, t.UTC().Format("20060102T150405.000Z"), platform)
}

// Store uploads receipt and returns the key it was written under.
func (a *S3Archive) Store(ctx context.Context, accountID, platform string, receipt []byte) (string, error) {
	key := Key(accountID, platform, a.now())

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(receipt),
		ContentType: aws.String("application/octet-stream"),
	})
	if err != nil {
		return "", fmt.Errorf("put receipt %s: %w", key, err)
	}
	return key, nil
}
