package archive

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"CivicIndex/internal/ports"
)

// PutObjectAPI is the slice of the S3 client the archive needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive keeps uploaded source documents in an S3 bucket.
type S3Archive struct {
	client PutObjectAPI
	bucket string
	prefix string
}

var _ ports.DocumentArchive = (*S3Archive)(nil)

// LoadAWSConfig resolves credentials the standard SDK way; region may be
// empty to use the environment's default.
func LoadAWSConfig(ctx context.Context, region string) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return cfg, nil
}

// NewS3Archive builds an archive from an AWS config.
func NewS3Archive(cfg aws.Config, bucket, prefix string) *S3Archive {
	return NewS3ArchiveWithClient(s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), bucket, prefix)
}

// NewS3ArchiveWithClient wires any PutObject implementation.
func NewS3ArchiveWithClient(client PutObjectAPI, bucket, prefix string) *S3Archive {
	return &S3Archive{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Store uploads body under prefix/key and returns its s3:// locator.
func (a *S3Archive) Store(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	if a.bucket == "" {
		return "", fmt.Errorf("s3 archive bucket is not configured")
	}

	fullKey := strings.TrimLeft(key, "/")
	if a.prefix != "" {
		fullKey = a.prefix + "/" + fullKey
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(fullKey),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("put object %s: %w", fullKey, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.bucket, fullKey), nil
}
