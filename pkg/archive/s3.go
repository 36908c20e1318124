package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clubdues/clubdues/pkg/observability"
)

const (
	keyPrefix      = "sepa"
	xmlContentType = "application/xml"
)

// Config holds the object storage settings of the export archive
type Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// ObjectPutter is the subset of *s3.Client the archive needs
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archive stores exported SEPA files in a bucket under sepa/<organizationId>/<fileName>
type S3Archive struct {
	client  ObjectPutter
	bucket  string
	metrics *observability.Metrics
}

// NewS3Archive builds an S3 client from cfg. Static credentials are used when both keys
// are set, otherwise the default AWS credential chain.
func NewS3Archive(ctx context.Context, cfg Config, metrics *observability.Metrics) (*S3Archive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewWithClient(client, cfg.Bucket, metrics), nil
}

// NewWithClient creates an archive over an existing client
func NewWithClient(client ObjectPutter, bucket string, metrics *observability.Metrics) *S3Archive {
	return &S3Archive{client: client, bucket: bucket, metrics: metrics}
}

// Key returns the object key of an export
func Key(orgID uuid.UUID, fileName string) string {
	return path.Join(keyPrefix, orgID.String(), path.Base(fileName))
}

// Put uploads one export. Re-exporting a batch overwrites the previous object.
func (a *S3Archive) Put(ctx context.Context, orgID uuid.UUID, fileName string, body []byte) (err error) {
	key := Key(orgID, fileName)
	ctx, span := observability.StartSpan(ctx, "archive.Put",
		attribute.String("s3.bucket", a.bucket),
		attribute.String("s3.key", key),
		attribute.Int("content.size", len(body)),
	)
	defer func() {
		a.metrics.RecordArchiveUpload(err)
		observability.EndSpan(span, err)
	}()

	hash := sha256.Sum256(body)

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(xmlContentType),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
			"organization-id": orgID.String(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload to s3: %w", err)
	}
	return nil
}
