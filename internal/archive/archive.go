package archive

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Archiver stores raw webhook payloads for audit and replay. Archiving is
// best-effort: a storage failure must never fail the webhook response, or the
// provider would redeliver a payment that was already applied.
type Archiver interface {
	ArchivePayload(ctx context.Context, eventID string, payload []byte)
}

// NopArchiver is used when archiving is disabled in config.
type NopArchiver struct{}

func (NopArchiver) ArchivePayload(context.Context, string, []byte) {}

// S3Archiver writes payloads to an S3-compatible object store, keyed by
// receipt date and event id.
type S3Archiver struct {
	client *s3.Client
	bucket string
}

// NewS3Archiver creates an archiver against an S3-compatible endpoint
// (DigitalOcean Spaces in production).
func NewS3Archiver(endpoint, region, bucket, accessKeyID, secretAccessKey string) (*S3Archiver, error) {
	customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if service == s3.ServiceID {
			return aws.Endpoint{
				URL:           endpoint,
				SigningRegion: region,
			}, nil
		}
		return aws.Endpoint{}, fmt.Errorf("unknown endpoint requested")
	})

	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithEndpointResolverWithOptions(customResolver),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKeyID, secretAccessKey, "",
		)),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true // Required for DigitalOcean Spaces
	})

	return &S3Archiver{client: client, bucket: bucket}, nil
}

// ArchivePayload uploads the raw payload under webhooks/{date}/{eventID}.json.
// Failures are logged and swallowed.
func (a *S3Archiver) ArchivePayload(ctx context.Context, eventID string, payload []byte) {
	key := fmt.Sprintf("webhooks/%s/%s.json", time.Now().UTC().Format("2006-01-02"), eventID)

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String("application/json"),
		ACL:         types.ObjectCannedACLPrivate,
	})
	if err != nil {
		log.Printf("[ARCHIVE] failed to archive webhook payload %s: %v", eventID, err)
		return
	}
	log.Printf("[ARCHIVE] archived webhook payload to %s", key)
}

// ListArchived returns the keys archived on a given day, for audit tooling.
func (a *S3Archiver) ListArchived(ctx context.Context, day time.Time) ([]string, error) {
	prefix := fmt.Sprintf("webhooks/%s/", day.UTC().Format("2006-01-02"))

	result, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list archived payloads: %w", err)
	}

	var keys []string
	for _, obj := range result.Contents {
		keys = append(keys, aws.ToString(obj.Key))
	}
	return keys, nil
}
