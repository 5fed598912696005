// Package archive stores raw webhook payloads in an S3-compatible bucket
// (Cloudflare R2 in production) so rejected deliveries can be replayed.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Options configures the bucket connection
type Options struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// Configured reports whether enough settings are present to connect
func (o Options) Configured() bool {
	return o.Endpoint != "" && o.Bucket != "" && o.AccessKey != "" && o.SecretKey != ""
}

// ObjectClient is the subset of the S3 API the archiver uses
type ObjectClient interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// R2Archiver uploads and fetches objects under a fixed key prefix
type R2Archiver struct {
	client ObjectClient
	bucket string
	prefix string
}

// NewR2Client builds an S3 client pointed at the R2 endpoint
func NewR2Client(ctx context.Context, opts Options) (*s3.Client, error) {
	region := opts.Region
	if region == "" {
		region = "auto"
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			opts.AccessKey,
			opts.SecretKey,
			"",
		)),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to configure R2 client: %w", err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(opts.Endpoint)
		o.UsePathStyle = true
	}), nil
}

// NewR2Archiver connects to the bucket described by opts
func NewR2Archiver(ctx context.Context, opts Options) (*R2Archiver, error) {
	client, err := NewR2Client(ctx, opts)
	if err != nil {
		return nil, err
	}
	return NewArchiverWithClient(client, opts.Bucket, opts.Prefix), nil
}

// NewArchiverWithClient wraps an existing client
func NewArchiverWithClient(client ObjectClient, bucket, prefix string) *R2Archiver {
	if prefix == "" {
		prefix = "webhooks"
	}
	return &R2Archiver{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// DeliveryKey is the object key for a delivery payload, partitioned by day
func (a *R2Archiver) DeliveryKey(deliveryID string, receivedAt time.Time) string {
	return path.Join(a.prefix, receivedAt.UTC().Format("2006/01/02"), deliveryID+".json")
}

// Put uploads data under key
func (a *R2Archiver) Put(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	log.Printf("[Archive] Stored %s (%d bytes)", key, len(data))
	return nil
}

// Get downloads the object stored under key
func (a *R2Archiver) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	defer result.Body.Close()

	return io.ReadAll(result.Body)
}
