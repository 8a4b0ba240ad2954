package sync

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// objectPutter is the part of *s3.Client the destination uses.
type objectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Destination writes snapshots under a key prefix in an S3-compatible
// bucket. Every snapshot is archived under a key derived from its export
// time, and <prefix>/latest.jsonl is overwritten with the newest one.
type S3Destination struct {
	client objectPutter
	bucket string
	prefix string
}

// NewS3Destination creates an S3 destination. If endpoint is non-empty,
// path-style addressing is enabled (for MinIO and similar).
func NewS3Destination(ctx context.Context, bucket, prefix, region, endpoint string) (*S3Destination, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var s3opts []func(*s3.Options)
	if endpoint != "" {
		s3opts = append(s3opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}

	return newS3Destination(s3.NewFromConfig(cfg, s3opts...), bucket, prefix), nil
}

func newS3Destination(client objectPutter, bucket, prefix string) *S3Destination {
	return &S3Destination{client: client, bucket: bucket, prefix: prefix}
}

// Name returns the s3:// URL of the key prefix.
func (d *S3Destination) Name() string { return "s3://" + path.Join(d.bucket, d.prefix) + "/" }

// LatestKey is the object overwritten by every snapshot.
func (d *S3Destination) LatestKey() string { return path.Join(d.prefix, "latest.jsonl") }

// ArchiveKey is the object a snapshot taken at t is kept under.
func (d *S3Destination) ArchiveKey(t time.Time) string {
	t = t.UTC()
	return path.Join(d.prefix, "archive", t.Format("2006/01/02"), t.Format("150405Z")+".jsonl")
}

// Write archives snap and then points latest at it. The latest object is left
// alone when the archive upload fails.
func (d *S3Destination) Write(ctx context.Context, snap Snapshot) error {
	if err := d.put(ctx, d.ArchiveKey(snap.TakenAt), snap); err != nil {
		return err
	}
	return d.put(ctx, d.LatestKey(), snap)
}

func (d *S3Destination) put(ctx context.Context, key string, snap Snapshot) error {
	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(d.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(snap.Data),
		ContentType: aws.String("application/x-ndjson"),
		Metadata:    snapshotMetadata(snap.Summary),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", key, err)
	}
	return nil
}

func snapshotMetadata(sum Summary) map[string]string {
	return map[string]string{
		"taken-at":      sum.TakenAt.UTC().Format(time.RFC3339),
		"companies":     strconv.Itoa(sum.Companies),
		"stages":        strconv.Itoa(sum.Stages),
		"deals":         strconv.Itoa(sum.Deals),
		"stage-changes": strconv.Itoa(sum.Changes),
	}
}
