package memory

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/goccy/go-json"
)

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Archiver uploads each snapshot as its own timestamped JSON object.
type S3Archiver struct {
	client objectPutter
	bucket string
	prefix string
	now    func() time.Time
}

func NewS3Archiver(cfg aws.Config, bucket, prefix string) *S3Archiver {
	return newS3Archiver(s3.NewFromConfig(cfg), bucket, prefix)
}

func newS3Archiver(client objectPutter, bucket, prefix string) *S3Archiver {
	return &S3Archiver{
		client: client,
		bucket: strings.TrimSpace(bucket),
		prefix: strings.Trim(strings.TrimSpace(prefix), "/"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (a *S3Archiver) Name() string { return "s3" }

func (a *S3Archiver) Archive(ctx context.Context, doc Document) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	key := a.objectKey()
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(b),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", a.bucket, key, err)
	}
	return nil
}

func (a *S3Archiver) objectKey() string {
	name := "navi-memory-" + a.now().Format("20060102T150405Z") + ".json"
	if a.prefix == "" {
		return name
	}
	return path.Join(a.prefix, name)
}

func (a *S3Archiver) Close() error { return nil }
