// Package objectstore is the S3-compatible client backing the pipeline's
// artifact storage: upload/download/delete, prefix deletion for rerun
// cleanup, and presigned URLs for the files endpoint.
//
// Grounded on the teacher's internal/long-term-archives S3Exporter
// (initAWS/uploadToS3/ListObjects/GetObject/DeleteObject/
// CleanupExpiredObjects+deleteBatch), adapted from an archival exporter
// into the pipeline's primary artifact store. S3ForcePathStyle plus a
// custom Endpoint is the same knob the original used for MinIO/LocalStack,
// and is how this client also targets a GCS XML-API-compatible endpoint —
// the original Rust system spoke to Firebase Storage (GCS) directly, but
// the coordination logic in scope here only needs an S3-shaped
// upload/download/delete/presign surface.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// Config is the subset of internal/config.ObjectStore the client needs.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // non-empty for MinIO/LocalStack/GCS-XML emulation
	AccessKeyID     string
	SecretAccessKey string
}

// Store wraps an S3-compatible bucket.
type Store struct {
	bucket   string
	client   *s3.S3
	uploader *s3manager.Uploader
}

// New builds a Store, verifying bucket access via HeadBucket.
func New(ctx context.Context, cfg Config) (*Store, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}

	client := s3.New(sess)
	if _, err := client.HeadBucketWithContext(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("access bucket %s: %w", cfg.Bucket, err)
	}

	return &Store{
		bucket:   cfg.Bucket,
		client:   client,
		uploader: s3manager.NewUploader(sess),
	}, nil
}

// Upload writes data to key, setting contentType if non-empty.
func (s *Store) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	input := &s3manager.UploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.UploadWithContext(ctx, input); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

// Download returns the full contents of key.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return data, nil
}

// Delete removes a single key. Deleting a missing key is not an error
// (matches S3 semantics).
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// ListKeys lists every object key under prefix.
func (s *Store) ListKeys(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	input := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket), Prefix: aws.String(prefix)}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range page.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		return !lastPage
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	return keys, nil
}

// DeleteByPrefix deletes every object under prefix in batches of up to
// 1000 keys (the S3 DeleteObjects limit) and returns the count deleted.
// Used by the rerun handler to clear downstream stage artifacts.
func (s *Store) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	keys, err := s.ListKeys(ctx, prefix)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}

	deleted := 0
	const batchSize = 1000
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		objects := make([]*s3.ObjectIdentifier, 0, end-i)
		for _, k := range keys[i:end] {
			objects = append(objects, &s3.ObjectIdentifier{Key: aws.String(k)})
		}
		_, err := s.client.DeleteObjectsWithContext(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &s3.Delete{Objects: objects},
		})
		if err != nil {
			return deleted, fmt.Errorf("delete batch under %s: %w", prefix, err)
		}
		deleted += len(objects)
	}
	return deleted, nil
}
