package objectstore

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
)

// PresignExpiry is the signed-URL validity window for GET /files, matching
// files.rs's PRESIGN_EXPIRY constant.
const PresignExpiry = 15 * time.Minute

// PresignedFile is one entry in a files-endpoint response: the object's
// filename and a signed download URL.
type PresignedFile struct {
	Name string
	URL  string
}

// ListAndPresign lists every object under prefix and returns a presigned
// GET URL (valid for PresignExpiry) for each.
func (s *Store) ListAndPresign(ctx context.Context, prefix string) ([]PresignedFile, error) {
	keys, err := s.ListKeys(ctx, prefix)
	if err != nil {
		return nil, err
	}

	files := make([]PresignedFile, 0, len(keys))
	for _, key := range keys {
		req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		url, err := req.Presign(PresignExpiry)
		if err != nil {
			return nil, fmt.Errorf("presign %s: %w", key, err)
		}
		files = append(files, PresignedFile{Name: key, URL: url})
	}
	return files, nil
}
