package objectstore

import "context"

// ObjectStore is the artifact-store surface every caller in this repo
// depends on, satisfied by *Store (real S3) and *MemStore (tests).
type ObjectStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	DeleteByPrefix(ctx context.Context, prefix string) (int, error)
	ListAndPresign(ctx context.Context, prefix string) ([]PresignedFile, error)
}

var (
	_ ObjectStore = (*Store)(nil)
	_ ObjectStore = (*MemStore)(nil)
)
