package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	inlinePrefix = "text:"
	s3Prefix     = "s3://"
)

// ObjectFetcher fetches an object from S3-compatible storage.
type ObjectFetcher interface {
	FetchObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Fetcher resolves the three supported content reference forms: inline
// "text:" payloads, local file paths (relative paths resolve under the data
// dir), and "s3://bucket/key" objects when object storage is configured.
type Fetcher struct {
	dataDir string
	objects ObjectFetcher
}

func NewFetcher(dataDir string, objects ObjectFetcher) *Fetcher {
	return &Fetcher{dataDir: dataDir, objects: objects}
}

func (f *Fetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, inlinePrefix):
		return []byte(strings.TrimPrefix(ref, inlinePrefix)), nil

	case strings.HasPrefix(ref, s3Prefix):
		if f.objects == nil {
			return nil, fmt.Errorf("source references %q but object storage is not configured", ref)
		}
		bucket, key, ok := strings.Cut(strings.TrimPrefix(ref, s3Prefix), "/")
		if !ok || bucket == "" || key == "" {
			return nil, fmt.Errorf("invalid object reference %q", ref)
		}
		return f.objects.FetchObject(ctx, bucket, key)

	default:
		path := ref
		if !filepath.IsAbs(path) {
			path = filepath.Join(f.dataDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read source file: %w", err)
		}
		return data, nil
	}
}
