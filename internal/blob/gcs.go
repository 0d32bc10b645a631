package blob

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"

	"cloud.google.com/go/storage"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"ingest/internal/logger"
)

// GCSStore implements Store on Google Cloud Storage.
type GCSStore struct {
	client *storage.Client

	// storageClass maps bucket names to the storage class new objects get.
	storageClass map[string]string
	log          zerolog.Logger
}

// NewGCSStore creates a Cloud Storage client with the given options
// (credentials are resolved by the caller, see ocr.ClientOptions).
func NewGCSStore(ctx context.Context, opts ...option.ClientOption) (*GCSStore, error) {
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStore: failed to create storage client: %w", err)
	}
	return NewGCSStoreWithClient(client), nil
}

// NewGCSStoreWithClient wraps an existing client.
func NewGCSStoreWithClient(client *storage.Client) *GCSStore {
	return &GCSStore{
		client:       client,
		storageClass: make(map[string]string),
		log:          logger.WithComponent("gcs"),
	}
}

// SetStorageClass makes objects written to bucket use class
// (e.g. "ARCHIVE", "COLDLINE") instead of the bucket default.
func (g *GCSStore) SetStorageClass(bucket, class string) {
	g.storageClass[bucket] = class
}

func (g *GCSStore) Put(ctx context.Context, bucket, key string, data []byte) error {
	const op = "Put"

	w := g.client.Bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = mime.TypeByExtension(path.Ext(key))
	if class, ok := g.storageClass[bucket]; ok {
		w.StorageClass = class
	}

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("%s: write gs://%s/%s: %w", op, bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("%s: close gs://%s/%s: %w", op, bucket, key, err)
	}

	g.log.Debug().
		Str("bucket", bucket).
		Str("key", key).
		Int("bytes", len(data)).
		Msg("Object written")
	return nil
}

func (g *GCSStore) Delete(ctx context.Context, bucket, key string) error {
	err := g.client.Bucket(bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("Delete: gs://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (g *GCSStore) List(ctx context.Context, bucket, prefix string) ([]string, error) {
	it := g.client.Bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})

	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: gs://%s/%s: %w", bucket, prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
	return keys, nil
}

// Close closes the underlying storage client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}

// URI returns the gs:// URI of bucket/key.
func URI(bucket, key string) string {
	return "gs://" + bucket + "/" + key
}
