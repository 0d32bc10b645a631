// Package blob stores raw and archived image bytes under bucket/key names.
package blob

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a key does not exist in a bucket.
var ErrNotFound = errors.New("blob not found")

// Store is key-addressed binary storage.
type Store interface {
	// Put writes data at bucket/key, replacing any existing object.
	Put(ctx context.Context, bucket, key string, data []byte) error

	// Delete removes bucket/key. Deleting a missing key is not an error.
	Delete(ctx context.Context, bucket, key string) error

	// List returns every key in bucket that starts with prefix, in lexical order.
	List(ctx context.Context, bucket, prefix string) ([]string, error)
}

// DeletePrefix removes every object under prefix. It keeps going past
// individual delete failures and reports how many objects were removed
// together with the joined errors.
func DeletePrefix(ctx context.Context, s Store, bucket, prefix string) (int, error) {
	keys, err := s.List(ctx, bucket, prefix)
	if err != nil {
		return 0, fmt.Errorf("list %s/%s: %w", bucket, prefix, err)
	}

	var (
		deleted int
		errs    []error
	)
	for _, key := range keys {
		if err := s.Delete(ctx, bucket, key); err != nil {
			errs = append(errs, fmt.Errorf("delete %s/%s: %w", bucket, key, err))
			continue
		}
		deleted++
	}
	return deleted, errors.Join(errs...)
}
