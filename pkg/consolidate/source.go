package consolidate

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/uva-clima/go-inmet/pkg/rawstore"
)

// ObjectSource enumerates and fetches partition objects. Abstracting the
// bucket keeps the consolidator testable against an in-memory corpus.
type ObjectSource interface {
	// List returns the keys under the source's prefix, in no guaranteed
	// order; the consolidator sorts them itself.
	List(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// PartitionSource reads partition objects from one bucket prefix.
type PartitionSource struct {
	store  rawstore.ObjectStore
	bucket string
	prefix string
}

// NewPartitionSource creates an ObjectSource over the given bucket prefix.
func NewPartitionSource(store rawstore.ObjectStore, bucket, prefix string) (*PartitionSource, error) {
	if store == nil {
		return nil, errors.New("object store cannot be nil")
	}
	if bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	return &PartitionSource{store: store, bucket: bucket, prefix: prefix}, nil
}

// List enumerates the object keys under the prefix.
func (s *PartitionSource) List(ctx context.Context) ([]string, error) {
	var keys []string
	it := s.store.Bucket(s.bucket).Objects(ctx, s.prefix)
	for {
		attrs, err := it.Next()
		if errors.Is(err, rawstore.Done) {
			return keys, nil
		}
		if err != nil {
			return nil, fmt.Errorf("listing %q: %w", s.prefix, err)
		}
		keys = append(keys, attrs.Name)
	}
}

// Fetch reads one object's full content.
func (s *PartitionSource) Fetch(ctx context.Context, key string) ([]byte, error) {
	r, err := s.store.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}
