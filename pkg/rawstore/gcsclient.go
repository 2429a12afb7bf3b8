package rawstore

import (
	"context"
	"errors"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// ====================================================================================
// This file defines a set of interfaces to abstract the Google Cloud Storage
// client. The append-merge writer and the batch consolidator are tested against
// these interfaces with an in-memory store instead of a live bucket.
// ====================================================================================

// ErrObjectNotExist is returned by readers and Attrs when no object is stored
// at the requested key. Adapters translate the concrete client's not-found
// error into this sentinel.
var ErrObjectNotExist = errors.New("rawstore: object does not exist")

// ErrPreconditionFailed is returned when a conditional write loses a race:
// the object's generation changed between the fetch and the put.
var ErrPreconditionFailed = errors.New("rawstore: write precondition failed")

// ObjectAttrs carries the subset of object metadata the pipeline needs.
type ObjectAttrs struct {
	Name       string
	Size       int64
	Generation int64
	Updated    time.Time
}

// ObjectStore abstracts the top-level storage client.
type ObjectStore interface {
	Bucket(name string) BucketHandle
}

// BucketHandle abstracts a bucket.
type BucketHandle interface {
	Object(name string) ObjectHandle
	// Objects enumerates the objects under prefix. The iterator ends with
	// iterator.Done, matching the concrete client.
	Objects(ctx context.Context, prefix string) ObjectIterator
}

// ObjectHandle abstracts a single stored object.
type ObjectHandle interface {
	NewReader(ctx context.Context) (ObjectReader, error)
	NewWriter(ctx context.Context) io.WriteCloser
	Attrs(ctx context.Context) (ObjectAttrs, error)
	// IfGenerationMatch returns a handle whose writes only succeed when the
	// live generation matches gen. gen == 0 means the object must not exist.
	// Violations surface as ErrPreconditionFailed from the writer's Close.
	IfGenerationMatch(gen int64) ObjectHandle
}

// ObjectReader is a readable object plus the generation the content was read
// at, so a later conditional write can detect concurrent modification.
type ObjectReader interface {
	io.ReadCloser
	Generation() int64
}

// ObjectIterator abstracts bucket listing.
type ObjectIterator interface {
	Next() (ObjectAttrs, error)
}

// --- Adapters wrapping the concrete Google Cloud Storage client ---

type gcsStoreAdapter struct {
	client *storage.Client
}

// NewGCSObjectStore makes a concrete *storage.Client conform to ObjectStore.
func NewGCSObjectStore(client *storage.Client) ObjectStore {
	if client == nil {
		return nil
	}
	return &gcsStoreAdapter{client: client}
}

func (a *gcsStoreAdapter) Bucket(name string) BucketHandle {
	return &gcsBucketAdapter{handle: a.client.Bucket(name)}
}

type gcsBucketAdapter struct {
	handle *storage.BucketHandle
}

func (a *gcsBucketAdapter) Object(name string) ObjectHandle {
	return &gcsObjectAdapter{handle: a.handle.Object(name)}
}

func (a *gcsBucketAdapter) Objects(ctx context.Context, prefix string) ObjectIterator {
	return &gcsIteratorAdapter{it: a.handle.Objects(ctx, &storage.Query{Prefix: prefix})}
}

type gcsObjectAdapter struct {
	handle *storage.ObjectHandle
}

func (a *gcsObjectAdapter) NewReader(ctx context.Context) (ObjectReader, error) {
	r, err := a.handle.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, ErrObjectNotExist
		}
		return nil, err
	}
	return &gcsReaderAdapter{Reader: r}, nil
}

func (a *gcsObjectAdapter) NewWriter(ctx context.Context) io.WriteCloser {
	return &gcsWriterAdapter{w: a.handle.NewWriter(ctx)}
}

func (a *gcsObjectAdapter) Attrs(ctx context.Context) (ObjectAttrs, error) {
	attrs, err := a.handle.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return ObjectAttrs{}, ErrObjectNotExist
		}
		return ObjectAttrs{}, err
	}
	return fromGCSAttrs(attrs), nil
}

func (a *gcsObjectAdapter) IfGenerationMatch(gen int64) ObjectHandle {
	conds := storage.Conditions{GenerationMatch: gen}
	if gen == 0 {
		conds = storage.Conditions{DoesNotExist: true}
	}
	return &gcsObjectAdapter{handle: a.handle.If(conds)}
}

type gcsReaderAdapter struct {
	*storage.Reader
}

func (r *gcsReaderAdapter) Generation() int64 {
	return r.Attrs.Generation
}

// gcsWriterAdapter maps the client's HTTP 412 on Close to ErrPreconditionFailed.
type gcsWriterAdapter struct {
	w *storage.Writer
}

func (a *gcsWriterAdapter) Write(p []byte) (int, error) {
	return a.w.Write(p)
}

func (a *gcsWriterAdapter) Close() error {
	err := a.w.Close()
	if isGCSPreconditionFailure(err) {
		return ErrPreconditionFailed
	}
	return err
}

type gcsIteratorAdapter struct {
	it *storage.ObjectIterator
}

func (a *gcsIteratorAdapter) Next() (ObjectAttrs, error) {
	attrs, err := a.it.Next()
	if err != nil {
		// iterator.Done passes through untouched.
		return ObjectAttrs{}, err
	}
	return fromGCSAttrs(attrs), nil
}

func fromGCSAttrs(attrs *storage.ObjectAttrs) ObjectAttrs {
	return ObjectAttrs{
		Name:       attrs.Name,
		Size:       attrs.Size,
		Generation: attrs.Generation,
		Updated:    attrs.Updated,
	}
}

// Done re-exports the concrete iterator's end-of-listing sentinel so callers
// of ObjectIterator do not need a direct google.golang.org/api dependency.
var Done = iterator.Done
