package rawstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
)

// AppendResult reports how an append-merge call changed the target object.
type AppendResult string

const (
	ResultCreated     AppendResult = "created"
	ResultAppended    AppendResult = "appended"
	ResultOverwritten AppendResult = "overwritten"
)

// AppendMergeWriterConfig holds configuration for the AppendMergeWriter.
type AppendMergeWriterConfig struct {
	BucketName string
	// MaxConflictRetries bounds how often a lost conditional write is retried
	// with a fresh fetch before giving up with ErrConcurrentUpdate.
	MaxConflictRetries int
}

// AppendMergeWriter merges one new record at a time into a time-bucketed
// partition object. The store offers no partial-append primitive, so every
// merge is a fetch of the full object followed by a single full put. Puts
// carry generation preconditions: two racing appends to the same key cannot
// silently lose a record, the loser observes ErrPreconditionFailed and
// retries against the fresh content.
type AppendMergeWriter struct {
	store  ObjectStore
	config AppendMergeWriterConfig
	logger zerolog.Logger
}

// NewAppendMergeWriter creates a writer bound to one bucket.
func NewAppendMergeWriter(store ObjectStore, config AppendMergeWriterConfig, logger zerolog.Logger) (*AppendMergeWriter, error) {
	if store == nil {
		return nil, errors.New("object store cannot be nil")
	}
	if config.BucketName == "" {
		return nil, errors.New("bucket name is required")
	}
	if config.MaxConflictRetries <= 0 {
		config.MaxConflictRetries = 3
	}
	return &AppendMergeWriter{
		store:  store,
		config: config,
		logger: logger.With().Str("component", "AppendMergeWriter").Logger(),
	}, nil
}

// AppendLine merges one serialized CSV row into the partition object at key.
// A missing object is created as header + row. An existing object is verified
// against header (mismatch is ErrSchemaDrift) and extended byte-level: prior
// rows are not re-parsed.
func (w *AppendMergeWriter) AppendLine(ctx context.Context, key, header, line string) (AppendResult, error) {
	for attempt := 0; attempt <= w.config.MaxConflictRetries; attempt++ {
		obj := w.store.Bucket(w.config.BucketName).Object(key)

		existing, generation, err := w.fetch(ctx, obj)
		switch {
		case errors.Is(err, ErrObjectNotExist):
			content := header + "\n" + line + "\n"
			err = w.put(ctx, obj.IfGenerationMatch(0), []byte(content))
			if errors.Is(err, ErrPreconditionFailed) {
				w.logger.Warn().Str("object_key", key).Int("attempt", attempt).Msg("Object appeared mid-create, refetching.")
				continue
			}
			if err != nil {
				return "", err
			}
			return ResultCreated, nil

		case err != nil:
			// A transient storage failure must not masquerade as "not found":
			// synthesizing a fresh object here would clobber existing data.
			return "", fmt.Errorf("fetch of %q failed: %w", key, err)
		}

		if got := firstLine(existing); got != header {
			return "", fmt.Errorf("%w: object %q has header %q", ErrSchemaDrift, key, got)
		}

		content := existing
		if len(content) > 0 && content[len(content)-1] != '\n' {
			content = append(content, '\n')
		}
		content = append(content, []byte(line+"\n")...)

		err = w.put(ctx, obj.IfGenerationMatch(generation), content)
		if errors.Is(err, ErrPreconditionFailed) {
			w.logger.Warn().Str("object_key", key).Int("attempt", attempt).Msg("Lost append race, refetching.")
			continue
		}
		if err != nil {
			return "", err
		}
		return ResultAppended, nil
	}
	return "", fmt.Errorf("append to %q: %w", key, ErrConcurrentUpdate)
}

// PutEnvelope stores a JSON-mode envelope at key. JSON mode never merges:
// each event owns its own second-granularity key, so an existing object is an
// exact key collision and the newer envelope overwrites it. Known race,
// accepted by design of the key layout.
func (w *AppendMergeWriter) PutEnvelope(ctx context.Context, key string, body []byte) (AppendResult, error) {
	obj := w.store.Bucket(w.config.BucketName).Object(key)

	_, err := obj.Attrs(ctx)
	switch {
	case errors.Is(err, ErrObjectNotExist):
		err = w.put(ctx, obj.IfGenerationMatch(0), body)
		if errors.Is(err, ErrPreconditionFailed) {
			// Created concurrently inside the same second. Fall through to
			// the overwrite case.
			break
		}
		if err != nil {
			return "", err
		}
		return ResultCreated, nil
	case err != nil:
		return "", fmt.Errorf("stat of %q failed: %w", key, err)
	}

	if err := w.put(ctx, obj, body); err != nil {
		return "", err
	}
	w.logger.Warn().Str("object_key", key).Msg("Envelope key collision, previous object overwritten.")
	return ResultOverwritten, nil
}

// Fetch returns the full content of the object at key.
func (w *AppendMergeWriter) Fetch(ctx context.Context, key string) ([]byte, error) {
	content, _, err := w.fetch(ctx, w.store.Bucket(w.config.BucketName).Object(key))
	return content, err
}

func (w *AppendMergeWriter) fetch(ctx context.Context, obj ObjectHandle) ([]byte, int64, error) {
	r, err := obj.NewReader(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	content, err := io.ReadAll(r)
	if err != nil {
		return nil, 0, fmt.Errorf("read failed: %w", err)
	}
	return content, r.Generation(), nil
}

func (w *AppendMergeWriter) put(ctx context.Context, obj ObjectHandle, content []byte) error {
	writer := obj.NewWriter(ctx)
	if _, err := writer.Write(content); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write failed: %w", err)
	}
	return writer.Close()
}

func firstLine(content []byte) string {
	if idx := bytes.IndexByte(content, '\n'); idx >= 0 {
		return string(bytes.TrimRight(content[:idx], "\r"))
	}
	return string(content)
}
