package consolidate

import (
	"context"
	"fmt"
	"sync"

	"github.com/uva-clima/go-inmet/pkg/sink"
)

// --- In-Memory Source and Loader ---

// memSource serves an in-memory corpus of partition objects.
type memSource struct {
	objects map[string][]byte
	listErr error
}

func newMemSource(objects map[string][]byte) *memSource {
	return &memSource{objects: objects}
}

func (s *memSource) List(_ context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *memSource) Fetch(_ context.Context, key string) ([]byte, error) {
	content, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no object at %q", key)
	}
	return content, nil
}

// recordingLoader counts rows and remembers every batch it was handed.
// failures maps a source key to the errors its first loads should return,
// consumed in order, which lets a test script transient-then-success.
type recordingLoader struct {
	sync.Mutex
	batches  []*sink.LoadBatch
	failures map[string][]error
	closed   bool
}

func newRecordingLoader() *recordingLoader {
	return &recordingLoader{failures: make(map[string][]error)}
}

func (l *recordingLoader) failNext(sourceKey string, errs ...error) {
	l.Lock()
	defer l.Unlock()
	l.failures[sourceKey] = append(l.failures[sourceKey], errs...)
}

func (l *recordingLoader) Load(_ context.Context, batch *sink.LoadBatch) (sink.LoadResult, error) {
	l.Lock()
	defer l.Unlock()

	for _, key := range batch.SourceKeys {
		if pending := l.failures[key]; len(pending) > 0 {
			err := pending[0]
			l.failures[key] = pending[1:]
			return sink.LoadResult{}, err
		}
	}
	l.batches = append(l.batches, batch)
	return sink.LoadResult{RowsWritten: int64(len(batch.Rows))}, nil
}

func (l *recordingLoader) Close() error {
	l.Lock()
	defer l.Unlock()
	l.closed = true
	return nil
}

func (l *recordingLoader) loadedKeys() []string {
	l.Lock()
	defer l.Unlock()
	var keys []string
	for _, batch := range l.batches {
		keys = append(keys, batch.SourceKeys...)
	}
	return keys
}
