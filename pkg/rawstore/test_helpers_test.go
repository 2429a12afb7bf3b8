package rawstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
)

// --- In-Memory Object Store Components ---

type memObject struct {
	content    []byte
	generation int64
}

// memStore is an in-memory ObjectStore that enforces generation preconditions
// the way the live service does, so the conflict paths are testable without a
// bucket. beforePut runs inside every conditional write, before the check,
// which lets a test interleave a rival writer at the worst possible moment.
type memStore struct {
	sync.Mutex
	objects   map[string]*memObject
	readErrs  map[string]error
	beforePut func(key string)
}

func newMemStore() *memStore {
	return &memStore{
		objects:  make(map[string]*memObject),
		readErrs: make(map[string]error),
	}
}

func (s *memStore) Bucket(name string) BucketHandle {
	return &memBucket{store: s}
}

// seed stores content at key directly, bumping the generation.
func (s *memStore) seed(key string, content []byte) {
	s.Lock()
	defer s.Unlock()
	s.seedLocked(key, content)
}

func (s *memStore) seedLocked(key string, content []byte) {
	obj := s.objects[key]
	if obj == nil {
		obj = &memObject{}
		s.objects[key] = obj
	}
	obj.content = append([]byte(nil), content...)
	obj.generation++
}

func (s *memStore) get(key string) ([]byte, bool) {
	s.Lock()
	defer s.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), obj.content...), true
}

func (s *memStore) failReads(key string, err error) {
	s.Lock()
	defer s.Unlock()
	s.readErrs[key] = err
}

type memBucket struct {
	store *memStore
}

func (b *memBucket) Object(name string) ObjectHandle {
	return &memObjectHandle{store: b.store, key: name}
}

func (b *memBucket) Objects(_ context.Context, prefix string) ObjectIterator {
	b.store.Lock()
	defer b.store.Unlock()

	var attrs []ObjectAttrs
	for key, obj := range b.store.objects {
		if strings.HasPrefix(key, prefix) {
			attrs = append(attrs, ObjectAttrs{
				Name:       key,
				Size:       int64(len(obj.content)),
				Generation: obj.generation,
			})
		}
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Name < attrs[j].Name })
	return &memIterator{attrs: attrs}
}

type memObjectHandle struct {
	store *memStore
	key   string
	// cond is nil for unconditional writes, otherwise the generation the
	// live object must still have (0 meaning "must not exist").
	cond *int64
}

func (h *memObjectHandle) NewReader(_ context.Context) (ObjectReader, error) {
	h.store.Lock()
	defer h.store.Unlock()

	if err := h.store.readErrs[h.key]; err != nil {
		return nil, err
	}
	obj, ok := h.store.objects[h.key]
	if !ok {
		return nil, ErrObjectNotExist
	}
	return &memReader{
		ReadCloser: io.NopCloser(bytes.NewReader(append([]byte(nil), obj.content...))),
		generation: obj.generation,
	}, nil
}

func (h *memObjectHandle) Attrs(_ context.Context) (ObjectAttrs, error) {
	h.store.Lock()
	defer h.store.Unlock()

	if err := h.store.readErrs[h.key]; err != nil {
		return ObjectAttrs{}, err
	}
	obj, ok := h.store.objects[h.key]
	if !ok {
		return ObjectAttrs{}, ErrObjectNotExist
	}
	return ObjectAttrs{
		Name:       h.key,
		Size:       int64(len(obj.content)),
		Generation: obj.generation,
	}, nil
}

func (h *memObjectHandle) IfGenerationMatch(gen int64) ObjectHandle {
	return &memObjectHandle{store: h.store, key: h.key, cond: &gen}
}

func (h *memObjectHandle) NewWriter(_ context.Context) io.WriteCloser {
	return &memWriter{handle: h}
}

type memReader struct {
	io.ReadCloser
	generation int64
}

func (r *memReader) Generation() int64 { return r.generation }

// memWriter buffers writes and commits on Close, where the precondition is
// checked against the live generation, matching the concrete client.
type memWriter struct {
	handle *memObjectHandle
	buf    bytes.Buffer
	closed bool
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, io.ErrClosedPipe
	}
	return w.buf.Write(p)
}

func (w *memWriter) Close() error {
	if w.closed {
		return io.ErrClosedPipe
	}
	w.closed = true

	store := w.handle.store
	if hook := store.beforePut; hook != nil {
		hook(w.handle.key)
	}

	store.Lock()
	defer store.Unlock()

	var liveGen int64
	if obj, ok := store.objects[w.handle.key]; ok {
		liveGen = obj.generation
	}
	if w.handle.cond != nil && *w.handle.cond != liveGen {
		return ErrPreconditionFailed
	}
	store.seedLocked(w.handle.key, w.buf.Bytes())
	return nil
}

type memIterator struct {
	attrs []ObjectAttrs
	pos   int
}

func (it *memIterator) Next() (ObjectAttrs, error) {
	if it.pos >= len(it.attrs) {
		return ObjectAttrs{}, Done
	}
	attrs := it.attrs[it.pos]
	it.pos++
	return attrs, nil
}
