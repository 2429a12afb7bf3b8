package devices

import (
	"sync"
)

// StaticRegistry is a fixed in-memory registry for development and tests,
// mirroring how the stations were historically configured by hand.
type StaticRegistry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewStaticRegistry copies the given records into a registry.
func NewStaticRegistry(records map[string]Record) *StaticRegistry {
	copied := make(map[string]Record, len(records))
	for name, rec := range records {
		copied[name] = rec
	}
	return &StaticRegistry{records: copied}
}

// Fetch resolves a station name.
func (s *StaticRegistry) Fetch(deviceName string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[deviceName]
	if !ok {
		return Record{}, ErrDeviceNotFound
	}
	return rec, nil
}

// Put adds or replaces a record.
func (s *StaticRegistry) Put(deviceName string, rec Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[deviceName] = rec
}

// Close implements io.Closer.
func (s *StaticRegistry) Close() error {
	return nil
}
