package kvstore

import (
	"fmt"
	"sync"
)

type memoryKVStore struct {
	mu     sync.RWMutex
	items  map[string][]byte
	closed bool
}

var _ KVStore = (*memoryKVStore)(nil)

// NewMemoryKVStore returns an empty, volatile KVStore.
func NewMemoryKVStore() KVStore {
	return &memoryKVStore{items: map[string][]byte{}}
}

// Has implements KVStore.
func (s *memoryKVStore) Has(key []byte) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, fmt.Errorf("kvstore: closed")
	}
	_, ok := s.items[string(key)]
	return ok, nil
}

// Get implements KVStore. Absent keys yield a nil value, like pogreb.
func (s *memoryKVStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("kvstore: closed")
	}
	v, ok := s.items[string(key)]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

// Put implements KVStore.
func (s *memoryKVStore) Put(key []byte, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("kvstore: closed")
	}
	s.items[string(key)] = append([]byte(nil), value...)
	return nil
}

// Delete implements KVStore.
func (s *memoryKVStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("kvstore: closed")
	}
	delete(s.items, string(key))
	return nil
}

// Close implements KVStore.
func (s *memoryKVStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
