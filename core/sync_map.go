package core

import "sync"

// SyncMap is a map that is safe for concurrent usage.
type SyncMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{
		m: make(map[K]V),
	}
}

func (s *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok = s.m[key]
	return
}

func (s *SyncMap[K, V]) Store(key K, value V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
}

// Swap stores value under key and returns the value it replaced, if any.
func (s *SyncMap[K, V]) Swap(key K, value V) (previous V, loaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous, loaded = s.m[key]
	s.m[key] = value
	return
}

// LoadAndDelete removes key and returns the value it held.
func (s *SyncMap[K, V]) LoadAndDelete(key K) (value V, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok = s.m[key]
	if ok {
		delete(s.m, key)
	}
	return
}

// CompareAndDelete removes key only while match reports true for its value.
func (s *SyncMap[K, V]) CompareAndDelete(key K, match func(V) bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.m[key]
	if !ok || !match(value) {
		return false
	}
	delete(s.m, key)
	return true
}

// Drain empties the map and returns everything it held.
func (s *SyncMap[K, V]) Drain() map[K]V {
	s.mu.Lock()
	defer s.mu.Unlock()
	drained := s.m
	s.m = make(map[K]V)
	return drained
}

func (s *SyncMap[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.m)
}
