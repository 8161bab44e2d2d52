package util

import "sync"

// KeyedMutex hands out one mutex per key so callers can serialize work on a
// single document without blocking other documents. Mutexes are never
// released; the key space here is bounded by the number of live documents.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (m *KeyedMutex) Lock(key string) {
	m.mu.Lock()
	lock, ok := m.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[key] = lock
	}
	m.mu.Unlock()
	lock.Lock()
}

func (m *KeyedMutex) Unlock(key string) {
	m.mu.Lock()
	lock := m.locks[key]
	m.mu.Unlock()
	lock.Unlock()
}
