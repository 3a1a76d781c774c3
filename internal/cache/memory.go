package cache

import (
	"sync"
	"time"
)

type entry struct {
	value    string
	storedAt time.Time
}

// Memory is an in-process Cache.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   Clock
	policy  Policy
}

// NewMemory returns an empty in-memory cache.
func NewMemory(opts ...Option) *Memory {
	o := buildOptions(opts)
	return &Memory{
		entries: make(map[string]entry),
		clock:   o.clock,
		policy:  o.policy,
	}
}

// Get returns the value for key if present and not expired.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	if m.policy.expired(e.storedAt, m.clock()) {
		m.mu.Lock()
		if cur, ok := m.entries[key]; ok && cur.storedAt.Equal(e.storedAt) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", false
	}
	return e.value, true
}

// Set stores value under key, replacing any previous value.
func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	m.entries[key] = entry{value: value, storedAt: m.clock()}
	m.mu.Unlock()
}

// Len returns the number of stored entries, including expired ones not yet read.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
