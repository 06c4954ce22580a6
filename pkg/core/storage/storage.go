// Package storage publishes finished media so presentation layers can play it.
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Store publishes bytes under name and returns a reference a client can
// fetch, typically a URL.
type Store interface {
	Put(ctx context.Context, name, mimeType string, data []byte) (string, error)
}

// Object is a stored media blob.
type Object struct {
	Name     string
	MIMEType string
	Data     []byte
	Created  time.Time
}

// MemoryStore keeps objects in process and hands out references under
// URLPrefix. Older objects are evicted once MaxObjects is exceeded.
type MemoryStore struct {
	urlPrefix  string
	maxObjects int

	mu      sync.RWMutex
	objects map[string]Object
	order   []string
}

// DefaultMaxObjects bounds MemoryStore when no limit is given.
const DefaultMaxObjects = 32

// NewMemoryStore creates an in-memory store. urlPrefix is prepended to object
// names to build references, e.g. "/v1/videos/".
func NewMemoryStore(urlPrefix string, maxObjects int) *MemoryStore {
	if maxObjects <= 0 {
		maxObjects = DefaultMaxObjects
	}
	return &MemoryStore{
		urlPrefix:  urlPrefix,
		maxObjects: maxObjects,
		objects:    make(map[string]Object),
	}
}

// Put stores data under name, replacing any existing object.
func (s *MemoryStore) Put(ctx context.Context, name, mimeType string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[name]; !exists {
		s.order = append(s.order, name)
	}
	s.objects[name] = Object{Name: name, MIMEType: mimeType, Data: data, Created: time.Now()}
	for len(s.order) > s.maxObjects {
		delete(s.objects, s.order[0])
		s.order = s.order[1:]
	}
	return s.urlPrefix + name, nil
}

// Get returns the object stored under name.
func (s *MemoryStore) Get(name string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	return obj, ok
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
