// Package memory keeps the posting index and artifacts in process memory.
package memory

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Object is one stored artifact.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

// BlobStore stores artifacts in write order. Repeated names are all kept.
type BlobStore struct {
	mu      sync.RWMutex
	objects []Object
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{}
}

// PutObject stores the content and returns a memory:// URI.
func (s *BlobStore) PutObject(_ context.Context, name string, contentType string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read data from reader: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = append(s.objects, Object{Name: name, ContentType: contentType, Data: data})
	return fmt.Sprintf("memory://%s#%d", name, len(s.objects)), nil
}

// Objects returns a copy of everything stored.
func (s *BlobStore) Objects() []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Object, len(s.objects))
	copy(out, s.objects)
	return out
}

// Get returns the latest object stored under name.
func (s *BlobStore) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.objects) - 1; i >= 0; i-- {
		if s.objects[i].Name == name {
			return append([]byte(nil), s.objects[i].Data...), true
		}
	}
	return nil, false
}
