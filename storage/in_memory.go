package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
	updated     time.Time
}

// MemoryStore is an in-process ObjectStore for tests and local mode. It
// keeps all blobs in a nested map guarded by an RWMutex and copies data on
// write and read to avoid external mutation of internal buffers.
//
// Layout: bucket -> object name -> blob
type MemoryStore struct {
	mu      sync.RWMutex
	buckets map[string]map[string]memObject
}

var _ ObjectStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]memObject)}
}

// CreateBucket ensures the named bucket exists. Creating an existing bucket
// is a no-op.
func (s *MemoryStore) CreateBucket(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.buckets[name]; !exists {
		s.buckets[name] = make(map[string]memObject)
	}
}

// PutObject stores (or overwrites) an object, creating the bucket if
// needed. The input slice is copied before storage.
func (s *MemoryStore) PutObject(bucket, name, contentType string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.buckets[bucket]; !exists {
		s.buckets[bucket] = make(map[string]memObject)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.buckets[bucket][name] = memObject{data: cp, contentType: contentType, updated: time.Now().UTC()}
}

// ListBuckets returns bucket names starting with prefix, sorted.
func (s *MemoryStore) ListBuckets(_ context.Context, prefix string, maxResults int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if maxResults > 0 && len(names) > maxResults {
		names = names[:maxResults]
	}
	return names, nil
}

// ListObjects returns the bucket's objects in name order, or
// ErrBucketNotFound.
func (s *MemoryStore) ListObjects(_ context.Context, bucket, prefix string, maxResults int) ([]Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objs, exists := s.buckets[bucket]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}

	names := make([]string, 0, len(objs))
	for name := range objs {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	if maxResults > 0 && len(names) > maxResults {
		names = names[:maxResults]
	}

	out := make([]Object, 0, len(names))
	for _, name := range names {
		obj := objs[name]
		out = append(out, Object{
			Name:        name,
			Size:        int64(len(obj.data)),
			Updated:     obj.updated,
			ContentType: obj.contentType,
			URI:         fmt.Sprintf("mem://%s/%s", bucket, name),
		})
	}
	return out, nil
}

// ReadObject returns a copy of the stored bytes or a not-found error.
func (s *MemoryStore) ReadObject(_ context.Context, bucket, name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	objs, exists := s.buckets[bucket]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrBucketNotFound, bucket)
	}
	obj, exists := objs[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s/%s", ErrObjectNotFound, bucket, name)
	}
	cp := make([]byte, len(obj.data))
	copy(cp, obj.data)
	return cp, nil
}
