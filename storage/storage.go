package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrBucketNotFound is returned when the named bucket does not exist in
	// the underlying store.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrObjectNotFound is returned when a bucket exists but the named
	// object does not.
	ErrObjectNotFound = errors.New("object not found")
)

// Object describes one stored blob as presented to the listing tools.
type Object struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	Updated     time.Time `json:"updated"`
	ContentType string    `json:"content_type"`
	URI         string    `json:"uri"`
}

// ObjectStore is the listing and retrieval contract for bucketed blob
// storage. Listings are returned in lexical name order; maxResults <= 0
// means unbounded.
type ObjectStore interface {
	// ListBuckets returns bucket names starting with prefix.
	ListBuckets(ctx context.Context, prefix string, maxResults int) ([]string, error)

	// ListObjects returns the objects in bucket whose names start with
	// prefix, or ErrBucketNotFound.
	ListObjects(ctx context.Context, bucket, prefix string, maxResults int) ([]Object, error)

	// ReadObject returns the raw bytes of one object. The corpus import
	// path uses this to pull document content.
	ReadObject(ctx context.Context, bucket, name string) ([]byte, error)
}
