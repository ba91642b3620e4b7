// Package filestore defines the blob store contract omem signs capabilities against.
//
// All providers (MinIO, S3, …) implement the BlobStore interface.
// Callers depend only on this package, never on a specific provider package.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
//
//	url, err := store.Sign(ctx, filestore.SignRequest{
//	    Bucket: "omem-public",
//	    Key:    "pharmacy/aB3dE9/LOGO",
//	    Method: filestore.MethodPut,
//	    TTL:    15 * time.Minute,
//	    ContentType: "image/png",
//	})
package filestore

import (
	"context"
	"fmt"
	"time"

	"github.com/koustreak/omem/internal/errs"
)

// Method is the HTTP verb a signed URL is scoped to.
type Method string

const (
	MethodGet Method = "GET"
	MethodPut Method = "PUT"
)

// Signature V4 URLs are valid for at most seven days.
const (
	MinSignTTL = time.Second
	MaxSignTTL = 7 * 24 * time.Hour
)

// SignRequest describes one signed URL.
type SignRequest struct {
	Bucket string
	Key    string
	Method Method
	TTL    time.Duration

	// ContentType, when set on a PUT, is bound into the signature so the
	// upload is only accepted with a matching Content-Type header.
	ContentType string
}

// Validate checks the request before it reaches a provider.
func (r SignRequest) Validate() error {
	if r.Bucket == "" || r.Key == "" {
		return errs.New(errs.ErrKindInvalidInput, "bucket and key are required")
	}
	if r.Method != MethodGet && r.Method != MethodPut {
		return errs.Newf(errs.ErrKindInvalidInput, "unsupported sign method %q", r.Method)
	}
	if r.TTL < MinSignTTL || r.TTL > MaxSignTTL {
		return errs.Newf(errs.ErrKindInvalidInput, "sign ttl %s outside [%s, %s]", r.TTL, MinSignTTL, MaxSignTTL)
	}
	return nil
}

func (r SignRequest) String() string {
	return fmt.Sprintf("%s %s/%s (%s)", r.Method, r.Bucket, r.Key, r.TTL)
}

// BlobStore is the single interface all file storage providers must implement.
type BlobStore interface {
	// Ping verifies the storage backend is reachable.
	Ping(ctx context.Context) error

	// Close releases any held resources (connections, goroutines, etc.).
	Close() error

	// Sign returns a time-limited URL granting req.Method on one object
	// without further credentials.
	Sign(ctx context.Context, req SignRequest) (string, error)

	// Delete removes the object at key inside bucket.
	Delete(ctx context.Context, bucket, key string) error
}
