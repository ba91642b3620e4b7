// Package minio provides a MinIO implementation of filestore.BlobStore.
// It also serves any S3-compatible endpoint that speaks Signature V4,
// including GCS in interoperability mode.
//
// Usage:
//
//	cfg := filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin")
//	store, err := minio.New(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close()
package minio

import (
	"context"
	"net/http"

	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Driver is a MinIO implementation of filestore.BlobStore.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	client *miniogo.Client
}

// New connects to MinIO using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg *filestore.Config) (*Driver, error) {
	d, err := newDriver(cfg)
	if err != nil {
		return nil, err
	}

	if err := d.Ping(ctx); err != nil {
		return nil, err
	}

	return d, nil
}

// newDriver builds the client without touching the network.
func newDriver(cfg *filestore.Config) (*Driver, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindConnectionFailed, "failed to create minio client", err)
	}
	return &Driver{client: client}, nil
}

// --- filestore.BlobStore implementation ---

// Ping verifies the MinIO server is reachable by listing buckets.
func (d *Driver) Ping(ctx context.Context) error {
	_, err := d.client.ListBuckets(ctx)
	if err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close is a no-op for MinIO; the SDK client holds no persistent connections.
func (d *Driver) Close() error {
	return nil
}

// Sign presigns req locally. PUT requests with a content type carry it as
// a signed header.
func (d *Driver) Sign(ctx context.Context, req filestore.SignRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	switch req.Method {
	case filestore.MethodGet:
		u, err := d.client.PresignedGetObject(ctx, req.Bucket, req.Key, req.TTL, nil)
		if err != nil {
			return "", mapError(err, "presign get failed")
		}
		return u.String(), nil

	default:
		var headers http.Header
		if req.ContentType != "" {
			headers = http.Header{}
			headers.Set("Content-Type", req.ContentType)
		}
		u, err := d.client.PresignHeader(ctx, http.MethodPut, req.Bucket, req.Key, req.TTL, nil, headers)
		if err != nil {
			return "", mapError(err, "presign put failed")
		}
		return u.String(), nil
	}
}

// Delete removes the object at key inside bucket.
func (d *Driver) Delete(ctx context.Context, bucket, key string) error {
	if err := d.client.RemoveObject(ctx, bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return mapError(err, "failed to delete object")
	}
	return nil
}
