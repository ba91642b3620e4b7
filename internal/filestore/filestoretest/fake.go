// Package filestoretest provides an in-memory filestore.BlobStore for tests.
package filestoretest

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/koustreak/omem/internal/filestore"
)

// Fake records every call and signs URLs of the form
// https://blob.test/<bucket>/<key>?method=…&ttl=…&ct=….
type Fake struct {
	mu      sync.Mutex
	signed  []filestore.SignRequest
	deleted []string

	// SignErr, DeleteErr and PingErr are returned by the matching call.
	// Set them at construction or through Fail* once the fake is shared.
	SignErr   error
	DeleteErr error
	PingErr   error
}

func (f *Fake) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PingErr
}

func (f *Fake) Close() error { return nil }

// FailDelete makes later Delete calls return err; nil restores success.
func (f *Fake) FailDelete(err error) {
	f.mu.Lock()
	f.DeleteErr = err
	f.mu.Unlock()
}

// FailPing makes later Ping calls return err.
func (f *Fake) FailPing(err error) {
	f.mu.Lock()
	f.PingErr = err
	f.mu.Unlock()
}

func (f *Fake) Sign(_ context.Context, req filestore.SignRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SignErr != nil {
		return "", f.SignErr
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	f.signed = append(f.signed, req)

	q := url.Values{}
	q.Set("method", string(req.Method))
	q.Set("ttl", req.TTL.String())
	if req.ContentType != "" {
		q.Set("ct", req.ContentType)
	}
	return fmt.Sprintf("https://blob.test/%s/%s?%s", req.Bucket, req.Key, q.Encode()), nil
}

func (f *Fake) Delete(_ context.Context, bucket, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	f.deleted = append(f.deleted, bucket+"/"+key)
	return nil
}

// Signed returns a copy of every sign request seen so far.
func (f *Fake) Signed() []filestore.SignRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]filestore.SignRequest(nil), f.signed...)
}

// LastSigned returns the most recent sign request.
func (f *Fake) LastSigned() filestore.SignRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.signed) == 0 {
		return filestore.SignRequest{}
	}
	return f.signed[len(f.signed)-1]
}

// Deleted returns every "<bucket>/<key>" removed so far.
func (f *Fake) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}
