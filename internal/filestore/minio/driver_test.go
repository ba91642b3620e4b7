package minio

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/koustreak/omem/internal/errs"
	"github.com/koustreak/omem/internal/filestore"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// With a region configured, presigning is purely local.
func offlineDriver(t *testing.T) *Driver {
	t.Helper()
	d, err := newDriver(filestore.DefaultConfig("localhost:9000", "minioadmin", "minioadmin"))
	require.NoError(t, err)
	return d
}

func TestSign_Get(t *testing.T) {
	d := offlineDriver(t)

	raw, err := d.Sign(context.Background(), filestore.SignRequest{
		Bucket: "omem-public",
		Key:    "pharmacy/aB3dE9/LOGO",
		Method: filestore.MethodGet,
		TTL:    30 * time.Minute,
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.Equal(t, "/omem-public/pharmacy/aB3dE9/LOGO", u.Path)
	assert.Equal(t, "1800", u.Query().Get("X-Amz-Expires"))
	assert.Equal(t, "host", u.Query().Get("X-Amz-SignedHeaders"))
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
}

func TestSign_PutBindsContentType(t *testing.T) {
	d := offlineDriver(t)

	raw, err := d.Sign(context.Background(), filestore.SignRequest{
		Bucket:      "omem-private",
		Key:         "pharmacy/aB3dE9/TEAM_BILD",
		Method:      filestore.MethodPut,
		TTL:         15 * time.Minute,
		ContentType: "image/png",
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/omem-private/pharmacy/aB3dE9/TEAM_BILD", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))
	assert.Contains(t, u.Query().Get("X-Amz-SignedHeaders"), "content-type")
}

func TestSign_RejectsInvalidRequest(t *testing.T) {
	d := offlineDriver(t)

	_, err := d.Sign(context.Background(), filestore.SignRequest{
		Bucket: "omem-public",
		Key:    "pharmacy/aB3dE9/LOGO",
		Method: filestore.MethodGet,
	})
	assert.True(t, errs.IsInvalidInput(err))
}

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{"deadline", context.DeadlineExceeded, errs.ErrKindTimeout},
		{"no such key", miniogo.ErrorResponse{Code: "NoSuchKey"}, errs.ErrKindNotFound},
		{"access denied", miniogo.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, errs.ErrKindPermissionDenied},
		{"status only", miniogo.ErrorResponse{StatusCode: http.StatusNotFound}, errs.ErrKindNotFound},
		{"server error", miniogo.ErrorResponse{Code: "InternalError", StatusCode: http.StatusInternalServerError}, errs.ErrKindQueryFailed},
		{"network", errors.New("dial tcp: connection refused"), errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapError(tt.err, "op").Kind)
		})
	}
}
