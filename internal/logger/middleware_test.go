package logger

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Format: "json", Output: buf})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(Middleware(l))
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside handler")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("pong"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	dec := json.NewDecoder(buf)
	var inner, access map[string]interface{}
	require.NoError(t, dec.Decode(&inner))
	require.NoError(t, dec.Decode(&access))

	assert.Equal(t, "inside handler", inner["message"])
	assert.Equal(t, "/ping", inner["path"])
	assert.NotEmpty(t, inner["request_id"])

	assert.Equal(t, "request", access["message"])
	assert.Equal(t, float64(http.StatusTeapot), access["status"])
	assert.Equal(t, float64(4), access["bytes"])
	assert.Equal(t, inner["request_id"], access["request_id"])
}
