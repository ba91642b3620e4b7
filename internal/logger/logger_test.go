package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestNew(t *testing.T) {
	tests := []struct {
		name   string
		config *Config
	}{
		{name: "default config", config: nil},
		{name: "json", config: &Config{Level: "debug", Format: "json", Output: io.Discard}},
		{name: "console", config: &Config{Level: "info", Format: "console", Output: io.Discard}},
		{name: "unknown level", config: &Config{Level: "chatty", Output: io.Discard}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, New(tt.config))
		})
	}
}

func TestLogger_JSONOutputCarriesService(t *testing.T) {
	buf := &bytes.Buffer{}
	New(&Config{Level: "info", Format: "json", Service: "omemd", Output: buf}).Info("started")

	entry := decodeLine(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "started", entry["message"])
	assert.Equal(t, "omemd", entry["service"])
	assert.NotEmpty(t, entry["time"])
}

func TestLogger_ChildFields(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Output: buf})

	l.With().
		Str("correlation_key", "T-1").
		Int("attempt", 2).
		Logger().
		Info("registering")

	entry := decodeLine(t, buf)
	assert.Equal(t, "T-1", entry["correlation_key"])
	assert.Equal(t, float64(2), entry["attempt"])
	assert.NotContains(t, entry, "service")
}

func TestLogger_SecretIsRedacted(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "info", Output: buf})

	l.With().Secret("access_token", "3f2b9c1e-aaaa-bbbb").Logger().Info("actor registered")

	assert.NotContains(t, buf.String(), "3f2b9c1e-aaaa-bbbb")
	assert.Equal(t, "3f2b****", decodeLine(t, buf)["access_token"])
}

func TestRedact(t *testing.T) {
	assert.Equal(t, "", Redact(""))
	assert.Equal(t, "***", Redact("abc"))
	assert.Equal(t, "****", Redact("abcd"))
	assert.Equal(t, "abcd****", Redact("abcde"))
}

func TestLogger_ErrorWithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	l := New(&Config{Level: "error", Output: buf})

	l.ErrorWith("issue capability", errors.New("presign failed"), Fields{
		"correlation_key": "T-1",
		"tag":             "LOGO",
	})

	entry := decodeLine(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "presign failed", entry["error"])
	assert.Equal(t, "LOGO", entry["tag"])
}

func TestLogger_LevelsAreIndependent(t *testing.T) {
	quiet := &bytes.Buffer{}
	loud := &bytes.Buffer{}
	q := New(&Config{Level: "error", Output: quiet})
	l := New(&Config{Level: "debug", Output: loud})

	q.Info("dropped")
	q.WarnWith("dropped too", errors.New("x"), nil)
	l.Debug("kept")

	assert.Empty(t, quiet.String())
	assert.Contains(t, loud.String(), "kept")

	q.Error("kept")
	assert.Contains(t, quiet.String(), "kept")
}

func TestFromContext(t *testing.T) {
	t.Run("stored logger", func(t *testing.T) {
		buf := &bytes.Buffer{}
		ctx := New(&Config{Output: buf}).WithContext(context.Background())

		FromContext(ctx).Info("from context")
		assert.Equal(t, "from context", decodeLine(t, buf)["message"])
	})

	t.Run("falls back to global", func(t *testing.T) {
		buf := &bytes.Buffer{}
		SetGlobal(New(&Config{Output: buf}))
		t.Cleanup(func() { SetGlobal(New(&Config{Output: io.Discard})) })

		FromContext(context.Background()).Info("no logger in ctx")
		assert.Contains(t, buf.String(), "no logger in ctx")
	})
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().ErrorWith("dropped", errors.New("x"), Fields{"k": 1})
	})
}

func BenchmarkLogger_InfoWith(b *testing.B) {
	l := New(&Config{Level: "info", Output: io.Discard})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		l.InfoWith("write confirmed", Fields{"tag": "LOGO", "created": i%2 == 0})
	}
}
