package server

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func TestClientLimiters_PerAddress(t *testing.T) {
	l := newClientLimiters(rate.Every(time.Hour), 1)

	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
	assert.True(t, l.Allow("10.0.0.2"), "another client keeps its own budget")
}

func TestClientLimiters_IdleClientsAreSwept(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := newClientLimiters(rate.Every(time.Hour), 1)
	l.now = func() time.Time { return now }

	l.Allow("10.0.0.1")
	l.Allow("10.0.0.2")
	assert.Equal(t, 2, l.size())

	now = now.Add(2 * limiterIdle)
	assert.True(t, l.Allow("10.0.0.3"))
	assert.Equal(t, 1, l.size())
}

func TestClientAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.7:51234"
	assert.Equal(t, "192.0.2.7", clientAddr(r))

	r.RemoteAddr = "192.0.2.8"
	assert.Equal(t, "192.0.2.8", clientAddr(r))
}
