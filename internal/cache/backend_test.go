package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	_, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, "k", []byte("v"), 0))
	got, ok, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v"), got)

	require.NoError(t, m.Delete(ctx, "k", "missing"))
	_, ok, _ = m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemory_TTL(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }

	require.NoError(t, m.Set(ctx, "short", []byte("1"), time.Minute))
	require.NoError(t, m.Set(ctx, "forever", []byte("2"), 0))

	clock = clock.Add(59 * time.Second)
	_, ok, _ := m.Get(ctx, "short")
	assert.True(t, ok)

	clock = clock.Add(time.Second)
	_, ok, _ = m.Get(ctx, "short")
	assert.False(t, ok, "entry expires exactly at its deadline")
	assert.Equal(t, 1, m.Len())

	_, ok, _ = m.Get(ctx, "forever")
	assert.True(t, ok)
}

func TestMemory_StoresACopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf, 0))
	buf[0] = 'x'

	got, _, _ := m.Get(ctx, "k")
	assert.Equal(t, []byte("abc"), got)
}

func TestRedis_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	srv := miniredis.RunT(t)

	r, err := OpenRedis(ctx, srv.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	_, ok, err := r.Get(ctx, "entries:TID-001")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "entries:TID-001", []byte(`{"LOGO":"u"}`), time.Minute))
	assert.True(t, srv.Exists("omem:entries:TID-001"), "keys are namespaced")

	got, ok, err := r.Get(ctx, "entries:TID-001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"LOGO":"u"}`, string(got))

	srv.FastForward(time.Minute)
	_, ok, err = r.Get(ctx, "entries:TID-001")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, r.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, r.Set(ctx, "b", []byte("2"), 0))
	require.NoError(t, r.Delete(ctx, "a", "b", "c"))
	assert.False(t, srv.Exists("omem:a"))
	assert.False(t, srv.Exists("omem:b"))
}

func TestIncr(t *testing.T) {
	ctx := context.Background()
	r, err := OpenRedis(ctx, miniredis.RunT(t).Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })

	for name, b := range map[string]Backend{"memory": NewMemory(), "redis": r} {
		t.Run(name, func(t *testing.T) {
			n, err := b.Incr(ctx, "gen:list:pharmacy")
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			n, err = b.Incr(ctx, "gen:list:pharmacy")
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			raw, ok, err := b.Get(ctx, "gen:list:pharmacy")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "2", string(raw))

			require.NoError(t, b.Set(ctx, "not-a-counter", []byte("{}"), 0))
			_, err = b.Incr(ctx, "not-a-counter")
			assert.Error(t, err)
		})
	}
}

func TestOpenRedis_Unreachable(t *testing.T) {
	_, err := OpenRedis(context.Background(), "127.0.0.1:1", "", 0)
	assert.Error(t, err)
}

func TestOpen_DefaultsToMemory(t *testing.T) {
	b, err := Open(context.Background(), DefaultConfig())
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, b)
}
