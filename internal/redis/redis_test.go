package redis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"meshgate/internal/resource"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHash struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func (f *fakeHash) len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.data)
}

func (f *fakeHash) HSet(_ context.Context, _ string, values ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i+1 < len(values); i += 2 {
		f.data[values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeHash) HGetAll(_ context.Context, _ string) *redis.MapStringStringCmd {
	if f.err != nil {
		return redis.NewMapStringStringResult(nil, f.err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.data))
	for k, v := range f.data {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func TestMirrorAndRestore(t *testing.T) {
	h := &fakeHash{data: map[string]string{}}
	c := NewStateCache(h, "")
	ctx := context.Background()

	require.NoError(t, c.Mirror(ctx, "/sensors/1/state/buttonevent", resource.Number(1002)))
	require.NoError(t, c.Mirror(ctx, "/sensors/2/state/presence", resource.Bool(true)))
	assert.Equal(t, "1002", h.data["/sensors/1/state/buttonevent"])
	h.data["/sensors/9/state/unknown"] = "1"
	h.data["/sensors/3/state/dark"] = "{"

	store := resource.NewStore(resource.NewRegistry())
	n, err := c.Restore(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	v, ok := store.Current("/sensors/2/state/presence")
	require.True(t, ok)
	assert.True(t, v.Bool())
}

func TestRestoreError(t *testing.T) {
	c := NewStateCache(&fakeHash{err: errors.New("connection refused")}, "k")
	_, err := c.Restore(context.Background(), resource.NewStore(resource.NewRegistry()))
	assert.ErrorContains(t, err, "connection refused")
}

func TestObserveRun(t *testing.T) {
	h := &fakeHash{data: map[string]string{}}
	c := NewStateCache(h, "")
	ctx, cancel := context.WithCancel(context.Background())
	c.Observe("/lights/1/state/on", resource.Bool(false))
	go c.Run(ctx)
	defer cancel()

	assert.Eventually(t, func() bool { return h.len() == 1 }, time.Second, 10*time.Millisecond)
}
