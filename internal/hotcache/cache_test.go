package hotcache

import (
	"context"
	"testing"
	"time"

	"lnbroker/internal/intent"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *HotCache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client)
}

func TestHotCache_PutGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	in := &intent.PaymentIntent{PaymentHash: "hash-1", TotalAmountSat: 1000, Status: intent.StatusPending}
	c.Put(ctx, in, 15*time.Minute)

	got := c.Get(ctx, "hash-1")
	require.NotNil(t, got)
	assert.Equal(t, int64(1000), got.TotalAmountSat)
	assert.Equal(t, intent.StatusPending, got.Status)
}

func TestHotCache_GetMiss(t *testing.T) {
	c := newTestCache(t)
	got := c.Get(context.Background(), "missing")
	assert.Nil(t, got)
}

func TestHotCache_Delete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Put(ctx, &intent.PaymentIntent{PaymentHash: "hash-2"}, time.Minute)
	c.Delete(ctx, "hash-2")
	assert.Nil(t, c.Get(ctx, "hash-2"))
}

func TestHotCache_DeleteMany(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.Put(ctx, &intent.PaymentIntent{PaymentHash: "hash-3"}, time.Minute)
	c.Put(ctx, &intent.PaymentIntent{PaymentHash: "hash-4"}, time.Minute)

	c.DeleteMany(ctx, []string{"hash-3", "hash-4"})

	assert.Nil(t, c.Get(ctx, "hash-3"))
	assert.Nil(t, c.Get(ctx, "hash-4"))
}

func TestHotCache_DeleteManyEmpty(t *testing.T) {
	c := newTestCache(t)
	c.DeleteMany(context.Background(), nil)
}

func TestHotCache_Expiry(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	c := New(client)

	ctx := context.Background()
	c.Put(ctx, &intent.PaymentIntent{PaymentHash: "hash-5"}, time.Second)
	mr.FastForward(2 * time.Second)

	assert.Nil(t, c.Get(ctx, "hash-5"))
}
