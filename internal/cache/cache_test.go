package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedPage struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// exerciseCache 两种实现共用的行为检查
func exerciseCache(t *testing.T, c Cache) {
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "key1", []byte("value1"), 0))
	val, found, err := c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("value1"), val)

	val, found, err = c.Get(ctx, "non-existent")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, val)

	require.NoError(t, c.Set(ctx, "to-delete", []byte("x"), 0))
	require.NoError(t, c.Delete(ctx, "to-delete"))
	_, found, err = c.Get(ctx, "to-delete")
	require.NoError(t, err)
	assert.False(t, found)

	page := cachedPage{Title: "Go", Body: "<p>gopher</p>"}
	require.NoError(t, SetJSON(ctx, c, Key("wiki", "en", "Go"), page, 0))
	var got cachedPage
	found, err = GetJSON(ctx, c, Key("wiki", "en", "Go"), &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, page, got)

	require.NoError(t, c.Set(ctx, "broken", []byte("{not json"), 0))
	found, err = GetJSON(ctx, c, "broken", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Clear(ctx))
	_, found, err = c.Get(ctx, "key1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCache(t *testing.T) {
	c, err := NewCache(Config{Type: TypeMemory, Prefix: "test", DefaultTTL: 2 * time.Second, CleanupInterval: time.Second})
	require.NoError(t, err)
	exerciseCache(t, c)

	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "expire-soon", []byte("tmp"), 50*time.Millisecond))
	time.Sleep(100 * time.Millisecond)
	_, found, err := c.Get(ctx, "expire-soon")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryCacheReturnsCopy(t *testing.T) {
	c, err := NewMemoryCache(DefaultConfig())
	require.NoError(t, err)
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value, 0))
	value[0] = 'z'

	got, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	got[1] = 'z'

	again, _, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewCache(Config{Type: TypeRedis, Prefix: "test", RedisAddr: mr.Addr(), DefaultTTL: time.Minute})
	require.NoError(t, err)
	exerciseCache(t, c)

	ctx := context.Background()
	mr.Set("other:key", "keep")
	require.NoError(t, c.Set(ctx, "mine", []byte("v"), 0))
	assert.True(t, mr.Exists("test:mine"))
	assert.Equal(t, time.Minute, mr.TTL("test:mine"))

	require.NoError(t, c.Clear(ctx))
	assert.False(t, mr.Exists("test:mine"))
	assert.True(t, mr.Exists("other:key"), "clear only touches the cache prefix")
}

func TestNewCacheErrors(t *testing.T) {
	_, err := NewCache(Config{Type: "memcached"})
	assert.Error(t, err)

	_, err = NewRedisCache(Config{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "wiki:en:Go", Key("wiki", "en", "Go"))
	assert.Equal(t, "wiki", Key("wiki"))
	assert.Equal(t, "en:Go", Key("", "en", " ", "Go"))
}
