package rediscounter

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorm/data/orm"
	"colorm/data/orm/lifecycle"
	"colorm/data/orm/ormtest"
	"colorm/data/orm/schema"
	"colorm/logging"
)

// memClient 内存版的计数命令
type memClient struct {
	mu   sync.Mutex
	vals map[string]int64
	ttls map[string]time.Duration
	fail error
}

func newMemClient() *memClient {
	return &memClient{vals: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *memClient) Get(ctx context.Context, key string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return redis.NewStringResult("", m.fail)
	}
	v, ok := m.vals[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(strconv.FormatInt(v, 10), nil)
}

func (m *memClient) SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return redis.NewBoolResult(false, m.fail)
	}
	if _, ok := m.vals[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	m.vals[key] = value.(int64)
	m.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (m *memClient) IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vals[key] += value
	return redis.NewIntResult(m.vals[key], nil)
}

func (m *memClient) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		if _, ok := m.vals[k]; ok {
			delete(m.vals, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func setup(t *testing.T) (*Builder, *memClient, *orm.EntityMeta, *orm.PropertyMeta) {
	t.Helper()
	mc := newMemClient()
	b := newBuilder(mc, WithPrefix("t:"), WithLogger(logging.NewNoopLogger()))
	meta, err := schema.NewRegistry().MetaFor(&ormtest.User{})
	require.NoError(t, err)
	visits, _ := meta.Property("Visits")
	return b, mc, meta, visits
}

// TestBuilder_Key 键由前缀、表名、列名与主键组成
func TestBuilder_Key(t *testing.T) {
	b, _, meta, visits := setup(t)
	k, err := b.Key(meta, int64(7), visits)
	require.NoError(t, err)
	assert.Equal(t, "t:users:visits:7", k)

	_, err = b.Key(meta, nil, visits)
	assert.True(t, errors.Is(err, orm.ErrValidation))
}

// TestCounter_Incr 首次访问以当前值为初值，TTL 取自上下文
func TestCounter_Incr(t *testing.T) {
	b, mc, meta, visits := setup(t)
	ctx := orm.NewContext(context.Background(), meta, &ormtest.User{ID: 7}, orm.WithTTL(time.Minute))

	c, err := b.Counter(ctx, int64(7), visits, 10)
	require.NoError(t, err)
	v, err := c.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(10), v)

	v, err = c.Incr(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), v)
	v, err = c.Decr(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)
	assert.Equal(t, time.Minute, mc.ttls["t:users:visits:7"])

	// 已有值时初值不再生效
	again, err := b.Counter(ctx, int64(7), visits, 0)
	require.NoError(t, err)
	v, err = again.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(12), v)
}

// TestCounter_Errors 非计数器属性、宽表与 Redis 失败
func TestCounter_Errors(t *testing.T) {
	b, mc, meta, visits := setup(t)
	ctx := orm.NewContext(context.Background(), meta, &ormtest.User{ID: 7})

	_, err := b.Counter(ctx, int64(7), meta.ID, 0)
	assert.True(t, errors.Is(err, orm.ErrValidation))
	_, err = b.WideMap(ctx, int64(7), visits)
	assert.True(t, errors.Is(err, orm.ErrUnsupported))

	mc.fail = errors.New("conn refused")
	c, err := b.Counter(ctx, int64(7), visits, 0)
	require.NoError(t, err)
	_, err = c.Get(ctx)
	assert.Error(t, err)
	_, err = c.Incr(ctx, 1)
	assert.Error(t, err)
}

// TestBuilder_OnEvent 删除后清理计数器，其他事件忽略
func TestBuilder_OnEvent(t *testing.T) {
	b, mc, meta, visits := setup(t)
	ctx := orm.NewContext(context.Background(), meta, &ormtest.User{ID: 7})
	c, err := b.Counter(ctx, int64(7), visits, 1)
	require.NoError(t, err)
	_, err = c.Incr(ctx, 1)
	require.NoError(t, err)

	require.NoError(t, b.OnEvent(ctx, lifecycle.PostLoad))
	assert.Len(t, mc.vals, 1)
	require.NoError(t, b.OnEvent(ctx, lifecycle.PostRemove))
	assert.Empty(t, mc.vals)
}
