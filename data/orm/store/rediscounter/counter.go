// Package rediscounter 把计数器属性放到 Redis：键为 <prefix><table>:<column>:<key>，
// 首次访问以实体字段中的值为初值，之后的修改全部通过 INCRBY 完成。
package rediscounter

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"colorm/config"
	"colorm/data/orm"
	"colorm/data/orm/lifecycle"
	appErrors "colorm/errors"
	"colorm/logging"
)

// client go-redis 中用到的命令子集，便于测试替换
type client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	IncrBy(ctx context.Context, key string, value int64) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var (
	_ orm.HandleBuilder     = (*Builder)(nil)
	_ lifecycle.Interceptor = (*Builder)(nil)
)

// Builder 计数器句柄构建者；同时作为生命周期钩子在实体删除后清理计数器
type Builder struct {
	client client
	closer func() error
	prefix string
	logger logging.Logger
}

// Option Builder 选项
type Option func(*Builder)

// WithPrefix 键前缀
func WithPrefix(prefix string) Option {
	return func(b *Builder) { b.prefix = prefix }
}

// WithLogger 日志器
func WithLogger(l logging.Logger) Option {
	return func(b *Builder) {
		if l != nil {
			b.logger = l
		}
	}
}

// New 使用已有客户端
func New(c redis.Cmdable, opts ...Option) *Builder {
	return newBuilder(c, opts...)
}

func newBuilder(c client, opts ...Option) *Builder {
	b := &Builder{
		client: c,
		prefix: config.Default().Redis.KeyPrefix,
		logger: logging.Component("orm.rediscounter"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open 按配置创建客户端并 Ping
func Open(ctx context.Context, cfg config.RedisConfig, opts ...Option) (*Builder, error) {
	rc := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, appErrors.WrapError(err, appErrors.ErrCodeCache, "rediscounter: ping "+cfg.Addr)
	}
	opts = append([]Option{WithPrefix(cfg.KeyPrefix)}, opts...)
	b := newBuilder(rc, opts...)
	b.closer = rc.Close
	return b, nil
}

// Close 关闭 Open 创建的客户端
func (b *Builder) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer()
}

// Key 计数器的 Redis 键；复合主键各列以 ":" 连接
func (b *Builder) Key(meta *orm.EntityMeta, key any, prop *orm.PropertyMeta) (string, error) {
	vals, err := meta.KeyValues(key)
	if err != nil {
		return "", err
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	return b.prefix + meta.Table + ":" + prop.Column + ":" + strings.Join(parts, ":"), nil
}

// Counter 返回 Redis 计数器句柄
func (b *Builder) Counter(ctx *orm.Context, key any, prop *orm.PropertyMeta, current int64) (orm.Counter, error) {
	if prop.Kind != orm.KindCounter {
		return nil, orm.Validationf("rediscounter: property %s is not a counter", prop.Name)
	}
	k, err := b.Key(ctx.Meta(), key, prop)
	if err != nil {
		return nil, err
	}
	return &counter{builder: b, key: k, seed: current}, nil
}

// WideMap Redis 计数器不提供宽表
func (b *Builder) WideMap(ctx *orm.Context, key any, prop *orm.PropertyMeta) (orm.WideMap, error) {
	return nil, orm.ErrUnsupported.WithContext("capability", string(orm.CapabilityWideMap))
}

// OnEvent 实体删除后清除其全部计数器
func (b *Builder) OnEvent(ctx *orm.Context, event lifecycle.Event) error {
	if event != lifecycle.PostRemove {
		return nil
	}
	meta := ctx.Meta()
	pk, err := ctx.PrimaryKey()
	if err != nil {
		return err
	}
	var keys []string
	for _, p := range meta.Properties {
		if p.Kind != orm.KindCounter {
			continue
		}
		k, err := b.Key(meta, pk, p)
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := b.client.Del(ctx, keys...).Err(); err != nil {
		return b.cacheError(err, "del")
	}
	b.logger.Debug(ctx, "counters removed", append(ctx.Fields(), logging.Int("count", len(keys)))...)
	return nil
}

func (b *Builder) cacheError(err error, op string) error {
	return appErrors.WrapError(err, appErrors.ErrCodeCache, "rediscounter: "+op)
}

type counter struct {
	builder *Builder
	key     string
	seed    int64
}

func (c *counter) Get(ctx *orm.Context) (int64, error) {
	v, err := c.builder.client.Get(ctx, c.key).Int64()
	if stdErrors.Is(err, redis.Nil) {
		return c.seed, nil
	}
	if err != nil {
		return 0, c.builder.cacheError(err, "get "+c.key)
	}
	return v, nil
}

// Incr 先 SETNX 写入初值，再 INCRBY；上下文 TTL 作为键的过期时间
func (c *counter) Incr(ctx *orm.Context, delta int64) (int64, error) {
	if err := c.builder.client.SetNX(ctx, c.key, c.seed, ctx.TTL()).Err(); err != nil {
		return 0, c.builder.cacheError(err, "setnx "+c.key)
	}
	v, err := c.builder.client.IncrBy(ctx, c.key, delta).Result()
	if err != nil {
		return 0, c.builder.cacheError(err, "incrby "+c.key)
	}
	return v, nil
}

func (c *counter) Decr(ctx *orm.Context, delta int64) (int64, error) {
	return c.Incr(ctx, -delta)
}
