package orm

import (
	"context"
	"time"

	"github.com/google/uuid"

	"colorm/logging"
)

// Consistency 一致性提示，由存储适配器自行解释，核心只负责透传。
type Consistency string

const (
	ConsistencyDefault Consistency = ""
	ConsistencyOne     Consistency = "ONE"
	ConsistencyQuorum  Consistency = "QUORUM"
	ConsistencyAll     Consistency = "ALL"
)

// Keyed 可直接给出主键的实体（托管句柄实现此接口）
type Keyed interface {
	PrimaryKey() any
}

// Unwrapper 可给出底层普通实例的实体（托管句柄实现此接口）
type Unwrapper interface {
	Target() any
}

// Context 单次操作的执行句柄。
//
// 核心只透传它，不解释其中的一致性与 TTL 提示；取消与超时来自内嵌的 context.Context。
type Context struct {
	context.Context

	operationID string
	meta        *EntityMeta
	entity      any
	consistency Consistency
	ttl         time.Duration
	logger      logging.Logger
}

// ContextOption Context 构造选项
type ContextOption func(*Context)

// WithConsistency 设置一致性提示
func WithConsistency(c Consistency) ContextOption {
	return func(oc *Context) { oc.consistency = c }
}

// WithTTL 设置写入 TTL 提示
func WithTTL(ttl time.Duration) ContextOption {
	return func(oc *Context) { oc.ttl = ttl }
}

// WithLogger 设置日志器
func WithLogger(l logging.Logger) ContextOption {
	return func(oc *Context) {
		if l != nil {
			oc.logger = l
		}
	}
}

// WithOperationID 指定操作 ID（默认随机生成）
func WithOperationID(id string) ContextOption {
	return func(oc *Context) {
		if id != "" {
			oc.operationID = id
		}
	}
}

// NewContext 为实体创建操作上下文；ctx 为 nil 时使用 context.Background
func NewContext(ctx context.Context, meta *EntityMeta, entity any, opts ...ContextOption) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	oc := &Context{
		Context:     ctx,
		operationID: uuid.NewString(),
		meta:        meta,
		entity:      entity,
		logger:      logging.GetLogger(),
	}
	for _, opt := range opts {
		opt(oc)
	}
	return oc
}

// ForEntity 派生用于级联实体的上下文：保留操作 ID 与提示，替换元数据与实体
func (c *Context) ForEntity(meta *EntityMeta, entity any) *Context {
	cp := *c
	cp.meta = meta
	cp.entity = entity
	return &cp
}

// WithEntity 替换实体，元数据不变
func (c *Context) WithEntity(entity any) *Context {
	return c.ForEntity(c.meta, entity)
}

func (c *Context) OperationID() string      { return c.operationID }
func (c *Context) Meta() *EntityMeta        { return c.meta }
func (c *Context) Entity() any              { return c.entity }
func (c *Context) Consistency() Consistency { return c.consistency }
func (c *Context) TTL() time.Duration       { return c.ttl }
func (c *Context) Logger() logging.Logger   { return c.logger }
func (c *Context) Std() context.Context     { return c.Context }

// Target 上下文实体的底层普通实例
func (c *Context) Target() any {
	if u, ok := c.entity.(Unwrapper); ok {
		return u.Target()
	}
	return c.entity
}

// PrimaryKey 先询问托管实体，再通过元数据解析
func (c *Context) PrimaryKey() (any, error) {
	if k, ok := c.entity.(Keyed); ok {
		if pk := k.PrimaryKey(); pk != nil {
			return pk, nil
		}
	}
	if c.meta == nil {
		return nil, Validationf("context has no entity metadata")
	}
	return c.meta.PrimaryKeyOf(c.Target())
}

// Fields 用于日志的上下文字段
func (c *Context) Fields() []logging.Field {
	fields := []logging.Field{logging.String("operation_id", c.operationID)}
	if c.meta != nil {
		fields = append(fields, logging.String("entity", c.meta.Name))
	}
	return fields
}
