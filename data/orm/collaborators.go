package orm

import (
	"reflect"
)

// MetaProvider 元数据提供者：代理构建前元数据必须已完全解析，且不会在活跃代理下变化。
type MetaProvider interface {
	MetaOf(t reflect.Type) (*EntityMeta, error)
}

// Loader 读取协作者
type Loader interface {
	// Load 按 ctx 中的主键加载一个全新的实例（*T）；记录不存在返回 ErrNotFound
	Load(ctx *Context, meta *EntityMeta) (any, error)
	// LoadProperty 直接写入 target 的底层字段，不经过代理分派
	LoadProperty(ctx *Context, target any, key any, prop *PropertyMeta) error
}

// Persister 写入协作者。多值类别的"先删后写"策略由实现方负责。
type Persister interface {
	// Persist 整体写入新实体（ctx.Target()）
	Persist(ctx *Context) error
	// PersistProperty 增量写入单个属性，value 已解除代理
	PersistProperty(ctx *Context, key any, prop *PropertyMeta, value any) error
	// Remove 删除 ctx 对应的实体
	Remove(ctx *Context) error
}

// Counter 计数器句柄，计数器属性只能通过它修改
type Counter interface {
	Get(ctx *Context) (int64, error)
	Incr(ctx *Context, delta int64) (int64, error)
	Decr(ctx *Context, delta int64) (int64, error)
}

// WideEntry 宽表中的一项
type WideEntry struct {
	Key   string
	Value []byte
}

// WideMap 宽表句柄，宽表属性只能通过它修改
type WideMap interface {
	Get(ctx *Context, key string) ([]byte, bool, error)
	Put(ctx *Context, key string, value []byte) error
	Remove(ctx *Context, key string) error
	// Range 按键升序返回最多 limit 项；limit<=0 表示不限
	Range(ctx *Context, from string, limit int) ([]WideEntry, error)
}

// HandleBuilder 计数器/宽表句柄构建者
type HandleBuilder interface {
	// Counter current 为 target 字段中当前缓存的计数
	Counter(ctx *Context, key any, prop *PropertyMeta, current int64) (Counter, error)
	WideMap(ctx *Context, key any, prop *PropertyMeta) (WideMap, error)
}

// CombinedHandles 计数器与宽表分别交给不同的构建者
type CombinedHandles struct {
	Counters HandleBuilder
	WideMaps HandleBuilder
}

func (c CombinedHandles) Counter(ctx *Context, key any, prop *PropertyMeta, current int64) (Counter, error) {
	if c.Counters == nil {
		return nil, ErrUnsupported.WithContext("capability", string(CapabilityCounter))
	}
	return c.Counters.Counter(ctx, key, prop, current)
}

func (c CombinedHandles) WideMap(ctx *Context, key any, prop *PropertyMeta) (WideMap, error) {
	if c.WideMaps == nil {
		return nil, ErrUnsupported.WithContext("capability", string(CapabilityWideMap))
	}
	return c.WideMaps.WideMap(ctx, key, prop)
}

// Store 完整的存储适配器
type Store interface {
	Loader
	Persister
	Capabilities() Capabilities
}
