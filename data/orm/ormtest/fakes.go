package ormtest

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"colorm/data/orm"
)

// PropertyCall 一次属性级调用记录
type PropertyCall struct {
	Entity   string
	Key      any
	Property string
	Value    any
}

// Loader 记录调用的读取替身。
//
// Rows 以 "实体名/主键" 为键保存 Load 返回的实例；Values 以 "实体名/主键/属性名" 为键保存延迟属性的值。
type Loader struct {
	mu        sync.Mutex
	Rows      map[string]any
	Values    map[string]any
	Err       error
	Loads     []string
	PropCalls []PropertyCall
}

// NewLoader 创建空的读取替身
func NewLoader() *Loader {
	return &Loader{Rows: make(map[string]any), Values: make(map[string]any)}
}

// RowKey 行键
func RowKey(entity string, key any) string {
	return fmt.Sprintf("%s/%v", entity, key)
}

// PutRow 登记 Load 返回的实例
func (l *Loader) PutRow(entity string, key any, row any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Rows[RowKey(entity, key)] = row
}

// PutValue 登记延迟属性的值
func (l *Loader) PutValue(entity string, key any, property string, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Values[RowKey(entity, key)+"/"+property] = v
}

func (l *Loader) Load(ctx *orm.Context, meta *orm.EntityMeta) (any, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	pk, err := ctx.PrimaryKey()
	if err != nil {
		return nil, err
	}
	k := RowKey(meta.Name, pk)
	l.Loads = append(l.Loads, k)
	row, ok := l.Rows[k]
	if !ok {
		return nil, orm.ErrNotFound
	}
	return row, nil
}

func (l *Loader) LoadProperty(ctx *orm.Context, target any, key any, prop *orm.PropertyMeta) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	name := entityName(ctx)
	l.PropCalls = append(l.PropCalls, PropertyCall{Entity: name, Key: key, Property: prop.Name})
	if l.Err != nil {
		return l.Err
	}
	if v, ok := l.Values[RowKey(name, key)+"/"+prop.Name]; ok {
		return prop.Assign(target, v)
	}
	return nil
}

// PropertyLoads 某属性被延迟加载的次数
func (l *Loader) PropertyLoads(property string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.PropCalls {
		if c.Property == property {
			n++
		}
	}
	return n
}

// Persister 记录调用的写入替身
type Persister struct {
	mu sync.Mutex
	// FailOn 写入这些属性名，或 "persist:<实体名>"、"remove:<实体名>" 时返回 Err
	FailOn    map[string]bool
	Err       error
	Persisted []any
	Writes    []PropertyCall
	Removes   []string
}

// NewPersister 创建写入替身
func NewPersister() *Persister {
	return &Persister{FailOn: make(map[string]bool), Err: fmt.Errorf("write failed")}
}

func (p *Persister) fail(key string) error {
	if p.FailOn[key] {
		return p.Err
	}
	return nil
}

func entityName(ctx *orm.Context) string {
	if ctx == nil || ctx.Meta() == nil {
		return ""
	}
	return ctx.Meta().Name
}

func (p *Persister) Persist(ctx *orm.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail("persist:" + entityName(ctx)); err != nil {
		return err
	}
	p.Persisted = append(p.Persisted, ctx.Target())
	return nil
}

func (p *Persister) PersistProperty(ctx *orm.Context, key any, prop *orm.PropertyMeta, value any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail(prop.Name); err != nil {
		return err
	}
	p.Writes = append(p.Writes, PropertyCall{Entity: entityName(ctx), Key: key, Property: prop.Name, Value: value})
	return nil
}

func (p *Persister) Remove(ctx *orm.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pk, err := ctx.PrimaryKey()
	if err != nil {
		return err
	}
	name := entityName(ctx)
	if err := p.fail("remove:" + name); err != nil {
		return err
	}
	p.Removes = append(p.Removes, RowKey(name, pk))
	return nil
}

// PersistCalls 整体写入次数
func (p *Persister) PersistCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Persisted)
}

// WrittenProperties 已写入的属性名（按调用顺序）
func (p *Persister) WrittenProperties() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.Writes))
	for i, w := range p.Writes {
		out[i] = w.Property
	}
	return out
}

// Reset 清空调用记录
func (p *Persister) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Persisted = nil
	p.Writes = nil
	p.Removes = nil
}

// Store 组合读取与写入替身，满足 orm.Store
type Store struct {
	*Loader
	*Persister
	Caps orm.Capabilities
}

// NewStore 创建支持全部能力的存储替身
func NewStore() *Store {
	return &Store{
		Loader:    NewLoader(),
		Persister: NewPersister(),
		Caps: orm.NewCapabilities(
			orm.CapabilityIncrementalWrite,
			orm.CapabilityLazyLoad,
			orm.CapabilityCounter,
			orm.CapabilityWideMap,
			orm.CapabilityEmbeddedID,
		),
	}
}

func (s *Store) Capabilities() orm.Capabilities { return s.Caps }

// Handles 内存计数器与宽表句柄
type Handles struct {
	mu       sync.Mutex
	counters map[string]int64
	wide     map[string]map[string][]byte
	Built    int
}

// NewHandles 创建内存句柄构建者
func NewHandles() *Handles {
	return &Handles{counters: make(map[string]int64), wide: make(map[string]map[string][]byte)}
}

func handleKey(ctx *orm.Context, key any, prop *orm.PropertyMeta) string {
	name := ""
	if ctx != nil && ctx.Meta() != nil {
		name = ctx.Meta().Name
	}
	return fmt.Sprintf("%s/%v/%s", name, key, prop.Column)
}

func (h *Handles) Counter(ctx *orm.Context, key any, prop *orm.PropertyMeta, current int64) (orm.Counter, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Built++
	k := handleKey(ctx, key, prop)
	if _, ok := h.counters[k]; !ok {
		h.counters[k] = current
	}
	return &memCounter{h: h, key: k}, nil
}

func (h *Handles) WideMap(ctx *orm.Context, key any, prop *orm.PropertyMeta) (orm.WideMap, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.Built++
	k := handleKey(ctx, key, prop)
	if _, ok := h.wide[k]; !ok {
		h.wide[k] = make(map[string][]byte)
	}
	return &memWide{h: h, key: k}, nil
}

type memCounter struct {
	h   *Handles
	key string
}

func (c *memCounter) Get(ctx *orm.Context) (int64, error) {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	return c.h.counters[c.key], nil
}

func (c *memCounter) Incr(ctx *orm.Context, delta int64) (int64, error) {
	c.h.mu.Lock()
	defer c.h.mu.Unlock()
	c.h.counters[c.key] += delta
	return c.h.counters[c.key], nil
}

func (c *memCounter) Decr(ctx *orm.Context, delta int64) (int64, error) {
	return c.Incr(ctx, -delta)
}

type memWide struct {
	h   *Handles
	key string
}

func (w *memWide) Get(ctx *orm.Context, key string) ([]byte, bool, error) {
	w.h.mu.Lock()
	defer w.h.mu.Unlock()
	v, ok := w.h.wide[w.key][key]
	return v, ok, nil
}

func (w *memWide) Put(ctx *orm.Context, key string, value []byte) error {
	w.h.mu.Lock()
	defer w.h.mu.Unlock()
	w.h.wide[w.key][key] = append([]byte(nil), value...)
	return nil
}

func (w *memWide) Remove(ctx *orm.Context, key string) error {
	w.h.mu.Lock()
	defer w.h.mu.Unlock()
	delete(w.h.wide[w.key], key)
	return nil
}

func (w *memWide) Range(ctx *orm.Context, from string, limit int) ([]orm.WideEntry, error) {
	w.h.mu.Lock()
	defer w.h.mu.Unlock()
	keys := make([]string, 0, len(w.h.wide[w.key]))
	for k := range w.h.wide[w.key] {
		if k >= from {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	out := make([]orm.WideEntry, len(keys))
	for i, k := range keys {
		out[i] = orm.WideEntry{Key: k, Value: w.h.wide[w.key][k]}
	}
	return out, nil
}

// MetaProvider 以函数实现 orm.MetaProvider
type MetaProvider func(t reflect.Type) (*orm.EntityMeta, error)

func (f MetaProvider) MetaOf(t reflect.Type) (*orm.EntityMeta, error) { return f(t) }
