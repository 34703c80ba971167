// Package schema 从结构体标签构建实体元数据，并按类型缓存。
//
// 标签示例：
//
//	type User struct {
//		ID      int64             `orm:"id"`
//		Name    string
//		Bio     string            `orm:"lazy"`
//		Tags    map[string]struct{}
//		Visits  int64             `orm:"counter"`
//		Manager *User             `orm:"cascade:merge,persist"`
//	}
//
// 未声明 cascade 或 join 的结构体指针字段按普通属性处理。
package schema

import (
	"reflect"
	"sync"

	"colorm/data/orm"
)

// Registry 元数据注册表，实现 orm.MetaProvider，并发安全。
type Registry struct {
	mu    sync.RWMutex
	metas map[reflect.Type]*orm.EntityMeta
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{metas: make(map[reflect.Type]*orm.EntityMeta)}
}

var defaultRegistry = NewRegistry()

// Default 返回进程级默认注册表
func Default() *Registry { return defaultRegistry }

// MetaOf 获取或构建类型的元数据；t 可以是结构体或结构体指针
func (r *Registry) MetaOf(t reflect.Type) (*orm.EntityMeta, error) {
	if t == nil {
		return nil, orm.Validationf("nil type")
	}
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	r.mu.RLock()
	if m, ok := r.metas[t]; ok {
		r.mu.RUnlock()
		return m, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	// 双重检查：等待写锁期间可能已被其他协程构建
	if m, ok := r.metas[t]; ok {
		return m, nil
	}
	b := &builder{pending: make(map[reflect.Type]*orm.EntityMeta), known: r.metas}
	m, err := b.build(t)
	if err != nil {
		return nil, err
	}
	for typ, meta := range b.pending {
		r.metas[typ] = meta
	}
	return m, nil
}

// MetaFor 获取实例的元数据
func (r *Registry) MetaFor(v any) (*orm.EntityMeta, error) {
	if v == nil {
		return nil, orm.Validationf("nil entity")
	}
	return r.MetaOf(reflect.TypeOf(v))
}

// Register 登记手工构建的元数据，覆盖同类型的已有记录
func (r *Registry) Register(meta *orm.EntityMeta) error {
	if meta == nil || meta.Type == nil {
		return orm.Validationf("nil metadata")
	}
	if !meta.Defined() {
		return orm.Validationf("entity %s: metadata not defined", meta.Name)
	}
	r.mu.Lock()
	r.metas[meta.Type] = meta
	r.mu.Unlock()
	return nil
}

// Len 已登记的类型数量
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.metas)
}

// builder 单次构建过程；pending 中的元数据在全部成功后才写入注册表
type builder struct {
	pending map[reflect.Type]*orm.EntityMeta
	known   map[reflect.Type]*orm.EntityMeta
}

func (b *builder) build(t reflect.Type) (*orm.EntityMeta, error) {
	if m, ok := b.known[t]; ok {
		return m, nil
	}
	if m, ok := b.pending[t]; ok {
		// 自引用或环形关联：返回尚未定义完成的占位元数据
		return m, nil
	}
	if t.Kind() != reflect.Struct {
		return nil, orm.Validationf("type %s is not a struct", t)
	}
	meta := orm.NewEntityMeta(t, tableName(t))
	b.pending[t] = meta

	var props []*orm.PropertyMeta
	if err := b.collect(t, nil, &props); err != nil {
		return nil, err
	}
	if err := meta.Define(props); err != nil {
		return nil, err
	}
	return meta, nil
}

// collect 按声明顺序收集属性，匿名内嵌结构体递归展开
func (b *builder) collect(t reflect.Type, prefix []int, props *[]*orm.PropertyMeta) error {
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		tag, err := parseTag(f)
		if err != nil {
			return err
		}
		if tag.skip {
			continue
		}
		index := append(append([]int(nil), prefix...), i)

		if f.Anonymous && f.Type.Kind() == reflect.Struct && !isTimeType(f.Type) && !tag.id {
			if err := b.collect(f.Type, index, props); err != nil {
				return err
			}
			continue
		}

		prop, err := b.property(t, f, index, tag)
		if err != nil {
			return err
		}
		*props = append(*props, prop)
	}
	return nil
}

func (b *builder) property(owner reflect.Type, f reflect.StructField, index []int, tag fieldTag) (*orm.PropertyMeta, error) {
	column := tag.column
	if column == "" {
		column = toSnakeCase(f.Name)
	}
	prop := &orm.PropertyMeta{
		Name:   f.Name,
		Column: column,
		Type:   f.Type,
		Index:  index,
	}

	switch {
	case tag.id:
		if tag.lazy || tag.counter || tag.wide || tag.join || tag.explicit {
			return nil, orm.Validationf("%s.%s: id cannot carry other options", owner.Name(), f.Name)
		}
		prop.Kind = orm.KindID
		return prop, b.identity(owner, f, prop, tag)

	case tag.counter:
		if !isInteger(f.Type) {
			return nil, orm.Validationf("%s.%s: counter must be an integer, got %s", owner.Name(), f.Name, f.Type)
		}
		if tag.lazy {
			return nil, orm.Validationf("%s.%s: counter cannot be lazy", owner.Name(), f.Name)
		}
		prop.Kind = orm.KindCounter
		return prop, nil

	case tag.wide:
		if f.Type.Kind() != reflect.Map {
			return nil, orm.Validationf("%s.%s: wide map must be a map, got %s", owner.Name(), f.Name, f.Type)
		}
		if tag.lazy {
			return nil, orm.Validationf("%s.%s: wide map cannot be lazy", owner.Name(), f.Name)
		}
		prop.Kind = orm.KindWideMap
		return prop, nil

	case tag.join || tag.explicit:
		if !isStructPtr(f.Type) {
			return nil, orm.Validationf("%s.%s: association must be a struct pointer, got %s", owner.Name(), f.Name, f.Type)
		}
		if tag.lazy {
			return nil, orm.Validationf("%s.%s: association cannot be lazy", owner.Name(), f.Name)
		}
		target, err := b.build(f.Type.Elem())
		if err != nil {
			return nil, err
		}
		prop.Kind = orm.KindAssociation
		prop.Target = target
		prop.Cascade = tag.cascade
		return prop, nil
	}

	kind := inferKind(f.Type, tag)
	if tag.set && kind != orm.KindSet {
		return nil, orm.Validationf("%s.%s: set must be map[K]struct{} or map[K]bool, got %s", owner.Name(), f.Name, f.Type)
	}
	if tag.lazy {
		kind = kind.Lazy()
	}
	prop.Kind = kind
	return prop, nil
}

// identity 填充主键形态；结构体主键展开为有序组成字段
func (b *builder) identity(owner reflect.Type, f reflect.StructField, prop *orm.PropertyMeta, tag fieldTag) error {
	t := f.Type
	switch {
	case t.Kind() == reflect.Struct && !isTimeType(t):
		prop.IDKind = orm.IDEmbedded
		for i := 0; i < t.NumField(); i++ {
			c := t.Field(i)
			if !c.IsExported() {
				continue
			}
			ct, err := parseTag(c)
			if err != nil {
				return err
			}
			if ct.skip {
				continue
			}
			col := ct.column
			if col == "" {
				col = toSnakeCase(c.Name)
			}
			prop.Components = append(prop.Components, orm.KeyComponent{
				Name:   c.Name,
				Column: col,
				Index:  []int{i},
				Type:   c.Type,
			})
		}
		if len(prop.Components) == 0 {
			return orm.Validationf("%s.%s: embedded id has no exported fields", owner.Name(), f.Name)
		}
		if !t.Comparable() {
			return orm.Validationf("%s.%s: embedded id must be comparable", owner.Name(), f.Name)
		}
	case tag.embedded:
		return orm.Validationf("%s.%s: embedded id must be a struct, got %s", owner.Name(), f.Name, t)
	case t.Kind() == reflect.Slice && t.Elem().Kind() != reflect.Uint8, t.Kind() == reflect.Map, t.Kind() == reflect.Ptr:
		return orm.Validationf("%s.%s: id must be a scalar or struct, got %s", owner.Name(), f.Name, t)
	default:
		if !t.Comparable() {
			return orm.Validationf("%s.%s: id must be comparable, got %s", owner.Name(), f.Name, t)
		}
		prop.IDKind = orm.IDSimple
	}
	return nil
}
