// Package proxy 实现托管实体：变更跟踪、延迟加载、集合包装与代理识别。
//
// Go 没有运行时子类生成，托管实体以 Handle（持有私有状态与底层实例）表达，
// 其余组件通过 Managed 能力接口与之交互。
package proxy

import (
	"context"
	"reflect"

	"colorm/data/orm"
	"colorm/logging"
)

// Proxifier 托管句柄构建器
type Proxifier struct {
	metas   orm.MetaProvider
	loader  orm.Loader
	handles orm.HandleBuilder
	logger  logging.Logger
}

// Option Proxifier 选项
type Option func(*Proxifier)

// WithHandleBuilder 设置计数器/宽表句柄构建者
func WithHandleBuilder(b orm.HandleBuilder) Option {
	return func(p *Proxifier) { p.handles = b }
}

// WithLogger 设置日志器
func WithLogger(l logging.Logger) Option {
	return func(p *Proxifier) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProxifier 创建构建器；loader 为 nil 时延迟属性的首次读取返回 ErrUnsupported
func NewProxifier(metas orm.MetaProvider, loader orm.Loader, opts ...Option) *Proxifier {
	p := &Proxifier{
		metas:  metas,
		loader: loader,
		logger: logging.Component("orm.proxy"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Loader 延迟加载使用的读取协作者
func (p *Proxifier) Loader() orm.Loader { return p.loader }

// MetaFor 解析实例（普通实例或托管句柄）的元数据
func (p *Proxifier) MetaFor(x any) (*orm.EntityMeta, error) {
	if h := handleOf(x); h != nil {
		return h.state.meta, nil
	}
	t := BaseType(x)
	if t == nil {
		return nil, orm.Validationf("nil entity")
	}
	if p.metas == nil {
		return nil, orm.Validationf("no metadata provider for %s", t)
	}
	meta, err := p.metas.MetaOf(t)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, orm.Validationf("no metadata for %s", t)
	}
	return meta, nil
}

// Build 为普通实例创建托管句柄；target 为 nil 时返回 nil。
//
// preloaded 预先登记为已加载的访问器（刚加载完成、部分字段已确定存在时使用）。
func (p *Proxifier) Build(ctx *orm.Context, target any, preloaded ...orm.Accessor) (*Handle, error) {
	if isNil(target) {
		return nil, nil
	}
	if h := handleOf(target); h != nil {
		return h, nil
	}

	var meta *orm.EntityMeta
	if ctx != nil && ctx.Meta() != nil && ctx.Meta().Type == BaseType(target) {
		meta = ctx.Meta()
	} else {
		m, err := p.MetaFor(target)
		if err != nil {
			return nil, err
		}
		meta = m
	}
	if _, err := meta.Instance(target); err != nil {
		return nil, err
	}
	pk, err := meta.PrimaryKeyOf(target)
	if err != nil {
		return nil, err
	}

	h := &Handle{p: p}
	if ctx == nil {
		ctx = orm.NewContext(context.Background(), meta, h, orm.WithLogger(p.logger))
	} else {
		ctx = ctx.ForEntity(meta, h)
	}
	h.state = newState(target, pk, meta, ctx)
	for _, a := range preloaded {
		h.state.MarkLoaded(a)
	}
	return h, nil
}

// IsProxy 结构性能力检查：是否为托管实体
func IsProxy(x any) bool {
	return handleOf(x) != nil
}

// StateOf 托管实体的私有状态；普通实例返回 ErrNotManaged
func StateOf(x any) (*State, error) {
	h, err := EnsureManaged(x)
	if err != nil {
		return nil, err
	}
	return h.state, nil
}

// EnsureManaged 前置校验：x 必须为托管实体
func EnsureManaged(x any) (*Handle, error) {
	h := handleOf(x)
	if h == nil {
		return nil, orm.ErrNotManaged.WithContext("type", typeName(x))
	}
	return h, nil
}

// BaseType 托管实体返回底层实例的类型，否则返回 x 自身的类型
func BaseType(x any) reflect.Type {
	if h := handleOf(x); h != nil {
		return reflect.TypeOf(h.state.target)
	}
	if x == nil {
		return nil
	}
	return reflect.TypeOf(x)
}

// Unproxy 取回底层实例，幂等。
//
// 非托管值原样返回；元素为接口类型的切片、集合与映射值向下解除一层，
// 有元素被替换时重建容器，映射的键保持不变。
func Unproxy(x any) any {
	if x == nil {
		return nil
	}
	if m, ok := x.(Managed); ok {
		if h := m.ManagedHandle(); h != nil {
			return h.state.target
		}
		return x
	}
	if r, ok := x.(rawer); ok {
		return Unproxy(r.Raw())
	}

	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Slice:
		if rv.IsNil() || rv.Type().Elem().Kind() != reflect.Interface {
			return x
		}
		return unproxySlice(rv, x)
	case reflect.Map:
		if rv.IsNil() {
			return x
		}
		t := rv.Type()
		if isSetType(t) {
			if t.Key().Kind() != reflect.Interface {
				return x
			}
			return unproxySetKeys(rv, x)
		}
		if t.Elem().Kind() != reflect.Interface {
			return x
		}
		return unproxyMapValues(rv, x)
	default:
		return x
	}
}

func unproxySlice(rv reflect.Value, orig any) any {
	changed := false
	out := reflect.MakeSlice(rv.Type(), rv.Len(), rv.Len())
	for i := 0; i < rv.Len(); i++ {
		e := rv.Index(i)
		if u, ok := unproxyElem(e); ok {
			out.Index(i).Set(u)
			changed = true
			continue
		}
		out.Index(i).Set(e)
	}
	if !changed {
		return orig
	}
	return out.Interface()
}

func unproxyMapValues(rv reflect.Value, orig any) any {
	changed := false
	out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		v := iter.Value()
		if u, ok := unproxyElem(v); ok {
			v = u
			changed = true
		}
		out.SetMapIndex(iter.Key(), v)
	}
	if !changed {
		return orig
	}
	return out.Interface()
}

// unproxySetKeys 集合的成员存放在键上，成员即元素
func unproxySetKeys(rv reflect.Value, orig any) any {
	changed := false
	out := reflect.MakeMapWithSize(rv.Type(), rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key()
		if u, ok := unproxyElem(k); ok {
			k = u
			changed = true
		}
		out.SetMapIndex(k, iter.Value())
	}
	if !changed {
		return orig
	}
	return out.Interface()
}

// unproxyElem 接口元素中若为托管实体，返回其底层实例
func unproxyElem(e reflect.Value) (reflect.Value, bool) {
	if e.IsNil() {
		return e, false
	}
	h := handleOf(e.Interface())
	if h == nil {
		return e, false
	}
	tv := reflect.ValueOf(h.state.target)
	if !tv.Type().AssignableTo(e.Type()) {
		return e, false
	}
	u := reflect.New(e.Type()).Elem()
	u.Set(tv)
	return u, true
}

func isSetType(t reflect.Type) bool {
	e := t.Elem()
	return e.Kind() == reflect.Struct && e.NumField() == 0
}

func handleOf(x any) *Handle {
	m, ok := x.(Managed)
	if !ok {
		return nil
	}
	h := m.ManagedHandle()
	if h == nil || h.state == nil {
		return nil
	}
	return h
}

func isNil(x any) bool {
	if x == nil {
		return true
	}
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

func typeName(x any) string {
	if x == nil {
		return "<nil>"
	}
	return reflect.TypeOf(x).String()
}
