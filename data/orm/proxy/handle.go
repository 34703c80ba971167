package proxy

import (
	"fmt"
	"reflect"

	"colorm/data/orm"
	"colorm/logging"
)

// Managed 托管实体的能力接口。
//
// 调用方可以定义内嵌 *Handle 的强类型视图，视图同样满足该接口：
//
//	type UserView struct{ *proxy.Handle }
//
//	func (v UserView) Name() string { n, _ := v.Get("Name"); return n.(string) }
type Managed interface {
	ManagedHandle() *Handle
}

// Handle 托管句柄：持有私有状态并拦截全部属性访问。
type Handle struct {
	state *State
	p     *Proxifier
}

var (
	_ Managed       = (*Handle)(nil)
	_ orm.Keyed     = (*Handle)(nil)
	_ orm.Unwrapper = (*Handle)(nil)
)

// ManagedHandle 实现 Managed
func (h *Handle) ManagedHandle() *Handle { return h }

// State 私有状态
func (h *Handle) State() *State { return h.state }

// Target 当前底层实例（refresh 后会变化）
func (h *Handle) Target() any { return h.state.target }

// PrimaryKey 构建时解析的主键，不会变化
func (h *Handle) PrimaryKey() any { return h.state.primaryKey }

// ID 等价于调用主键 getter
func (h *Handle) ID() any { return h.state.primaryKey }

func (h *Handle) Meta() *orm.EntityMeta { return h.state.meta }
func (h *Handle) Context() *orm.Context { return h.state.ctx }

func (h *Handle) String() string {
	return fmt.Sprintf("%s#%v(managed)", h.state.meta.Name, h.state.primaryKey)
}

// Intercept 分派一次访问器调用
func (h *Handle) Intercept(a orm.Accessor, args ...any) (any, error) {
	s := h.state
	id := s.meta.ID
	if a.Kind != orm.AccessorMethod && a.Property == id.ID {
		if a.Kind == orm.AccessorGetter {
			return s.primaryKey, nil
		}
		return nil, orm.ErrIdentityImmutable.
			WithContext("entity", s.meta.Name).
			WithContext("property", id.Name)
	}

	prop, ok := s.meta.Lookup(a)
	if !ok {
		if a.Kind != orm.AccessorMethod {
			return nil, orm.Validationf("entity %s: unknown accessor %s", s.meta.Name, a)
		}
		return h.invoke(a.Method, args)
	}

	switch a.Kind {
	case orm.AccessorGetter:
		return h.get(prop)
	default:
		if len(args) != 1 {
			return nil, orm.Validationf("entity %s: setter %s takes 1 argument, got %d", s.meta.Name, prop.Name, len(args))
		}
		return nil, h.set(prop, args[0])
	}
}

// Get 按属性名读取
func (h *Handle) Get(name string) (any, error) {
	prop, err := h.property(name)
	if err != nil {
		return nil, err
	}
	return h.Intercept(prop.Getter())
}

// Set 按属性名写入
func (h *Handle) Set(name string, value any) error {
	prop, err := h.property(name)
	if err != nil {
		return err
	}
	_, err = h.Intercept(prop.Setter(), value)
	return err
}

// Invoke 调用目标实例上未映射的业务方法
func (h *Handle) Invoke(method string, args ...any) (any, error) {
	return h.Intercept(orm.MethodAccessor(method), args...)
}

// List 读取序列属性；值为 nil 时返回 nil
func (h *Handle) List(name string) (*List, error) {
	v, err := h.Get(name)
	if err != nil {
		return nil, err
	}
	l, _ := v.(*List)
	return l, nil
}

// SetOf 读取集合属性；值为 nil 时返回 nil
func (h *Handle) SetOf(name string) (*Set, error) {
	v, err := h.Get(name)
	if err != nil {
		return nil, err
	}
	s, _ := v.(*Set)
	return s, nil
}

// MapOf 读取映射属性；值为 nil 时返回 nil
func (h *Handle) MapOf(name string) (*Map, error) {
	v, err := h.Get(name)
	if err != nil {
		return nil, err
	}
	m, _ := v.(*Map)
	return m, nil
}

// Counter 读取计数器句柄
func (h *Handle) Counter(name string) (orm.Counter, error) {
	v, err := h.Get(name)
	if err != nil {
		return nil, err
	}
	c, ok := v.(orm.Counter)
	if !ok {
		return nil, orm.Validationf("entity %s: %s is not a counter", h.state.meta.Name, name)
	}
	return c, nil
}

// WideMap 读取宽表句柄
func (h *Handle) WideMap(name string) (orm.WideMap, error) {
	v, err := h.Get(name)
	if err != nil {
		return nil, err
	}
	w, ok := v.(orm.WideMap)
	if !ok {
		return nil, orm.Validationf("entity %s: %s is not a wide map", h.state.meta.Name, name)
	}
	return w, nil
}

func (h *Handle) property(name string) (*orm.PropertyMeta, error) {
	prop, ok := h.state.meta.Property(name)
	if !ok {
		return nil, orm.Validationf("entity %s has no property %q", h.state.meta.Name, name)
	}
	return prop, nil
}

func (h *Handle) logger() logging.Logger {
	if h.state.ctx != nil && h.state.ctx.Logger() != nil {
		return h.state.ctx.Logger()
	}
	return h.p.logger
}

func (h *Handle) get(prop *orm.PropertyMeta) (any, error) {
	s := h.state
	getter := prop.Getter()
	if prop.Kind.IsLazy() && !s.IsLoaded(getter) {
		if err := h.loadProperty(prop); err != nil {
			return nil, err
		}
		s.MarkLoaded(getter)
	}

	field, err := prop.Field(s.target)
	if err != nil {
		return nil, err
	}

	switch prop.Kind.Base() {
	case orm.KindList, orm.KindSet, orm.KindMap:
		if field.IsNil() {
			return field.Interface(), nil
		}
		return wrap(field, s, prop), nil
	case orm.KindCounter:
		if h.p.handles == nil {
			return nil, orm.ErrUnsupported.WithContext("entity", s.meta.Name).WithContext("capability", string(orm.CapabilityCounter))
		}
		c, err := h.p.handles.Counter(s.ctx, s.primaryKey, prop, orm.IntegerOf(field))
		if err != nil {
			return nil, orm.WrapIO(err, "build counter", map[string]any{"entity": s.meta.Name, "property": prop.Name})
		}
		return c, nil
	case orm.KindWideMap:
		if h.p.handles == nil {
			return nil, orm.ErrUnsupported.WithContext("entity", s.meta.Name).WithContext("capability", string(orm.CapabilityWideMap))
		}
		w, err := h.p.handles.WideMap(s.ctx, s.primaryKey, prop)
		if err != nil {
			return nil, orm.WrapIO(err, "build wide map", map[string]any{"entity": s.meta.Name, "property": prop.Name})
		}
		return w, nil
	case orm.KindAssociation:
		if field.IsNil() {
			return field.Interface(), nil
		}
		if m, ok := s.Link(prop.ID); ok {
			return m, nil
		}
		return field.Interface(), nil
	default:
		return field.Interface(), nil
	}
}

func (h *Handle) loadProperty(prop *orm.PropertyMeta) error {
	s := h.state
	if h.p.loader == nil {
		return orm.ErrUnsupported.WithContext("entity", s.meta.Name).WithContext("capability", string(orm.CapabilityLazyLoad))
	}
	h.logger().Debug(s.ctx, "lazy load",
		logging.String("entity", s.meta.Name),
		logging.String("property", prop.Name),
		logging.Any("key", s.primaryKey))
	if err := h.p.loader.LoadProperty(s.ctx, s.target, s.primaryKey, prop); err != nil {
		return orm.WrapIO(err, "lazy load", map[string]any{"entity": s.meta.Name, "property": prop.Name})
	}
	return nil
}

func (h *Handle) set(prop *orm.PropertyMeta, value any) error {
	s := h.state
	if prop.Kind.HandleOnly() {
		return orm.ErrUnsupportedMutation.
			WithContext("entity", s.meta.Name).
			WithContext("property", prop.Name)
	}

	var link Managed
	switch v := value.(type) {
	case Managed:
		if prop.Kind == orm.KindAssociation && v.ManagedHandle() != nil {
			link = v
		}
		value = Unproxy(v)
	case rawer:
		value = v.Raw()
	}

	converted, err := prop.Convert(value)
	if err != nil {
		return err
	}
	field, err := prop.Field(s.target)
	if err != nil {
		return err
	}

	s.MarkDirty(prop.Setter(), prop)
	field.Set(converted)
	if prop.Kind.IsLazy() {
		// 已写入新值，之后的读取不应再被存储中的旧值覆盖
		s.MarkLoaded(prop.Getter())
	}
	if prop.Kind == orm.KindAssociation {
		s.SetLink(prop.ID, link)
	}
	return nil
}

// invoke 通过反射调用目标实例的方法，不影响托管状态
func (h *Handle) invoke(name string, args []any) (any, error) {
	s := h.state
	m := reflect.ValueOf(s.target).MethodByName(name)
	if !m.IsValid() {
		return nil, orm.Validationf("entity %s has no method %q", s.meta.Name, name)
	}
	mt := m.Type()
	if (!mt.IsVariadic() && len(args) != mt.NumIn()) || (mt.IsVariadic() && len(args) < mt.NumIn()-1) {
		return nil, orm.Validationf("entity %s: method %s takes %d arguments, got %d", s.meta.Name, name, mt.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, arg := range args {
		var pt reflect.Type
		if mt.IsVariadic() && i >= mt.NumIn()-1 {
			pt = mt.In(mt.NumIn() - 1).Elem()
		} else {
			pt = mt.In(i)
		}
		v, err := orm.ConvertValue(arg, pt, fmt.Sprintf("%s.%s arg %d", s.meta.Name, name, i))
		if err != nil {
			return nil, err
		}
		in[i] = v
	}
	out := m.Call(in)
	return splitResults(out)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// splitResults 末尾的 error 返回值单独返回；多个结果以 []any 返回
func splitResults(out []reflect.Value) (any, error) {
	var err error
	if n := len(out); n > 0 && out[n-1].Type() == errorType {
		if e := out[n-1].Interface(); e != nil {
			err = e.(error)
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return nil, err
	case 1:
		return out[0].Interface(), err
	default:
		vals := make([]any, len(out))
		for i, v := range out {
			vals[i] = v.Interface()
		}
		return vals, err
	}
}
