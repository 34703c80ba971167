package orm

import (
	"fmt"
	"reflect"
)

// PropertyID 元数据构建时为每个属性分配的稳定编号，等于其在 EntityMeta.Properties 中的下标。
type PropertyID int

// AccessorKind 访问器种类
type AccessorKind uint8

const (
	AccessorGetter AccessorKind = iota
	AccessorSetter
	// AccessorMethod 未映射的业务方法，按名称转发给目标实例
	AccessorMethod
)

// Accessor 访问器标识：脏集合与已加载集合都以它为键。
type Accessor struct {
	Property PropertyID
	Kind     AccessorKind
	Method   string
}

// MethodAccessor 构造未映射业务方法的访问器
func MethodAccessor(name string) Accessor {
	return Accessor{Property: -1, Kind: AccessorMethod, Method: name}
}

func (a Accessor) String() string {
	switch a.Kind {
	case AccessorGetter:
		return fmt.Sprintf("get#%d", a.Property)
	case AccessorSetter:
		return fmt.Sprintf("set#%d", a.Property)
	default:
		return "call:" + a.Method
	}
}

// KeyComponent 复合主键的组成字段（相对主键结构体）
type KeyComponent struct {
	Name   string
	Column string
	Index  []int
	Type   reflect.Type
}

// PropertyMeta 属性元数据，构建后只读。
type PropertyMeta struct {
	ID     PropertyID
	Name   string // Go 字段名
	Column string
	Kind   Kind
	Type   reflect.Type
	Index  []int

	// 关联属性
	Target  *EntityMeta
	Cascade Cascade

	// 主键属性
	IDKind     IDKind
	Components []KeyComponent
}

// Getter 属性的读访问器
func (p *PropertyMeta) Getter() Accessor {
	return Accessor{Property: p.ID, Kind: AccessorGetter}
}

// Setter 属性的写访问器
func (p *PropertyMeta) Setter() Accessor {
	return Accessor{Property: p.ID, Kind: AccessorSetter}
}

func (p *PropertyMeta) String() string {
	return fmt.Sprintf("%s(%s)", p.Name, p.Kind)
}

// Field 返回 target 上可寻址的底层字段
func (p *PropertyMeta) Field(target any) (reflect.Value, error) {
	rv := reflect.ValueOf(target)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() {
		return reflect.Value{}, Validationf("property %s: target must be a non-nil pointer, got %T", p.Name, target)
	}
	v := rv.Elem()
	for _, i := range p.Index {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}, Validationf("property %s: nil embedded pointer in %T", p.Name, target)
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct || i >= v.NumField() {
			return reflect.Value{}, Validationf("property %s: field index out of range for %T", p.Name, target)
		}
		v = v.Field(i)
	}
	return v, nil
}

// Value 读取属性当前值
func (p *PropertyMeta) Value(target any) (any, error) {
	f, err := p.Field(target)
	if err != nil {
		return nil, err
	}
	return f.Interface(), nil
}

// Assign 直接写入底层字段（绕过代理），nil 写入零值
func (p *PropertyMeta) Assign(target any, value any) error {
	f, err := p.Field(target)
	if err != nil {
		return err
	}
	v, err := p.Convert(value)
	if err != nil {
		return err
	}
	f.Set(v)
	return nil
}

// Convert 把任意值转换为属性类型的 reflect.Value
func (p *PropertyMeta) Convert(value any) (reflect.Value, error) {
	return ConvertValue(value, p.Type, p.Name)
}

// ConvertValue 把 value 转为 typ；nil 得到零值，数值之间允许转换
func ConvertValue(value any, typ reflect.Type, name string) (reflect.Value, error) {
	if value == nil {
		return reflect.Zero(typ), nil
	}
	v := reflect.ValueOf(value)
	switch {
	case v.Type().AssignableTo(typ):
		out := reflect.New(typ).Elem()
		out.Set(v)
		return out, nil
	case v.Type().ConvertibleTo(typ) && sameFamily(v.Kind(), typ.Kind()):
		return v.Convert(typ), nil
	default:
		return reflect.Value{}, Validationf("%s: cannot assign %T to %s", name, value, typ)
	}
}

// sameFamily 限制 Convert 只在数值之间或同类之间进行，避免 int→string 这类意外转换
func sameFamily(a, b reflect.Kind) bool {
	if a == b {
		return true
	}
	return isNumber(a) && isNumber(b)
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// IntegerOf 整数字段的值；无符号类型按 int64 返回，非整数返回 0
func IntegerOf(v reflect.Value) int64 {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	default:
		return 0
	}
}

// SetInteger 按字段有无符号写入整数；越界或类型不符返回校验错误
func SetInteger(f reflect.Value, n int64) error {
	switch f.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n < 0 || f.OverflowUint(uint64(n)) {
			return Validationf("value %d overflows %s", n, f.Type())
		}
		f.SetUint(uint64(n))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if f.OverflowInt(n) {
			return Validationf("value %d overflows %s", n, f.Type())
		}
		f.SetInt(n)
	default:
		return Validationf("%s is not an integer", f.Type())
	}
	return nil
}

// EntityMeta 实体元数据：表名、有序属性、主键属性与访问器索引。
type EntityMeta struct {
	Type       reflect.Type // 结构体类型（非指针）
	Name       string
	Table      string
	Properties []*PropertyMeta
	ID         *PropertyMeta

	byName  map[string]*PropertyMeta
	defined bool
}

// NewEntityMeta 创建尚未定义属性的实体元数据；关联目标可以先引用它再 Define
func NewEntityMeta(t reflect.Type, table string) *EntityMeta {
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	name := ""
	if t != nil {
		name = t.Name()
	}
	return &EntityMeta{Type: t, Name: name, Table: table}
}

// Define 按顺序登记属性并分配 PropertyID，只能调用一次
func (m *EntityMeta) Define(props []*PropertyMeta) error {
	if m.defined {
		return Validationf("entity %s already defined", m.Name)
	}
	if m.Type == nil || m.Type.Kind() != reflect.Struct {
		return Validationf("entity %s: type must be a struct", m.Name)
	}
	byName := make(map[string]*PropertyMeta, len(props)*2)
	var id *PropertyMeta
	for i, p := range props {
		if p == nil {
			return Validationf("entity %s: nil property at %d", m.Name, i)
		}
		p.ID = PropertyID(i)
		if p.Kind == KindID {
			if id != nil {
				return Validationf("entity %s: duplicate id property %s", m.Name, p.Name)
			}
			id = p
		}
		if p.Kind == KindAssociation && p.Target == nil {
			return Validationf("entity %s: association %s has no target", m.Name, p.Name)
		}
		if _, dup := byName[p.Name]; dup {
			return Validationf("entity %s: duplicate property %s", m.Name, p.Name)
		}
		byName[p.Name] = p
		if p.Column != "" && p.Column != p.Name {
			if _, dup := byName[p.Column]; !dup {
				byName[p.Column] = p
			}
		}
	}
	if id == nil {
		return Validationf("entity %s has no id property", m.Name)
	}
	m.Properties = props
	m.ID = id
	m.byName = byName
	m.defined = true
	return nil
}

// Defined 是否已完成属性定义
func (m *EntityMeta) Defined() bool { return m.defined }

// Lookup 按访问器 O(1) 解析属性；业务方法与越界编号返回 false
func (m *EntityMeta) Lookup(a Accessor) (*PropertyMeta, bool) {
	if a.Kind == AccessorMethod || a.Property < 0 || int(a.Property) >= len(m.Properties) {
		return nil, false
	}
	return m.Properties[a.Property], true
}

// Property 按字段名或列名查找属性
func (m *EntityMeta) Property(name string) (*PropertyMeta, bool) {
	p, ok := m.byName[name]
	return p, ok
}

// Associations 返回全部关联属性
func (m *EntityMeta) Associations() []*PropertyMeta {
	var out []*PropertyMeta
	for _, p := range m.Properties {
		if p.Kind == KindAssociation {
			out = append(out, p)
		}
	}
	return out
}

// Columns 返回满足条件的属性（按定义顺序）
func (m *EntityMeta) Columns(keep func(*PropertyMeta) bool) []*PropertyMeta {
	var out []*PropertyMeta
	for _, p := range m.Properties {
		if keep == nil || keep(p) {
			out = append(out, p)
		}
	}
	return out
}

// KeyColumns 主键列名；复合主键展开为各组成列
func (m *EntityMeta) KeyColumns() []string {
	if m.ID.IDKind == IDEmbedded {
		cols := make([]string, len(m.ID.Components))
		for i, c := range m.ID.Components {
			cols[i] = c.Column
		}
		return cols
	}
	return []string{m.ID.Column}
}

// KeyValues 把主键值展开为与 KeyColumns 对应的值列表
func (m *EntityMeta) KeyValues(pk any) ([]any, error) {
	if pk == nil {
		return nil, Validationf("entity %s: nil primary key", m.Name)
	}
	if m.ID.IDKind != IDEmbedded {
		return []any{pk}, nil
	}
	rv := reflect.ValueOf(pk)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, Validationf("entity %s: nil primary key", m.Name)
		}
		rv = rv.Elem()
	}
	if rv.Type() != m.ID.Type {
		return nil, Validationf("entity %s: primary key must be %s, got %T", m.Name, m.ID.Type, pk)
	}
	vals := make([]any, len(m.ID.Components))
	for i, c := range m.ID.Components {
		vals[i] = rv.FieldByIndex(c.Index).Interface()
	}
	return vals, nil
}

// Instance 校验 target 为本实体类型的非空指针
func (m *EntityMeta) Instance(target any) (reflect.Value, error) {
	rv := reflect.ValueOf(target)
	if !rv.IsValid() || rv.Kind() != reflect.Ptr || rv.IsNil() {
		return reflect.Value{}, Validationf("entity %s: expected non-nil *%s, got %T", m.Name, m.Name, target)
	}
	if rv.Elem().Type() != m.Type {
		return reflect.Value{}, Validationf("entity %s: expected *%s, got %T", m.Name, m.Name, target)
	}
	return rv, nil
}

// PrimaryKeyOf 读取主键；零值视为无法解析
func (m *EntityMeta) PrimaryKeyOf(target any) (any, error) {
	if _, err := m.Instance(target); err != nil {
		return nil, err
	}
	f, err := m.ID.Field(target)
	if err != nil {
		return nil, err
	}
	if f.IsZero() {
		return nil, Validationf("entity %s: primary key %s is not set", m.Name, m.ID.Name)
	}
	return f.Interface(), nil
}

// NewInstance 创建新的空实例（*T）
func (m *EntityMeta) NewInstance() any {
	return reflect.New(m.Type).Interface()
}
