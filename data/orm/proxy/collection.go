package proxy

import (
	"reflect"

	"colorm/data/orm"
)

// rawer 可取回底层容器的包装器
type rawer interface {
	Raw() any
}

// binding 包装器与所属属性的绑定：直接引用 target 上的字段，变更后同步记脏。
// Refresh 替换 target 后旧包装器与句柄脱钩，对它的修改不再记脏。
type binding struct {
	field  reflect.Value
	target any
	state  *State
	prop   *orm.PropertyMeta
}

func (b binding) touch() {
	if b.state.target != b.target {
		return
	}
	b.state.MarkDirty(b.prop.Setter(), b.prop)
}

// convert 元素类型为具体类型时先解除代理；接口元素原样保存，留给 merge 时解除
func (b binding) convert(v any, t reflect.Type, what string) (reflect.Value, error) {
	if t.Kind() != reflect.Interface {
		v = Unproxy(v)
	}
	return orm.ConvertValue(v, t, b.prop.Name+" "+what)
}

// Property 绑定的属性
func (b binding) Property() *orm.PropertyMeta { return b.prop }

// Raw 底层容器（与 target 字段为同一实例）
func (b binding) Raw() any { return b.field.Interface() }

func wrap(field reflect.Value, s *State, prop *orm.PropertyMeta) any {
	b := binding{field: field, target: s.target, state: s, prop: prop}
	switch prop.Kind.Base() {
	case orm.KindList:
		return &List{binding: b}
	case orm.KindSet:
		return &Set{binding: b}
	default:
		return &Map{binding: b}
	}
}

func equalValues(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
