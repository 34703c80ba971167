package proxy

import (
	"reflect"

	"colorm/data/orm"
)

// Map 映射属性的包装器。键从不解除代理。
type Map struct {
	binding
}

func (m *Map) keyType() reflect.Type  { return m.field.Type().Key() }
func (m *Map) elemType() reflect.Type { return m.field.Type().Elem() }

func (m *Map) Len() int { return m.field.Len() }

// key 键只做类型转换
func (m *Map) key(k any) (reflect.Value, error) {
	return orm.ConvertValue(k, m.keyType(), m.prop.Name+" key")
}

// Get 读取键对应的值
func (m *Map) Get(k any) (any, bool) {
	kv, err := m.key(k)
	if err != nil {
		return nil, false
	}
	v := m.field.MapIndex(kv)
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

func (m *Map) ContainsKey(k any) bool {
	_, ok := m.Get(k)
	return ok
}

// Keys 键快照，顺序不确定
func (m *Map) Keys() []any {
	keys := m.field.MapKeys()
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k.Interface()
	}
	return out
}

// Put 写入键值，返回旧值
func (m *Map) Put(k, v any) (any, error) {
	kv, err := m.key(k)
	if err != nil {
		return nil, err
	}
	vv, err := m.convert(v, m.elemType(), "value")
	if err != nil {
		return nil, err
	}
	var old any
	if prev := m.field.MapIndex(kv); prev.IsValid() {
		old = prev.Interface()
	}
	m.field.SetMapIndex(kv, vv)
	m.touch()
	return old, nil
}

// PutAll 合并另一个映射；src 的键值须可转换为本映射的类型，否则不做修改
func (m *Map) PutAll(src any) error {
	rv := reflect.ValueOf(src)
	if r, ok := src.(rawer); ok {
		rv = reflect.ValueOf(r.Raw())
	}
	if !rv.IsValid() || rv.Kind() != reflect.Map {
		return orm.Validationf("%s: PutAll expects a map, got %T", m.prop.Name, src)
	}
	type kv struct{ k, v reflect.Value }
	pairs := make([]kv, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k, err := m.key(iter.Key().Interface())
		if err != nil {
			return err
		}
		v, err := m.convert(iter.Value().Interface(), m.elemType(), "value")
		if err != nil {
			return err
		}
		pairs = append(pairs, kv{k, v})
	}
	for _, p := range pairs {
		m.field.SetMapIndex(p.k, p.v)
	}
	m.touch()
	return nil
}

// Remove 删除键，返回旧值与是否存在
func (m *Map) Remove(k any) (any, bool) {
	kv, err := m.key(k)
	if err != nil {
		return nil, false
	}
	prev := m.field.MapIndex(kv)
	if !prev.IsValid() {
		return nil, false
	}
	old := prev.Interface()
	m.field.SetMapIndex(kv, reflect.Value{})
	m.touch()
	return old, true
}

// RemoveIf 删除满足条件的键值对，返回删除数量
func (m *Map) RemoveIf(pred func(k, v any) bool) int {
	n := 0
	iter := m.field.MapRange()
	var doomed []reflect.Value
	for iter.Next() {
		if pred(iter.Key().Interface(), iter.Value().Interface()) {
			doomed = append(doomed, iter.Key())
		}
	}
	for _, k := range doomed {
		m.field.SetMapIndex(k, reflect.Value{})
		n++
	}
	if n > 0 {
		m.touch()
	}
	return n
}

// Clear 清空，字段保持非 nil
func (m *Map) Clear() {
	m.field.Clear()
	m.touch()
}

// Iterator 返回感知变更的条目迭代器（基于键快照）
func (m *Map) Iterator() *MapIterator {
	return &MapIterator{m: m, keys: m.field.MapKeys(), cur: -1}
}

// MapIterator 条目迭代器，支持删除当前条目与替换其值
type MapIterator struct {
	m    *Map
	keys []reflect.Value
	cur  int
	gone bool
}

func (it *MapIterator) Next() bool {
	for it.cur+1 < len(it.keys) {
		it.cur++
		if it.m.field.MapIndex(it.keys[it.cur]).IsValid() {
			it.gone = false
			return true
		}
	}
	return false
}

func (it *MapIterator) Key() any {
	if it.cur < 0 || it.cur >= len(it.keys) {
		return nil
	}
	return it.keys[it.cur].Interface()
}

func (it *MapIterator) Value() any {
	if it.cur < 0 || it.gone || it.cur >= len(it.keys) {
		return nil
	}
	v := it.m.field.MapIndex(it.keys[it.cur])
	if !v.IsValid() {
		return nil
	}
	return v.Interface()
}

// Remove 删除当前条目
func (it *MapIterator) Remove() error {
	if it.cur < 0 || it.gone {
		return orm.Validationf("%s: iterator has no current entry", it.m.prop.Name)
	}
	it.m.field.SetMapIndex(it.keys[it.cur], reflect.Value{})
	it.m.touch()
	it.gone = true
	return nil
}

// SetValue 替换当前条目的值，返回旧值
func (it *MapIterator) SetValue(v any) (any, error) {
	if it.cur < 0 || it.gone {
		return nil, orm.Validationf("%s: iterator has no current entry", it.m.prop.Name)
	}
	vv, err := it.m.convert(v, it.m.elemType(), "value")
	if err != nil {
		return nil, err
	}
	k := it.keys[it.cur]
	var old any
	if prev := it.m.field.MapIndex(k); prev.IsValid() {
		old = prev.Interface()
	}
	it.m.field.SetMapIndex(k, vv)
	it.m.touch()
	return old, nil
}
