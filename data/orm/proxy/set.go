package proxy

import (
	"reflect"

	"colorm/data/orm"
)

// Set 集合属性的包装器，底层为 map[K]struct{} 或 map[K]bool。
type Set struct {
	binding
}

func (s *Set) keyType() reflect.Type { return s.field.Type().Key() }

// member 集合中的成员值
func (s *Set) member() reflect.Value {
	if s.field.Type().Elem().Kind() == reflect.Bool {
		return reflect.ValueOf(true).Convert(s.field.Type().Elem())
	}
	return reflect.Zero(s.field.Type().Elem())
}

func (s *Set) Len() int { return s.field.Len() }

// Contains 成员判断；类型不符视为不存在
func (s *Set) Contains(v any) bool {
	k, err := s.convert(v, s.keyType(), "element")
	if err != nil {
		return false
	}
	return s.field.MapIndex(k).IsValid()
}

// Values 成员快照，顺序不确定
func (s *Set) Values() []any {
	keys := s.field.MapKeys()
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k.Interface()
	}
	return out
}

// Add 添加成员，返回是否为新成员
func (s *Set) Add(v any) (bool, error) {
	k, err := s.convert(v, s.keyType(), "element")
	if err != nil {
		return false, err
	}
	existed := s.field.MapIndex(k).IsValid()
	s.field.SetMapIndex(k, s.member())
	s.touch()
	return !existed, nil
}

// AddAll 添加多个成员；任一类型不符则不做修改
func (s *Set) AddAll(vs ...any) error {
	keys := make([]reflect.Value, len(vs))
	for i, v := range vs {
		k, err := s.convert(v, s.keyType(), "element")
		if err != nil {
			return err
		}
		keys[i] = k
	}
	for _, k := range keys {
		s.field.SetMapIndex(k, s.member())
	}
	s.touch()
	return nil
}

// Remove 删除成员，返回是否存在过
func (s *Set) Remove(v any) (bool, error) {
	k, err := s.convert(v, s.keyType(), "element")
	if err != nil {
		return false, err
	}
	if !s.field.MapIndex(k).IsValid() {
		return false, nil
	}
	s.field.SetMapIndex(k, reflect.Value{})
	s.touch()
	return true, nil
}

// RemoveIf 删除满足条件的成员，返回删除数量
func (s *Set) RemoveIf(pred func(v any) bool) int {
	n := 0
	for _, k := range s.field.MapKeys() {
		if pred(k.Interface()) {
			s.field.SetMapIndex(k, reflect.Value{})
			n++
		}
	}
	if n > 0 {
		s.touch()
	}
	return n
}

// Clear 清空成员，字段保持非 nil
func (s *Set) Clear() {
	s.field.Clear()
	s.touch()
}

// Iterator 返回感知变更的迭代器（基于键快照）
func (s *Set) Iterator() *SetIterator {
	return &SetIterator{set: s, keys: s.field.MapKeys(), cur: -1}
}

// SetIterator 集合迭代器，跳过迭代期间已被删除的成员
type SetIterator struct {
	set  *Set
	keys []reflect.Value
	cur  int
	gone bool
}

func (it *SetIterator) Next() bool {
	for it.cur+1 < len(it.keys) {
		it.cur++
		if it.set.field.MapIndex(it.keys[it.cur]).IsValid() {
			it.gone = false
			return true
		}
	}
	return false
}

func (it *SetIterator) Value() any {
	if it.cur < 0 || it.cur >= len(it.keys) {
		return nil
	}
	return it.keys[it.cur].Interface()
}

// Remove 删除当前成员
func (it *SetIterator) Remove() error {
	if it.cur < 0 || it.gone {
		return orm.Validationf("%s: iterator has no current element", it.set.prop.Name)
	}
	it.set.field.SetMapIndex(it.keys[it.cur], reflect.Value{})
	it.set.touch()
	it.gone = true
	return nil
}
