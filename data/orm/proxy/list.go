package proxy

import (
	"reflect"

	"colorm/data/orm"
)

// List 序列属性的包装器。读操作直接转发，变更先作用于字段再记脏。
type List struct {
	binding
}

func (l *List) elemType() reflect.Type { return l.field.Type().Elem() }

func (l *List) Len() int { return l.field.Len() }

// Get 读取第 i 个元素
func (l *List) Get(i int) (any, error) {
	if i < 0 || i >= l.field.Len() {
		return nil, orm.Validationf("%s: index %d out of range [0,%d)", l.prop.Name, i, l.field.Len())
	}
	return l.field.Index(i).Interface(), nil
}

// Values 元素快照
func (l *List) Values() []any {
	out := make([]any, l.field.Len())
	for i := range out {
		out[i] = l.field.Index(i).Interface()
	}
	return out
}

// IndexOf 第一个相等元素的下标，不存在返回 -1
func (l *List) IndexOf(v any) int {
	for i := 0; i < l.field.Len(); i++ {
		if equalValues(l.field.Index(i).Interface(), v) {
			return i
		}
	}
	return -1
}

func (l *List) Contains(v any) bool { return l.IndexOf(v) >= 0 }

func (l *List) convertAll(vs []any) ([]reflect.Value, error) {
	out := make([]reflect.Value, len(vs))
	for i, v := range vs {
		rv, err := l.convert(v, l.elemType(), "element")
		if err != nil {
			return nil, err
		}
		out[i] = rv
	}
	return out, nil
}

// Add 追加元素；任一元素类型不符则不做修改
func (l *List) Add(vs ...any) error {
	rvs, err := l.convertAll(vs)
	if err != nil {
		return err
	}
	l.field.Set(reflect.Append(l.field, rvs...))
	l.touch()
	return nil
}

// Insert 在 i 处插入元素，i 可以等于 Len
func (l *List) Insert(i int, v any) error {
	n := l.field.Len()
	if i < 0 || i > n {
		return orm.Validationf("%s: insert index %d out of range [0,%d]", l.prop.Name, i, n)
	}
	rv, err := l.convert(v, l.elemType(), "element")
	if err != nil {
		return err
	}
	grown := reflect.Append(l.field, reflect.Zero(l.elemType()))
	reflect.Copy(grown.Slice(i+1, n+1), grown.Slice(i, n))
	grown.Index(i).Set(rv)
	l.field.Set(grown)
	l.touch()
	return nil
}

// Replace 替换第 i 个元素，返回旧值
func (l *List) Replace(i int, v any) (any, error) {
	if i < 0 || i >= l.field.Len() {
		return nil, orm.Validationf("%s: index %d out of range [0,%d)", l.prop.Name, i, l.field.Len())
	}
	rv, err := l.convert(v, l.elemType(), "element")
	if err != nil {
		return nil, err
	}
	old := l.field.Index(i).Interface()
	l.field.Index(i).Set(rv)
	l.touch()
	return old, nil
}

// RemoveAt 删除第 i 个元素，返回被删除的值
func (l *List) RemoveAt(i int) (any, error) {
	n := l.field.Len()
	if i < 0 || i >= n {
		return nil, orm.Validationf("%s: index %d out of range [0,%d)", l.prop.Name, i, n)
	}
	old := l.field.Index(i).Interface()
	l.removeAt(i)
	l.touch()
	return old, nil
}

func (l *List) removeAt(i int) {
	n := l.field.Len()
	reflect.Copy(l.field.Slice(i, n-1), l.field.Slice(i+1, n))
	l.field.Index(n - 1).Set(reflect.Zero(l.elemType()))
	l.field.Set(l.field.Slice(0, n-1))
}

// Remove 删除第一个相等元素
func (l *List) Remove(v any) bool {
	i := l.IndexOf(v)
	if i < 0 {
		return false
	}
	l.removeAt(i)
	l.touch()
	return true
}

// RemoveIf 删除满足条件的全部元素，返回删除数量
func (l *List) RemoveIf(pred func(v any) bool) int {
	kept := 0
	n := l.field.Len()
	for i := 0; i < n; i++ {
		e := l.field.Index(i)
		if pred(e.Interface()) {
			continue
		}
		if kept != i {
			l.field.Index(kept).Set(e)
		}
		kept++
	}
	for i := kept; i < n; i++ {
		l.field.Index(i).Set(reflect.Zero(l.elemType()))
	}
	if kept == n {
		return 0
	}
	l.field.Set(l.field.Slice(0, kept))
	l.touch()
	return n - kept
}

// Clear 清空元素，字段保持非 nil
func (l *List) Clear() {
	n := l.field.Len()
	for i := 0; i < n; i++ {
		l.field.Index(i).Set(reflect.Zero(l.elemType()))
	}
	l.field.Set(l.field.Slice(0, 0))
	l.touch()
}

// Iterator 返回感知变更的迭代器
func (l *List) Iterator() *ListIterator {
	return &ListIterator{list: l, cur: -1}
}

// ListIterator 序列迭代器，支持迭代中删除与替换
type ListIterator struct {
	list    *List
	cur     int
	removed bool
}

// Next 前进到下一个元素
func (it *ListIterator) Next() bool {
	if it.cur+1 >= it.list.Len() {
		return false
	}
	it.cur++
	it.removed = false
	return true
}

func (it *ListIterator) Index() int { return it.cur }

func (it *ListIterator) Value() any {
	if it.cur < 0 || it.removed {
		return nil
	}
	return it.list.field.Index(it.cur).Interface()
}

// Remove 删除当前元素
func (it *ListIterator) Remove() error {
	if it.cur < 0 || it.removed {
		return orm.Validationf("%s: iterator has no current element", it.list.prop.Name)
	}
	it.list.removeAt(it.cur)
	it.list.touch()
	it.cur--
	it.removed = true
	return nil
}

// Set 替换当前元素
func (it *ListIterator) Set(v any) error {
	if it.cur < 0 || it.removed {
		return orm.Validationf("%s: iterator has no current element", it.list.prop.Name)
	}
	_, err := it.list.Replace(it.cur, v)
	return err
}
