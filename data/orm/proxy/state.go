package proxy

import (
	"sort"

	"colorm/data/orm"
)

// DirtyEntry 一条待刷新的脏记录
type DirtyEntry struct {
	Setter orm.Accessor
	Prop   *orm.PropertyMeta
}

// State 托管实体的私有状态。
//
// 不做内部同步：同一个托管实体只能由一个协程访问。
type State struct {
	target     any
	primaryKey any
	meta       *orm.EntityMeta
	ctx        *orm.Context

	loaded map[orm.Accessor]struct{}
	dirty  map[orm.Accessor]*orm.PropertyMeta
	// links 关联属性对应的托管句柄；Go 指针字段本身无法持有句柄
	links map[orm.PropertyID]Managed
}

func newState(target, primaryKey any, meta *orm.EntityMeta, ctx *orm.Context) *State {
	return &State{
		target:     target,
		primaryKey: primaryKey,
		meta:       meta,
		ctx:        ctx,
		loaded:     make(map[orm.Accessor]struct{}),
		dirty:      make(map[orm.Accessor]*orm.PropertyMeta),
		links:      make(map[orm.PropertyID]Managed),
	}
}

func (s *State) Target() any           { return s.target }
func (s *State) PrimaryKey() any       { return s.primaryKey }
func (s *State) Meta() *orm.EntityMeta { return s.meta }
func (s *State) Context() *orm.Context { return s.ctx }

// SetContext 重新绑定执行上下文（merge 结束时）
func (s *State) SetContext(ctx *orm.Context) {
	if ctx != nil {
		s.ctx = ctx
	}
}

// IsLoaded 延迟属性的 getter 是否已加载过
func (s *State) IsLoaded(a orm.Accessor) bool {
	_, ok := s.loaded[a]
	return ok
}

// MarkLoaded 记录延迟属性已加载
func (s *State) MarkLoaded(a orm.Accessor) {
	s.loaded[a] = struct{}{}
}

// Loaded 已加载访问器，按属性编号排序
func (s *State) Loaded() []orm.Accessor {
	out := make([]orm.Accessor, 0, len(s.loaded))
	for a := range s.loaded {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Property < out[j].Property })
	return out
}

// IsDirty setter 是否在脏集合中
func (s *State) IsDirty(setter orm.Accessor) bool {
	_, ok := s.dirty[setter]
	return ok
}

// MarkDirty 记录属性被修改
func (s *State) MarkDirty(setter orm.Accessor, prop *orm.PropertyMeta) {
	s.dirty[setter] = prop
}

// DirtyLen 脏集合大小
func (s *State) DirtyLen() int { return len(s.dirty) }

// Dirty 脏记录快照，按属性编号排序
func (s *State) Dirty() []DirtyEntry {
	out := make([]DirtyEntry, 0, len(s.dirty))
	for a, p := range s.dirty {
		out = append(out, DirtyEntry{Setter: a, Prop: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Prop.ID < out[j].Prop.ID })
	return out
}

// DrainDirty 读取并清空脏集合
func (s *State) DrainDirty() []DirtyEntry {
	out := s.Dirty()
	s.dirty = make(map[orm.Accessor]*orm.PropertyMeta)
	return out
}

// Requeue 把未确认写入的记录放回脏集合
func (s *State) Requeue(entries []DirtyEntry) {
	for _, e := range entries {
		s.dirty[e.Setter] = e.Prop
	}
}

// Link 关联属性当前的托管句柄
func (s *State) Link(id orm.PropertyID) (Managed, bool) {
	m, ok := s.links[id]
	return m, ok
}

// SetLink 设置或清除（m 为 nil）关联句柄
func (s *State) SetLink(id orm.PropertyID, m Managed) {
	if m == nil {
		delete(s.links, id)
		return
	}
	s.links[id] = m
}

// Reset 刷新：整体替换 target，清空已加载、脏集合与关联句柄
func (s *State) Reset(target any) {
	s.target = target
	s.loaded = make(map[orm.Accessor]struct{})
	s.dirty = make(map[orm.Accessor]*orm.PropertyMeta)
	s.links = make(map[orm.PropertyID]Managed)
}
