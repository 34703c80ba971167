package lifecycle

import (
	"fmt"
	"reflect"

	"colorm/data/orm"
	"colorm/data/orm/proxy"
	"colorm/logging"
)

// Merger 把内存中的实体图与存储对齐。
//
// 托管实体只写入脏属性；普通实例整体写入后转为托管实体。
type Merger struct {
	proxifier    *proxy.Proxifier
	persister    orm.Persister
	interceptors Chain
	restoreDirty bool
	cycleGuard   bool
	logger       logging.Logger
}

// MergerOption Merger 选项
type MergerOption func(*Merger)

// WithRestoreDirtyOnFailure 属性写入失败时把未确认的脏记录放回，默认关闭
func WithRestoreDirtyOnFailure(on bool) MergerOption {
	return func(m *Merger) { m.restoreDirty = on }
}

// WithCycleGuard 单次 merge 内按 (类型, 主键) 去重，默认开启
func WithCycleGuard(on bool) MergerOption {
	return func(m *Merger) { m.cycleGuard = on }
}

// WithMergeInterceptors 追加生命周期钩子
func WithMergeInterceptors(is ...Interceptor) MergerOption {
	return func(m *Merger) { m.interceptors = append(m.interceptors, is...) }
}

// WithMergeLogger 设置日志器
func WithMergeLogger(l logging.Logger) MergerOption {
	return func(m *Merger) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMerger 创建 Merger
func NewMerger(p *proxy.Proxifier, persister orm.Persister, opts ...MergerOption) *Merger {
	m := &Merger{
		proxifier:  p,
		persister:  persister,
		cycleGuard: true,
		logger:     logging.Component("orm.merger"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type visitKey struct {
	typ reflect.Type
	key any
}

// visited 单次 merge 调用内已处理的实体；值为 nil 表示仍在处理中
type visited map[visitKey]*proxy.Handle

func keyOf(meta *orm.EntityMeta, pk any) visitKey {
	if pk != nil && !reflect.TypeOf(pk).Comparable() {
		pk = fmt.Sprintf("%v", pk)
	}
	return visitKey{typ: meta.Type, key: pk}
}

// Merge 返回托管实体。
//
// 托管实体走更新路径并返回同一个句柄；普通实例走首次保存路径，返回以该实例为 target 的新句柄。
func (m *Merger) Merge(ctx *orm.Context, entity any) (*proxy.Handle, error) {
	if ctx == nil {
		return nil, orm.Validationf("merge: nil context")
	}
	if isNil(entity) {
		return nil, orm.Validationf("merge: nil entity")
	}
	var seen visited
	if m.cycleGuard {
		seen = make(visited)
	}
	return m.merge(ctx, entity, seen)
}

func (m *Merger) merge(ctx *orm.Context, entity any, seen visited) (*proxy.Handle, error) {
	if h, err := proxy.EnsureManaged(entity); err == nil {
		return m.update(ctx, h, seen)
	}
	return m.create(ctx, entity, seen)
}

// update 更新路径：读取并清空脏集合，逐个写入，再级联 MERGE
func (m *Merger) update(ctx *orm.Context, h *proxy.Handle, seen visited) (*proxy.Handle, error) {
	state := h.State()
	meta := state.Meta()
	key := keyOf(meta, state.PrimaryKey())
	if seen != nil {
		if _, ok := seen[key]; ok {
			return h, nil
		}
		seen[key] = h
	}

	octx := ctx.ForEntity(meta, h)
	if err := m.interceptors.Fire(octx, PreUpdate); err != nil {
		return nil, err
	}

	entries := state.DrainDirty()
	for i, e := range entries {
		value, err := e.Prop.Value(state.Target())
		if err != nil {
			return nil, err
		}
		m.logger.Debug(octx, "flush property",
			logging.String("operation_id", octx.OperationID()),
			logging.String("entity", meta.Name),
			logging.String("property", e.Prop.Name))
		if err := m.persister.PersistProperty(octx, state.PrimaryKey(), e.Prop, proxy.Unproxy(value)); err != nil {
			m.partialFailure(octx, state, entries[i:], err)
			return nil, orm.WrapIO(err, "persist property", map[string]any{
				"entity":   meta.Name,
				"property": e.Prop.Name,
			})
		}
	}

	for _, assoc := range meta.Associations() {
		if !assoc.Cascade.Has(orm.CascadeMerge) {
			continue
		}
		child, err := m.associated(state, assoc)
		if err != nil {
			return nil, err
		}
		if child == nil {
			continue
		}
		merged, err := m.merge(ctx.ForEntity(assoc.Target, child), child, seen)
		if err != nil {
			return nil, err
		}
		if err := link(state, assoc, merged); err != nil {
			return nil, err
		}
	}

	state.SetContext(octx)
	if err := m.interceptors.Fire(octx, PostUpdate); err != nil {
		return nil, err
	}
	return h, nil
}

// create 首次保存路径：先级联 PERSIST，再整体写入，最后构建托管句柄
func (m *Merger) create(ctx *orm.Context, entity any, seen visited) (*proxy.Handle, error) {
	meta, err := m.proxifier.MetaFor(entity)
	if err != nil {
		return nil, err
	}
	pk, err := meta.PrimaryKeyOf(entity)
	if err != nil {
		return nil, err
	}
	key := keyOf(meta, pk)
	if seen != nil {
		if h, ok := seen[key]; ok {
			return h, nil
		}
		seen[key] = nil
	}

	octx := ctx.ForEntity(meta, entity)
	type pendingLink struct {
		prop *orm.PropertyMeta
		h    *proxy.Handle
	}
	var links []pendingLink
	for _, assoc := range meta.Associations() {
		if !assoc.Cascade.Has(orm.CascadePersist) {
			continue
		}
		v, err := assoc.Value(entity)
		if err != nil {
			return nil, err
		}
		if isNil(v) {
			continue
		}
		child, err := m.merge(ctx.ForEntity(assoc.Target, v), v, seen)
		if err != nil {
			return nil, err
		}
		if child != nil {
			links = append(links, pendingLink{prop: assoc, h: child})
		}
	}

	if err := m.interceptors.Fire(octx, PrePersist); err != nil {
		return nil, err
	}
	m.logger.Debug(octx, "persist entity",
		logging.String("operation_id", octx.OperationID()),
		logging.String("entity", meta.Name),
		logging.Any("key", pk))
	if err := m.persister.Persist(octx); err != nil {
		return nil, orm.WrapIO(err, "persist", map[string]any{"entity": meta.Name})
	}

	h, err := m.proxifier.Build(octx, entity)
	if err != nil {
		return nil, err
	}
	if seen != nil {
		seen[key] = h
	}
	for _, l := range links {
		if err := link(h.State(), l.prop, l.h); err != nil {
			return nil, err
		}
	}
	if err := m.interceptors.Fire(h.Context(), PostPersist); err != nil {
		return nil, err
	}
	return h, nil
}

// associated 关联属性的当前值：优先使用已记录的托管句柄
func (m *Merger) associated(state *proxy.State, assoc *orm.PropertyMeta) (any, error) {
	v, err := assoc.Value(state.Target())
	if err != nil {
		return nil, err
	}
	if isNil(v) {
		return nil, nil
	}
	if l, ok := state.Link(assoc.ID); ok && proxy.Unproxy(l) == v {
		return l, nil
	}
	return v, nil
}

// link 把 merge 结果写回 target（绕过代理，不记脏）并记录句柄
func link(state *proxy.State, assoc *orm.PropertyMeta, merged *proxy.Handle) error {
	if merged == nil {
		return nil
	}
	if err := assoc.Assign(state.Target(), merged.Target()); err != nil {
		return err
	}
	state.SetLink(assoc.ID, merged)
	return nil
}

func (m *Merger) partialFailure(ctx *orm.Context, state *proxy.State, unacked []proxy.DirtyEntry, cause error) {
	names := make([]string, len(unacked))
	for i, e := range unacked {
		names[i] = e.Prop.Name
	}
	if m.restoreDirty {
		state.Requeue(unacked)
	}
	m.logger.Warn(ctx, "merge interrupted, properties not written",
		logging.String("operation_id", ctx.OperationID()),
		logging.String("entity", state.Meta().Name),
		logging.Any("properties", names),
		logging.Bool("requeued", m.restoreDirty),
		logging.Error(cause))
}

func isNil(x any) bool {
	if x == nil {
		return true
	}
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}
