package lifecycle

import (
	"context"
	"reflect"
	"sync"

	"colorm/config"
	"colorm/data/orm"
	"colorm/data/orm/proxy"
	"colorm/logging"
)

// Manager 实体管理器门面：组合元数据、存储、代理构建与生命周期操作。
type Manager struct {
	metas        orm.MetaProvider
	store        orm.Store
	proxifier    *proxy.Proxifier
	merger       *Merger
	refresher    *Refresher
	interceptors Chain
	ctxOpts      []orm.ContextOption
	logger       logging.Logger

	mu      sync.Mutex
	checked map[reflect.Type]error
}

type managerOptions struct {
	handles      orm.HandleBuilder
	interceptors []Interceptor
	logger       logging.Logger
	merge        config.MergeConfig
	ctxOpts      []orm.ContextOption
}

// ManagerOption Manager 选项
type ManagerOption func(*managerOptions)

// WithHandleBuilder 计数器/宽表句柄构建者
func WithHandleBuilder(b orm.HandleBuilder) ManagerOption {
	return func(o *managerOptions) { o.handles = b }
}

// WithInterceptors 生命周期钩子
func WithInterceptors(is ...Interceptor) ManagerOption {
	return func(o *managerOptions) { o.interceptors = append(o.interceptors, is...) }
}

// WithLogger 日志器
func WithLogger(l logging.Logger) ManagerOption {
	return func(o *managerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMergeConfig merge 行为配置
func WithMergeConfig(cfg config.MergeConfig) ManagerOption {
	return func(o *managerOptions) { o.merge = cfg }
}

// WithContextOptions 每次操作创建 orm.Context 时附加的选项
func WithContextOptions(opts ...orm.ContextOption) ManagerOption {
	return func(o *managerOptions) { o.ctxOpts = append(o.ctxOpts, opts...) }
}

// NewManager 创建实体管理器
func NewManager(metas orm.MetaProvider, store orm.Store, opts ...ManagerOption) *Manager {
	o := &managerOptions{
		logger: logging.Component("orm.manager"),
		merge:  config.Default().Merge,
	}
	for _, opt := range opts {
		opt(o)
	}

	p := proxy.NewProxifier(metas, store,
		proxy.WithHandleBuilder(o.handles),
		proxy.WithLogger(o.logger))
	return &Manager{
		metas:     metas,
		store:     store,
		proxifier: p,
		merger: NewMerger(p, store,
			WithRestoreDirtyOnFailure(o.merge.RestoreDirtyOnFailure),
			WithCycleGuard(o.merge.CycleGuard),
			WithMergeInterceptors(o.interceptors...),
			WithMergeLogger(o.logger)),
		refresher:    &Refresher{loader: store, interceptors: o.interceptors, logger: o.logger},
		interceptors: o.interceptors,
		ctxOpts:      append([]orm.ContextOption{orm.WithLogger(o.logger)}, o.ctxOpts...),
		logger:       o.logger,
		checked:      make(map[reflect.Type]error),
	}
}

func (m *Manager) Proxifier() *proxy.Proxifier { return m.proxifier }
func (m *Manager) Merger() *Merger             { return m.merger }
func (m *Manager) Refresher() *Refresher       { return m.refresher }
func (m *Manager) Store() orm.Store            { return m.store }

// NewContext 为实体创建操作上下文
func (m *Manager) NewContext(ctx context.Context, meta *orm.EntityMeta, entity any, opts ...orm.ContextOption) *orm.Context {
	all := append(append([]orm.ContextOption(nil), m.ctxOpts...), opts...)
	return orm.NewContext(ctx, meta, entity, all...)
}

// check 每个实体类型首次使用时校验存储能力，结果缓存
func (m *Manager) check(meta *orm.EntityMeta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.checked[meta.Type]; ok {
		return err
	}
	err := orm.CheckCapabilities(meta, m.store.Capabilities())
	m.checked[meta.Type] = err
	return err
}

func (m *Manager) resolve(entity any) (*orm.EntityMeta, error) {
	if isNil(entity) {
		return nil, orm.Validationf("nil entity")
	}
	meta, err := m.proxifier.MetaFor(entity)
	if err != nil {
		return nil, err
	}
	if err := m.check(meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// Find 按主键加载并返回托管实体；sample 用于确定实体类型，如 (*User)(nil)
func (m *Manager) Find(ctx context.Context, sample any, pk any, opts ...orm.ContextOption) (*proxy.Handle, error) {
	t := reflect.TypeOf(sample)
	if t == nil {
		return nil, orm.Validationf("find: nil sample")
	}
	if m.metas == nil {
		return nil, orm.Validationf("find: no metadata provider")
	}
	meta, err := m.metas.MetaOf(t)
	if err != nil {
		return nil, err
	}
	if err := m.check(meta); err != nil {
		return nil, err
	}
	if isNil(pk) || reflect.ValueOf(pk).IsZero() {
		return nil, orm.Validationf("find %s: empty primary key", meta.Name)
	}

	stub := meta.NewInstance()
	if err := meta.ID.Assign(stub, pk); err != nil {
		return nil, err
	}
	octx := m.NewContext(ctx, meta, stub, opts...)
	row, err := m.store.Load(octx, meta)
	if err != nil {
		return nil, orm.WrapIO(err, "find", map[string]any{"entity": meta.Name})
	}
	if isNil(row) {
		return nil, orm.ErrNotFound.WithContext("entity", meta.Name).WithContext("key", pk)
	}

	var eager []orm.Accessor
	for _, p := range meta.Properties {
		if !p.Kind.IsLazy() {
			eager = append(eager, p.Getter())
		}
	}
	h, err := m.proxifier.Build(octx, row, eager...)
	if err != nil {
		return nil, err
	}
	if err := m.interceptors.Fire(h.Context(), PostLoad); err != nil {
		return nil, err
	}
	return h, nil
}

// Persist 保存新实体；已托管的实体原样返回，不触发写入
func (m *Manager) Persist(ctx context.Context, entity any, opts ...orm.ContextOption) (*proxy.Handle, error) {
	if h, err := proxy.EnsureManaged(entity); err == nil {
		return h, nil
	}
	return m.Merge(ctx, entity, opts...)
}

// Merge 见 Merger.Merge
func (m *Manager) Merge(ctx context.Context, entity any, opts ...orm.ContextOption) (*proxy.Handle, error) {
	meta, err := m.resolve(entity)
	if err != nil {
		return nil, err
	}
	return m.merger.Merge(m.NewContext(ctx, meta, entity, opts...), entity)
}

// Refresh 见 Refresher.Refresh
func (m *Manager) Refresh(ctx context.Context, entity any, opts ...orm.ContextOption) error {
	h, err := proxy.EnsureManaged(entity)
	if err != nil {
		return err
	}
	return m.refresher.Refresh(m.NewContext(ctx, h.Meta(), h, opts...))
}

// Remove 删除实体，并沿 REMOVE 级联删除关联实体
func (m *Manager) Remove(ctx context.Context, entity any, opts ...orm.ContextOption) error {
	meta, err := m.resolve(entity)
	if err != nil {
		return err
	}
	return m.remove(m.NewContext(ctx, meta, entity, opts...), entity, make(map[visitKey]bool))
}

func (m *Manager) remove(octx *orm.Context, entity any, seen map[visitKey]bool) error {
	meta := octx.Meta()
	pk, err := octx.PrimaryKey()
	if err != nil {
		return err
	}
	key := keyOf(meta, pk)
	if seen[key] {
		return nil
	}
	seen[key] = true

	if err := m.interceptors.Fire(octx, PreRemove); err != nil {
		return err
	}
	if err := m.store.Remove(octx); err != nil {
		return orm.WrapIO(err, "remove", map[string]any{"entity": meta.Name})
	}

	target := proxy.Unproxy(entity)
	state, _ := proxy.StateOf(entity)
	for _, assoc := range meta.Associations() {
		if !assoc.Cascade.Has(orm.CascadeRemove) {
			continue
		}
		var child any
		if state != nil {
			if l, ok := state.Link(assoc.ID); ok {
				child = l
			}
		}
		if child == nil {
			v, err := assoc.Value(target)
			if err != nil {
				return err
			}
			if isNil(v) {
				continue
			}
			child = v
		}
		if err := m.remove(octx.ForEntity(assoc.Target, child), child, seen); err != nil {
			return err
		}
	}
	return m.interceptors.Fire(octx, PostRemove)
}

// Initialize 强制加载托管实体的全部延迟属性
func (m *Manager) Initialize(entity any) error {
	h, err := proxy.EnsureManaged(entity)
	if err != nil {
		return err
	}
	for _, p := range h.Meta().Properties {
		if !p.Kind.IsLazy() {
			continue
		}
		if _, err := h.Intercept(p.Getter()); err != nil {
			return err
		}
	}
	return nil
}
