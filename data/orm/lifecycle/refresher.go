package lifecycle

import (
	"reflect"

	"colorm/data/orm"
	"colorm/data/orm/proxy"
	"colorm/logging"
)

// Refresher 丢弃托管实体的全部内存状态并从存储重新加载。
type Refresher struct {
	loader       orm.Loader
	interceptors Chain
	logger       logging.Logger
}

// NewRefresher 创建 Refresher
func NewRefresher(loader orm.Loader, interceptors ...Interceptor) *Refresher {
	return &Refresher{
		loader:       loader,
		interceptors: interceptors,
		logger:       logging.Component("orm.refresher"),
	}
}

// Refresh 从 ctx 取得托管实体，加载全新实例后清空脏集合与已加载集合并替换 target。
//
// 未保存的修改被丢弃，不会调用任何写入协作者。
func (r *Refresher) Refresh(ctx *orm.Context) error {
	if ctx == nil {
		return orm.Validationf("refresh: nil context")
	}
	h, err := proxy.EnsureManaged(ctx.Entity())
	if err != nil {
		return err
	}
	state := h.State()
	meta := state.Meta()
	if r.loader == nil {
		return orm.ErrUnsupported.WithContext("entity", meta.Name)
	}

	octx := ctx.ForEntity(meta, h)
	r.logger.Debug(octx, "refresh entity",
		logging.String("operation_id", octx.OperationID()),
		logging.String("entity", meta.Name),
		logging.Any("key", state.PrimaryKey()))

	fresh, err := r.loader.Load(octx, meta)
	if err != nil {
		return orm.WrapIO(err, "refresh", map[string]any{"entity": meta.Name})
	}
	if isNil(fresh) {
		return orm.ErrNotFound.WithContext("entity", meta.Name).WithContext("key", state.PrimaryKey())
	}
	if reflect.TypeOf(fresh) != reflect.TypeOf(state.Target()) {
		return orm.Validationf("refresh %s: loader returned %T", meta.Name, fresh)
	}

	state.Reset(fresh)
	return r.interceptors.Fire(state.Context(), PostLoad)
}
