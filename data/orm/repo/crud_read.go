package repo

import (
	"context"
	stdErrors "errors"

	"colorm/data/orm"
	"colorm/data/orm/proxy"
)

// Get 按主键加载托管实体
func (r *Repo[T]) Get(ctx context.Context, pk any, opts ...orm.ContextOption) (*proxy.Handle, error) {
	return r.m.Find(ctx, (*T)(nil), pk, opts...)
}

// Exists 记录是否存在
func (r *Repo[T]) Exists(ctx context.Context, pk any) (bool, error) {
	_, err := r.Get(ctx, pk)
	if stdErrors.Is(err, orm.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Refresh 丢弃未写入的修改，按存储重新加载
func (r *Repo[T]) Refresh(ctx context.Context, h *proxy.Handle) error {
	return r.m.Refresh(ctx, h)
}
