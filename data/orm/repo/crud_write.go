package repo

import (
	"context"

	"colorm/data/orm"
	"colorm/data/orm/proxy"
)

// Add 校验后保存新实体
func (r *Repo[T]) Add(ctx context.Context, entity *T, opts ...orm.ContextOption) (*proxy.Handle, error) {
	if err := validate(entity); err != nil {
		return nil, err
	}
	return r.m.Persist(ctx, entity, opts...)
}

// AddAll 逐个保存，遇到第一个错误即停止
func (r *Repo[T]) AddAll(ctx context.Context, entities []*T) ([]*proxy.Handle, error) {
	for _, e := range entities {
		if err := validate(e); err != nil {
			return nil, err
		}
	}
	out := make([]*proxy.Handle, 0, len(entities))
	for _, e := range entities {
		h, err := r.m.Persist(ctx, e)
		if err != nil {
			return out, err
		}
		out = append(out, h)
	}
	return out, nil
}

// Update 加载实体，经由句柄修改后合并；只写入修改过的属性
func (r *Repo[T]) Update(ctx context.Context, pk any, fn func(h *proxy.Handle) error, opts ...orm.ContextOption) (*proxy.Handle, error) {
	h, err := r.Get(ctx, pk, opts...)
	if err != nil {
		return nil, err
	}
	if err := fn(h); err != nil {
		return nil, err
	}
	if err := validate(h.Target()); err != nil {
		return nil, err
	}
	return r.m.Merge(ctx, h, opts...)
}

// Delete 按主键删除，沿 REMOVE 级联
func (r *Repo[T]) Delete(ctx context.Context, pk any) error {
	h, err := r.Get(ctx, pk)
	if err != nil {
		return err
	}
	return r.m.Remove(ctx, h)
}

// DeleteAll 逐个删除
func (r *Repo[T]) DeleteAll(ctx context.Context, pks []any) error {
	for _, pk := range pks {
		if err := r.Delete(ctx, pk); err != nil {
			return err
		}
	}
	return nil
}
