// Package repo 在实体管理器之上提供按类型划分的仓储。
package repo

import (
	"colorm/data/orm/lifecycle"
	"colorm/data/orm/proxy"
)

// Validatable 写入前自校验的实体
type Validatable interface {
	Validate() error
}

// Repo 针对实体类型 T 的仓储，所有读写都经过 lifecycle.Manager
type Repo[T any] struct {
	m *lifecycle.Manager
}

// NewRepo 创建仓储
func NewRepo[T any](m *lifecycle.Manager) *Repo[T] {
	return &Repo[T]{m: m}
}

// Manager 暴露底层管理器，供跨类型的级联操作使用
func (r *Repo[T]) Manager() *lifecycle.Manager { return r.m }

// Entity 托管句柄下的实体
func Entity[T any](h *proxy.Handle) *T {
	if h == nil {
		return nil
	}
	e, _ := h.Target().(*T)
	return e
}

func validate(entity any) error {
	if v, ok := entity.(Validatable); ok {
		return v.Validate()
	}
	return nil
}
