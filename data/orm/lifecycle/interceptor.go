// Package lifecycle 实现托管实体的 merge / refresh 生命周期以及实体管理器门面。
package lifecycle

import (
	"colorm/data/orm"
)

// Event 生命周期事件
type Event int

const (
	PrePersist Event = iota
	PostPersist
	PreUpdate
	PostUpdate
	PreRemove
	PostRemove
	PostLoad
)

var eventNames = [...]string{
	PrePersist:  "pre_persist",
	PostPersist: "post_persist",
	PreUpdate:   "pre_update",
	PostUpdate:  "post_update",
	PreRemove:   "pre_remove",
	PostRemove:  "post_remove",
	PostLoad:    "post_load",
}

func (e Event) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return "unknown"
}

// Interceptor 生命周期钩子；返回错误会中止当前操作
type Interceptor interface {
	OnEvent(ctx *orm.Context, event Event) error
}

// InterceptorFunc 函数形式的钩子
type InterceptorFunc func(ctx *orm.Context, event Event) error

func (f InterceptorFunc) OnEvent(ctx *orm.Context, event Event) error { return f(ctx, event) }

// Chain 按注册顺序执行的钩子链
type Chain []Interceptor

// Fire 依次触发，遇到第一个错误即返回
func (c Chain) Fire(ctx *orm.Context, event Event) error {
	for _, i := range c {
		if i == nil {
			continue
		}
		if err := i.OnEvent(ctx, event); err != nil {
			return err
		}
	}
	return nil
}
