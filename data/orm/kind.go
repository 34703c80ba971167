package orm

import (
	"fmt"
	"strings"
)

// Kind 属性类别，元数据构建后不再变化。
type Kind int

const (
	KindPlain Kind = iota
	KindPlainLazy
	KindList
	KindListLazy
	KindSet
	KindSetLazy
	KindMap
	KindMapLazy
	KindCounter
	KindWideMap
	KindAssociation
	KindID
)

var kindNames = [...]string{
	KindPlain:       "plain",
	KindPlainLazy:   "plain_lazy",
	KindList:        "list",
	KindListLazy:    "list_lazy",
	KindSet:         "set",
	KindSetLazy:     "set_lazy",
	KindMap:         "map",
	KindMapLazy:     "map_lazy",
	KindCounter:     "counter",
	KindWideMap:     "wide_map",
	KindAssociation: "association",
	KindID:          "id",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// IsLazy 是否为延迟加载类别
func (k Kind) IsLazy() bool {
	switch k {
	case KindPlainLazy, KindListLazy, KindSetLazy, KindMapLazy:
		return true
	default:
		return false
	}
}

// Base 去掉延迟标记后的类别
func (k Kind) Base() Kind {
	switch k {
	case KindPlainLazy:
		return KindPlain
	case KindListLazy:
		return KindList
	case KindSetLazy:
		return KindSet
	case KindMapLazy:
		return KindMap
	default:
		return k
	}
}

// Lazy 返回对应的延迟类别；不支持延迟的类别原样返回
func (k Kind) Lazy() Kind {
	switch k {
	case KindPlain:
		return KindPlainLazy
	case KindList:
		return KindListLazy
	case KindSet:
		return KindSetLazy
	case KindMap:
		return KindMapLazy
	default:
		return k
	}
}

// IsCollection 是否为 list/set/map（含延迟变体）
func (k Kind) IsCollection() bool {
	switch k.Base() {
	case KindList, KindSet, KindMap:
		return true
	default:
		return false
	}
}

// HandleOnly 只能通过专用句柄修改，直接调用 setter 会失败
func (k Kind) HandleOnly() bool {
	return k == KindCounter || k == KindWideMap
}

// Cascade 关联属性上的级联策略
type Cascade uint8

const (
	CascadePersist Cascade = 1 << iota
	CascadeMerge
	CascadeRemove

	CascadeNone Cascade = 0
	CascadeAll          = CascadePersist | CascadeMerge | CascadeRemove
)

// Has 是否包含指定策略
func (c Cascade) Has(p Cascade) bool {
	return p != 0 && c&p == p
}

func (c Cascade) String() string {
	if c == CascadeAll {
		return "all"
	}
	var parts []string
	if c.Has(CascadePersist) {
		parts = append(parts, "persist")
	}
	if c.Has(CascadeMerge) {
		parts = append(parts, "merge")
	}
	if c.Has(CascadeRemove) {
		parts = append(parts, "remove")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ",")
}

// ParseCascade 解析 "merge,persist" / "all" 形式的策略列表
func ParseCascade(s string) (Cascade, error) {
	var c Cascade
	for _, part := range strings.Split(s, ",") {
		switch strings.ToLower(strings.TrimSpace(part)) {
		case "":
		case "persist":
			c |= CascadePersist
		case "merge":
			c |= CascadeMerge
		case "remove":
			c |= CascadeRemove
		case "all":
			c |= CascadeAll
		default:
			return CascadeNone, fmt.Errorf("unknown cascade type %q", part)
		}
	}
	return c, nil
}

// IDKind 主键形态
type IDKind int

const (
	IDSimple   IDKind = iota // 单值主键
	IDEmbedded               // 结构体复合主键
)
