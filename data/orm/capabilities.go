package orm

// Capability 表示存储适配器可选支持的能力标识。
// 超出能力的调用由适配器返回 ErrUnsupported，而非静默降级。
type Capability string

const (
	CapabilityIncrementalWrite Capability = "incremental_write"
	CapabilityLazyLoad         Capability = "lazy_load"
	CapabilityCounter          Capability = "counter"
	CapabilityWideMap          Capability = "wide_map"
	CapabilityEmbeddedID       Capability = "embedded_id"
	CapabilitySchema           Capability = "schema"
)

// Capabilities 以集合形式表达适配器支持的能力。
type Capabilities map[Capability]bool

// Supports 判断是否支持指定能力。
func (c Capabilities) Supports(cap Capability) bool {
	if c == nil {
		return false
	}
	return c[cap]
}

// NewCapabilities 便捷构造能力集合。
func NewCapabilities(caps ...Capability) Capabilities {
	set := make(Capabilities, len(caps))
	for _, cap := range caps {
		set[cap] = true
	}
	return set
}

// RequiredCapabilities 返回实体元数据所需的能力（含关联目标，按出现顺序去重）
func RequiredCapabilities(meta *EntityMeta) []Capability {
	var out []Capability
	seen := make(map[Capability]bool)
	add := func(c Capability) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	visited := make(map[*EntityMeta]bool)
	var walk func(m *EntityMeta)
	walk = func(m *EntityMeta) {
		if m == nil || visited[m] {
			return
		}
		visited[m] = true
		add(CapabilityIncrementalWrite)
		if m.ID != nil && m.ID.IDKind == IDEmbedded {
			add(CapabilityEmbeddedID)
		}
		for _, p := range m.Properties {
			switch {
			case p.Kind.IsLazy():
				add(CapabilityLazyLoad)
			case p.Kind == KindCounter:
				add(CapabilityCounter)
			case p.Kind == KindWideMap:
				add(CapabilityWideMap)
			case p.Kind == KindAssociation:
				walk(p.Target)
			}
		}
	}
	walk(meta)
	return out
}

// CheckCapabilities 校验存储能力是否满足实体需求
func CheckCapabilities(meta *EntityMeta, caps Capabilities) error {
	for _, c := range RequiredCapabilities(meta) {
		if !caps.Supports(c) {
			return ErrUnsupported.WithContext("entity", meta.Name).WithContext("capability", string(c))
		}
	}
	return nil
}
