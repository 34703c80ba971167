package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorm/config"
	"colorm/data/orm"
	"colorm/data/orm/ormtest"
	"colorm/data/orm/schema"
	"colorm/logging"
)

func newManager(t *testing.T, opts ...ManagerOption) (*Manager, *ormtest.Store) {
	t.Helper()
	store := ormtest.NewStore()
	opts = append([]ManagerOption{
		WithHandleBuilder(ormtest.NewHandles()),
		WithLogger(logging.NewNoopLogger()),
	}, opts...)
	return NewManager(schema.NewRegistry(), store, opts...), store
}

// TestManager_Find 按主键加载：非延迟属性视为已加载，延迟属性按需加载
func TestManager_Find(t *testing.T) {
	var events []Event
	m, store := newManager(t, WithInterceptors(InterceptorFunc(func(ctx *orm.Context, ev Event) error {
		events = append(events, ev)
		return nil
	})))
	row := &ormtest.User{ID: 7, Name: "A"}
	store.PutRow("User", int64(7), row)
	store.PutValue("User", int64(7), "Bio", "bio")

	h, err := m.Find(context.Background(), (*ormtest.User)(nil), int64(7))
	require.NoError(t, err)
	assert.Same(t, row, h.Target())
	assert.Equal(t, int64(7), h.PrimaryKey())
	assert.Equal(t, []Event{PostLoad}, events)

	name, _ := h.Meta().Property("Name")
	bio, _ := h.Meta().Property("Bio")
	assert.True(t, h.State().IsLoaded(name.Getter()))
	assert.False(t, h.State().IsLoaded(bio.Getter()))

	v, err := h.Get("Bio")
	require.NoError(t, err)
	assert.Equal(t, "bio", v)
	assert.Equal(t, 1, store.PropertyLoads("Bio"))
}

// TestManager_FindErrors 主键为空、记录不存在、类型无法解析
func TestManager_FindErrors(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()

	_, err := m.Find(ctx, (*ormtest.User)(nil), int64(404))
	assert.True(t, errors.Is(err, orm.ErrNotFound))

	_, err = m.Find(ctx, (*ormtest.User)(nil), int64(0))
	assert.True(t, errors.Is(err, orm.ErrValidation))

	_, err = m.Find(ctx, (*ormtest.User)(nil), nil)
	assert.True(t, errors.Is(err, orm.ErrValidation))

	_, err = m.Find(ctx, nil, int64(1))
	assert.True(t, errors.Is(err, orm.ErrValidation))

	_, err = m.Find(ctx, (*ormtest.User)(nil), "seven")
	assert.True(t, errors.Is(err, orm.ErrValidation))
}

// TestManager_Capabilities 存储缺少实体所需能力时拒绝操作
func TestManager_Capabilities(t *testing.T) {
	m, store := newManager(t)
	store.Caps = orm.NewCapabilities(orm.CapabilityIncrementalWrite)

	_, err := m.Merge(context.Background(), &ormtest.User{ID: 1})
	assert.True(t, errors.Is(err, orm.ErrUnsupported))
	_, err = m.Find(context.Background(), (*ormtest.Order)(nil), ormtest.OrderKey{Customer: "c", Seq: 1})
	assert.True(t, errors.Is(err, orm.ErrUnsupported))
	assert.Equal(t, 0, store.PersistCalls())

	h, err := m.Merge(context.Background(), &ormtest.Node{ID: 1})
	require.NoError(t, err)
	assert.NotNil(t, h)
}

// TestManager_PersistAndMerge 新实体整体写入；已托管实体 Persist 不再写入
func TestManager_PersistAndMerge(t *testing.T) {
	m, store := newManager(t, WithContextOptions(orm.WithOperationID("op-1")))
	ctx := context.Background()

	o := &ormtest.Order{Key: ormtest.OrderKey{Customer: "c", Seq: 1}, Amount: 3}
	h, err := m.Persist(ctx, o)
	require.NoError(t, err)
	assert.Same(t, o, h.Target())
	assert.Equal(t, ormtest.OrderKey{Customer: "c", Seq: 1}, h.PrimaryKey())
	assert.Equal(t, "op-1", h.Context().OperationID())

	again, err := m.Persist(ctx, h)
	require.NoError(t, err)
	assert.Same(t, h, again)
	assert.Equal(t, 1, store.PersistCalls())

	require.NoError(t, h.Set("Amount", 5.0))
	merged, err := m.Merge(ctx, h)
	require.NoError(t, err)
	assert.Same(t, h, merged)
	assert.Equal(t, []string{"Amount"}, store.WrittenProperties())

	_, err = m.Merge(ctx, nil)
	assert.True(t, errors.Is(err, orm.ErrValidation))
}

// TestManager_MergeConfig 配置项传递到 Merger
func TestManager_MergeConfig(t *testing.T) {
	m, store := newManager(t, WithMergeConfig(config.MergeConfig{RestoreDirtyOnFailure: true, CycleGuard: true}))
	store.Persister.FailOn["Name"] = true

	h, err := m.Merge(context.Background(), &ormtest.User{ID: 7})
	require.NoError(t, err)
	require.NoError(t, h.Set("Name", "x"))

	_, err = m.Merge(context.Background(), h)
	assert.True(t, errors.Is(err, orm.ErrPropagatedIO))
	assert.Equal(t, 1, h.State().DirtyLen())
}

// TestManager_Refresh 通过门面刷新，普通实例被拒绝
func TestManager_Refresh(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()
	h, err := m.Merge(ctx, &ormtest.User{ID: 7, Name: "A"})
	require.NoError(t, err)
	require.NoError(t, h.Set("Name", "B"))

	store.PutRow("User", int64(7), &ormtest.User{ID: 7, Name: "A"})
	require.NoError(t, m.Refresh(ctx, h))
	v, err := h.Get("Name")
	require.NoError(t, err)
	assert.Equal(t, "A", v)
	assert.Equal(t, 0, h.State().DirtyLen())

	assert.True(t, errors.Is(m.Refresh(ctx, &ormtest.User{ID: 7}), orm.ErrNotManaged))
}

// TestManager_RemoveCascade 删除沿 REMOVE 级联，未声明 REMOVE 的关联保留
func TestManager_RemoveCascade(t *testing.T) {
	var events []Event
	m, store := newManager(t, WithInterceptors(InterceptorFunc(func(ctx *orm.Context, ev Event) error {
		if ev == PreRemove || ev == PostRemove {
			events = append(events, ev)
		}
		return nil
	})))
	ctx := context.Background()

	boss := &ormtest.User{ID: 1}
	u := &ormtest.User{ID: 7, Manager: boss, Address: &ormtest.Address{ID: "home"}}
	require.NoError(t, m.Remove(ctx, u))
	assert.Equal(t, []string{"User/7", "Address/home"}, store.Removes)
	assert.Equal(t, []Event{PreRemove, PreRemove, PostRemove, PostRemove}, events)

	// 托管实体优先使用记录的关联句柄
	store.Persister.Reset()
	h, err := m.Merge(ctx, &ormtest.User{ID: 8})
	require.NoError(t, err)
	addr, err := m.Merge(ctx, &ormtest.Address{ID: "office"})
	require.NoError(t, err)
	require.NoError(t, h.Set("Address", addr))
	require.NoError(t, m.Remove(ctx, h))
	assert.Equal(t, []string{"User/8", "Address/office"}, store.Removes)
}

// TestManager_RemoveFailure 存储删除失败时不再级联
func TestManager_RemoveFailure(t *testing.T) {
	m, store := newManager(t)
	store.Persister.FailOn["remove:User"] = true

	err := m.Remove(context.Background(), &ormtest.User{ID: 7, Address: &ormtest.Address{ID: "home"}})
	assert.True(t, errors.Is(err, orm.ErrPropagatedIO))
	assert.Empty(t, store.Removes)

	assert.True(t, errors.Is(m.Remove(context.Background(), nil), orm.ErrValidation))
}

// TestManager_Initialize 强制加载全部延迟属性
func TestManager_Initialize(t *testing.T) {
	m, store := newManager(t)
	store.PutValue("Article", int64(3), "Body", "text")
	a := &ormtest.Article{Base: ormtest.Base{ID: 3}}

	h, err := m.Merge(context.Background(), a)
	require.NoError(t, err)
	require.NoError(t, m.Initialize(h))
	assert.Equal(t, "text", a.Body)
	assert.Equal(t, 1, store.PropertyLoads("Body"))

	body, _ := h.Meta().Property("Body")
	assert.True(t, h.State().IsLoaded(body.Getter()))

	// 已加载的属性不重复加载
	require.NoError(t, m.Initialize(h))
	assert.Equal(t, 1, store.PropertyLoads("Body"))

	assert.True(t, errors.Is(m.Initialize(a), orm.ErrNotManaged))
}
