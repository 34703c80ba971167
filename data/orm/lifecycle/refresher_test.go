package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorm/data/orm"
	"colorm/data/orm/ormtest"
)

// TestRefresh_DiscardsState 刷新后脏集合与已加载集合清空，target 被替换，且不触发写入
func TestRefresh_DiscardsState(t *testing.T) {
	e := newEnv(t)
	e.store.PutValue("User", 7, "Bio", "old bio")
	h := e.managed(t, &ormtest.User{ID: 7, Name: "A"})

	require.NoError(t, h.Set("Name", "B"))
	_, err := h.Get("Bio")
	require.NoError(t, err)
	require.NotEmpty(t, h.State().Loaded())

	fresh := &ormtest.User{ID: 7, Name: "stored"}
	e.store.PutRow("User", 7, fresh)
	r := NewRefresher(e.store)
	require.NoError(t, r.Refresh(h.Context()))

	assert.Equal(t, 0, h.State().DirtyLen())
	assert.Empty(t, h.State().Loaded())
	assert.Same(t, fresh, h.Target())
	assert.Equal(t, int64(7), h.PrimaryKey())
	assert.Empty(t, e.store.Writes)
	assert.Equal(t, 0, e.store.PersistCalls())

	v, err := h.Get("Name")
	require.NoError(t, err)
	assert.Equal(t, "stored", v)

	// 延迟属性重新加载
	_, err = h.Get("Bio")
	require.NoError(t, err)
	assert.Equal(t, 2, e.store.PropertyLoads("Bio"))
}

// TestRefresh_DropsLinks 刷新后关联属性读取新实例的值
func TestRefresh_DropsLinks(t *testing.T) {
	e := newEnv(t)
	h := e.managed(t, &ormtest.User{ID: 7})
	require.NoError(t, h.Set("Manager", e.managed(t, &ormtest.User{ID: 1})))

	e.store.PutRow("User", 7, &ormtest.User{ID: 7})
	require.NoError(t, NewRefresher(e.store).Refresh(h.Context()))

	v, err := h.Get("Manager")
	require.NoError(t, err)
	assert.Nil(t, v)
}

// TestRefresh_NotManaged 普通实例不可刷新
func TestRefresh_NotManaged(t *testing.T) {
	e := newEnv(t)
	u := &ormtest.User{ID: 7}
	err := NewRefresher(e.store).Refresh(e.ctx(t, u))
	assert.True(t, errors.Is(err, orm.ErrNotManaged))
	assert.Empty(t, e.store.Loads)

	assert.True(t, errors.Is(NewRefresher(e.store).Refresh(nil), orm.ErrValidation))
}

// TestRefresh_Failures 加载失败向上传播，状态保持不变
func TestRefresh_Failures(t *testing.T) {
	e := newEnv(t)
	h := e.managed(t, &ormtest.User{ID: 7})
	require.NoError(t, h.Set("Name", "B"))
	target := h.Target()

	err := NewRefresher(e.store).Refresh(h.Context())
	assert.True(t, errors.Is(err, orm.ErrPropagatedIO))
	assert.True(t, errors.Is(err, orm.ErrNotFound))
	assert.Equal(t, 1, h.State().DirtyLen())
	assert.Same(t, target, h.Target())

	e.store.PutRow("User", 7, &ormtest.Node{ID: 7})
	err = NewRefresher(e.store).Refresh(h.Context())
	assert.True(t, errors.Is(err, orm.ErrValidation))

	err = NewRefresher(nil).Refresh(h.Context())
	assert.True(t, errors.Is(err, orm.ErrUnsupported))
}

// TestRefresh_PostLoad 刷新成功后触发 PostLoad
func TestRefresh_PostLoad(t *testing.T) {
	e := newEnv(t)
	h := e.managed(t, &ormtest.User{ID: 7})
	e.store.PutRow("User", 7, &ormtest.User{ID: 7})

	var got []Event
	r := NewRefresher(e.store, InterceptorFunc(func(ctx *orm.Context, ev Event) error {
		got = append(got, ev)
		assert.Same(t, h, ctx.Entity())
		return nil
	}))
	require.NoError(t, r.Refresh(h.Context()))
	assert.Equal(t, []Event{PostLoad}, got)
}

// TestRefresh_DetachesWrappers 刷新前取得的集合包装器不再让句柄记脏
func TestRefresh_DetachesWrappers(t *testing.T) {
	e := newEnv(t)
	h := e.managed(t, &ormtest.User{ID: 7, Tags: []string{"old"}})
	stale, err := h.List("Tags")
	require.NoError(t, err)

	e.store.PutRow("User", 7, &ormtest.User{ID: 7, Tags: []string{"stored"}})
	require.NoError(t, NewRefresher(e.store).Refresh(h.Context()))

	require.NoError(t, stale.Add("x"))
	assert.Equal(t, 0, h.State().DirtyLen())
	assert.Equal(t, []string{"stored"}, h.Target().(*ormtest.User).Tags)

	fresh, err := h.List("Tags")
	require.NoError(t, err)
	require.NoError(t, fresh.Add("y"))
	assert.Equal(t, 1, h.State().DirtyLen())
	assert.Equal(t, []string{"stored", "y"}, h.Target().(*ormtest.User).Tags)
}
