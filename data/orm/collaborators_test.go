package orm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorm/data/orm"
	"colorm/data/orm/ormtest"
	"colorm/data/orm/schema"
)

// TestCombinedHandles_Route 计数器与宽表分别路由，缺少构建者时返回 UNSUPPORTED
func TestCombinedHandles_Route(t *testing.T) {
	meta, err := schema.NewRegistry().MetaFor(&ormtest.User{})
	require.NoError(t, err)
	visits, _ := meta.Property("Visits")
	notes, _ := meta.Property("Notes")
	ctx := orm.NewContext(context.Background(), meta, &ormtest.User{ID: 7})

	counters, wide := ormtest.NewHandles(), ormtest.NewHandles()
	h := orm.CombinedHandles{Counters: counters, WideMaps: wide}

	c, err := h.Counter(ctx, int64(7), visits, 3)
	require.NoError(t, err)
	v, err := c.Incr(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(4), v)

	w, err := h.WideMap(ctx, int64(7), notes)
	require.NoError(t, err)
	require.NoError(t, w.Put(ctx, "a", []byte("1")))
	got, ok, err := w.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), got)

	_, err = orm.CombinedHandles{}.Counter(ctx, int64(7), visits, 0)
	assert.True(t, errors.Is(err, orm.ErrUnsupported))
	_, err = orm.CombinedHandles{}.WideMap(ctx, int64(7), notes)
	assert.True(t, errors.Is(err, orm.ErrUnsupported))
}

// TestCheckCapabilities 实体需要的能力沿关联展开
func TestCheckCapabilities(t *testing.T) {
	meta, err := schema.NewRegistry().MetaFor(&ormtest.User{})
	require.NoError(t, err)

	all := orm.NewCapabilities(
		orm.CapabilityIncrementalWrite,
		orm.CapabilityLazyLoad,
		orm.CapabilityCounter,
		orm.CapabilityWideMap,
	)
	assert.NoError(t, orm.CheckCapabilities(meta, all))

	noWide := orm.NewCapabilities(orm.CapabilityIncrementalWrite, orm.CapabilityLazyLoad, orm.CapabilityCounter)
	err = orm.CheckCapabilities(meta, noWide)
	assert.True(t, errors.Is(err, orm.ErrUnsupported))
}
