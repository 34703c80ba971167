package schema

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"colorm/data/orm"
	"colorm/data/orm/ormtest"
)

// TestRegistry_UserKinds 按 Go 类型与标签推断属性类别
func TestRegistry_UserKinds(t *testing.T) {
	r := NewRegistry()
	meta, err := r.MetaOf(reflect.TypeOf(&ormtest.User{}))
	require.NoError(t, err)

	assert.Equal(t, "users", meta.Table)
	assert.Equal(t, "User", meta.Name)
	assert.Equal(t, "ID", meta.ID.Name)
	assert.Equal(t, orm.IDSimple, meta.ID.IDKind)

	want := map[string]orm.Kind{
		"ID":      orm.KindID,
		"Name":    orm.KindPlain,
		"Bio":     orm.KindPlainLazy,
		"Tags":    orm.KindList,
		"Roles":   orm.KindSet,
		"Attrs":   orm.KindMap,
		"Friends": orm.KindList,
		"Visits":  orm.KindCounter,
		"Notes":   orm.KindWideMap,
		"Manager": orm.KindAssociation,
		"Address": orm.KindAssociation,
		"Mentor":  orm.KindAssociation,
	}
	require.Len(t, meta.Properties, len(want))
	for i, p := range meta.Properties {
		assert.Equal(t, orm.PropertyID(i), p.ID)
		assert.Equal(t, want[p.Name], p.Kind, p.Name)
	}

	manager, ok := meta.Property("Manager")
	require.True(t, ok)
	assert.Same(t, meta, manager.Target, "self reference resolves to the same metadata")
	assert.True(t, manager.Cascade.Has(orm.CascadeMerge))
	assert.True(t, manager.Cascade.Has(orm.CascadePersist))
	assert.False(t, manager.Cascade.Has(orm.CascadeRemove))

	address, _ := meta.Property("Address")
	assert.Equal(t, orm.CascadeAll, address.Cascade)
	assert.Equal(t, "Address", address.Target.Name)
	assert.Equal(t, "address", address.Target.Table)

	mentor, _ := meta.Property("Mentor")
	assert.Equal(t, orm.CascadeNone, mentor.Cascade)

	// 列名查找
	byColumn, ok := meta.Property("name")
	require.True(t, ok)
	assert.Equal(t, "Name", byColumn.Name)
	assert.Len(t, meta.Associations(), 3)
}

// TestRegistry_Cached 同一类型只构建一次，关联目标一并登记
func TestRegistry_Cached(t *testing.T) {
	r := NewRegistry()
	m1, err := r.MetaOf(reflect.TypeOf(ormtest.User{}))
	require.NoError(t, err)
	m2, err := r.MetaFor(&ormtest.User{})
	require.NoError(t, err)
	assert.Same(t, m1, m2)

	addr, err := r.MetaOf(reflect.TypeOf(ormtest.Address{}))
	require.NoError(t, err)
	p, _ := m1.Property("Address")
	assert.Same(t, p.Target, addr)
	assert.Equal(t, 2, r.Len())
}

// TestRegistry_Concurrent 并发获取得到同一份元数据
func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	metas := make([]*orm.EntityMeta, 16)
	for i := range metas {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.MetaOf(reflect.TypeOf(ormtest.Order{}))
			if err == nil {
				metas[i] = m
			}
		}(i)
	}
	wg.Wait()
	for _, m := range metas {
		assert.Same(t, metas[0], m)
	}
}

// TestRegistry_EmbeddedID 结构体主键展开为有序组成列
func TestRegistry_EmbeddedID(t *testing.T) {
	r := NewRegistry()
	meta, err := r.MetaOf(reflect.TypeOf(ormtest.Order{}))
	require.NoError(t, err)

	assert.Equal(t, orm.IDEmbedded, meta.ID.IDKind)
	assert.Equal(t, []string{"customer_id", "seq"}, meta.KeyColumns())

	vals, err := meta.KeyValues(ormtest.OrderKey{Customer: "c1", Seq: 3})
	require.NoError(t, err)
	assert.Equal(t, []any{"c1", 3}, vals)

	_, err = meta.KeyValues("c1")
	assert.True(t, errors.Is(err, orm.ErrValidation))

	items, _ := meta.Property("Items")
	assert.Equal(t, orm.KindMap, items.Kind)
}

// TestRegistry_EmbeddedStruct 匿名内嵌结构体展开，"-" 跳过
func TestRegistry_EmbeddedStruct(t *testing.T) {
	r := NewRegistry()
	meta, err := r.MetaOf(reflect.TypeOf(ormtest.Article{}))
	require.NoError(t, err)

	assert.Equal(t, "article", meta.Table)
	assert.Equal(t, []int{0, 0}, meta.ID.Index)
	_, ok := meta.Property("Skip")
	assert.False(t, ok)
	body, ok := meta.Property("content")
	require.True(t, ok)
	assert.Equal(t, orm.KindPlainLazy, body.Kind)

	a := &ormtest.Article{Base: ormtest.Base{ID: 5}}
	pk, err := meta.PrimaryKeyOf(a)
	require.NoError(t, err)
	assert.Equal(t, int64(5), pk)
}

type noID struct {
	Name string
}

type badCounter struct {
	ID    int    `orm:"id"`
	Count string `orm:"counter"`
}

type badWide struct {
	ID   int    `orm:"id"`
	Wide string `orm:"wide"`
}

type lazyID struct {
	ID int `orm:"id;lazy"`
}

type sliceID struct {
	ID []int `orm:"id"`
}

type badSet struct {
	ID   int               `orm:"id"`
	Tags map[string]string `orm:"set"`
}

type badAssociation struct {
	ID    int   `orm:"id"`
	Other *noID `orm:"join"`
}

type unknownOption struct {
	ID int `orm:"id;shiny"`
}

type badCascade struct {
	ID   int         `orm:"id"`
	Next *badCascade `orm:"cascade:explode"`
}

type twoIDs struct {
	A int `orm:"id"`
	B int `orm:"id"`
}

// TestRegistry_Invalid 非法声明返回校验错误
func TestRegistry_Invalid(t *testing.T) {
	cases := []struct {
		name string
		typ  reflect.Type
	}{
		{"no id", reflect.TypeOf(noID{})},
		{"counter on string", reflect.TypeOf(badCounter{})},
		{"wide on string", reflect.TypeOf(badWide{})},
		{"lazy id", reflect.TypeOf(lazyID{})},
		{"slice id", reflect.TypeOf(sliceID{})},
		{"set on map[string]string", reflect.TypeOf(badSet{})},
		{"association target without id", reflect.TypeOf(badAssociation{})},
		{"unknown option", reflect.TypeOf(unknownOption{})},
		{"unknown cascade", reflect.TypeOf(badCascade{})},
		{"two ids", reflect.TypeOf(twoIDs{})},
		{"not a struct", reflect.TypeOf(42)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := NewRegistry()
			_, err := r.MetaOf(tc.typ)
			require.Error(t, err)
			assert.True(t, errors.Is(err, orm.ErrValidation), err.Error())
			assert.Equal(t, 0, r.Len())
		})
	}
}

type timestamped struct {
	ID      int `orm:"id"`
	Created time.Time
	Updated *time.Time
	Raw     []byte
	Flags   map[string]bool `orm:"set"`
	Scores  map[string]bool
}

// TestRegistry_PlainTypes time.Time 与 []byte 视为普通属性
func TestRegistry_PlainTypes(t *testing.T) {
	r := NewRegistry()
	meta, err := r.MetaOf(reflect.TypeOf(timestamped{}))
	require.NoError(t, err)

	for name, kind := range map[string]orm.Kind{
		"Created": orm.KindPlain,
		"Updated": orm.KindPlain,
		"Raw":     orm.KindPlain,
		"Flags":   orm.KindSet,
		"Scores":  orm.KindMap,
	} {
		p, ok := meta.Property(name)
		require.True(t, ok, name)
		assert.Equal(t, kind, p.Kind, name)
	}
}

// TestRegistry_Register 手工登记的元数据优先
func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	meta := orm.NewEntityMeta(reflect.TypeOf(noID{}), "people")
	require.NoError(t, meta.Define([]*orm.PropertyMeta{
		{Name: "Name", Column: "name", Kind: orm.KindID, Type: reflect.TypeOf(""), Index: []int{0}},
	}))
	require.NoError(t, r.Register(meta))

	got, err := r.MetaOf(reflect.TypeOf(&noID{}))
	require.NoError(t, err)
	assert.Same(t, meta, got)

	assert.Error(t, r.Register(nil))
	assert.Error(t, r.Register(orm.NewEntityMeta(reflect.TypeOf(noID{}), "x")))
}

// TestToSnakeCase 驼峰转下划线
func TestToSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"Name":       "name",
		"UserID":     "user_id",
		"HTTPServer": "http_server",
		"OrderKey2":  "order_key2",
		"createdAt":  "created_at",
	} {
		assert.Equal(t, want, toSnakeCase(in), in)
	}
}
