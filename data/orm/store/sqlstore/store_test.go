package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "colorm/data/db"
	"colorm/data/db/basic"
	"colorm/data/orm"
	"colorm/data/orm/lifecycle"
	"colorm/data/orm/ormtest"
	"colorm/data/orm/schema"
	"colorm/logging"
)

type fixture struct {
	store *Store
	reg   *schema.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := basic.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &fixture{
		store: New(db, WithAutoMigrate(true), WithLogger(logging.NewNoopLogger())),
		reg:   schema.NewRegistry(),
	}
}

func (f *fixture) meta(t *testing.T, v any) *orm.EntityMeta {
	t.Helper()
	m, err := f.reg.MetaFor(v)
	require.NoError(t, err)
	return m
}

func (f *fixture) ctx(t *testing.T, entity any) *orm.Context {
	return orm.NewContext(context.Background(), f.meta(t, entity), entity, orm.WithLogger(logging.NewNoopLogger()))
}

func (f *fixture) manager() *lifecycle.Manager {
	return lifecycle.NewManager(f.reg, f.store,
		lifecycle.WithHandleBuilder(f.store),
		lifecycle.WithLogger(logging.NewNoopLogger()))
}

// TestStore_PersistLoad 整行写入后按主键读回；延迟列不随行加载
func TestStore_PersistLoad(t *testing.T) {
	f := newFixture(t)
	u := &ormtest.User{
		ID:      7,
		Name:    "A",
		Bio:     "bio",
		Tags:    []string{"x", "y"},
		Attrs:   map[string]string{"k": "v"},
		Address: &ormtest.Address{ID: "home"},
	}
	require.NoError(t, f.store.Persist(f.ctx(t, u)))

	got, err := f.store.Load(f.ctx(t, &ormtest.User{ID: 7}), f.meta(t, u))
	require.NoError(t, err)
	row := got.(*ormtest.User)
	assert.Equal(t, int64(7), row.ID)
	assert.Equal(t, "A", row.Name)
	assert.Empty(t, row.Bio)
	assert.Equal(t, []string{"x", "y"}, row.Tags)
	assert.Equal(t, map[string]string{"k": "v"}, row.Attrs)
	require.NotNil(t, row.Address)
	assert.Equal(t, "home", row.Address.ID)
	assert.Nil(t, row.Manager)

	bio, _ := f.meta(t, u).Property("Bio")
	require.NoError(t, f.store.LoadProperty(f.ctx(t, row), row, int64(7), bio))
	assert.Equal(t, "bio", row.Bio)

	missing, err := f.store.Load(f.ctx(t, &ormtest.User{ID: 8}), f.meta(t, u))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// TestStore_EmbeddedID 复合主键展开为多列
func TestStore_EmbeddedID(t *testing.T) {
	f := newFixture(t)
	o := &ormtest.Order{Key: ormtest.OrderKey{Customer: "c1", Seq: 2}, Amount: 9.5, Items: map[string]int{"a": 1}}
	require.NoError(t, f.store.Persist(f.ctx(t, o)))

	got, err := f.store.Load(f.ctx(t, &ormtest.Order{Key: o.Key}), f.meta(t, o))
	require.NoError(t, err)
	assert.Equal(t, o, got)

	other, err := f.store.Load(f.ctx(t, &ormtest.Order{Key: ormtest.OrderKey{Customer: "c1", Seq: 3}}), f.meta(t, o))
	require.NoError(t, err)
	assert.Nil(t, other)
}

// TestStore_PersistProperty 单列改写；主键、计数器不可改写，行不存在返回 NOT_FOUND
func TestStore_PersistProperty(t *testing.T) {
	f := newFixture(t)
	u := &ormtest.User{ID: 7, Name: "A"}
	require.NoError(t, f.store.Persist(f.ctx(t, u)))
	meta := f.meta(t, u)

	name, _ := meta.Property("Name")
	require.NoError(t, f.store.PersistProperty(f.ctx(t, u), int64(7), name, "B"))
	got, err := f.store.Load(f.ctx(t, &ormtest.User{ID: 7}), meta)
	require.NoError(t, err)
	assert.Equal(t, "B", got.(*ormtest.User).Name)

	err = f.store.PersistProperty(f.ctx(t, u), int64(7), meta.ID, int64(8))
	assert.True(t, errors.Is(err, orm.ErrIdentityImmutable))
	visits, _ := meta.Property("Visits")
	err = f.store.PersistProperty(f.ctx(t, u), int64(7), visits, int64(1))
	assert.True(t, errors.Is(err, orm.ErrUnsupportedMutation))

	err = f.store.PersistProperty(f.ctx(t, u), int64(99), name, "C")
	assert.True(t, errors.Is(err, orm.ErrNotFound))
}

// TestStore_Counter 计数器以实体字段为初值，Persist 不覆盖已有计数
func TestStore_Counter(t *testing.T) {
	f := newFixture(t)
	u := &ormtest.User{ID: 7, Visits: 5}
	require.NoError(t, f.store.Persist(f.ctx(t, u)))
	visits, _ := f.meta(t, u).Property("Visits")

	c, err := f.store.Counter(f.ctx(t, u), int64(7), visits, 5)
	require.NoError(t, err)
	v, err := c.Incr(f.ctx(t, u), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(8), v)
	v, err = c.Decr(f.ctx(t, u), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	u.Visits = 0
	require.NoError(t, f.store.Persist(f.ctx(t, u)))
	v, err = c.Get(f.ctx(t, u))
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	got, err := f.store.Load(f.ctx(t, &ormtest.User{ID: 7}), f.meta(t, u))
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.(*ormtest.User).Visits)

	fresh, err := f.store.Counter(f.ctx(t, u), int64(8), visits, 2)
	require.NoError(t, err)
	v, err = fresh.Get(f.ctx(t, u))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

// TestStore_WideMap 条目读写与按键升序分页
func TestStore_WideMap(t *testing.T) {
	f := newFixture(t)
	u := &ormtest.User{ID: 7, Notes: map[string][]byte{"a": []byte("1")}}
	require.NoError(t, f.store.Persist(f.ctx(t, u)))
	notes, _ := f.meta(t, u).Property("Notes")

	w, err := f.store.WideMap(f.ctx(t, u), int64(7), notes)
	require.NoError(t, err)
	v, ok, err := w.Get(f.ctx(t, u), "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	require.NoError(t, w.Put(f.ctx(t, u), "c", []byte("3")))
	require.NoError(t, w.Put(f.ctx(t, u), "b", []byte("2")))
	require.NoError(t, w.Put(f.ctx(t, u), "a", []byte("one")))

	entries, err := w.Range(f.ctx(t, u), "b", 0)
	require.NoError(t, err)
	assert.Equal(t, []orm.WideEntry{{Key: "b", Value: []byte("2")}, {Key: "c", Value: []byte("3")}}, entries)

	entries, err = w.Range(f.ctx(t, u), "", 1)
	require.NoError(t, err)
	assert.Equal(t, []orm.WideEntry{{Key: "a", Value: []byte("one")}}, entries)

	require.NoError(t, w.Remove(f.ctx(t, u), "a"))
	_, ok, err = w.Get(f.ctx(t, u), "a")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.store.WideMap(f.ctx(t, u), int64(7), f.meta(t, u).ID)
	assert.True(t, errors.Is(err, orm.ErrValidation))
}

// TestStore_Remove 删除主行与附表数据
func TestStore_Remove(t *testing.T) {
	f := newFixture(t)
	u := &ormtest.User{ID: 7, Visits: 1, Notes: map[string][]byte{"a": []byte("1")}}
	require.NoError(t, f.store.Persist(f.ctx(t, u)))
	require.NoError(t, f.store.Remove(f.ctx(t, u)))

	got, err := f.store.Load(f.ctx(t, &ormtest.User{ID: 7}), f.meta(t, u))
	require.NoError(t, err)
	assert.Nil(t, got)

	notes, _ := f.meta(t, u).Property("Notes")
	w, err := f.store.WideMap(f.ctx(t, u), int64(7), notes)
	require.NoError(t, err)
	entries, err := w.Range(f.ctx(t, u), "", 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

// TestStore_Manager 经由 Manager 完成新建、查找、增量合并与刷新
func TestStore_Manager(t *testing.T) {
	f := newFixture(t)
	m := f.manager()
	ctx := context.Background()

	h, err := m.Persist(ctx, &ormtest.Article{Base: ormtest.Base{ID: 1, Version: 1}, Title: "t", Body: "long"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), h.PrimaryKey())

	found, err := m.Find(ctx, (*ormtest.Article)(nil), int64(1))
	require.NoError(t, err)
	assert.Empty(t, found.Target().(*ormtest.Article).Body)
	body, err := found.Get("Body")
	require.NoError(t, err)
	assert.Equal(t, "long", body)

	require.NoError(t, found.Set("Title", "t2"))
	merged, err := m.Merge(ctx, found)
	require.NoError(t, err)
	assert.Same(t, found, merged)

	again, err := m.Find(ctx, (*ormtest.Article)(nil), int64(1))
	require.NoError(t, err)
	title, err := again.Get("Title")
	require.NoError(t, err)
	assert.Equal(t, "t2", title)

	require.NoError(t, m.Remove(ctx, again))
	_, err = m.Find(ctx, (*ormtest.Article)(nil), int64(1))
	assert.True(t, errors.Is(err, orm.ErrNotFound))
}

// TestStore_ManagerCounter 托管实体通过句柄修改计数器
func TestStore_ManagerCounter(t *testing.T) {
	f := newFixture(t)
	m := f.manager()
	ctx := context.Background()

	h, err := m.Persist(ctx, &ormtest.User{ID: 3, Name: "n", Visits: 10})
	require.NoError(t, err)
	c, err := h.Counter("Visits")
	require.NoError(t, err)
	v, err := c.Incr(h.Context(), 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), v)

	found, err := m.Find(ctx, (*ormtest.User)(nil), int64(3))
	require.NoError(t, err)
	assert.Equal(t, int64(15), found.Target().(*ormtest.User).Visits)
}

// Download 无符号计数器
type Download struct {
	ID   int64  `orm:"id"`
	Hits uint32 `orm:"counter"`
}

// TestStore_UnsignedCounter 无符号计数器字段可以保存、加载与递增
func TestStore_UnsignedCounter(t *testing.T) {
	f := newFixture(t)
	m := f.manager()
	ctx := context.Background()

	h, err := m.Persist(ctx, &Download{ID: 1, Hits: 4})
	require.NoError(t, err)
	found, err := m.Find(ctx, (*Download)(nil), int64(1))
	require.NoError(t, err)
	assert.Equal(t, uint32(4), found.Target().(*Download).Hits)

	c, err := h.Counter("Hits")
	require.NoError(t, err)
	v, err := c.Incr(h.Context(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)

	found, err = m.Find(ctx, (*Download)(nil), int64(1))
	require.NoError(t, err)
	assert.Equal(t, uint32(7), found.Target().(*Download).Hits)

	// 计数器减到负数后无法装入无符号字段
	_, err = c.Decr(h.Context(), 10)
	require.NoError(t, err)
	_, err = m.Find(ctx, (*Download)(nil), int64(1))
	assert.True(t, errors.Is(err, orm.ErrValidation))
}

// TestStore_CallerTransaction 绑定到调用方事务时写入随事务提交或回滚
func TestStore_CallerTransaction(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := &ormtest.Address{ID: "a", City: "x"}
	require.NoError(t, f.store.Persist(f.ctx(t, a)))
	meta := f.meta(t, a)

	boom := errors.New("boom")
	err := core.WithTx(ctx, f.store.DB(), func(tx core.ITransaction) error {
		txStore := f.store.WithDB(tx)
		if err := txStore.Persist(f.ctx(t, &ormtest.Address{ID: "b", City: "y"})); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, core.WithTx(ctx, f.store.DB(), func(tx core.ITransaction) error {
		txStore := f.store.WithDB(tx)
		if err := txStore.Persist(f.ctx(t, &ormtest.Address{ID: "c", City: "z"})); err != nil {
			return err
		}
		return txStore.Remove(f.ctx(t, a))
	}))

	for id, want := range map[string]bool{"a": false, "b": false, "c": true} {
		got, err := f.store.Load(f.ctx(t, &ormtest.Address{ID: id}), meta)
		require.NoError(t, err)
		assert.Equal(t, want, got != nil, id)
	}
}
