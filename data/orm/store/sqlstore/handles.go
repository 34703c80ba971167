package sqlstore

import (
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"reflect"

	dbsql "colorm/data/db/sql"
	"colorm/data/orm"
)

// Counter 计数器句柄；首次访问时以实体字段中的当前值作为初值
func (s *Store) Counter(ctx *orm.Context, key any, prop *orm.PropertyMeta, current int64) (orm.Counter, error) {
	if prop.Kind != orm.KindCounter {
		return nil, orm.Validationf("sqlstore: property %s is not a counter", prop.Name)
	}
	meta := ctx.Meta()
	if err := s.prepare(ctx, meta); err != nil {
		return nil, err
	}
	k, err := encodeKey(key)
	if err != nil {
		return nil, err
	}
	return &counter{store: s, table: countersTable(meta), key: k, prop: prop.Name, seed: current}, nil
}

// WideMap 宽表句柄
func (s *Store) WideMap(ctx *orm.Context, key any, prop *orm.PropertyMeta) (orm.WideMap, error) {
	if prop.Kind != orm.KindWideMap {
		return nil, orm.Validationf("sqlstore: property %s is not a wide map", prop.Name)
	}
	meta := ctx.Meta()
	if err := s.prepare(ctx, meta); err != nil {
		return nil, err
	}
	k, err := encodeKey(key)
	if err != nil {
		return nil, err
	}
	return &wideMap{store: s, table: wideTable(meta), key: k, prop: prop.Name}, nil
}

type counter struct {
	store *Store
	table string
	key   string
	prop  string
	seed  int64
}

func (c *counter) where(q dbsql.ISql) string {
	return eq(q.Dialect(), colEntityKey, colProperty)
}

func (c *counter) Get(ctx *orm.Context) (int64, error) {
	q := c.store.sql
	var v int64
	err := q.Select(colValue).From(c.table).Where(c.where(q), c.key, c.prop).QueryRow(ctx).Scan(&v)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return c.seed, nil
	}
	if err != nil {
		return 0, c.store.dbError(ctx, err, "counter get", c.table)
	}
	return v, nil
}

// Incr 在同一事务内：补齐初值行、累加、读回结果
func (c *counter) Incr(ctx *orm.Context, delta int64) (int64, error) {
	var v int64
	err := c.store.atomic(ctx, func(q dbsql.ISql) error {
		_, err := q.UpsertInto(c.table).
			Columns(colEntityKey, colProperty, colValue).
			Values(c.key, c.prop, c.seed).
			Key(colEntityKey, colProperty).DoNothing().Exec(ctx)
		if err != nil {
			return c.store.dbError(ctx, err, "counter seed", c.table)
		}
		col := q.Dialect().QuoteIdentifier(colValue)
		_, err = q.Update(c.table).SetExpr(col+" = "+col+" + ?", delta).Where(c.where(q), c.key, c.prop).Exec(ctx)
		if err != nil {
			return c.store.dbError(ctx, err, "counter incr", c.table)
		}
		err = q.Select(colValue).From(c.table).Where(c.where(q), c.key, c.prop).QueryRow(ctx).Scan(&v)
		if err != nil {
			return c.store.dbError(ctx, err, "counter incr", c.table)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return v, nil
}

func (c *counter) Decr(ctx *orm.Context, delta int64) (int64, error) {
	return c.Incr(ctx, -delta)
}

type wideMap struct {
	store *Store
	table string
	key   string
	prop  string
}

func (w *wideMap) Get(ctx *orm.Context, entry string) ([]byte, bool, error) {
	q := w.store.sql
	var v []byte
	err := q.Select(colValue).From(w.table).
		Where(eq(q.Dialect(), colEntityKey, colProperty, colEntry), w.key, w.prop, entry).
		QueryRow(ctx).Scan(&v)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, w.store.dbError(ctx, err, "wide get", w.table)
	}
	return v, true, nil
}

func (w *wideMap) Put(ctx *orm.Context, entry string, value []byte) error {
	_, err := w.store.sql.UpsertInto(w.table).
		Columns(colEntityKey, colProperty, colEntry, colValue).
		Values(w.key, w.prop, entry, value).
		Key(colEntityKey, colProperty, colEntry).Exec(ctx)
	if err != nil {
		return w.store.dbError(ctx, err, "wide put", w.table)
	}
	return nil
}

func (w *wideMap) Remove(ctx *orm.Context, entry string) error {
	q := w.store.sql
	_, err := q.DeleteFrom(w.table).
		Where(eq(q.Dialect(), colEntityKey, colProperty, colEntry), w.key, w.prop, entry).
		Exec(ctx)
	if err != nil {
		return w.store.dbError(ctx, err, "wide remove", w.table)
	}
	return nil
}

func (w *wideMap) Range(ctx *orm.Context, from string, limit int) ([]orm.WideEntry, error) {
	q := w.store.sql
	d := q.Dialect()
	sel := q.Select(colEntry, colValue).From(w.table).
		Where(eq(d, colEntityKey, colProperty), w.key, w.prop).
		And(d.QuoteIdentifier(colEntry)+" >= ?", from).
		OrderBy(d.QuoteIdentifier(colEntry))
	if limit > 0 {
		sel = sel.Limit(limit)
	}
	rows, err := sel.Query(ctx)
	if err != nil {
		return nil, w.store.dbError(ctx, err, "wide range", w.table)
	}
	defer rows.Close()

	var out []orm.WideEntry
	for rows.Next() {
		var e orm.WideEntry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, w.store.dbError(ctx, err, "wide range", w.table)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, w.store.dbError(ctx, err, "wide range", w.table)
	}
	return out, nil
}

// entryBytes 宽表字段中的条目值：[]byte 原样保存，其余类型保存 JSON
func entryBytes(v reflect.Value) ([]byte, error) {
	if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
		return append([]byte(nil), v.Bytes()...), nil
	}
	b, err := json.Marshal(v.Interface())
	if err != nil {
		return nil, orm.Validationf("sqlstore: encode wide entry: %v", err)
	}
	return b, nil
}
