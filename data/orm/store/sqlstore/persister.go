package sqlstore

import (
	"context"
	"fmt"
	"reflect"

	dbsql "colorm/data/db/sql"
	"colorm/data/orm"
	"colorm/logging"
)

// Persist 整行写入（upsert），同时初始化计数器（已存在则保留）与宽表条目
func (s *Store) Persist(ctx *orm.Context) error {
	meta := ctx.Meta()
	if err := s.prepare(ctx, meta); err != nil {
		return err
	}
	target := ctx.Target()
	pk, err := ctx.PrimaryKey()
	if err != nil {
		return err
	}
	keyVals, err := meta.KeyValues(pk)
	if err != nil {
		return err
	}

	cols := append([]string(nil), meta.KeyColumns()...)
	vals := append([]any(nil), keyVals...)
	for _, p := range dataColumns(meta, false) {
		v, err := p.Value(target)
		if err != nil {
			return err
		}
		enc, err := encode(p, v)
		if err != nil {
			return err
		}
		cols = append(cols, p.Column)
		vals = append(vals, enc)
	}

	err = s.atomic(ctx, func(q dbsql.ISql) error {
		if _, err := q.UpsertInto(meta.Table).Columns(cols...).Values(vals...).Key(meta.KeyColumns()...).Exec(ctx); err != nil {
			return s.dbError(ctx, err, "persist", meta.Table)
		}
		return s.persistSide(ctx, q, meta, pk, target)
	})
	if err != nil {
		return err
	}
	s.logger.Debug(ctx, "row persisted", append(ctx.Fields(), logging.String("table", meta.Table))...)
	return nil
}

func (s *Store) persistSide(ctx context.Context, q dbsql.ISql, meta *orm.EntityMeta, pk any, target any) error {
	var key string
	for _, p := range meta.Properties {
		if p.Kind != orm.KindCounter && p.Kind != orm.KindWideMap {
			continue
		}
		if key == "" {
			var err error
			if key, err = encodeKey(pk); err != nil {
				return err
			}
		}
		f, err := p.Field(target)
		if err != nil {
			return err
		}
		if p.Kind == orm.KindCounter {
			_, err := q.UpsertInto(countersTable(meta)).
				Columns(colEntityKey, colProperty, colValue).
				Values(key, p.Name, encodeScalar(f)).
				Key(colEntityKey, colProperty).DoNothing().Exec(ctx)
			if err != nil {
				return s.dbError(ctx, err, "persist counter", countersTable(meta))
			}
			continue
		}
		if err := s.putEntries(ctx, q, meta, key, p, f); err != nil {
			return err
		}
	}
	return nil
}

// putEntries 把宽表字段中已有的条目写入附表
func (s *Store) putEntries(ctx context.Context, q dbsql.ISql, meta *orm.EntityMeta, key string, p *orm.PropertyMeta, f reflect.Value) error {
	if f.IsNil() {
		return nil
	}
	iter := f.MapRange()
	for iter.Next() {
		value, err := entryBytes(iter.Value())
		if err != nil {
			return err
		}
		_, err = q.UpsertInto(wideTable(meta)).
			Columns(colEntityKey, colProperty, colEntry, colValue).
			Values(key, p.Name, fmt.Sprint(iter.Key().Interface()), value).
			Key(colEntityKey, colProperty, colEntry).Exec(ctx)
		if err != nil {
			return s.dbError(ctx, err, "persist wide entry", wideTable(meta))
		}
	}
	return nil
}

// PersistProperty 改写单列；集合类属性整体改写
func (s *Store) PersistProperty(ctx *orm.Context, key any, prop *orm.PropertyMeta, value any) error {
	meta := ctx.Meta()
	if err := s.prepare(ctx, meta); err != nil {
		return err
	}
	switch prop.Kind {
	case orm.KindID:
		return orm.ErrIdentityImmutable.WithContext("entity", meta.Name)
	case orm.KindCounter, orm.KindWideMap:
		return orm.ErrUnsupportedMutation.WithContext("entity", meta.Name).WithContext("property", prop.Name)
	}
	enc, err := encode(prop, value)
	if err != nil {
		return err
	}
	where, args, err := s.keyWhere(s.sql.Dialect(), meta, key)
	if err != nil {
		return err
	}
	res, err := s.sql.Update(meta.Table).Set(prop.Column, enc).Where(where, args...).Exec(ctx)
	if err != nil {
		return s.dbError(ctx, err, "persist property", meta.Table)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return orm.ErrNotFound.WithContext("entity", meta.Name).WithContext("key", key)
	}
	s.logger.Debug(ctx, "property persisted", append(ctx.Fields(),
		logging.String("table", meta.Table),
		logging.String("column", prop.Column))...)
	return nil
}

// Remove 删除行以及计数器、宽表附表中的数据
func (s *Store) Remove(ctx *orm.Context) error {
	meta := ctx.Meta()
	if err := s.prepare(ctx, meta); err != nil {
		return err
	}
	pk, err := ctx.PrimaryKey()
	if err != nil {
		return err
	}
	where, args, err := s.keyWhere(s.sql.Dialect(), meta, pk)
	if err != nil {
		return err
	}
	key, err := encodeKey(pk)
	if err != nil {
		return err
	}
	return s.atomic(ctx, func(q dbsql.ISql) error {
		if _, err := q.DeleteFrom(meta.Table).Where(where, args...).Exec(ctx); err != nil {
			return s.dbError(ctx, err, "remove", meta.Table)
		}
		side := []struct {
			kind  orm.Kind
			table string
		}{
			{orm.KindCounter, countersTable(meta)},
			{orm.KindWideMap, wideTable(meta)},
		}
		for _, t := range side {
			if !hasKind(meta, t.kind) {
				continue
			}
			if _, err := q.DeleteFrom(t.table).Where(eq(q.Dialect(), colEntityKey), key).Exec(ctx); err != nil {
				return s.dbError(ctx, err, "remove", t.table)
			}
		}
		return nil
	})
}
