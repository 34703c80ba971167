package sqlstore

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"fmt"

	"colorm/data/orm"
	appErrors "colorm/errors"
	"colorm/logging"
)

func (s *Store) dbError(ctx context.Context, err error, op, table string) error {
	return appErrors.WrapDatabaseError(ctx, err, fmt.Sprintf("sqlstore.%s %s", op, table))
}

// Load 按 ctx 中实体的主键读取一行，只填充非延迟列与计数器当前值；行不存在时返回 (nil, nil)
func (s *Store) Load(ctx *orm.Context, meta *orm.EntityMeta) (any, error) {
	if err := s.prepare(ctx, meta); err != nil {
		return nil, err
	}
	pk, err := ctx.PrimaryKey()
	if err != nil {
		return nil, err
	}
	d := s.sql.Dialect()
	where, args, err := s.keyWhere(d, meta, pk)
	if err != nil {
		return nil, err
	}

	props := dataColumns(meta, true)
	cols := make([]string, 0, len(props)+1)
	dests := make([]any, 0, len(props)+1)
	cols = append(cols, "1")
	dests = append(dests, new(int64))
	for _, p := range props {
		cols = append(cols, p.Column)
		dests = append(dests, scanDest(p))
	}

	err = s.sql.Select(cols...).From(meta.Table).Where(where, args...).QueryRow(ctx).Scan(dests...)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, s.dbError(ctx, err, "load", meta.Table)
	}

	row := meta.NewInstance()
	if err := meta.ID.Assign(row, pk); err != nil {
		return nil, err
	}
	for i, p := range props {
		if err := decode(row, p, dests[i+1]); err != nil {
			return nil, err
		}
	}
	if err := s.loadCounters(ctx, meta, pk, row); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "row loaded", append(ctx.Fields(), logging.String("table", meta.Table))...)
	return row, nil
}

func (s *Store) loadCounters(ctx *orm.Context, meta *orm.EntityMeta, pk any, row any) error {
	if !hasKind(meta, orm.KindCounter) {
		return nil
	}
	key, err := encodeKey(pk)
	if err != nil {
		return err
	}
	d := s.sql.Dialect()
	rows, err := s.sql.Select(colProperty, colValue).From(countersTable(meta)).
		Where(eq(d, colEntityKey), key).Query(ctx)
	if err != nil {
		return s.dbError(ctx, err, "load counters", countersTable(meta))
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var v int64
		if err := rows.Scan(&name, &v); err != nil {
			return s.dbError(ctx, err, "load counters", countersTable(meta))
		}
		if p, ok := meta.Property(name); ok && p.Kind == orm.KindCounter {
			f, err := p.Field(row)
			if err != nil {
				return err
			}
			if err := orm.SetInteger(f, v); err != nil {
				return err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return s.dbError(ctx, err, "load counters", countersTable(meta))
	}
	return nil
}

// LoadProperty 读取单列并写入 target；行不存在返回 NOT_FOUND
func (s *Store) LoadProperty(ctx *orm.Context, target any, key any, prop *orm.PropertyMeta) error {
	meta := ctx.Meta()
	if err := s.prepare(ctx, meta); err != nil {
		return err
	}
	switch prop.Kind {
	case orm.KindID, orm.KindCounter, orm.KindWideMap:
		return orm.Validationf("sqlstore: property %s is not a column", prop.Name)
	}
	d := s.sql.Dialect()
	where, args, err := s.keyWhere(d, meta, key)
	if err != nil {
		return err
	}
	dest := scanDest(prop)
	err = s.sql.Select(prop.Column).From(meta.Table).Where(where, args...).QueryRow(ctx).Scan(dest)
	if err != nil {
		return s.dbError(ctx, err, "load property", meta.Table)
	}
	return decode(target, prop, dest)
}
