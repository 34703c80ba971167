package sql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	core "colorm/data/db"
	"colorm/data/db/dialect"
)

type upsertBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table      string
	columns    []string
	values     []any
	keyColumns []string
	update     []string
	doNothing  bool
}

func (b *upsertBuilder) Columns(cols ...string) IUpsertBuilder {
	b.columns = cols
	return b
}

func (b *upsertBuilder) Values(vals ...any) IUpsertBuilder {
	b.values = vals
	return b
}

func (b *upsertBuilder) Key(cols ...string) IUpsertBuilder {
	b.keyColumns = cols
	return b
}

func (b *upsertBuilder) Update(cols ...string) IUpsertBuilder {
	b.update = cols
	return b
}

func (b *upsertBuilder) DoNothing() IUpsertBuilder {
	b.doNothing = true
	return b
}

func (b *upsertBuilder) validate() error {
	if len(b.columns) == 0 {
		return fmt.Errorf("upsert: Columns is required")
	}
	if len(b.values) != len(b.columns) {
		return fmt.Errorf("upsert: values length mismatch columns length")
	}
	if len(b.keyColumns) == 0 {
		return fmt.Errorf("upsert: Key is required")
	}
	for _, k := range b.keyColumns {
		if b.index(k) < 0 {
			return fmt.Errorf("upsert: key column %s not found in Columns", k)
		}
	}
	for _, c := range b.update {
		if b.index(c) < 0 {
			return fmt.Errorf("upsert: update column %s not found in Columns", c)
		}
	}
	return nil
}

func (b *upsertBuilder) index(col string) int {
	for i, c := range b.columns {
		if c == col {
			return i
		}
	}
	return -1
}

// updateColumns 冲突时覆盖的列，默认全部非主键列
func (b *upsertBuilder) updateColumns() []string {
	if b.doNothing {
		return nil
	}
	if len(b.update) > 0 {
		return b.update
	}
	keys := make(map[string]bool, len(b.keyColumns))
	for _, k := range b.keyColumns {
		keys[k] = true
	}
	out := make([]string, 0, len(b.columns))
	for _, c := range b.columns {
		if !keys[c] {
			out = append(out, c)
		}
	}
	return out
}

func (b *upsertBuilder) insert() *insertBuilder {
	return &insertBuilder{
		db:      b.db,
		dialect: b.dialect,
		table:   b.table,
		columns: b.columns,
		rows:    [][]any{b.values},
	}
}

// Build 生成单条 INSERT ... ON CONFLICT 语句；仅在方言支持原生 upsert 时有意义
func (b *upsertBuilder) Build() (string, []any) {
	if err := b.validate(); err != nil {
		panic(err.Error())
	}
	q, args := b.insert().Build()
	return q + b.dialect.UpsertClause(b.keyColumns, b.updateColumns()), args
}

func (b *upsertBuilder) Exec(ctx context.Context) (sql.Result, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}
	if b.dialect.SupportsUpsert() {
		q, args := b.Build()
		return b.db.Exec(ctx, q, args...)
	}

	// 未知方言：先插入，唯一键冲突时改为按主键更新
	q, args := b.insert().Build()
	res, err := b.db.Exec(ctx, q, args...)
	if err == nil || !b.dialect.IsUniqueViolation(err) {
		return res, err
	}

	cols := b.updateColumns()
	if len(cols) == 0 {
		return res, nil
	}
	upd := &updateBuilder{db: b.db, dialect: b.dialect, table: b.table}
	for _, c := range cols {
		upd.Set(c, b.values[b.index(c)])
	}
	where := make([]string, len(b.keyColumns))
	whereArgs := make([]any, len(b.keyColumns))
	for i, k := range b.keyColumns {
		where[i] = mustQuote(b.dialect, "column", k) + " = ?"
		whereArgs[i] = b.values[b.index(k)]
	}
	upd.Where(strings.Join(where, " AND "), whereArgs...)
	return upd.Exec(ctx)
}
