package sql

import (
	"context"
	"strings"

	core "colorm/data/db"
	"colorm/data/db/dialect"
)

type columnDef struct {
	name    string
	typ     dialect.ColumnType
	notNull bool
}

type createTableBuilder struct {
	db      core.IDatabase
	dialect dialect.Dialect

	table   string
	columns []columnDef
	pk      []string
}

func (b *createTableBuilder) Column(name string, typ dialect.ColumnType, notNull bool) ICreateTableBuilder {
	b.columns = append(b.columns, columnDef{name: name, typ: typ, notNull: notNull})
	return b
}

func (b *createTableBuilder) PrimaryKey(cols ...string) ICreateTableBuilder {
	b.pk = cols
	return b
}

func (b *createTableBuilder) Build() string {
	if len(b.columns) == 0 {
		panic("createTableBuilder: at least one column is required")
	}
	defs := make([]string, 0, len(b.columns)+1)
	for _, c := range b.columns {
		def := mustQuote(b.dialect, "column", c.name) + " " + b.dialect.TypeName(c.typ)
		if c.notNull {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if len(b.pk) > 0 {
		defs = append(defs, "PRIMARY KEY ("+strings.Join(quoteAll(b.dialect, "column", b.pk), ", ")+")")
	}
	return "CREATE TABLE IF NOT EXISTS " + mustQuote(b.dialect, "table", b.table) +
		" (" + strings.Join(defs, ", ") + ")"
}

func (b *createTableBuilder) Exec(ctx context.Context) error {
	_, err := b.db.Exec(ctx, b.Build())
	return err
}
