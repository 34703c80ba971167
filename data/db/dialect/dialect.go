package dialect

import (
	"strconv"
	"strings"

	core "colorm/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// ColumnType 与方言无关的列类型，DDL 时映射为具体类型
type ColumnType int

const (
	TypeText ColumnType = iota
	TypeInteger
	TypeReal
	TypeBool
	TypeBlob
	TypeTimestamp
)

// Dialect 表示当前数据库的方言能力
//
// 只抽象行存储实际用到的能力：
//   - 标识符引号与占位符改写
//   - 原生 upsert（ON CONFLICT ... DO UPDATE）
//   - DDL 列类型
//   - 唯一键冲突错误识别
type Dialect struct {
	name Name
}

// New 根据字符串构造方言（大小写不敏感）
//
// pgx 是 jackc/pgx 注册到 database/sql 的驱动名，按 Postgres 处理。
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pgx":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从 IDatabase 实例推断方言
//
// 需要 IDatabase 可选实现 IDialectNameProvider 接口；否则返回 Unknown。
func FromDatabase(db core.IDatabase) Dialect {
	if db == nil {
		return Dialect{name: NameUnknown}
	}
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

// Name 返回标准化方言名
func (d Dialect) Name() Name {
	return d.name
}

// QuoteIdentifier 根据方言对标识符加双引号（如表名/列名）。
//
// 约定：
//   - 支持 schema.table、table.column 等带点形式，会对每一段分别加引号；
//   - Unknown 方言返回原始字符串，不做修改；
//   - 该方法不负责校验标识符语法。
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" || d.name == NameUnknown {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p != "" {
			parts[i] = `"` + p + `"`
		}
	}
	return strings.Join(parts, ".")
}

// Rebind 将通用占位符 ? 转换为方言特定形式。
//
// 目前仅对 Postgres 做替换，将 ? 依次替换为 $1、$2...；其他方言保持原样。
//
// 限制：简单字符扫描，不解析 SQL，字符串字面量中的 ? 也会被替换。
// 避免在字面量中使用 ?，改用参数传入。
func (d Dialect) Rebind(query string) string {
	if query == "" || d.name != NamePostgres {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 4)
	argIndex := 1
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '?' {
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(argIndex))
			argIndex++
		} else {
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

// SupportsUpsert 是否支持 INSERT ... ON CONFLICT (...) DO UPDATE
//
// SQLite 3.24+ 与 Postgres 9.5+ 均支持；未知方言退化为先插入后更新。
func (d Dialect) SupportsUpsert() bool {
	return d.name == NameSQLite || d.name == NamePostgres
}

// UpsertClause 生成 ON CONFLICT 子句；update 为空时生成 DO NOTHING
func (d Dialect) UpsertClause(keys, update []string) string {
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = d.QuoteIdentifier(k)
	}
	var sb strings.Builder
	sb.WriteString(" ON CONFLICT (")
	sb.WriteString(strings.Join(quoted, ", "))
	sb.WriteString(")")
	if len(update) == 0 {
		sb.WriteString(" DO NOTHING")
		return sb.String()
	}
	sb.WriteString(" DO UPDATE SET ")
	for i, c := range update {
		if i > 0 {
			sb.WriteString(", ")
		}
		q := d.QuoteIdentifier(c)
		sb.WriteString(q)
		sb.WriteString(" = excluded.")
		sb.WriteString(q)
	}
	return sb.String()
}

// TypeName 列类型在当前方言下的 DDL 名称
func (d Dialect) TypeName(t ColumnType) string {
	switch d.name {
	case NamePostgres:
		switch t {
		case TypeInteger:
			return "BIGINT"
		case TypeReal:
			return "DOUBLE PRECISION"
		case TypeBool:
			return "BOOLEAN"
		case TypeBlob:
			return "BYTEA"
		case TypeTimestamp:
			return "TIMESTAMPTZ"
		default:
			return "TEXT"
		}
	default:
		switch t {
		case TypeInteger, TypeBool:
			return "INTEGER"
		case TypeReal:
			return "REAL"
		case TypeBlob:
			return "BLOB"
		case TypeTimestamp:
			return "TIMESTAMP"
		default:
			return "TEXT"
		}
	}
}

// IsUniqueViolation 判断错误是否为唯一键/主键冲突
//
// 使用错误消息关键字匹配：
//   - SQLite: "UNIQUE constraint failed"
//   - Postgres: "duplicate key value" / "unique constraint" (SQLSTATE 23505)
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch d.name {
	case NameSQLite:
		return strings.Contains(msg, "unique constraint failed")
	case NamePostgres:
		return strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "unique constraint") ||
			strings.Contains(msg, "23505")
	default:
		return strings.Contains(msg, "duplicate key") ||
			strings.Contains(msg, "unique constraint")
	}
}
