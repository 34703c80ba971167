// Package sqlstore 基于 data/db 的行存储：实现 Loader、Persister 与 HandleBuilder。
//
// 每个实体一张表：主键列（复合主键展开）加每个普通/集合/关联属性一列。
// 集合与非标量值以 JSON 文本保存，关联属性保存目标实体的主键。
// 计数器保存在 <table>_counters，宽表条目保存在 <table>_wide。
package sqlstore

import (
	"context"
	"strings"
	"sync"

	"colorm/config"
	core "colorm/data/db"
	"colorm/data/db/basic"
	"colorm/data/db/dialect"
	dbsql "colorm/data/db/sql"
	"colorm/data/orm"
	"colorm/logging"
)

const (
	colEntityKey = "entity_key"
	colProperty  = "property"
	colEntry     = "entry"
	colValue     = "value"
)

var (
	_ orm.Store         = (*Store)(nil)
	_ orm.HandleBuilder = (*Store)(nil)
)

// Store SQL 行存储
type Store struct {
	db          core.IDatabase
	sql         dbsql.ISql
	autoMigrate bool
	logger      logging.Logger
	migrated    *sync.Map // *orm.EntityMeta -> struct{}
}

// Option Store 选项
type Option func(*Store)

// WithAutoMigrate 首次使用实体时建表
func WithAutoMigrate(on bool) Option {
	return func(s *Store) { s.autoMigrate = on }
}

// WithLogger 日志器
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New 基于已打开的数据库创建存储
func New(db core.IDatabase, opts ...Option) *Store {
	s := &Store{
		db:       db,
		sql:      dbsql.New(db),
		logger:   logging.Component("orm.sqlstore"),
		migrated: &sync.Map{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open 按配置打开数据库并创建存储；AutoMigrate 取自配置
func Open(cfg config.DatabaseConfig, opts ...Option) (*Store, error) {
	db, err := basic.Open(cfg)
	if err != nil {
		return nil, err
	}
	opts = append([]Option{WithAutoMigrate(cfg.AutoMigrate)}, opts...)
	return New(db, opts...), nil
}

// WithDB 返回绑定到另一连接（通常是事务）的副本，建表记录共享
func (s *Store) WithDB(db core.IDatabase) *Store {
	cp := *s
	cp.db = db
	cp.sql = dbsql.New(db)
	return &cp
}

// DB 底层数据库
func (s *Store) DB() core.IDatabase { return s.db }

// Close 关闭底层数据库
func (s *Store) Close() error { return s.db.Close() }

// Capabilities 行存储支持全部能力
func (s *Store) Capabilities() orm.Capabilities {
	return orm.NewCapabilities(
		orm.CapabilityIncrementalWrite,
		orm.CapabilityLazyLoad,
		orm.CapabilityCounter,
		orm.CapabilityWideMap,
		orm.CapabilityEmbeddedID,
		orm.CapabilitySchema,
	)
}

func countersTable(meta *orm.EntityMeta) string { return meta.Table + "_counters" }
func wideTable(meta *orm.EntityMeta) string     { return meta.Table + "_wide" }

func hasKind(meta *orm.EntityMeta, k orm.Kind) bool {
	for _, p := range meta.Properties {
		if p.Kind == k {
			return true
		}
	}
	return false
}

// EnsureSchema 建立实体表及其计数器/宽表附表（已存在则跳过）
func (s *Store) EnsureSchema(ctx context.Context, meta *orm.EntityMeta) error {
	ct := s.sql.CreateTable(meta.Table)
	if meta.ID.IDKind == orm.IDEmbedded {
		for _, c := range meta.ID.Components {
			ct.Column(c.Column, columnType(c.Type), true)
		}
	} else {
		ct.Column(meta.ID.Column, columnType(meta.ID.Type), true)
	}
	for _, p := range dataColumns(meta, false) {
		ct.Column(p.Column, propertyColumnType(p), false)
	}
	ct.PrimaryKey(meta.KeyColumns()...)
	if err := ct.Exec(ctx); err != nil {
		return s.dbError(ctx, err, "ensure schema", meta.Table)
	}

	if hasKind(meta, orm.KindCounter) {
		err := s.sql.CreateTable(countersTable(meta)).
			Column(colEntityKey, dialect.TypeText, true).
			Column(colProperty, dialect.TypeText, true).
			Column(colValue, dialect.TypeInteger, true).
			PrimaryKey(colEntityKey, colProperty).
			Exec(ctx)
		if err != nil {
			return s.dbError(ctx, err, "ensure schema", countersTable(meta))
		}
	}
	if hasKind(meta, orm.KindWideMap) {
		err := s.sql.CreateTable(wideTable(meta)).
			Column(colEntityKey, dialect.TypeText, true).
			Column(colProperty, dialect.TypeText, true).
			Column(colEntry, dialect.TypeText, true).
			Column(colValue, dialect.TypeBlob, false).
			PrimaryKey(colEntityKey, colProperty, colEntry).
			Exec(ctx)
		if err != nil {
			return s.dbError(ctx, err, "ensure schema", wideTable(meta))
		}
	}
	s.migrated.Store(meta, struct{}{})
	s.logger.Debug(ctx, "schema ensured", logging.String("table", meta.Table))
	return nil
}

// prepare 开启自动建表时，每个实体首次使用前建表
func (s *Store) prepare(ctx context.Context, meta *orm.EntityMeta) error {
	if meta == nil {
		return orm.Validationf("sqlstore: nil metadata")
	}
	if !s.autoMigrate {
		return nil
	}
	if _, ok := s.migrated.Load(meta); ok {
		return nil
	}
	return s.EnsureSchema(ctx, meta)
}

// atomic 在事务中执行多条写入；已处于调用方事务中时开启保存点，失败只撤销本次写入
func (s *Store) atomic(ctx context.Context, fn func(q dbsql.ISql) error) error {
	return core.WithTx(ctx, s.db, func(tx core.ITransaction) error {
		return fn(dbsql.New(tx))
	})
}

// keyWhere 主键条件
func (s *Store) keyWhere(d dialect.Dialect, meta *orm.EntityMeta, pk any) (string, []any, error) {
	vals, err := meta.KeyValues(pk)
	if err != nil {
		return "", nil, err
	}
	return eq(d, meta.KeyColumns()...), vals, nil
}

func eq(d dialect.Dialect, cols ...string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = d.QuoteIdentifier(c) + " = ?"
	}
	return strings.Join(parts, " AND ")
}
