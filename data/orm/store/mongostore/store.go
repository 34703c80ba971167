// Package mongostore 基于 MongoDB 的文档存储：每个实体一个文档，_id 为主键
// （复合主键为子文档）。计数器保存在 <table>_counters 集合，不支持宽表。
package mongostore

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"colorm/config"
	"colorm/data/orm"
	appErrors "colorm/errors"
	"colorm/logging"
)

const fieldValue = "value"

var (
	_ orm.Store         = (*Store)(nil)
	_ orm.HandleBuilder = (*Store)(nil)
)

// Store 文档存储
type Store struct {
	collection func(name string) Collection
	client     *mongo.Client
	logger     logging.Logger
}

// Option Store 选项
type Option func(*Store)

// WithLogger 日志器
func WithLogger(l logging.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New 使用指定数据库
func New(db *mongo.Database, opts ...Option) *Store {
	return NewWithCollections(func(name string) Collection {
		return WrapCollection(db.Collection(name))
	}, opts...)
}

// NewWithCollections 按集合名获取 Collection，便于替换实现
func NewWithCollections(fn func(name string) Collection, opts ...Option) *Store {
	s := &Store{
		collection: fn,
		logger:     logging.Component("orm.mongostore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open 连接并 Ping，成功后返回绑定到 cfg.Database 的存储
func Open(ctx context.Context, cfg config.MongoConfig, opts ...Option) (*Store, error) {
	if cfg.URI == "" {
		return nil, appErrors.NewError(appErrors.ErrCodeInvalidInput, "mongodb uri is empty")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, appErrors.WrapDatabaseError(ctx, err, "mongostore.connect")
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, appErrors.WrapDatabaseError(ctx, err, "mongostore.ping")
	}

	s := New(client.Database(cfg.Database), opts...)
	s.client = client
	s.logger.Info(ctx, "open mongodb success", logging.String("database", cfg.Database))
	return s, nil
}

// Close 断开 Open 建立的连接
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// Capabilities 不支持宽表与建表
func (s *Store) Capabilities() orm.Capabilities {
	return orm.NewCapabilities(
		orm.CapabilityIncrementalWrite,
		orm.CapabilityLazyLoad,
		orm.CapabilityCounter,
		orm.CapabilityEmbeddedID,
	)
}

func (s *Store) dbError(ctx context.Context, err error, op, coll string) error {
	return appErrors.WrapDatabaseError(ctx, err, fmt.Sprintf("mongostore.%s %s", op, coll))
}

func countersCollection(meta *orm.EntityMeta) string { return meta.Table + "_counters" }

func counterID(key any, prop *orm.PropertyMeta) bson.D {
	return bson.D{{Key: "entity", Value: key}, {Key: "property", Value: prop.Name}}
}

// Load 读取文档，投影掉延迟属性；不存在时返回 (nil, nil)
func (s *Store) Load(ctx *orm.Context, meta *orm.EntityMeta) (any, error) {
	pk, err := ctx.PrimaryKey()
	if err != nil {
		return nil, err
	}
	id, err := keyDoc(meta, pk)
	if err != nil {
		return nil, err
	}
	var projection bson.D
	for _, p := range meta.Properties {
		if p.Kind.IsLazy() {
			projection = append(projection, bson.E{Key: p.Column, Value: 0})
		}
	}
	raw, err := s.collection(meta.Table).FindByID(ctx, id, projection)
	if stdErrors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, s.dbError(ctx, err, "load", meta.Table)
	}

	row := meta.NewInstance()
	if err := meta.ID.Assign(row, pk); err != nil {
		return nil, err
	}
	for _, p := range fields(meta, true) {
		if err := decode(row, p, raw.Lookup(p.Column)); err != nil {
			return nil, err
		}
	}
	for _, p := range meta.Properties {
		if p.Kind != orm.KindCounter {
			continue
		}
		c, err := s.collection(countersCollection(meta)).FindByID(ctx, counterID(id, p), nil)
		if stdErrors.Is(err, mongo.ErrNoDocuments) {
			continue
		}
		if err != nil {
			return nil, s.dbError(ctx, err, "load counter", countersCollection(meta))
		}
		n, err := value(c)
		if err != nil {
			return nil, err
		}
		f, err := p.Field(row)
		if err != nil {
			return nil, err
		}
		if err := orm.SetInteger(f, n); err != nil {
			return nil, err
		}
	}
	s.logger.Debug(ctx, "document loaded", append(ctx.Fields(), logging.String("collection", meta.Table))...)
	return row, nil
}

// LoadProperty 只投影单个字段
func (s *Store) LoadProperty(ctx *orm.Context, target any, key any, prop *orm.PropertyMeta) error {
	meta := ctx.Meta()
	switch prop.Kind {
	case orm.KindID, orm.KindCounter, orm.KindWideMap:
		return orm.Validationf("mongostore: property %s is not a document field", prop.Name)
	}
	id, err := keyDoc(meta, key)
	if err != nil {
		return err
	}
	raw, err := s.collection(meta.Table).FindByID(ctx, id, bson.D{{Key: prop.Column, Value: 1}})
	if stdErrors.Is(err, mongo.ErrNoDocuments) {
		return orm.ErrNotFound.WithContext("entity", meta.Name).WithContext("key", key)
	}
	if err != nil {
		return s.dbError(ctx, err, "load property", meta.Table)
	}
	return decode(target, prop, raw.Lookup(prop.Column))
}

// Persist 整体替换文档，计数器仅在不存在时以字段值初始化
func (s *Store) Persist(ctx *orm.Context) error {
	meta := ctx.Meta()
	for _, p := range meta.Properties {
		if p.Kind == orm.KindWideMap {
			return orm.ErrUnsupported.WithContext("entity", meta.Name).WithContext("property", p.Name)
		}
	}
	target := ctx.Target()
	pk, err := ctx.PrimaryKey()
	if err != nil {
		return err
	}
	id, err := keyDoc(meta, pk)
	if err != nil {
		return err
	}

	doc := bson.D{{Key: "_id", Value: id}}
	for _, p := range fields(meta, false) {
		v, err := p.Value(target)
		if err != nil {
			return err
		}
		enc, err := encode(p, v)
		if err != nil {
			return err
		}
		if enc != nil {
			doc = append(doc, bson.E{Key: p.Column, Value: enc})
		}
	}
	if err := s.collection(meta.Table).ReplaceByID(ctx, id, doc); err != nil {
		return s.dbError(ctx, err, "persist", meta.Table)
	}

	for _, p := range meta.Properties {
		if p.Kind != orm.KindCounter {
			continue
		}
		f, err := p.Field(target)
		if err != nil {
			return err
		}
		seed := bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: fieldValue, Value: orm.IntegerOf(f)}}}}
		if _, err := s.collection(countersCollection(meta)).UpdateByID(ctx, counterID(id, p), seed, true); err != nil {
			return s.dbError(ctx, err, "persist counter", countersCollection(meta))
		}
	}
	s.logger.Debug(ctx, "document persisted", append(ctx.Fields(), logging.String("collection", meta.Table))...)
	return nil
}

// PersistProperty 以 $set 改写字段，空值以 $unset 移除
func (s *Store) PersistProperty(ctx *orm.Context, key any, prop *orm.PropertyMeta, value any) error {
	meta := ctx.Meta()
	switch prop.Kind {
	case orm.KindID:
		return orm.ErrIdentityImmutable.WithContext("entity", meta.Name)
	case orm.KindCounter, orm.KindWideMap:
		return orm.ErrUnsupportedMutation.WithContext("entity", meta.Name).WithContext("property", prop.Name)
	}
	id, err := keyDoc(meta, key)
	if err != nil {
		return err
	}
	enc, err := encode(prop, value)
	if err != nil {
		return err
	}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: prop.Column, Value: enc}}}}
	if enc == nil {
		update = bson.D{{Key: "$unset", Value: bson.D{{Key: prop.Column, Value: ""}}}}
	}
	matched, err := s.collection(meta.Table).UpdateByID(ctx, id, update, false)
	if err != nil {
		return s.dbError(ctx, err, "persist property", meta.Table)
	}
	if matched == 0 {
		return orm.ErrNotFound.WithContext("entity", meta.Name).WithContext("key", key)
	}
	s.logger.Debug(ctx, "field persisted", append(ctx.Fields(),
		logging.String("collection", meta.Table),
		logging.String("field", prop.Column))...)
	return nil
}

// Remove 删除文档及其计数器
func (s *Store) Remove(ctx *orm.Context) error {
	meta := ctx.Meta()
	pk, err := ctx.PrimaryKey()
	if err != nil {
		return err
	}
	id, err := keyDoc(meta, pk)
	if err != nil {
		return err
	}
	if err := s.collection(meta.Table).DeleteByID(ctx, id); err != nil {
		return s.dbError(ctx, err, "remove", meta.Table)
	}
	for _, p := range meta.Properties {
		if p.Kind != orm.KindCounter {
			continue
		}
		if err := s.collection(countersCollection(meta)).DeleteByID(ctx, counterID(id, p)); err != nil {
			return s.dbError(ctx, err, "remove counter", countersCollection(meta))
		}
	}
	return nil
}
