package mongostore

import (
	stdErrors "errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"colorm/data/orm"
)

// Counter 计数器文档 {_id: {entity, property}, value}
func (s *Store) Counter(ctx *orm.Context, key any, prop *orm.PropertyMeta, current int64) (orm.Counter, error) {
	if prop.Kind != orm.KindCounter {
		return nil, orm.Validationf("mongostore: property %s is not a counter", prop.Name)
	}
	meta := ctx.Meta()
	id, err := keyDoc(meta, key)
	if err != nil {
		return nil, err
	}
	name := countersCollection(meta)
	return &counter{store: s, name: name, coll: s.collection(name), id: counterID(id, prop), seed: current}, nil
}

// WideMap 文档存储没有宽表
func (s *Store) WideMap(ctx *orm.Context, key any, prop *orm.PropertyMeta) (orm.WideMap, error) {
	return nil, orm.ErrUnsupported.WithContext("capability", string(orm.CapabilityWideMap))
}

type counter struct {
	store *Store
	name  string
	coll  Collection
	id    bson.D
	seed  int64
}

func (c *counter) Get(ctx *orm.Context) (int64, error) {
	raw, err := c.coll.FindByID(ctx, c.id, nil)
	if stdErrors.Is(err, mongo.ErrNoDocuments) {
		return c.seed, nil
	}
	if err != nil {
		return 0, c.store.dbError(ctx, err, "counter get", c.name)
	}
	return value(raw)
}

// Incr 先以 $setOnInsert 补齐初值，再 $inc
func (c *counter) Incr(ctx *orm.Context, delta int64) (int64, error) {
	seed := bson.D{{Key: "$setOnInsert", Value: bson.D{{Key: fieldValue, Value: c.seed}}}}
	if _, err := c.coll.UpdateByID(ctx, c.id, seed, true); err != nil {
		return 0, c.store.dbError(ctx, err, "counter seed", c.name)
	}
	raw, err := c.coll.IncByID(ctx, c.id, fieldValue, delta)
	if err != nil {
		return 0, c.store.dbError(ctx, err, "counter incr", c.name)
	}
	return value(raw)
}

func (c *counter) Decr(ctx *orm.Context, delta int64) (int64, error) {
	return c.Incr(ctx, -delta)
}

func value(raw bson.Raw) (int64, error) {
	var v int64
	if err := raw.Lookup(fieldValue).Unmarshal(&v); err != nil {
		return 0, orm.Validationf("mongostore: decode counter: %v", err)
	}
	return v, nil
}
