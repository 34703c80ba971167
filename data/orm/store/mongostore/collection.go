package mongostore

import (
	"context"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Collection 存储用到的按 _id 操作的集合接口
type Collection interface {
	// FindByID 查找文档；不存在返回 mongo.ErrNoDocuments。projection 为空时返回整个文档
	FindByID(ctx context.Context, id any, projection bson.D) (bson.Raw, error)
	// ReplaceByID 整体替换，不存在时插入
	ReplaceByID(ctx context.Context, id any, doc any) error
	// UpdateByID 执行更新操作符，返回匹配的文档数
	UpdateByID(ctx context.Context, id any, update bson.D, upsert bool) (int64, error)
	// IncByID 原子累加 field（不存在时创建），返回更新后的文档
	IncByID(ctx context.Context, id any, field string, delta int64) (bson.Raw, error)
	DeleteByID(ctx context.Context, id any) error
}

// driverCollection 基于 *mongo.Collection 的实现
type driverCollection struct {
	c *mongo.Collection
}

// WrapCollection 把驱动集合适配为 Collection
func WrapCollection(c *mongo.Collection) Collection {
	return driverCollection{c: c}
}

func byID(id any) bson.D {
	return bson.D{{Key: "_id", Value: id}}
}

func (d driverCollection) FindByID(ctx context.Context, id any, projection bson.D) (bson.Raw, error) {
	opts := options.FindOne()
	if len(projection) > 0 {
		opts.SetProjection(projection)
	}
	return d.c.FindOne(ctx, byID(id), opts).Raw()
}

func (d driverCollection) ReplaceByID(ctx context.Context, id any, doc any) error {
	_, err := d.c.ReplaceOne(ctx, byID(id), doc, options.Replace().SetUpsert(true))
	return err
}

func (d driverCollection) UpdateByID(ctx context.Context, id any, update bson.D, upsert bool) (int64, error) {
	res, err := d.c.UpdateOne(ctx, byID(id), update, options.UpdateOne().SetUpsert(upsert))
	if err != nil {
		return 0, err
	}
	return res.MatchedCount + res.UpsertedCount, nil
}

func (d driverCollection) IncByID(ctx context.Context, id any, field string, delta int64) (bson.Raw, error) {
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	update := bson.D{{Key: "$inc", Value: bson.D{{Key: field, Value: delta}}}}
	return d.c.FindOneAndUpdate(ctx, byID(id), update, opts).Raw()
}

func (d driverCollection) DeleteByID(ctx context.Context, id any) error {
	_, err := d.c.DeleteOne(ctx, byID(id))
	return err
}
