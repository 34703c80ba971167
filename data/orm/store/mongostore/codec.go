package mongostore

import (
	"reflect"

	"go.mongodb.org/mongo-driver/v2/bson"

	"colorm/data/orm"
)

// fields 文档中保存的属性（不含主键、计数器与宽表）
func fields(meta *orm.EntityMeta, eagerOnly bool) []*orm.PropertyMeta {
	return meta.Columns(func(p *orm.PropertyMeta) bool {
		switch p.Kind {
		case orm.KindID, orm.KindCounter, orm.KindWideMap:
			return false
		}
		return !eagerOnly || !p.Kind.IsLazy()
	})
}

// keyDoc 主键的文档形式：单值主键原样使用，复合主键为按列名排列的子文档
func keyDoc(meta *orm.EntityMeta, pk any) (any, error) {
	vals, err := meta.KeyValues(pk)
	if err != nil {
		return nil, err
	}
	if meta.ID.IDKind != orm.IDEmbedded {
		return vals[0], nil
	}
	cols := meta.KeyColumns()
	doc := make(bson.D, len(cols))
	for i, c := range cols {
		doc[i] = bson.E{Key: c, Value: vals[i]}
	}
	return doc, nil
}

// decodeKey keyDoc 的逆操作
func decodeKey(meta *orm.EntityMeta, rv bson.RawValue) (any, error) {
	key := reflect.New(meta.ID.Type).Elem()
	if meta.ID.IDKind != orm.IDEmbedded {
		if err := rv.Unmarshal(key.Addr().Interface()); err != nil {
			return nil, orm.Validationf("mongostore: decode %s key: %v", meta.Name, err)
		}
		return key.Interface(), nil
	}
	doc, ok := rv.DocumentOK()
	if !ok {
		return nil, orm.Validationf("mongostore: %s key is not a document", meta.Name)
	}
	for _, c := range meta.ID.Components {
		field := key.FieldByIndex(c.Index)
		if err := doc.Lookup(c.Column).Unmarshal(field.Addr().Interface()); err != nil {
			return nil, orm.Validationf("mongostore: decode %s key %s: %v", meta.Name, c.Column, err)
		}
	}
	return key.Interface(), nil
}

// encode 属性值的文档形式；nil 表示字段缺省
func encode(p *orm.PropertyMeta, value any) (any, error) {
	if p.Kind == orm.KindAssociation {
		return encodeAssociation(p, value)
	}
	rv, err := p.Convert(value)
	if err != nil {
		return nil, err
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
	}
	return rv.Interface(), nil
}

// encodeAssociation 关联属性保存目标主键
func encodeAssociation(p *orm.PropertyMeta, value any) (any, error) {
	if value == nil {
		return nil, nil
	}
	var pk any
	if k, ok := value.(orm.Keyed); ok {
		pk = k.PrimaryKey()
	} else {
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.Ptr && rv.IsNil() {
			return nil, nil
		}
		var err error
		if pk, err = p.Target.PrimaryKeyOf(value); err != nil {
			return nil, err
		}
	}
	return keyDoc(p.Target, pk)
}

// decode 把字段值写入 target；缺省或 null 写入零值
func decode(target any, p *orm.PropertyMeta, rv bson.RawValue) error {
	f, err := p.Field(target)
	if err != nil {
		return err
	}
	if rv.IsZero() || rv.Type == bson.TypeNull {
		f.Set(reflect.Zero(f.Type()))
		return nil
	}
	if p.Kind == orm.KindAssociation {
		key, err := decodeKey(p.Target, rv)
		if err != nil {
			return err
		}
		ref := p.Target.NewInstance()
		if err := p.Target.ID.Assign(ref, key); err != nil {
			return err
		}
		f.Set(reflect.ValueOf(ref))
		return nil
	}
	ptr := reflect.New(f.Type())
	if err := rv.Unmarshal(ptr.Interface()); err != nil {
		return orm.Validationf("mongostore: decode %s: %v", p.Name, err)
	}
	f.Set(ptr.Elem())
	return nil
}
