package sqlstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"reflect"

	"colorm/data/db/dialect"
	"colorm/data/orm"
)

// dataColumns 主表中的非主键列；eagerOnly 时排除延迟属性
func dataColumns(meta *orm.EntityMeta, eagerOnly bool) []*orm.PropertyMeta {
	return meta.Columns(func(p *orm.PropertyMeta) bool {
		switch p.Kind {
		case orm.KindID, orm.KindCounter, orm.KindWideMap:
			return false
		}
		return !eagerOnly || !p.Kind.IsLazy()
	})
}

// columnType 标量 Go 类型对应的列类型；其余类型以 JSON 文本保存
func columnType(t reflect.Type) dialect.ColumnType {
	if t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8 {
		return dialect.TypeBlob
	}
	switch t.Kind() {
	case reflect.String:
		return dialect.TypeText
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return dialect.TypeInteger
	case reflect.Float32, reflect.Float64:
		return dialect.TypeReal
	case reflect.Bool:
		return dialect.TypeBool
	default:
		return dialect.TypeText
	}
}

// isJSON 属性值是否以 JSON 文本保存
func isJSON(p *orm.PropertyMeta) bool {
	switch p.Kind.Base() {
	case orm.KindList, orm.KindSet, orm.KindMap, orm.KindAssociation:
		return true
	}
	return isJSONType(p.Type)
}

func isJSONType(t reflect.Type) bool {
	if columnType(t) != dialect.TypeText {
		return false
	}
	return t.Kind() != reflect.String
}

func propertyColumnType(p *orm.PropertyMeta) dialect.ColumnType {
	if isJSON(p) {
		return dialect.TypeText
	}
	return columnType(p.Type)
}

// encodeKey 附表中的实体键：主键的 JSON 文本
func encodeKey(pk any) (string, error) {
	b, err := json.Marshal(pk)
	if err != nil {
		return "", orm.Validationf("sqlstore: encode key %v: %v", pk, err)
	}
	return string(b), nil
}

// encode 属性值转为驱动可接受的参数
func encode(p *orm.PropertyMeta, value any) (any, error) {
	if p.Kind == orm.KindAssociation {
		return encodeAssociation(p, value)
	}
	rv, err := p.Convert(value)
	if err != nil {
		return nil, err
	}
	if isJSON(p) {
		switch rv.Kind() {
		case reflect.Map, reflect.Slice, reflect.Ptr, reflect.Interface:
			if rv.IsNil() {
				return nil, nil
			}
		}
		b, err := json.Marshal(rv.Interface())
		if err != nil {
			return nil, orm.Validationf("sqlstore: encode %s: %v", p.Name, err)
		}
		return string(b), nil
	}
	return encodeScalar(rv), nil
}

func encodeScalar(rv reflect.Value) any {
	switch columnType(rv.Type()) {
	case dialect.TypeBlob:
		if rv.IsNil() {
			return nil
		}
		return append([]byte(nil), rv.Bytes()...)
	case dialect.TypeInteger:
		switch rv.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return int64(rv.Uint())
		}
		return rv.Int()
	case dialect.TypeReal:
		return rv.Float()
	case dialect.TypeBool:
		return rv.Bool()
	default:
		return rv.String()
	}
}

// encodeAssociation 关联属性保存目标主键；托管句柄直接提供主键
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
	b, err := json.Marshal(pk)
	if err != nil {
		return nil, orm.Validationf("sqlstore: encode %s: %v", p.Name, err)
	}
	return string(b), nil
}

// scanDest 为属性列创建扫描目标
func scanDest(p *orm.PropertyMeta) any {
	if isJSON(p) {
		return new(sql.NullString)
	}
	switch columnType(p.Type) {
	case dialect.TypeBlob:
		return new([]byte)
	case dialect.TypeInteger:
		return new(sql.NullInt64)
	case dialect.TypeReal:
		return new(sql.NullFloat64)
	case dialect.TypeBool:
		return new(sql.NullBool)
	default:
		return new(sql.NullString)
	}
}

// decode 把扫描结果写入 target 的属性字段（绕过代理）；NULL 写入零值
func decode(target any, p *orm.PropertyMeta, dest any) error {
	f, err := p.Field(target)
	if err != nil {
		return err
	}
	zero := reflect.Zero(f.Type())

	switch d := dest.(type) {
	case *[]byte:
		if *d == nil {
			f.Set(zero)
			return nil
		}
		f.SetBytes(append([]byte(nil), (*d)...))
		return nil
	case *sql.NullInt64:
		if !d.Valid {
			f.Set(zero)
			return nil
		}
		switch f.Kind() {
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f.SetUint(uint64(d.Int64))
		default:
			f.SetInt(d.Int64)
		}
		return nil
	case *sql.NullFloat64:
		if !d.Valid {
			f.Set(zero)
			return nil
		}
		f.SetFloat(d.Float64)
		return nil
	case *sql.NullBool:
		if !d.Valid {
			f.Set(zero)
			return nil
		}
		f.SetBool(d.Bool)
		return nil
	case *sql.NullString:
		if !d.Valid {
			f.Set(zero)
			return nil
		}
		if p.Kind == orm.KindAssociation {
			return decodeAssociation(f, p, d.String)
		}
		if isJSON(p) {
			ptr := reflect.New(f.Type())
			if err := json.Unmarshal([]byte(d.String), ptr.Interface()); err != nil {
				return fmt.Errorf("sqlstore: decode %s: %w", p.Name, err)
			}
			f.Set(ptr.Elem())
			return nil
		}
		f.SetString(d.String)
		return nil
	default:
		return fmt.Errorf("sqlstore: unsupported scan destination %T", dest)
	}
}

// decodeAssociation 关联属性还原为只含主键的目标实例
func decodeAssociation(f reflect.Value, p *orm.PropertyMeta, raw string) error {
	target := p.Target
	key := reflect.New(target.ID.Type)
	if err := json.Unmarshal([]byte(raw), key.Interface()); err != nil {
		return fmt.Errorf("sqlstore: decode %s key: %w", p.Name, err)
	}
	ref := target.NewInstance()
	if err := target.ID.Assign(ref, key.Elem().Interface()); err != nil {
		return err
	}
	f.Set(reflect.ValueOf(ref))
	return nil
}
