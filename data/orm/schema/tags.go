package schema

import (
	"reflect"
	"strings"
	"unicode"

	"colorm/data/orm"
)

// TagName 结构体标签名
const TagName = "orm"

// fieldTag 解析后的字段标签
type fieldTag struct {
	skip     bool
	column   string
	id       bool
	embedded bool
	lazy     bool
	counter  bool
	wide     bool
	set      bool
	join     bool
	cascade  orm.Cascade
	explicit bool // 显式声明了 cascade
}

// parseTag 解析 `orm:"column:x;id;lazy;cascade:merge,persist"`，分隔方式与 gorm 标签一致
func parseTag(f reflect.StructField) (fieldTag, error) {
	var tag fieldTag
	raw, ok := f.Tag.Lookup(TagName)
	if !ok {
		if dbTag := f.Tag.Get("db"); dbTag != "" && dbTag != "-" {
			tag.column = dbTag
		}
		return tag, nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "-" {
		tag.skip = true
		return tag, nil
	}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, value, _ := strings.Cut(part, ":")
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "column":
			tag.column = strings.TrimSpace(value)
		case "id", "primarykey", "primary_key":
			tag.id = true
		case "embedded":
			tag.embedded = true
		case "lazy":
			tag.lazy = true
		case "counter":
			tag.counter = true
		case "wide":
			tag.wide = true
		case "set":
			tag.set = true
		case "join":
			tag.join = true
		case "cascade":
			c, err := orm.ParseCascade(value)
			if err != nil {
				return tag, orm.Validationf("field %s: %v", f.Name, err)
			}
			tag.cascade = c
			tag.explicit = true
		default:
			return tag, orm.Validationf("field %s: unknown tag option %q", f.Name, name)
		}
	}
	return tag, nil
}

// toSnakeCase 驼峰转下划线，连续大写视为一个缩写（UserID → user_id）
func toSnakeCase(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sb.WriteByte('_')
				}
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func isTimeType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() == "time" && t.Name() == "Time"
}

func isInteger(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

// isStructPtr 指向普通结构体（time.Time 除外）的指针
func isStructPtr(t reflect.Type) bool {
	return t.Kind() == reflect.Ptr && t.Elem().Kind() == reflect.Struct && !isTimeType(t.Elem())
}

// inferKind 根据 Go 类型推断非关联属性的类别
func inferKind(t reflect.Type, tag fieldTag) orm.Kind {
	switch t.Kind() {
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return orm.KindPlain
		}
		return orm.KindList
	case reflect.Map:
		elem := t.Elem()
		if elem.Kind() == reflect.Struct && elem.NumField() == 0 {
			return orm.KindSet
		}
		if elem.Kind() == reflect.Bool && tag.set {
			return orm.KindSet
		}
		return orm.KindMap
	default:
		return orm.KindPlain
	}
}

// tableNamer 自定义表名
type tableNamer interface {
	TableName() string
}

// tableName 优先使用 TableName()，否则取类型名的下划线形式
func tableName(t reflect.Type) string {
	if tn, ok := reflect.New(t).Interface().(tableNamer); ok {
		if name := tn.TableName(); name != "" {
			return name
		}
	}
	return toSnakeCase(t.Name())
}
