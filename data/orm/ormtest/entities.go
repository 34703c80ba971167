// Package ormtest 提供测试用的示例实体与可记录调用的协作者替身。
package ormtest

import (
	"fmt"
	"strings"
)

// User 覆盖全部属性类别的示例实体
type User struct {
	ID      int64  `orm:"id"`
	Name    string `orm:"column:name"`
	Bio     string `orm:"lazy"`
	Tags    []string
	Roles   map[string]struct{}
	Attrs   map[string]string
	Friends []any
	Visits  int64             `orm:"counter"`
	Notes   map[string][]byte `orm:"wide"`
	Manager *User             `orm:"cascade:merge,persist"`
	Address *Address          `orm:"cascade:all"`
	Mentor  *User             `orm:"join"`
}

func (User) TableName() string { return "users" }

// Greeting 未映射的业务方法
func (u *User) Greeting(prefix string) string {
	return prefix + " " + u.Name
}

// Rename 带错误返回的业务方法
func (u *User) Rename(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("empty name")
	}
	u.Name = name
	return nil
}

// Address 被级联的关联实体
type Address struct {
	ID    string `orm:"id"`
	City  string
	Lines []string `orm:"lazy"`
}

// OrderKey 复合主键
type OrderKey struct {
	Customer string `orm:"column:customer_id"`
	Seq      int
}

// Order 使用复合主键的实体
type Order struct {
	Key    OrderKey `orm:"id"`
	Amount float64
	Items  map[string]int
}

// Node 自引用实体，用于环形级联
type Node struct {
	ID   int64 `orm:"id"`
	Name string
	Next *Node `orm:"cascade:merge"`
}

// Base 被匿名内嵌的公共字段
type Base struct {
	ID      int64 `orm:"id"`
	Version int
}

// Article 通过内嵌结构体获得主键
type Article struct {
	Base
	Title string
	Body  string `orm:"lazy;column:content"`
	Skip  string `orm:"-"`
}
